// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bridge

import (
	"errors"
	"log/slog"
	"time"

	"github.com/cytonlink/cytonlink/pkg/cyton"
	"github.com/cytonlink/cytonlink/pkg/stream"
)

// OnData implements cyton.PacketSink
func (b *Bridge) OnData(sample cyton.FramedSample) {
	if m := b.opts.Metrics; m != nil {
		m.RecordPacket(cyton.KindSample)
	}
	b.capture(func(c *cyton.CaptureWriter) error { return c.WriteSample(b.now, sample) })

	if tcp := b.opts.TCP; tcp != nil && tcp.Connected() {
		settings := tcp.Settings()
		data, err := stream.Encode(sample, b.gains, settings.Output, settings.Delimiter)
		if err == nil {
			err = tcp.Send(data)
		}
		b.recordSend("tcp", err)
		if err == nil && settings.LatencyUs > 0 && !b.flushTimer.Armed() {
			b.flushTimer.Arm(b.now, latencyMs(settings.LatencyUs), b.flushTCP)
		}
	}

	if udp := b.opts.UDP; udp != nil && udp.Configured() {
		b.recordSend("udp", udp.Send(sample))
	}

	if b.opts.MQTT != nil {
		b.recordSend("mqtt", b.opts.MQTT.Send(sample))
	}
}

// OnGains implements cyton.PacketSink
func (b *Bridge) OnGains(report cyton.GainReport) {
	if m := b.opts.Metrics; m != nil {
		m.RecordPacket(cyton.KindGainReport)
	}
	b.gains = append(b.gains[:0], report...)
	b.capture(func(c *cyton.CaptureWriter) error { return c.WriteGains(b.now, report) })

	b.logger.Debug("Gains reported", slog.String("gains", report.String()))
	b.publish(statusEvent{Event: "gains", Gains: gainList(report)})
}

// OnCommandResult implements cyton.PacketSink
func (b *Bridge) OnCommandResult(text string) {
	b.commandTimer.Cancel()
	if m := b.opts.Metrics; m != nil {
		m.RecordPacket(cyton.KindCommandFinal)
	}
	b.capture(func(c *cyton.CaptureWriter) error { return c.WriteCommandResult(b.now, text) })

	command := ""
	if b.pending != nil {
		command = b.pending.text
		elapsed := time.Since(b.pendingSince)
		if m := b.opts.Metrics; m != nil {
			m.RecordCommand("ok", elapsed.Seconds())
		}
		b.logger.Debug("Command answered",
			slog.String("request_id", b.pending.id),
			slog.String("command", command),
			slog.String("result", text),
			slog.Duration("elapsed", elapsed),
		)
		b.pending.reply <- result{text: text}
		b.pending = nil
	} else {
		b.logger.Info("Unsolicited board response", slog.String("result", text))
	}

	b.publish(statusEvent{Event: "command", Command: command, Result: text})
}

func (b *Bridge) flushTCP() {
	if b.opts.TCP == nil {
		return
	}
	if err := b.opts.TCP.Flush(); err != nil && !errors.Is(err, stream.ErrNotConnected) {
		b.recordSend("tcp", err)
	}
}

func (b *Bridge) recordSend(sender string, err error) {
	if m := b.opts.Metrics; m != nil {
		m.RecordStreamSend(sender, err)
	}
	if err != nil {
		b.logger.Debug("Send failed", slog.String("sender", sender), slog.String("error", err.Error()))
	}
}

func (b *Bridge) capture(write func(*cyton.CaptureWriter) error) {
	if b.opts.Capture == nil {
		return
	}
	if err := write(b.opts.Capture); err != nil {
		b.logger.Error("Capture write failed, capture disabled", slog.String("error", err.Error()))
		b.opts.Capture = nil
	}
}

// latencyMs converts a batching latency to whole milliseconds, rounding up
func latencyMs(latencyUs int) uint32 {
	return uint32((latencyUs + 999) / 1000)
}

func gainList(report cyton.GainReport) []int {
	gains := make([]int, len(report))
	for i, g := range report {
		gains[i] = int(g)
	}
	return gains
}
