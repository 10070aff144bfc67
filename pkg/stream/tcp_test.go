// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package stream

import (
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/cytonlink/cytonlink/pkg/config"
	"github.com/stretchr/testify/require"
)

// listen starts a loopback listener and returns its endpoint and the
// first accepted connection
func listen(t *testing.T) (Endpoint, <-chan net.Conn) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			accepted <- conn
		}
	}()

	addr := ln.Addr().(*net.TCPAddr)
	return Endpoint{IP: "127.0.0.1", Port: addr.Port}, accepted
}

func accept(t *testing.T, accepted <-chan net.Conn) net.Conn {
	t.Helper()
	select {
	case conn := <-accepted:
		t.Cleanup(func() { conn.Close() })
		return conn
	case <-time.After(2 * time.Second):
		t.Fatal("no connection accepted")
		return nil
	}
}

func readN(t *testing.T, conn net.Conn, n int) []byte {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	buf := make([]byte, n)
	_, err := io.ReadFull(conn, buf)
	require.NoError(t, err)
	return buf
}

func TestTCPSender_NotConnected(t *testing.T) {
	s := NewTCPSender(nil)
	require.False(t, s.Connected())
	require.ErrorIs(t, s.Send([]byte{1}), ErrNotConnected)
	require.NoError(t, s.Flush(), "empty flush is a no-op")

	err := s.Connect(context.Background(), TCPSettings{})
	require.ErrorIs(t, err, ErrNotConfigured)
}

func TestTCPSender_WriteThrough(t *testing.T) {
	endpoint, accepted := listen(t)
	s := NewTCPSender(nil)
	require.NoError(t, s.Connect(context.Background(), TCPSettings{Endpoint: endpoint}))
	defer s.Close()
	conn := accept(t, accepted)

	require.NoError(t, s.Send([]byte("abc")))
	require.Equal(t, []byte("abc"), readN(t, conn, 3))
	require.Equal(t, 0, s.Buffered())

	info := s.Info()
	require.True(t, info.Connected)
	require.Equal(t, config.OutputRaw, info.Output)
	require.Equal(t, endpoint.Port, info.Port)
}

func TestTCPSender_LatencyBatching(t *testing.T) {
	endpoint, accepted := listen(t)
	s := NewTCPSender(nil)
	settings := TCPSettings{Endpoint: endpoint, Output: config.OutputRaw, LatencyUs: 10000, Delimiter: true}
	require.NoError(t, s.Connect(context.Background(), settings))
	defer s.Close()
	conn := accept(t, accepted)

	require.NoError(t, s.Send([]byte("one")))
	require.NoError(t, s.Send([]byte("two")))
	require.Equal(t, 6, s.Buffered())
	require.Equal(t, 10000, s.Latency())

	require.NoError(t, s.Flush())
	require.Equal(t, 0, s.Buffered())
	require.Equal(t, []byte("onetwo"), readN(t, conn, 6))
}

func TestTCPSender_Disconnect(t *testing.T) {
	endpoint, accepted := listen(t)
	s := NewTCPSender(nil)
	require.NoError(t, s.Connect(context.Background(), TCPSettings{Endpoint: endpoint, LatencyUs: 5}))
	accept(t, accepted)

	require.NoError(t, s.Send([]byte("queued")))
	s.Disconnect()

	require.False(t, s.Connected())
	require.Equal(t, 0, s.Buffered())
	require.ErrorIs(t, s.Send([]byte("x")), ErrNotConnected)
	require.False(t, s.Info().Connected)
}

func TestTCPSender_ConnectRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	s := NewTCPSender(nil)
	err = s.Connect(context.Background(), TCPSettings{Endpoint: Endpoint{IP: "127.0.0.1", Port: port}})
	require.Error(t, err)
	require.False(t, s.Connected())
}

func TestTCPSender_BadOutput(t *testing.T) {
	s := NewTCPSender(nil)
	err := s.Connect(context.Background(), TCPSettings{Endpoint: Endpoint{IP: "127.0.0.1", Port: 1}, Output: "csv"})
	require.Error(t, err)
	require.False(t, errors.Is(err, ErrNotConfigured))
}

func TestSettingsFromConfig(t *testing.T) {
	s := SettingsFromConfig(config.TCPConfig{Address: "10.1.1.1", Port: 3000, Delimiter: true, LatencyUs: 1000, Output: "json"})
	require.Equal(t, Endpoint{IP: "10.1.1.1", Port: 3000}, s.Endpoint)
	require.True(t, s.Delimiter)
	require.Equal(t, 1000, s.LatencyUs)
	require.Equal(t, "json", s.Output)
}
