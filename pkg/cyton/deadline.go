// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cyton

// DeadlineTimer runs one callback after a delay. It has no clock or
// goroutine of its own: the callback fires from Poll once the polled time
// reaches the deadline. Only one callback is armed at a time.
type DeadlineTimer struct {
	expiresAt uint64
	task      func()
}

// Arm schedules task to run delayMs after nowMicros, replacing (without
// running) any task already armed.
func (d *DeadlineTimer) Arm(nowMicros uint64, delayMs uint32, task func()) {
	d.expiresAt = nowMicros + uint64(delayMs)*1000
	d.task = task
}

// Poll runs the armed task if its deadline has passed and disarms the
// timer. It reports whether the task ran.
func (d *DeadlineTimer) Poll(nowMicros uint64) bool {
	if d.task == nil || nowMicros < d.expiresAt {
		return false
	}

	// disarm first so the task may re-arm
	task := d.task
	d.task = nil
	task()
	return true
}

// Cancel disarms the timer without running the task
func (d *DeadlineTimer) Cancel() {
	d.task = nil
}

// Armed reports whether a task is waiting
func (d *DeadlineTimer) Armed() bool {
	return d.task != nil
}

// ExpiresAt returns the absolute deadline of the armed task
func (d *DeadlineTimer) ExpiresAt() uint64 {
	return d.expiresAt
}
