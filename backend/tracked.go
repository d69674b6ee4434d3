// -*- Mode: Go; indent-tabs-mode: t -*-

/*
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Lesser General Public License version 2.1
 * as published by the Free Software Foundation.
 */

// Package backend implements the sysfs/configfs actuator (spec §4.A), the
// legacy kernel-module actuator (§4.B), and the backend selector that
// picks between them and kernel modules at startup (§4.C).
package backend

import "sync"

// TrackedWrites records the last intended value written to each sysfs
// path, so periodic verification ticks can detect unexpected external
// changes (spec §3 "Tracked sysfs writes").
type TrackedWrites struct {
	mu    sync.Mutex
	value map[string]string
}

// NewTrackedWrites returns an empty tracker.
func NewTrackedWrites() *TrackedWrites {
	return &TrackedWrites{value: map[string]string{}}
}

// Record notes that path was last written with value.
func (t *TrackedWrites) Record(path, value string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.value[path] = value
}

// Forget drops path from the tracked set, e.g. once a mode is torn down.
func (t *TrackedWrites) Forget(path string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.value, path)
}

// Paths returns every currently tracked path and its expected value.
func (t *TrackedWrites) Paths() map[string]string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]string, len(t.value))
	for k, v := range t.value {
		out[k] = v
	}
	return out
}
