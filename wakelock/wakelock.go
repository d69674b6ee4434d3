// -*- Mode: Go; indent-tabs-mode: t -*-

/*
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Lesser General Public License version 2.1
 * as published by the Free Software Foundation.
 */

// Package wakelock maintains Android-style auto-expiring kernel wake
// locks via /sys/power/wake_lock and wake_unlock (spec §5 "Wake-locks").
package wakelock

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/sailfishos/usb-moded-sub000/logger"
)

// Named locks the daemon takes (spec §5: "two names: process-input,
// state-change").
const (
	ProcessInput = "process-input"
	StateChange  = "state-change"
)

// DefaultTimeout is how long a renewal keeps the lock held before it
// auto-expires if not renewed again.
const DefaultTimeout = 5 * time.Second

// Manager tracks which named locks are currently held, so renewals can
// extend rather than re-acquire, and so a clean shutdown can release
// everything synchronously (spec §5: "never released synchronously
// after one operation except on explicit clean shutdown").
type Manager struct {
	mu      sync.Mutex
	lockDir string // directory containing wake_lock/wake_unlock, normally /sys/power
	timers  map[string]*time.Timer
}

// New constructs a Manager rooted at the given /sys/power-equivalent
// directory (overridable in tests).
func New(lockDir string) *Manager {
	return &Manager{lockDir: lockDir, timers: map[string]*time.Timer{}}
}

func (m *Manager) wakeLockPath() string   { return filepath.Join(m.lockDir, "wake_lock") }
func (m *Manager) wakeUnlockPath() string { return filepath.Join(m.lockDir, "wake_unlock") }

// writeSysfs opens path with the raw unix syscalls (rather than os.WriteFile)
// since the kernel's wakelock sysfs nodes reject O_TRUNC and must be
// written with a single O_WRONLY write, matching how `cable`'s netlink
// monitor also goes straight to golang.org/x/sys/unix instead of a
// higher-level wrapper.
func writeSysfs(path string, data []byte) error {
	fd, err := unix.Open(path, unix.O_WRONLY, 0)
	if err != nil {
		return err
	}
	defer unix.Close(fd)
	_, err = unix.Write(fd, data)
	return err
}

// Acquire takes (or renews) the named lock for timeout, writing
// "<name> <timeout_ns>" to wake_lock per the kernel's wakelock interface.
// A subsequent Acquire of the same name before it expires simply extends
// the timer (spec §5: "Release timer is extended on each renewal").
func (m *Manager) Acquire(name string, timeout time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry := fmt.Sprintf("%s %d\n", name, timeout.Nanoseconds())
	if err := writeSysfs(m.wakeLockPath(), []byte(entry)); err != nil {
		logger.Warningf("wakelock: acquiring %q: %v", name, err)
		return
	}

	if t, ok := m.timers[name]; ok {
		t.Stop()
	}
	m.timers[name] = time.AfterFunc(timeout, func() {
		m.mu.Lock()
		delete(m.timers, name)
		m.mu.Unlock()
	})
}

// Release drops the named lock immediately, used only on clean shutdown
// (spec §5).
func (m *Manager) Release(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if t, ok := m.timers[name]; ok {
		t.Stop()
		delete(m.timers, name)
	}
	if err := writeSysfs(m.wakeUnlockPath(), []byte(name+"\n")); err != nil {
		logger.Warningf("wakelock: releasing %q: %v", name, err)
	}
}

// ReleaseAll releases every currently held lock, used at shutdown.
func (m *Manager) ReleaseAll() {
	m.mu.Lock()
	names := make([]string, 0, len(m.timers))
	for name := range m.timers {
		names = append(names, name)
	}
	m.mu.Unlock()

	for _, name := range names {
		m.Release(name)
	}
}

// Held reports whether name currently has an active (unexpired) lock,
// for tests and diagnostics.
func (m *Manager) Held(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.timers[name]
	return ok
}
