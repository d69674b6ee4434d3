// -*- Mode: Go; indent-tabs-mode: t -*-

/*
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Lesser General Public License version 2.1
 * as published by the Free Software Foundation.
 */

// Package testutil provides a small shared base that gocheck suites in
// this repo can embed, mirroring the teacher's testutil.BaseTest convention
// referenced from its dbusutil and notification test suites.
package testutil

import (
	. "gopkg.in/check.v1"
)

// BaseTest offers an AddCleanup stack that runs in LIFO order from
// TearDownTest, so individual tests can register ad-hoc restores without
// each suite hand-rolling its own teardown bookkeeping.
type BaseTest struct {
	cleanups []func()
}

// SetUpTest resets the cleanup stack. Suites that embed BaseTest and
// override SetUpTest must call BaseTest.SetUpTest first.
func (b *BaseTest) SetUpTest(c *C) {
	b.cleanups = nil
}

// TearDownTest runs every registered cleanup in reverse registration order.
func (b *BaseTest) TearDownTest(c *C) {
	for i := len(b.cleanups) - 1; i >= 0; i-- {
		b.cleanups[i]()
	}
	b.cleanups = nil
}

// AddCleanup registers f to run when TearDownTest executes.
func (b *BaseTest) AddCleanup(f func()) {
	b.cleanups = append(b.cleanups, f)
}
