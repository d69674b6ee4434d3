// -*- Mode: Go; indent-tabs-mode: t -*-

/*
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Lesser General Public License version 2.1
 * as published by the Free Software Foundation.
 */

package wakelock_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	. "gopkg.in/check.v1"

	"github.com/sailfishos/usb-moded-sub000/wakelock"
)

func Test(t *testing.T) { TestingT(t) }

type WakelockSuite struct {
	dir string
}

var _ = Suite(&WakelockSuite{})

func (s *WakelockSuite) SetUpTest(c *C) {
	s.dir = c.MkDir()
	c.Assert(os.WriteFile(filepath.Join(s.dir, "wake_lock"), nil, 0644), IsNil)
	c.Assert(os.WriteFile(filepath.Join(s.dir, "wake_unlock"), nil, 0644), IsNil)
}

func (s *WakelockSuite) TestAcquireWritesNameAndTimeout(c *C) {
	m := wakelock.New(s.dir)
	m.Acquire(wakelock.ProcessInput, 50*time.Millisecond)
	c.Check(m.Held(wakelock.ProcessInput), Equals, true)

	got, err := os.ReadFile(filepath.Join(s.dir, "wake_lock"))
	c.Assert(err, IsNil)
	c.Check(string(got), Matches, wakelock.ProcessInput+` \d+\n`)
}

func (s *WakelockSuite) TestAcquireExpiresAfterTimeout(c *C) {
	m := wakelock.New(s.dir)
	m.Acquire(wakelock.StateChange, 10*time.Millisecond)
	c.Check(m.Held(wakelock.StateChange), Equals, true)

	time.Sleep(30 * time.Millisecond)
	c.Check(m.Held(wakelock.StateChange), Equals, false)
}

func (s *WakelockSuite) TestReleaseWritesUnlockAndStopsTimer(c *C) {
	m := wakelock.New(s.dir)
	m.Acquire(wakelock.ProcessInput, time.Second)
	m.Release(wakelock.ProcessInput)

	c.Check(m.Held(wakelock.ProcessInput), Equals, false)
	got, err := os.ReadFile(filepath.Join(s.dir, "wake_unlock"))
	c.Assert(err, IsNil)
	c.Check(string(got), Equals, wakelock.ProcessInput+"\n")
}
