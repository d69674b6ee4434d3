// -*- Mode: Go; indent-tabs-mode: t -*-

/*
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Lesser General Public License version 2.1
 * as published by the Free Software Foundation.
 */

package cable_test

import (
	"testing"
	"time"

	. "gopkg.in/check.v1"

	"github.com/sailfishos/usb-moded-sub000/cable"
)

func Test(t *testing.T) { TestingT(t) }

type CableSuite struct{}

var _ = Suite(&CableSuite{})

type fakePS struct {
	online map[string]bool
	typ    map[string]string
}

func (f *fakePS) Candidates() ([]string, error) { return []string{"usb"}, nil }
func (f *fakePS) Online(d string) (bool, error) { return f.online[d], nil }
func (f *fakePS) Type(d string) (string, error) { return f.typ[d], nil }
func (f *fakePS) Attr(d, name string) (string, bool) { return "", false }

func (s *CableSuite) TestDisconnectedIsImmediateConnectedIsDebounced(c *C) {
	ps := &fakePS{online: map[string]bool{"usb": true}, typ: map[string]string{"usb": "USB"}}

	var got []cable.State
	tr := cable.NewTracker(ps, "usb", nil, nil, 10*time.Millisecond, func(s cable.State) {
		got = append(got, s)
	}, nil)

	tr.Poll()
	time.Sleep(30 * time.Millisecond)
	c.Assert(got, HasLen, 1)
	c.Check(got[0], Equals, cable.PcConnected)

	ps.online["usb"] = false
	tr.Poll()
	c.Assert(got, HasLen, 2)
	c.Check(got[1], Equals, cable.Disconnected)
}

func (s *CableSuite) TestDebounceCoalescesBursts(c *C) {
	ps := &fakePS{online: map[string]bool{"usb": true}, typ: map[string]string{"usb": "USB_DCP"}}

	var got []cable.State
	tr := cable.NewTracker(ps, "usb", nil, nil, 20*time.Millisecond, func(s cable.State) {
		got = append(got, s)
	}, nil)

	tr.Poll()
	tr.Poll()
	tr.Poll()
	time.Sleep(50 * time.Millisecond)

	c.Assert(got, HasLen, 1)
	c.Check(got[0], Equals, cable.ChargerConnected)
}

func (s *CableSuite) TestLegacyEventFiresOnEdgeOnly(c *C) {
	ps := &fakePS{online: map[string]bool{"usb": true}, typ: map[string]string{"usb": "USB_DCP"}}

	var legacy []bool
	tr := cable.NewTracker(ps, "usb", nil, nil, time.Millisecond, func(cable.State) {}, func(connected bool) {
		legacy = append(legacy, connected)
	})

	tr.Poll()
	time.Sleep(10 * time.Millisecond)
	c.Assert(legacy, HasLen, 1)
	c.Check(legacy[0], Equals, true)
}
