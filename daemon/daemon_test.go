// -*- Mode: Go; indent-tabs-mode: t -*-

/*
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Lesser General Public License version 2.1
 * as published by the Free Software Foundation.
 */

package daemon

import (
	"testing"
	"time"

	. "gopkg.in/check.v1"
)

func Test(t *testing.T) { TestingT(t) }

type DaemonSuite struct{}

var _ = Suite(&DaemonSuite{})

func (s *DaemonSuite) TestClampMaxCableDelayClampsToZeroAndFourThousand(c *C) {
	c.Check(ClampMaxCableDelay(-5), Equals, time.Duration(0))
	c.Check(ClampMaxCableDelay(0), Equals, time.Duration(0))
	c.Check(ClampMaxCableDelay(400), Equals, 400*time.Millisecond)
	c.Check(ClampMaxCableDelay(4000), Equals, 4000*time.Millisecond)
	c.Check(ClampMaxCableDelay(9000), Equals, 4000*time.Millisecond)
}

func (s *DaemonSuite) TestBcastProxyIsSilentBeforePatched(c *C) {
	bp := &bcastProxy{}
	bp.BroadcastTarget("mass_storage")
	bp.BroadcastExternal("mass_storage")
}

func (s *DaemonSuite) TestValidatorProxyDefaultsPermissiveBeforePatched(c *C) {
	vp := &validatorProxy{}
	c.Check(vp.IsValidSelectableMode("mass_storage", 0), Equals, true)
}

func (s *DaemonSuite) TestNotifyProxyIsSilentBeforePatched(c *C) {
	np := &notifyProxy{}
	np.notify("usbmode", "mode")
}
