// -*- Mode: Go; indent-tabs-mode: t -*-

/*
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Lesser General Public License version 2.1
 * as published by the Free Software Foundation.
 */

package modes_test

import (
	"testing"

	. "gopkg.in/check.v1"

	"github.com/sailfishos/usb-moded-sub000/modes"
)

func Test(t *testing.T) { TestingT(t) }

type ModesSuite struct{}

var _ = Suite(&ModesSuite{})

func (s *ModesSuite) TestIsInternal(c *C) {
	c.Check(modes.IsInternal(modes.Ask), Equals, true)
	c.Check(modes.IsInternal(modes.Name("mtp_mode")), Equals, false)
}

func (s *ModesSuite) TestMapToHardware(c *C) {
	for _, m := range []modes.Name{modes.Undefined, modes.Ask, modes.ChargingOnlyFallback, modes.ChargingOnly, modes.DedicatedCharger} {
		c.Check(modes.MapToHardware(m), Equals, modes.ChargingOnly)
	}
	c.Check(modes.MapToHardware(modes.Name("mtp_mode")), Equals, modes.Name("mtp_mode"))
}

func (s *ModesSuite) TestMapToExternal(c *C) {
	c.Check(modes.MapToExternal(modes.ChargingOnlyFallback), Equals, modes.ChargingOnly)
	c.Check(modes.MapToExternal(modes.Name("mtp_mode")), Equals, modes.Name("mtp_mode"))
}
