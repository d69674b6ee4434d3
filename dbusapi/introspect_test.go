// -*- Mode: Go; indent-tabs-mode: t -*-

/*
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Lesser General Public License version 2.1
 * as published by the Free Software Foundation.
 */

package dbusapi_test

import (
	"strings"
	"testing"

	. "gopkg.in/check.v1"

	"github.com/sailfishos/usb-moded-sub000/dbusapi"
)

func Test(t *testing.T) { TestingT(t) }

type DbusapiSuite struct{}

var _ = Suite(&DbusapiSuite{})

func (s *DbusapiSuite) TestIntrospectXMLListsEveryMethodAndSignal(c *C) {
	xml := dbusapi.IntrospectXML()
	for _, m := range dbusapi.Methods {
		c.Check(strings.Contains(xml, `name="`+m.Name+`"`), Equals, true, Commentf("missing method %s", m.Name))
	}
	for _, sig := range dbusapi.Signals {
		c.Check(strings.Contains(xml, `name="`+sig.Name+`"`), Equals, true, Commentf("missing signal %s", sig.Name))
	}
}

func (s *DbusapiSuite) TestBusConfigRestrictsOwnerOnlyMethods(c *C) {
	xml := dbusapi.BusConfigXML()
	c.Check(strings.Count(xml, `send_member="SetWhitelist"`), Equals, 1, Commentf("owner-only method must appear once, in the root policy only"))
	c.Check(strings.Count(xml, `send_member="ModeRequest"`), Equals, 2, Commentf("read-only method must appear in both policies"))
}
