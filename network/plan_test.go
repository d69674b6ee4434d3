// -*- Mode: Go; indent-tabs-mode: t -*-

/*
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Lesser General Public License version 2.1
 * as published by the Free Software Foundation.
 */

package network_test

import (
	"os"
	"path/filepath"
	"testing"

	. "gopkg.in/check.v1"

	"github.com/sailfishos/usb-moded-sub000/network"
)

func Test(t *testing.T) { TestingT(t) }

type NetworkSuite struct{}

var _ = Suite(&NetworkSuite{})

func (s *NetworkSuite) TestParsePlanExtractsSevenFields(c *C) {
	cmdline := "console=ttyS0 usb_moded_ip=192.168.2.15:192.168.2.1:192.168.2.1:255.255.255.0:usb0host:usb0:1 rw"
	p, ok := network.ParsePlan(cmdline)
	c.Assert(ok, Equals, true)
	c.Check(p.Client, Equals, "192.168.2.15")
	c.Check(p.Server, Equals, "192.168.2.1")
	c.Check(p.Gateway, Equals, "192.168.2.1")
	c.Check(p.Mask, Equals, "255.255.255.0")
	c.Check(p.Host, Equals, "usb0host")
	c.Check(p.Device, Equals, "usb0")
	c.Check(p.Auto, Equals, true)
}

func (s *NetworkSuite) TestParsePlanAbsentReturnsNotOK(c *C) {
	_, ok := network.ParsePlan("console=ttyS0 root=/dev/mmcblk0p1")
	c.Check(ok, Equals, false)
}

func (s *NetworkSuite) TestParsePlanMalformedFieldCountReturnsNotOK(c *C) {
	_, ok := network.ParsePlan("usb_moded_ip=192.168.2.15:192.168.2.1")
	c.Check(ok, Equals, false)
}

func (s *NetworkSuite) TestWriteUDHCPDConfWritesExpectedFields(c *C) {
	dir := c.MkDir()
	confPath := filepath.Join(dir, "run", "udhcpd.conf")
	linkPath := filepath.Join(dir, "etc", "udhcpd.conf")
	c.Assert(os.MkdirAll(filepath.Dir(linkPath), 0755), IsNil)

	p := network.Plan{Client: "192.168.2.15", Gateway: "192.168.2.1", Mask: "255.255.255.0", Device: "usb0"}
	c.Assert(network.WriteUDHCPDConf(confPath, linkPath, p), IsNil)

	data, err := os.ReadFile(confPath)
	c.Assert(err, IsNil)
	c.Check(string(data), Equals, "interface usb0\nstart 192.168.2.15\nend 192.168.2.15\noption subnet 255.255.255.0\noption router 192.168.2.1\n")

	target, err := os.Readlink(linkPath)
	c.Assert(err, IsNil)
	c.Check(target, Equals, confPath)
}

func (s *NetworkSuite) TestWriteUDHCPDConfWithoutLinkSkipsSymlink(c *C) {
	dir := c.MkDir()
	confPath := filepath.Join(dir, "udhcpd.conf")
	c.Assert(network.WriteUDHCPDConf(confPath, "", network.Plan{Device: "usb0"}), IsNil)
	_, err := os.Stat(confPath)
	c.Assert(err, IsNil)
}
