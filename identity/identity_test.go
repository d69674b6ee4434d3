// -*- Mode: Go; indent-tabs-mode: t -*-

/*
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Lesser General Public License version 2.1
 * as published by the Free Software Foundation.
 */

package identity_test

import (
	"os"
	"path/filepath"
	"testing"

	. "gopkg.in/check.v1"

	"github.com/sailfishos/usb-moded-sub000/identity"
)

func Test(t *testing.T) { TestingT(t) }

type IdentitySuite struct{}

var _ = Suite(&IdentitySuite{})

func (s *IdentitySuite) TestParseSerialExtractsAndroidBootToken(c *C) {
	cmdline := "console=ttyS0 androidboot.serialno=ABCD1234 root=/dev/mmcblk0p1 rw\n"
	c.Check(identity.ParseSerial(cmdline), Equals, "ABCD1234")
}

func (s *IdentitySuite) TestParseSerialAbsentReturnsEmpty(c *C) {
	c.Check(identity.ParseSerial("console=ttyS0 root=/dev/mmcblk0p1 rw\n"), Equals, "")
}

type fakeStore map[string]map[string]string

func (f fakeStore) GetString(group, key string) string { return f[group][key] }

func (s *IdentitySuite) TestLoadPrefersStoredSerial(c *C) {
	store := fakeStore{"identity": {"serial": "STORED-SERIAL"}}
	info := identity.Load(store, "androidboot.serialno=FROM-CMDLINE")
	c.Check(info.Serial, Equals, "STORED-SERIAL")
}

func (s *IdentitySuite) TestLoadFallsBackToCmdlineSerial(c *C) {
	store := fakeStore{}
	info := identity.Load(store, "console=ttyS0 androidboot.serialno=FROM-CMDLINE rw")
	c.Check(info.Serial, Equals, "FROM-CMDLINE")
}

func (s *IdentitySuite) TestLoadReadsOtherAttributesFromStore(c *C) {
	store := fakeStore{"identity": {
		"vendor_id":    "0x2717",
		"product_id":   "0xff08",
		"manufacturer": "Jolla",
		"product":      "Sailfish",
	}}
	info := identity.Load(store, "")
	c.Check(info.VendorID, Equals, "0x2717")
	c.Check(info.ProductID, Equals, "0xff08")
	c.Check(info.Manufacturer, Equals, "Jolla")
	c.Check(info.Product, Equals, "Sailfish")
	c.Check(info.Serial, Equals, "")
}

func (s *IdentitySuite) TestReadCmdlineMissingFileReturnsEmpty(c *C) {
	c.Check(identity.ReadCmdline(filepath.Join(c.MkDir(), "nope")), Equals, "")
}

func (s *IdentitySuite) TestReadCmdlineReadsContents(c *C) {
	dir := c.MkDir()
	path := filepath.Join(dir, "cmdline")
	c.Assert(os.WriteFile(path, []byte("androidboot.serialno=XYZ\n"), 0644), IsNil)
	c.Check(identity.ReadCmdline(path), Equals, "androidboot.serialno=XYZ\n")
}
