// -*- Mode: Go; indent-tabs-mode: t -*-

/*
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Lesser General Public License version 2.1
 * as published by the Free Software Foundation.
 */

package backend_test

import (
	"os"
	"path/filepath"
	"testing"

	. "gopkg.in/check.v1"

	"github.com/sailfishos/usb-moded-sub000/backend"
)

func Test(t *testing.T) { TestingT(t) }

type BackendSuite struct {
	root string
}

var _ = Suite(&BackendSuite{})

func (s *BackendSuite) SetUpTest(c *C) {
	s.root = c.MkDir()
}

func mkfile(c *C, path, content string) {
	c.Assert(os.MkdirAll(filepath.Dir(path), 0755), IsNil)
	c.Assert(os.WriteFile(path, []byte(content), 0644), IsNil)
}

func (s *BackendSuite) TestProbeConfigfsRequiresUDCFile(c *C) {
	gadget := filepath.Join(s.root, "g1")
	c.Assert(backend.ProbeConfigfs(gadget), Equals, false)

	c.Assert(os.MkdirAll(gadget, 0755), IsNil)
	c.Assert(backend.ProbeConfigfs(gadget), Equals, false)

	mkfile(c, filepath.Join(gadget, "UDC"), "")
	c.Assert(backend.ProbeConfigfs(gadget), Equals, true)
}

func (s *BackendSuite) TestSetUDCWritesFirstController(c *C) {
	gadget := filepath.Join(s.root, "g1")
	udcClass := filepath.Join(s.root, "udc")
	mkfile(c, filepath.Join(gadget, "UDC"), "\n")
	mkfile(c, filepath.Join(udcClass, "musb-hdrc.0"), "")

	b := backend.NewSysfsBackend(backend.KindConfigfs, gadget, udcClass, backend.DefaultFunctionMap())
	c.Assert(b.SetUDC(true), Equals, true)

	got, err := os.ReadFile(filepath.Join(gadget, "UDC"))
	c.Assert(err, IsNil)
	c.Check(string(got), Equals, "musb-hdrc.0\n")

	c.Assert(b.SetUDC(false), Equals, true)
	got, err = os.ReadFile(filepath.Join(gadget, "UDC"))
	c.Assert(err, IsNil)
	c.Check(string(got), Equals, "\n")
}

func (s *BackendSuite) TestSetFunctionSymlinksIntoActiveConfig(c *C) {
	gadget := filepath.Join(s.root, "g1")
	udcClass := filepath.Join(s.root, "udc")
	mkfile(c, filepath.Join(gadget, "UDC"), "")
	mkfile(c, filepath.Join(udcClass, "musb-hdrc.0"), "")
	c.Assert(os.MkdirAll(filepath.Join(gadget, "functions", "mass_storage.usb0"), 0755), IsNil)
	c.Assert(os.MkdirAll(filepath.Join(gadget, "configs", "c.1"), 0755), IsNil)

	b := backend.NewSysfsBackend(backend.KindConfigfs, gadget, udcClass, backend.DefaultFunctionMap())
	c.Assert(b.SetFunction("mass_storage"), Equals, true)

	link := filepath.Join(gadget, "configs", "c.1", "mass_storage.usb0")
	target, err := os.Readlink(link)
	c.Assert(err, IsNil)
	c.Check(target, Equals, filepath.Join(gadget, "functions", "mass_storage.usb0"))
}

func (s *BackendSuite) TestDriftDetection(c *C) {
	gadget := filepath.Join(s.root, "g1")
	udcClass := filepath.Join(s.root, "udc")
	mkfile(c, filepath.Join(gadget, "idProduct"), "")

	b := backend.NewSysfsBackend(backend.KindConfigfs, gadget, udcClass, backend.DefaultFunctionMap())
	c.Assert(b.SetProductID("0x01"), Equals, true)

	// External code rewrites the attribute behind our back.
	c.Assert(os.WriteFile(filepath.Join(gadget, "idProduct"), []byte("0xdead\n"), 0644), IsNil)

	b.CheckDrift() // exercised for its side effect: must not panic
}

func (s *BackendSuite) TestMassStorageSetBackingFile(c *C) {
	gadget := filepath.Join(s.root, "g1")
	udcClass := filepath.Join(s.root, "udc")
	funcDir := filepath.Join(gadget, "functions", "mass_storage.usb0")
	mkfile(c, filepath.Join(gadget, "UDC"), "")
	mkfile(c, filepath.Join(funcDir, "lun.0", "file"), "")
	mkfile(c, filepath.Join(funcDir, "lun.0", "removable"), "")
	mkfile(c, filepath.Join(funcDir, "lun.0", "cdrom"), "")

	b := backend.NewSysfsBackend(backend.KindConfigfs, gadget, udcClass, backend.DefaultFunctionMap())
	ms := backend.NewMassStorage(b, funcDir)
	c.Assert(ms.SetBackingFile(0, "/dev/mmcblk0p1", true, false), Equals, true)

	got, err := os.ReadFile(filepath.Join(funcDir, "lun.0", "file"))
	c.Assert(err, IsNil)
	c.Check(string(got), Equals, "/dev/mmcblk0p1\n")
}
