// -*- Mode: Go; indent-tabs-mode: t -*-

/*
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Lesser General Public License version 2.1
 * as published by the Free Software Foundation.
 */

package dirs_test

import (
	"testing"

	. "gopkg.in/check.v1"

	"github.com/sailfishos/usb-moded-sub000/dirs"
)

func Test(t *testing.T) { TestingT(t) }

type DirsTestSuite struct{}

var _ = Suite(&DirsTestSuite{})

func (s *DirsTestSuite) TearDownTest(c *C) {
	dirs.SetRootDir("")
}

func (s *DirsTestSuite) TestDefaultRoot(c *C) {
	c.Check(dirs.ConfigStaticDir, Equals, "/etc/usb-moded")
	c.Check(dirs.ConfigOverlay, Equals, "/var/lib/usb-moded/usb-moded.ini")
	c.Check(dirs.ModeCatalogDir, Equals, "/etc/usb-moded/run")
}

func (s *DirsTestSuite) TestSetRootDir(c *C) {
	dirs.SetRootDir("/tmp/alt-root")
	c.Check(dirs.ConfigStaticDir, Equals, "/tmp/alt-root/etc/usb-moded")
	c.Check(dirs.ModeCatalogDiagDir, Equals, "/tmp/alt-root/etc/usb-moded/run-diag")
	c.Check(dirs.ProcCmdline, Equals, "/tmp/alt-root/proc/cmdline")
}
