// -*- Mode: Go; indent-tabs-mode: t -*-

/*
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Lesser General Public License version 2.1
 * as published by the Free Software Foundation.
 */

package worker_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	. "gopkg.in/check.v1"

	"github.com/sailfishos/usb-moded-sub000/backend"
	"github.com/sailfishos/usb-moded-sub000/catalog"
	"github.com/sailfishos/usb-moded-sub000/worker"
)

func Test(t *testing.T) { TestingT(t) }

type WorkerSuite struct{}

var _ = Suite(&WorkerSuite{})

func mkfile(c *C, path, content string) {
	c.Assert(os.MkdirAll(filepath.Dir(path), 0755), IsNil)
	c.Assert(os.WriteFile(path, []byte(content), 0644), IsNil)
}

func newKmodSelector(c *C, root string) *backend.Selector {
	procModules := filepath.Join(root, "proc-modules")
	mkfile(c, procModules, "")
	sel, err := backend.Select(backend.Paths{
		ConfigfsGadgetDir: filepath.Join(root, "no-configfs"),
		AndroidUSBDir:     filepath.Join(root, "no-android"),
		UDCClassDir:       filepath.Join(root, "udc"),
		ProcModules:       procModules,
	}, backend.DefaultFunctionMap(), map[string]string{
		"charging_only": "g_mass_storage",
		"mass_storage":  "g_mass_storage",
	})
	c.Assert(err, IsNil)
	return sel
}

func (s *WorkerSuite) TestNoopTransitionWhenAlreadyActivated(c *C) {
	root := c.MkDir()
	sel := newKmodSelector(c, root)
	cat, err := catalog.Load(c.MkDir())
	c.Assert(err, IsNil)

	done := make(chan string, 4)
	w := worker.New(cat, sel, nil, nil, nil, func(hw string) { done <- hw })
	w.Start()
	defer w.Stop()

	w.Request("charging_only")
	select {
	case hw := <-done:
		c.Check(hw, Equals, "charging_only")
	case <-time.After(time.Second):
		c.Fatal("timed out waiting for completion")
	}

	// A second identical request is a no-op per spec §4.H step 4.
	w.Request("charging_only")
	select {
	case hw := <-done:
		c.Check(hw, Equals, "charging_only")
	case <-time.After(time.Second):
		c.Fatal("timed out waiting for second completion")
	}
}

func (s *WorkerSuite) TestFallsBackToChargingWhenModeMissing(c *C) {
	root := c.MkDir()
	sel := newKmodSelector(c, root)
	cat, err := catalog.Load(c.MkDir())
	c.Assert(err, IsNil)

	done := make(chan string, 4)
	w := worker.New(cat, sel, nil, nil, nil, func(hw string) { done <- hw })
	w.Start()
	defer w.Stop()

	w.Request("mass_storage")
	select {
	case hw := <-done:
		c.Check(hw, Equals, "charging_only")
	case <-time.After(time.Second):
		c.Fatal("timed out waiting for fallback completion")
	}
}
