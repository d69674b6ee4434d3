// -*- Mode: Go; indent-tabs-mode: t -*-

/*
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Lesser General Public License version 2.1
 * as published by the Free Software Foundation.
 */

package selection_test

import (
	"os"
	"path/filepath"
	"testing"

	. "gopkg.in/check.v1"

	"github.com/sailfishos/usb-moded-sub000/cable"
	"github.com/sailfishos/usb-moded-sub000/catalog"
	"github.com/sailfishos/usb-moded-sub000/dirs"
	"github.com/sailfishos/usb-moded-sub000/modes"
	"github.com/sailfishos/usb-moded-sub000/selection"
	"github.com/sailfishos/usb-moded-sub000/settings"
)

func Test(t *testing.T) { TestingT(t) }

type SelectionSuite struct {
	root string
}

var _ = Suite(&SelectionSuite{})

func (s *SelectionSuite) SetUpTest(c *C) {
	s.root = c.MkDir()
	dirs.SetRootDir(s.root)
}

func (s *SelectionSuite) TearDownTest(c *C) {
	dirs.SetRootDir("")
}

func mkfile(c *C, path, content string) {
	c.Assert(os.MkdirAll(filepath.Dir(path), 0755), IsNil)
	c.Assert(os.WriteFile(path, []byte(content), 0644), IsNil)
}

type fakeWorker struct {
	requests []string
}

func (f *fakeWorker) Request(hw string) { f.requests = append(f.requests, hw) }

type fakeBroadcaster struct {
	targets   []modes.Name
	externals []modes.Name
}

func (f *fakeBroadcaster) BroadcastTarget(m modes.Name)   { f.targets = append(f.targets, m) }
func (f *fakeBroadcaster) BroadcastExternal(m modes.Name) { f.externals = append(f.externals, m) }

func (s *SelectionSuite) newEngine(c *C) (*selection.Engine, *fakeWorker, *fakeBroadcaster, *catalog.Catalog) {
	catDir := filepath.Join(s.root, "modes")
	mkfile(c, filepath.Join(catDir, "mass_storage.ini"), "[info]\nmode_name=mass_storage\nmode_module=mass_storage.usb0\n")
	cat, err := catalog.Load(catDir)
	c.Assert(err, IsNil)

	store, err := settings.New(nil, nil)
	c.Assert(err, IsNil)

	w := &fakeWorker{}
	b := &fakeBroadcaster{}
	eng := selection.New(cat, nil, store, w, b)
	// the store is built without a validator, so stored modes are not
	// checked against the engine's available modes
	return eng, w, b, cat
}

func (s *SelectionSuite) TestCableDisconnectAfterChargingUndoesNothing(c *C) {
	eng, w, _, _ := s.newEngine(c)
	eng.SetFlags(selection.Flags{ControlEnabled: true, InitDone: true, CanExport: true})
	// Starts out disconnected (cable.State zero value is Unknown, which is
	// also != PcConnected), so the initial evaluation already lands on
	// `undefined` and issues no request.
	c.Assert(w.requests, HasLen, 0)

	eng.SetCable(cable.ChargerConnected)
	c.Assert(w.requests, HasLen, 1)

	eng.SetCable(cable.Disconnected)
	c.Assert(w.requests, HasLen, 2)
	c.Check(w.requests[1], Equals, string(modes.ChargingOnly))
}

func (s *SelectionSuite) TestChargerConnectedChoosesDedicatedCharger(c *C) {
	eng, w, _, _ := s.newEngine(c)
	eng.SetFlags(selection.Flags{ControlEnabled: true, InitDone: true, CanExport: true})
	eng.SetCable(cable.ChargerConnected)

	c.Assert(w.requests, HasLen, 1)
	c.Check(w.requests[0], Equals, string(modes.ChargingOnly)) // dedicated_charger maps to charging hw
}

func (s *SelectionSuite) TestInitNotDoneForcesChargingFallback(c *C) {
	eng, w, _, _ := s.newEngine(c)
	eng.SetFlags(selection.Flags{ControlEnabled: true, InitDone: false, CanExport: true})
	eng.SetCable(cable.PcConnected)

	c.Assert(w.requests, HasLen, 1)
	c.Check(w.requests[0], Equals, string(modes.ChargingOnly))
}

func (s *SelectionSuite) TestDeviceLockedRejectsDynamicSelection(c *C) {
	eng, w, _, _ := s.newEngine(c)
	eng.SetFlags(selection.Flags{ControlEnabled: true, InitDone: true, CanExport: false})
	eng.SetSelected("mass_storage")
	eng.SetCable(cable.PcConnected)

	c.Assert(w.requests, HasLen, 1)
	c.Check(w.requests[0], Equals, string(modes.ChargingOnly))
}

func (s *SelectionSuite) TestUnlockedExplicitSelectionIsHonored(c *C) {
	eng, w, _, cat := s.newEngine(c)
	// a second mode, so mass_storage is not chosen merely as the only one
	catDir := filepath.Join(s.root, "modes")
	mkfile(c, filepath.Join(catDir, "mtp_mode.ini"), "[info]\nmode_name=mtp_mode\nmode_module=mtp\n")
	c.Assert(cat.Reload(catDir), IsNil)

	eng.SetFlags(selection.Flags{ControlEnabled: true, InitDone: true, CanExport: true})
	// with the setting at ask and two modes available, connecting first
	// lands on charging_only
	eng.SetCable(cable.PcConnected)
	// the explicit selection, made while connected, is then applied
	eng.SetSelected("mass_storage")

	c.Assert(w.requests, HasLen, 2)
	c.Check(w.requests[1], Equals, "mass_storage")
}
