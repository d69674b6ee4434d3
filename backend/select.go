// -*- Mode: Go; indent-tabs-mode: t -*-

/*
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Lesser General Public License version 2.1
 * as published by the Free Software Foundation.
 */

package backend

import (
	"context"
	"fmt"

	"github.com/sailfishos/usb-moded-sub000/catalog"
	"github.com/sailfishos/usb-moded-sub000/logger"
)

// Selector picks one of the three gadget-programming strategies at
// startup and never switches again for the lifetime of the process (spec
// §4.C: "probing order is configfs, then android_usb, then kernel
// modules; whichever is found usable is used for the remainder of the
// daemon's life").
type Selector struct {
	sysfs *SysfsBackend // non-nil for configfs or android_usb
	kmod  *KmodBackend  // non-nil for the legacy module backend

	procModulesPath string
	massStorageDir  string

	chargerProductID string
}

// DefaultChargerProductID is the product id apply("charging") writes when
// nothing overrides it, grounded on the original daemon's
// configfs_set_charging_mode hard-coded "0AFE" (marked there as needing to
// become configurable; spec §4.C now models it as a setting).
const DefaultChargerProductID = "0AFE"

// Paths bundles the filesystem locations the selector needs to probe.
type Paths struct {
	ConfigfsGadgetDir string
	AndroidUSBDir     string
	UDCClassDir       string
	ProcModules       string
}

// Select probes configfs, then android_usb, then falls back to the
// kernel-module backend, returning whichever is usable.
func Select(paths Paths, functions *FunctionMap, moduleOf map[string]string) (*Selector, error) {
	switch {
	case ProbeConfigfs(paths.ConfigfsGadgetDir):
		logger.Noticef("backend: selected configfs gadget backend")
		return &Selector{sysfs: NewSysfsBackend(KindConfigfs, paths.ConfigfsGadgetDir, paths.UDCClassDir, functions), chargerProductID: DefaultChargerProductID}, nil
	case ProbeAndroidUSB(paths.AndroidUSBDir):
		logger.Noticef("backend: selected android_usb gadget backend")
		return &Selector{sysfs: NewSysfsBackend(KindAndroidUSB, paths.AndroidUSBDir, paths.UDCClassDir, functions), chargerProductID: DefaultChargerProductID}, nil
	default:
		logger.Noticef("backend: falling back to kernel-module backend")
		return &Selector{kmod: NewKmodBackend(moduleOf), procModulesPath: paths.ProcModules, chargerProductID: DefaultChargerProductID}, nil
	}
}

// SetChargerProductID overrides the product id apply("charging") writes,
// e.g. from the settings store's "[identity] charger_product_id" (spec
// §4.C "a configurable charger product id").
func (s *Selector) SetChargerProductID(id string) {
	if id != "" {
		s.chargerProductID = id
	}
}

// ResolveFunction maps a short function name through the active function
// map, passing it through unchanged for the kernel-module strategy (which
// has no configfs-style function directories to resolve against).
func (s *Selector) ResolveFunction(name string) string {
	if s.sysfs != nil {
		return s.sysfs.ResolveFunction(name)
	}
	return name
}

// IsSysfs reports whether the sysfs/configfs strategy was selected, which
// callers need to know to decide whether UDC enable/disable applies.
func (s *Selector) IsSysfs() bool { return s.sysfs != nil }

// Apply programs the gadget for the given descriptor (spec §4.A/§4.C). For
// the sysfs strategies this sets functions, ids, and extra attributes then
// enables the UDC; for the kernel-module strategy it swaps the loaded
// module.
func (s *Selector) Apply(ctx context.Context, d *catalog.Descriptor, massStorageFiles map[int]string) error {
	if s.sysfs != nil {
		return s.applySysfs(d, massStorageFiles)
	}
	return s.kmod.SwitchTo(ctx, s.procModulesPath, string(d.ModeName), map[string]string{
		"idProduct": d.IDProduct,
	})
}

func (s *Selector) applySysfs(d *catalog.Descriptor, massStorageFiles map[int]string) error {
	s.sysfs.SetUDC(false)

	if !s.sysfs.SetFunction(d.ModeModule) {
		return fmt.Errorf("backend: failed to set function %q for mode %s", d.ModeModule, d.ModeName)
	}
	if d.IDProduct != "" {
		s.sysfs.SetProductID(d.IDProduct)
	}
	if d.IDVendorOverride != "" {
		s.sysfs.SetVendorID(d.IDVendorOverride)
	}
	if d.SysfsPath != "" && d.SysfsValue != "" {
		s.sysfs.Write(d.SysfsPath, d.SysfsValue)
	}
	for i := range d.ExtraSysfsPath {
		s.sysfs.WriteExtraAttr(d.ExtraSysfsPath[i], d.ExtraSysfsValue[i])
	}

	if d.MassStorage && len(massStorageFiles) > 0 {
		ms := NewMassStorage(s.sysfs, s.sysfs.functionsDir()+"/"+d.ModeModule)
		for lun, path := range massStorageFiles {
			ms.SetBackingFile(lun, path, true, false)
		}
	}

	if !s.sysfs.SetUDC(true) {
		return fmt.Errorf("backend: failed to enable UDC for mode %s", d.ModeName)
	}
	return nil
}

// ApplyCharging implements spec §4.C's `apply("charging")`: sets the
// `mass_storage` function, writes the configurable charger product id, and
// enables the UDC, grounded on the original daemon's
// configfs_set_charging_mode (sysfs strategies) and the kernel-module
// switch_to path (legacy strategy).
func (s *Selector) ApplyCharging(ctx context.Context) error {
	if s.sysfs != nil {
		s.sysfs.SetUDC(false)
		if !s.sysfs.SetFunction("mass_storage") {
			return fmt.Errorf("backend: failed to set mass_storage function for charging")
		}
		s.sysfs.SetProductID(s.chargerProductID)
		if !s.sysfs.SetUDC(true) {
			return fmt.Errorf("backend: failed to enable UDC for charging")
		}
		return nil
	}
	return s.kmod.SwitchTo(ctx, s.procModulesPath, "charging_only", map[string]string{
		"idProduct": s.chargerProductID,
	})
}

// SeedIdentity programs the device-identifying gadget attributes once at
// startup (spec §4.A "Initialization reads device-identifying
// attributes", SPEC_FULL supplemented feature 2); it is a no-op for the
// kernel-module backend, which has no per-attribute sysfs surface.
func (s *Selector) SeedIdentity(vendorID, productID, manufacturer, product, serial string) {
	if s.sysfs == nil {
		return
	}
	if vendorID != "" {
		s.sysfs.SetVendorID(vendorID)
	}
	if productID != "" {
		s.sysfs.SetProductID(productID)
	}
	s.sysfs.SetStringAttr("manufacturer", manufacturer)
	s.sysfs.SetStringAttr("product", product)
	s.sysfs.SetStringAttr("serialnumber", serial)
}

// Teardown resets the descriptor's sysfs_reset_value (if any) and, for the
// sysfs strategies, disables the UDC and clears the function list (spec
// §4.A teardown semantics, §4.H transition sequence "teardown previous
// descriptor").
func (s *Selector) Teardown(ctx context.Context, d *catalog.Descriptor) error {
	if d != nil && d.SysfsPath != "" && d.SysfsResetValue != "" && s.sysfs != nil {
		s.sysfs.Write(d.SysfsPath, d.SysfsResetValue)
	}
	if s.sysfs != nil {
		s.sysfs.SetUDC(false)
		s.sysfs.SetFunction("none")
		return nil
	}
	return s.kmod.Unload(ctx, s.procModulesPath)
}

// CheckDrift delegates to the sysfs actuator's tracked-write verification;
// a no-op for the kernel-module strategy, which does not track individual
// attribute writes (spec §4.H heartbeat).
func (s *Selector) CheckDrift() {
	if s.sysfs != nil {
		s.sysfs.CheckDrift()
	}
}
