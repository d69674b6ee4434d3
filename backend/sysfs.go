// -*- Mode: Go; indent-tabs-mode: t -*-

/*
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Lesser General Public License version 2.1
 * as published by the Free Software Foundation.
 */

package backend

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/sailfishos/usb-moded-sub000/logger"
)

// Kind distinguishes the two sysfs-style gadget hierarchies this actuator
// can drive (spec §4.A/§4.C).
type Kind int

const (
	KindConfigfs Kind = iota
	KindAndroidUSB
)

// SysfsBackend programs the USB gadget via configfs (preferred) or the
// legacy android_usb sysfs tree (spec §4.A).
type SysfsBackend struct {
	kind Kind

	gadgetDir   string // configfs gadget root, or android_usb device dir
	udcClassDir string // /sys/class/udc

	functions *FunctionMap
	tracked   *TrackedWrites
}

// NewSysfsBackend constructs the actuator. gadgetDir is the configfs
// gadget directory (e.g. .../usb_gadget/g1) when kind is KindConfigfs, or
// the android0 device directory when kind is KindAndroidUSB.
func NewSysfsBackend(kind Kind, gadgetDir, udcClassDir string, functions *FunctionMap) *SysfsBackend {
	return &SysfsBackend{
		kind:        kind,
		gadgetDir:   gadgetDir,
		udcClassDir: udcClassDir,
		functions:   functions,
		tracked:     NewTrackedWrites(),
	}
}

// ProbeConfigfs reports whether the configfs gadget is usable: the gadget
// base directory and its UDC control file both exist (spec §4.A
// "Probing").
func ProbeConfigfs(gadgetDir string) bool {
	if _, err := os.Stat(gadgetDir); err != nil {
		return false
	}
	if _, err := os.Stat(filepath.Join(gadgetDir, "UDC")); err != nil {
		return false
	}
	return true
}

// ProbeAndroidUSB reports whether android_usb is usable: the android0
// enable file exists (spec §4.A "Probing").
func ProbeAndroidUSB(androidDir string) bool {
	_, err := os.Stat(filepath.Join(androidDir, "enable"))
	return err == nil
}

func (b *SysfsBackend) udcFile() string {
	if b.kind == KindConfigfs {
		return filepath.Join(b.gadgetDir, "UDC")
	}
	return filepath.Join(b.gadgetDir, "enable")
}

func (b *SysfsBackend) functionsDir() string {
	return filepath.Join(b.gadgetDir, "functions")
}

func (b *SysfsBackend) activeConfigDir() string {
	return filepath.Join(b.gadgetDir, "configs", "c.1")
}

// Write appends a newline and writes text to path, logging and recording
// the intended value on success; a nonexistent target is a warning and a
// failed ack, not a panic (spec §4.A write).
func (b *SysfsBackend) Write(path, text string) bool {
	if _, err := os.Stat(path); err != nil {
		logger.Warningf("backend: write target missing: %s", path)
		return false
	}
	if err := os.WriteFile(path, []byte(text+"\n"), 0644); err != nil {
		// Writing "none" to clear the ffs function list legitimately
		// returns EINVAL from the kernel; spec §4.A treats that specific
		// case as silent success.
		if text == "none" && strings.Contains(err.Error(), "invalid argument") {
			b.tracked.Record(path, text)
			return true
		}
		logger.Warningf("backend: writing %q to %s: %v", text, path, err)
		return false
	}
	b.tracked.Record(path, text)
	return true
}

// SetFunction disables the UDC, clears the active config's existing
// function symlinks, then symlinks each named function directory into the
// active config (spec §4.A set_function). Pass "" (or "none") to clear
// all functions without adding new ones.
func (b *SysfsBackend) SetFunction(names string) bool {
	b.SetUDC(false)

	cfgDir := b.activeConfigDir()
	entries, err := os.ReadDir(cfgDir)
	if err != nil {
		logger.Warningf("backend: reading active config dir %s: %v", cfgDir, err)
	} else {
		for _, e := range entries {
			if e.Type()&os.ModeSymlink == 0 {
				continue
			}
			if err := os.Remove(filepath.Join(cfgDir, e.Name())); err != nil {
				logger.Warningf("backend: removing function symlink %s: %v", e.Name(), err)
			}
		}
	}

	if names == "" || names == "none" {
		return true
	}

	ok := true
	for _, raw := range strings.Split(names, ",") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		target := b.functions.Resolve(raw)
		src := filepath.Join(b.functionsDir(), target)
		dst := filepath.Join(cfgDir, target)
		if err := os.Symlink(src, dst); err != nil && !os.IsExist(err) {
			logger.Warningf("backend: symlinking function %s: %v", target, err)
			ok = false
		}
	}
	return ok
}

// ResolveFunction maps a short function name to its configfs directory
// name via the backend's function map (spec §4.A set_function).
func (b *SysfsBackend) ResolveFunction(name string) string {
	return b.functions.Resolve(name)
}

// SetUDC enables or disables the gadget by writing the first UDC name
// from /sys/class/udc, or the empty string to disable (spec §4.A
// set_udc). Writes are skipped if the file already holds the desired
// value.
func (b *SysfsBackend) SetUDC(enable bool) bool {
	want := ""
	if enable {
		name, err := firstUDC(b.udcClassDir)
		if err != nil {
			logger.Warningf("backend: no UDC found under %s: %v", b.udcClassDir, err)
			return false
		}
		want = name
	}

	current, _ := os.ReadFile(b.udcFile())
	if strings.TrimSpace(string(current)) == want {
		return true
	}
	return b.Write(b.udcFile(), want)
}

func firstUDC(classDir string) (string, error) {
	entries, err := os.ReadDir(classDir)
	if err != nil {
		return "", err
	}
	for _, e := range entries {
		return e.Name(), nil
	}
	return "", fmt.Errorf("no UDC devices present")
}

// canonicalHex canonicalizes a hexadecimal id string to 4 digits,
// lower-case, optionally prefixed with "0x" for the configfs form (spec
// §4.A set_vendor_id / set_product_id).
func canonicalHex(id string, configfsForm bool) (string, error) {
	id = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(id)), "0x")
	n, err := strconv.ParseUint(id, 16, 16)
	if err != nil {
		return "", fmt.Errorf("invalid hex id %q: %w", id, err)
	}
	s := fmt.Sprintf("%04x", n)
	if configfsForm {
		return "0x" + s, nil
	}
	return s, nil
}

// SetVendorID writes the vendor id attribute.
func (b *SysfsBackend) SetVendorID(id string) bool {
	return b.setIDAttr("idVendor", id)
}

// SetProductID writes the product id attribute.
func (b *SysfsBackend) SetProductID(id string) bool {
	return b.setIDAttr("idProduct", id)
}

func (b *SysfsBackend) setIDAttr(attr, id string) bool {
	canon, err := canonicalHex(id, b.kind == KindConfigfs)
	if err != nil {
		logger.Warningf("backend: %s: %v", attr, err)
		return false
	}
	return b.Write(filepath.Join(b.gadgetDir, attr), canon)
}

// stringAttrPath returns the path of the named English-locale USB string
// descriptor: configfs keeps them under strings/0x409, android_usb
// exposes them directly as iManufacturer/iProduct/iSerial files in the
// gadget directory.
func (b *SysfsBackend) stringAttrPath(name string) string {
	if b.kind == KindConfigfs {
		return filepath.Join(b.gadgetDir, "strings", "0x409", name)
	}
	switch name {
	case "manufacturer":
		return filepath.Join(b.gadgetDir, "iManufacturer")
	case "product":
		return filepath.Join(b.gadgetDir, "iProduct")
	case "serialnumber":
		return filepath.Join(b.gadgetDir, "iSerial")
	default:
		return filepath.Join(b.gadgetDir, name)
	}
}

// SetStringAttr writes one of the manufacturer/product/serialnumber USB
// string descriptors, skipping silently when value is empty (spec §4.A
// "Initialization reads device-identifying attributes").
func (b *SysfsBackend) SetStringAttr(name, value string) bool {
	if value == "" {
		return true
	}
	return b.Write(b.stringAttrPath(name), value)
}

// WriteExtraAttr writes one of a descriptor's
// android_extra_sysfs_path[N]/_value[N] pairs.
func (b *SysfsBackend) WriteExtraAttr(path, value string) bool {
	if path == "" {
		return true
	}
	return b.Write(path, value)
}

// Reset clears tracked state for path, used after a lun or function is
// torn down.
func (b *SysfsBackend) Reset(path string) {
	b.tracked.Forget(path)
}

// Tracked exposes the tracked-writes map for the worker's heartbeat drift
// check (spec §4.H).
func (b *SysfsBackend) Tracked() *TrackedWrites {
	return b.tracked
}

// CheckDrift re-reads every tracked path and logs a warning for any whose
// current content no longer matches what was last written (spec §4.H
// heartbeat: "re-reads every tracked sysfs path to detect drift").
func (b *SysfsBackend) CheckDrift() {
	for path, want := range b.tracked.Paths() {
		got, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		if strings.TrimSpace(string(got)) != want {
			logger.Warningf("backend: drift detected on %s: want %q, got %q", path, want, strings.TrimSpace(string(got)))
		}
	}
}
