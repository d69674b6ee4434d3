// -*- Mode: Go; indent-tabs-mode: t -*-

/*
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Lesser General Public License version 2.1
 * as published by the Free Software Foundation.
 */

// Package catalog loads the dynamic mode descriptors from a directory of
// *.ini files (spec §4.E) and keeps the active, alphabetically sorted
// catalog that the selection engine and worker consult.
package catalog

import (
	"fmt"

	"github.com/mvo5/goconfigparser"

	"github.com/sailfishos/usb-moded-sub000/modes"
)

// extraSysfsCount is how many android_extra_sysfs_path[N]/_value[N] pairs
// a descriptor may carry (spec §3: "android_extra_sysfs_path[1..4]").
const extraSysfsCount = 4

// Descriptor describes one dynamic mode, parsed from a single *.ini file's
// [info] group (spec §3 ModeDescriptor).
type Descriptor struct {
	ModeName  modes.Name
	ModeModule string

	SysfsPath       string
	SysfsValue      string
	SysfsResetValue string

	ExtraSysfsPath  [extraSysfsCount]string
	ExtraSysfsValue [extraSysfsCount]string

	IDProduct        string
	IDVendorOverride string

	Network          bool
	NetworkInterface string

	MassStorage bool
	Appsync     bool

	NAT              bool
	DHCPServer       bool
	ConnmanTethering string
}

// Clone returns a deep copy, used whenever a descriptor crosses from the
// main thread's catalog into the worker (spec §3: "the worker only ever
// sees a snapshot copy of the descriptor it is currently using").
func (d *Descriptor) Clone() *Descriptor {
	if d == nil {
		return nil
	}
	cp := *d
	return &cp
}

// parseDescriptor builds a Descriptor from an already-loaded ini file's
// [info] group. It returns an error if the minimum required keys (mode
// name, trigger/launch name) are missing, so the caller can discard the
// file with a warning per spec §4.E.
func parseDescriptor(cfg *goconfigparser.ConfigParser) (*Descriptor, error) {
	get := func(key string) string {
		v, _ := cfg.Get("info", key)
		return v
	}
	getBool := func(key string) bool {
		v, _ := cfg.GetBool("info", key)
		return v
	}

	name := get("mode_name")
	if name == "" {
		name = get("name")
	}
	module := get("mode_module")
	if module == "" {
		module = get("launch")
	}
	if name == "" || module == "" {
		return nil, fmt.Errorf("descriptor missing mode name or launcher")
	}

	d := &Descriptor{
		ModeName:         modes.Name(name),
		ModeModule:       module,
		SysfsPath:        get("sysfs_path"),
		SysfsValue:       get("sysfs_value"),
		SysfsResetValue:  get("sysfs_reset_value"),
		IDProduct:        get("idProduct"),
		IDVendorOverride: get("idVendorOverride"),
		Network:          getBool("network"),
		NetworkInterface: get("network_interface"),
		MassStorage:      getBool("mass_storage"),
		Appsync:          getBool("appsync"),
		NAT:              getBool("nat"),
		DHCPServer:       getBool("dhcp_server"),
		ConnmanTethering: get("connman_tethering"),
	}
	for i := 0; i < extraSysfsCount; i++ {
		d.ExtraSysfsPath[i] = get(fmt.Sprintf("android_extra_sysfs_path%d", i+1))
		d.ExtraSysfsValue[i] = get(fmt.Sprintf("android_extra_sysfs_value%d", i+1))
	}
	return d, nil
}
