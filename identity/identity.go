// -*- Mode: Go; indent-tabs-mode: t -*-

/*
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Lesser General Public License version 2.1
 * as published by the Free Software Foundation.
 */

// Package identity seeds the device-identifying gadget attributes (vendor
// id, product id, manufacturer, product, serial) read once at startup,
// grounded on the original daemon's usb_moded-ssu.c (SPEC_FULL
// supplemented feature 2).
package identity

import (
	"os"
	"strings"
)

// Info holds the identity attributes the sysfs/configfs actuator writes
// during gadget initialization (spec §4.A "Initialization reads device-
// identifying attributes").
type Info struct {
	VendorID         string
	ProductID        string
	Manufacturer     string
	Product          string
	Serial           string
	ChargerProductID string
}

// SettingsReader is the narrow view of the settings store identity
// seeding needs, avoiding a dependency from this package back onto the
// full settings.Store type.
type SettingsReader interface {
	GetString(group, key string) string
}

// Load builds Info from the settings store, falling back to the kernel
// command line's androidboot.serialno= token for the serial when the
// settings store has none (spec §4.A, SPEC_FULL supplemented feature 2).
func Load(store SettingsReader, cmdline string) Info {
	info := Info{
		VendorID:         store.GetString("identity", "vendor_id"),
		ProductID:        store.GetString("identity", "product_id"),
		Manufacturer:     store.GetString("identity", "manufacturer"),
		Product:          store.GetString("identity", "product"),
		Serial:           store.GetString("identity", "serial"),
		ChargerProductID: store.GetString("identity", "charger_product_id"),
	}
	if info.Serial == "" {
		info.Serial = ParseSerial(cmdline)
	}
	return info
}

// ParseSerial extracts androidboot.serialno=<value> from a /proc/cmdline
// style string.
func ParseSerial(cmdline string) string {
	for _, token := range strings.Fields(cmdline) {
		if v, ok := strings.CutPrefix(token, "androidboot.serialno="); ok {
			return v
		}
	}
	return ""
}

// ReadCmdline reads /proc/cmdline (or the test-overridable path), never
// failing the caller: a missing or unreadable file just yields "".
func ReadCmdline(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return string(data)
}
