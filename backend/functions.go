// -*- Mode: Go; indent-tabs-mode: t -*-

/*
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Lesser General Public License version 2.1
 * as published by the Free Software Foundation.
 */

package backend

// FunctionMap translates the short function names used in mode
// descriptors and settings into the configfs function-directory names
// that get symlinked into the active configuration (spec §4.A
// set_function: "mass_storage -> mass_storage.usb0, rndis ->
// rndis_bam.rndis, mtp/ffs -> ffs.mtp, configurable via the settings
// store").
type FunctionMap struct {
	entries map[string]string
}

// DefaultFunctionMap returns the built-in mapping table.
func DefaultFunctionMap() *FunctionMap {
	return &FunctionMap{entries: map[string]string{
		"mass_storage": "mass_storage.usb0",
		"rndis":        "rndis_bam.rndis",
		"mtp":          "ffs.mtp",
		"ffs":          "ffs.mtp",
	}}
}

// Override replaces or adds an entry, used when the settings store
// carries a "[functions]" override group.
func (m *FunctionMap) Override(name, target string) {
	m.entries[name] = target
}

// Resolve maps a short function name to its configfs directory name,
// passing unrecognized names through unchanged (a descriptor may already
// name the full function directory).
func (m *FunctionMap) Resolve(name string) string {
	if target, ok := m.entries[name]; ok {
		return target
	}
	return name
}
