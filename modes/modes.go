// -*- Mode: Go; indent-tabs-mode: t -*-

/*
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Lesser General Public License version 2.1
 * as published by the Free Software Foundation.
 */

// Package modes defines ModeName, the short string identifier used
// throughout the daemon, and the fixed set of internal modes that are
// always defined regardless of what the mode catalog loads (spec §3).
package modes

// Name is a USB mode identifier. Two disjoint subsets exist: Internal
// (always defined, listed below) and Dynamic (loaded from catalog
// descriptors at runtime, e.g. "mass_storage", "mtp_mode").
type Name string

// Internal modes, always defined.
const (
	Undefined            Name = "undefined"
	Busy                 Name = "busy"
	Ask                  Name = "ask"
	ChargingOnly         Name = "charging_only"
	ChargingOnlyFallback Name = "charging_only_fallback"
	DedicatedCharger     Name = "dedicated_charger"
)

// internalSet lists every mode that is always defined, independent of the
// dynamic catalog.
var internalSet = map[Name]bool{
	Undefined:            true,
	Busy:                 true,
	Ask:                  true,
	ChargingOnly:         true,
	ChargingOnlyFallback: true,
	DedicatedCharger:     true,
}

// IsInternal reports whether m is one of the always-defined internal modes.
func IsInternal(m Name) bool {
	return internalSet[m]
}

// IsChargingLike reports whether m is one of the modes the worker maps
// straight onto the charging hardware configuration (spec §4.H step 3).
func IsChargingLike(m Name) bool {
	switch m {
	case Undefined, Ask, ChargingOnlyFallback, ChargingOnly, DedicatedCharger:
		return true
	default:
		return false
	}
}

// MapToHardware collapses the charging-like internal modes onto the single
// "charging_only" hardware configuration; every other mode (dynamic or
// Busy, which never reaches the worker) maps to itself (spec §4.H step 3).
func MapToHardware(m Name) Name {
	if IsChargingLike(m) {
		return ChargingOnly
	}
	return m
}

// MapToExternal maps the internal fallback mode onto the name external
// observers are told, per spec §4.I ("ModeRequest ... maps
// charging_only_fallback to charging_only for outside consumers").
func MapToExternal(m Name) Name {
	if m == ChargingOnlyFallback {
		return ChargingOnly
	}
	return m
}
