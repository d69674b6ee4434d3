// -*- Mode: Go; indent-tabs-mode: t -*-

/*
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Lesser General Public License version 2.1
 * as published by the Free Software Foundation.
 */

// Package dbusapi exposes the daemon's RPC surface over D-Bus (spec
// §4.I): methods, broadcast signals, and the introspection/bus-policy
// XML generated from one static member table.
package dbusapi

// BusName, ObjectPath and Interface are the fixed strings spec §6 says
// "service name, object path, method and signal member names are fixed
// strings".
const (
	BusName    = "com.meego.usb_moded"
	ObjectPath = "/com/meego/usb_moded"
	Interface  = "com.meego.usb_moded"
)

// argDir distinguishes input arguments from output arguments (method
// results and signal fields) in the member table's uniform Arg type.
type argDir int

const (
	dirIn argDir = iota
	dirOut
)

// Arg is one method argument or signal field, named for introspection XML.
type Arg struct {
	Name string
	Type string // D-Bus signature character(s): "s", "b", "a{sv}", ...
	Dir  argDir
}

// Method describes one exported method's signature, and whether it is
// restricted to the owner uid (spec §6 "Hide/Unhide/Whitelist mutation
// restricted to owner").
type Method struct {
	Name       string
	Args       []Arg
	OwnerOnly  bool
	ReadOnly   bool // read-only methods are callable by any uid (spec §6)
}

// Signal describes one broadcast signal's fields.
type Signal struct {
	Name string
	Args []Arg
}

func in(name, typ string) Arg  { return Arg{Name: name, Type: typ, Dir: dirIn} }
func out(name, typ string) Arg { return Arg{Name: name, Type: typ, Dir: dirOut} }

// Methods is the static member table driving both the godbus export and
// the introspection/bus-policy XML (spec §4.I "Introspect surface is
// generated from a static table").
var Methods = []Method{
	{Name: "ModeRequest", Args: []Arg{out("mode", "s")}, ReadOnly: true},
	{Name: "GetTargetState", Args: []Arg{out("mode", "s")}, ReadOnly: true},
	{Name: "GetTargetConfig", Args: []Arg{out("config", "a{sv}")}, ReadOnly: true},
	{Name: "SetMode", Args: []Arg{in("mode", "s")}},
	{Name: "SetConfig", Args: []Arg{in("mode", "s")}},
	{Name: "GetConfig", Args: []Arg{out("mode", "s")}, ReadOnly: true},
	{Name: "Hide", Args: []Arg{in("mode", "s")}, OwnerOnly: true},
	{Name: "Unhide", Args: []Arg{in("mode", "s")}, OwnerOnly: true},
	{Name: "GetHidden", Args: []Arg{out("modes", "s")}, ReadOnly: true},
	{Name: "GetWhitelist", Args: []Arg{out("modes", "s")}, ReadOnly: true},
	{Name: "SetWhitelist", Args: []Arg{in("modes", "s")}, OwnerOnly: true},
	{Name: "SetInWhitelist", Args: []Arg{in("mode", "s"), in("allowed", "b")}, OwnerOnly: true},
	{Name: "GetModes", Args: []Arg{out("modes", "s")}, ReadOnly: true},
	{Name: "GetAvailableModes", Args: []Arg{out("modes", "s")}, ReadOnly: true},
	{Name: "GetAvailableModesForUser", Args: []Arg{in("uid", "i"), out("modes", "s")}, ReadOnly: true},
	{Name: "NetworkSet", Args: []Arg{in("key", "s"), in("value", "s")}},
	{Name: "NetworkGet", Args: []Arg{in("key", "s"), out("value", "s")}, ReadOnly: true},
	{Name: "ClearUserConfig", Args: []Arg{in("uid", "i")}},
	{Name: "RescueOff", Args: nil},
}

// Signals is the static signal table (spec §4.I "one per state change,
// not coalesced").
var Signals = []Signal{
	{Name: "CurrentState", Args: []Arg{out("mode", "s")}},
	{Name: "TargetState", Args: []Arg{out("mode", "s")}},
	{Name: "TargetStateConfig", Args: []Arg{out("config", "a{sv}")}},
	{Name: "Event", Args: []Arg{out("label", "s")}},
	{Name: "ConfigChanged", Args: []Arg{out("group", "s"), out("key", "s")}},
	{Name: "SupportedModesChanged", Args: []Arg{out("modes", "s")}},
	{Name: "AvailableModesChanged", Args: []Arg{out("modes", "s")}},
	{Name: "HiddenModesChanged", Args: []Arg{out("modes", "s")}},
	{Name: "WhitelistedModesChanged", Args: []Arg{out("modes", "s")}},
	{Name: "Error", Args: []Arg{out("message", "s")}},
}
