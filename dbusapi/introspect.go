// -*- Mode: Go; indent-tabs-mode: t -*-

/*
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Lesser General Public License version 2.1
 * as published by the Free Software Foundation.
 */

package dbusapi

import (
	"fmt"
	"strings"

	"github.com/godbus/dbus/v5/introspect"
)

// IntrospectXML renders the static member table as the introspection
// document godbus serves for Interface (spec §4.I, §6 "dbus-introspect-
// xml ... print and exit").
func IntrospectXML() string {
	iface := introspect.Interface{Name: Interface}
	for _, m := range Methods {
		iface.Methods = append(iface.Methods, introspect.Method{Name: m.Name, Args: argsToIntrospect(m.Args)})
	}
	for _, sig := range Signals {
		iface.Signals = append(iface.Signals, introspect.Signal{Name: sig.Name, Args: argsToIntrospect(sig.Args)})
	}

	node := introspect.Node{
		Name:       ObjectPath,
		Interfaces: []introspect.Interface{introspect.IntrospectData, iface},
	}
	return introspect.NewIntrospectable(&node).String()
}

func argsToIntrospect(args []Arg) []introspect.Arg {
	out := make([]introspect.Arg, 0, len(args))
	for _, a := range args {
		direction := "in"
		if a.Dir == dirOut {
			direction = "out"
		}
		out = append(out, introspect.Arg{Name: a.Name, Type: a.Type, Direction: direction})
	}
	return out
}

// BusConfigXML renders a dbus-daemon policy fragment restricting
// OwnerOnly methods to the root user and allowing everyone else to call
// read-only methods plus SetMode (spec §6 "access control").
func BusConfigXML() string {
	var b strings.Builder
	b.WriteString(`<!DOCTYPE busconfig PUBLIC "-//freedesktop//DTD D-BUS Bus Configuration 1.0//EN"
 "http://www.freedesktop.org/standards/dbus/1.0/busconfig.dtd">
<busconfig>
  <policy user="root">
    <allow own="` + BusName + `"/>
`)
	for _, m := range Methods {
		fmt.Fprintf(&b, "    <allow send_destination=\"%s\" send_interface=\"%s\" send_member=\"%s\"/>\n", BusName, Interface, m.Name)
	}
	b.WriteString("  </policy>\n  <policy context=\"default\">\n")
	for _, m := range Methods {
		if m.OwnerOnly || (!m.ReadOnly && m.Name != "SetMode") {
			continue
		}
		fmt.Fprintf(&b, "    <allow send_destination=\"%s\" send_interface=\"%s\" send_member=\"%s\"/>\n", BusName, Interface, m.Name)
	}
	b.WriteString("  </policy>\n</busconfig>\n")
	return b.String()
}
