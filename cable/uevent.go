// -*- Mode: Go; indent-tabs-mode: t -*-

/*
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Lesser General Public License version 2.1
 * as published by the Free Software Foundation.
 */

package cable

import (
	"bytes"
	"strings"
)

// Uevent is a parsed NETLINK_KOBJECT_UEVENT message: the action/devpath
// header line followed by NUL-separated KEY=VALUE environment pairs.
type Uevent struct {
	Header string // e.g. "change@/devices/.../power_supply/usb"
	Env    map[string]string
}

// Subsystem returns the kernel subsystem this event belongs to ("SUBSYSTEM"
// environment key), used to route events to the power-supply, extcon, or
// android_usb handling (spec §4.F).
func (u Uevent) Subsystem() string {
	return u.Env["SUBSYSTEM"]
}

// parseUevent parses the raw netlink payload of a single uevent message.
// The kernel's libudev-monitor format prefixes the payload with
// "libudev\0" plus a binary header; the simpler kernel broadcast format
// used here is a header line followed by NUL-terminated KEY=VALUE pairs,
// which is what a raw NETLINK_KOBJECT_UEVENT socket (as opposed to the
// udev userspace socket) delivers.
func parseUevent(payload []byte) (Uevent, bool) {
	parts := bytes.Split(payload, []byte{0})
	if len(parts) == 0 || len(parts[0]) == 0 {
		return Uevent{}, false
	}

	u := Uevent{
		Header: string(parts[0]),
		Env:    map[string]string{},
	}
	for _, p := range parts[1:] {
		if len(p) == 0 {
			continue
		}
		kv := strings.SplitN(string(p), "=", 2)
		if len(kv) != 2 {
			continue
		}
		u.Env[kv[0]] = kv[1]
	}
	return u, true
}
