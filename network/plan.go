// -*- Mode: Go; indent-tabs-mode: t -*-

/*
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Lesser General Public License version 2.1
 * as published by the Free Software Foundation.
 */

// Package network parses the kernel command line's static IP plan and
// writes the udhcpd configuration a dynamic mode's network bring-
// up consumes (SPEC_FULL supplemented feature 3, grounded in the original
// daemon's usb_moded-network.c). The bring-up mechanics themselves
// (invoking ifconfig/ip, starting the DHCP server process) are out of
// scope per spec.md Non-goals; this package only owns the IP plan value
// and the config file it is serialized into.
package network

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Plan is the parsed usb_moded_ip=<client>:<server>:<gw>:<mask>:<host>:
// <dev>:<auto> kernel command-line token (spec §6 "Files consumed").
type Plan struct {
	Client string
	Server string
	Gateway string
	Mask    string
	Host    string
	Device  string
	Auto    bool
}

// ParsePlan extracts and parses the usb_moded_ip= token from a
// /proc/cmdline-style string. It returns ok=false if the token is absent
// or malformed.
func ParsePlan(cmdline string) (Plan, bool) {
	for _, token := range strings.Fields(cmdline) {
		rest, ok := strings.CutPrefix(token, "usb_moded_ip=")
		if !ok {
			continue
		}
		fields := strings.Split(rest, ":")
		if len(fields) != 7 {
			return Plan{}, false
		}
		auto, err := strconv.ParseBool(fields[6])
		if err != nil {
			auto = fields[6] == "1"
		}
		return Plan{
			Client:  fields[0],
			Server:  fields[1],
			Gateway: fields[2],
			Mask:    fields[3],
			Host:    fields[4],
			Device:  fields[5],
			Auto:    auto,
		}, true
	}
	return Plan{}, false
}

// WriteUDHCPDConf writes /run/usb-moded/udhcpd.conf from the plan (spec
// §6 "Files written") and, when linkPath is non-empty, makes
// /etc/udhcpd.conf a symlink to it.
func WriteUDHCPDConf(confPath, linkPath string, p Plan) error {
	var b strings.Builder
	fmt.Fprintf(&b, "interface %s\n", p.Device)
	fmt.Fprintf(&b, "start %s\n", p.Client)
	fmt.Fprintf(&b, "end %s\n", p.Client)
	fmt.Fprintf(&b, "option subnet %s\n", p.Mask)
	fmt.Fprintf(&b, "option router %s\n", p.Gateway)

	if err := os.MkdirAll(filepath.Dir(confPath), 0755); err != nil {
		return err
	}
	if err := os.WriteFile(confPath, []byte(b.String()), 0644); err != nil {
		return err
	}

	if linkPath == "" {
		return nil
	}
	_ = os.Remove(linkPath)
	return os.Symlink(confPath, linkPath)
}
