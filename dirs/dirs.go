// -*- Mode: Go; indent-tabs-mode: t -*-

/*
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Lesser General Public License version 2.1
 * as published by the Free Software Foundation.
 */

// Package dirs centralizes every filesystem path this daemon reads from or
// writes to, so tests can redirect the whole tree under a temporary root
// with a single call to SetRootDir.
package dirs

import (
	"path/filepath"
)

var (
	rootDir string

	// GlobalRootDir is the prefix every path below is joined under. Empty
	// means "/" for the host.
	GlobalRootDir string

	ConfigStaticDir  string
	ConfigOverlay    string
	ConfigLegacyFile string

	ModeCatalogDir     string
	ModeCatalogDiagDir string

	ProcCmdline string
	InitDoneFlag string

	WakeLockFile   string
	WakeUnlockFile string

	SysClassUDC string

	ConfigfsGadgetDir string
	AndroidUsbDir     string

	UdhcpdConfPath string
	UdhcpdConfLink string

	IPForwardFile string
)

func init() {
	SetRootDir("")
}

// SetRootDir reasserts every path in this package relative to root. An
// empty root means the real host filesystem.
func SetRootDir(root string) {
	if root == "" {
		root = "/"
	}
	rootDir = root
	GlobalRootDir = root

	ConfigStaticDir = filepath.Join(root, "etc/usb-moded")
	ConfigOverlay = filepath.Join(root, "var/lib/usb-moded/usb-moded.ini")
	ConfigLegacyFile = filepath.Join(root, "etc/usb-moded/usb-moded.ini")

	ModeCatalogDir = filepath.Join(root, "etc/usb-moded/run")
	ModeCatalogDiagDir = filepath.Join(root, "etc/usb-moded/run-diag")

	ProcCmdline = filepath.Join(root, "proc/cmdline")
	InitDoneFlag = filepath.Join(root, "run/systemd/boot-status/init-done")

	WakeLockFile = filepath.Join(root, "sys/power/wake_lock")
	WakeUnlockFile = filepath.Join(root, "sys/power/wake_unlock")

	SysClassUDC = filepath.Join(root, "sys/class/udc")

	ConfigfsGadgetDir = filepath.Join(root, "sys/kernel/config/usb_gadget/g1")
	AndroidUsbDir = filepath.Join(root, "sys/class/android_usb/android0")

	UdhcpdConfPath = filepath.Join(root, "run/usb-moded/udhcpd.conf")
	UdhcpdConfLink = filepath.Join(root, "etc/udhcpd.conf")

	IPForwardFile = filepath.Join(root, "proc/sys/net/ipv4/ip_forward")
}

// RootDir returns the currently configured root ("/" by default).
func RootDir() string {
	return rootDir
}
