// -*- Mode: Go; indent-tabs-mode: t -*-

/*
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Lesser General Public License version 2.1
 * as published by the Free Software Foundation.
 */

package main

import (
	"context"
	"fmt"
	"os"

	flags "github.com/jessevdk/go-flags"
	"github.com/godbus/dbus/v5"

	"github.com/sailfishos/usb-moded-sub000/daemon"
	"github.com/sailfishos/usb-moded-sub000/dbusapi"
	"github.com/sailfishos/usb-moded-sub000/logger"
)

type options struct {
	Fallback      bool `long:"fallback" description:"pretend the cable is always connected to a PC"`
	Diag          bool `long:"diag" description:"use the diagnostic mode catalog"`
	Rescue        bool `long:"rescue" description:"allow dynamic modes before init-done or with the device locked, once"`
	MaxCableDelay int  `long:"max-cable-delay" description:"cable debounce delay in milliseconds (clamped 0-4000)" default:"400"`
	Systemd       bool `long:"systemd" description:"emit a systemd readiness notification and honor the watchdog"`

	DBusIntrospectXML bool `long:"dbus-introspect-xml" description:"print the D-Bus introspection XML and exit"`
	DBusBusConfigXML  bool `long:"dbus-busconfig-xml" description:"print the D-Bus policy XML and exit"`

	Verbose bool `short:"v" long:"verbose" description:"enable debug logging"`
	Quiet   bool `short:"q" long:"quiet" description:"only log warnings and errors"`
}

func main() {
	var opts options
	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.Parse(); err != nil {
		if flags.WroteHelp(err) {
			os.Exit(0)
		}
		os.Exit(1)
	}

	if opts.DBusIntrospectXML {
		fmt.Println(dbusapi.IntrospectXML())
		return
	}
	if opts.DBusBusConfigXML {
		fmt.Println(dbusapi.BusConfigXML())
		return
	}

	logger.SetVerbose(opts.Verbose)
	logger.SetQuiet(opts.Quiet)

	conn, err := dbus.SystemBus()
	if err != nil {
		logger.Errorf("usb-moded: connecting to the system bus: %v", err)
		os.Exit(1)
	}
	defer conn.Close()

	cfg := daemon.Config{
		Fallback:      opts.Fallback,
		Diag:          opts.Diag,
		Rescue:        opts.Rescue,
		MaxCableDelay: daemon.ClampMaxCableDelay(opts.MaxCableDelay),
		Systemd:       opts.Systemd,
	}

	d, err := daemon.New(cfg, conn)
	if err != nil {
		logger.Errorf("usb-moded: initialization failed: %v", err)
		os.Exit(1)
	}

	logger.Noticef("usb-moded: starting")
	if err := d.Run(context.Background()); err != nil {
		logger.Errorf("usb-moded: %v", err)
		os.Exit(1)
	}
}
