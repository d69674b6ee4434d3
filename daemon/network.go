// -*- Mode: Go; indent-tabs-mode: t -*-

/*
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Lesser General Public License version 2.1
 * as published by the Free Software Foundation.
 */

package daemon

import (
	"context"
	"os"

	"github.com/sailfishos/usb-moded-sub000/catalog"
	"github.com/sailfishos/usb-moded-sub000/dirs"
	"github.com/sailfishos/usb-moded-sub000/logger"
	"github.com/sailfishos/usb-moded-sub000/network"
)

// networkController writes the configuration files a dynamic mode's
// network bring-up reads (spec §6 "Files written"); actually invoking
// `ip`/starting the DHCP server process stays a Non-goal, so Up/Down only
// own the udhcpd.conf writer and the NAT ip_forward toggle.
type networkController struct {
	plan network.Plan
}

func (n *networkController) Up(ctx context.Context, d *catalog.Descriptor) error {
	plan := n.plan
	if plan.Device == "" {
		plan.Device = d.NetworkInterface
	}
	if err := network.WriteUDHCPDConf(dirs.UdhcpdConfPath, dirs.UdhcpdConfLink, plan); err != nil {
		logger.Warningf("daemon: writing udhcpd.conf: %v", err)
	}
	if d.NAT {
		if err := os.WriteFile(dirs.IPForwardFile, []byte("1\n"), 0644); err != nil {
			logger.Warningf("daemon: enabling ip_forward: %v", err)
		}
	}
	return nil
}

func (n *networkController) Down(ctx context.Context) error {
	return nil
}
