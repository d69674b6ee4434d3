// -*- Mode: Go; indent-tabs-mode: t -*-

/*
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Lesser General Public License version 2.1
 * as published by the Free Software Foundation.
 */

package cable

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// netlinkKobjectUevent is the netlink multicast group carrying kernel
// uevent broadcasts (spec §4.F: "a single udev-monitor file descriptor
// drives an I/O watch"). golang.org/x/sys/unix is the teacher dependency
// exercised here instead of a higher-level udev library, none of which is
// present anywhere in the retrieved example pack.
const netlinkKobjectUevent = 1

// Monitor wraps the raw netlink socket the main event loop polls.
type Monitor struct {
	fd int
}

// OpenMonitor binds a NETLINK_KOBJECT_UEVENT socket to the kernel
// broadcast group, mirroring what libudev's udev_monitor_new_from_netlink
// does for the "kernel" source.
func OpenMonitor() (*Monitor, error) {
	fd, err := unix.Socket(unix.AF_NETLINK, unix.SOCK_RAW|unix.SOCK_CLOEXEC, unix.NETLINK_KOBJECT_UEVENT)
	if err != nil {
		return nil, fmt.Errorf("cable: opening netlink uevent socket: %w", err)
	}

	addr := &unix.SockaddrNetlink{
		Family: unix.AF_NETLINK,
		Groups: netlinkKobjectUevent,
	}
	if err := unix.Bind(fd, addr); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("cable: binding netlink uevent socket: %w", err)
	}
	return &Monitor{fd: fd}, nil
}

// Fd returns the underlying file descriptor, for the main loop's I/O
// watch (spec §5: "All socket/bus/udev descriptors are owned by the main
// thread").
func (m *Monitor) Fd() int {
	return m.fd
}

// Read blocks for the next uevent message on the monitor socket.
func (m *Monitor) Read() (Uevent, error) {
	buf := make([]byte, 8192)
	n, _, err := unix.Recvfrom(m.fd, buf, 0)
	if err != nil {
		return Uevent{}, err
	}
	u, ok := parseUevent(buf[:n])
	if !ok {
		return Uevent{}, fmt.Errorf("cable: malformed uevent payload")
	}
	return u, nil
}

// Close releases the socket.
func (m *Monitor) Close() error {
	return unix.Close(m.fd)
}
