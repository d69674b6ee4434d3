// -*- Mode: Go; indent-tabs-mode: t -*-

/*
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Lesser General Public License version 2.1
 * as published by the Free Software Foundation.
 */

package dbusapi

import (
	"fmt"
	"reflect"

	"github.com/godbus/dbus/v5"

	"github.com/sailfishos/usb-moded-sub000/catalog"
	"github.com/sailfishos/usb-moded-sub000/modes"
	"github.com/sailfishos/usb-moded-sub000/settings"
)

// Core is the narrow view of the daemon's control state and settings
// store the D-Bus surface calls into; implemented by *selection.Engine
// plus *settings.Store (wired together in the daemon package).
type Core interface {
	TargetMode() modes.Name
	ExternalMode() modes.Name
	CurrentDescriptor() *catalog.Descriptor
	AvailableModes(uid int) []modes.Name
	SetSelected(mode modes.Name)
	ModeNames() []modes.Name
	CableConnected() bool
	ClearRescue()

	Settings() *settings.Store
}

// Server exports the daemon's RPC surface over a D-Bus connection,
// driven by the static member table in members.go (spec §4.I).
type Server struct {
	conn *dbus.Conn
	core Core
}

// NewServer requests BusName on conn and exports the member-table-driven
// object.
func NewServer(conn *dbus.Conn, core Core) (*Server, error) {
	reply, err := conn.RequestName(BusName, dbus.NameFlagDoNotQueue)
	if err != nil {
		return nil, fmt.Errorf("dbusapi: requesting bus name: %w", err)
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		return nil, fmt.Errorf("dbusapi: bus name %s already owned", BusName)
	}

	s := &Server{conn: conn, core: core}

	// The exported method set is built directly from the member table in
	// members.go, rather than via reflection over every exported method
	// on Server, so broadcast helpers like BroadcastTarget never become
	// D-Bus-callable by accident.
	table := make(map[string]interface{}, len(Methods))
	sv := reflect.ValueOf(s)
	for _, m := range Methods {
		method := sv.MethodByName(m.Name)
		if !method.IsValid() {
			return nil, fmt.Errorf("dbusapi: member table names unimplemented method %s", m.Name)
		}
		table[m.Name] = method.Interface()
	}
	if err := conn.ExportMethodTable(table, ObjectPath, Interface); err != nil {
		return nil, fmt.Errorf("dbusapi: exporting methods: %w", err)
	}
	if err := conn.Export(introspectable{}, ObjectPath, "org.freedesktop.DBus.Introspectable"); err != nil {
		return nil, fmt.Errorf("dbusapi: exporting introspectable: %w", err)
	}
	return s, nil
}

type introspectable struct{}

func (introspectable) Introspect() (string, *dbus.Error) {
	return IntrospectXML(), nil
}

// callerUID resolves the uid of the peer that invoked an exported method,
// via the bus daemon's GetConnectionUnixUser call (spec §6 access
// control is keyed on caller uid).
func (s *Server) callerUID(sender dbus.Sender) int {
	var uid uint32
	obj := s.conn.BusObject()
	if err := obj.Call("org.freedesktop.DBus.GetConnectionUnixUser", 0, string(sender)).Store(&uid); err != nil {
		return -1
	}
	return int(uid)
}

// --- Exported methods, names and signatures per members.go ---

func (s *Server) ModeRequest() (string, *dbus.Error) {
	return string(s.core.ExternalMode()), nil
}

func (s *Server) GetTargetState() (string, *dbus.Error) {
	return string(s.core.TargetMode()), nil
}

func (s *Server) GetTargetConfig() (map[string]dbus.Variant, *dbus.Error) {
	d := s.core.CurrentDescriptor()
	if d == nil {
		return map[string]dbus.Variant{}, nil
	}
	return map[string]dbus.Variant{
		"appsync":           dbus.MakeVariant(d.Appsync),
		"network":           dbus.MakeVariant(d.Network),
		"network_interface": dbus.MakeVariant(d.NetworkInterface),
		"nat":               dbus.MakeVariant(d.NAT),
		"dhcp_server":       dbus.MakeVariant(d.DHCPServer),
		"connman_tethering": dbus.MakeVariant(d.ConnmanTethering),
	}, nil
}

func (s *Server) SetMode(mode string, sender dbus.Sender) *dbus.Error {
	uid := s.callerUID(sender)
	name := modes.Name(mode)
	if validator, ok := s.core.(settings.ModeValidator); ok && !validator.IsValidSelectableMode(name, uid) {
		return dbus.MakeFailedError(fmt.Errorf("mode %q is not permitted for uid %d", mode, uid))
	}
	if s.core.ExternalMode() == modes.Busy {
		return dbus.MakeFailedError(fmt.Errorf("SetMode rejected: a mode transition is already in progress"))
	}
	if !s.core.CableConnected() {
		return dbus.MakeFailedError(fmt.Errorf("SetMode rejected: cable is not connected"))
	}
	s.core.SetSelected(name)
	return nil
}

func (s *Server) SetConfig(mode string, sender dbus.Sender) *dbus.Error {
	uid := s.callerUID(sender)
	if err := s.core.Settings().Set("usbmode", userKey("mode", uid), mode); err != nil {
		return dbus.MakeFailedError(err)
	}
	return nil
}

func (s *Server) GetConfig(sender dbus.Sender) (string, *dbus.Error) {
	uid := s.callerUID(sender)
	return string(s.core.Settings().GetModeSetting(uid)), nil
}

func (s *Server) Hide(mode string) *dbus.Error {
	return s.editCommaList("hidden", settings.OwnerUID, func(list string) string {
		return settings.AddToCommaList(list, mode)
	})
}

func (s *Server) Unhide(mode string) *dbus.Error {
	return s.editCommaList("hidden", settings.OwnerUID, func(list string) string {
		return settings.RemoveFromCommaList(list, mode)
	})
}

func (s *Server) GetHidden() (string, *dbus.Error) {
	return s.core.Settings().GetUserString("usbmode", "hidden", settings.OwnerUID), nil
}

func (s *Server) GetWhitelist() (string, *dbus.Error) {
	return s.core.Settings().GetUserString("usbmode", "whitelist", settings.OwnerUID), nil
}

func (s *Server) SetWhitelist(modesList string) *dbus.Error {
	if err := s.core.Settings().Set("usbmode", "whitelist", modesList); err != nil {
		return dbus.MakeFailedError(err)
	}
	return nil
}

func (s *Server) SetInWhitelist(mode string, allowed bool) *dbus.Error {
	return s.editCommaList("whitelist", settings.OwnerUID, func(list string) string {
		if allowed {
			return settings.AddToCommaList(list, mode)
		}
		return settings.RemoveFromCommaList(list, mode)
	})
}

func (s *Server) editCommaList(key string, uid int, edit func(string) string) *dbus.Error {
	current := s.core.Settings().GetUserString("usbmode", key, uid)
	next := edit(current)
	if next == current {
		return nil
	}
	if err := s.core.Settings().Set("usbmode", key, next); err != nil {
		return dbus.MakeFailedError(err)
	}
	return nil
}

func (s *Server) GetModes() (string, *dbus.Error) {
	return joinModeNames(s.core.ModeNames()), nil
}

func (s *Server) GetAvailableModes(sender dbus.Sender) (string, *dbus.Error) {
	return joinModeNames(s.core.AvailableModes(s.callerUID(sender))), nil
}

func (s *Server) GetAvailableModesForUser(uid int32) (string, *dbus.Error) {
	return joinModeNames(s.core.AvailableModes(int(uid))), nil
}

func (s *Server) NetworkSet(key, value string) *dbus.Error {
	if err := s.core.Settings().Set("network", key, value); err != nil {
		return dbus.MakeFailedError(err)
	}
	return nil
}

func (s *Server) NetworkGet(key string) (string, *dbus.Error) {
	return s.core.Settings().GetString("network", key), nil
}

func (s *Server) ClearUserConfig(uid int32) *dbus.Error {
	if err := s.core.Settings().ClearUser(int(uid)); err != nil {
		return dbus.MakeFailedError(err)
	}
	return nil
}

func (s *Server) RescueOff() *dbus.Error {
	s.core.ClearRescue()
	return nil
}

func userKey(key string, uid int) string {
	if settings.IsAdditionalUser(uid) {
		return fmt.Sprintf("%s_%d", key, uid)
	}
	return key
}

func joinModeNames(names []modes.Name) string {
	strs := make([]string, len(names))
	for i, n := range names {
		strs[i] = string(n)
	}
	return settings.FormatCommaList(strs)
}

// --- Signal broadcasts (spec §4.I, implements selection.Broadcaster) ---

func (s *Server) BroadcastTarget(mode modes.Name) {
	s.emit("TargetState", string(mode))
}

func (s *Server) BroadcastExternal(mode modes.Name) {
	s.emit("CurrentState", string(mode))
}

// BroadcastEvent emits a transient label signal (spec §4.I "event
// (transient labels like USB connected, charger_connected, pre-unmount,
// mount_failed, mode_setting_failed)").
func (s *Server) BroadcastEvent(label string) {
	s.emit("Event", label)
}

// BroadcastConfigChanged implements settings.ChangeNotifier.
func (s *Server) BroadcastConfigChanged(group, key string) {
	s.emit("ConfigChanged", group, key)
}

// BroadcastLegacyCable emits the legacy boolean connect/disconnect event
// string (SPEC_FULL supplemented feature 4).
func (s *Server) BroadcastLegacyCable(connected bool) {
	if connected {
		s.emit("Event", "usb_connected")
		return
	}
	s.emit("Event", "usb_disconnected")
}

func (s *Server) emit(signal string, args ...interface{}) {
	if s.conn == nil {
		return
	}
	if err := s.conn.Emit(dbus.ObjectPath(ObjectPath), Interface+"."+signal, args...); err != nil {
		// A failed emit (e.g. a disconnected bus) is not fatal; the
		// signal is dropped and callers keep running.
		_ = err
	}
}
