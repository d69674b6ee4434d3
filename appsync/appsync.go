// -*- Mode: Go; indent-tabs-mode: t -*-

/*
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Lesser General Public License version 2.1
 * as published by the Free Software Foundation.
 */

// Package appsync defines the narrow contract the worker uses to launch
// and retire the user-space helper applications associated with a mode
// (spec §4.J). The mechanics of how those applications are actually
// started are out of scope (spec.md Non-goals); this package only
// specifies the interface and a logging default.
package appsync

import "github.com/sailfishos/usb-moded-sub000/logger"

// Syncer activates and deactivates the applications bound to a mode.
//
// ActivatePre is called before the gadget is actuated (so helpers can
// prepare, e.g. pre-create a socket); ActivatePost is called after
// enumeration settles. Both return (ok, skipped): skipped is true when
// the mode has nothing to synchronise (NopSyncer reports it for every
// call). The worker logs a warning only when a call returns neither ok
// nor skipped; LoggingSyncer logs the skipped flag at debug level.
type Syncer interface {
	ActivatePre(mode string) (ok, skipped bool)
	ActivatePost(mode string) (ok, skipped bool)
	Deactivate(mode string, force bool) bool
	MarkActive(mode string, post bool)
}

// NopSyncer is the default Syncer for descriptors that never set the
// appsync flag; every call reports "skipped".
type NopSyncer struct{}

func (NopSyncer) ActivatePre(mode string) (bool, bool)  { return true, true }
func (NopSyncer) ActivatePost(mode string) (bool, bool) { return true, true }
func (NopSyncer) Deactivate(mode string, force bool) bool { return true }
func (NopSyncer) MarkActive(mode string, post bool)     {}

// LoggingSyncer wraps another Syncer and logs each call at debug level,
// useful while a real application-launch mechanism is still unconfigured.
type LoggingSyncer struct {
	Next Syncer
}

func (l LoggingSyncer) ActivatePre(mode string) (bool, bool) {
	ok, skipped := l.Next.ActivatePre(mode)
	logger.Debugf("appsync: activate-pre %s: ok=%v skipped=%v", mode, ok, skipped)
	return ok, skipped
}

func (l LoggingSyncer) ActivatePost(mode string) (bool, bool) {
	ok, skipped := l.Next.ActivatePost(mode)
	logger.Debugf("appsync: activate-post %s: ok=%v skipped=%v", mode, ok, skipped)
	return ok, skipped
}

func (l LoggingSyncer) Deactivate(mode string, force bool) bool {
	ok := l.Next.Deactivate(mode, force)
	logger.Debugf("appsync: deactivate %s force=%v: ok=%v", mode, force, ok)
	return ok
}

func (l LoggingSyncer) MarkActive(mode string, post bool) {
	l.Next.MarkActive(mode, post)
}
