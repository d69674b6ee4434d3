// -*- Mode: Go; indent-tabs-mode: t -*-

/*
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Lesser General Public License version 2.1
 * as published by the Free Software Foundation.
 */

// Package selection implements the mode-selection decision procedure
// (spec §4.G): given cable state, user/lock/boot flags, and the settings
// store, it decides what internal mode the daemon should be in and
// drives the worker towards it.
package selection

import (
	"sync"
	"time"

	"github.com/sailfishos/usb-moded-sub000/cable"
	"github.com/sailfishos/usb-moded-sub000/catalog"
	"github.com/sailfishos/usb-moded-sub000/logger"
	"github.com/sailfishos/usb-moded-sub000/modes"
	"github.com/sailfishos/usb-moded-sub000/settings"
)

// PendingUserChangeDelay is how long the device is treated as locked
// after the active user changes post-init-done (spec §4.G "Pending-user-
// change").
const PendingUserChangeDelay = 3 * time.Second

// WorkerRequester is the narrow view of the worker the engine drives
// (spec §4.H "posts a request to the worker").
type WorkerRequester interface {
	Request(hwMode string)
}

// Broadcaster publishes the target/current/external mode transitions so
// the RPC surface can turn them into D-Bus signals (spec §4.G steps 1-4).
type Broadcaster interface {
	BroadcastTarget(mode modes.Name)
	BroadcastExternal(mode modes.Name)
}

// Flags captures the external, frequently changing boolean/uid inputs
// the decision procedure consumes beyond cable state and settings (spec
// §4.G "Inputs").
type Flags struct {
	UID            int
	CanExport      bool // !devicelocked
	InShutdown     bool
	InitDone       bool
	Rescue         bool
	Diagnostic     bool
	ControlEnabled bool
}

// Engine owns the control state (spec §3 "Control state") and evaluates
// the decision procedure whenever a relevant input changes.
type Engine struct {
	mu sync.Mutex

	catalog  *catalog.Catalog
	diagDesc *catalog.Descriptor
	settings *settings.Store
	worker   WorkerRequester
	bcast    Broadcaster

	cable    cable.State
	selected modes.Name
	internal modes.Name
	external modes.Name
	activatedUID int

	flags Flags

	rescueConsumed bool

	pendingUserTimer *time.Timer
	deviceLocked     bool

	clock func() time.Time
}

// New constructs an Engine in the initial `undefined`/disabled state.
func New(cat *catalog.Catalog, diagDesc *catalog.Descriptor, store *settings.Store, worker WorkerRequester, bcast Broadcaster) *Engine {
	return &Engine{
		catalog:  cat,
		diagDesc: diagDesc,
		settings: store,
		worker:   worker,
		bcast:    bcast,
		internal: modes.Undefined,
		external: modes.Undefined,
		clock:    time.Now,
	}
}

// SetCable updates the cable state and re-evaluates (spec §4.G step 2).
func (e *Engine) SetCable(s cable.State) {
	e.mu.Lock()
	e.cable = s
	e.mu.Unlock()
	e.evaluate()
}

// SetFlags replaces the boolean/uid input set and re-evaluates.
func (e *Engine) SetFlags(f Flags) {
	e.mu.Lock()
	prevUID := e.flags.UID
	prevInitDone := e.flags.InitDone
	e.flags = f
	if f.InitDone && prevInitDone && f.UID != prevUID {
		e.startPendingUserChangeLocked()
	}
	e.deviceLocked = !f.CanExport
	e.mu.Unlock()
	e.evaluate()
}

// SetSelected records an explicit user/trigger selection (spec §4.G step
// 7 "start with selected").
func (e *Engine) SetSelected(mode modes.Name) {
	e.mu.Lock()
	e.selected = mode
	e.mu.Unlock()
	e.evaluate()
}

// startPendingUserChangeLocked must be called with mu held.
func (e *Engine) startPendingUserChangeLocked() {
	if e.pendingUserTimer != nil {
		e.pendingUserTimer.Stop()
	}
	e.pendingUserTimer = time.AfterFunc(PendingUserChangeDelay, func() {
		e.mu.Lock()
		e.pendingUserTimer = nil
		e.mu.Unlock()
		e.evaluate()
	})
}

// CancelPendingUserChange stops the timer early, e.g. on a device-lock
// status change (spec §4.G "Device-lock status changes cancel the
// timer").
func (e *Engine) CancelPendingUserChange() {
	e.mu.Lock()
	if e.pendingUserTimer != nil {
		e.pendingUserTimer.Stop()
		e.pendingUserTimer = nil
	}
	e.mu.Unlock()
}

func (e *Engine) pendingUserChangeActive() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pendingUserTimer != nil
}

// evaluate runs the 13-step decision procedure and drives a transition if
// the chosen internal mode differs from the current one.
func (e *Engine) evaluate() {
	e.mu.Lock()
	if !e.flags.ControlEnabled {
		e.mu.Unlock()
		return
	}

	chosen, clearSelected, clearRescue := e.decide()
	if clearSelected {
		e.selected = ""
	}
	if clearRescue {
		e.rescueConsumed = false
	}

	changed := chosen != e.internal
	e.mu.Unlock()

	if !changed {
		return
	}
	e.applyTransition(chosen)
}

// decide implements spec §4.G's numbered decision procedure. It must be
// called with e.mu held and returns the chosen mode plus whether
// `selected`/rescue-latch state should be cleared.
func (e *Engine) decide() (modes.Name, bool, bool) {
	// Step 2.
	if e.cable != cable.PcConnected {
		choice := modes.Undefined
		if e.cable == cable.ChargerConnected {
			choice = modes.DedicatedCharger
		}
		return choice, true, false
	}

	// Step 3.
	if e.flags.Rescue && !e.rescueConsumed && e.selected == "" {
		e.rescueConsumed = true
		return "developer_mode", false, false
	}

	// Step 4.
	if e.flags.Diagnostic {
		if e.diagDesc != nil {
			return e.diagDesc.ModeName, false, false
		}
		return modes.ChargingOnlyFallback, false, false
	}

	// Step 5.
	if !e.flags.InitDone {
		return modes.ChargingOnlyFallback, false, false
	}

	// Step 6.
	if e.flags.InShutdown {
		return e.internal, false, false
	}

	// Step 7.
	choice := e.selected
	if choice != "" && !e.isValidSelectableModeLocked(choice) {
		choice = ""
	}

	// Step 8.
	if choice == "" {
		choice = e.settings.GetModeSetting(e.flags.UID)
	}

	// Step 9.
	if choice == modes.Ask {
		if e.flags.UID < 0 {
			choice = modes.ChargingOnlyFallback
		} else if avail := e.availableModesLocked(); len(avail) == 1 {
			choice = avail[0]
		}
	}

	// Step 10.
	if choice != modes.Ask && !e.isValidSelectableModeLocked(choice) {
		choice = modes.ChargingOnlyFallback
	}

	// Step 11.
	if choice == e.internal && e.flags.UID != e.lastUser() && !modes.IsInternal(choice) {
		choice = modes.ChargingOnlyFallback
	}

	// Step 12.
	locked := e.deviceLocked || e.pendingUserTimerActiveLocked()
	if locked && (choice == modes.Ask || !modes.IsInternal(choice)) {
		choice = modes.ChargingOnlyFallback
	}

	// Step 13.
	if choice == "" {
		choice = modes.ChargingOnlyFallback
	}

	return choice, false, false
}

// lastUser returns the uid that activated the current internal mode,
// updated by applyTransition each time a new mode is adopted.
func (e *Engine) lastUser() int {
	return e.activatedUID
}

func (e *Engine) pendingUserTimerActiveLocked() bool {
	return e.pendingUserTimer != nil
}

func (e *Engine) isValidSelectableModeLocked(mode modes.Name) bool {
	if mode == modes.Ask {
		return true
	}
	if !modes.IsInternal(mode) && !e.catalog.Has(mode) {
		return false
	}
	return e.IsValidSelectableMode(mode, e.flags.UID)
}

// IsValidSelectableMode implements settings.ModeValidator: a mode is
// selectable if it exists (internal or in the catalog) and, for dynamic
// modes, passes the whitelist check (spec §4.D, §4.I "Available = ...
// whitelist").
func (e *Engine) IsValidSelectableMode(mode modes.Name, uid int) bool {
	if modes.IsInternal(mode) || mode == modes.Ask {
		return true
	}
	if !e.catalog.Has(mode) {
		return false
	}
	whitelist := settings.ParseCommaList(e.settings.GetUserString("usbmode", "whitelist", uid))
	if len(whitelist) == 0 {
		return true
	}
	for _, w := range whitelist {
		if modes.Name(w) == mode {
			return true
		}
	}
	return false
}

// availableModesLocked returns supported ∧ not hidden ∧ (whitelist empty
// ∨ in whitelist) dynamic modes for the current uid (spec §4.I
// "GetAvailableModes").
func (e *Engine) availableModesLocked() []modes.Name {
	hidden := map[string]bool{}
	for _, h := range settings.ParseCommaList(e.settings.GetUserString("usbmode", "hidden", e.flags.UID)) {
		hidden[h] = true
	}
	whitelist := settings.ParseCommaList(e.settings.GetUserString("usbmode", "whitelist", e.flags.UID))
	whitelisted := map[string]bool{}
	for _, w := range whitelist {
		whitelisted[w] = true
	}

	var out []modes.Name
	for _, name := range e.catalog.Names() {
		if hidden[string(name)] {
			continue
		}
		if len(whitelist) > 0 && !whitelisted[string(name)] {
			continue
		}
		out = append(out, name)
	}
	return out
}

// applyTransition implements spec §4.G's output steps 1-4: record and
// broadcast the target, snapshot the descriptor, broadcast busy, and post
// to the worker.
func (e *Engine) applyTransition(target modes.Name) {
	e.mu.Lock()
	e.internal = target
	e.activatedUID = e.flags.UID
	prevExternal := e.external
	e.external = modes.Busy
	e.mu.Unlock()

	if e.bcast != nil {
		e.bcast.BroadcastTarget(modes.MapToExternal(target))
		if prevExternal != modes.Busy {
			e.bcast.BroadcastExternal(modes.Busy)
		}
	}

	hw := modes.MapToHardware(target)
	logger.Debugf("selection: requesting worker transition to %s (hw=%s)", target, hw)
	e.worker.Request(string(hw))
}

// CableConnected reports whether the fused cable/charger state is
// PcConnected, the precondition spec §4.I's SetMode imposes on an
// incoming RPC mode change.
func (e *Engine) CableConnected() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cable == cable.PcConnected
}

// ClearRescue consumes the rescue-mode one-shot latch (spec §4.I
// RescueOff), so a subsequent cable cycle no longer re-enters rescue mode;
// nothing re-arms the latch for the rest of the daemon's run.
func (e *Engine) ClearRescue() {
	e.mu.Lock()
	e.rescueConsumed = true
	e.mu.Unlock()
}

// TargetMode returns the current internal (target) mode, mapped for
// external consumers (spec §4.I "GetTargetState").
func (e *Engine) TargetMode() modes.Name {
	e.mu.Lock()
	defer e.mu.Unlock()
	return modes.MapToExternal(e.internal)
}

// ExternalMode returns the last broadcast external/current mode.
func (e *Engine) ExternalMode() modes.Name {
	e.mu.Lock()
	defer e.mu.Unlock()
	return modes.MapToExternal(e.external)
}

// AvailableModes returns the modes selectable by uid right now (spec
// §4.I "GetAvailableModes(ForUser)").
func (e *Engine) AvailableModes(uid int) []modes.Name {
	e.mu.Lock()
	defer e.mu.Unlock()
	saved := e.flags.UID
	e.flags.UID = uid
	out := e.availableModesLocked()
	e.flags.UID = saved
	return out
}

// ModeNames returns every dynamic mode name known to the catalog (spec
// §4.I "GetModes").
func (e *Engine) ModeNames() []modes.Name {
	return e.catalog.Names()
}

// Settings returns the underlying settings store, so the D-Bus surface
// can read/write settings directly (spec §4.I SetConfig/GetConfig/
// NetworkSet/NetworkGet/ClearUserConfig).
func (e *Engine) Settings() *settings.Store {
	return e.settings
}

// CurrentDescriptor returns the catalog descriptor for the current target
// mode, or nil for an internal mode (spec §4.I "GetTargetConfig").
func (e *Engine) CurrentDescriptor() *catalog.Descriptor {
	e.mu.Lock()
	target := e.internal
	e.mu.Unlock()
	return e.catalog.Get(target)
}

// OnWorkerComplete is called by the daemon's worker-completion watcher
// (spec §4.H "main thread's watcher reads the final hw mode ... updates
// internal, external, and broadcasts").
func (e *Engine) OnWorkerComplete(hwMode string) {
	e.mu.Lock()
	e.external = modes.Name(hwMode)
	external := e.external
	e.mu.Unlock()

	if e.bcast != nil {
		e.bcast.BroadcastExternal(modes.MapToExternal(external))
	}
}
