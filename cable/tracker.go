// -*- Mode: Go; indent-tabs-mode: t -*-

/*
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Lesser General Public License version 2.1
 * as published by the Free Software Foundation.
 */

package cable

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/sailfishos/usb-moded-sub000/logger"
)

// PowerSupplyReader abstracts reading one power-supply sysfs device, so
// tests can substitute a fake without a real /sys tree.
type PowerSupplyReader interface {
	// Candidates returns the names of devices under the power-supply
	// class, for scoring when none is explicitly configured.
	Candidates() ([]string, error)
	// Online reads the "online" attribute, falling back to "present".
	Online(device string) (bool, error)
	// Type reads the "type" attribute, falling back to "real_type".
	Type(device string) (string, error)
	// Attr reads an arbitrary attribute, used only for scoring
	// heuristics (name contains "usb"/"charger", presence of fields).
	Attr(device, name string) (string, bool)
}

// OptionalReader abstracts the extcon/android override sources, both of
// which are optional per spec §4.F.
type OptionalReader interface {
	Read() (present bool, value string, err error)
}

// Tracker fuses the configured (or scored) power-supply device with the
// optional extcon/android overrides into a debounced CableState stream
// (spec §4.F).
type Tracker struct {
	ps          PowerSupplyReader
	psDevice    string
	extcon      OptionalReader
	android     OptionalReader
	classifier  *classifier
	debounced   *debouncer
	onChange    func(State)
	onLegacy    func(connected bool)
	lastFused   State
	haveLast    bool
}

// OverrideRefreshDelay is the ~1s delayed refresh (spec §4.F) after an
// extcon/android change, to mask transients introduced by our own gadget
// reconfiguration. The caller (the main loop) owns the timer; this just
// names the delay.
const OverrideRefreshDelay = time.Second

// NewTracker constructs a tracker. device may be "" to request automatic
// scoring of the best power-supply candidate (spec §4.F).
func NewTracker(ps PowerSupplyReader, device string, extcon, android OptionalReader, debounce time.Duration, onChange func(State), onLegacy func(connected bool)) *Tracker {
	t := &Tracker{
		ps:         ps,
		psDevice:   device,
		extcon:     extcon,
		android:    android,
		classifier: newClassifier(),
		onChange:   onChange,
		onLegacy:   onLegacy,
	}
	t.debounced = newDebouncer(ClampDebounce(debounce), t.deliver)
	return t
}

// ResolveDevice picks the configured device or scores the best candidate;
// called once at startup.
func (t *Tracker) ResolveDevice() error {
	if t.psDevice != "" {
		return nil
	}
	candidates, err := t.ps.Candidates()
	if err != nil {
		return err
	}
	best := scoreCandidates(t.ps, candidates)
	t.psDevice = best
	return nil
}

// scoreCandidates implements spec §4.F's heuristic: "name contains
// usb/charger, presence of online/present/type/status fields".
func scoreCandidates(ps PowerSupplyReader, candidates []string) string {
	type scored struct {
		name  string
		score int
	}
	var results []scored
	for _, name := range candidates {
		score := 0
		lower := strings.ToLower(name)
		if strings.Contains(lower, "usb") {
			score += 2
		}
		if strings.Contains(lower, "charger") {
			score += 2
		}
		for _, field := range []string{"online", "present", "type", "status"} {
			if _, ok := ps.Attr(name, field); ok {
				score++
			}
		}
		results = append(results, scored{name, score})
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].score > results[j].score })
	if len(results) == 0 {
		return ""
	}
	return results[0].name
}

// Poll takes one power-supply (and extcon/android, if present) reading,
// classifies it, and feeds the debouncer. The main loop calls this at
// startup, on each udev event for the relevant subsystems, and on the
// delayed refresh scheduled after an extcon/android change.
func (t *Tracker) Poll() {
	r := Reading{}
	if t.psDevice != "" {
		online, err := t.ps.Online(t.psDevice)
		if err != nil {
			logger.Warningf("cable: reading online state of %s: %v", t.psDevice, err)
		}
		r.Online = online

		typ, err := t.ps.Type(t.psDevice)
		if err != nil {
			logger.Debugf("cable: reading type of %s: %v", t.psDevice, err)
		}
		r.Type = typ
	}

	if t.extcon != nil {
		present, value, err := t.extcon.Read()
		if err == nil && present {
			r.HaveExtconOverride = true
			r.ExtconUSB = extconUSBSet(value)
		}
	}
	if t.android != nil {
		present, value, err := t.android.Read()
		if err == nil && present {
			r.HaveAndroidOverride = true
			r.AndroidState = androidUSBState(value)
		}
	}

	fused := t.classifier.classify(r)
	t.debounced.feed(fused)
}

// extconUSBSet parses a compound extcon "state" value like "USB=1" (spec
// §3 extcon device).
func extconUSBSet(state string) bool {
	for _, field := range strings.Fields(state) {
		kv := strings.SplitN(field, "=", 2)
		if len(kv) == 2 && kv[0] == "USB" {
			return kv[1] == "1"
		}
	}
	return false
}

// deliver is called by the debouncer once a transition is ready to be
// published; it applies the "every transition from a non-Unknown value is
// broadcast once and once only" invariant (spec §3) and fires both the
// modern cable-state signal and the legacy connect/disconnect event (spec
// §4.F, SPEC_FULL supplemented feature 4).
func (t *Tracker) deliver(s State) {
	if t.haveLast && t.lastFused == s {
		return
	}
	prev := t.lastFused
	t.lastFused = s
	t.haveLast = true
	t.onChange(s)
	t.maybeEmitLegacy(prev, s)
}

func legacyEquivalent(s State) bool {
	return s == PcConnected || s == ChargerConnected
}

func (t *Tracker) maybeEmitLegacy(prev, next State) {
	prevConnected := legacyEquivalent(prev)
	nextConnected := legacyEquivalent(next)
	if prevConnected != nextConnected && t.onLegacy != nil {
		t.onLegacy(nextConnected)
	}
}

// sysfsPowerSupplyReader is the real PowerSupplyReader backed by /sys.
type sysfsPowerSupplyReader struct {
	classDir string
}

// NewSysfsPowerSupplyReader returns the production PowerSupplyReader
// rooted at the standard /sys/class/power_supply hierarchy.
func NewSysfsPowerSupplyReader(classDir string) PowerSupplyReader {
	return &sysfsPowerSupplyReader{classDir: classDir}
}

func (r *sysfsPowerSupplyReader) Candidates() ([]string, error) {
	entries, err := os.ReadDir(r.classDir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		out = append(out, e.Name())
	}
	return out, nil
}

func (r *sysfsPowerSupplyReader) Online(device string) (bool, error) {
	v, ok := r.Attr(device, "online")
	if !ok {
		v, ok = r.Attr(device, "present")
	}
	if !ok {
		return false, os.ErrNotExist
	}
	return v == "1", nil
}

func (r *sysfsPowerSupplyReader) Type(device string) (string, error) {
	v, ok := r.Attr(device, "type")
	if !ok {
		v, ok = r.Attr(device, "real_type")
	}
	if !ok {
		return "", nil // missing type is handled by the classifier (best-effort PC)
	}
	return strings.TrimSpace(v), nil
}

func (r *sysfsPowerSupplyReader) Attr(device, name string) (string, bool) {
	data, err := os.ReadFile(filepath.Join(r.classDir, device, name))
	if err != nil {
		return "", false
	}
	return strings.TrimSpace(string(data)), true
}
