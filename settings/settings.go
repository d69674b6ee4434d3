// -*- Mode: Go; indent-tabs-mode: t -*-

/*
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Lesser General Public License version 2.1
 * as published by the Free Software Foundation.
 */

// Package settings implements the layered INI settings store (spec §4.D):
// a read-only union of static *.ini files overlaid by one writable file,
// with per-user key overrides and purge-on-save minimization.
package settings

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/mvo5/goconfigparser"

	"github.com/sailfishos/usb-moded-sub000/dirs"
	"github.com/sailfishos/usb-moded-sub000/logger"
	"github.com/sailfishos/usb-moded-sub000/modes"
)

// AdditionalUserBase is the first uid considered a non-owner "additional
// user" whose settings may be overridden with a "key_<uid>" entry.
const AdditionalUserBase = 100000

// OwnerUID is the device owner's uid; settings stored without a "_<uid>"
// suffix belong to this user.
const OwnerUID = 0

// IsAdditionalUser reports whether uid is in the designated additional-user
// range (spec §3: "uid is in the designated uid range").
func IsAdditionalUser(uid int) bool {
	return uid >= AdditionalUserBase
}

// ModeValidator is consulted by GetModeSetting to decide whether a stored
// default mode is still selectable for a given uid; it is implemented by
// the selection engine's catalog+permission view so this package stays
// free of any dependency on the mode catalog or auth rules.
type ModeValidator interface {
	IsValidSelectableMode(mode modes.Name, uid int) bool
}

// ChangeNotifier is called after a successful Set, so the RPC surface can
// broadcast the settings-changed signal (spec §4.I); nil is a valid,
// silent notifier.
type ChangeNotifier func(group, key string)

// Store is the layered settings store.
type Store struct {
	mu sync.Mutex

	static  map[string]map[string]string // group -> key -> value, read-only union
	dynamic map[string]map[string]string // group -> key -> value, writable overlay

	validator ModeValidator
	notify    ChangeNotifier
}

// New loads the static files and the overlay from disk, migrating the
// legacy file first if applicable, and returns the merged store.
func New(validator ModeValidator, notify ChangeNotifier) (*Store, error) {
	s := &Store{validator: validator, notify: notify}
	if err := s.reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Reload re-reads static files and the overlay from disk, discarding any
// unsaved in-memory state. Used on the configuration-reload signal.
func (s *Store) Reload() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reload()
}

func (s *Store) reload() error {
	if err := migrateLegacy(); err != nil {
		logger.Warningf("settings: legacy migration: %v", err)
	}

	static := map[string]map[string]string{
		"usbmode": {"mode": string(modes.Ask)},
	}
	files, _ := doublestar.Glob(os.DirFS(dirs.ConfigStaticDir), "*.ini")
	sort.Strings(files)
	for _, name := range files {
		path := filepath.Join(dirs.ConfigStaticDir, name)
		if err := mergeFile(static, path); err != nil {
			logger.Warningf("settings: discarding unreadable static file %s: %v", path, err)
		}
	}

	dynamic := map[string]map[string]string{}
	if _, err := os.Stat(dirs.ConfigOverlay); err == nil {
		if err := mergeFile(dynamic, dirs.ConfigOverlay); err != nil {
			logger.Warningf("settings: discarding unreadable overlay %s: %v", dirs.ConfigOverlay, err)
		}
	}

	s.static = static
	s.dynamic = dynamic
	return nil
}

func mergeFile(into map[string]map[string]string, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	cfg := goconfigparser.New()
	if err := cfg.Read(f); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	for _, section := range cfg.Sections() {
		opts, err := cfg.Options(section)
		if err != nil {
			continue
		}
		for _, opt := range opts {
			val, err := cfg.Get(section, opt)
			if err != nil {
				continue
			}
			if into[section] == nil {
				into[section] = map[string]string{}
			}
			into[section][opt] = val
		}
	}
	return nil
}

// migrateLegacy moves etc/usb-moded/usb-moded.ini into the overlay path
// the first time the overlay does not yet exist (spec §4.D), discarding a
// legacy "mode = ask" entry so static-file priority is respected. If both
// files exist, the legacy file is left for a later successful overlay
// write to delete.
func migrateLegacy() error {
	legacy := dirs.ConfigLegacyFile
	if _, err := os.Stat(legacy); os.IsNotExist(err) {
		return nil
	}

	if _, err := os.Stat(dirs.ConfigOverlay); err == nil {
		logger.Warningf("settings: ignoring legacy file %s: overlay already exists", legacy)
		return nil
	}

	data := map[string]map[string]string{}
	if err := mergeFile(data, legacy); err != nil {
		return fmt.Errorf("reading legacy file: %w", err)
	}
	if v, ok := data["usbmode"]; ok && v["mode"] == string(modes.Ask) {
		delete(v, "mode")
		if len(v) == 0 {
			delete(data, "usbmode")
		}
	}

	if err := os.MkdirAll(filepath.Dir(dirs.ConfigOverlay), 0755); err != nil {
		return err
	}
	if err := writeGroups(dirs.ConfigOverlay, data); err != nil {
		return fmt.Errorf("writing migrated overlay: %w", err)
	}
	if err := os.Remove(legacy); err != nil {
		logger.Warningf("settings: could not remove migrated legacy file %s: %v", legacy, err)
	}
	return nil
}

// writeGroups serializes groups deterministically (sorted group and key
// names) and writes path only if the content differs from what's already
// there — the "atomic-on-save" invariant (spec §4.D).
func writeGroups(path string, groups map[string]map[string]string) error {
	var buf bytes.Buffer
	names := make([]string, 0, len(groups))
	for g, kv := range groups {
		if len(kv) == 0 {
			continue // empty groups are dropped before save
		}
		names = append(names, g)
	}
	sort.Strings(names)
	for _, g := range names {
		fmt.Fprintf(&buf, "[%s]\n", g)
		keys := make([]string, 0, len(groups[g]))
		for k := range groups[g] {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&buf, "%s=%s\n", k, groups[g][k])
		}
		buf.WriteByte('\n')
	}

	if existing, err := os.ReadFile(path); err == nil && bytes.Equal(existing, buf.Bytes()) {
		return nil // content unchanged, skip the write
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0644)
}

// merged returns the effective (static masked by dynamic) view.
func (s *Store) merged() map[string]map[string]string {
	out := map[string]map[string]string{}
	for g, kv := range s.static {
		out[g] = map[string]string{}
		for k, v := range kv {
			out[g][k] = v
		}
	}
	for g, kv := range s.dynamic {
		if out[g] == nil {
			out[g] = map[string]string{}
		}
		for k, v := range kv {
			out[g][k] = v
		}
	}
	return out
}

// GetString returns the merged value for group/key, or "" if unset.
func (s *Store) GetString(group, key string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if kv, ok := s.merged()[group]; ok {
		return kv[key]
	}
	return ""
}

// GetInt returns the merged value for group/key parsed as an integer, or
// def if unset or unparsable.
func (s *Store) GetInt(group, key string, def int) int {
	v := s.GetString(group, key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// GetUserString tries "key_<uid>" first when uid is an additional user,
// falling back to the plain "key" (spec §4.D get_user_string).
func (s *Store) GetUserString(group, key string, uid int) string {
	if IsAdditionalUser(uid) {
		userKey := fmt.Sprintf("%s_%d", key, uid)
		if v := s.GetString(group, userKey); v != "" {
			return v
		}
	}
	return s.GetString(group, key)
}

// Set compares value against the merged view and, if it differs, writes
// the overlay (after purging any entries that now duplicate the static
// value) and fires the change notifier.
func (s *Store) Set(group, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.merged()[group][key] == value {
		return nil
	}

	if s.dynamic[group] == nil {
		s.dynamic[group] = map[string]string{}
	}
	s.dynamic[group][key] = value
	s.purgeStaticDuplicates()

	if err := s.save(); err != nil {
		return err
	}
	if s.notify != nil {
		s.notify(group, key)
	}
	return nil
}

// purgeStaticDuplicates removes overlay entries equal to the static value
// for the same group/key, keeping the overlay minimal (spec §4.D).
func (s *Store) purgeStaticDuplicates() {
	for g, kv := range s.dynamic {
		for k, v := range kv {
			if staticGroup, ok := s.static[g]; ok && staticGroup[k] == v {
				delete(kv, k)
			}
		}
		if len(kv) == 0 {
			delete(s.dynamic, g)
		}
	}
}

func (s *Store) save() error {
	if err := writeGroups(dirs.ConfigOverlay, s.dynamic); err != nil {
		return err
	}
	// A legacy file surviving alongside a successfully written overlay is
	// now redundant; remove it (spec §4.D: "deleted on next successful
	// overlay write").
	if _, err := os.Stat(dirs.ConfigLegacyFile); err == nil {
		_ = os.Remove(dirs.ConfigLegacyFile)
	}
	return nil
}

// ClearUser removes every "key_<uid>" override from the overlay.
func (s *Store) ClearUser(uid int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	suffix := fmt.Sprintf("_%d", uid)
	changed := false
	for _, kv := range s.dynamic {
		for k := range kv {
			if strings.HasSuffix(k, suffix) {
				delete(kv, k)
				changed = true
			}
		}
	}
	if !changed {
		return nil
	}
	for g, kv := range s.dynamic {
		if len(kv) == 0 {
			delete(s.dynamic, g)
		}
	}
	return s.save()
}

// GetModeSetting returns the stored default mode for uid (spec §4.D
// get_mode_setting): "ask" and unselectable values are handled per spec --
// an invalid stored value is rewritten to "ask"; no stored value at all
// returns "charging_only" without writing anything.
func (s *Store) GetModeSetting(uid int) modes.Name {
	raw := s.GetUserString("usbmode", "mode", uid)
	if raw == "" {
		return modes.ChargingOnly
	}
	mode := modes.Name(raw)
	if mode == modes.Ask {
		return modes.Ask
	}
	if s.validator == nil || s.validator.IsValidSelectableMode(mode, uid) {
		return mode
	}

	key := "mode"
	if IsAdditionalUser(uid) {
		key = fmt.Sprintf("mode_%d", uid)
	}
	if err := s.Set("usbmode", key, string(modes.Ask)); err != nil {
		logger.Warningf("settings: could not reset invalid mode setting: %v", err)
	}
	return modes.Ask
}

// CommaList helpers for the hidden/whitelist settings (spec §4.D: "stored
// as comma-separated strings; helper operations produce a new list with an
// entry added or removed while preserving order and uniqueness").

// ParseCommaList splits a comma-separated list, dropping empty entries.
func ParseCommaList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// FormatCommaList joins entries back into the on-disk representation.
func FormatCommaList(entries []string) string {
	return strings.Join(entries, ",")
}

// AddToCommaList returns list with entry appended if not already present.
func AddToCommaList(list string, entry string) string {
	entries := ParseCommaList(list)
	for _, e := range entries {
		if e == entry {
			return list
		}
	}
	return FormatCommaList(append(entries, entry))
}

// RemoveFromCommaList returns list with entry removed, preserving the
// order of the remaining entries.
func RemoveFromCommaList(list string, entry string) string {
	entries := ParseCommaList(list)
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		if e != entry {
			out = append(out, e)
		}
	}
	return FormatCommaList(out)
}
