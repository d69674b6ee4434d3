// -*- Mode: Go; indent-tabs-mode: t -*-

/*
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Lesser General Public License version 2.1
 * as published by the Free Software Foundation.
 */

package catalog

import (
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/mvo5/goconfigparser"

	"github.com/sailfishos/usb-moded-sub000/logger"
	"github.com/sailfishos/usb-moded-sub000/modes"
)

// Catalog holds the active, alphabetically sorted list of dynamic mode
// descriptors (spec §4.E). Safe for concurrent read access; Reload swaps
// in a freshly-built list atomically as soon as it is called (the daemon
// calls it from its SIGHUP handler). The swap is not deferred until a
// mode transition finishes; a descriptor the worker already cloned is
// unaffected.
type Catalog struct {
	mu      sync.RWMutex
	byName  map[modes.Name]*Descriptor
	ordered []*Descriptor
}

// Load scans dir for *.ini descriptor files, discards any that don't name
// a mode and a launcher, and returns the resulting catalog sorted
// alphabetically by mode name.
func Load(dir string) (*Catalog, error) {
	c := &Catalog{}
	descs, err := loadDir(dir)
	if err != nil {
		return nil, err
	}
	c.install(descs)
	return c, nil
}

func loadDir(dir string) ([]*Descriptor, error) {
	entries, err := doublestar.Glob(os.DirFS(dir), "*.ini")
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	sort.Strings(entries)

	var out []*Descriptor
	for _, name := range entries {
		path := filepath.Join(dir, name)
		d, err := loadFile(path)
		if err != nil {
			logger.Warningf("catalog: discarding %s: %v", path, err)
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

func loadFile(path string) (*Descriptor, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	cfg := goconfigparser.New()
	if err := cfg.Read(f); err != nil {
		return nil, err
	}
	return parseDescriptor(cfg)
}

func (c *Catalog) install(descs []*Descriptor) {
	sort.Slice(descs, func(i, j int) bool { return descs[i].ModeName < descs[j].ModeName })

	byName := make(map[modes.Name]*Descriptor, len(descs))
	for _, d := range descs {
		byName[d.ModeName] = d
	}

	c.mu.Lock()
	c.byName = byName
	c.ordered = descs
	c.mu.Unlock()
}

// Reload rescans dir and swaps the new catalog in. Per spec §4.E this
// should only be invoked by the caller at a safe point (between mode
// transitions) — the currently-active mode's already-cloned descriptor in
// the worker is unaffected regardless of when Reload runs, since the
// worker never holds a pointer into this catalog.
func (c *Catalog) Reload(dir string) error {
	descs, err := loadDir(dir)
	if err != nil {
		return err
	}
	c.install(descs)
	return nil
}

// Get returns the descriptor for name, or nil if it isn't in the catalog.
func (c *Catalog) Get(name modes.Name) *Descriptor {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.byName[name]
}

// Names returns every dynamic mode name currently in the catalog, in
// alphabetical order.
func (c *Catalog) Names() []modes.Name {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]modes.Name, len(c.ordered))
	for i, d := range c.ordered {
		out[i] = d.ModeName
	}
	return out
}

// Has reports whether name is a dynamic mode present in the catalog.
func (c *Catalog) Has(name modes.Name) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.byName[name]
	return ok
}

// LoadDiag loads the diagnostic-mode catalog, which is expected to
// contain exactly one descriptor (spec §4.E "Diagnostic mode uses a
// separate directory and is expected to contain exactly one descriptor").
func LoadDiag(dir string) (*Descriptor, error) {
	descs, err := loadDir(dir)
	if err != nil {
		return nil, err
	}
	if len(descs) == 0 {
		return nil, nil
	}
	if len(descs) > 1 {
		logger.Warningf("catalog: diag directory %s has %d descriptors, expected 1; using the first", dir, len(descs))
	}
	return descs[0], nil
}
