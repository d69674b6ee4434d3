// -*- Mode: Go; indent-tabs-mode: t -*-

/*
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Lesser General Public License version 2.1
 * as published by the Free Software Foundation.
 */

package backend

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/sailfishos/usb-moded-sub000/logger"
)

// KmodBackend drives the legacy g_* gadget kernel modules via modprobe/rmmod
// (spec §4.B). There is no maintained Go binding for module loading in the
// example corpus, so this actuator shells out the same way the teacher's
// own backends shell out to external tools.
type KmodBackend struct {
	// moduleOf maps a hardware mode name to its kernel module name, e.g.
	// "mass_storage" -> "g_mass_storage".
	moduleOf map[string]string

	loadRetries  int
	retryBackoff time.Duration

	runCommand func(ctx context.Context, name string, args ...string) error
}

// NewKmodBackend constructs the actuator with the given mode->module table.
func NewKmodBackend(moduleOf map[string]string) *KmodBackend {
	return &KmodBackend{
		moduleOf:     moduleOf,
		loadRetries:  3,
		retryBackoff: 200 * time.Millisecond,
		runCommand:   runExternal,
	}
}

func runExternal(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s %s: %w: %s", name, strings.Join(args, " "), err, strings.TrimSpace(string(out)))
	}
	return nil
}

// CurrentlyLoaded reports the name of the g_* module presently loaded, or
// "" if none is, by scanning /proc/modules (spec §4.B: "determine the
// currently loaded module by scanning /proc/modules").
func CurrentlyLoaded(procModulesPath string, known map[string]string) (string, error) {
	f, err := os.Open(procModulesPath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	loaded := map[string]bool{}
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		loaded[fields[0]] = true
	}
	if err := sc.Err(); err != nil {
		return "", err
	}

	for mode, mod := range known {
		if loaded[mod] {
			return mode, nil
		}
	}
	return "", nil
}

// SwitchTo unloads whatever g_* module is currently loaded (if any and if
// different) and loads the module for targetMode, retrying the load a
// bounded number of times since the kernel can transiently hold the
// previous module's USB resources (spec §4.B: "module switches are
// retried up to a fixed bound before the transition is reported as
// failed").
func (k *KmodBackend) SwitchTo(ctx context.Context, procModulesPath, targetMode string, params map[string]string) error {
	target, ok := k.moduleOf[targetMode]
	if !ok {
		return fmt.Errorf("backend: no kernel module known for mode %q", targetMode)
	}

	current, err := CurrentlyLoaded(procModulesPath, k.moduleOf)
	if err != nil {
		logger.Warningf("backend: scanning /proc/modules: %v", err)
	}
	if current != "" && current != targetMode {
		if err := k.unload(ctx, k.moduleOf[current]); err != nil {
			logger.Warningf("backend: unloading %s: %v", k.moduleOf[current], err)
		}
	} else if current == targetMode {
		return nil
	}

	var lastErr error
	for attempt := 0; attempt < k.loadRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(k.retryBackoff)
		}
		if lastErr = k.load(ctx, target, params); lastErr == nil {
			return nil
		}
		logger.Warningf("backend: loading %s (attempt %d/%d): %v", target, attempt+1, k.loadRetries, lastErr)
	}
	return fmt.Errorf("backend: failed to load %s after %d attempts: %w", target, k.loadRetries, lastErr)
}

func (k *KmodBackend) load(ctx context.Context, module string, params map[string]string) error {
	args := []string{module}
	for key, value := range params {
		args = append(args, fmt.Sprintf("%s=%s", key, value))
	}
	return k.runCommand(ctx, "modprobe", args...)
}

func (k *KmodBackend) unload(ctx context.Context, module string) error {
	return k.runCommand(ctx, "rmmod", module)
}

// Unload unconditionally removes whatever module is currently loaded, used
// when tearing down into the disconnected/ask state.
func (k *KmodBackend) Unload(ctx context.Context, procModulesPath string) error {
	current, err := CurrentlyLoaded(procModulesPath, k.moduleOf)
	if err != nil {
		return err
	}
	if current == "" {
		return nil
	}
	return k.unload(ctx, k.moduleOf[current])
}
