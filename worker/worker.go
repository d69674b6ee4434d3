// -*- Mode: Go; indent-tabs-mode: t -*-

/*
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Lesser General Public License version 2.1
 * as published by the Free Software Foundation.
 */

// Package worker implements the single long-running mode-transition
// executor (spec §4.H): it owns all actuation to the kernel, runs one
// transition at a time, and can be asked to bail out of an in-flight
// transition the instant a newer request arrives.
package worker

import (
	"context"
	"sync"
	"time"

	"gopkg.in/tomb.v2"

	"github.com/sailfishos/usb-moded-sub000/appsync"
	"github.com/sailfishos/usb-moded-sub000/backend"
	"github.com/sailfishos/usb-moded-sub000/catalog"
	"github.com/sailfishos/usb-moded-sub000/logger"
	"github.com/sailfishos/usb-moded-sub000/modes"
)

// pollInterval is how often the cancellable wait primitive rechecks for
// bailout, per spec §4.H: "wakes every 200 ms".
const pollInterval = 200 * time.Millisecond

// MTPController starts and stops the MTP responder daemon; the spec
// scopes the actual launch mechanics out (spec.md Non-goals), so this is
// a narrow external collaborator.
type MTPController interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// NetworkController brings the network interface associated with a mode
// descriptor up or down; mechanics (NAT rules, DHCP server process,
// tethering script) are out of scope per spec.md Non-goals.
type NetworkController interface {
	Up(ctx context.Context, d *catalog.Descriptor) error
	Down(ctx context.Context) error
}

// NopController is a no-op MTPController/NetworkController, used for
// descriptors that don't request the corresponding capability.
type NopController struct{}

func (NopController) Start(ctx context.Context) error              { return nil }
func (NopController) Stop(ctx context.Context) error                { return nil }
func (NopController) Up(ctx context.Context, d *catalog.Descriptor) error { return nil }
func (NopController) Down(ctx context.Context) error                { return nil }

// requestSlot is the mutex-protected state shared between the main thread
// and the worker goroutine (spec §3 "WorkerState").
type requestSlot struct {
	mu sync.Mutex

	requestedHWMode string
	activatedHWMode string
	activeDesc      *catalog.Descriptor

	bailoutRequested bool
	bailoutHandled   bool
}

// Worker is the single mode-transition executor.
type Worker struct {
	t tomb.Tomb

	wakeup chan struct{}
	slot   requestSlot

	catalog   *catalog.Catalog
	backend   *backend.Selector
	syncer    appsync.Syncer
	mtp       MTPController
	network   NetworkController

	onComplete func(hwMode string)

	heartbeat *time.Ticker
}

// New constructs a worker; call Start to begin its goroutine.
func New(cat *catalog.Catalog, sel *backend.Selector, syncer appsync.Syncer, mtp MTPController, net NetworkController, onComplete func(hwMode string)) *Worker {
	if mtp == nil {
		mtp = NopController{}
	}
	if net == nil {
		net = NopController{}
	}
	if syncer == nil {
		syncer = appsync.NopSyncer{}
	}
	return &Worker{
		wakeup:     make(chan struct{}, 1),
		catalog:    cat,
		backend:    sel,
		syncer:     syncer,
		mtp:        mtp,
		network:    net,
		onComplete: onComplete,
	}
}

// Start launches the worker goroutine and the heartbeat ticker.
func (w *Worker) Start() {
	w.heartbeat = time.NewTicker(30 * time.Second)
	w.t.Go(w.loop)
	w.t.Go(w.heartbeatLoop)
}

// Stop requests a clean shutdown and waits for the worker to exit.
func (w *Worker) Stop() error {
	w.t.Kill(nil)
	return w.t.Wait()
}

// Request posts a new requested hardware mode (spec §4.H "request slot").
// It marks any in-flight transition for cancellation, overwrites the slot,
// and wakes the worker.
func (w *Worker) Request(hwMode string) {
	w.slot.mu.Lock()
	w.slot.requestedHWMode = hwMode
	w.slot.bailoutRequested = true
	w.slot.bailoutHandled = false
	w.slot.mu.Unlock()

	select {
	case w.wakeup <- struct{}{}:
	default:
	}
}

// ActivatedMode returns the last successfully applied hardware mode.
func (w *Worker) ActivatedMode() string {
	w.slot.mu.Lock()
	defer w.slot.mu.Unlock()
	return w.slot.activatedHWMode
}

func (w *Worker) loop() error {
	for {
		select {
		case <-w.t.Dying():
			return nil
		case <-w.wakeup:
		}

		w.slot.mu.Lock()
		w.slot.bailoutRequested = false
		w.slot.bailoutHandled = false
		req := w.slot.requestedHWMode
		w.slot.mu.Unlock()

		hw := string(modes.MapToHardware(modes.Name(req)))

		w.slot.mu.Lock()
		current := w.slot.activatedHWMode
		w.slot.mu.Unlock()

		if hw == current {
			w.signalComplete(hw)
			continue
		}

		if err := w.transition(hw); err != nil {
			logger.Warningf("worker: transition to %s failed: %v", hw, err)
		}
	}
}

// transition implements the spec §4.H transition sequence.
func (w *Worker) transition(targetHW string) error {
	ctx := context.Background()

	w.mtp.Stop(ctx)

	w.slot.mu.Lock()
	prevDesc := w.slot.activeDesc
	w.slot.mu.Unlock()
	if prevDesc != nil {
		w.teardown(ctx, prevDesc)
	}

	desc := w.catalog.Get(modes.Name(targetHW))
	if desc == nil || modes.IsChargingLike(modes.Name(targetHW)) {
		return w.applyCharging(string(modes.ChargingOnly))
	}

	if err := w.applyDescriptor(ctx, desc); err != nil {
		logger.Warningf("worker: applying %s failed, falling back to charging: %v", targetHW, err)
		if fbErr := w.applyCharging(string(modes.ChargingOnly)); fbErr != nil {
			logger.Errorf("worker: charging fallback also failed: %v", fbErr)
			w.signalComplete(string(modes.Undefined))
			return fbErr
		}
		return err
	}

	w.slot.mu.Lock()
	w.slot.activeDesc = desc.Clone()
	w.slot.mu.Unlock()
	w.signalComplete(targetHW)
	return nil
}

func (w *Worker) teardown(ctx context.Context, d *catalog.Descriptor) {
	if d.ConnmanTethering != "" {
		w.network.Down(ctx)
	}
	if d.Appsync {
		w.syncer.Deactivate(string(d.ModeName), false)
	}
	w.network.Down(ctx)
	w.backend.Teardown(ctx, d)
}

func (w *Worker) applyCharging(targetHW string) error {
	err := w.backend.ApplyCharging(context.Background())
	if err != nil {
		logger.Warningf("worker: applying charging failed: %v", err)
	}
	w.slot.mu.Lock()
	w.slot.activeDesc = nil
	w.slot.mu.Unlock()
	w.signalComplete(targetHW)
	return err
}

func (w *Worker) applyDescriptor(ctx context.Context, d *catalog.Descriptor) error {
	mtp := w.isMTP(d)
	mtpBeforeUDC := w.backend.IsSysfs() && mtp

	if d.Appsync {
		if ok, skipped := w.syncer.ActivatePre(string(d.ModeName)); !ok && !skipped {
			logger.Warningf("worker: pre-enum appsync failed for %s", d.ModeName)
		}
	}

	if mtpBeforeUDC {
		if !w.wait(120*time.Second, func() bool { return true }) {
			return context.Canceled
		}
		if err := w.mtp.Start(ctx); err != nil {
			return err
		}
	}

	if err := w.backend.Apply(ctx, d, nil); err != nil {
		return err
	}

	if !mtpBeforeUDC && mtp {
		if err := w.mtp.Start(ctx); err != nil {
			return err
		}
	}

	if d.Network {
		if err := w.network.Up(ctx, d); err != nil {
			logger.Warningf("worker: network bring-up failed, retrying once: %v", err)
			if !w.wait(2*time.Second, func() bool { return true }) {
				return context.Canceled
			}
			if err := w.network.Up(ctx, d); err != nil {
				return err
			}
		}
	}

	if d.Appsync {
		if !w.wait(500*time.Millisecond, func() bool { return true }) {
			return context.Canceled
		}
		if ok, skipped := w.syncer.ActivatePost(string(d.ModeName)); !ok && !skipped {
			logger.Warningf("worker: post-enum appsync failed for %s", d.ModeName)
		}
		w.syncer.MarkActive(string(d.ModeName), true)
	}

	return nil
}

// isMTP reports whether a descriptor's function resolves to the MTP
// responder, resolving through the backend's function map first since
// descriptors name the short form ("mtp"/"ffs"), not the configfs
// directory name SetFunction actually symlinks (spec §4.H MTP-before/
// after-UDC ordering).
func (w *Worker) isMTP(d *catalog.Descriptor) bool {
	return w.backend.ResolveFunction(d.ModeModule) == "ffs.mtp"
}

// signalComplete updates the shared slot and notifies the main thread
// (spec §4.H "completion notification").
func (w *Worker) signalComplete(hwMode string) {
	w.slot.mu.Lock()
	w.slot.activatedHWMode = hwMode
	w.slot.bailoutHandled = true
	w.slot.mu.Unlock()

	if w.onComplete != nil {
		w.onComplete(hwMode)
	}
}

// wait blocks until ready returns true, the worker is asked to bail out,
// or the worker tomb is dying, polling every 200ms (spec §4.H
// "wait(total_ms, ready_fn, arg)"). It returns false if aborted.
func (w *Worker) wait(timeout time.Duration, ready func() bool) bool {
	deadline := time.Now().Add(timeout)
	for {
		if ready() {
			return true
		}
		w.slot.mu.Lock()
		bail := w.slot.bailoutRequested
		w.slot.mu.Unlock()
		if bail {
			return false
		}
		select {
		case <-w.t.Dying():
			return false
		default:
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(pollInterval)
	}
}

func (w *Worker) heartbeatLoop() error {
	for {
		select {
		case <-w.t.Dying():
			return nil
		case <-w.heartbeat.C:
			w.checkTrackedWrites()
		}
	}
}

// checkTrackedWrites re-reads every tracked sysfs path and logs any that
// no longer match what the backend last wrote (spec §4.H heartbeat,
// SPEC_FULL supplemented feature 5).
func (w *Worker) checkTrackedWrites() {
	w.backend.CheckDrift()
}

// Ping is called when an external watchdog pings the daemon; it runs the
// same drift check as the standalone heartbeat ticker (SPEC_FULL
// supplemented feature 5).
func (w *Worker) Ping() {
	w.checkTrackedWrites()
}
