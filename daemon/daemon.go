// -*- Mode: Go; indent-tabs-mode: t -*-

/*
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Lesser General Public License version 2.1
 * as published by the Free Software Foundation.
 */

// Package daemon wires every component into one running process (spec
// §9 "a single daemon context value created in main, passed to
// components"), owns the main event loop, and translates OS signals and
// the systemd watchdog into calls on that context.
package daemon

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	sysdnotify "github.com/coreos/go-systemd/daemon"
	"github.com/godbus/dbus/v5"

	"github.com/sailfishos/usb-moded-sub000/appsync"
	"github.com/sailfishos/usb-moded-sub000/backend"
	"github.com/sailfishos/usb-moded-sub000/cable"
	"github.com/sailfishos/usb-moded-sub000/catalog"
	"github.com/sailfishos/usb-moded-sub000/dbusapi"
	"github.com/sailfishos/usb-moded-sub000/dirs"
	"github.com/sailfishos/usb-moded-sub000/identity"
	"github.com/sailfishos/usb-moded-sub000/logger"
	"github.com/sailfishos/usb-moded-sub000/modes"
	"github.com/sailfishos/usb-moded-sub000/network"
	"github.com/sailfishos/usb-moded-sub000/selection"
	"github.com/sailfishos/usb-moded-sub000/settings"
	"github.com/sailfishos/usb-moded-sub000/wakelock"
	"github.com/sailfishos/usb-moded-sub000/worker"
)

// Config mirrors the §6 command-line flags that shape daemon behavior.
type Config struct {
	Fallback      bool // pretend cable is always PcConnected
	Diag          bool
	Rescue        bool
	MaxCableDelay time.Duration
	Systemd       bool
	InitDoneWait  time.Duration
}

// ClampMaxCableDelay enforces §6's "clamp 0…4000" in milliseconds.
func ClampMaxCableDelay(ms int) time.Duration {
	if ms < 0 {
		ms = 0
	}
	if ms > 4000 {
		ms = 4000
	}
	return time.Duration(ms) * time.Millisecond
}

// bcastProxy lets selection.Engine be constructed before the dbusapi
// Server that implements its Broadcaster exists, and vice versa: both
// depend on each other, so each is handed a small forwarding proxy at
// construction and patched with the real value once it exists (spec §9
// "daemon context... passed to components").
type bcastProxy struct {
	server *dbusapi.Server
}

func (b *bcastProxy) BroadcastTarget(mode modes.Name) {
	if b.server != nil {
		b.server.BroadcastTarget(mode)
	}
}

func (b *bcastProxy) BroadcastExternal(mode modes.Name) {
	if b.server != nil {
		b.server.BroadcastExternal(mode)
	}
}

// validatorProxy breaks the construction cycle between settings.Store
// (which wants a ModeValidator) and selection.Engine (which implements
// one but is built from a *settings.Store).
type validatorProxy struct {
	engine *selection.Engine
}

func (v *validatorProxy) IsValidSelectableMode(mode modes.Name, uid int) bool {
	if v.engine == nil {
		return true
	}
	return v.engine.IsValidSelectableMode(mode, uid)
}

// notifyProxy is the same forwarding trick applied to
// settings.ChangeNotifier, so Store.Set can broadcast config-changed
// once the Server exists without the two packages depending on each
// other's constructors.
type notifyProxy struct {
	server *dbusapi.Server
}

func (n *notifyProxy) notify(group, key string) {
	if n.server != nil {
		n.server.BroadcastConfigChanged(group, key)
	}
}

// Daemon holds every long-lived component, constructed once in New and
// driven by Run.
type Daemon struct {
	cfg Config

	conn   *dbus.Conn
	server *dbusapi.Server

	settings *settings.Store
	catalog  *catalog.Catalog
	diagDesc *catalog.Descriptor

	identity identity.Info
	netPlan  network.Plan

	cableTracker *cable.Tracker
	monitor      *cable.Monitor

	backend *backend.Selector
	worker  *worker.Worker
	engine  *selection.Engine
	locks   *wakelock.Manager

	initDoneTicker *time.Ticker
}

// New constructs every component and wires them together, but starts
// nothing that spawns a goroutine; call Run to start the daemon.
func New(cfg Config, conn *dbus.Conn) (*Daemon, error) {
	d := &Daemon{cfg: cfg, conn: conn}

	vp := &validatorProxy{}
	np := &notifyProxy{}
	store, err := settings.New(vp, np.notify)
	if err != nil {
		return nil, fmt.Errorf("daemon: loading settings: %w", err)
	}
	d.settings = store

	catDir := dirs.ModeCatalogDir
	if cfg.Diag {
		catDir = dirs.ModeCatalogDiagDir
	}
	cat, err := catalog.Load(catDir)
	if err != nil {
		return nil, fmt.Errorf("daemon: loading mode catalog: %w", err)
	}
	d.catalog = cat

	if diag, err := catalog.LoadDiag(dirs.ModeCatalogDiagDir); err == nil {
		d.diagDesc = diag
	}

	cmdline := identity.ReadCmdline(dirs.ProcCmdline)
	d.identity = identity.Load(store, cmdline)
	if plan, ok := network.ParsePlan(cmdline); ok {
		d.netPlan = plan
	}

	functions := backend.DefaultFunctionMap()
	sel, err := backend.Select(backend.Paths{
		ConfigfsGadgetDir: dirs.ConfigfsGadgetDir,
		AndroidUSBDir:     dirs.AndroidUsbDir,
		UDCClassDir:       dirs.SysClassUDC,
		ProcModules:       "/proc/modules",
	}, functions, nil)
	if err != nil {
		return nil, fmt.Errorf("daemon: selecting gadget backend: %w", err)
	}
	d.backend = sel
	sel.SeedIdentity(d.identity.VendorID, d.identity.ProductID, d.identity.Manufacturer, d.identity.Product, d.identity.Serial)
	sel.SetChargerProductID(d.identity.ChargerProductID)

	d.locks = wakelock.New(dirs.GlobalRootDir + "/sys/power")

	var engine *selection.Engine
	netCtl := &networkController{plan: d.netPlan}
	w := worker.New(cat, sel, appsync.LoggingSyncer{Next: appsync.NopSyncer{}}, nil, netCtl, func(hwMode string) {
		if engine != nil {
			engine.OnWorkerComplete(hwMode)
		}
	})
	d.worker = w

	bp := &bcastProxy{}
	engine = selection.New(cat, d.diagDesc, store, w, bp)
	d.engine = engine
	vp.engine = engine

	server, err := dbusapi.NewServer(conn, engine)
	if err != nil {
		return nil, fmt.Errorf("daemon: exporting D-Bus surface: %w", err)
	}
	d.server = server
	bp.server = server
	np.server = server

	ps := cable.NewSysfsPowerSupplyReader("/sys/class/power_supply")
	tracker := cable.NewTracker(ps, "", nil, nil, cfg.MaxCableDelay, func(s cable.State) {
		if cfg.Fallback {
			s = cable.PcConnected
		}
		engine.SetCable(s)
		d.locks.Acquire(wakelock.StateChange, wakelock.DefaultTimeout)
	}, func(connected bool) {
		server.BroadcastLegacyCable(connected)
	})
	d.cableTracker = tracker

	if mon, err := cable.OpenMonitor(); err == nil {
		d.monitor = mon
	} else {
		logger.Warningf("daemon: udev monitor unavailable, falling back to polling only: %v", err)
	}

	return d, nil
}

// Run starts every background activity and blocks until the context is
// canceled or a fatal error occurs, then tears everything down (spec §9
// "signal handling... self-pipe equivalent").
func (d *Daemon) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT, syscall.SIGHUP)
	defer signal.Stop(sigCh)

	d.worker.Start()
	defer d.worker.Stop()

	if err := d.cableTracker.ResolveDevice(); err != nil {
		logger.Warningf("daemon: resolving cable device: %v", err)
	}
	d.cableTracker.Poll()

	d.engine.SetFlags(selection.Flags{
		UID:            -1,
		CanExport:      true,
		InShutdown:     false,
		InitDone:       initDoneSignaled(),
		Rescue:         d.cfg.Rescue,
		Diagnostic:     d.cfg.Diag,
		ControlEnabled: true,
	})

	if d.cfg.Systemd {
		if ok, err := sysdnotify.SdNotify(false, sysdnotify.SdNotifyReady); err != nil {
			logger.Warningf("daemon: systemd notify failed: %v", err)
		} else if !ok {
			logger.Debugf("daemon: not running under systemd notify socket")
		}
	}

	if !initDoneSignaled() {
		d.startInitDonePolling(ctx)
	}

	pollTicker := time.NewTicker(time.Second)
	defer pollTicker.Stop()

	watchdogInterval := d.watchdogInterval()
	var watchdogTicker *time.Ticker
	if watchdogInterval > 0 {
		watchdogTicker = time.NewTicker(watchdogInterval)
		defer watchdogTicker.Stop()
	}

	udevCh := d.startUdevReader(ctx)

	for {
		select {
		case <-ctx.Done():
			d.shutdown()
			return nil

		case sig := <-sigCh:
			switch sig {
			case syscall.SIGHUP:
				if err := d.settings.Reload(); err != nil {
					logger.Warningf("daemon: reloading settings: %v", err)
				}
				catDir := dirs.ModeCatalogDir
				if d.cfg.Diag {
					catDir = dirs.ModeCatalogDiagDir
				}
				if err := d.catalog.Reload(catDir); err != nil {
					logger.Warningf("daemon: reloading mode catalog: %v", err)
				}
			default:
				d.shutdown()
				return nil
			}

		case <-pollTicker.C:
			d.cableTracker.Poll()

		case <-udevCh:
			d.locks.Acquire(wakelock.ProcessInput, wakelock.DefaultTimeout)
			d.cableTracker.Poll()

		case <-watchdogTick(watchdogTicker):
			d.worker.Ping()
			if _, err := sysdnotify.SdNotify(false, sysdnotify.SdNotifyWatchdog); err != nil {
				logger.Warningf("daemon: systemd watchdog notify: %v", err)
			}
		}
	}
}

// watchdogTick returns t.C, or a nil channel (which blocks forever in a
// select) when t is nil, so the watchdog case is simply absent.
func watchdogTick(t *time.Ticker) <-chan time.Time {
	if t == nil {
		return nil
	}
	return t.C
}

// watchdogInterval reports the half-interval at which to ping the
// systemd watchdog, or 0 if WATCHDOG_USEC is unset (systemd convention:
// ping at less than the full timeout).
func (d *Daemon) watchdogInterval() time.Duration {
	if !d.cfg.Systemd {
		return 0
	}
	usec, err := sysdnotify.SdWatchdogEnabled(false)
	if err != nil || usec == 0 {
		return 0
	}
	return usec / 2
}

func initDoneSignaled() bool {
	_, err := os.Stat(dirs.InitDoneFlag)
	return err == nil
}

// startInitDonePolling implements SPEC_FULL supplemented feature 1: poll
// for the init-done flag file on a short interval until it appears.
func (d *Daemon) startInitDonePolling(ctx context.Context) {
	interval := d.cfg.InitDoneWait
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	d.initDoneTicker = time.NewTicker(interval)
	go func() {
		defer d.initDoneTicker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-d.initDoneTicker.C:
				if initDoneSignaled() {
					d.engine.SetFlags(selection.Flags{
						UID:            -1,
						CanExport:      true,
						InitDone:       true,
						Rescue:         d.cfg.Rescue,
						Diagnostic:     d.cfg.Diag,
						ControlEnabled: true,
					})
					return
				}
			}
		}
	}()
}

// startUdevReader reads the netlink uevent monitor (when available) on
// its own goroutine and forwards a tick on every event, since cable.Poll
// itself does the actual re-scoring (spec §4.F).
func (d *Daemon) startUdevReader(ctx context.Context) <-chan struct{} {
	ch := make(chan struct{}, 1)
	if d.monitor == nil {
		return ch
	}
	go func() {
		for {
			if ctx.Err() != nil {
				return
			}
			if _, err := d.monitor.Read(); err != nil {
				logger.Warningf("daemon: udev monitor read: %v", err)
				return
			}
			select {
			case ch <- struct{}{}:
			default:
			}
		}
	}()
	return ch
}

// shutdown releases every wake-lock synchronously, the one case spec §5
// allows (spec §5 "never released synchronously ... except on explicit
// clean shutdown"), and closes the udev monitor.
func (d *Daemon) shutdown() {
	logger.Noticef("daemon: shutting down")
	d.locks.ReleaseAll()
	if d.monitor != nil {
		d.monitor.Close()
	}
}
