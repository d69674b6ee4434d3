// -*- Mode: Go; indent-tabs-mode: t -*-

/*
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Lesser General Public License version 2.1
 * as published by the Free Software Foundation.
 */

package cable

import (
	"github.com/juju/ratelimit"

	"github.com/sailfishos/usb-moded-sub000/logger"
)

// Reading is one sample gathered from the power-supply device (and
// optionally overridden by extcon/android), fed into classify.
type Reading struct {
	Online bool
	Type   string // empty means "missing" per spec §4.F

	HaveExtconOverride bool
	ExtconUSB          bool

	HaveAndroidOverride bool
	AndroidState        androidUSBState
}

// classifier applies the spec §4.F fusion rules, remembering the previous
// "definite" charger classification so a USB_PD device that briefly
// reports as DCP before settling on PD keeps its prior classification
// (spec §4.F and §9 Open Questions: "interaction between USB_PD
// classification and very fast disconnect/reconnect is heuristic").
type classifier struct {
	prevChargerClassified bool
	prevWasCharger        bool

	warnBucket *ratelimit.Bucket
}

func newClassifier() *classifier {
	return &classifier{
		// At most one "unexpected type" warning per 5 seconds, so a
		// flapping PD charger cannot flood the log (spec §4.F, SPEC_FULL
		// domain-stack wiring for juju/ratelimit).
		warnBucket: ratelimit.NewBucketWithRate(1.0/5.0, 1),
	}
}

// classify applies the fusion rules in spec §4.F and returns the fused
// cable state for this reading. Extcon/android overrides, when present,
// take priority over the raw power-supply reading as described there.
func (cl *classifier) classify(r Reading) State {
	if r.HaveAndroidOverride {
		switch r.AndroidState {
		case androidDisconnected:
			return Disconnected
		case androidConnected, androidConfigured:
			return PcConnected
		}
	}
	if r.HaveExtconOverride {
		if !r.ExtconUSB {
			return Disconnected
		}
		return PcConnected
	}

	if !r.Online {
		cl.recordCharger(false)
		return Disconnected
	}

	switch chargerType(r.Type) {
	case typeUnset:
		cl.recordCharger(false)
		return PcConnected
	case typeUSB, typeUSBCDP:
		cl.recordCharger(false)
		return PcConnected
	case typeUSBDCP, typeUSBHVDCP, typeUSBHVDCP3:
		cl.recordCharger(true)
		return ChargerConnected
	case typeUSBPD:
		if cl.prevChargerClassified && cl.prevWasCharger {
			return ChargerConnected
		}
		cl.recordCharger(false)
		return PcConnected
	case typeUSBFloat:
		if !cl.prevChargerClassified || !cl.prevWasCharger {
			cl.warn("unexpected USB_FLOAT while not previously connected as a charger")
		}
		cl.recordCharger(true)
		return ChargerConnected
	case typeUnknown:
		cl.recordCharger(false)
		return Disconnected
	default:
		cl.warn("unrecognized power-supply type %q, treating as PC connection", r.Type)
		cl.recordCharger(false)
		return PcConnected
	}
}

func (cl *classifier) recordCharger(isCharger bool) {
	cl.prevChargerClassified = true
	cl.prevWasCharger = isCharger
}

func (cl *classifier) warn(format string, args ...interface{}) {
	if cl.warnBucket.TakeAvailable(1) == 0 {
		return
	}
	logger.Warningf("cable: "+format, args...)
}
