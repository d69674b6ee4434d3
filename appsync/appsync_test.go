// -*- Mode: Go; indent-tabs-mode: t -*-

/*
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Lesser General Public License version 2.1
 * as published by the Free Software Foundation.
 */

package appsync_test

import (
	"testing"

	. "gopkg.in/check.v1"

	"github.com/sailfishos/usb-moded-sub000/appsync"
)

func Test(t *testing.T) { TestingT(t) }

type AppsyncSuite struct{}

var _ = Suite(&AppsyncSuite{})

func (s *AppsyncSuite) TestNopSyncerReportsSkipped(c *C) {
	var syncer appsync.Syncer = appsync.NopSyncer{}
	ok, skipped := syncer.ActivatePre("mtp")
	c.Check(ok, Equals, true)
	c.Check(skipped, Equals, true)

	ok, skipped = syncer.ActivatePost("mtp")
	c.Check(ok, Equals, true)
	c.Check(skipped, Equals, true)

	c.Check(syncer.Deactivate("mtp", false), Equals, true)
}

type recordingSyncer struct {
	calls []string
}

func (r *recordingSyncer) ActivatePre(mode string) (bool, bool) {
	r.calls = append(r.calls, "pre:"+mode)
	return true, false
}
func (r *recordingSyncer) ActivatePost(mode string) (bool, bool) {
	r.calls = append(r.calls, "post:"+mode)
	return true, false
}
func (r *recordingSyncer) Deactivate(mode string, force bool) bool {
	r.calls = append(r.calls, "deactivate:"+mode)
	return true
}
func (r *recordingSyncer) MarkActive(mode string, post bool) {
	r.calls = append(r.calls, "mark:"+mode)
}

func (s *AppsyncSuite) TestLoggingSyncerDelegates(c *C) {
	rec := &recordingSyncer{}
	syncer := appsync.LoggingSyncer{Next: rec}

	ok, skipped := syncer.ActivatePre("mass_storage")
	c.Check(ok, Equals, true)
	c.Check(skipped, Equals, false)
	syncer.MarkActive("mass_storage", true)

	c.Check(rec.calls, DeepEquals, []string{"pre:mass_storage", "mark:mass_storage"})
}
