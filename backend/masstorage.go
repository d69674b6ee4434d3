// -*- Mode: Go; indent-tabs-mode: t -*-

/*
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Lesser General Public License version 2.1
 * as published by the Free Software Foundation.
 */

package backend

import (
	"fmt"
	"path/filepath"
)

// MassStorage manages the mass_storage function's logical units (spec §4.A
// "mass storage lun management"). One sequence is used for every lun,
// with or without siblings: disable UDC, clear "file", write the lun's
// attributes and the new backing file. The UDC is left disabled; the
// caller re-enables it once all luns are programmed.
type MassStorage struct {
	sysfs   *SysfsBackend
	lunBase string // e.g. .../functions/mass_storage.usb0/lun
}

// NewMassStorage constructs the lun manager for the given mass_storage
// function directory.
func NewMassStorage(sysfs *SysfsBackend, functionDir string) *MassStorage {
	return &MassStorage{sysfs: sysfs, lunBase: filepath.Join(functionDir, "lun")}
}

func (m *MassStorage) lunDir(lun int) string {
	return fmt.Sprintf("%s.%d", m.lunBase, lun)
}

// SetBackingFile programs lun N's backing file, always going through the
// UDC-disable/clear/write sequence described above.
func (m *MassStorage) SetBackingFile(lun int, path string, removable, cdrom bool) bool {
	m.sysfs.SetUDC(false)

	dir := m.lunDir(lun)
	ok := m.sysfs.Write(filepath.Join(dir, "file"), "")
	ok = m.sysfs.Write(filepath.Join(dir, "removable"), boolAttr(removable)) && ok
	ok = m.sysfs.Write(filepath.Join(dir, "cdrom"), boolAttr(cdrom)) && ok
	if path != "" {
		ok = m.sysfs.Write(filepath.Join(dir, "file"), path) && ok
	}
	return ok
}

// ClearBackingFile disables the UDC, empties lun N's backing file and
// drops the file attribute from tracking; the UDC is left disabled.
func (m *MassStorage) ClearBackingFile(lun int) bool {
	m.sysfs.SetUDC(false)
	ok := m.sysfs.Write(filepath.Join(m.lunDir(lun), "file"), "")
	m.sysfs.Reset(filepath.Join(m.lunDir(lun), "file"))
	return ok
}

func boolAttr(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
