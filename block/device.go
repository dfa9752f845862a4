// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package block provides support for operations on blockdevices.
package block

import (
	"errors"
	"os"
)

// Device wraps blockdevice operations.
type Device struct {
	f *os.File

	ownedFile bool
	locked    bool
	devNo     uint64
}

// NewFromFile returns a new Device from the specified file.
//
// The file might be a blockdevice or a regular file (a disk image).
// The file is not closed by Device.Close.
func NewFromFile(f *os.File) *Device {
	return &Device{f: f}
}

// DefaultBlockSize is the default block size in bytes.
const DefaultBlockSize = 512

// ErrDeviceBusy is returned when the device is opened exclusively but is in use
// (mounted, held by device-mapper/md or opened exclusively by another process).
var ErrDeviceBusy = errors.New("device is busy")
