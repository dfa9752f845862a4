// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package catalog lists blockdevices and their partitions together with their mount status.
//
// The information is gathered from /sys/block, the mount table, /proc/swaps and
// the udev database. It is a snapshot taken at discovery time and is never refreshed.
package catalog

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/siderolabs/gen/xslices"
)

// Type is the disk type: HDD, SSD, SD card, NVMe drive.
type Type int

const (
	// TypeUnknown is set when couldn't detect the disk type.
	TypeUnknown Type = iota
	// TypeSSD SATA SSD disk.
	TypeSSD
	// TypeHDD HDD disk.
	TypeHDD
	// TypeNVMe NVMe disk.
	TypeNVMe
	// TypeSD SD card.
	TypeSD
)

func (t Type) String() string {
	//nolint:exhaustive
	switch t {
	case TypeSSD:
		return "ssd"
	case TypeHDD:
		return "hdd"
	case TypeNVMe:
		return "nvme"
	case TypeSD:
		return "sd"
	default:
		return "unknown"
	}
}

// Device is a whole blockdevice.
//
//nolint:govet
type Device struct {
	// Path is the device node, e.g. /dev/sda.
	Path string
	// Name is the kernel name, e.g. sda.
	Name string
	// DevNo is major:minor of the device.
	DevNo string
	// Size in bytes.
	Size uint64
	// Model from /sys/block/<dev>/device/model.
	Model string
	// Serial of the device, if known.
	Serial string
	// Type is the disk type: HDD, SSD, SD card, NVMe drive.
	Type Type
	// ReadOnly indicates that the kernel has marked this disk as read-only.
	ReadOnly bool

	// Mounted is set if the whole disk (not a partition) is in use:
	// mounted, used as swap or held by another blockdevice.
	Mounted bool
	// MountPoints of the whole disk.
	MountPoints []string

	// Partitions ordered by partition number.
	Partitions []*Partition
}

// Partition is a partition of a Device.
//
//nolint:govet
type Partition struct {
	// Path is the device node, e.g. /dev/sda1.
	Path string
	// Name is the kernel name, e.g. sda1.
	Name string
	// DevNo is major:minor of the partition.
	DevNo string
	// Number is the 1-based partition number.
	Number int
	// Start and Size in bytes.
	Start, Size uint64

	// Label is the filesystem label, or the partition name if there is no filesystem label.
	Label *string
	// Filesystem type, if known to udev.
	Filesystem string
	// PartitionUUID is the partition entry UUID, if known to udev.
	PartitionUUID *uuid.UUID

	// Mounted is set if the partition is mounted, used as swap or held by another blockdevice.
	Mounted bool
	// MountPoints of the partition.
	MountPoints []string
}

// InUse returns true if the device or any of its partitions is mounted.
func (d *Device) InUse() bool {
	if d.Mounted {
		return true
	}

	for _, p := range d.Partitions {
		if p.Mounted {
			return true
		}
	}

	return false
}

func (d *Device) String() string {
	var b strings.Builder

	fmt.Fprintf(&b, "%s (%d bytes", d.Path, d.Size)

	if d.Model != "" {
		fmt.Fprintf(&b, ", %s", d.Model)
	}

	fmt.Fprintf(&b, ", %s)", d.Type)

	return b.String()
}

func (p *Partition) String() string {
	label := "<no label>"
	if p.Label != nil {
		label = *p.Label
	}

	mounted := "unmounted"
	if p.Mounted {
		mounted = "mounted"

		if len(p.MountPoints) > 0 {
			mounted += " on " + strings.Join(p.MountPoints, ", ")
		}
	}

	return fmt.Sprintf("%s %q (%d bytes, %s)", p.Path, label, p.Size, mounted)
}

// Unmounted returns the devices which can be wiped: neither the device nor any of its partitions is in use.
func Unmounted(devices []*Device) []*Device {
	return xslices.Filter(devices, func(d *Device) bool {
		return !d.InUse()
	})
}

// Mounted returns the devices which are in use, the complement of Unmounted.
func Mounted(devices []*Device) []*Device {
	return xslices.Filter(devices, (*Device).InUse)
}

// DiscoveryError is returned when the system blockdevice or mount metadata can't be read.
type DiscoveryError struct {
	Path string
	Err  error
}

func (e *DiscoveryError) Error() string {
	return fmt.Sprintf("failed to discover blockdevices: %s: %v", e.Path, e.Err)
}

func (e *DiscoveryError) Unwrap() error {
	return e.Err
}
