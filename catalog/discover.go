// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package catalog

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/siderolabs/go-pointer"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// sectorSize is the unit of sysfs size and start attributes, independent of the logical block size.
const sectorSize = 512

// Catalog discovers blockdevices.
type Catalog struct {
	options Options
}

// New returns a new Catalog.
func New(opts ...Option) *Catalog {
	return &Catalog{
		options: applyOptions(opts...),
	}
}

// Discover lists all blockdevices with their partitions and the current mount status.
//
// Any failure to read the system tables is returned as *DiscoveryError: there is no
// partial result. Devices which disappear while being listed are skipped.
func (c *Catalog) Discover(ctx context.Context) ([]*Device, error) {
	mounts, err := c.readMounts()
	if err != nil {
		return nil, err
	}

	entries, err := afero.ReadDir(c.options.Fs, c.options.SysBlock)
	if err != nil {
		return nil, &DiscoveryError{Path: c.options.SysBlock, Err: err}
	}

	devices := []*Device{}

	for _, entry := range entries {
		if err = ctx.Err(); err != nil {
			return nil, err
		}

		name := entry.Name()

		if c.skipped(name) {
			continue
		}

		dev, err := c.readDevice(name, mounts)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				c.options.Logger.Debug("device vanished during discovery", zap.String("device", name), zap.Error(err))

				continue
			}

			return nil, &DiscoveryError{Path: filepath.Join(c.options.SysBlock, name), Err: err}
		}

		if dev == nil {
			continue
		}

		c.options.Logger.Debug("discovered device",
			zap.String("device", dev.Path),
			zap.Uint64("size", dev.Size),
			zap.Int("partitions", len(dev.Partitions)),
			zap.Bool("in_use", dev.InUse()),
		)

		devices = append(devices, dev)
	}

	return devices, nil
}

func (c *Catalog) skipped(name string) bool {
	for _, prefix := range c.options.SkipPrefixes {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}

	return false
}

func (c *Catalog) readMounts() (*mountTable, error) {
	table := newMountTable()

	f, err := c.options.Fs.Open(c.options.MountInfo)
	if err != nil {
		return nil, &DiscoveryError{Path: c.options.MountInfo, Err: err}
	}

	defer f.Close() //nolint:errcheck

	entries, err := parseMountInfo(f)
	if err != nil {
		return nil, &DiscoveryError{Path: c.options.MountInfo, Err: err}
	}

	for _, e := range entries {
		table.add(e)
	}

	// /proc/swaps is missing if the kernel is built without swap support
	swaps, err := c.options.Fs.Open(c.options.Swaps)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return table, nil
		}

		return nil, &DiscoveryError{Path: c.options.Swaps, Err: err}
	}

	defer swaps.Close() //nolint:errcheck

	swapEntries, err := parseSwaps(swaps)
	if err != nil {
		return nil, &DiscoveryError{Path: c.options.Swaps, Err: err}
	}

	for _, e := range swapEntries {
		table.add(e)
	}

	return table, nil
}

func (c *Catalog) readFile(parts ...string) (string, error) {
	data, err := afero.ReadFile(c.options.Fs, filepath.Join(parts...))
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(string(data)), nil
}

// readOptional reads an attribute which might be missing.
func (c *Catalog) readOptional(parts ...string) string {
	s, _ := c.readFile(parts...) //nolint:errcheck

	return s
}

func (c *Catalog) readSectors(parts ...string) (uint64, error) {
	s, err := c.readFile(parts...)
	if err != nil {
		return 0, err
	}

	sectors, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed %s: %w", filepath.Join(parts...), err)
	}

	return sectors * sectorSize, nil
}

func (c *Catalog) readDevNo(parts ...string) (string, error) {
	s, err := c.readFile(parts...)
	if err != nil {
		return "", err
	}

	major, minor, ok := strings.Cut(s, ":")
	if !ok || major == "" || minor == "" {
		return "", fmt.Errorf("malformed %s: %q", filepath.Join(parts...), s)
	}

	return s, nil
}

// hasHolders returns true if another blockdevice (device-mapper, md) is built on top of the device.
func (c *Catalog) hasHolders(parts ...string) bool {
	holders, err := afero.ReadDir(c.options.Fs, filepath.Join(append(parts, "holders")...))
	if err != nil {
		return false
	}

	return len(holders) > 0
}

func (c *Catalog) udev(devNo string) udevProperties {
	f, err := c.options.Fs.Open(filepath.Join(c.options.UdevData, "b"+devNo))
	if err != nil {
		return udevProperties{}
	}

	defer f.Close() //nolint:errcheck

	props, err := parseUdevData(f)
	if err != nil {
		c.options.Logger.Debug("failed to parse udev data", zap.String("devno", devNo), zap.Error(err))

		return udevProperties{}
	}

	return props
}

func (c *Catalog) readDevice(name string, mounts *mountTable) (*Device, error) {
	base := filepath.Join(c.options.SysBlock, name)

	size, err := c.readSectors(base, "size")
	if err != nil {
		return nil, err
	}

	// empty loop devices, card readers without media
	if size == 0 {
		return nil, nil //nolint:nilnil
	}

	devNo, err := c.readDevNo(base, "dev")
	if err != nil {
		return nil, err
	}

	props := c.udev(devNo)

	dev := &Device{
		Path:     filepath.Join(c.options.DevDir, name),
		Name:     name,
		DevNo:    devNo,
		Size:     size,
		Model:    c.readOptional(base, "device", "model"),
		Serial:   c.readOptional(base, "serial"),
		Type:     c.diskType(name, base),
		ReadOnly: c.readOptional(base, "ro") == "1",
	}

	if dev.Serial == "" {
		dev.Serial = c.readOptional(base, "device", "serial")
	}

	if dev.Serial == "" {
		dev.Serial = props["ID_SERIAL_SHORT"]
	}

	dev.MountPoints = mounts.lookup(devNo, dev.Path)
	dev.Mounted = len(dev.MountPoints) > 0 || c.hasHolders(base)

	entries, err := afero.ReadDir(c.options.Fs, base)
	if err != nil {
		return nil, err
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		if _, err = c.options.Fs.Stat(filepath.Join(base, entry.Name(), "partition")); err != nil {
			continue
		}

		part, err := c.readPartition(base, entry.Name(), mounts)
		if err != nil {
			return nil, err
		}

		dev.Partitions = append(dev.Partitions, part)
	}

	slices.SortFunc(dev.Partitions, func(a, b *Partition) int {
		return a.Number - b.Number
	})

	return dev, nil
}

func (c *Catalog) readPartition(base, name string, mounts *mountTable) (*Partition, error) {
	partBase := filepath.Join(base, name)

	number, err := c.readFile(partBase, "partition")
	if err != nil {
		return nil, err
	}

	part := &Partition{
		Path: filepath.Join(c.options.DevDir, name),
		Name: name,
	}

	if part.Number, err = strconv.Atoi(number); err != nil {
		return nil, fmt.Errorf("malformed partition number of %s: %w", name, err)
	}

	if part.Size, err = c.readSectors(partBase, "size"); err != nil {
		return nil, err
	}

	if part.Start, err = c.readSectors(partBase, "start"); err != nil {
		return nil, err
	}

	if part.DevNo, err = c.readDevNo(partBase, "dev"); err != nil {
		return nil, err
	}

	props := c.udev(part.DevNo)

	var uevent map[string]string

	if f, err := c.options.Fs.Open(filepath.Join(partBase, "uevent")); err == nil {
		uevent, _ = parseUevent(f) //nolint:errcheck
		f.Close()                   //nolint:errcheck
	}

	for _, label := range []string{props["ID_FS_LABEL"], uevent["PARTNAME"], props["ID_PART_ENTRY_NAME"]} {
		if label != "" {
			part.Label = pointer.To(label)

			break
		}
	}

	part.Filesystem = props["ID_FS_TYPE"]

	if partUUID := props["ID_PART_ENTRY_UUID"]; partUUID != "" {
		if u, err := uuid.Parse(partUUID); err == nil {
			part.PartitionUUID = &u
		} else {
			c.options.Logger.Debug("invalid partition UUID", zap.String("partition", name), zap.String("uuid", partUUID))
		}
	}

	part.MountPoints = mounts.lookup(part.DevNo, part.Path)
	part.Mounted = len(part.MountPoints) > 0 || c.hasHolders(partBase)

	return part, nil
}

func (c *Catalog) diskType(name, base string) Type {
	rotational := c.readOptional(base, "queue", "rotational")

	switch {
	case strings.Contains(name, "nvme"):
		return TypeNVMe
	case strings.Contains(name, "mmc"):
		return TypeSD
	case rotational == "1":
		return TypeHDD
	case rotational == "0":
		return TypeSSD
	}

	return TypeUnknown
}
