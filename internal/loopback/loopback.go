// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package loopback contains common test code for tests which rely on loopback devices.
package loopback

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/freddierice/go-losetup/v2"
	"github.com/siderolabs/go-cmd/pkg/cmd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Sizes used by tests.
const (
	KiB = 1024
	MiB = 1024 * KiB
	GiB = 1024 * MiB
)

// Device is a loopback device attached to a sparse image file.
type Device struct {
	// Path to the loop device, e.g. /dev/loop0.
	Path string

	// Image is the backing file, opened for read-write.
	Image *os.File
}

// SkipIfNotRoot skips the test unless running as root.
func SkipIfNotRoot(t testing.TB) {
	t.Helper()

	if os.Geteuid() != 0 {
		t.Skip("skipping test; must be root")
	}
}

// Attach creates a sparse image of the given size and attaches it to a loop device.
//
// The device is detached and the image is closed on test cleanup.
func Attach(t testing.TB, size int64) *Device {
	t.Helper()

	SkipIfNotRoot(t)

	rawImage := filepath.Join(t.TempDir(), "image.raw")

	f, err := os.Create(rawImage)
	require.NoError(t, err)

	require.NoError(t, f.Truncate(size))

	t.Cleanup(func() {
		assert.NoError(t, f.Close())
	})

	loDev, err := losetup.Attach(rawImage, 0, false)
	require.NoError(t, err)

	t.Cleanup(func() {
		assert.NoError(t, loDev.Detach())
	})

	return &Device{
		Path:  loDev.Path(),
		Image: f,
	}
}

// Partition writes a partition table with sfdisk and makes the kernel pick it up.
//
// The script is in sfdisk input format.
func (d *Device) Partition(t testing.TB, script string) {
	t.Helper()

	ctx := cmd.WithStdin(context.Background(), strings.NewReader(strings.TrimSpace(script)))

	_, err := cmd.RunContext(ctx, "sfdisk", d.Path)
	require.NoError(t, err)

	_, err = cmd.Run("partprobe", d.Path)
	require.NoError(t, err)
}

// PartitionPath returns the path of the numbered partition.
func (d *Device) PartitionPath(n int) string {
	return d.Path + "p" + strconv.Itoa(n)
}
