// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package block

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sys/unix"
)

// Partition table reread parameters.
const (
	rereadTimeout  = 5 * time.Second
	rereadInterval = 50 * time.Millisecond
)

// RereadPartitionTable invokes the BLKRRPART ioctl to have the kernel read the
// partition table.
//
// After a full wipe the table is gone, so this drops stale partitions from the kernel.
// EBUSY is retried for a few seconds, as udev might still hold the device open.
func (d *Device) RereadPartitionTable() error {
	deadline := time.Now().Add(rereadTimeout)

	for {
		_, _, errno := unix.Syscall(unix.SYS_IOCTL, d.f.Fd(), unix.BLKRRPART, 0)
		runtime.KeepAlive(d)

		switch {
		case errno == 0:
			return nil
		case errors.Is(errno, unix.EBUSY) && time.Now().Before(deadline):
			time.Sleep(rereadInterval)
		default:
			return fmt.Errorf("failed to re-read partition table: %w", errno)
		}
	}
}

// GetKernelLastPartitionNum returns the maximum partition number in the kernel.
func (d *Device) GetKernelLastPartitionNum() (int, error) {
	sysFsPath, err := d.sysFsPath()
	if err != nil {
		return 0, err
	}

	contents, err := os.ReadDir(sysFsPath)
	if err != nil {
		return 0, err
	}

	var max int

	for _, entry := range contents {
		if !entry.IsDir() {
			continue
		}

		raw, err := os.ReadFile(filepath.Join(sysFsPath, entry.Name(), "partition"))
		if err != nil {
			continue
		}

		partNum, err := strconv.Atoi(strings.TrimSpace(string(raw)))
		if err != nil {
			continue
		}

		if partNum > max {
			max = partNum
		}
	}

	return max, nil
}
