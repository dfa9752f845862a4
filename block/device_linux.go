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
	"unsafe"

	"go.uber.org/multierr"
	"golang.org/x/sys/unix"
)

// NewFromPath returns a new Device from the specified path.
func NewFromPath(path string, opts ...Option) (*Device, error) {
	options := applyOptions(opts...)

	flag := options.Flag | unix.O_CLOEXEC

	if options.Exclusive {
		flag |= unix.O_EXCL
	}

	f, err := os.OpenFile(path, flag, 0)
	if err != nil {
		if errors.Is(err, unix.EBUSY) {
			return nil, fmt.Errorf("failed to open %q: %w", path, ErrDeviceBusy)
		}

		return nil, err
	}

	d := &Device{
		f:         f,
		ownedFile: true,
	}

	if options.ExclusiveLock {
		if err = d.Lock(true); err != nil {
			f.Close() //nolint:errcheck

			return nil, fmt.Errorf("error locking device %q: %w", path, err)
		}

		d.locked = true
	}

	return d, nil
}

// Close releases the lock (if taken on open) and closes the device file if it is owned.
func (d *Device) Close() error {
	var err error

	if d.locked {
		err = d.Unlock()
		d.locked = false
	}

	if d.ownedFile {
		err = multierr.Append(err, d.f.Close())
	}

	return err
}

// ReadAt implements io.ReaderAt.
func (d *Device) ReadAt(p []byte, off int64) (int, error) {
	return d.f.ReadAt(p, off)
}

// WriteAt implements io.WriterAt.
func (d *Device) WriteAt(p []byte, off int64) (int, error) {
	return d.f.WriteAt(p, off)
}

func (d *Device) stat() (*unix.Stat_t, error) {
	var st unix.Stat_t
	if err := unix.Fstat(int(d.f.Fd()), &st); err != nil {
		return nil, err
	}

	return &st, nil
}

// IsBlockDevice returns true if the underlying file is a blockdevice (and not an image file).
func (d *Device) IsBlockDevice() (bool, error) {
	st, err := d.stat()
	if err != nil {
		return false, err
	}

	return st.Mode&unix.S_IFMT == unix.S_IFBLK, nil
}

// GetSize returns blockdevice size in bytes.
//
// For regular files the file size is returned.
func (d *Device) GetSize() (uint64, error) {
	st, err := d.stat()
	if err != nil {
		return 0, err
	}

	if st.Mode&unix.S_IFMT == unix.S_IFREG {
		return uint64(st.Size), nil
	}

	var devsize uint64
	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, d.f.Fd(), unix.BLKGETSIZE64, uintptr(unsafe.Pointer(&devsize))); errno != 0 {
		return 0, errno
	}

	runtime.KeepAlive(d)

	return devsize, nil
}

// GetSectorSize returns blockdevice sector size in bytes.
func (d *Device) GetSectorSize() uint {
	var size uint

	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, d.f.Fd(), uintptr(unix.BLKSSZGET), uintptr(unsafe.Pointer(&size))); errno != 0 {
		return DefaultBlockSize
	}

	runtime.KeepAlive(d)

	if size == 0 {
		return DefaultBlockSize
	}

	return size
}

// Flush commits written data to the medium.
//
// For blockdevices the buffer cache of the device is flushed as well.
func (d *Device) Flush() error {
	if err := d.f.Sync(); err != nil {
		return fmt.Errorf("fsync: %w", err)
	}

	isBlock, err := d.IsBlockDevice()
	if err != nil || !isBlock {
		return err
	}

	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, d.f.Fd(), unix.BLKFLSBUF, 0); errno != 0 {
		return fmt.Errorf("flush block device buffers: %w", errno)
	}

	runtime.KeepAlive(d)

	return nil
}

// GetDevNo returns the device number of the blockdevice.
func (d *Device) GetDevNo() (uint64, error) {
	if d.devNo != 0 {
		return d.devNo, nil
	}

	st, err := d.stat()
	if err != nil {
		return 0, err
	}

	d.devNo = st.Rdev

	return d.devNo, nil
}

func (d *Device) sysFsPath() (string, error) {
	devNo, err := d.GetDevNo()
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("/sys/dev/block/%d:%d", unix.Major(devNo), unix.Minor(devNo)), nil
}

// IsReadOnly returns true if the blockdevice is read-only.
//
// Image files are never reported as read-only.
func (d *Device) IsReadOnly() (bool, error) {
	isBlock, err := d.IsBlockDevice()
	if err != nil || !isBlock {
		return false, err
	}

	sysFsPath, err := d.sysFsPath()
	if err != nil {
		return false, err
	}

	roContents, err := os.ReadFile(filepath.Join(sysFsPath, "ro"))
	if err != nil {
		if !os.IsNotExist(err) {
			return false, err
		}
	}

	if len(roContents) > 0 {
		return roContents[0] == '1', nil
	}

	var flags int
	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, d.f.Fd(), unix.BLKROGET, uintptr(unsafe.Pointer(&flags))); errno != 0 {
		return false, errno
	}

	return flags != 0, nil
}

// Lock (and block until the lock is acquired) for the block device.
func (d *Device) Lock(exclusive bool) error {
	return d.lock(exclusive, 0)
}

// TryLock (and return an error if failed).
func (d *Device) TryLock(exclusive bool) error {
	return d.lock(exclusive, unix.LOCK_NB)
}

// Unlock releases any lock.
func (d *Device) Unlock() error {
	for {
		if err := unix.Flock(int(d.f.Fd()), unix.LOCK_UN); !errors.Is(err, unix.EINTR) {
			return err
		}
	}
}

func (d *Device) lock(exclusive bool, flag int) error {
	if exclusive {
		flag |= unix.LOCK_EX
	} else {
		flag |= unix.LOCK_SH
	}

	for {
		if err := unix.Flock(int(d.f.Fd()), flag); !errors.Is(err, unix.EINTR) {
			return err
		}
	}
}
