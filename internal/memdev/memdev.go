// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package memdev implements an in-memory blockdevice for tests.
//
// The device can simulate residual bytes which survive overwrites (remapped
// sectors) and I/O failures at given offsets.
package memdev

import (
	"errors"
	"io"
)

// ErrInjected is returned by injected failures.
var ErrInjected = errors.New("injected I/O error")

// Forever makes a residual byte survive every overwrite.
const Forever = -1

type residual struct {
	value     byte
	remaining int
}

// Device is an in-memory blockdevice.
//
//nolint:govet
type Device struct {
	data     []byte
	residual map[uint64]*residual

	failWriteAt, failReadAt int64
	failWrites, failReads   int
	failFlush               error
	failSize                error

	// Counters.
	Writes, Reads, Flushes, Closes int
	BytesWritten           uint64
}

// New returns a zero-filled device of the given size.
func New(size int) *Device {
	return &Device{
		data:        make([]byte, size),
		residual:    map[uint64]*residual{},
		failWriteAt: -1,
		failReadAt:  -1,
	}
}

// Fill writes data at the offset without touching counters or residuals.
func (d *Device) Fill(offset int, data []byte) {
	copy(d.data[offset:], data)
}

// Stick puts a non-zero byte at the offset which survives the given number of overwrites.
//
// Use Forever to make it permanent.
func (d *Device) Stick(offset uint64, value byte, overwrites int) {
	d.data[offset] = value
	d.residual[offset] = &residual{value: value, remaining: overwrites}
}

// FailWrites makes the next count writes covering the offset fail.
//
// Use Forever to fail every write.
func (d *Device) FailWrites(offset int64, count int) {
	d.failWriteAt = offset
	d.failWrites = count
}

// FailReads makes the next count reads covering the offset fail.
func (d *Device) FailReads(offset int64, count int) {
	d.failReadAt = offset
	d.failReads = count
}

// FailFlush makes every flush return err.
func (d *Device) FailFlush(err error) {
	d.failFlush = err
}

// FailSize makes GetSize return err.
func (d *Device) FailSize(err error) {
	d.failSize = err
}

// Bytes returns the device contents.
func (d *Device) Bytes() []byte {
	return d.data
}

// FirstNonZero returns the offset of the first non-zero byte, or -1.
func (d *Device) FirstNonZero() int64 {
	for i, b := range d.data {
		if b != 0 {
			return int64(i)
		}
	}

	return -1
}

func covers(off int64, n int, at int64) bool {
	return at >= 0 && at >= off && at < off+int64(n)
}

func consume(count *int) {
	if *count > 0 {
		*count--
	}
}

// GetSize implements wipe.Target and verify.Source.
func (d *Device) GetSize() (uint64, error) {
	if d.failSize != nil {
		return 0, d.failSize
	}

	return uint64(len(d.data)), nil
}

// WriteAt implements io.WriterAt.
func (d *Device) WriteAt(p []byte, off int64) (int, error) {
	d.Writes++

	if off < 0 || off > int64(len(d.data)) {
		return 0, io.ErrShortWrite
	}

	var err error

	n := len(p)

	if d.failWrites != 0 && covers(off, len(p), d.failWriteAt) {
		consume(&d.failWrites)

		n = int(d.failWriteAt - off)
		err = ErrInjected
	}

	n = copy(d.data[off:], p[:n])
	d.BytesWritten += uint64(n)

	for at, r := range d.residual {
		if !covers(off, n, int64(at)) {
			continue
		}

		if r.remaining == 0 {
			delete(d.residual, at)

			continue
		}

		consume(&r.remaining)
		d.data[at] = r.value
	}

	if err == nil && n < len(p) {
		err = io.ErrShortWrite
	}

	return n, err
}

// ReadAt implements io.ReaderAt.
func (d *Device) ReadAt(p []byte, off int64) (int, error) {
	d.Reads++

	if off < 0 {
		return 0, io.EOF
	}

	if d.failReads != 0 && covers(off, len(p), d.failReadAt) {
		consume(&d.failReads)

		return copy(p, d.data[off:d.failReadAt]), ErrInjected
	}

	if off >= int64(len(d.data)) {
		return 0, io.EOF
	}

	n := copy(p, d.data[off:])
	if n < len(p) {
		return n, io.EOF
	}

	return n, nil
}

// Flush implements wipe.Target.
func (d *Device) Flush() error {
	d.Flushes++

	return d.failFlush
}

// Close implements io.Closer.
func (d *Device) Close() error {
	d.Closes++

	return nil
}
