// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package verify checks that a blockdevice contains only zeroes.
package verify

import (
	"context"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/siderolabs/go-blockwipe/internal/ioutil"
)

// Source is a device which can be verified.
//
// *block.Device implements Source.
type Source interface {
	io.ReaderAt

	// GetSize returns the size of the source in bytes.
	GetSize() (uint64, error)
}

// Outcome of a scan.
type Outcome struct {
	// Offset of the first non-zero byte, only valid if Dirty.
	Offset uint64
	// Dirty is set if a non-zero byte was found.
	Dirty bool
}

// Clean returns an outcome with no non-zero bytes.
func Clean() Outcome {
	return Outcome{}
}

// Dirty returns an outcome with the first non-zero byte at offset.
func Dirty(offset uint64) Outcome {
	return Outcome{Dirty: true, Offset: offset}
}

// IsClean returns true if no non-zero bytes were found.
func (o Outcome) IsClean() bool {
	return !o.Dirty
}

func (o Outcome) String() string {
	if o.Dirty {
		return fmt.Sprintf("dirty at offset %d", o.Offset)
	}

	return "clean"
}

// IOError is returned when the source can't be read.
type IOError struct {
	// Offset is the byte offset the failure happened at.
	Offset uint64
	Err    error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("verify read failed at offset %d: %v", e.Offset, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// Verifier scans a Source for non-zero bytes.
type Verifier struct {
	options Options
	buf     []byte
}

// New returns a new Verifier.
func New(opts ...Option) *Verifier {
	options := applyOptions(opts...)

	return &Verifier{
		options: options,
		buf:     make([]byte, options.ChunkSize),
	}
}

// Scan reads [start, size) of the source and reports the first non-zero byte.
//
// Reported offsets are never below start. A start at or past the end of the source
// checks nothing and is Clean.
func (v *Verifier) Scan(ctx context.Context, source Source, start uint64) (Outcome, error) {
	size, err := source.GetSize()
	if err != nil {
		return Outcome{}, &IOError{Offset: start, Err: fmt.Errorf("failed to get size: %w", err)}
	}

	v.options.Logger.Debug("verifying", zap.Uint64("start", start), zap.Uint64("size", size))

	began := time.Now()

	for chunk := range ioutil.Chunks(start, size, uint64(v.options.ChunkSize)) {
		if err = ctx.Err(); err != nil {
			return Outcome{}, &IOError{Offset: chunk.Offset, Err: err}
		}

		buf := v.buf[:chunk.Length]

		n, err := ioutil.ReadFullAt(source, buf, int64(chunk.Offset))

		// bytes read before a failure still count
		if idx := firstNonZero(buf[:n]); idx >= 0 {
			outcome := Dirty(chunk.Offset + uint64(idx))

			v.options.Logger.Debug("non-zero byte found", zap.Uint64("offset", outcome.Offset))

			return outcome, nil
		}

		if err != nil {
			return Outcome{}, &IOError{Offset: chunk.Offset + uint64(n), Err: err}
		}

		if v.options.Progress != nil {
			v.options.Progress(Progress{Offset: chunk.End(), Size: size})
		}
	}

	v.options.Logger.Debug("verify finished",
		zap.Uint64("start", start),
		zap.Uint64("bytes", size-min(start, size)),
		zap.Duration("elapsed", time.Since(began)),
	)

	return Clean(), nil
}

func firstNonZero(buf []byte) int {
	for i, b := range buf {
		if b != 0 {
			return i
		}
	}

	return -1
}
