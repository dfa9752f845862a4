// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package wipe overwrites blockdevices with zeroes.
package wipe

import (
	"context"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/siderolabs/go-blockwipe/internal/ioutil"
)

// Target is a device which can be wiped.
//
// *block.Device implements Target.
type Target interface {
	io.WriterAt

	// GetSize returns the size of the target in bytes.
	GetSize() (uint64, error)
	// Flush commits written data to the medium.
	Flush() error
}

// IOError is returned when the wipe fails.
type IOError struct {
	// Op is one of "size", "write", "flush".
	Op string
	// Offset is the byte offset the failure happened at.
	Offset uint64
	Err    error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("wipe %s failed at offset %d: %v", e.Op, e.Offset, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// Executor writes zeroes over a Target in fixed-size chunks.
//
// Memory use is a single chunk buffer regardless of the device size.
// Executor never retries: the caller decides what to do with a failed pass.
type Executor struct {
	options Options
	limiter *rate.Limiter
	zeroes  []byte
}

// NewExecutor returns a new Executor.
func NewExecutor(opts ...Option) *Executor {
	options := applyOptions(opts...)

	e := &Executor{
		options: options,
		zeroes:  make([]byte, options.ChunkSize),
	}

	if options.RateLimit > 0 {
		e.limiter = rate.NewLimiter(rate.Limit(options.RateLimit), options.ChunkSize)
	}

	return e
}

// Pass writes zeroes over the whole target, from offset 0 to the end, and flushes it.
func (e *Executor) Pass(ctx context.Context, target Target) error {
	return e.WipeFrom(ctx, target, 0)
}

// WipeFrom writes zeroes over [start, size) of the target and flushes it.
//
// The context is checked between chunks; cancellation is reported as an *IOError
// at the first offset which was not written.
func (e *Executor) WipeFrom(ctx context.Context, target Target, start uint64) error {
	size, err := target.GetSize()
	if err != nil {
		return &IOError{Op: "size", Offset: start, Err: err}
	}

	start = min(start, size)

	e.options.Logger.Debug("wiping", zap.Uint64("start", start), zap.Uint64("size", size), zap.Int("chunk_size", e.options.ChunkSize))

	began := time.Now()

	for chunk := range ioutil.Chunks(start, size, uint64(e.options.ChunkSize)) {
		if err = ctx.Err(); err != nil {
			return &IOError{Op: "write", Offset: chunk.Offset, Err: err}
		}

		if e.limiter != nil {
			if err = e.limiter.WaitN(ctx, int(chunk.Length)); err != nil {
				return &IOError{Op: "write", Offset: chunk.Offset, Err: err}
			}
		}

		n, err := target.WriteAt(e.zeroes[:chunk.Length], int64(chunk.Offset))
		if err != nil {
			return &IOError{Op: "write", Offset: chunk.Offset + uint64(n), Err: err}
		}

		if e.options.Progress != nil {
			e.options.Progress(Progress{Offset: chunk.End(), Size: size})
		}
	}

	if err = target.Flush(); err != nil {
		return &IOError{Op: "flush", Offset: size, Err: err}
	}

	e.options.Logger.Debug("wipe finished",
		zap.Uint64("start", start),
		zap.Uint64("bytes", size-start),
		zap.Duration("elapsed", time.Since(began)),
	)

	return nil
}
