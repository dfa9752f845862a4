// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package verify

import "go.uber.org/zap"

// DefaultChunkSize is the default size of a single read.
const DefaultChunkSize = 4 * 1024 * 1024

// Progress is reported after each chunk.
type Progress struct {
	// Offset is the first byte not yet checked.
	Offset uint64
	// Size of the source.
	Size uint64
}

// Options configure the Verifier.
type Options struct {
	Logger *zap.Logger

	// ChunkSize is the size of a single read in bytes.
	ChunkSize int

	// Progress is called after each clean chunk.
	Progress func(Progress)
}

// Option is a function that sets some option.
type Option func(*Options)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *Options) {
		o.Logger = logger
	}
}

// WithChunkSize sets the read size; non-positive values keep the default.
func WithChunkSize(size int) Option {
	return func(o *Options) {
		if size > 0 {
			o.ChunkSize = size
		}
	}
}

// WithProgress sets the progress callback.
func WithProgress(progress func(Progress)) Option {
	return func(o *Options) {
		o.Progress = progress
	}
}

func applyOptions(opts ...Option) Options {
	o := Options{
		Logger:    zap.NewNop(),
		ChunkSize: DefaultChunkSize,
	}

	for _, opt := range opts {
		opt(&o)
	}

	return o
}
