// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package catalog

import (
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// Default locations of the system tables.
const (
	DefaultSysBlock  = "/sys/block"
	DefaultMountInfo = "/proc/self/mountinfo"
	DefaultSwaps     = "/proc/swaps"
	DefaultUdevData  = "/run/udev/data"
	DefaultDevDir    = "/dev"
)

// DefaultSkipPrefixes are kernel name prefixes of devices which are never listed.
var DefaultSkipPrefixes = []string{"ram", "zram", "sr", "fd", "sg", "md", "dm-"}

// Options configure discovery.
type Options struct {
	Logger *zap.Logger
	Fs     afero.Fs

	SysBlock  string
	MountInfo string
	Swaps     string
	UdevData  string
	DevDir    string

	SkipPrefixes []string
}

// Option is a function that sets some option.
type Option func(*Options)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *Options) {
		o.Logger = logger
	}
}

// WithFs sets the filesystem the system tables are read from.
func WithFs(fs afero.Fs) Option {
	return func(o *Options) {
		o.Fs = fs
	}
}

// WithMountInfo overrides the mount table location.
func WithMountInfo(path string) Option {
	return func(o *Options) {
		o.MountInfo = path
	}
}

// WithSkipPrefixes replaces the list of skipped device name prefixes.
func WithSkipPrefixes(prefixes ...string) Option {
	return func(o *Options) {
		o.SkipPrefixes = prefixes
	}
}

func applyOptions(opts ...Option) Options {
	o := Options{
		Logger:       zap.NewNop(),
		Fs:           afero.NewOsFs(),
		SysBlock:     DefaultSysBlock,
		MountInfo:    DefaultMountInfo,
		Swaps:        DefaultSwaps,
		UdevData:     DefaultUdevData,
		DevDir:       DefaultDevDir,
		SkipPrefixes: DefaultSkipPrefixes,
	}

	for _, opt := range opts {
		opt(&o)
	}

	return o
}
