// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package block

import "os"

// Options for opening a blockdevice.
type Options struct {
	// Flag is passed to os.OpenFile along with O_CLOEXEC.
	Flag int

	// Exclusive opens the device with O_EXCL.
	//
	// For blockdevices the kernel refuses the open with EBUSY if the device
	// or any of its partitions is mounted or claimed by another holder.
	Exclusive bool

	// ExclusiveLock takes an exclusive flock on the device after opening.
	ExclusiveLock bool
}

// Option configures Options.
type Option func(*Options)

// OpenForWrite opens the device in read-write mode.
func OpenForWrite() Option {
	return func(o *Options) {
		o.Flag = (o.Flag &^ (os.O_RDONLY | os.O_WRONLY)) | os.O_RDWR
	}
}

// WithExclusive opens the device with O_EXCL.
func WithExclusive(exclusive bool) Option {
	return func(o *Options) {
		o.Exclusive = exclusive
	}
}

// WithExclusiveLock locks the device exclusively (blocking) once it is opened.
//
// The lock is released on Close.
func WithExclusiveLock(lock bool) Option {
	return func(o *Options) {
		o.ExclusiveLock = lock
	}
}

func applyOptions(opts ...Option) Options {
	o := Options{
		Flag: os.O_RDONLY,
	}

	for _, opt := range opts {
		opt(&o)
	}

	return o
}
