// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package session

import (
	"context"
	"errors"
	"io"

	"github.com/siderolabs/go-blockwipe/block"
	"github.com/siderolabs/go-blockwipe/catalog"
	"github.com/siderolabs/go-blockwipe/repair"
	"github.com/siderolabs/go-blockwipe/verify"
	"github.com/siderolabs/go-blockwipe/wipe"
)

// Handle is the open selected device.
//
// *block.Device implements Handle.
type Handle interface {
	repair.Target
	io.Closer
}

// Opener opens the device at path for writing.
type Opener func(path string) (Handle, error)

// OpenBlockDevice opens the blockdevice for exclusive writing.
//
// The kernel refuses the exclusive open if the device or any of its partitions
// got mounted after discovery.
func OpenBlockDevice(path string) (Handle, error) {
	dev, err := block.NewFromPath(path, block.OpenForWrite(), block.WithExclusive(true), block.WithExclusiveLock(true))
	if err != nil {
		return nil, err
	}

	readOnly, err := dev.IsReadOnly()
	if err == nil && readOnly {
		err = ErrReadOnly
	}

	if err != nil {
		return nil, errors.Join(err, dev.Close())
	}

	return dev, nil
}

// partitionRereader is implemented by blockdevices.
type partitionRereader interface {
	RereadPartitionTable() error
	GetKernelLastPartitionNum() (int, error)
}

// Discoverer lists the devices.
//
// *catalog.Catalog implements Discoverer.
type Discoverer interface {
	Discover(ctx context.Context) ([]*catalog.Device, error)
}

// Selector picks the device to wipe.
//
// It receives all devices and the unmounted ones which can be wiped. The returned
// device must be one of the candidates, confirmed by the operator. ErrDeclined is
// returned if the operator quits.
type Selector interface {
	Select(ctx context.Context, devices, candidates []*catalog.Device) (*catalog.Device, error)
}

// SelectorFunc is a function which implements Selector.
type SelectorFunc func(ctx context.Context, devices, candidates []*catalog.Device) (*catalog.Device, error)

// Select implements Selector.
func (f SelectorFunc) Select(ctx context.Context, devices, candidates []*catalog.Device) (*catalog.Device, error) {
	return f(ctx, devices, candidates)
}

// Wiper runs the zero passes.
//
// *wipe.Executor implements Wiper.
type Wiper interface {
	repair.Wiper

	Pass(ctx context.Context, target wipe.Target) error
}

// Scanner runs the verification scan.
//
// *verify.Verifier implements Scanner.
type Scanner interface {
	Scan(ctx context.Context, source verify.Source, start uint64) (verify.Outcome, error)
}
