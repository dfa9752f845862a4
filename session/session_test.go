// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package session_test

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/siderolabs/gen/xslices"
	"github.com/siderolabs/go-pointer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/siderolabs/go-blockwipe/catalog"
	"github.com/siderolabs/go-blockwipe/internal/memdev"
	"github.com/siderolabs/go-blockwipe/session"
	"github.com/siderolabs/go-blockwipe/verify"
	"github.com/siderolabs/go-blockwipe/wipe"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const (
	deviceSize = 1024 * 1024
	chunkSize  = 64 * 1024
)

type discovererFunc func(ctx context.Context) ([]*catalog.Device, error)

func (f discovererFunc) Discover(ctx context.Context) ([]*catalog.Device, error) {
	return f(ctx)
}

func fixedDevices(context.Context) ([]*catalog.Device, error) {
	return []*catalog.Device{
		{
			Path: "/dev/sda",
			Name: "sda",
			Size: 256 * deviceSize,
			Partitions: []*catalog.Partition{
				{Path: "/dev/sda1", Name: "sda1", Number: 1, Mounted: true, MountPoints: []string{"/"}},
			},
		},
		{
			Path: "/dev/sdb",
			Name: "sdb",
			Size: deviceSize,
			Partitions: []*catalog.Partition{
				{Path: "/dev/sdb1", Name: "sdb1", Number: 1, Label: pointer.To("data"), Size: deviceSize / 2},
			},
		},
	}, nil
}

func selectPath(path string) session.Selector {
	return session.SelectorFunc(func(_ context.Context, devices, _ []*catalog.Device) (*catalog.Device, error) {
		for _, d := range devices {
			if d.Path == path {
				return d, nil
			}
		}

		return nil, errors.New("not found")
	})
}

type countingWiper struct {
	*wipe.Executor

	passes, wipes int
}

func (w *countingWiper) Pass(ctx context.Context, target wipe.Target) error {
	w.passes++

	return w.Executor.Pass(ctx, target)
}

func (w *countingWiper) WipeFrom(ctx context.Context, target wipe.Target, start uint64) error {
	w.wipes++

	return w.Executor.WipeFrom(ctx, target, start)
}

type countingScanner struct {
	*verify.Verifier

	scans int
}

func (s *countingScanner) Scan(ctx context.Context, source verify.Source, start uint64) (verify.Outcome, error) {
	s.scans++

	return s.Verifier.Scan(ctx, source, start)
}

type fixture struct {
	dev     *memdev.Device
	clock   *clockwork.FakeClock
	wiper   *countingWiper
	scanner *countingScanner

	opened []string
	events []session.Event
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		dev:     memdev.New(deviceSize),
		clock:   clockwork.NewFakeClockAt(time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)),
		wiper:   &countingWiper{Executor: wipe.NewExecutor(wipe.WithChunkSize(chunkSize))},
		scanner: &countingScanner{Verifier: verify.New(verify.WithChunkSize(chunkSize))},
	}

	f.dev.Fill(0, bytes.Repeat([]byte("old data"), deviceSize/8))

	return f
}

func (f *fixture) run(t *testing.T, ctx context.Context, discoverer session.Discoverer, selector session.Selector, opts ...session.Option) *session.Result { //nolint:revive
	t.Helper()

	opts = append([]session.Option{
		session.WithLogger(zaptest.NewLogger(t)),
		session.WithClock(f.clock),
		session.WithWiper(f.wiper),
		session.WithScanner(f.scanner),
		session.WithOpener(func(path string) (session.Handle, error) {
			f.opened = append(f.opened, path)

			return f.dev, nil
		}),
		session.WithObserver(func(ev session.Event) {
			f.events = append(f.events, ev)
		}),
	}, opts...)

	return session.New(discoverer, selector, opts...).Run(ctx)
}

func (f *fixture) states() []session.State {
	return xslices.Map(
		xslices.Filter(f.events, func(ev session.Event) bool { return ev.Kind == session.EventStateChanged }),
		func(ev session.Event) session.State { return ev.State },
	)
}

func (f *fixture) kinds(kind session.EventKind) []session.Event {
	return xslices.Filter(f.events, func(ev session.Event) bool { return ev.Kind == kind })
}

func TestSessionClean(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	result := f.run(t, t.Context(), discovererFunc(fixedDevices), selectPath("/dev/sdb"), session.WithPasses(1))

	assert.Equal(t, session.StatusClean, result.Status)
	assert.Equal(t, session.StateDone, result.State)
	require.NoError(t, result.Err)
	assert.Equal(t, "/dev/sdb", result.Device.Path)
	assert.Equal(t, 1, result.Passes)
	assert.Equal(t, 0, result.PassFailures)
	assert.Equal(t, 0, result.RepairIterations)
	assert.Equal(t, f.clock.Now(), result.Started)
	assert.NotEqual(t, uuid.Nil, result.ID)

	assert.EqualValues(t, -1, f.dev.FirstNonZero())
	assert.Equal(t, []string{"/dev/sdb"}, f.opened)
	assert.Equal(t, 1, f.dev.Closes)
	assert.Equal(t, 1, f.scanner.scans)

	assert.Equal(t, []session.State{
		session.StateDiscovering,
		session.StateSelecting,
		session.StateConfirmed,
		session.StateWiping,
		session.StateVerifying,
		session.StateDone,
	}, f.states())

	passes := f.kinds(session.EventPassSucceeded)
	require.Len(t, passes, 1)
	assert.Equal(t, 1, passes[0].Index)
	assert.Equal(t, session.StateWiping, passes[0].State)

	scans := f.kinds(session.EventScanResult)
	require.Len(t, scans, 1)
	assert.True(t, scans[0].Outcome.IsClean())

	for _, ev := range f.events {
		assert.Equal(t, f.clock.Now(), ev.Time)
	}
}

func TestSessionRepairSucceeds(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	// survives the pass and the first repair iteration
	f.dev.Stick(4096, 0x5, 2)

	result := f.run(t, t.Context(), discovererFunc(fixedDevices), selectPath("/dev/sdb"),
		session.WithPasses(1),
		session.WithRepairAttempts(3),
	)

	assert.Equal(t, session.StatusClean, result.Status)
	assert.Equal(t, session.StateDone, result.State)
	assert.Equal(t, 2, result.RepairIterations)
	assert.EqualValues(t, -1, f.dev.FirstNonZero())

	scans := f.kinds(session.EventScanResult)
	require.Len(t, scans, 3)
	assert.Equal(t, verify.Dirty(4096), scans[0].Outcome)
	assert.Equal(t, session.StateVerifying, scans[0].State)
	assert.Equal(t, verify.Dirty(4096), scans[1].Outcome)
	assert.Equal(t, session.StateRepairing, scans[1].State)
	assert.Equal(t, verify.Clean(), scans[2].Outcome)

	iterations := f.kinds(session.EventRepairIteration)
	require.Len(t, iterations, 2)
	assert.Equal(t, 1, iterations[0].Index)
	assert.Equal(t, 2, iterations[1].Index)
	assert.True(t, iterations[1].Outcome.IsClean())

	assert.Equal(t, 1, f.wiper.passes)
	assert.Equal(t, 2, f.wiper.wipes)

	assert.Equal(t, []session.State{
		session.StateDiscovering,
		session.StateSelecting,
		session.StateConfirmed,
		session.StateWiping,
		session.StateVerifying,
		session.StateRepairing,
		session.StateDone,
	}, f.states())
}

func TestSessionRepairExhausted(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.dev.Stick(4096, 0x5, memdev.Forever)

	result := f.run(t, t.Context(), discovererFunc(fixedDevices), selectPath("/dev/sdb"),
		session.WithPasses(1),
		session.WithRepairAttempts(3),
	)

	assert.Equal(t, session.StatusDirty, result.Status)
	assert.Equal(t, session.StateDone, result.State)
	assert.EqualValues(t, 4096, result.Offset)
	assert.Equal(t, 3, result.RepairIterations)
	assert.NoError(t, result.Err)

	assert.Len(t, f.kinds(session.EventRepairIteration), 3)
	assert.Equal(t, 1, f.dev.Closes)
}

func TestSessionRepairBudgetDefaultsToPasses(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.dev.Stick(100_000, 0x5, memdev.Forever)

	result := f.run(t, t.Context(), discovererFunc(fixedDevices), selectPath("/dev/sdb"), session.WithPasses(2))

	assert.Equal(t, session.StatusDirty, result.Status)
	assert.Equal(t, 2, result.RepairIterations)
	assert.Equal(t, 2, f.wiper.passes)
	assert.Equal(t, 2, f.wiper.wipes)
}

func TestSessionVerifySkipped(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	result := f.run(t, t.Context(), discovererFunc(fixedDevices), selectPath("/dev/sdb"),
		session.WithPasses(3),
		session.WithVerify(false),
	)

	assert.Equal(t, session.StatusSkipped, result.Status)
	assert.Equal(t, session.StateDone, result.State)
	assert.Equal(t, 3, result.Passes)
	assert.Equal(t, 0, f.scanner.scans)
	assert.Equal(t, 0, f.dev.Reads)
	assert.Len(t, f.kinds(session.EventPassSucceeded), 3)

	assert.Equal(t, []session.State{
		session.StateDiscovering,
		session.StateSelecting,
		session.StateConfirmed,
		session.StateWiping,
		session.StateDone,
	}, f.states())
}

func TestSessionDiscoveryError(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	discoveryErr := &catalog.DiscoveryError{Path: "/sys/block", Err: errors.New("permission denied")}

	selector := session.SelectorFunc(func(context.Context, []*catalog.Device, []*catalog.Device) (*catalog.Device, error) {
		t.Fatal("selector called")

		return nil, nil //nolint:nilnil
	})

	result := f.run(t, t.Context(), discovererFunc(func(context.Context) ([]*catalog.Device, error) {
		return nil, discoveryErr
	}), selector)

	assert.Equal(t, session.StatusAborted, result.Status)
	assert.Equal(t, session.StateAborted, result.State)

	var target *catalog.DiscoveryError

	require.ErrorAs(t, result.Err, &target)

	assert.Nil(t, result.Device)
	assert.Empty(t, f.opened)
	assert.Equal(t, 0, f.wiper.passes)
	assert.Equal(t, 0, f.dev.Writes)

	assert.Equal(t, []session.State{session.StateDiscovering, session.StateAborted}, f.states())
}

func TestSessionSelection(t *testing.T) {
	t.Parallel()

	t.Run("declined", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)

		result := f.run(t, t.Context(), discovererFunc(fixedDevices),
			session.SelectorFunc(func(_ context.Context, devices, candidates []*catalog.Device) (*catalog.Device, error) {
				assert.Len(t, devices, 2)
				require.Len(t, candidates, 1)
				assert.Equal(t, "/dev/sdb", candidates[0].Path)

				return nil, session.ErrDeclined
			}),
		)

		assert.Equal(t, session.StatusCancelled, result.Status)
		assert.Equal(t, session.StateCancelled, result.State)
		assert.ErrorIs(t, result.Err, session.ErrDeclined)
		assert.Empty(t, f.opened)
	})

	t.Run("nothing selected", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)

		result := f.run(t, t.Context(), discovererFunc(fixedDevices),
			session.SelectorFunc(func(context.Context, []*catalog.Device, []*catalog.Device) (*catalog.Device, error) {
				return nil, nil //nolint:nilnil
			}),
		)

		assert.Equal(t, session.StatusCancelled, result.Status)
		assert.ErrorIs(t, result.Err, session.ErrDeclined)
	})

	t.Run("mounted", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)

		result := f.run(t, t.Context(), discovererFunc(fixedDevices), selectPath("/dev/sda"))

		assert.Equal(t, session.StatusFailed, result.Status)
		assert.Equal(t, session.StateAborted, result.State)
		assert.ErrorIs(t, result.Err, session.ErrDeviceInUse)
		assert.Empty(t, f.opened)
		assert.Equal(t, 0, f.dev.Writes)
	})

	t.Run("unknown", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)

		result := f.run(t, t.Context(), discovererFunc(fixedDevices),
			session.SelectorFunc(func(context.Context, []*catalog.Device, []*catalog.Device) (*catalog.Device, error) {
				return &catalog.Device{Path: "/dev/sdz"}, nil
			}),
		)

		assert.Equal(t, session.StatusFailed, result.Status)
		assert.ErrorIs(t, result.Err, session.ErrDeviceInUse)
		assert.Empty(t, f.opened)
	})
}

func TestSessionOpenFailure(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	errBusy := errors.New("device is busy")

	result := f.run(t, t.Context(), discovererFunc(fixedDevices), selectPath("/dev/sdb"),
		session.WithOpener(func(string) (session.Handle, error) {
			return nil, errBusy
		}),
	)

	assert.Equal(t, session.StatusFailed, result.Status)
	assert.Equal(t, session.StateAborted, result.State)
	assert.ErrorIs(t, result.Err, errBusy)
	assert.Equal(t, 0, f.wiper.passes)
}

func TestSessionPassFailure(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.dev.FailWrites(deviceSize/2, 1)

	result := f.run(t, t.Context(), discovererFunc(fixedDevices), selectPath("/dev/sdb"), session.WithPasses(2))

	assert.Equal(t, session.StatusClean, result.Status)
	assert.Equal(t, 2, result.Passes)
	assert.Equal(t, 1, result.PassFailures)

	failed := f.kinds(session.EventPassFailed)
	require.Len(t, failed, 1)
	assert.Equal(t, 1, failed[0].Index)

	var ioErr *wipe.IOError

	require.ErrorAs(t, failed[0].Err, &ioErr)
	assert.EqualValues(t, deviceSize/2, ioErr.Offset)

	succeeded := f.kinds(session.EventPassSucceeded)
	require.Len(t, succeeded, 1)
	assert.Equal(t, 2, succeeded[0].Index)
}

func TestSessionUnverified(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.dev.FailReads(deviceSize/2, memdev.Forever)

	result := f.run(t, t.Context(), discovererFunc(fixedDevices), selectPath("/dev/sdb"), session.WithPasses(1))

	assert.Equal(t, session.StatusUnverified, result.Status)
	assert.Equal(t, session.StateDone, result.State)

	var ioErr *verify.IOError

	require.ErrorAs(t, result.Err, &ioErr)
	assert.EqualValues(t, deviceSize/2, ioErr.Offset)

	assert.Len(t, f.kinds(session.EventScanFailed), 1)
	assert.Equal(t, 0, f.wiper.wipes, "no repair after a failed scan")
	assert.Equal(t, 0, result.RepairIterations)
}

func TestSessionCancel(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	result := f.run(t, ctx, discovererFunc(fixedDevices), selectPath("/dev/sdb"),
		session.WithPasses(5),
		session.WithObserver(func(ev session.Event) {
			if ev.Kind == session.EventPassSucceeded && ev.Index == 2 {
				cancel()
			}
		}),
	)

	assert.Equal(t, session.StatusCancelled, result.Status)
	assert.Equal(t, session.StateCancelled, result.State)
	assert.ErrorIs(t, result.Err, context.Canceled)
	assert.Equal(t, 2, f.wiper.passes)
	assert.Equal(t, 0, f.scanner.scans)
	assert.Equal(t, 1, f.dev.Closes)
}

func TestSessionDefaults(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	result := f.run(t, t.Context(), discovererFunc(fixedDevices), selectPath("/dev/sdb"), session.WithPasses(0))

	assert.Equal(t, session.StatusClean, result.Status)
	assert.Equal(t, session.DefaultPasses, result.Passes)
	assert.Equal(t, session.DefaultPasses, f.wiper.passes)
}
