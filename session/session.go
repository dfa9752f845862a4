// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package session drives a single wipe of a single device: discovery, selection,
// zero passes, verification and repair.
//
// The session never talks to the operator directly: selection and confirmation
// are done by the Selector, progress is reported through events.
package session

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/siderolabs/go-blockwipe/catalog"
	"github.com/siderolabs/go-blockwipe/repair"
)

var (
	// ErrDeclined is returned by the Selector when the operator quits or doesn't confirm.
	ErrDeclined = errors.New("declined by operator")

	// ErrDeviceInUse is returned when the selected device is mounted or not a known candidate.
	ErrDeviceInUse = errors.New("device is in use")

	// ErrReadOnly is returned by OpenBlockDevice for a read-only device.
	ErrReadOnly = errors.New("device is read-only")
)

// Result of the session.
//
//nolint:govet
type Result struct {
	ID uuid.UUID

	// Device is nil if the session ended before a device was selected.
	Device *catalog.Device

	Status Status
	// State is the terminal state.
	State State
	// Offset of the first non-zero byte for StatusDirty.
	Offset uint64
	// Err is the failure for StatusAborted, StatusCancelled, StatusFailed and StatusUnverified.
	Err error

	// Passes is the number of full passes run.
	Passes int
	// PassFailures counts failed full passes and failed repair wipes.
	PassFailures int
	// RepairIterations is the number of repair iterations run.
	RepairIterations int

	Started, Finished time.Time
}

// Duration of the session.
func (r *Result) Duration() time.Duration {
	return r.Finished.Sub(r.Started)
}

// Session wipes a single device.
type Session struct {
	discoverer Discoverer
	selector   Selector
	options    Options

	state  State
	result *Result
	logger *zap.Logger
}

// New returns a new Session.
func New(discoverer Discoverer, selector Selector, opts ...Option) *Session {
	return &Session{
		discoverer: discoverer,
		selector:   selector,
		options:    applyOptions(opts...),
	}
}

// Run runs the session to completion.
//
// Run is not reentrant and the Session can't be reused.
func (s *Session) Run(ctx context.Context) *Result {
	s.result = &Result{
		ID:      uuid.New(),
		Started: s.options.Clock.Now(),
	}

	s.logger = s.options.Logger.With(zap.Stringer("session", s.result.ID))

	s.run(ctx)

	s.result.State = s.state
	s.result.Finished = s.options.Clock.Now()

	s.logger.Info("session finished",
		zap.Stringer("status", s.result.Status),
		zap.Stringer("state", s.result.State),
		zap.Duration("elapsed", s.result.Duration()),
		zap.Error(s.result.Err),
	)

	return s.result
}

//nolint:gocyclo,cyclop
func (s *Session) run(ctx context.Context) {
	s.transition(StateDiscovering)

	devices, err := s.discoverer.Discover(ctx)
	if err != nil {
		if ctx.Err() != nil {
			s.cancel(err)

			return
		}

		s.finish(StateAborted, StatusAborted, err)

		return
	}

	s.transition(StateSelecting)

	candidates := catalog.Unmounted(devices)

	selected, err := s.selector.Select(ctx, devices, candidates)
	if err != nil {
		s.cancel(err)

		return
	}

	if selected == nil {
		s.cancel(ErrDeclined)

		return
	}

	device, err := validate(selected, candidates)
	if err != nil {
		s.finish(StateAborted, StatusFailed, err)

		return
	}

	s.result.Device = device
	s.logger = s.logger.With(zap.String("device", device.Path))

	s.transition(StateConfirmed)

	h, err := s.options.Opener(device.Path)
	if err != nil {
		s.finish(StateAborted, StatusFailed, fmt.Errorf("failed to open %s: %w", device.Path, err))

		return
	}

	defer func() {
		if closeErr := h.Close(); closeErr != nil {
			s.logger.Warn("failed to close device", zap.Error(closeErr))
		}
	}()

	s.transition(StateWiping)

	for i := 1; i <= s.options.Passes; i++ {
		if err = ctx.Err(); err != nil {
			s.cancel(err)

			return
		}

		s.result.Passes = i

		if err = s.options.Wiper.Pass(ctx, h); err != nil {
			if ctx.Err() != nil {
				s.cancel(err)

				return
			}

			s.result.PassFailures++
			s.logger.Warn("pass failed", zap.Int("pass", i), zap.Error(err))
			s.emit(Event{Kind: EventPassFailed, Index: i, Err: err})

			continue
		}

		s.logger.Info("pass succeeded", zap.Int("pass", i))
		s.emit(Event{Kind: EventPassSucceeded, Index: i})
	}

	if rereader, ok := h.(partitionRereader); ok {
		if err = rereader.RereadPartitionTable(); err != nil {
			s.logger.Warn("failed to re-read partition table", zap.Error(err))
		} else if last, lastErr := rereader.GetKernelLastPartitionNum(); lastErr == nil && last > 0 {
			s.logger.Warn("kernel still reports partitions", zap.Int("last_partition", last))
		}
	}

	if !s.options.Verify {
		s.logger.Info("verification skipped")
		s.finish(StateDone, StatusSkipped, nil)

		return
	}

	s.transition(StateVerifying)

	outcome, err := s.options.Scanner.Scan(ctx, h, 0)
	if err != nil {
		if ctx.Err() != nil {
			s.cancel(err)

			return
		}

		s.emit(Event{Kind: EventScanFailed, Err: err})
		s.finish(StateDone, StatusUnverified, err)

		return
	}

	s.emit(Event{Kind: EventScanResult, Outcome: outcome})

	if outcome.IsClean() {
		s.finish(StateDone, StatusClean, nil)

		return
	}

	s.transition(StateRepairing)

	loop := repair.New(s.options.Wiper, s.options.Scanner,
		repair.WithLogger(s.logger),
		repair.WithObserver(s.observeIteration),
	)

	report, err := loop.Repair(ctx, h, outcome.Offset, s.options.repairBudget())

	s.result.RepairIterations = report.Iterations

	if err != nil {
		s.cancel(err)

		return
	}

	if report.Outcome.IsClean() {
		s.finish(StateDone, StatusClean, nil)

		return
	}

	s.result.Offset = report.Outcome.Offset
	s.finish(StateDone, StatusDirty, nil)
}

func (s *Session) observeIteration(it repair.Iteration) {
	if it.WipeErr != nil {
		s.result.PassFailures++
		s.emit(Event{Kind: EventPassFailed, Index: it.Number, Err: it.WipeErr})
	} else {
		s.emit(Event{Kind: EventPassSucceeded, Index: it.Number})
	}

	if it.ScanErr != nil {
		s.emit(Event{Kind: EventScanFailed, Index: it.Number, Err: it.ScanErr})
	} else {
		s.emit(Event{Kind: EventScanResult, Index: it.Number, Outcome: it.Outcome})
	}

	s.emit(Event{Kind: EventRepairIteration, Index: it.Number, Outcome: it.Outcome, Err: errors.Join(it.WipeErr, it.ScanErr)})
}

// validate returns the candidate the selection refers to.
func validate(selected *catalog.Device, candidates []*catalog.Device) (*catalog.Device, error) {
	idx := slices.IndexFunc(candidates, func(d *catalog.Device) bool {
		return d.Path == selected.Path
	})

	if idx < 0 || selected.InUse() {
		return nil, fmt.Errorf("%s: %w", selected.Path, ErrDeviceInUse)
	}

	return candidates[idx], nil
}

func (s *Session) cancel(err error) {
	s.finish(StateCancelled, StatusCancelled, err)
}

func (s *Session) finish(state State, status Status, err error) {
	s.result.Status = status
	s.result.Err = err

	s.transition(state)
}

func (s *Session) transition(state State) {
	s.state = state

	s.logger.Debug("session state changed", zap.Stringer("state", state))
	s.emit(Event{Kind: EventStateChanged})
}

func (s *Session) emit(ev Event) {
	if s.options.Observer == nil {
		return
	}

	ev.Time = s.options.Clock.Now()
	ev.State = s.state

	s.options.Observer(ev)
}
