// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package repair re-wipes the tail of a device which failed verification.
package repair

import (
	"context"

	"go.uber.org/zap"

	"github.com/siderolabs/go-blockwipe/verify"
	"github.com/siderolabs/go-blockwipe/wipe"
)

// Target is a device which can be wiped and verified.
//
// *block.Device implements Target.
type Target interface {
	wipe.Target
	verify.Source
}

// Wiper writes zeroes from an offset to the end of the target.
//
// *wipe.Executor implements Wiper.
type Wiper interface {
	WipeFrom(ctx context.Context, target wipe.Target, start uint64) error
}

// Scanner looks for the first non-zero byte from an offset.
//
// *verify.Verifier implements Scanner.
type Scanner interface {
	Scan(ctx context.Context, source verify.Source, start uint64) (verify.Outcome, error)
}

// sectorSizer is implemented by blockdevices.
type sectorSizer interface {
	GetSectorSize() uint
}

// Iteration is reported after each repair iteration.
type Iteration struct {
	// WipeErr is set if the wipe of the tail failed.
	WipeErr error
	// ScanErr is set if the scan failed, Outcome is not valid then.
	ScanErr error

	// Outcome of the scan.
	Outcome verify.Outcome

	// Number is 1-based.
	Number int
	// Start is the offset the wipe started at.
	Start uint64
}

// Report is the result of the repair.
type Report struct {
	Outcome verify.Outcome

	// Iterations is the number of wipe and scan iterations run.
	Iterations int
}

// Loop repeatedly wipes and scans the tail of a device.
type Loop struct {
	wiper   Wiper
	scanner Scanner
	options Options
}

// New returns a new Loop.
func New(wiper Wiper, scanner Scanner, opts ...Option) *Loop {
	return &Loop{
		wiper:   wiper,
		scanner: scanner,
		options: applyOptions(opts...),
	}
}

// Repair runs up to passes iterations, each wiping [start, size) and scanning it again.
//
// The wipe starts at start aligned down to the sector size of the target (if known).
// The loop stops on the first Clean scan. Failed wipes and scans don't stop the loop,
// a failed scan keeps the last known outcome. If all iterations end Dirty, the last
// Dirty outcome is returned: this is not an error.
//
// With passes == 0 nothing is written, and the outcome of a single scan is returned.
//
// The only errors returned are context cancellation and the scan error for passes == 0.
func (l *Loop) Repair(ctx context.Context, target Target, start uint64, passes int) (Report, error) {
	logger := l.options.Logger.With(zap.Uint64("start", start))

	if passes <= 0 {
		outcome, err := l.scanner.Scan(ctx, target, start)

		return Report{Outcome: outcome}, err
	}

	report := Report{Outcome: verify.Dirty(start)}
	wipeStart := alignDown(start, sectorSize(target))

	for i := 1; i <= passes; i++ {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		it := Iteration{Number: i, Start: wipeStart}

		if it.WipeErr = l.wiper.WipeFrom(ctx, target, wipeStart); it.WipeErr != nil {
			logger.Warn("repair wipe failed", zap.Int("iteration", i), zap.Error(it.WipeErr))
		}

		it.Outcome, it.ScanErr = l.scanner.Scan(ctx, target, start)

		report.Iterations = i

		if it.ScanErr != nil {
			logger.Warn("repair scan failed", zap.Int("iteration", i), zap.Error(it.ScanErr))
		} else {
			report.Outcome = it.Outcome
		}

		l.notify(it)

		if it.ScanErr == nil && it.Outcome.IsClean() {
			logger.Info("repair succeeded", zap.Int("iterations", i))

			return report, nil
		}
	}

	logger.Warn("repair exhausted", zap.Int("iterations", report.Iterations), zap.Stringer("outcome", report.Outcome))

	return report, nil
}

func (l *Loop) notify(it Iteration) {
	if l.options.Observer != nil {
		l.options.Observer(it)
	}
}

func sectorSize(target Target) uint64 {
	if s, ok := target.(sectorSizer); ok {
		if size := s.GetSectorSize(); size > 0 {
			return uint64(size)
		}
	}

	return 1
}

func alignDown(offset, alignment uint64) uint64 {
	return offset - offset%alignment
}
