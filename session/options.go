// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package session

import (
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/siderolabs/go-blockwipe/verify"
	"github.com/siderolabs/go-blockwipe/wipe"
)

// DefaultPasses is the default number of zero passes.
const DefaultPasses = 5

// Options configure the Session.
//
//nolint:govet
type Options struct {
	Logger *zap.Logger
	Clock  clockwork.Clock

	// Passes is the number of full zero passes.
	Passes int
	// Verify enables the verification scan.
	Verify bool
	// RepairAttempts is the repair budget, zero means same as Passes.
	RepairAttempts int

	Wiper   Wiper
	Scanner Scanner
	Opener  Opener

	// Observer receives all events synchronously.
	Observer func(Event)
}

// Option is a function that sets some option.
type Option func(*Options)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *Options) {
		o.Logger = logger
	}
}

// WithClock sets the clock used for event and result timestamps.
func WithClock(clock clockwork.Clock) Option {
	return func(o *Options) {
		o.Clock = clock
	}
}

// WithPasses sets the number of passes; non-positive values keep the default.
func WithPasses(passes int) Option {
	return func(o *Options) {
		if passes > 0 {
			o.Passes = passes
		}
	}
}

// WithVerify enables or disables verification.
func WithVerify(verify bool) Option {
	return func(o *Options) {
		o.Verify = verify
	}
}

// WithRepairAttempts sets the repair budget; non-positive values use the number of passes.
func WithRepairAttempts(attempts int) Option {
	return func(o *Options) {
		o.RepairAttempts = max(attempts, 0)
	}
}

// WithWiper sets the wiper.
func WithWiper(wiper Wiper) Option {
	return func(o *Options) {
		o.Wiper = wiper
	}
}

// WithScanner sets the scanner.
func WithScanner(scanner Scanner) Option {
	return func(o *Options) {
		o.Scanner = scanner
	}
}

// WithOpener sets the function which opens the selected device.
func WithOpener(opener Opener) Option {
	return func(o *Options) {
		o.Opener = opener
	}
}

// WithObserver sets the event callback.
func WithObserver(observer func(Event)) Option {
	return func(o *Options) {
		o.Observer = observer
	}
}

func applyOptions(opts ...Option) Options {
	o := Options{
		Logger: zap.NewNop(),
		Clock:  clockwork.NewRealClock(),
		Passes: DefaultPasses,
		Verify: true,
		Opener: OpenBlockDevice,
	}

	for _, opt := range opts {
		opt(&o)
	}

	if o.Wiper == nil {
		o.Wiper = wipe.NewExecutor(wipe.WithLogger(o.Logger))
	}

	if o.Scanner == nil {
		o.Scanner = verify.New(verify.WithLogger(o.Logger))
	}

	return o
}

func (o *Options) repairBudget() int {
	if o.RepairAttempts > 0 {
		return o.RepairAttempts
	}

	return o.Passes
}
