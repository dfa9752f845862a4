// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package repair

import "go.uber.org/zap"

// Options configure the Loop.
type Options struct {
	Logger *zap.Logger

	// Observer is called synchronously after each iteration.
	Observer func(Iteration)
}

// Option is a function that sets some option.
type Option func(*Options)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *Options) {
		o.Logger = logger
	}
}

// WithObserver sets the iteration callback.
func WithObserver(observer func(Iteration)) Option {
	return func(o *Options) {
		o.Observer = observer
	}
}

func applyOptions(opts ...Option) Options {
	o := Options{
		Logger: zap.NewNop(),
	}

	for _, opt := range opts {
		opt(&o)
	}

	return o
}
