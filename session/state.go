// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package session

import (
	"time"

	"github.com/siderolabs/go-blockwipe/verify"
)

// State of the session.
//
// States only move forward: Discovering, Selecting, Confirmed, Wiping,
// Verifying, Repairing, Done. Aborted and Cancelled are terminal as well.
type State int

// Session states.
const (
	StateDiscovering State = iota
	StateSelecting
	StateConfirmed
	StateWiping
	StateVerifying
	StateRepairing
	StateDone
	StateAborted
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateDiscovering:
		return "discovering"
	case StateSelecting:
		return "selecting"
	case StateConfirmed:
		return "confirmed"
	case StateWiping:
		return "wiping"
	case StateVerifying:
		return "verifying"
	case StateRepairing:
		return "repairing"
	case StateDone:
		return "done"
	case StateAborted:
		return "aborted"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal returns true for the final states.
func (s State) Terminal() bool {
	return s == StateDone || s == StateAborted || s == StateCancelled
}

// Status is the final result of the session.
type Status int

// Session statuses.
const (
	// StatusClean means every byte was verified to be zero.
	StatusClean Status = iota
	// StatusDirty means a non-zero byte survived the repair.
	StatusDirty
	// StatusSkipped means the passes ran, but verification was disabled.
	StatusSkipped
	// StatusUnverified means the verification scan failed to read the device.
	StatusUnverified
	// StatusAborted means the devices couldn't be discovered.
	StatusAborted
	// StatusCancelled means the operator declined or the context was cancelled.
	StatusCancelled
	// StatusFailed means the selected device couldn't be used.
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusClean:
		return "clean"
	case StatusDirty:
		return "dirty"
	case StatusSkipped:
		return "skipped"
	case StatusUnverified:
		return "unverified"
	case StatusAborted:
		return "aborted"
	case StatusCancelled:
		return "cancelled"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// EventKind is the type of an Event.
type EventKind int

// Event kinds.
const (
	EventStateChanged EventKind = iota
	EventPassSucceeded
	EventPassFailed
	EventScanResult
	EventScanFailed
	EventRepairIteration
)

func (k EventKind) String() string {
	switch k {
	case EventStateChanged:
		return "state changed"
	case EventPassSucceeded:
		return "pass succeeded"
	case EventPassFailed:
		return "pass failed"
	case EventScanResult:
		return "scan result"
	case EventScanFailed:
		return "scan failed"
	case EventRepairIteration:
		return "repair iteration"
	default:
		return "unknown"
	}
}

// Event is emitted synchronously as the session progresses.
//
//nolint:govet
type Event struct {
	Time time.Time
	Kind EventKind
	// State the session is in.
	State State
	// Index is the 1-based pass or repair iteration number.
	Index int
	// Outcome is set for EventScanResult and EventRepairIteration.
	Outcome verify.Outcome
	// Err is set for EventPassFailed and EventScanFailed.
	Err error
}
