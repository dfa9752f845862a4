// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package main

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"

	"github.com/siderolabs/go-blockwipe/session"
)

// Exit codes.
const (
	exitOK    = 0
	exitError = 1
	// exitDirty is returned when the drive is not verified to be zeroed.
	exitDirty = 2
)

var (
	okColor   = color.New(color.FgGreen)
	infoColor = color.New(color.FgYellow)
	failColor = color.New(color.FgRed, color.Bold)
)

// renderer prints session events for the operator.
type renderer struct {
	out    io.Writer
	passes int

	// lastPercent is the last printed progress, -1 if none.
	lastPercent int
}

func newRenderer(out io.Writer, passes int) *renderer {
	return &renderer{
		out:         out,
		passes:      passes,
		lastPercent: -1,
	}
}

func (r *renderer) say(c *color.Color, format string, a ...any) {
	c.Fprintf(r.out, format+"\n", a...) //nolint:errcheck
}

// observe implements session event callback.
func (r *renderer) observe(ev session.Event) {
	r.lastPercent = -1

	//nolint:exhaustive
	switch ev.Kind {
	case session.EventStateChanged:
		r.stateChanged(ev)
	case session.EventPassSucceeded:
		if ev.State == session.StateRepairing {
			r.say(infoColor, "[+] Secondary write complete. Checking success now...")
		} else {
			r.say(okColor, "[+] Pass #%d complete", ev.Index)
		}
	case session.EventPassFailed:
		if ev.State == session.StateRepairing {
			r.say(failColor, "[-] Failed secondary write: %v", ev.Err)
		} else {
			r.say(failColor, "[-] Zero drive issue hit on pass #%d: %v", ev.Index, ev.Err)
		}
	case session.EventScanResult:
		if ev.Outcome.IsClean() {
			r.say(okColor, "[+] No non-zero data found")
		} else {
			r.say(failColor, "[-] Non-zero data found at offset %d", ev.Outcome.Offset)
		}
	case session.EventScanFailed:
		r.say(failColor, "[-] Failed to check the drive: %v", ev.Err)
	case session.EventRepairIteration:
		r.say(infoColor, "[ ] Repair attempt #%d: %s", ev.Index, ev.Outcome)
	}
}

func (r *renderer) stateChanged(ev session.Event) {
	//nolint:exhaustive
	switch ev.State {
	case session.StateWiping:
		r.say(okColor, rule)
		r.say(color.New(color.Reset), "Securely formatting drive (%d pass(es) of zeros). This will take a while...", r.passes)
		r.say(color.New(color.Reset), "Started at %s", ev.Time.Format(time.RFC1123))
	case session.StateVerifying:
		r.say(okColor, rule)
		r.say(okColor, "[+] Wipe complete!")
		r.say(infoColor, "[ ] Just double checking my work...")
	case session.StateRepairing:
		r.say(infoColor, "[ ] Attempting to zero non-zeroed data...")
	}
}

// progress prints the completion percentage of the current pass or scan.
func (r *renderer) progress(offset, size uint64) {
	if size == 0 {
		return
	}

	percent := int(offset * 100 / size)
	if percent == r.lastPercent {
		return
	}

	r.lastPercent = percent

	fmt.Fprintf(r.out, "\r    %3d%%", percent) //nolint:errcheck

	if offset >= size {
		fmt.Fprintln(r.out) //nolint:errcheck
	}
}

// summary prints the result and returns the process exit code.
func (r *renderer) summary(result *session.Result) int {
	r.say(okColor, rule)

	switch result.Status {
	case session.StatusClean:
		r.say(okColor, "[+] Successfully zeroed volume %s!", result.Device.Path)
	case session.StatusSkipped:
		r.say(infoColor, "[ ] Skipping success assertion check")
	case session.StatusDirty:
		r.say(failColor, "[-] Failed secondary check (offset %d) after %d attempt(s)", result.Offset, result.RepairIterations)

		return exitDirty
	case session.StatusUnverified:
		r.say(failColor, "[-] Drive could not be verified: %v", result.Err)

		return exitDirty
	case session.StatusCancelled:
		if errors.Is(result.Err, session.ErrDeclined) {
			r.say(infoColor, "[ ] Nothing was written. Quitting...")

			return exitOK
		}

		r.say(failColor, "[-] Cancelled: %v", result.Err)

		return exitError
	case session.StatusAborted, session.StatusFailed:
		r.say(failColor, "[-] %v", result.Err)

		return exitError
	}

	if result.PassFailures > 0 {
		r.say(failColor, "[-] %d pass(es) failed", result.PassFailures)
	}

	r.say(okColor, "[+] All operations completed in %s", result.Duration().Round(time.Second))

	return exitOK
}
