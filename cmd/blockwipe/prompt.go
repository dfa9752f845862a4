// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/fatih/color"

	"github.com/siderolabs/go-blockwipe/catalog"
	"github.com/siderolabs/go-blockwipe/session"
)

const rule = "_______________________________________________________________"

var errNoCandidates = errors.New("no unmounted drives found")

var (
	headerColor  = color.New(color.FgGreen)
	driveColor   = color.New(color.FgRed)
	partColor    = color.New(color.FgYellow, color.Italic)
	promptColor  = color.New(color.FgYellow)
	warningColor = color.New(color.FgRed, color.Bold)
)

// prompter asks the operator to pick and confirm the drive.
type prompter struct {
	in  *bufio.Reader
	out io.Writer
}

func newPrompter(in io.Reader, out io.Writer) *prompter {
	return &prompter{
		in:  bufio.NewReader(in),
		out: out,
	}
}

// Select implements session.Selector.
func (p *prompter) Select(ctx context.Context, devices, candidates []*catalog.Device) (*catalog.Device, error) {
	p.say(headerColor, "All Drives ____________________________________________________")

	for _, dev := range devices {
		p.say(driveColor, "\t"+formatDevice(dev))

		for _, part := range dev.Partitions {
			p.say(partColor, "\t\t"+formatPartition(part))
		}
	}

	p.say(nil)
	p.say(headerColor, "All Drives Currently Unmounted ________________________________")

	if len(candidates) == 0 {
		return nil, errNoCandidates
	}

	for i, dev := range candidates {
		p.say(driveColor, strconv.Itoa(i+1)+"\t"+formatDevice(dev))
	}

	p.say(headerColor, rule)
	p.say(promptColor, "Select the drive you would like to wipe (`q` to quit)")

	var selected *catalog.Device

	for selected == nil {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		input, err := p.readLine()
		if err != nil {
			return nil, err
		}

		if strings.HasPrefix(input, "q") {
			return nil, session.ErrDeclined
		}

		idx, err := strconv.Atoi(input)
		if err != nil || idx < 1 || idx > len(candidates) {
			p.say(driveColor, "[-] Not a valid drive index. Please try again")

			continue
		}

		selected = candidates[idx-1]
	}

	p.say(headerColor, rule)
	p.say(nil, "You have selected "+formatDevice(selected))

	for _, part := range selected.Partitions {
		p.say(partColor, "\t"+formatPartition(part))
	}

	p.say(promptColor, "Does this information look correct? (y/N)")

	if err := p.confirm(ctx); err != nil {
		return nil, err
	}

	p.say(warningColor, rule)
	p.say(warningColor, "WARNING WARNING WARNING WARNING WARNING WARNING WARNING WARNING")
	p.say(warningColor, rule)
	p.say(nil)
	p.say(warningColor, "YOU ARE ABOUT TO PERMANENTLY DELETE ALL INFORMATION FROM "+selected.Path+".")
	p.say(warningColor, "ARE YOU SURE YOU WISH TO CONTINUE? THERE IS NO GOING BACK AFTER THIS")
	p.say(promptColor, "(y/N)")

	if err := p.confirm(ctx); err != nil {
		return nil, err
	}

	return selected, nil
}

// confirm returns ErrDeclined unless the operator answers y.
func (p *prompter) confirm(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	input, err := p.readLine()
	if err != nil {
		return err
	}

	if !strings.EqualFold(input, "y") {
		p.say(driveColor, "[-] Caught non-affirmative. Quitting...")

		return session.ErrDeclined
	}

	return nil
}

func (p *prompter) readLine() (string, error) {
	fmt.Fprint(p.out, " > ") //nolint:errcheck

	line, err := p.in.ReadString('\n')
	if err != nil {
		if !errors.Is(err, io.EOF) {
			return "", fmt.Errorf("failed to read input: %w", err)
		}

		if line == "" {
			return "", fmt.Errorf("input closed: %w", session.ErrDeclined)
		}
	}

	return strings.TrimSpace(line), nil
}

// say prints a line, in color if c is set.
func (p *prompter) say(c *color.Color, a ...any) {
	if c == nil {
		fmt.Fprintln(p.out, a...) //nolint:errcheck

		return
	}

	c.Fprintln(p.out, a...) //nolint:errcheck
}
