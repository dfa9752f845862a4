// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package main

import (
	"strings"

	"github.com/docker/go-units"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/siderolabs/go-blockwipe/catalog"
)

var printer = message.NewPrinter(language.English)

// formatSize returns the size in binary units followed by the exact byte count.
func formatSize(size uint64) string {
	return printer.Sprintf("%s (%d bytes)", units.BytesSize(float64(size)), size)
}

func formatDevice(dev *catalog.Device) string {
	var b strings.Builder

	b.WriteString(dev.Path)
	b.WriteString(" ")
	b.WriteString(formatSize(dev.Size))

	if dev.Model != "" {
		b.WriteString(" ")
		b.WriteString(dev.Model)
	}

	if dev.Serial != "" {
		b.WriteString(" s/n ")
		b.WriteString(dev.Serial)
	}

	b.WriteString(" [")
	b.WriteString(dev.Type.String())
	b.WriteString("]")

	if dev.ReadOnly {
		b.WriteString(" read-only")
	}

	if dev.Mounted {
		b.WriteString(" in use")

		if len(dev.MountPoints) > 0 {
			b.WriteString(" on ")
			b.WriteString(strings.Join(dev.MountPoints, ", "))
		}
	}

	return b.String()
}

func formatPartition(part *catalog.Partition) string {
	var b strings.Builder

	b.WriteString(part.Path)

	if part.Label != nil {
		printer.Fprintf(&b, " %q", *part.Label) //nolint:errcheck
	}

	if part.Filesystem != "" {
		b.WriteString(" ")
		b.WriteString(part.Filesystem)
	}

	b.WriteString(" ")
	b.WriteString(formatSize(part.Size))

	switch {
	case len(part.MountPoints) > 0:
		b.WriteString(" mounted on ")
		b.WriteString(strings.Join(part.MountPoints, ", "))
	case part.Mounted:
		b.WriteString(" in use")
	default:
		b.WriteString(" unmounted")
	}

	return b.String()
}
