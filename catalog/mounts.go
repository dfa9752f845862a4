// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package catalog

import (
	"bufio"
	"io"
	"slices"
	"strings"
)

// swapMountPoint is reported as the mount point of active swap areas.
const swapMountPoint = "[SWAP]"

// mountEntry is a single line of the mount table.
type mountEntry struct {
	DevNo      string
	Source     string
	MountPoint string
	FSType     string
}

// mountTable indexes mount entries by device number and by source.
type mountTable struct {
	byDevNo  map[string][]string
	bySource map[string][]string
}

func newMountTable() *mountTable {
	return &mountTable{
		byDevNo:  map[string][]string{},
		bySource: map[string][]string{},
	}
}

func (m *mountTable) add(e mountEntry) {
	if e.DevNo != "" {
		m.byDevNo[e.DevNo] = append(m.byDevNo[e.DevNo], e.MountPoint)
	}

	if strings.HasPrefix(e.Source, "/") {
		m.bySource[e.Source] = append(m.bySource[e.Source], e.MountPoint)
	}
}

// lookup returns mount points of the device by its major:minor and device node path.
func (m *mountTable) lookup(devNo, path string) []string {
	var points []string

	points = append(points, m.byDevNo[devNo]...)

	for _, p := range m.bySource[path] {
		if !slices.Contains(points, p) {
			points = append(points, p)
		}
	}

	return points
}

// parseSwaps parses /proc/swaps, returning swap sources.
//
//	Filename				Type		Size		Used		Priority
//	/dev/sda2                               partition	8388604		0		-2
func parseSwaps(r io.Reader) ([]mountEntry, error) {
	var entries []mountEntry

	scanner := bufio.NewScanner(r)
	first := true

	for scanner.Scan() {
		if first {
			first = false

			continue
		}

		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}

		entries = append(entries, mountEntry{
			Source:     fields[0],
			MountPoint: swapMountPoint,
			FSType:     "swap",
		})
	}

	return entries, scanner.Err()
}
