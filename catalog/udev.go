// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package catalog

import (
	"bufio"
	"io"
	"strings"
)

// udevProperties are E: properties from the udev database entry (/run/udev/data/b<major>:<minor>).
type udevProperties map[string]string

func parseUdevData(r io.Reader) (udevProperties, error) {
	props := udevProperties{}

	scanner := bufio.NewScanner(r)

	for scanner.Scan() {
		line, ok := strings.CutPrefix(scanner.Text(), "E:")
		if !ok {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}

		props[key] = value
	}

	return props, scanner.Err()
}

// parseUevent parses KEY=value lines of a sysfs uevent file.
func parseUevent(r io.Reader) (map[string]string, error) {
	props := map[string]string{}

	scanner := bufio.NewScanner(r)

	for scanner.Scan() {
		key, value, ok := strings.Cut(strings.TrimSpace(scanner.Text()), "=")
		if !ok {
			continue
		}

		props[key] = value
	}

	return props, scanner.Err()
}
