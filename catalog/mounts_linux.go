// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package catalog

import (
	"io"
	"strconv"

	"github.com/moby/sys/mountinfo"
)

// parseMountInfo parses /proc/<pid>/mountinfo.
func parseMountInfo(r io.Reader) ([]mountEntry, error) {
	infos, err := mountinfo.GetMountsFromReader(r, nil)
	if err != nil {
		return nil, err
	}

	entries := make([]mountEntry, 0, len(infos))

	for _, info := range infos {
		entries = append(entries, mountEntry{
			DevNo:      strconv.Itoa(info.Major) + ":" + strconv.Itoa(info.Minor),
			Source:     info.Source,
			MountPoint: info.Mountpoint,
			FSType:     info.FSType,
		})
	}

	return entries, nil
}
