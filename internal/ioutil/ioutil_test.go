// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package ioutil_test

import (
	"bytes"
	"errors"
	"io"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/siderolabs/go-blockwipe/internal/ioutil"
)

// shortReader returns at most 3 bytes per call.
type shortReader struct {
	r io.ReaderAt
}

func (s shortReader) ReadAt(p []byte, off int64) (int, error) {
	if len(p) > 3 {
		p = p[:3]
	}

	return s.r.ReadAt(p, off)
}

type failingReader struct {
	failAt int64
}

var errBroken = errors.New("broken")

func (f failingReader) ReadAt(p []byte, off int64) (int, error) {
	if off+int64(len(p)) <= f.failAt {
		return len(p), nil
	}

	return int(f.failAt - off), errBroken
}

func TestReadFullAt(t *testing.T) {
	t.Parallel()

	data := []byte("0123456789abcdef")

	for _, test := range []struct {
		name   string
		r      io.ReaderAt
		size   int
		offset int64

		expectedN   int
		expectedErr error
	}{
		{
			name:      "full",
			r:         bytes.NewReader(data),
			size:      16,
			expectedN: 16,
		},
		{
			name:      "short reads",
			r:         shortReader{bytes.NewReader(data)},
			size:      10,
			offset:    4,
			expectedN: 10,
		},
		{
			name:        "unexpected eof",
			r:           bytes.NewReader(data),
			size:        10,
			offset:      10,
			expectedN:   6,
			expectedErr: io.ErrUnexpectedEOF,
		},
		{
			name:        "read error",
			r:           failingReader{failAt: 7},
			size:        10,
			expectedN:   7,
			expectedErr: errBroken,
		},
	} {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()

			buf := make([]byte, test.size)

			n, err := ioutil.ReadFullAt(test.r, buf, test.offset)

			assert.Equal(t, test.expectedN, n)

			if test.expectedErr != nil {
				require.ErrorIs(t, err, test.expectedErr)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestChunks(t *testing.T) {
	t.Parallel()

	assert.Equal(t,
		[]ioutil.Chunk{{0, 4}, {4, 4}, {8, 2}},
		slices.Collect(ioutil.Chunks(0, 10, 4)),
	)

	assert.Equal(t,
		[]ioutil.Chunk{{5, 3}, {8, 4}, {12, 1}},
		slices.Collect(ioutil.Chunks(5, 13, 4)),
	)

	assert.Empty(t, slices.Collect(ioutil.Chunks(10, 10, 4)))
	assert.Empty(t, slices.Collect(ioutil.Chunks(11, 10, 4)))
	assert.Empty(t, slices.Collect(ioutil.Chunks(0, 10, 0)))
}

func TestChunksCoverRange(t *testing.T) {
	t.Parallel()

	rapid.Check(t, func(t *rapid.T) {
		start := rapid.Uint64Range(0, 1<<20).Draw(t, "start")
		end := rapid.Uint64Range(start, start+1<<20).Draw(t, "end")
		size := rapid.Uint64Range(1, 1<<16).Draw(t, "size")

		next := start

		for c := range ioutil.Chunks(start, end, size) {
			if c.Offset != next {
				t.Fatalf("gap or overlap: expected offset %d, got %d", next, c.Offset)
			}

			if c.Length == 0 || c.Length > size {
				t.Fatalf("bad chunk length %d (size %d)", c.Length, size)
			}

			next = c.End()
		}

		if next != max(start, end) {
			t.Fatalf("range not covered: stopped at %d, expected %d", next, end)
		}
	})
}
