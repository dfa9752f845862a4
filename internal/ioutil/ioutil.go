// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package ioutil provides IO utility functions.
package ioutil

import (
	"errors"
	"io"
	"iter"
)

// ReadFullAt is io.ReadFull for io.ReaderAt.
//
// It returns the number of bytes read, which is less than len(buf) only if err != nil.
func ReadFullAt(r io.ReaderAt, buf []byte, offset int64) (int, error) {
	n := 0

	for n < len(buf) {
		m, err := r.ReadAt(buf[n:], offset)

		n += m
		offset += int64(m)

		if err != nil {
			if errors.Is(err, io.EOF) && n == len(buf) {
				return n, nil
			}

			if errors.Is(err, io.EOF) {
				err = io.ErrUnexpectedEOF
			}

			return n, err
		}
	}

	return n, nil
}

// Chunk is a [Offset, Offset+Length) byte range.
type Chunk struct {
	Offset uint64
	Length uint64
}

// End returns the first offset past the chunk.
func (c Chunk) End() uint64 {
	return c.Offset + c.Length
}

// Chunks splits [start, end) into sequential chunks of at most size bytes.
//
// Chunk boundaries after the first one are aligned to size, so a range starting
// in the middle of a chunk first catches up with the aligned grid.
func Chunks(start, end, size uint64) iter.Seq[Chunk] {
	return func(yield func(Chunk) bool) {
		if size == 0 {
			return
		}

		for offset := start; offset < end; {
			next := min((offset/size+1)*size, end)

			if !yield(Chunk{Offset: offset, Length: next - offset}) {
				return
			}

			offset = next
		}
	}
}
