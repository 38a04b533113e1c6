// Copyright 2021 Intel Corporation. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package pagesampler

import (
	"os"

	"github.com/pkg/errors"
)

// contentBufferPages is the capacity of a contentReader's scratch buffer,
// 10000 pages (≈40 MiB at a 4 KiB page size).
const contentBufferPages = 10000

// residentFunc reports whether the status entry at index i denotes a page
// the content reader may safely stream bytes for.
type residentFunc func(status []uint64, i int) bool

// contentReader is a forward-only streaming cursor over the contents of a
// segment's resident pages, read from /proc/<pid>/mem (process mode) or
// /dev/mem (host mode). It batches reads across consecutive resident
// pages: /proc/<pid>/mem and /dev/mem both fail a read that crosses an
// unmapped or swapped gap, so runs of resident pages are read in one
// syscall and held in a reusable buffer.
type contentReader struct {
	f        *os.File
	segStart uint64
	status   []uint64
	resident residentFunc

	buf         []byte
	windowStart int // page offset the buffer currently begins at
	windowPages int // number of valid pages currently buffered
	windowValid bool
}

// newContentReader opens path (the process's /proc/<pid>/mem or the
// host's /dev/mem) and returns a cursor over segment, backed by status
// (the pagemap or kpageflags vector already harvested for that segment).
func newContentReader(path string, segment Segment, status []uint64, resident residentFunc) (*contentReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", path)
	}
	return &contentReader{
		f:        f,
		segStart: segment.Start,
		status:   status,
		resident: resident,
		buf:      make([]byte, contentBufferPages*PageSize),
	}, nil
}

// Close releases the underlying file handle.
func (c *contentReader) Close() error {
	return c.f.Close()
}

// pageData returns the PageSize bytes of content at page offset
// pageOffset within the segment. The caller must only call this for a
// resident page (resident(status, pageOffset) == true); calling it on a
// hole is a programming error.
func (c *contentReader) pageData(pageOffset int) ([]byte, error) {
	if !c.windowValid || pageOffset < c.windowStart || pageOffset >= c.windowStart+c.windowPages {
		if err := c.refill(pageOffset); err != nil {
			return nil, err
		}
	}
	rel := pageOffset - c.windowStart
	return c.buf[rel*int(PageSize) : (rel+1)*int(PageSize)], nil
}

// refill determines the contiguous run of resident pages starting at
// pageOffset and reads it in one positional read, capped at the buffer's
// capacity. If that read fails, the page at pageOffset is read on its own,
// so an unreadable page later in the run does not fail the pages before it.
func (c *contentReader) refill(pageOffset int) error {
	run := c.contiguousRun(pageOffset)
	if run > contentBufferPages {
		run = contentBufferPages
	}
	if run <= 0 {
		return errors.Errorf("content reader: page %d is not resident", pageOffset)
	}

	addr := c.segStart + uint64(pageOffset)*PageSize
	nbytes := run * int(PageSize)
	if _, err := readFullAt(c.f, c.buf[:nbytes], int64(addr)); err != nil {
		if run == 1 {
			return errors.Wrapf(err, "reading content at %#x (%d pages)", addr, run)
		}
		run = 1
		if _, err := readFullAt(c.f, c.buf[:PageSize], int64(addr)); err != nil {
			return errors.Wrapf(err, "reading content at %#x (%d pages)", addr, run)
		}
	}
	c.windowStart = pageOffset
	c.windowPages = run
	c.windowValid = true
	return nil
}

// contiguousRun scans status forward from pageOffset for consecutive
// resident entries, per the resident predicate.
func (c *contentReader) contiguousRun(pageOffset int) int {
	n := 0
	for i := pageOffset; i < len(c.status) && c.resident(c.status, i); i++ {
		n++
	}
	return n
}

func residentProcess(status []uint64, i int) bool {
	return residentPagemap(status[i])
}

func residentHost(status []uint64, i int) bool {
	return residentKpageflags(status[i])
}

// allBytesZero reports whether every byte of p is zero.
func allBytesZero(p []byte) bool {
	for _, b := range p {
		if b != 0 {
			return false
		}
	}
	return true
}
