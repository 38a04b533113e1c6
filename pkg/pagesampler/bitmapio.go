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
	"encoding/binary"
	"os"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

const pageIdleBitmapPath = "/sys/kernel/mm/page_idle/bitmap"

// readWords opens path and reads the 8-byte little-endian words covering
// segment, positioned at (segment.Start/PageSize)*8. Used for
// /proc/<pid>/pagemap and /proc/kpageflags, both of which are indexed by
// one 8-byte entry per page.
func readWords(path string, segment Segment) ([]uint64, error) {
	if segment.Start%PageSize != 0 {
		return nil, errors.Errorf("readWords: segment start %#x is not page-aligned", segment.Start)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", path)
	}
	defer f.Close()

	off := int64((segment.Start / PageSize) * 8)
	nbytes := int(segment.Pages() * 8)
	buf := make([]byte, nbytes)
	if _, err := readFullAt(f, buf, off); err != nil {
		return nil, errors.Wrapf(err, "reading %s at offset %d", path, off)
	}

	words := make([]uint64, segment.Pages())
	for i := range words {
		words[i] = binary.LittleEndian.Uint64(buf[i*8 : i*8+8])
	}
	return words, nil
}

// idleByteOffset returns the 8-byte-aligned file offset into the idle
// bitmap covering the first PFN of a segment starting at the given byte
// address: one bit per PFN packed 8 PFNs to a byte, then rounded down to
// the kernel's 8-byte access granularity.
func idleByteOffset(start uint64) int64 {
	pfn := start / PageSize
	byteOff := pfn / 8
	return int64((byteOff / 8) * 8)
}

// idleByteLen returns the number of idle-bitmap bytes a segment of the
// given page count spans, rounded up to a multiple of 8.
func idleByteLen(pages uint64) int {
	return int(roundUp8((pages + 7) / 8))
}

// primeIdle marks PFNs of physical as idle (bit=1) in the kernel idle
// bitmap: for each segment it writes idleByteLen(seg.Pages()) all-ones
// bytes starting at idleByteOffset(seg.Start). When a segment's first PFN
// is not a multiple of 64 that span starts below the segment and may end
// before its last PFNs, which are then left as the kernel had them. A
// 4 KiB all-ones scratch buffer is reused across segments; writes are
// always issued in multiples of 8 bytes, per the kernel's alignment
// requirement on this file.
func primeIdle(physical []Segment) error {
	f, err := os.OpenFile(pageIdleBitmapPath, os.O_WRONLY, 0)
	if err != nil {
		return errors.Wrapf(err, "opening %s", pageIdleBitmapPath)
	}
	defer f.Close()

	scratch := make([]byte, 4096)
	for i := range scratch {
		scratch[i] = 0xff
	}

	for _, seg := range physical {
		off := idleByteOffset(seg.Start)
		remaining := idleByteLen(seg.Pages())
		for remaining > 0 {
			n := len(scratch)
			if n > remaining {
				n = remaining
			}
			written, err := writeFullAt(f, scratch[:n], off)
			if err != nil {
				return errors.Wrapf(err, "priming idle bitmap at offset %d", off)
			}
			off += int64(written)
			remaining -= written
		}
	}
	return nil
}

// harvestIdle reads back the idle bitmap over the same per-segment spans
// primeIdle writes, returning a dense byte vector indexed by PFN/8. Bytes
// outside those spans are left zero, which decodes as "not idle"; this
// includes the tail PFNs of a segment whose first PFN is not a multiple
// of 64 when the span ends before them.
func harvestIdle(physical []Segment) ([]byte, error) {
	if len(physical) == 0 {
		return nil, nil
	}
	f, err := os.Open(pageIdleBitmapPath)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", pageIdleBitmapPath)
	}
	defer f.Close()

	last := physical[len(physical)-1]
	highestPFN := (last.Start + last.Size) / PageSize
	out := make([]byte, roundUp8(highestPFN/8+1))

	for _, seg := range physical {
		off := idleByteOffset(seg.Start)
		nbytes := idleByteLen(seg.Pages())
		dstStart := int(off)
		if dstStart+nbytes > len(out) {
			nbytes = len(out) - dstStart
		}
		if nbytes <= 0 {
			continue
		}
		if _, err := readFullAt(f, out[dstStart:dstStart+nbytes], off); err != nil {
			return nil, errors.Wrapf(err, "harvesting idle bitmap at offset %d", off)
		}
	}
	return out, nil
}

// idleBitIsIdle reports whether pfn's idle bit is set in a vector
// produced by harvestIdle.
func idleBitIsIdle(idle []byte, pfn uint64) bool {
	byteIdx := pfn / 8
	if byteIdx >= uint64(len(idle)) {
		return false
	}
	bit := pfn % 8
	return idle[byteIdx]&(1<<bit) != 0
}

func readFullAt(f *os.File, buf []byte, off int64) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := unix.Pread(int(f.Fd()), buf[total:], off+int64(total))
		if err != nil {
			return total, err
		}
		if n == 0 {
			return total, errors.New("short read: unexpected EOF")
		}
		total += n
	}
	return total, nil
}

func writeFullAt(f *os.File, buf []byte, off int64) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := unix.Pwrite(int(f.Fd()), buf[total:], off+int64(total))
		if err != nil {
			return total, err
		}
		if n == 0 {
			return total, errors.New("short write: wrote 0 bytes")
		}
		total += n
	}
	return total, nil
}
