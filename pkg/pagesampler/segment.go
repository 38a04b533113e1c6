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
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Segment is a half-open byte range on either the virtual address space of
// one process or the physical address space of the host.
type Segment struct {
	// Start is the page-aligned starting byte address.
	Start uint64
	// Size is the byte length of the segment, a multiple of PageSize.
	Size uint64
}

// Pages returns the number of pages covered by the segment.
func (s Segment) Pages() uint64 {
	return s.Size / PageSize
}

// End returns the first byte address past the segment.
func (s Segment) End() uint64 {
	return s.Start + s.Size
}

// VirtualSegments parses /proc/<pid>/maps into (start, size) ranges. Lines
// whose leading "HEX-HEX" prefix cannot be parsed are logged and skipped;
// they are not fatal. Ranges are half-open: size = end - start.
func VirtualSegments(pid int) ([]Segment, error) {
	path := fmt.Sprintf("/proc/%d/maps", pid)
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", path)
	}
	defer f.Close()

	var segments []Segment
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		start, end, ok := parseHexRangePrefix(line)
		if !ok {
			log.Warnf("unable to parse maps line: %q", line)
			continue
		}
		segments = append(segments, Segment{Start: start, Size: end - start})
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "reading %s", path)
	}
	return segments, nil
}

// FilterVirtual keeps only the segments a sampling cycle cares about:
// userspace addresses at least SegmentThreshold bytes long.
func FilterVirtual(segments []Segment) []Segment {
	out := segments[:0:0]
	for _, s := range segments {
		if s.Start < UserspaceEnd && s.Size >= SegmentThreshold {
			out = append(out, s)
		}
	}
	return out
}

// PhysicalSegments parses /proc/iomem for "System RAM" ranges. /proc/iomem
// ranges are inclusive at both ends, so size = end - start + 1; this is
// deliberately different from VirtualSegments's half-open size.
func PhysicalSegments() ([]Segment, error) {
	path := "/proc/iomem"
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", path)
	}
	defer f.Close()

	var segments []Segment
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.Contains(line, "System RAM") {
			continue
		}
		start, end, ok := parseHexRangePrefix(line)
		if !ok {
			log.Warnf("unable to parse iomem line: %q", line)
			continue
		}
		segments = append(segments, Segment{Start: start, Size: end - start + 1})
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "reading %s", path)
	}
	return segments, nil
}

// parseHexRangePrefix parses the leading "<hex>-<hex>" token of a line, as
// found at the start of /proc/<pid>/maps and /proc/iomem lines.
func parseHexRangePrefix(line string) (start, end uint64, ok bool) {
	line = strings.TrimLeft(line, " \t")
	dash := strings.IndexByte(line, '-')
	if dash <= 0 {
		return 0, 0, false
	}
	rest := line[dash+1:]
	stop := len(rest)
	for i, c := range rest {
		if !isHexDigit(byte(c)) {
			stop = i
			break
		}
	}
	if stop == 0 {
		return 0, 0, false
	}
	startVal, err := strconv.ParseUint(line[:dash], 16, 64)
	if err != nil {
		return 0, 0, false
	}
	endVal, err := strconv.ParseUint(rest[:stop], 16, 64)
	if err != nil || endVal < startVal {
		return 0, 0, false
	}
	return startVal, endVal, true
}

func isHexDigit(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}
