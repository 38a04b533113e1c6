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

package summarize

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// swapKBForSegment scans smaps (the full text of /proc/<pid>/smaps) for
// the block whose header line starts with the segment's hex start
// address, then returns the kB value of that block's Swap: line.
func swapKBForSegment(smaps string, addrStart uint64) (uint64, error) {
	target := fmt.Sprintf("%x", addrStart)
	lines := strings.Split(smaps, "\n")
	for i, line := range lines {
		if !strings.HasPrefix(line, target) {
			continue
		}
		for _, follow := range lines[i+1:] {
			if strings.HasPrefix(follow, "Swap:") {
				return parseSmapsKBLine(follow)
			}
			// The next mapping header ends this block without a Swap:
			// line ever appearing; treat that as zero swap, not an error.
			if fields := strings.Fields(follow); len(fields) > 0 && strings.Contains(fields[0], "-") && !strings.HasSuffix(fields[0], ":") {
				break
			}
		}
		return 0, nil
	}
	return 0, errors.Errorf("no smaps block found for segment %#x", addrStart)
}

// parseSmapsKBLine parses a "Swap:            3237444 kB" style line.
func parseSmapsKBLine(line string) (uint64, error) {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return 0, errors.Errorf("malformed smaps line: %q", line)
	}
	v, err := strconv.ParseUint(fields[1], 10, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "parsing smaps value %q", fields[1])
	}
	return v, nil
}

// readFaultCounts parses fields 10 and 12 of /proc/<pid>/stat (minflt,
// majflt), per proc(5).
func readFaultCounts(pid int) (minflt, majflt uint64, err error) {
	path := fmt.Sprintf("/proc/%d/stat", pid)
	f, openErr := os.Open(path)
	if openErr != nil {
		return 0, 0, errors.Wrapf(openErr, "opening %s", path)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 4096), 1<<20)
	if !scanner.Scan() {
		return 0, 0, errors.Errorf("reading %s: empty file", path)
	}
	line := scanner.Text()

	// The comm field (field 2) is parenthesized and may itself contain
	// spaces or parentheses; split on the last ')' to skip past it
	// reliably before counting whitespace-separated fields.
	close := strings.LastIndexByte(line, ')')
	if close < 0 {
		return 0, 0, errors.Errorf("malformed %s: no comm field", path)
	}
	rest := strings.Fields(line[close+1:])
	// rest[0] is field 3 (state); minflt is field 10, majflt is field 12.
	const minfltIdx, majfltIdx = 10 - 3, 12 - 3
	if len(rest) <= majfltIdx {
		return 0, 0, errors.Errorf("malformed %s: too few fields", path)
	}
	minflt, err = strconv.ParseUint(rest[minfltIdx], 10, 64)
	if err != nil {
		return 0, 0, errors.Wrapf(err, "parsing minflt from %s", path)
	}
	majflt, err = strconv.ParseUint(rest[majfltIdx], 10, 64)
	if err != nil {
		return 0, 0, errors.Wrapf(err, "parsing majflt from %s", path)
	}
	return minflt, majflt, nil
}
