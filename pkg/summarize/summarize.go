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

// Package summarize collapses one sampling cycle's ProcessMemory into
// page-category counts, an appended CSV row, and a set of prometheus
// gauges, enriched with fault-count and swap-usage figures read directly
// from /proc.
package summarize

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/pkg/errors"

	"github.com/wssprobe/wssprobe/pkg/log"
	"github.com/wssprobe/wssprobe/pkg/pagesampler"
)

var logger = log.Get("summarize")

// Counts holds the per-category page counts of one sampling cycle.
type Counts struct {
	Total, LRU, Zero, Active, Present uint64
}

// Count tallies every page of memory into a Counts value.
func Count(memory *pagesampler.ProcessMemory) Counts {
	var c Counts
	for _, seg := range memory.Segments {
		for _, w := range seg.Flags {
			c.Total++
			if w.LRU() {
				c.LRU++
			}
			if w.Zero() {
				c.Zero++
			}
			if w.Active() {
				c.Active++
			}
			if w.Present() {
				c.Present++
			}
		}
	}
	return c
}

// LogPercentages writes a "total pages: <count>" line, then one
// "<name> pages: <count> = <pct>%" line per other category to logger, the
// way the original implementation's console output does.
func LogPercentages(c Counts) {
	logger.Infof("total pages: %d", c.Total)
	logPercentage("LRU", c.LRU, c.Total)
	logPercentage("zero", c.Zero, c.Total)
	logPercentage("active", c.Active, c.Total)
	logPercentage("present", c.Present, c.Total)
}

func logPercentage(name string, val, total uint64) {
	pct := 0.0
	if total > 0 {
		pct = 100 * float64(val) / float64(total)
	}
	logger.Infof("%s pages: %d = %.1f%%", name, val, pct)
}

// CSVDir is the directory CSV rows are appended under, one file per
// target PID. A package-level var (not a const) so tests can point it
// at a temp directory.
var CSVDir = "/tmp/wss"

// AppendCSV appends one row to CSVDir/<pid>.csv: timestamp, the category
// counts, and the process-enrichment fields from enrich. The directory is
// created if missing.
func AppendCSV(pid int, memory *pagesampler.ProcessMemory, c Counts, enrich ProcessEnrichment) error {
	if err := os.MkdirAll(CSVDir, 0o755); err != nil {
		return errors.Wrapf(err, "creating %s", CSVDir)
	}
	path := filepath.Join(CSVDir, strconv.Itoa(pid)+".csv")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return errors.Wrapf(err, "opening %s", path)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	row := []string{
		strconv.FormatInt(memory.Timestamp.Unix(), 10),
		strconv.FormatUint(c.Total, 10),
		strconv.FormatUint(c.LRU, 10),
		strconv.FormatUint(c.Zero, 10),
		strconv.FormatUint(c.Active, 10),
		strconv.FormatUint(c.Present, 10),
		strconv.FormatUint(enrich.MinorFaults, 10),
		strconv.FormatUint(enrich.MajorFaults, 10),
		strconv.FormatUint(enrich.SwapBytes, 10),
	}
	if err := w.Write(row); err != nil {
		return errors.Wrapf(err, "writing CSV row to %s", path)
	}
	w.Flush()
	return w.Error()
}

// ProcessEnrichment holds the fault/swap figures appended to a CSV row,
// gathered outside the core sampler since they come from unrelated
// /proc files rather than the pagemap/kpageflags/idle-bitmap ABI.
type ProcessEnrichment struct {
	MinorFaults uint64
	MajorFaults uint64
	SwapBytes   uint64
}

// EnrichProcess reads /proc/<pid>/stat for minflt/majflt and
// /proc/<pid>/smaps for per-segment Swap: kB, summing the latter across
// every segment memory actually sampled.
func EnrichProcess(pid int, memory *pagesampler.ProcessMemory) (ProcessEnrichment, error) {
	minflt, majflt, err := readFaultCounts(pid)
	if err != nil {
		return ProcessEnrichment{}, errors.Wrap(err, "reading fault counts")
	}
	swapBytes, err := readSwapBytes(pid, memory)
	if err != nil {
		return ProcessEnrichment{}, errors.Wrap(err, "reading swap usage")
	}
	logger.Infof("swap usage: %d kB", swapBytes>>10)
	return ProcessEnrichment{MinorFaults: minflt, MajorFaults: majflt, SwapBytes: swapBytes}, nil
}

func readSwapBytes(pid int, memory *pagesampler.ProcessMemory) (uint64, error) {
	path := fmt.Sprintf("/proc/%d/smaps", pid)
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, errors.Wrapf(err, "reading %s", path)
	}
	smaps := string(data)

	var total uint64
	for _, seg := range memory.Segments {
		kb, err := swapKBForSegment(smaps, seg.AddrStart)
		if err != nil {
			return 0, err
		}
		total += kb << 10
	}
	return total, nil
}
