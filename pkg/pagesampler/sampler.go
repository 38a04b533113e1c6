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
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
)

// SegmentResult is one sampled segment: its starting address (virtual for
// a process sample, physical for a host sample) and the composed output
// flag word for every page in the segment.
type SegmentResult struct {
	AddrStart uint64
	Flags     []FlagWord
}

// ProcessMemory is the immutable result of one sampling cycle. It is
// produced by SampleProcess/SampleHost, consumed by a summarizer and an
// eviction dispatcher, and then dropped.
type ProcessMemory struct {
	Timestamp time.Time
	Segments  []SegmentResult
}

// SampleProcess primes the idle bitmap over every physical RAM range of
// the host, sleeps for the observation window, then harvests and
// composes output flag words for every qualifying virtual segment of
// pid. inspectContent additionally streams page contents to detect
// all-zero pages.
func SampleProcess(pid int, sleep time.Duration, inspectContent bool) (*ProcessMemory, error) {
	physical, err := PhysicalSegments()
	if err != nil {
		return nil, errors.Wrap(err, "enumerating physical segments")
	}
	if err := primeIdle(physical); err != nil {
		return nil, errors.Wrap(err, "priming idle bitmap")
	}

	time.Sleep(sleep)
	timestamp := time.Now()

	idle, err := harvestIdle(physical)
	if err != nil {
		return nil, errors.Wrap(err, "harvesting idle bitmap")
	}

	virtual, err := VirtualSegments(pid)
	if err != nil {
		return nil, errors.Wrap(err, "enumerating virtual segments")
	}
	virtual = FilterVirtual(virtual)

	pagemapPath := fmt.Sprintf("/proc/%d/pagemap", pid)
	memPath := fmt.Sprintf("/proc/%d/mem", pid)

	var result multierror.Error
	segments := make([]SegmentResult, 0, len(virtual))
	for _, seg := range virtual {
		flags, err := sampleProcessSegment(pagemapPath, memPath, seg, idle, inspectContent)
		if err != nil {
			result.Errors = append(result.Errors, errors.Wrapf(err, "segment %#x", seg.Start))
			continue
		}
		segments = append(segments, SegmentResult{AddrStart: seg.Start, Flags: flags})
	}

	if err := result.ErrorOrNil(); err != nil {
		log.Warnf("pid %d: %s", pid, err)
	}
	return &ProcessMemory{Timestamp: timestamp, Segments: segments}, nil
}

// PanicOnMemFault controls what sampleHostSegment does when a /dev/mem
// read fails on a host-mode content-inspection page. Some physical pages
// are not safely readable through /dev/mem on virtualized platforms; the
// default (false) treats that as a page to skip (zero=0, no error
// propagated), matching the §9 open-question decision recorded in
// DESIGN.md. Set true to restore the original panic-on-fault behavior.
var PanicOnMemFault = false

// SampleHost primes the idle bitmap over every physical RAM range, sleeps
// for the observation window, then harvests and composes output flag
// words for every physical segment. inspectRAM additionally streams page
// contents through /dev/mem to detect all-zero pages.
func SampleHost(sleep time.Duration, inspectRAM bool) (*ProcessMemory, error) {
	physical, err := PhysicalSegments()
	if err != nil {
		return nil, errors.Wrap(err, "enumerating physical segments")
	}
	if err := primeIdle(physical); err != nil {
		return nil, errors.Wrap(err, "priming idle bitmap")
	}

	time.Sleep(sleep)
	timestamp := time.Now()

	idle, err := harvestIdle(physical)
	if err != nil {
		return nil, errors.Wrap(err, "harvesting idle bitmap")
	}

	var result multierror.Error
	segments := make([]SegmentResult, 0, len(physical))
	for _, seg := range physical {
		flags, err := sampleHostSegment("/proc/kpageflags", "/dev/mem", seg, idle, inspectRAM)
		if err != nil {
			result.Errors = append(result.Errors, errors.Wrapf(err, "segment %#x", seg.Start))
			continue
		}
		segments = append(segments, SegmentResult{AddrStart: seg.Start, Flags: flags})
	}

	if err := result.ErrorOrNil(); err != nil {
		log.Warnf("host sample: %s", err)
	}
	return &ProcessMemory{Timestamp: timestamp, Segments: segments}, nil
}

func sampleProcessSegment(pagemapPath, memPath string, seg Segment, idle []byte, inspectContent bool) ([]FlagWord, error) {
	pagemap, err := readWords(pagemapPath, seg)
	if err != nil {
		return nil, errors.Wrap(err, "reading pagemap")
	}

	var reader *contentReader
	if inspectContent {
		reader, err = newContentReader(memPath, seg, pagemap, residentProcess)
		if err != nil {
			return nil, errors.Wrap(err, "opening content reader")
		}
		defer reader.Close()
	}

	out := make([]FlagWord, len(pagemap))
	for i, w := range pagemap {
		if !residentPagemap(w) {
			out[i] = FlagWord(w)
			continue
		}
		pfn := w & pmPFNMask
		idleBit := idleBitIsIdle(idle, pfn)
		zero := false
		if inspectContent {
			content, err := reader.pageData(i)
			if err != nil {
				return nil, errors.Wrapf(err, "reading content of page %d", i)
			}
			zero = allBytesZero(content)
		}
		out[i] = composeProcessWord(w, idleBit, zero)
	}
	return out, nil
}

func sampleHostSegment(kpageflagsPath, memPath string, seg Segment, idle []byte, inspectRAM bool) ([]FlagWord, error) {
	kpageflags, err := readWords(kpageflagsPath, seg)
	if err != nil {
		return nil, errors.Wrap(err, "reading kpageflags")
	}

	var reader *contentReader
	if inspectRAM {
		reader, err = newContentReader(memPath, seg, kpageflags, residentHost)
		if err != nil {
			return nil, errors.Wrap(err, "opening content reader")
		}
		defer reader.Close()
	}

	baseFN := seg.Start / PageSize
	out := make([]FlagWord, len(kpageflags))
	for i, w := range kpageflags {
		pfn := baseFN + uint64(i)
		idleBit := idleBitIsIdle(idle, pfn)
		zero := false
		if inspectRAM && w != 0 {
			content, err := reader.pageData(i)
			if err != nil {
				if PanicOnMemFault {
					panic(errors.Wrapf(err, "reading content of pfn %d", pfn))
				}
				log.Warnf("pfn %d: /dev/mem read failed, skipping content inspection: %s", pfn, err)
			} else {
				zero = allBytesZero(content)
			}
		}
		out[i] = composeHostWord(w, idleBit, zero)
	}
	return out, nil
}
