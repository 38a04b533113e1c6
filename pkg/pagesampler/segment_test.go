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

import "testing"

func TestParseHexRangePrefix(t *testing.T) {
	tcases := []struct {
		name          string
		line          string
		expectStart   uint64
		expectEnd     uint64
		expectOK      bool
	}{
		{
			name:        "maps-style line",
			line:        "7f1234560000-7f1234561000 r-xp 00000000 00:00 0",
			expectStart: 0x7f1234560000,
			expectEnd:   0x7f1234561000,
			expectOK:    true,
		}, {
			name:        "iomem-style line with label",
			line:        "00001000-0009ffff : System RAM",
			expectStart: 0x1000,
			expectEnd:   0x9ffff,
			expectOK:    true,
		}, {
			name:        "leading whitespace",
			line:        "  100-200 : System RAM",
			expectStart: 0x100,
			expectEnd:   0x200,
			expectOK:    true,
		}, {
			name:     "no dash",
			line:     "not a range",
			expectOK: false,
		}, {
			name:     "end before start",
			line:     "200-100",
			expectOK: false,
		}, {
			name:     "empty",
			line:     "",
			expectOK: false,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			start, end, ok := parseHexRangePrefix(tc.line)
			if ok != tc.expectOK {
				t.Fatalf("ok: got %v, want %v", ok, tc.expectOK)
			}
			if !ok {
				return
			}
			if start != tc.expectStart || end != tc.expectEnd {
				t.Errorf("got (%#x, %#x), want (%#x, %#x)", start, end, tc.expectStart, tc.expectEnd)
			}
		})
	}
}

func TestFilterVirtual(t *testing.T) {
	segments := []Segment{
		{Start: 0x1000, Size: 200 * 1024 * 1024},       // keep: big enough
		{Start: 0x2000, Size: 10 * 1024 * 1024},         // drop: too small
		{Start: UserspaceEnd, Size: 200 * 1024 * 1024},  // drop: kernel space
		{Start: 0x3000, Size: SegmentThreshold},         // keep: exactly at threshold
	}

	got := FilterVirtual(segments)
	if len(got) != 2 {
		t.Fatalf("expected 2 segments to survive filtering, got %d", len(got))
	}
	if got[0].Start != 0x1000 || got[1].Start != 0x3000 {
		t.Errorf("unexpected surviving segments: %+v", got)
	}
}

func TestSegmentPagesAndEnd(t *testing.T) {
	s := Segment{Start: 0x4000, Size: 3 * PageSize}
	if s.Pages() != 3 {
		t.Errorf("Pages() = %d, want 3", s.Pages())
	}
	if s.End() != 0x4000+3*PageSize {
		t.Errorf("End() = %#x, want %#x", s.End(), 0x4000+3*PageSize)
	}
}
