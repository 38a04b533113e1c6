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

func TestRoundUp8(t *testing.T) {
	tcases := []struct {
		n    uint64
		want uint64
	}{
		{1, 8}, {7, 8}, {8, 8}, {9, 16}, {16, 16}, {17, 24},
	}
	for _, tc := range tcases {
		if got := roundUp8(tc.n); got != tc.want {
			t.Errorf("roundUp8(%d) = %d, want %d", tc.n, got, tc.want)
		}
	}
}

func TestIdleByteOffsetAlignment(t *testing.T) {
	tcases := []struct {
		name  string
		start uint64
		want  int64
	}{
		{"pfn 0", 0, 0},
		{"pfn 63 (byte 7, below alignment)", 63 * PageSize, 0},
		{"pfn 64 (byte 8, aligned)", 64 * PageSize, 8},
		{"pfn 500", 500 * PageSize, 56}, // byteOff=62 -> (62/8)*8=56
	}
	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			got := idleByteOffset(tc.start)
			if got%8 != 0 {
				t.Fatalf("offset %d is not 8-byte aligned", got)
			}
			if got != tc.want {
				t.Errorf("idleByteOffset(%#x) = %d, want %d", tc.start, got, tc.want)
			}
		})
	}
}

func TestIdleByteLenRoundsUpToEight(t *testing.T) {
	for _, pages := range []uint64{1, 7, 8, 9, 64, 65} {
		got := idleByteLen(pages)
		if got%8 != 0 {
			t.Errorf("idleByteLen(%d) = %d, not a multiple of 8", pages, got)
		}
	}
}

func TestIdleBitIsIdle(t *testing.T) {
	idle := []byte{0b00000101} // bits 0 and 2 set
	if !idleBitIsIdle(idle, 0) {
		t.Error("pfn 0 should be idle")
	}
	if idleBitIsIdle(idle, 1) {
		t.Error("pfn 1 should not be idle")
	}
	if !idleBitIsIdle(idle, 2) {
		t.Error("pfn 2 should be idle")
	}
	if idleBitIsIdle(idle, 100) {
		t.Error("pfn beyond vector length must read as not idle")
	}
}
