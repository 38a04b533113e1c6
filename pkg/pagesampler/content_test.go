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
	"path/filepath"
	"testing"
)

// writeFakeMem creates a temp file of npages*PageSize bytes where page i
// is filled with byte value i (mod 256), standing in for /proc/pid/mem.
func writeFakeMem(t *testing.T, npages int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mem")
	buf := make([]byte, npages*int(PageSize))
	for i := 0; i < npages; i++ {
		for j := 0; j < int(PageSize); j++ {
			buf[i*int(PageSize)+j] = byte(i)
		}
	}
	if err := os.WriteFile(path, buf, 0o600); err != nil {
		t.Fatalf("writing fake mem file: %v", err)
	}
	return path
}

func TestContentReaderContiguousRun(t *testing.T) {
	path := writeFakeMem(t, 20)

	// Pages 0-4 resident, 5 is a hole, 6-19 resident.
	status := make([]uint64, 20)
	for i := range status {
		status[i] = 1 << pmPresentBit
	}
	status[5] = 0

	r, err := newContentReader(path, Segment{Start: 0, Size: 20 * PageSize}, status, residentProcess)
	if err != nil {
		t.Fatalf("newContentReader: %v", err)
	}
	defer r.Close()

	if run := r.contiguousRun(0); run != 5 {
		t.Errorf("contiguousRun(0) = %d, want 5", run)
	}
	if run := r.contiguousRun(6); run != 14 {
		t.Errorf("contiguousRun(6) = %d, want 14", run)
	}

	data, err := r.pageData(3)
	if err != nil {
		t.Fatalf("pageData(3): %v", err)
	}
	if data[0] != 3 {
		t.Errorf("pageData(3)[0] = %d, want 3", data[0])
	}

	data2, err := r.pageData(6)
	if err != nil {
		t.Fatalf("pageData(6): %v", err)
	}
	if data2[0] != 6 {
		t.Errorf("pageData(6)[0] = %d, want 6", data2[0])
	}
}

func TestContentReaderRefusesHole(t *testing.T) {
	path := writeFakeMem(t, 4)
	status := []uint64{1 << pmPresentBit, 0, 1 << pmPresentBit, 1 << pmPresentBit}

	r, err := newContentReader(path, Segment{Start: 0, Size: 4 * PageSize}, status, residentProcess)
	if err != nil {
		t.Fatalf("newContentReader: %v", err)
	}
	defer r.Close()

	if _, err := r.pageData(1); err == nil {
		t.Error("expected an error reading a non-resident page")
	}
}

func TestAllBytesZero(t *testing.T) {
	zero := make([]byte, PageSize)
	if !allBytesZero(zero) {
		t.Error("all-zero buffer should report zero")
	}
	zero[PageSize-1] = 1
	if allBytesZero(zero) {
		t.Error("buffer with a trailing nonzero byte should not report zero")
	}
}
