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

func TestComposeProcessWordNonResident(t *testing.T) {
	w := uint64(0x1234) // bit 63 clear: not present
	out := composeProcessWord(w, true, true)
	if uint64(out) != w {
		t.Errorf("non-resident entry must pass through verbatim, got %#x want %#x", out, w)
	}
}

func TestComposeProcessWordSwapped(t *testing.T) {
	w := uint64(1<<pmSwapBit) | 0xabcd
	out := composeProcessWord(w, true, true)
	if uint64(out) != w {
		t.Errorf("swapped entry must pass through verbatim, got %#x want %#x", out, w)
	}
}

func TestComposeProcessWordResident(t *testing.T) {
	pfn := uint64(0xdeadbe)
	w := uint64(1<<pmPresentBit) | pfn

	out := composeProcessWord(w, false, true) // idle bit off -> active, zero content
	if !out.Active() {
		t.Error("expected Active() bit set when idle bit is 0")
	}
	if !out.Zero() {
		t.Error("expected Zero() bit set")
	}
	if out.PFN() != 0 {
		t.Errorf("PFN bits must be cleared on a resident word, got %#x", out.PFN())
	}
	if !out.Present() || out.Swapped() {
		t.Error("present/swap bits must be preserved")
	}

	out2 := composeProcessWord(w, true, false) // idle bit on -> not active
	if out2.Active() {
		t.Error("expected Active() clear when idle bit is 1")
	}
	if out2.Zero() {
		t.Error("expected Zero() clear when content not zero")
	}
}

func TestComposeHostWordGatedOnLRU(t *testing.T) {
	nonLRU := uint64(0x10) // bit 5 clear
	out := composeHostWord(nonLRU, false, false)
	if out.Active() {
		t.Error("non-LRU page must never be marked active regardless of idle state")
	}

	lru := uint64(1 << kpfLRUBit)
	out2 := composeHostWord(lru, false, false)
	if !out2.Active() {
		t.Error("LRU page with idle bit 0 must be marked active")
	}
	out3 := composeHostWord(lru, true, false)
	if out3.Active() {
		t.Error("LRU page with idle bit 1 must not be marked active")
	}
}

func TestComposeHostWordPreservesOtherBits(t *testing.T) {
	w := uint64(1<<kpfLRUBit) | 1<<10 | 1<<40
	out := composeHostWord(w, true, false)
	if uint64(out)&(1<<10) == 0 || uint64(out)&(1<<40) == 0 {
		t.Errorf("unrelated bits must be preserved, got %#x", out)
	}
}

func TestResidentPredicates(t *testing.T) {
	if residentPagemap(0) {
		t.Error("absent pagemap entry must not be resident")
	}
	if !residentPagemap(1 << pmPresentBit) {
		t.Error("present, non-swapped entry must be resident")
	}
	if residentPagemap(1<<pmPresentBit | 1<<pmSwapBit) {
		t.Error("swapped entry must not be resident")
	}
	if residentKpageflags(0) {
		t.Error("zero kpageflags entry must not be resident")
	}
	if !residentKpageflags(1) {
		t.Error("nonzero kpageflags entry must be resident")
	}
}
