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

// FlagWord is one output entry of a sampling cycle, built from the pagemap
// or kpageflags word for a page. Non-resident and swapped pagemap words
// pass through verbatim; resident pagemap words and kpageflags words carry
// bit 58 (active) and bit 57 (zero) as set by the Sampler.
type FlagWord uint64

func (w FlagWord) Present() bool { return w&(1<<PresentPageBit) != 0 }
func (w FlagWord) Swapped() bool { return w&(1<<SwapPageBit) != 0 }
func (w FlagWord) Active() bool  { return w&(1<<ActivePageBit) != 0 }
func (w FlagWord) Zero() bool    { return w&(1<<ZeroPageBit) != 0 }
func (w FlagWord) LRU() bool     { return w&(1<<LRUPageBit) != 0 }

// PFN extracts the pagemap PFN carried in bits 0-54. Only meaningful for
// pagemap-sourced words that have not had their PFN bits repurposed.
func (w FlagWord) PFN() uint64 { return uint64(w) & pmPFNMask }

// composeProcessWord implements the process-pagemap half of the
// Composition rule: non-resident and swapped entries pass through
// verbatim; resident entries have their PFN bits cleared and replaced
// with the recomputed active/zero bits.
func composeProcessWord(w uint64, idleBit, zero bool) FlagWord {
	if w&(1<<pmPresentBit) == 0 {
		return FlagWord(w)
	}
	if w&(1<<pmSwapBit) != 0 {
		return FlagWord(w)
	}
	out := w &^ pmPFNMask
	if !idleBit {
		out |= 1 << ActivePageBit
	}
	if zero {
		out |= 1 << ZeroPageBit
	}
	return FlagWord(out)
}

// composeHostWord implements the kpageflags half of the Composition
// rule: bit 58 is always recomputed and gated on the LRU bit, every
// other bit of the kernel-supplied word is preserved.
func composeHostWord(w uint64, idleBit, zero bool) FlagWord {
	out := w &^ (uint64(1) << ActivePageBit)
	if w&(1<<kpfLRUBit) != 0 && !idleBit {
		out |= 1 << ActivePageBit
	}
	if zero {
		out |= 1 << ZeroPageBit
	}
	return FlagWord(out)
}

// resident reports whether a raw process-pagemap entry denotes a
// physically backed, non-swapped page.
func residentPagemap(w uint64) bool {
	return w&(1<<pmPresentBit) != 0 && w&(1<<pmSwapBit) == 0
}

// resident reports whether a raw kpageflags entry denotes a page the
// host mode should treat as occupying a PFN (anything non-zero).
func residentKpageflags(w uint64) bool {
	return w != 0
}
