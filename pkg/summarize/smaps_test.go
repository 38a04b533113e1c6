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
	"testing"

	"github.com/stretchr/testify/require"
)

const fakeSmaps = `400000-421000 r-xp 00000000 00:1f 123 /usr/bin/fake
Size:               1156 kB
Rss:                 400 kB
Swap:                  0 kB
421000-423000 rw-p 00020000 00:1f 123 /usr/bin/fake
Size:                  8 kB
Rss:                   8 kB
Swap:               3072 kB
7f0000000000-7f0000100000 rw-p 00000000 00:00 0
Size:               1024 kB
Rss:                1024 kB
Swap:                  0 kB
`

func TestSwapKBForSegmentFindsBlock(t *testing.T) {
	kb, err := swapKBForSegment(fakeSmaps, 0x421000)
	require.NoError(t, err)
	require.Equal(t, uint64(3072), kb)
}

func TestSwapKBForSegmentZeroSwap(t *testing.T) {
	kb, err := swapKBForSegment(fakeSmaps, 0x400000)
	require.NoError(t, err)
	require.Equal(t, uint64(0), kb)
}

func TestSwapKBForSegmentMissingBlock(t *testing.T) {
	_, err := swapKBForSegment(fakeSmaps, 0xdead0000)
	require.Error(t, err)
}

func TestParseSmapsKBLine(t *testing.T) {
	kb, err := parseSmapsKBLine("Swap:            3237444 kB")
	require.NoError(t, err)
	require.Equal(t, uint64(3237444), kb)
}

func TestParseSmapsKBLineMalformed(t *testing.T) {
	_, err := parseSmapsKBLine("Swap:")
	require.Error(t, err)
}
