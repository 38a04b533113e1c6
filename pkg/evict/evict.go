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

// Package evict nominates idle resident pages of a sampled target to an
// external hypervisor control channel for eviction, speaking the
// QMP-over-telnet dialect documented in the control-channel contract:
// a banner read, a "qmp_capabilities" handshake, then one
// "pageout_pages" request per segment that has candidate pages.
package evict

import (
	"bufio"
	"encoding/json"
	"math/rand"
	"net"
	"time"

	"github.com/pkg/errors"

	"github.com/wssprobe/wssprobe/pkg/log"
	"github.com/wssprobe/wssprobe/pkg/pagesampler"
)

var logger = log.Get("evict")

// rng is seeded once at process start, not per call, matching the
// original's use of a single thread-local RNG across dispatches.
var rng = rand.New(rand.NewSource(time.Now().UnixNano()))

// Dispatcher holds a live connection to the hypervisor control channel.
type Dispatcher struct {
	conn net.Conn
	r    *bufio.Reader
}

// Dial connects to the QMP control channel at addr (typically
// "127.0.0.1:4444"), reads the banner, and performs the
// qmp_capabilities handshake.
func Dial(addr string) (*Dispatcher, error) {
	conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
	if err != nil {
		return nil, errors.Wrapf(err, "connecting to %s", addr)
	}
	d := &Dispatcher{conn: conn, r: bufio.NewReader(conn)}

	if _, err := d.readLine(); err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "reading QMP banner")
	}
	if err := d.send(map[string]interface{}{"execute": "qmp_capabilities"}); err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "sending qmp_capabilities")
	}
	if _, err := d.readLine(); err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "reading qmp_capabilities reply")
	}
	return d, nil
}

// Close releases the control-channel connection.
func (d *Dispatcher) Close() error {
	return d.conn.Close()
}

// EvictFromMemory draws pageout page addresses at random, with
// replacement, from each segment's idle resident pages and sends one
// pageout_pages request per segment that has any such pages, mirroring
// the original's per-segment swap_some_out.
func (d *Dispatcher) EvictFromMemory(memory *pagesampler.ProcessMemory, pageout int) error {
	if pageout <= 0 {
		return nil
	}
	for _, seg := range memory.Segments {
		candidates := candidatePages(seg)
		if len(candidates) == 0 {
			continue
		}
		selected := selectRandom(candidates, pageout)
		addrs := make([]uint64, len(selected))
		for i, off := range selected {
			addrs[i] = seg.AddrStart + uint64(off)*pagesampler.PageSize
		}
		logger.Infof("requesting pageout of %d pages from segment %#x", len(addrs), seg.AddrStart)
		if err := d.pageout(addrs); err != nil {
			return errors.Wrapf(err, "segment %#x", seg.AddrStart)
		}
	}
	return nil
}

// candidatePages returns the page offsets within seg that are present
// and not active: eviction targets, exactly as the original's
// swap_some_out filters idle_pages.
func candidatePages(seg pagesampler.SegmentResult) []int {
	var out []int
	for i, w := range seg.Flags {
		if w.Present() && !w.Active() {
			out = append(out, i)
		}
	}
	return out
}

// selectRandom draws n page offsets uniformly at random (with
// replacement, matching the original's repeated independent samples)
// from candidates.
func selectRandom(candidates []int, n int) []int {
	selected := make([]int, n)
	for i := range selected {
		selected[i] = candidates[rng.Intn(len(candidates))]
	}
	return selected
}

func (d *Dispatcher) pageout(addrs []uint64) error {
	req := map[string]interface{}{
		"execute": "pageout_pages",
		"arguments": map[string]interface{}{
			"pages": addrs,
		},
	}
	if err := d.send(req); err != nil {
		return errors.Wrap(err, "sending pageout_pages")
	}
	if _, err := d.readLine(); err != nil {
		return errors.Wrap(err, "reading pageout_pages reply")
	}
	return nil
}

func (d *Dispatcher) send(v interface{}) error {
	enc, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = d.conn.Write(append(enc, '\n'))
	return err
}

func (d *Dispatcher) readLine() (string, error) {
	line, err := d.r.ReadString('\n')
	if err != nil {
		return "", err
	}
	return line, nil
}
