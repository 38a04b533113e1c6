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

package evict

import (
	"bufio"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wssprobe/wssprobe/pkg/pagesampler"
)

// fakeQMPServer accepts one connection, sends a banner, replies to the
// qmp_capabilities handshake, then echoes back a canned reply to every
// subsequent line it receives, recording what it was sent.
type fakeQMPServer struct {
	ln       net.Listener
	received chan map[string]interface{}
}

func startFakeQMPServer(t *testing.T) *fakeQMPServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	s := &fakeQMPServer{ln: ln, received: make(chan map[string]interface{}, 8)}

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		conn.Write([]byte(`{"QMP": {"version": "stub"}}` + "\n"))

		r := bufio.NewReader(conn)
		for {
			line, err := r.ReadString('\n')
			if err != nil {
				return
			}
			var req map[string]interface{}
			if err := json.Unmarshal([]byte(line), &req); err != nil {
				continue
			}
			s.received <- req
			conn.Write([]byte(`{"return": {}}` + "\n"))
		}
	}()
	return s
}

func (s *fakeQMPServer) addr() string { return s.ln.Addr().String() }
func (s *fakeQMPServer) close()       { s.ln.Close() }

func TestDialPerformsHandshake(t *testing.T) {
	srv := startFakeQMPServer(t)
	defer srv.close()

	d, err := Dial(srv.addr())
	require.NoError(t, err)
	defer d.Close()

	select {
	case req := <-srv.received:
		require.Equal(t, "qmp_capabilities", req["execute"])
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for qmp_capabilities")
	}
}

func TestEvictFromMemorySelectsPresentIdlePages(t *testing.T) {
	srv := startFakeQMPServer(t)
	defer srv.close()

	d, err := Dial(srv.addr())
	require.NoError(t, err)
	defer d.Close()
	<-srv.received // drain the handshake request

	memory := &pagesampler.ProcessMemory{
		Segments: []pagesampler.SegmentResult{
			{
				AddrStart: 0x1000,
				Flags: []pagesampler.FlagWord{
					pagesampler.FlagWord(1 << pagesampler.PresentPageBit),                          // present, idle: candidate
					pagesampler.FlagWord(1<<pagesampler.PresentPageBit | 1<<pagesampler.ActivePageBit), // present, active: excluded
					0, // absent: excluded
				},
			},
		},
	}

	err = d.EvictFromMemory(memory, 2)
	require.NoError(t, err)

	select {
	case req := <-srv.received:
		require.Equal(t, "pageout_pages", req["execute"])
		args, ok := req["arguments"].(map[string]interface{})
		require.True(t, ok)
		pages, ok := args["pages"].([]interface{})
		require.True(t, ok)
		require.Len(t, pages, 2)
		for _, p := range pages {
			require.Equal(t, float64(0x1000), p)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for pageout_pages request")
	}
}

func TestEvictFromMemoryNoopWithoutCandidates(t *testing.T) {
	srv := startFakeQMPServer(t)
	defer srv.close()

	d, err := Dial(srv.addr())
	require.NoError(t, err)
	defer d.Close()
	<-srv.received

	memory := &pagesampler.ProcessMemory{
		Segments: []pagesampler.SegmentResult{
			{AddrStart: 0x1000, Flags: []pagesampler.FlagWord{0, 0}},
		},
	}
	require.NoError(t, d.EvictFromMemory(memory, 3))

	select {
	case req := <-srv.received:
		t.Fatalf("expected no request, got %v", req)
	case <-time.After(100 * time.Millisecond):
	}
}
