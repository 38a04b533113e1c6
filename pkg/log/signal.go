// Copyright 2019-2020 Intel Corporation. All Rights Reserved.
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

package log

import (
	"os"
	"os/signal"
)

var toggleSignals chan os.Signal

// SetupDebugToggleSignal arranges for sig (typically SIGUSR1) to flip
// every source's debug output on/off, for attaching to a long-running
// sampling loop without restarting it.
func SetupDebugToggleSignal(sig os.Signal) {
	ClearDebugToggleSignal()

	toggleSignals = make(chan os.Signal, 1)
	signal.Notify(toggleSignals, sig)

	go func(ch <-chan os.Signal) {
		forced := false
		for range ch {
			forced = !forced
			SetDebug("", forced)
			Default().Warnf("forced full debugging is now %v", forced)
		}
	}(toggleSignals)
}

// ClearDebugToggleSignal removes any signal handler installed by
// SetupDebugToggleSignal.
func ClearDebugToggleSignal() {
	if toggleSignals != nil {
		signal.Stop(toggleSignals)
		close(toggleSignals)
		toggleSignals = nil
	}
}
