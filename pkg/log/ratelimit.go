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
	"fmt"
	"sync"
	"time"

	goxrate "golang.org/x/time/rate"
)

// Rate specifies the maximum per-message logging rate.
type Rate struct {
	// Limit is the steady-state rate at which a given message may repeat.
	Limit goxrate.Limit
	// Burst is the number of messages let through before limiting kicks in.
	Burst int
	// Window bounds how many distinct messages are tracked at once.
	Window int
}

// ratelimited wraps a Logger, suppressing repeats of the same formatted
// message beyond its configured Rate. Every sampling cycle re-walks
// /proc/<pid>/maps and /proc/iomem from scratch, so a persistently
// unparseable line would otherwise log once per cycle forever.
type ratelimited struct {
	Logger
	sync.Mutex
	rate   Rate
	window []string
	limits map[string]*goxrate.Limiter
}

const (
	// DefaultWindow is the default message window size for rate limiting.
	DefaultWindow = 256
	// MinimumWindow is the smallest message window size for rate limiting.
	MinimumWindow = 32
)

// Every defines a rate limit for the given interval.
func Every(interval time.Duration) goxrate.Limit {
	return goxrate.Every(interval)
}

// Interval returns a Rate allowing one occurrence of a message per interval.
func Interval(interval time.Duration) Rate {
	return Rate{Limit: Every(interval), Burst: 1}
}

// RateLimit returns a rate-limited version of l: Debugf/Infof/Warnf/Errorf
// calls that repeat an identical formatted message faster than rate are
// dropped. Fatalf is left unwrapped since it terminates the process.
func RateLimit(l Logger, rate Rate) Logger {
	switch {
	case rate.Window == 0:
		rate.Window = DefaultWindow
	case rate.Window < MinimumWindow:
		rate.Window = MinimumWindow
	}
	if rate.Burst < 1 {
		rate.Burst = 1
	}
	return &ratelimited{
		Logger: l,
		rate:   rate,
		window: make([]string, 0, rate.Window),
		limits: make(map[string]*goxrate.Limiter),
	}
}

func (rl *ratelimited) Debugf(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if limit := rl.getMessageLimit(msg); limit.Allow() {
		rl.Logger.Debugf("%s", msg)
	}
}

func (rl *ratelimited) Infof(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if limit := rl.getMessageLimit(msg); limit.Allow() {
		rl.Logger.Infof("%s", msg)
	}
}

func (rl *ratelimited) Warnf(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if limit := rl.getMessageLimit(msg); limit.Allow() {
		rl.Logger.Warnf("%s", msg)
	}
}

func (rl *ratelimited) Errorf(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if limit := rl.getMessageLimit(msg); limit.Allow() {
		rl.Logger.Errorf("%s", msg)
	}
}

// getMessageLimit returns msg's limiter, creating one and evicting the
// oldest tracked message if the window is full.
func (rl *ratelimited) getMessageLimit(msg string) *goxrate.Limiter {
	rl.Lock()
	defer rl.Unlock()

	limit, ok := rl.limits[msg]
	if ok {
		return limit
	}

	limit = goxrate.NewLimiter(rl.rate.Limit, rl.rate.Burst)
	if len(rl.limits) == rl.rate.Window {
		delete(rl.limits, rl.window[0])
		rl.window = rl.window[1:]
	}
	rl.window = append(rl.window, msg)
	rl.limits[msg] = limit

	return limit
}
