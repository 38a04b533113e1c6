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
	"time"

	pkglog "github.com/wssprobe/wssprobe/pkg/log"
)

// log is rate-limited: the driver's outer loop re-enumerates
// /proc/<pid>/maps and /proc/iomem every cycle forever, so a single
// persistently unparseable line would otherwise warn once per cycle
// indefinitely.
var log = pkglog.RateLimit(pkglog.Get("pagesampler"), pkglog.Interval(time.Minute))
