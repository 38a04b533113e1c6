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
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/wssprobe/wssprobe/pkg/metrics"
)

// Prometheus metric descriptor indices, following the teacher's
// pkg/procstats/collector.go layout.
const (
	pageCountDesc = iota
	numDescriptors
)

var descriptors = [numDescriptors]*prometheus.Desc{
	pageCountDesc: prometheus.NewDesc(
		"wssprobe_pages",
		"Page count for a sampling target, broken down by category.",
		[]string{"target", "category"}, nil,
	),
}

var (
	snapshotMu sync.RWMutex
	snapshots  = map[string]Counts{}
)

// UpdateMetrics records the latest Counts for target so the next
// Prometheus scrape reflects it. Called once per sampling cycle, after
// Count has tallied the cycle's ProcessMemory.
func UpdateMetrics(target string, c Counts) {
	snapshotMu.Lock()
	defer snapshotMu.Unlock()
	snapshots[target] = c
}

type collector struct{}

// NewCollector creates the Prometheus collector for page-category
// counts, registered into the shared gatherer by this package's init.
func NewCollector() (prometheus.Collector, error) {
	return &collector{}, nil
}

func (c *collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range descriptors {
		ch <- d
	}
}

func (c *collector) Collect(ch chan<- prometheus.Metric) {
	snapshotMu.RLock()
	defer snapshotMu.RUnlock()
	for target, counts := range snapshots {
		for category, val := range map[string]uint64{
			"total":   counts.Total,
			"lru":     counts.LRU,
			"zero":    counts.Zero,
			"active":  counts.Active,
			"present": counts.Present,
		} {
			ch <- prometheus.MustNewConstMetric(
				descriptors[pageCountDesc],
				prometheus.GaugeValue,
				float64(val),
				target, category,
			)
		}
	}
}

func init() {
	if err := metrics.RegisterCollector("wssprobe", NewCollector); err != nil {
		logger.Errorf("failed to register page-count collector: %v", err)
	}
}
