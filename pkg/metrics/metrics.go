// Package metrics holds the registry of Prometheus collectors wssprobe
// exposes on its /metrics endpoint, one per sampling-target-keyed
// category set (see pkg/summarize's collector, the sole registrant).
package metrics

import (
	"fmt"
	"sort"

	"github.com/prometheus/client_golang/prometheus"
)

var builtInCollectors = make(map[string]InitCollector)

// InitCollector builds one named collector's prometheus.Collector on
// demand, so registration (at package init time, before flags are
// parsed) and instantiation (once metrics-addr is known to be wanted)
// stay decoupled.
type InitCollector func() (prometheus.Collector, error)

// RegisterCollector adds a named collector to the registry. Called from
// the init() of whichever package owns a collector, e.g.
// pkg/summarize's page-count-by-target gauge.
func RegisterCollector(name string, init InitCollector) error {
	if _, found := builtInCollectors[name]; found {
		return fmt.Errorf("collector %s already registered", name)
	}

	builtInCollectors[name] = init

	return nil
}

// RegisteredCollectorNames returns the names passed to RegisterCollector,
// sorted, for the driver to log at startup.
func RegisteredCollectorNames() []string {
	names := make([]string, 0, len(builtInCollectors))
	for name := range builtInCollectors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewMetricGatherer instantiates every registered collector into a fresh
// registry. Called once, when the driver starts serving /metrics.
func NewMetricGatherer() (prometheus.Gatherer, error) {
	reg := prometheus.NewPedanticRegistry()

	collectors := make([]prometheus.Collector, 0, len(builtInCollectors))
	for _, cb := range builtInCollectors {
		c, err := cb()
		if err != nil {
			return nil, err
		}
		collectors = append(collectors, c)
	}

	reg.MustRegister(collectors...)

	return reg, nil
}
