// Package register pulls in every package that registers a Prometheus
// collector via pkg/metrics.RegisterCollector, so importing it for side
// effect is enough to populate the gatherer.
package register

import (
	// Pull in the page-category collector.
	_ "github.com/wssprobe/wssprobe/pkg/summarize"
)
