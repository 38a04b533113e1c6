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

// Package instrumentation wraps one sampling cycle in an opencensus trace
// span, optionally exported to a Jaeger agent, the way the teacher's own
// pkg/instrumentation wraps request handling.
package instrumentation

import (
	"context"

	"contrib.go.opencensus.io/exporter/jaeger"
	"go.opencensus.io/trace"

	"github.com/wssprobe/wssprobe/pkg/log"
)

// ServiceName identifies this binary's spans to the trace backend.
const ServiceName = "wssprobe"

var logger = log.Get("instrumentation")

var exporter *jaeger.Exporter

// SetupJaeger registers a Jaeger trace exporter against agentEndpoint
// (typically "localhost:6831") and samples every span. Calling it with
// an empty endpoint disables tracing; StopJaeger is then a no-op.
func SetupJaeger(agentEndpoint string) error {
	if agentEndpoint == "" {
		logger.Infof("Jaeger trace exporter disabled")
		return nil
	}
	exp, err := jaeger.NewExporter(jaeger.Options{
		AgentEndpoint: agentEndpoint,
		Process:       jaeger.Process{ServiceName: ServiceName},
		OnError:       func(err error) { logger.Errorf("jaeger error: %v", err) },
	})
	if err != nil {
		return err
	}
	exporter = exp
	trace.RegisterExporter(exporter)
	trace.ApplyConfig(trace.Config{DefaultSampler: trace.AlwaysSample()})
	logger.Infof("Jaeger trace exporter started, agent=%s", agentEndpoint)
	return nil
}

// StopJaeger unregisters the exporter set up by SetupJaeger, if any.
func StopJaeger() {
	if exporter == nil {
		return
	}
	trace.UnregisterExporter(exporter)
	exporter = nil
}

// StartSamplingCycle opens one span covering a prime->sleep->harvest-
// >compose cycle. Callers must invoke the returned function when the
// cycle completes.
func StartSamplingCycle(ctx context.Context, target string) (context.Context, func()) {
	ctx, span := trace.StartSpan(ctx, "sampling_cycle")
	span.AddAttributes(trace.StringAttribute("target", target))
	return ctx, span.End
}
