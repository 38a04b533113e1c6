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

// Command wssprobe drives the working-set page sampler in a loop: for
// every configured target (one or more PIDs, or the whole host when
// none are given) it primes the kernel idle bitmap, sleeps for the
// observation window, harvests and composes page flag words, then hands
// the result to the summarizer and, if requested, the eviction
// dispatcher.
package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/common/expfmt"

	"github.com/wssprobe/wssprobe/pkg/evict"
	"github.com/wssprobe/wssprobe/pkg/instrumentation"
	"github.com/wssprobe/wssprobe/pkg/log"
	"github.com/wssprobe/wssprobe/pkg/metrics"
	_ "github.com/wssprobe/wssprobe/pkg/metrics/register"
	"github.com/wssprobe/wssprobe/pkg/pagesampler"
	"github.com/wssprobe/wssprobe/pkg/pidfile"
	"github.com/wssprobe/wssprobe/pkg/summarize"
	_ "github.com/wssprobe/wssprobe/pkg/version"
)

var logger = log.Get("driver")

func exit(format string, a ...interface{}) {
	fmt.Fprintf(os.Stderr, "wssprobe: "+format+"\n", a...)
	os.Exit(1)
}

func main() {
	var pids pidList
	flag.Var(&pids, "pid", "PID to sample (repeatable); omit to sample the whole host")
	optRegion := flag.String("region", "", "S3 region; defaults to $EC2_PUBLIC_REGION")
	optSleep := flag.Duration("sleep", 10*time.Second, "observation window between priming and harvesting the idle bitmap")
	optInspectRAM := flag.Bool("inspect-ram", false, "stream page contents to detect all-zero pages")
	optPageout := flag.Int("pageout", 0, "nominate this many idle resident pages per segment for hypervisor eviction each cycle")
	optS3 := flag.String("s3", "", "S3 bucket to upload each cycle's CSV to")
	optConfig := flag.String("config", "", "optional YAML config file; flags override its values")
	optDebug := flag.Bool("debug", false, "enable debug logging")
	optTraceAgent := flag.String("trace-agent", "", "Jaeger agent endpoint for per-cycle trace spans")
	optPanicOnMemFault := flag.Bool("panic-on-mem-fault", false, "panic (instead of skip) when a /dev/mem read fails during host content inspection")
	optEvictAddr := flag.String("evict-addr", "127.0.0.1:4444", "hypervisor QMP control channel address")
	optMetricsAddr := flag.String("metrics-addr", "", "address to serve Prometheus metrics on (empty disables)")
	flag.Parse()

	var cfg Config
	if *optConfig != "" {
		var err error
		cfg, err = loadConfigFile(*optConfig)
		if err != nil {
			exit("%s", err)
		}
	}

	log.SetDebug("", *optDebug)
	log.SetupDebugToggleSignal(syscall.SIGUSR1)

	pidSet := []int(pids)
	if len(pidSet) == 0 {
		pidSet = cfg.Pids
	}
	region := resolveRegion(*optRegion)
	if region == "" {
		region = cfg.Region
	}
	sleep := *optSleep
	if !flagPassed("sleep") {
		sleep = parseSleep(cfg.Sleep, sleep)
	}
	inspectRAM := *optInspectRAM || cfg.InspectRAM
	pageout := *optPageout
	if pageout == 0 {
		pageout = cfg.Pageout
	}
	s3Bucket := *optS3
	if s3Bucket == "" {
		s3Bucket = cfg.S3Bucket
	}
	traceAgent := *optTraceAgent
	if traceAgent == "" {
		traceAgent = cfg.TraceAgent
	}
	evictAddr := *optEvictAddr
	if cfg.EvictAddr != "" && !flagPassed("evict-addr") {
		evictAddr = cfg.EvictAddr
	}
	metricsAddr := *optMetricsAddr
	if metricsAddr == "" {
		metricsAddr = cfg.MetricsAddr
	}
	pagesampler.PanicOnMemFault = *optPanicOnMemFault || cfg.PanicOnMemFault

	pidfile.SetPath(pidfile.PathForTarget(targetLabel(pidSet)))
	if err := pidfile.Write(); err != nil {
		exit("%s", err)
	}
	defer pidfile.Remove()

	if traceAgent != "" {
		if err := instrumentation.SetupJaeger(traceAgent); err != nil {
			exit("%s", err)
		}
		defer instrumentation.StopJaeger()
	}

	if metricsAddr != "" {
		logger.Infof("metrics collectors registered: %v", metrics.RegisteredCollectorNames())
		go serveMetrics(metricsAddr)
	}

	logger.Infof("starting: targets=%v sleep=%s inspect-ram=%v pageout=%d", pidSet, sleep, inspectRAM, pageout)

	if len(pidSet) > 0 {
		runProcessLoop(pidSet, sleep, inspectRAM, pageout, s3Bucket, region, evictAddr)
	} else {
		runHostLoop(sleep, inspectRAM, pageout, evictAddr)
	}
}

func runProcessLoop(pids []int, sleep time.Duration, inspectRAM bool, pageout int, s3Bucket, region, evictAddr string) {
	for {
		for _, pid := range pids {
			target := strconv.Itoa(pid)
			_, done := instrumentation.StartSamplingCycle(context.Background(), target)
			memory, err := pagesampler.SampleProcess(pid, sleep, inspectRAM)
			done()
			if err != nil {
				logger.Errorf("pid %d: sampling failed: %s", pid, err)
				continue
			}
			runCycleCommon(target, pid, memory, pageout, s3Bucket, region, evictAddr, true)
		}
	}
}

func runHostLoop(sleep time.Duration, inspectRAM bool, pageout int, evictAddr string) {
	for {
		_, done := instrumentation.StartSamplingCycle(context.Background(), "host")
		memory, err := pagesampler.SampleHost(sleep, inspectRAM)
		done()
		if err != nil {
			logger.Errorf("host sampling failed: %s", err)
			continue
		}
		runCycleCommon("host", 0, memory, pageout, "", "", evictAddr, false)
	}
}

func runCycleCommon(target string, pid int, memory *pagesampler.ProcessMemory, pageout int, s3Bucket, region, evictAddr string, isProcess bool) {
	counts := summarize.Count(memory)
	summarize.LogPercentages(counts)
	summarize.UpdateMetrics(target, counts)

	var enrich summarize.ProcessEnrichment
	if isProcess {
		var err error
		enrich, err = summarize.EnrichProcess(pid, memory)
		if err != nil {
			logger.Warnf("pid %d: enrichment failed: %s", pid, err)
		}
		if err := summarize.AppendCSV(pid, memory, counts, enrich); err != nil {
			logger.Errorf("pid %d: writing CSV failed: %s", pid, err)
		}
		if s3Bucket != "" {
			if err := summarize.UploadCSV(pid, s3Bucket, region); err != nil {
				logger.Errorf("pid %d: S3 upload failed: %s", pid, err)
			}
		}
	}

	if pageout > 0 {
		dispatchEviction(memory, pageout, evictAddr)
	}
}

func dispatchEviction(memory *pagesampler.ProcessMemory, pageout int, evictAddr string) {
	d, err := evict.Dial(evictAddr)
	if err != nil {
		logger.Warnf("eviction dispatch skipped: %s", err)
		return
	}
	defer d.Close()
	if err := d.EvictFromMemory(memory, pageout); err != nil {
		logger.Warnf("eviction dispatch failed: %s", err)
	}
}

func serveMetrics(addr string) {
	gatherer, err := metrics.NewMetricGatherer()
	if err != nil {
		logger.Errorf("metrics disabled: %s", err)
		return
	}
	http.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
		mfs, err := gatherer.Gather()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		buf := &bytes.Buffer{}
		for _, mf := range mfs {
			if _, err := expfmt.MetricFamilyToText(buf, mf); err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
		}
		w.Write(buf.Bytes())
	})
	logger.Infof("serving metrics on %s/metrics", addr)
	if err := http.ListenAndServe(addr, nil); err != nil {
		logger.Errorf("metrics server stopped: %s", err)
	}
}

// targetLabel names this instance's sampling target for the pidfile
// path: "host" for a whole-host run, or the dash-joined PID list for a
// process-targeted run, so concurrent wssprobe instances against
// different targets don't lock the same pidfile.
func targetLabel(pids []int) string {
	if len(pids) == 0 {
		return "host"
	}
	parts := make([]string, len(pids))
	for i, pid := range pids {
		parts[i] = strconv.Itoa(pid)
	}
	return strings.Join(parts, "-")
}

func flagPassed(name string) bool {
	found := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}
