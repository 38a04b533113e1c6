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

package main

import (
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/pkg/errors"
)

// Config is the typed shape of the optional --config YAML file. A
// command-line flag overrides the matching field when the flag has a
// non-zero value; --sleep and --evict-addr override it whenever they are
// given. Boolean options are on when either the flag or the file turns
// them on, and EC2_PUBLIC_REGION takes precedence over the file's region.
type Config struct {
	Pids            []int  `yaml:"pids"`
	Region          string `yaml:"region"`
	Sleep           string `yaml:"sleep"`
	InspectRAM      bool   `yaml:"inspect_ram"`
	Pageout         int    `yaml:"pageout"`
	S3Bucket        string `yaml:"s3"`
	TraceAgent      string `yaml:"trace_agent"`
	PanicOnMemFault bool   `yaml:"panic_on_mem_fault"`
	EvictAddr       string `yaml:"evict_addr"`
	MetricsAddr     string `yaml:"metrics_addr"`
}

func loadConfigFile(path string) (Config, error) {
	var cfg Config
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrapf(err, "reading %s", path)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "parsing %s", path)
	}
	return cfg, nil
}

// pidList is a flag.Value that accumulates one int per --pid flag
// occurrence, implementing the "repeatable" CLI surface from spec.md §6.
type pidList []int

func (p *pidList) String() string {
	if p == nil {
		return ""
	}
	strs := make([]string, len(*p))
	for i, v := range *p {
		strs[i] = strconv.Itoa(v)
	}
	return strings.Join(strs, ",")
}

func (p *pidList) Set(value string) error {
	v, err := strconv.Atoi(value)
	if err != nil {
		return errors.Wrapf(err, "invalid --pid value %q", value)
	}
	*p = append(*p, v)
	return nil
}

// resolveRegion implements spec.md §6: EC2_PUBLIC_REGION supplies the
// region when --region is absent.
func resolveRegion(flagRegion string) string {
	if flagRegion != "" {
		return flagRegion
	}
	return os.Getenv("EC2_PUBLIC_REGION")
}

func parseSleep(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
