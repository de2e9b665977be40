// Copyright 2026 The Wallprof Authors.
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
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/google/subcommands"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/google/wallprof/pkg/sampler"
	"github.com/google/wallprof/pkg/sampler/filter"
	"github.com/google/wallprof/pkg/sampler/oracle"
	"github.com/google/wallprof/pkg/sampler/osfacade"
	"github.com/google/wallprof/pkg/sampler/recorder"
	"github.com/google/wallprof/pkg/sampler/runtimeenv"
)

// fileConfig is the optional on-disk shape loaded via -config, mirroring
// runsc's pattern of letting flags override a TOML file rather than the
// other way around.
type fileConfig struct {
	WallIntervalMS int64  `toml:"wall_interval_ms"`
	DefaultMS      int64  `toml:"default_interval_ms"`
	EventName      string `toml:"event_name"`
	Workers        int    `toml:"workers"`
	SleepyWorkers  int    `toml:"sleepy_workers"`
	OutputPath     string `toml:"output_path"`
	EvenOnly       bool   `toml:"even_tids_only"`
	RunSeconds     int64  `toml:"run_seconds"`
}

// runCmd wires Args through ResolveConfig into a live Engine against a
// handful of synthetic runtimeenv.Worker goroutines, then prints whatever
// the Recorder collected. It is the "external collaborator" demo this
// module's core package deliberately has no opinion on (spec.md §1).
type runCmd struct {
	configPath     string
	wallIntervalMS int64
	hasWall        bool
	defaultMS      int64
	eventName      string
	workers        int
	sleepyWorkers  int
	outputPath     string
	evenOnly       bool
	runSeconds     int64
}

func (*runCmd) Name() string     { return "run" }
func (*runCmd) Synopsis() string { return "run the wall-clock sampler against synthetic workers" }
func (*runCmd) Usage() string {
	return "run [-config path] [-wall-interval-ms n] [-workers n] [-sleepy-workers n] [-output path] [-even-only] [-run-seconds n]\n"
}

func (r *runCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&r.configPath, "config", "", "optional TOML config file")
	f.Int64Var(&r.wallIntervalMS, "wall-interval-ms", -1, "wall interval override in milliseconds; negative means unset")
	f.Int64Var(&r.defaultMS, "default-interval-ms", 0, "default interval in milliseconds when wall interval is unset")
	f.StringVar(&r.eventName, "event", "", "event name; \"wall\" enables idle sampling")
	f.IntVar(&r.workers, "workers", 4, "number of spinning (RUNNING) workers")
	f.IntVar(&r.sleepyWorkers, "sleepy-workers", 2, "number of sleeping workers")
	f.StringVar(&r.outputPath, "output", "", "newline-delimited JSON output file; empty means in-memory only")
	f.BoolVar(&r.evenOnly, "even-only", false, "sample only even tids")
	f.Int64Var(&r.runSeconds, "run-seconds", 2, "how long to run before stopping")
}

func (r *runCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if r.configPath != "" {
		var fc fileConfig
		if _, err := toml.DecodeFile(r.configPath, &fc); err != nil {
			logrus.WithError(err).Error("loading config file")
			return subcommands.ExitFailure
		}
		// Flags given explicitly on the command line win over the file:
		// remember their values and set them again once the file is applied.
		explicit := map[string]string{}
		f.Visit(func(fl *flag.Flag) { explicit[fl.Name] = fl.Value.String() })
		r.applyFileConfig(fc)
		for name, v := range explicit {
			f.Set(name, v)
		}
		if _, ok := explicit["wall-interval-ms"]; ok {
			r.hasWall = false
		}
	}

	args := sampler.Args{
		DefaultInterval: time.Duration(r.defaultMS) * time.Millisecond,
		EventName:       r.eventName,
	}
	if r.hasWall || r.wallIntervalMS >= 0 {
		args.HasWallInterval = true
		args.WallInterval = time.Duration(r.wallIntervalMS) * time.Millisecond
	}

	osFacade := osfacade.NewLinuxOS()

	libOracle, err := oracle.Load()
	if err != nil {
		logrus.WithError(err).Error("loading library oracle")
		return subcommands.ExitFailure
	}

	var rec sampler.Recorder
	var fileRec *recorder.FileRecorder
	if r.outputPath != "" {
		fr, err := recorder.NewFileRecorder(r.outputPath)
		if err != nil {
			logrus.WithError(err).Error("opening output file")
			return subcommands.ExitFailure
		}
		fileRec = fr
		rec = fr
	} else {
		rec = recorder.NewMemoryRecorder(4096)
	}
	if fileRec != nil {
		defer fileRec.Close()
	}

	var filt sampler.ThreadFilter = filter.AcceptAll{}
	if r.evenOnly {
		filt = filter.NewModulo(2, 0, r.workers+r.sleepyWorkers)
	}

	workers := make([]*runtimeenv.Worker, 0, r.workers+r.sleepyWorkers)
	for i := 0; i < r.workers; i++ {
		workers = append(workers, runtimeenv.Start(fmt.Sprintf("spin-%d", i), spinLoop))
	}
	for i := 0; i < r.sleepyWorkers; i++ {
		workers = append(workers, runtimeenv.Start(fmt.Sprintf("sleep-%d", i), sleepLoop))
	}
	defer func() {
		for _, w := range workers {
			w.Stop()
		}
	}()

	eng, err := sampler.Start(args, osFacade, rec, filt, libOracle, logrus.StandardLogger())
	if err != nil {
		logrus.WithError(err).Error("starting sampler")
		return subcommands.ExitFailure
	}

	time.Sleep(time.Duration(r.runSeconds) * time.Second)

	if err := eng.Stop(); err != nil {
		logrus.WithError(err).Error("stopping sampler")
		return subcommands.ExitFailure
	}

	if mem, ok := rec.(*recorder.MemoryRecorder); ok {
		for _, s := range mem.Snapshot() {
			fmt.Printf("sample=%d tid=%d state=%s interval=%s\n", s.SampleID, s.TID, s.ThreadState, time.Duration(s.IntervalNS))
		}
	}
	return subcommands.ExitSuccess
}

func (r *runCmd) applyFileConfig(fc fileConfig) {
	if fc.WallIntervalMS > 0 {
		r.wallIntervalMS = fc.WallIntervalMS
		r.hasWall = true
	}
	if fc.DefaultMS > 0 {
		r.defaultMS = fc.DefaultMS
	}
	if fc.EventName != "" {
		r.eventName = fc.EventName
	}
	if fc.Workers > 0 {
		r.workers = fc.Workers
	}
	if fc.SleepyWorkers > 0 {
		r.sleepyWorkers = fc.SleepyWorkers
	}
	if fc.OutputPath != "" {
		r.outputPath = fc.OutputPath
	}
	if fc.RunSeconds > 0 {
		r.runSeconds = fc.RunSeconds
	}
	r.evenOnly = r.evenOnly || fc.EvenOnly
}

// spinLoop busy-spins until stop closes, producing RUNNING samples.
func spinLoop(stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		default:
		}
	}
}

// sleepLoop blocks in a real syscall until stop closes, producing SLEEPING
// samples classified via the interrupted-syscall path.
func sleepLoop(stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		default:
			unix.Nanosleep(&unix.Timespec{Sec: 0, Nsec: 50_000_000}, nil)
		}
	}
}
