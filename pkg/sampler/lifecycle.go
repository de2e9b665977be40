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

//go:build linux

package sampler

import (
	"context"
	"runtime"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// startupGrace bounds how long Start waits for the timer goroutine to
// report its OS thread id before declaring a StartupError.
const startupGrace = 2 * time.Second

// Engine is the running instance produced by Start. There is exactly one
// HandshakeSlot per process regardless of how many Engines exist
// (invariant 1), so callers should not run two Engines concurrently
// against the same process.
type Engine struct {
	cfg   Config
	os    OS
	timer *TimerLoop
	group *errgroup.Group
	tid   int
	log   *logrus.Entry
}

// Start implements spec.md §4.5: resolves the effective configuration,
// installs the sampling signal handler, and spawns the dedicated timer
// thread. osFacade, rec, filt, and oracle are the external collaborators
// from spec.md §6; passing them in rather than constructing platform
// defaults here keeps this package free of a dependency on
// pkg/sampler/osfacade.
func Start(args Args, osFacade OS, rec Recorder, filt ThreadFilter, oracle LibraryOracle, log *logrus.Logger) (*Engine, error) {
	cfg, err := ResolveConfig(args)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	entry := log.WithField("component", "wallprof")

	if err := osFacade.InstallSignalHandler(SampleSignal()); err != nil {
		return nil, &StartupError{Reason: "installing signal handler", Err: err}
	}

	classifier := NewThreadStateClassifier(oracle)
	walker := newStackWalker(osFacade, classifier, rec, cfg, entry)
	timer := newTimerLoop(osFacade, filt, walker, cfg, entry)

	eng := &Engine{cfg: cfg, os: osFacade, timer: timer, log: entry}

	g, _ := errgroup.WithContext(context.Background())
	tidReady := make(chan int, 1)
	g.Go(func() error {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		tidReady <- osFacade.ThreadID()
		timer.run()
		return nil
	})
	eng.group = g

	select {
	case tid := <-tidReady:
		eng.tid = tid
	case <-time.After(startupGrace):
		timer.stop()
		return nil, &StartupError{Reason: "timer thread did not report readiness in time"}
	}

	entry.WithField("interval", cfg.Interval).WithField("sample_idle", cfg.SampleIdle).Info("wall-clock sampler started")
	return eng, nil
}

// Stop implements spec.md §4.5: flips running to false and closes the
// timer loop's wake channel so it observes the change promptly instead of
// waiting out its current sleep, joins it, defensively abandons the
// handshake slot, and reverts the sampling signal to SIG_DFL.
func (e *Engine) Stop() error {
	e.timer.stop()
	err := e.group.Wait()
	newHandshakeSlot().abandon()
	if rerr := RestoreDefaultSignalHandler(SampleSignal()); rerr != nil && err == nil {
		err = rerr
	}
	e.log.Info("wall-clock sampler stopped")
	return err
}

// Pause suspends sampling without tearing down the engine; Resume reverses
// it. Both are safe to call from any goroutine.
func (e *Engine) Pause()  { e.timer.Pause() }
func (e *Engine) Resume() { e.timer.Resume() }
