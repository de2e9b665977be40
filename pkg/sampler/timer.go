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
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// stackWalker is the subset of *StackWalker the loop depends on, narrowed
// to an interface so tests can drive TimerLoop without a real handshake
// slot.
type stackWalker interface {
	walkStack(tid int) bool
}

// TimerLoop is the single dedicated OS thread that paces iterations,
// enumerates candidate threads, and drives StackWalker, per spec.md §4.4.
// It must run with runtime.LockOSThread held, both so its own tid is
// stable for the "tid == self" skip and so it is never itself the target
// of a rescheduled goroutine's signal.
type TimerLoop struct {
	os     OS
	filter ThreadFilter
	walker stackWalker
	cfg    Config
	log    *logrus.Entry

	running int32 // atomic bool; cleared by Lifecycle.Stop
	enabled int32 // atomic bool; toggled by Pause/Resume
	self    int
	threads ThreadList

	wake     chan struct{} // closed by stop() to cut short an in-flight Sleep
	wakeOnce sync.Once
}

func newTimerLoop(os OS, filter ThreadFilter, walker stackWalker, cfg Config, log *logrus.Entry) *TimerLoop {
	return &TimerLoop{
		os:      os,
		filter:  filter,
		walker:  walker,
		cfg:     cfg,
		log:     log,
		running: 1,
		enabled: 1,
		threads: os.ListThreads(),
		wake:    make(chan struct{}),
	}
}

// stop requests the loop exit at the next loop head, and closes wake so a
// Sleep blocked on the current tick's interval returns immediately instead
// of running out its full duration. It is safe to call from any goroutine
// and more than once.
func (t *TimerLoop) stop() {
	atomic.StoreInt32(&t.running, 0)
	t.wakeOnce.Do(func() { close(t.wake) })
}

func (t *TimerLoop) isRunning() bool {
	return atomic.LoadInt32(&t.running) != 0
}

// Pause suspends sampling without tearing down the handshake slot or
// signal handler: the loop keeps sleeping for one plain Interval per tick
// and never touches any target thread until Resume is called.
func (t *TimerLoop) Pause() { atomic.StoreInt32(&t.enabled, 0) }

// Resume reverses Pause.
func (t *TimerLoop) Resume() { atomic.StoreInt32(&t.enabled, 1) }

func (t *TimerLoop) isEnabled() bool { return atomic.LoadInt32(&t.enabled) != 0 }

// run implements spec.md §4.4's pseudocode verbatim. It returns once
// isRunning() observes false, which happens at the next loop head after
// Lifecycle.Stop calls t.stop(); that same call closes t.wake, so a Sleep
// already in flight for the current tick returns immediately rather than
// running out its full interval.
func (t *TimerLoop) run() {
	t.self = t.os.ThreadID()
	nextCycle := t.os.NowNS()

	for t.isRunning() {
		if !t.isEnabled() {
			t.os.Sleep(t.cfg.Interval, t.wake)
			continue
		}
		if t.cfg.SampleIdle {
			est := t.threads.Size()
			if t.filter.Enabled() {
				est = t.filter.Size()
			}
			nextCycle += adjustInterval(t.cfg.Interval, est).Nanoseconds()
		}

		count := 0
		for count < ThreadsPerTick {
			tid, ok := t.threads.Next()
			if !ok {
				t.threads.Rewind()
				break
			}
			if tid == t.self {
				continue
			}
			if t.filter.Enabled() && !t.filter.Accept(tid) {
				continue
			}

			sample := t.cfg.SampleIdle
			if !sample {
				running, err := t.os.ThreadState(tid)
				if err != nil {
					t.log.WithError(err).WithField("tid", tid).Debug("thread state query failed")
					continue
				}
				sample = running
			}
			if sample && t.walker.walkStack(tid) {
				count++
			}
		}

		if t.cfg.SampleIdle {
			slack := time.Duration(nextCycle-t.os.NowNS()) * time.Nanosecond
			if slack > MinInterval {
				t.os.Sleep(slack, t.wake)
			} else {
				nextCycle = t.os.NowNS() + MinInterval.Nanoseconds()
				t.os.Sleep(MinInterval, t.wake)
			}
		} else {
			t.os.Sleep(t.cfg.Interval, t.wake)
		}
	}
}
