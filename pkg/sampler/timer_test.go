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
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

// fakeThreadList is a test double for ThreadList backed by a plain slice,
// replacing osfacade's /proc-backed, btree-cursor implementation.
type fakeThreadList struct {
	tids []int
	idx  int
}

func (f *fakeThreadList) Next() (int, bool) {
	if f.idx >= len(f.tids) {
		return 0, false
	}
	tid := f.tids[f.idx]
	f.idx++
	return tid, true
}
func (f *fakeThreadList) Rewind()   { f.idx = 0 }
func (f *fakeThreadList) Size() int { return len(f.tids) }

// fakeOS is a test double for OS that stops the TimerLoop the first time
// Sleep is called, so run() always executes exactly one tick.
type fakeOS struct {
	self       int
	threads    *fakeThreadList
	states     map[int]bool
	onSleep    func()
	sleepCalls int
}

func (f *fakeOS) NowNS() int64                    { return 0 }
func (f *fakeOS) ThreadID() int                   { return f.self }
func (f *fakeOS) ListThreads() ThreadList         { return f.threads }
func (f *fakeOS) SendSignal(int, int) bool        { return true }
func (f *fakeOS) InstallSignalHandler(int) error  { return nil }
func (f *fakeOS) ThreadState(tid int) (bool, error) {
	return f.states[tid], nil
}
func (f *fakeOS) Sleep(_ time.Duration, _ <-chan struct{}) {
	f.sleepCalls++
	if f.onSleep != nil {
		f.onSleep()
	}
}

// fakeFilterDisabled is a test double for ThreadFilter matching filter.AcceptAll.
type fakeFilterDisabled struct{}

func (fakeFilterDisabled) Enabled() bool   { return false }
func (fakeFilterDisabled) Size() int       { return 0 }
func (fakeFilterDisabled) Accept(int) bool { return true }

// fakeFilterModulo is a test double for ThreadFilter matching filter.Modulo.
type fakeFilterModulo struct {
	n, remainder, count int
}

func (f *fakeFilterModulo) Enabled() bool { return true }
func (f *fakeFilterModulo) Size() int     { return f.count }
func (f *fakeFilterModulo) Accept(tid int) bool {
	return tid%f.n == f.remainder
}

// fakeWalker records every tid it is asked to walk and always reports
// success.
type fakeWalker struct {
	walked []int
}

func (w *fakeWalker) walkStack(tid int) bool {
	w.walked = append(w.walked, tid)
	return true
}

func testLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l.WithField("test", true)
}

func oneTickLoop(os *fakeOS, filter ThreadFilter, walker *fakeWalker, cfg Config) *TimerLoop {
	loop := newTimerLoop(os, filter, walker, cfg, testLogger())
	os.onSleep = func() { loop.stop() }
	return loop
}

func TestTimerLoopSkipsSelf(t *testing.T) {
	os := &fakeOS{self: 100, threads: &fakeThreadList{tids: []int{100, 101, 102}}}
	walker := &fakeWalker{}
	loop := oneTickLoop(os, fakeFilterDisabled{}, walker, Config{Interval: time.Millisecond, SampleIdle: true})
	loop.run()

	for _, tid := range walker.walked {
		if tid == os.self {
			t.Errorf("walker was asked to sample the timer thread's own tid %d", tid)
		}
	}
	if len(walker.walked) != 2 {
		t.Errorf("walked %v, want exactly the 2 non-self tids", walker.walked)
	}
}

func TestTimerLoopFilterRejectsNonMatching(t *testing.T) {
	os := &fakeOS{self: 1, threads: &fakeThreadList{tids: []int{2, 3, 4, 5}}}
	walker := &fakeWalker{}
	filt := &fakeFilterModulo{n: 2, remainder: 0, count: 4}
	loop := oneTickLoop(os, filt, walker, Config{Interval: time.Millisecond, SampleIdle: true})
	loop.run()

	for _, tid := range walker.walked {
		if tid%2 != 0 {
			t.Errorf("walker sampled odd tid %d, filter should have rejected it", tid)
		}
	}
	if len(walker.walked) != 2 {
		t.Errorf("walked %v, want exactly the 2 even tids", walker.walked)
	}
}

func TestTimerLoopPauseSkipsSampling(t *testing.T) {
	os := &fakeOS{self: 1, threads: &fakeThreadList{tids: []int{2, 3}}}
	walker := &fakeWalker{}
	loop := oneTickLoop(os, fakeFilterDisabled{}, walker, Config{Interval: time.Millisecond, SampleIdle: true})
	loop.Pause()
	loop.run()

	if len(walker.walked) != 0 {
		t.Errorf("walked %v while paused, want none", walker.walked)
	}
	if os.sleepCalls != 1 {
		t.Errorf("sleepCalls = %d, want 1 (the paused-tick sleep)", os.sleepCalls)
	}
}

func TestTimerLoopNonIdleOnlySamplesRunningThreads(t *testing.T) {
	os := &fakeOS{
		self:    1,
		threads: &fakeThreadList{tids: []int{2, 3, 4}},
		states:  map[int]bool{2: true, 3: false, 4: true},
	}
	walker := &fakeWalker{}
	loop := oneTickLoop(os, fakeFilterDisabled{}, walker, Config{Interval: time.Millisecond, SampleIdle: false})
	loop.run()

	want := map[int]bool{2: true, 4: true}
	if len(walker.walked) != len(want) {
		t.Fatalf("walked %v, want tids %v", walker.walked, want)
	}
	for _, tid := range walker.walked {
		if !want[tid] {
			t.Errorf("walked unexpected tid %d", tid)
		}
	}
}

func TestTimerLoopThreadsPerTickCap(t *testing.T) {
	tids := make([]int, ThreadsPerTick*3)
	for i := range tids {
		tids[i] = i + 2
	}
	os := &fakeOS{self: 1, threads: &fakeThreadList{tids: tids}}
	walker := &fakeWalker{}
	loop := oneTickLoop(os, fakeFilterDisabled{}, walker, Config{Interval: time.Millisecond, SampleIdle: true})
	loop.run()

	if len(walker.walked) != ThreadsPerTick {
		t.Errorf("walked %d tids in one tick, want the ThreadsPerTick cap of %d", len(walker.walked), ThreadsPerTick)
	}
}
