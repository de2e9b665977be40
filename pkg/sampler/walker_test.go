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
	"testing"
	"time"

	"golang.org/x/time/rate"
)

func noopLimiter() *rate.Limiter { return rate.NewLimiter(rate.Inf, 1) }

// fakeHandshake is a test double for handshake that never talks to the
// cgo singleton: contextReady decides whether the target thread "responds"
// (ready() is true and context() returns ctx) or never publishes.
type fakeHandshake struct {
	armedTID     int
	armCount     int
	contextReady bool
	ctx          *CapturedContext
	released     bool
	abandoned    bool
}

func (f *fakeHandshake) arm(tid int) uint64 {
	f.armedTID = tid
	f.armCount++
	return uint64(f.armCount)
}
func (f *fakeHandshake) ready() bool { return f.contextReady }
func (f *fakeHandshake) context() *CapturedContext {
	if !f.contextReady {
		return nil
	}
	return f.ctx
}
func (f *fakeHandshake) release()  { f.released = true }
func (f *fakeHandshake) abandon()  { f.abandoned = true }

// fakeOSForWalker is a minimal OS double: only SendSignal matters to
// StackWalker.
type fakeOSForWalker struct {
	signalResult bool
	signaled     []int
}

func (f *fakeOSForWalker) NowNS() int64                  { return 0 }
func (f *fakeOSForWalker) Sleep(time.Duration, <-chan struct{}) {}
func (f *fakeOSForWalker) ThreadID() int                 { return 0 }
func (f *fakeOSForWalker) ListThreads() ThreadList { return nil }
func (f *fakeOSForWalker) ThreadState(int) (bool, error) { return true, nil }
func (f *fakeOSForWalker) SendSignal(tid int, _ int) bool {
	f.signaled = append(f.signaled, tid)
	return f.signalResult
}
func (f *fakeOSForWalker) InstallSignalHandler(int) error { return nil }

// fakeRecorder counts RecordSample calls and can be made to panic or fail.
type fakeRecorder struct {
	calls    int
	panicOn  bool
	failWith error
}

func (r *fakeRecorder) RecordSample(ctx *CapturedContext, interval time.Duration, kind SampleKind, event ExecutionEvent, runtimeEnv uintptr) (int64, error) {
	r.calls++
	if r.panicOn {
		panic("recorder exploded")
	}
	if r.failWith != nil {
		return 0, r.failWith
	}
	return int64(r.calls), nil
}

func newTestWalker(os OS, slot handshake, rec Recorder, cfg Config) *StackWalker {
	return &StackWalker{
		os:         os,
		slot:       slot,
		classifier: NewThreadStateClassifier(&fakeOracle{}),
		recorder:   rec,
		cfg:        cfg,
		log:        testLogger(),
		limiter:    noopLimiter(),
	}
}

func TestWalkStackAbandonsWhenSignalDeliveryFails(t *testing.T) {
	os := &fakeOSForWalker{signalResult: false}
	slot := &fakeHandshake{}
	rec := &fakeRecorder{}
	w := newTestWalker(os, slot, rec, Config{Interval: time.Millisecond})

	if w.walkStack(42) {
		t.Error("walkStack() = true, want false when SendSignal fails")
	}
	if !slot.abandoned {
		t.Error("slot was not abandoned after a failed signal delivery")
	}
	if rec.calls != 0 {
		t.Errorf("recorder was called %d times, want 0", rec.calls)
	}
}

func TestWalkStackAbandonsOnHandshakeTimeout(t *testing.T) {
	os := &fakeOSForWalker{signalResult: true}
	slot := &fakeHandshake{contextReady: false}
	rec := &fakeRecorder{}
	w := newTestWalker(os, slot, rec, Config{Interval: time.Millisecond})

	if w.walkStack(42) {
		t.Error("walkStack() = true, want false when the handshake never becomes ready")
	}
	if !slot.abandoned {
		t.Error("slot was not abandoned after a handshake timeout")
	}
}

func TestWalkStackSuccessRecordsAndReleases(t *testing.T) {
	os := &fakeOSForWalker{signalResult: true}
	slot := &fakeHandshake{
		contextReady: true,
		ctx:          &CapturedContext{RuntimeEnv: 0xdeadbeef},
	}
	rec := &fakeRecorder{}
	w := newTestWalker(os, slot, rec, Config{Interval: time.Millisecond, SampleIdle: false})

	if !w.walkStack(42) {
		t.Fatal("walkStack() = false, want true on a clean handshake")
	}
	if slot.armedTID != 42 {
		t.Errorf("armed tid = %d, want 42", slot.armedTID)
	}
	if rec.calls != 1 {
		t.Errorf("recorder calls = %d, want 1", rec.calls)
	}
	if !slot.released {
		t.Error("slot was not released after a successful walk")
	}
	if slot.abandoned {
		t.Error("slot should not be abandoned on a successful walk")
	}
}

func TestWalkStackSurvivesPanickingRecorder(t *testing.T) {
	os := &fakeOSForWalker{signalResult: true}
	slot := &fakeHandshake{
		contextReady: true,
		ctx:          &CapturedContext{},
	}
	rec := &fakeRecorder{panicOn: true}
	w := newTestWalker(os, slot, rec, Config{Interval: time.Millisecond})

	if !w.walkStack(7) {
		t.Error("walkStack() = false, want true: a panicking recorder must not fail the walk")
	}
	if !slot.released {
		t.Error("slot must still be released even when the recorder panics")
	}
}
