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

	"golang.org/x/sys/unix"
)

// lifecycleFakeOS drives Start/Stop against an empty thread population: no
// target thread ever gets signaled, so the test exercises startup, the
// timer goroutine's lifecycle, and teardown without depending on real
// handshake timing.
type lifecycleFakeOS struct{}

func (o *lifecycleFakeOS) NowNS() int64 { return time.Now().UnixNano() }
func (o *lifecycleFakeOS) Sleep(d time.Duration, stop <-chan struct{}) {
	select {
	case <-time.After(d):
	case <-stop:
	}
}
func (o *lifecycleFakeOS) ThreadID() int { return unix.Gettid() }
func (o *lifecycleFakeOS) ListThreads() ThreadList   { return &fakeThreadList{} }
func (o *lifecycleFakeOS) ThreadState(int) (bool, error) { return false, nil }
func (o *lifecycleFakeOS) SendSignal(tid int, signo int) bool {
	return unix.Tgkill(unix.Getpid(), tid, unix.Signal(signo)) == nil
}
func (o *lifecycleFakeOS) InstallSignalHandler(signo int) error {
	return installSignalHandler(signo)
}

func TestLifecycleStartAndStop(t *testing.T) {
	os := &lifecycleFakeOS{}
	rec := &fakeRecorder{}
	eng, err := Start(Args{EventName: "wall"}, os, rec, fakeFilterDisabled{}, &fakeOracle{}, nil)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if eng.tid == 0 {
		t.Error("engine tid was never populated by the timer goroutine")
	}

	time.Sleep(20 * time.Millisecond)
	eng.Pause()
	time.Sleep(5 * time.Millisecond)
	eng.Resume()

	if err := eng.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
}

func TestLifecycleRejectsInvalidConfig(t *testing.T) {
	os := &lifecycleFakeOS{}
	rec := &fakeRecorder{}
	_, err := Start(Args{HasWallInterval: true, WallInterval: -1}, os, rec, fakeFilterDisabled{}, &fakeOracle{}, nil)
	if err == nil {
		t.Fatal("expected Start to reject a negative wall interval before touching any OS state")
	}
}
