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

// Package osfacade implements the OS external collaborator from spec.md
// §6 on Linux: thread enumeration and state via /proc, signal delivery via
// tgkill, and the monotonic clock via clock_gettime.
package osfacade

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/btree"
	"golang.org/x/sys/unix"

	"github.com/google/wallprof/pkg/sampler"
)

// LinuxOS implements sampler.OS by reading /proc/self/task and sending
// signals with tgkill, the same "thin wrapper over raw syscalls" idiom
// runsc/sandbox/sandbox.go uses throughout via golang.org/x/sys/unix.
type LinuxOS struct {
	pid  int
	tids *threadList
}

// NewLinuxOS constructs the facade for the calling process.
func NewLinuxOS() *LinuxOS {
	pid := unix.Getpid()
	return &LinuxOS{pid: pid, tids: newThreadList(pid)}
}

// NowNS implements sampler.OS.
func (o *LinuxOS) NowNS() int64 {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_MONOTONIC, &ts); err != nil {
		// CLOCK_MONOTONIC cannot fail with a valid pointer on Linux;
		// degrading to the wall clock keeps the caller's cadence math
		// sane rather than panicking mid-sample.
		return time.Now().UnixNano()
	}
	return ts.Nano()
}

// Sleep implements sampler.OS. Unlike a bare time.Sleep, it returns as soon
// as stop closes, so Lifecycle.Stop is not left waiting out an in-flight
// tick's sleep.
func (o *LinuxOS) Sleep(d time.Duration, stop <-chan struct{}) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-stop:
	}
}

// ThreadID implements sampler.OS.
func (o *LinuxOS) ThreadID() int {
	return unix.Gettid()
}

// ListThreads implements sampler.OS. The returned ThreadList is owned by
// the caller (the TimerLoop) for the lifetime of one engine run.
func (o *LinuxOS) ListThreads() sampler.ThreadList {
	return o.tids
}

// ThreadState implements sampler.OS by reading field 3 of
// /proc/self/task/<tid>/stat; 'R' means running.
func (o *LinuxOS) ThreadState(tid int) (bool, error) {
	path := fmt.Sprintf("/proc/self/task/%d/stat", tid)
	data, err := os.ReadFile(path)
	if err != nil {
		return false, fmt.Errorf("reading %s: %w", path, err)
	}
	// The comm field is parenthesized and may itself contain spaces or
	// parens, so state is the first field after the last ')'.
	idx := strings.LastIndexByte(string(data), ')')
	if idx < 0 || idx+2 >= len(data) {
		return false, fmt.Errorf("malformed stat line for tid %d", tid)
	}
	state := data[idx+2]
	return state == 'R', nil
}

// SendSignal implements sampler.OS using tgkill so the signal targets the
// exact thread, not just the process.
func (o *LinuxOS) SendSignal(tid int, signo int) bool {
	err := unix.Tgkill(o.pid, tid, unix.Signal(signo))
	return err == nil
}

// InstallSignalHandler implements sampler.OS by delegating to the cgo shim
// in pkg/sampler, which owns the only HandshakeSlot in the process.
func (o *LinuxOS) InstallSignalHandler(signo int) error {
	return sampler.InstallSignalHandler(signo)
}

// threadList implements sampler.ThreadList over the tids found in
// /proc/<pid>/task, ordered and cursor-resumable via a btree so that
// threads joining or leaving between TimerLoop iterations cannot starve
// threads later in iteration order (spec.md §4.4 "ordering & fairness").
type threadList struct {
	pid  int
	tree *btree.BTreeG[int]
	last int
}

func newThreadList(pid int) *threadList {
	tl := &threadList{
		pid:  pid,
		tree: btree.NewG(32, func(a, b int) bool { return a < b }),
	}
	tl.Rewind()
	return tl
}

// Rewind implements sampler.ThreadList. It also re-scans /proc/<pid>/task,
// which is the only point in the protocol where membership is refreshed:
// spec.md's pseudocode calls rewind() once per full pass over the
// population, so that is where picking up new/exited threads belongs.
func (tl *threadList) Rewind() {
	tl.tree.Clear(false)
	entries, err := os.ReadDir(fmt.Sprintf("/proc/%d/task", tl.pid))
	if err == nil {
		for _, e := range entries {
			if tid, err := strconv.Atoi(e.Name()); err == nil {
				tl.tree.ReplaceOrInsert(tid)
			}
		}
	}
	tl.last = -1
}

// Next implements sampler.ThreadList.
func (tl *threadList) Next() (int, bool) {
	var found int
	ok := false
	tl.tree.AscendGreaterOrEqual(tl.last+1, func(item int) bool {
		found = item
		ok = true
		return false
	})
	if !ok {
		return 0, false
	}
	tl.last = found
	return found, true
}

// Size implements sampler.ThreadList.
func (tl *threadList) Size() int {
	return tl.tree.Len()
}
