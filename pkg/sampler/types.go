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

package sampler

import (
	"time"
	"unsafe"
)

// ThreadState classifies a sampled thread.
type ThreadState int

const (
	// Unknown is recorded when SampleIdle is false: the engine only ever
	// samples OS-reported running threads in that mode, so no
	// classification is attempted.
	Unknown ThreadState = iota
	Running
	Sleeping
)

func (s ThreadState) String() string {
	switch s {
	case Running:
		return "RUNNING"
	case Sleeping:
		return "SLEEPING"
	default:
		return "UNKNOWN"
	}
}

// SampleKind identifies the kind of sample handed to a Recorder. The engine
// only ever produces ExecutionSample; the type exists so a Recorder shared
// with other engines (out of scope here) can distinguish sample sources.
type SampleKind int

// ExecutionSample is the only SampleKind this engine produces.
const ExecutionSample SampleKind = 1

// ExecutionEvent is handed to the Recorder alongside the captured context.
type ExecutionEvent struct {
	ThreadState ThreadState
}

// CapturedContext is the stack-allocated-on-the-handler's-frame payload
// published through the HandshakeSlot. ContextPtr is the raw ucontext_t
// pointer delivered to the signal handler by the kernel; RuntimeEnv is a
// runtime/cgo.Handle value naming the per-thread runtime-environment
// handle (never a raw Go pointer: the Go side registers it in C
// thread-local storage, where the handler reads it, and a live Go pointer
// to pointer-containing Go
// memory is not legal to hand across that boundary). Resolve it with the
// registering package's own Resolve helper (see pkg/sampler/runtimeenv).
// Neither field may be retained past the StackWalker call that produced
// it: the memory backing ContextPtr lives on another OS thread's handler
// stack frame and becomes invalid the instant stack_walked is set.
type CapturedContext struct {
	ContextPtr unsafe.Pointer
	RuntimeEnv uintptr
}

// OS is the platform facade the engine depends on. Implementations live
// outside this package (see pkg/sampler/osfacade) so the engine itself
// never imports an OS package directly.
type OS interface {
	NowNS() int64
	// Sleep blocks for d or until stop closes, whichever comes first.
	Sleep(d time.Duration, stop <-chan struct{})
	ThreadID() int
	ListThreads() ThreadList
	ThreadState(tid int) (running bool, err error)
	SendSignal(tid int, signo int) bool
	InstallSignalHandler(signo int) error
}

// ThreadList enumerates candidate tids with a cursor that persists across
// TimerLoop iterations, giving every thread an equal long-run share despite
// the per-iteration ThreadsPerTick cap.
type ThreadList interface {
	// Next returns the next tid in cursor order, or ok=false at the end.
	Next() (tid int, ok bool)
	// Rewind resets the cursor to the start.
	Rewind()
	// Size reports the current candidate count.
	Size() int
}

// LibraryOracle answers whether an address belongs to a mapped library,
// used only to gate memory reads of adjacent instructions in
// ThreadStateClassifier.
type LibraryOracle interface {
	FindLibrary(addr uintptr) (lib string, ok bool)
}

// StackFrameInspector is built from an opaque captured machine context and
// exposes just enough to classify the interrupted thread.
type StackFrameInspector interface {
	PC() uintptr
	IsSyscall(addr uintptr) bool
	CheckInterruptedSyscall() bool
}

// Recorder is the external, opaque sample sink. It must be callable from a
// non-signal context, must not retain ctx past the call, and must not block
// indefinitely.
type Recorder interface {
	RecordSample(ctx *CapturedContext, interval time.Duration, kind SampleKind, event ExecutionEvent, runtimeEnv uintptr) (sampleID int64, err error)
}

// ThreadFilter optionally narrows the candidate population.
type ThreadFilter interface {
	Enabled() bool
	Size() int
	Accept(tid int) bool
}
