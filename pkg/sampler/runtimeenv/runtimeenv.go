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

// Package runtimeenv implements the runtime facade external collaborator
// from spec.md §6: a minimal stand-in "managed runtime" whose threads can
// be sampled end to end. Real embedders (a JVM, a language VM) would
// supply their own per-thread runtime-environment handle instead of this
// package; it exists so the engine has something concrete to interrupt in
// tests and in the demo binary.
package runtimeenv

import (
	"runtime"
	"runtime/cgo"
	"sync"

	"github.com/google/wallprof/pkg/sampler"
)

// RuntimeEnv is the per-thread handle a real embedder would hand back from
// current_runtime_env(). Here it just names the worker for diagnostics.
type RuntimeEnv struct {
	Name string
	TID  int
}

// Worker represents one runtime-managed thread from spec.md §1: an OS
// thread pinned with runtime.LockOSThread that has registered a
// RuntimeEnv handle readable from signal context, modeled on
// pkg/sentry/kernel/task_run.go's t.run(threadID uintptr) goroutine-pinned-
// to-one-identity pattern.
type Worker struct {
	env    *RuntimeEnv
	handle cgo.Handle
	tid    int
	ready  chan struct{}
	stop   chan struct{}
	done   chan struct{}
	once   sync.Once
}

// Start spawns a worker goroutine that locks an OS thread, registers its
// RuntimeEnv, and invokes loop once with a channel that Stop closes; loop
// is expected to return once that channel is closed. It may either spin
// (to produce RUNNING samples) or perform a real
// blocking syscall such as unix.Nanosleep (to produce SLEEPING samples);
// passing a loop that blocks indefinitely without checking stop is a
// caller bug, not one this package can detect.
func Start(name string, loop func(stop <-chan struct{})) *Worker {
	w := &Worker{
		env:   &RuntimeEnv{Name: name},
		ready: make(chan struct{}),
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	go func() {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		defer close(w.done)

		w.tid = currentTID()
		w.env.TID = w.tid

		// env.Name's string header holds a Go pointer, so *RuntimeEnv is
		// Go memory containing a Go pointer: cgo forbids handing that
		// straight to C (the cgo pointer-passing rule, enforced at
		// runtime by cgocheck). cgo.Handle boxes it behind an opaque,
		// non-pointer integer that the C side can store in thread-local
		// storage safely.
		w.handle = cgo.NewHandle(w.env)
		defer w.handle.Delete()
		sampler.RegisterCurrentThreadRuntimeEnv(uintptr(w.handle))
		close(w.ready)

		loop(w.stop)
	}()
	<-w.ready
	return w
}

// TID returns the worker's OS thread id, valid once Start has returned.
func (w *Worker) TID() int { return w.tid }

// Env returns the worker's runtime-environment handle.
func (w *Worker) Env() *RuntimeEnv { return w.env }

// Resolve recovers a *RuntimeEnv from the opaque handle value threaded
// through sampler.CapturedContext.RuntimeEnv. It panics if handle does not
// name a live cgo.Handle registered by this package, which would only
// happen if a caller mixed up handles from a different runtime facade.
func Resolve(handle uintptr) *RuntimeEnv {
	return cgo.Handle(handle).Value().(*RuntimeEnv)
}

// Stop signals loop to return and waits for the worker goroutine to exit.
func (w *Worker) Stop() {
	w.once.Do(func() { close(w.stop) })
	<-w.done
}
