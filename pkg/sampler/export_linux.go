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

// InstallSignalHandler installs this package's async-signal-safe handler
// for signo. It is exported so OS facade implementations outside this
// package (see pkg/sampler/osfacade) can satisfy the OS interface's
// InstallSignalHandler method without this package importing theirs.
func InstallSignalHandler(signo int) error {
	return installSignalHandler(signo)
}

// RestoreDefaultSignalHandler reverts signo to SIG_DFL.
func RestoreDefaultSignalHandler(signo int) error {
	return restoreDefaultHandler(signo)
}

// SampleSignal returns the signal number used to request a stack sample.
func SampleSignal() int { return sampleSignal }

// RegisterCurrentThreadRuntimeEnv records handle, a runtime/cgo.Handle
// value, as the calling OS thread's runtime-environment handle, readable
// by the signal handler via thread-local storage. The caller must have
// already called runtime.LockOSThread; this is how pkg/sampler/runtimeenv
// registers workers without this package importing that one.
func RegisterCurrentThreadRuntimeEnv(handle uintptr) {
	setCurrentThreadRuntimeEnv(handle)
}
