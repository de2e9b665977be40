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

// Package sampler implements a wall-clock sampling engine: a dedicated
// timer thread periodically interrupts runtime-managed threads with a
// signal, captures the interrupted machine context through a lock-free
// handshake with the thread's signal handler, classifies the thread as
// running or sleeping in a syscall, and hands the context to an external
// Recorder.
//
// The hard part, and the bulk of this package, is the handshake protocol
// between TimerLoop/StackWalker (the driver) and the signal handler
// installed by Lifecycle.Start: a single-slot rendezvous that exchanges one
// CapturedContext per target thread without heap allocation or locking on
// the handler's side.
package sampler
