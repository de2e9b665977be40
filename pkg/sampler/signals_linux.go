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

import "golang.org/x/sys/unix"

// Wall-signal choice (spec.md §9): the interval-virtual timer signal is
// used for sampling. It does not collide with signals the Go runtime
// claims for itself: SIGURG drives goroutine preemption and SIGPROF drives
// the standard library's own CPU profiler, so reusing either here would
// race the runtime for delivery. Stop no longer needs a second signal of
// its own: TimerLoop's Sleep is interrupted by closing a stop channel
// rather than by signaling the loop's thread.
const sampleSignal = int(unix.SIGVTALRM)
