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

// pageMask isolates the low bits of an address within its 4KiB page. It is
// used only to decide whether reading (pc - syscallInstructionSize) can
// fault: if pc is far enough from the start of its page, the preceding
// bytes are guaranteed to be mapped.
const pageMask = uintptr(0xFFF)

// ThreadStateClassifier decides whether a thread interrupted at pc was
// executing or blocked inside a syscall, per spec.md §4.1. It is only used
// when Config.SampleIdle is true.
type ThreadStateClassifier struct {
	oracle LibraryOracle
}

// NewThreadStateClassifier builds a classifier backed by oracle, used to
// safely gate reads of instruction bytes that precede a page boundary.
func NewThreadStateClassifier(oracle LibraryOracle) *ThreadStateClassifier {
	return &ThreadStateClassifier{oracle: oracle}
}

// Classify implements spec.md §4.1's algorithm: the kernel may deliver the
// sampling signal either on the syscall instruction itself, or after the
// syscall returned with EINTR; both are treated as SLEEPING so wall-clock
// profiles reflect off-CPU time.
func (c *ThreadStateClassifier) Classify(frame StackFrameInspector) ThreadState {
	pc := frame.PC()

	if frame.IsSyscall(pc) {
		return Sleeping
	}

	prevPC := pc - syscallInstructionSize
	canRead := pc&pageMask >= syscallInstructionSize
	if !canRead {
		if _, ok := c.oracle.FindLibrary(prevPC); !ok {
			return Running
		}
	}

	if frame.IsSyscall(prevPC) && frame.CheckInterruptedSyscall() {
		return Sleeping
	}
	return Running
}
