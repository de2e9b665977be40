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

//go:build linux && arm64

package sampler

/*
#include <ucontext.h>
#include <stdint.h>

static uintptr_t wp_pc(void *uctxp) {
	ucontext_t *uctx = (ucontext_t *)uctxp;
	return (uintptr_t)uctx->uc_mcontext.pc;
}

// wp_syscall_restarted reports whether the kernel left x0 holding -EINTR.
static int wp_syscall_restarted(void *uctxp) {
	ucontext_t *uctx = (ucontext_t *)uctxp;
	long long x0 = (long long)uctx->uc_mcontext.regs[0];
	return x0 == -4; // -EINTR
}
*/
import "C"
import "unsafe"

// syscallInstructionSize is the byte length of the AArch64 "svc #0"
// instruction: every A64 instruction is 4 bytes.
const syscallInstructionSize = 4

// arm64Frame implements StackFrameInspector over an AArch64 ucontext_t.
type arm64Frame struct {
	uctx unsafe.Pointer
}

func newStackFrameInspector(uctx unsafe.Pointer) StackFrameInspector {
	return &arm64Frame{uctx: uctx}
}

func (f *arm64Frame) PC() uintptr {
	return uintptr(C.wp_pc(f.uctx))
}

// IsSyscall reports whether the little-endian word at addr encodes "svc #0"
// (0xD4000001).
func (f *arm64Frame) IsSyscall(addr uintptr) bool {
	w := *(*uint32)(unsafe.Pointer(addr))
	return w == 0xD4000001
}

func (f *arm64Frame) CheckInterruptedSyscall() bool {
	return C.wp_syscall_restarted(f.uctx) != 0
}
