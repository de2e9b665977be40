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

//go:build linux && amd64

package sampler

/*
#include <ucontext.h>
#include <stdint.h>

static uintptr_t wp_pc(void *uctxp) {
	ucontext_t *uctx = (ucontext_t *)uctxp;
	return (uintptr_t)uctx->uc_mcontext.gregs[REG_RIP];
}

// wp_syscall_restarted reports whether the kernel left RAX holding -EINTR,
// the signature of a syscall interrupted by this very signal rather than
// one that ran to completion.
static int wp_syscall_restarted(void *uctxp) {
	ucontext_t *uctx = (ucontext_t *)uctxp;
	long long rax = (long long)uctx->uc_mcontext.gregs[REG_RAX];
	return rax == -4; // -EINTR
}
*/
import "C"
import "unsafe"

// syscallInstructionSize is the byte length of the x86-64 "syscall"
// instruction (0F 05).
const syscallInstructionSize = 2

// amd64Frame implements StackFrameInspector over an x86-64 ucontext_t.
type amd64Frame struct {
	uctx unsafe.Pointer
}

func newStackFrameInspector(uctx unsafe.Pointer) StackFrameInspector {
	return &amd64Frame{uctx: uctx}
}

func (f *amd64Frame) PC() uintptr {
	return uintptr(C.wp_pc(f.uctx))
}

// IsSyscall reports whether the two bytes at addr are the x86-64 "syscall"
// opcode (0x0F 0x05). addr is read directly since it lies within this
// process's own mapped text.
func (f *amd64Frame) IsSyscall(addr uintptr) bool {
	b := (*[2]byte)(unsafe.Pointer(addr))
	return b[0] == 0x0F && b[1] == 0x05
}

func (f *amd64Frame) CheckInterruptedSyscall() bool {
	return C.wp_syscall_restarted(f.uctx) != 0
}
