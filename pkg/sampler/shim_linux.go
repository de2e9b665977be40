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

/*
#include <stdint.h>
#include <stdatomic.h>
#include <string.h>
#include <signal.h>
#include <unistd.h>
#include <errno.h>
#include <sys/syscall.h>

// wp_slot is the single, process-wide HandshakeSlot from spec.md §3. Every
// field is a C11 atomic with sequentially-consistent default ordering,
// matching the spec's requirement that all four (now five, with
// armed_token) fields be sequentially-consistent atomics observed in a
// total order by both the timer thread and the signal handler.
//
// armed_token replaces the spec's boolean handler_may_publish with a
// monotonically increasing, never-reused ticket: arming stores a fresh
// nonzero token, and the handler may only publish if it CASes the *exact*
// token it observed down to 0. This is the generation-counter mitigation
// for the late-handler-after-driver-timeout open question (spec.md §9):
// a handler invocation that reads a stale token can never successfully
// CAS against a newer arm's token, because the expected value differs.
typedef struct {
	_Atomic int64_t  target_tid;
	_Atomic uint64_t armed_token;
	_Atomic uintptr_t context_ptr;
	_Atomic int       context_ready;
	_Atomic int       stack_walked;
} wp_slot;

static wp_slot wp_global_slot;
static _Atomic uint64_t wp_token_counter;

// Per-OS-thread runtime-environment handle, set once by the Go side (via
// wp_set_runtime_env) after runtime.LockOSThread. It is a runtime/cgo.Handle
// value, an opaque non-pointer integer, never a live Go pointer: handing C
// a pointer into Go memory that itself contains a Go pointer (RuntimeEnv's
// Name string does) violates cgo's pointer-passing rule. Reading
// thread-local storage is async-signal-safe.
static __thread uintptr_t wp_runtime_env;

void wp_set_runtime_env(uintptr_t env) {
	wp_runtime_env = env;
}

// wp_arm implements the driver-side arm phase of spec.md §4.2. Field
// writes happen in the order the spec prescribes, then a full fence, and
// only then is the handshake opened by publishing a nonzero armed_token.
uint64_t wp_arm(int64_t tid) {
	uint64_t token = atomic_fetch_add_explicit(&wp_token_counter, 1, memory_order_seq_cst) + 1;
	atomic_store_explicit(&wp_global_slot.target_tid, tid, memory_order_seq_cst);
	atomic_store_explicit(&wp_global_slot.context_ptr, 0, memory_order_seq_cst);
	atomic_store_explicit(&wp_global_slot.context_ready, 0, memory_order_seq_cst);
	atomic_store_explicit(&wp_global_slot.stack_walked, 0, memory_order_seq_cst);
	atomic_thread_fence(memory_order_seq_cst);
	atomic_store_explicit(&wp_global_slot.armed_token, token, memory_order_seq_cst);
	return token;
}

// wp_signal_handler is the entire async-signal-safe handler from spec.md
// §4.2: no heap allocation, no mutex, no non-reentrant library calls.
// sig and info are unused beyond identifying that this is our sampling
// signal; ucontext is the kernel-delivered machine context.
void wp_signal_handler(int sig, siginfo_t *info, void *ucontext) {
	(void)info;
	(void)sig;

	int64_t self = (int64_t)syscall(SYS_gettid);
	if (self != atomic_load_explicit(&wp_global_slot.target_tid, memory_order_seq_cst)) {
		// Invariant 3: not our target. A signal may be misrouted or
		// inherited across a fork/exec race.
		return;
	}

	uint64_t expected = atomic_load_explicit(&wp_global_slot.armed_token, memory_order_seq_cst);
	if (expected == 0) {
		return;
	}
	if (!atomic_compare_exchange_strong_explicit(&wp_global_slot.armed_token, &expected, 0,
			memory_order_seq_cst, memory_order_seq_cst)) {
		// Either a nested/concurrent invocation already won, or the
		// token we read went stale before we could consume it.
		return;
	}

	// We own this handshake. Build CapturedContext on our own stack.
	struct {
		void     *uctx;
		uintptr_t runtime_env;
	} local;
	local.uctx = ucontext;
	local.runtime_env = wp_runtime_env;

	// The source pairs the runtime-env read with a full fence; the root
	// cause for needing it is not documented upstream. Preserved as
	// instructed rather than rationalized.
	atomic_thread_fence(memory_order_seq_cst);

	atomic_store_explicit(&wp_global_slot.context_ptr, (uintptr_t)&local, memory_order_seq_cst);
	atomic_store_explicit(&wp_global_slot.context_ready, 1, memory_order_seq_cst);

	// Invariant 4 / handler-side spin: no timeout. Releasing early would
	// let this frame's stack mutate under the unwinder.
	for (;;) {
		int done = atomic_load_explicit(&wp_global_slot.stack_walked, memory_order_relaxed);
		atomic_thread_fence(memory_order_seq_cst);
		if (done) {
			break;
		}
	}
}

int wp_install_handler(int signo) {
	struct sigaction sa;
	memset(&sa, 0, sizeof(sa));
	sa.sa_sigaction = wp_signal_handler;
	sa.sa_flags = SA_SIGINFO | SA_RESTART;
	sigemptyset(&sa.sa_mask);
	return sigaction(signo, &sa, NULL);
}

int wp_errno(void) {
	return errno;
}

int wp_restore_default_handler(int signo) {
	struct sigaction sa;
	memset(&sa, 0, sizeof(sa));
	sa.sa_handler = SIG_DFL;
	sigemptyset(&sa.sa_mask);
	return sigaction(signo, &sa, NULL);
}

int wp_context_ready(void) {
	return atomic_load_explicit(&wp_global_slot.context_ready, memory_order_seq_cst);
}

uintptr_t wp_context_ptr(void) {
	return atomic_load_explicit(&wp_global_slot.context_ptr, memory_order_seq_cst);
}

void wp_release(void) {
	atomic_store_explicit(&wp_global_slot.stack_walked, 1, memory_order_seq_cst);
}

// wp_abandon is called by the driver when it gives up waiting for
// context_ready (HANDSHAKE_TIMEOUT elapsed) or during teardown. It
// invalidates the current token so a handler invocation that has not yet
// CASed will see armed_token == 0 and return immediately (invariant 3), and
// defensively flushes stack_walked so a handler that already won the CAS
// in the race window does not spin forever (mitigation (a) from spec.md
// §9, kept alongside the token-generation mitigation (b)).
void wp_abandon(void) {
	atomic_store_explicit(&wp_global_slot.armed_token, 0, memory_order_seq_cst);
	atomic_store_explicit(&wp_global_slot.target_tid, -1, memory_order_seq_cst);
	atomic_store_explicit(&wp_global_slot.stack_walked, 1, memory_order_seq_cst);
}
*/
import "C"
import (
	"fmt"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

// errnoFromRC converts a libc-style 0/-1 return code plus errno into a Go
// error, the same pattern golang.org/x/sys/unix's own wrappers use.
func errnoFromRC(rc C.int) error {
	if rc == 0 {
		return nil
	}
	errno := unix.Errno(C.wp_errno())
	return fmt.Errorf("sigaction failed: %w", errno)
}

// handshakeSlot wraps the cgo HandshakeSlot singleton. There is exactly one
// instance per process, matching the spec's requirement that the handler
// locate the rendezvous via a stable address it cannot otherwise be passed.
type handshakeSlot struct{}

func newHandshakeSlot() *handshakeSlot { return &handshakeSlot{} }

// arm opens a new handshake targeting tid and returns its token. Only the
// timer thread ever calls this, so there is exactly one outstanding
// handshake at any time (invariant 1).
func (*handshakeSlot) arm(tid int) uint64 {
	return uint64(C.wp_arm(C.int64_t(tid)))
}

// ready reports whether the handler has published its captured context.
func (*handshakeSlot) ready() bool {
	return C.wp_context_ready() != 0
}

// waitReady spin-waits for ready() up to timeout, as spec.md §4.2
// prescribes for the driver-side wait phase. Returns false on timeout.
func (s *handshakeSlot) waitReady(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		if s.ready() {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
	}
}

// context returns the CapturedContext published by the handler. Only valid
// between ready() becoming true and release() being called.
func (*handshakeSlot) context() *CapturedContext {
	ptr := C.wp_context_ptr()
	if ptr == 0 {
		return nil
	}
	// The C side stores { void *uctx; uintptr_t runtime_env; } contiguously;
	// read both words back out through the same layout. runtime_env is a
	// cgo.Handle value, not a pointer, so no Go-pointer bookkeeping applies
	// to it on this side either.
	type cCapturedContext struct {
		uctx       unsafe.Pointer
		runtimeEnv uintptr
	}
	c := (*cCapturedContext)(unsafe.Pointer(uintptr(ptr)))
	return &CapturedContext{ContextPtr: c.uctx, RuntimeEnv: c.runtimeEnv}
}

// release implements the driver-release phase: it unblocks the handler's
// spin and completes the handshake (invariant 2's liveness window ends
// here).
func (*handshakeSlot) release() {
	C.wp_release()
}

// abandon gives up on the current handshake after a timeout, per spec.md
// §4.3 step 3 and the open-question mitigation in spec.md §9.
func (*handshakeSlot) abandon() {
	C.wp_abandon()
}

// installSignalHandler installs the async-signal-safe handler for signo.
func installSignalHandler(signo int) error {
	if rc := C.wp_install_handler(C.int(signo)); rc != 0 {
		return errnoFromRC(rc)
	}
	return nil
}

// restoreDefaultHandler reverts signo to SIG_DFL, called from Lifecycle.Stop.
func restoreDefaultHandler(signo int) error {
	if rc := C.wp_restore_default_handler(C.int(signo)); rc != 0 {
		return errnoFromRC(rc)
	}
	return nil
}

// setCurrentThreadRuntimeEnv registers handle (a runtime/cgo.Handle value)
// as the current OS thread's runtime-environment handle, readable from
// signal context via thread-local storage. Callers must have already
// called runtime.LockOSThread.
func setCurrentThreadRuntimeEnv(handle uintptr) {
	C.wp_set_runtime_env(C.uintptr_t(handle))
}
