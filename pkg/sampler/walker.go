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

import (
	"context"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// handshake is the subset of *handshakeSlot StackWalker depends on,
// narrowed to an interface so tests can drive it without the real cgo
// singleton.
type handshake interface {
	arm(tid int) uint64
	ready() bool
	context() *CapturedContext
	release()
	abandon()
}

// StackWalker drives one complete handshake against a single target
// thread: arm, signal, wait, classify, record, release. It is only ever
// driven by the timer thread (invariant 1 of spec.md §3).
type StackWalker struct {
	os         OS
	slot       handshake
	classifier *ThreadStateClassifier
	recorder   Recorder
	cfg        Config
	log        *logrus.Entry
	limiter    *rate.Limiter
}

func newStackWalker(os OS, classifier *ThreadStateClassifier, recorder Recorder, cfg Config, log *logrus.Entry) *StackWalker {
	return &StackWalker{
		os:         os,
		slot:       newHandshakeSlot(),
		classifier: classifier,
		recorder:   recorder,
		cfg:        cfg,
		log:        log,
		// Ten log lines per second is generous for a "this thread
		// vanished" event but bounds a storm of exiting threads from
		// flooding the log, matching spec.md §7's "logged per the
		// host's policy."
		limiter: rate.NewLimiter(10, 1),
	}
}

// walkStack implements spec.md §4.3's walk_stack.
func (w *StackWalker) walkStack(tid int) bool {
	w.slot.arm(tid)

	if !w.os.SendSignal(tid, sampleSignal) {
		w.slot.abandon()
		w.logTransient(newTransient(tid, "thread vanished before signal delivery", nil))
		return false
	}

	if !w.waitForContext() {
		w.slot.abandon()
		w.logTransient(newTransient(tid, "handshake timed out", nil))
		return false
	}

	captured := w.slot.context()
	if captured == nil {
		// ready() reported true but no context pointer was
		// published; treat it the same as a timeout.
		w.slot.abandon()
		w.logTransient(newTransient(tid, "handshake published without a context", nil))
		return false
	}

	event := ExecutionEvent{ThreadState: Unknown}
	if w.cfg.SampleIdle {
		frame := newStackFrameInspector(captured.ContextPtr)
		event.ThreadState = w.classifier.Classify(frame)
	}

	w.callRecorder(tid, captured, event)

	w.slot.release()
	return true
}

// callRecorder invokes the external Recorder as a noexcept boundary: the
// contract treats the recorder as opaque and non-throwing, but a panic
// here must not propagate into the handshake teardown below it (the
// driver must still set stack_walked), so a panicking Recorder is
// converted to a TransientPerSample log line instead.
func (w *StackWalker) callRecorder(tid int, captured *CapturedContext, event ExecutionEvent) {
	defer func() {
		if r := recover(); r != nil {
			w.logTransient(newTransient(tid, "recorder panicked", nil))
		}
	}()
	if _, err := w.recorder.RecordSample(captured, w.cfg.Interval, ExecutionSample, event, captured.RuntimeEnv); err != nil {
		w.log.WithError(err).WithField("tid", tid).Debug("recorder rejected sample")
	}
}

// waitForContext polls the handshake slot using a constant backoff bounded
// by HandshakeTimeout, the same context.WithTimeout + backoff.WithContext +
// backoff.Retry shape runsc/sandbox/sandbox.go uses to wait for the sandbox
// subprocess to stop.
func (w *StackWalker) waitForContext() bool {
	ctx, cancel := context.WithTimeout(context.Background(), HandshakeTimeout)
	defer cancel()

	b := backoff.WithContext(backoff.NewConstantBackOff(50*time.Microsecond), ctx)
	op := func() error {
		if w.slot.ready() {
			return nil
		}
		return errNotReady
	}
	return backoff.Retry(op, b) == nil
}

func (w *StackWalker) logTransient(err *TransientPerSampleError) {
	if !w.limiter.Allow() {
		return
	}
	w.log.WithError(err).WithField("tid", err.TID).Debug("skipping sample")
}

var errNotReady = newTransient(0, "context not yet published", nil)
