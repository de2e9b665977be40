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

package recorder

import (
	"encoding/json"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"github.com/google/wallprof/pkg/sampler"
)

// fileRecord is the on-disk, newline-delimited JSON shape written by
// FileRecorder.
type fileRecord struct {
	SampleID    int64  `json:"sample_id"`
	IntervalNS  int64  `json:"interval_ns"`
	Kind        int    `json:"kind"`
	ThreadState string `json:"thread_state"`
	Timestamp   string `json:"timestamp"`
}

// FileRecorder appends newline-delimited JSON records to a single output
// file, guarded by an advisory flock the way runsc/sandbox/sandbox.go
// guards its single-writer control socket and state file.
type FileRecorder struct {
	f      *os.File
	lock   *flock.Flock
	enc    *json.Encoder
	nextID int64
}

// NewFileRecorder opens (creating if necessary) path for appending and
// acquires an exclusive advisory lock on a sibling .lock file, refusing to
// proceed if another process already holds it.
func NewFileRecorder(path string) (*FileRecorder, error) {
	lock := flock.New(path + ".lock")
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("locking %s: %w", path+".lock", err)
	}
	if !locked {
		return nil, fmt.Errorf("another recorder already owns %s", path)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		lock.Unlock()
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}

	return &FileRecorder{f: f, lock: lock, enc: json.NewEncoder(f)}, nil
}

// RecordSample implements sampler.Recorder.
func (r *FileRecorder) RecordSample(ctx *sampler.CapturedContext, interval time.Duration, kind sampler.SampleKind, event sampler.ExecutionEvent, runtimeEnv uintptr) (int64, error) {
	id := atomic.AddInt64(&r.nextID, 1)
	rec := fileRecord{
		SampleID:    id,
		IntervalNS:  interval.Nanoseconds(),
		Kind:        int(kind),
		ThreadState: event.ThreadState.String(),
		Timestamp:   time.Now().Format(time.RFC3339Nano),
	}
	if err := r.enc.Encode(rec); err != nil {
		return 0, fmt.Errorf("writing sample: %w", err)
	}
	return id, nil
}

// Close flushes and releases the underlying file and lock.
func (r *FileRecorder) Close() error {
	closeErr := r.f.Close()
	if err := r.lock.Unlock(); err != nil && closeErr == nil {
		closeErr = err
	}
	return closeErr
}
