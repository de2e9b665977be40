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

// Package recorder implements the Recorder external collaborator from
// spec.md §6: an opaque sink for (context, interval, kind, event,
// runtime_env) tuples. Neither implementation retains the captured context
// pointer past the RecordSample call, and neither blocks indefinitely.
package recorder

import (
	"sync"
	"time"

	"github.com/google/wallprof/pkg/sampler"
)

// Record is the durable, pointer-free projection of one sample: it is
// built inside RecordSample from the call's scalar arguments and never
// holds onto sampler.CapturedContext.ContextPtr itself.
type Record struct {
	SampleID    int64
	TID         int
	IntervalNS  int64
	Kind        sampler.SampleKind
	ThreadState sampler.ThreadState
	Timestamp   time.Time
}

// MemoryRecorder is a bounded ring buffer used by tests and by callers that
// want to inspect samples in-process without a file round trip.
type MemoryRecorder struct {
	mu       sync.Mutex
	records  []Record
	capacity int
	nextID   int64
}

// NewMemoryRecorder builds a recorder that keeps the most recent capacity
// records.
func NewMemoryRecorder(capacity int) *MemoryRecorder {
	if capacity <= 0 {
		capacity = 1024
	}
	return &MemoryRecorder{capacity: capacity}
}

// RecordSample implements sampler.Recorder. ctx is neither read nor
// stored.
func (m *MemoryRecorder) RecordSample(ctx *sampler.CapturedContext, interval time.Duration, kind sampler.SampleKind, event sampler.ExecutionEvent, runtimeEnv uintptr) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	rec := Record{
		SampleID:    m.nextID,
		IntervalNS:  interval.Nanoseconds(),
		Kind:        kind,
		ThreadState: event.ThreadState,
		Timestamp:   time.Now(),
	}
	m.records = append(m.records, rec)
	if len(m.records) > m.capacity {
		m.records = m.records[len(m.records)-m.capacity:]
	}
	return rec.SampleID, nil
}

// Snapshot returns a copy of the currently retained records, newest last.
func (m *MemoryRecorder) Snapshot() []Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Record, len(m.records))
	copy(out, m.records)
	return out
}

// Count returns the number of records ever recorded, including ones
// evicted from the ring buffer.
func (m *MemoryRecorder) Count() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.nextID
}
