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
	"bufio"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/wallprof/pkg/sampler"
)

func TestMemoryRecorderAssignsIncreasingSampleIDs(t *testing.T) {
	m := NewMemoryRecorder(10)
	for i := 0; i < 3; i++ {
		id, err := m.RecordSample(&sampler.CapturedContext{}, time.Millisecond, sampler.ExecutionSample, sampler.ExecutionEvent{ThreadState: sampler.Running}, 0)
		if err != nil {
			t.Fatalf("RecordSample() error = %v", err)
		}
		if id != int64(i+1) {
			t.Errorf("sample id = %d, want %d", id, i+1)
		}
	}
	if m.Count() != 3 {
		t.Errorf("Count() = %d, want 3", m.Count())
	}
}

func TestMemoryRecorderEvictsOldestBeyondCapacity(t *testing.T) {
	m := NewMemoryRecorder(2)
	for i := 0; i < 5; i++ {
		if _, err := m.RecordSample(&sampler.CapturedContext{}, time.Millisecond, sampler.ExecutionSample, sampler.ExecutionEvent{}, 0); err != nil {
			t.Fatalf("RecordSample() error = %v", err)
		}
	}
	snap := m.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("len(Snapshot()) = %d, want 2", len(snap))
	}
	if snap[0].SampleID != 4 || snap[1].SampleID != 5 {
		t.Errorf("snapshot ids = %d,%d, want 4,5 (the two most recent)", snap[0].SampleID, snap[1].SampleID)
	}
	if m.Count() != 5 {
		t.Errorf("Count() = %d, want 5 (total ever recorded, including evicted)", m.Count())
	}
}

func TestFileRecorderWritesNDJSONAndRefusesDoubleOpen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "samples.ndjson")

	r, err := NewFileRecorder(path)
	if err != nil {
		t.Fatalf("NewFileRecorder() error = %v", err)
	}
	if _, err := NewFileRecorder(path); err == nil {
		t.Error("expected a second FileRecorder on the same path to be rejected by the lock")
	}

	if _, err := r.RecordSample(&sampler.CapturedContext{}, 5*time.Millisecond, sampler.ExecutionSample, sampler.ExecutionEvent{ThreadState: sampler.Sleeping}, 0); err != nil {
		t.Fatalf("RecordSample() error = %v", err)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("opening written file: %v", err)
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	lines := 0
	for scanner.Scan() {
		lines++
	}
	if lines != 1 {
		t.Errorf("wrote %d lines, want 1", lines)
	}

	// Once closed, the lock should be released so a fresh recorder can open
	// the same path.
	r2, err := NewFileRecorder(path)
	if err != nil {
		t.Fatalf("NewFileRecorder() after Close() error = %v", err)
	}
	r2.Close()
}
