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

// Package filter implements the thread filter external collaborator from
// spec.md §6.
package filter

// AcceptAll is the disabled filter: every TimerLoop accepts it by default
// and its Enabled() always reports false, so TimerLoop falls back to
// OS.ListThreads().Size() for the adaptive-interval estimate.
type AcceptAll struct{}

func (AcceptAll) Enabled() bool       { return false }
func (AcceptAll) Size() int           { return 0 }
func (AcceptAll) Accept(tid int) bool { return true }

// Modulo accepts only tids congruent to Remainder mod N, used by the
// "filter" end-to-end scenario in spec.md §8 (accept only even tids).
type Modulo struct {
	N         int
	Remainder int
	count     int
}

// NewModulo builds a filter that accepts tids t where t%n == remainder.
// count is the filter's own notion of its candidate population size,
// reported through Size() per spec.md §6's ThreadFilter contract.
func NewModulo(n, remainder, count int) *Modulo {
	return &Modulo{N: n, Remainder: remainder, count: count}
}

func (m *Modulo) Enabled() bool { return true }
func (m *Modulo) Size() int     { return m.count }
func (m *Modulo) Accept(tid int) bool {
	return tid%m.N == m.Remainder
}
