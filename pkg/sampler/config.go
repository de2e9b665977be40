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

package sampler

import "time"

const (
	// ThreadsPerTick caps the number of threads sampled per TimerLoop
	// iteration, bounding signal-storm amplitude.
	ThreadsPerTick = 8

	// MinInterval floors the iteration sleep so a growing thread
	// population cannot degenerate into a busy loop.
	MinInterval = 100 * time.Microsecond

	// HandshakeTimeout bounds how long the driver waits, per sample, for
	// the handler to publish a captured context.
	HandshakeTimeout = 10 * time.Millisecond

	// DefaultInterval is used when neither WallInterval nor
	// DefaultInterval is set in Args.
	DefaultInterval = 10 * time.Millisecond
)

// Args mirrors the arguments an external profiler entry point (argument
// parsing is out of scope for this package) would pass in: a wall-clock
// interval override, a fallback default, and the event name that selects
// idle sampling when it is exactly "wall".
type Args struct {
	// WallInterval, if >= 0, is used verbatim as the effective interval
	// and also switches sample_idle on.
	WallInterval time.Duration
	// HasWallInterval distinguishes "WallInterval == 0" from "WallInterval
	// unset", since a zero interval is a legal (if extreme) override.
	HasWallInterval bool
	// DefaultInterval is used when WallInterval is not set.
	DefaultInterval time.Duration
	// EventName selects idle sampling when equal to "wall", independent
	// of whether WallInterval was set.
	EventName string
}

// Config is the resolved, process-wide, read-only-after-Start
// configuration for one sampler instance.
type Config struct {
	// Interval is the effective nanosecond period: the per-iteration
	// period when SampleIdle is true, otherwise the inter-iteration
	// sleep.
	Interval time.Duration
	// SampleIdle, when true, samples threads regardless of OS-reported
	// state and classifies them with ThreadStateClassifier; when false,
	// only OS-reported running threads are sampled and state is recorded
	// as unknown.
	SampleIdle bool
}

// ResolveConfig implements the effective-interval and sample_idle rules of
// spec.md §6:
//
//	effective interval = wall, if set and non-negative
//	                    = default_interval, if set
//	                    = 5×DefaultInterval, if idle-sampling and nothing set
//	                    = DefaultInterval, otherwise
//	sample_idle = (wall set and >= 0) or event_name == "wall"
func ResolveConfig(a Args) (Config, error) {
	sampleIdle := a.EventName == "wall"
	if a.HasWallInterval {
		if a.WallInterval < 0 {
			return Config{}, &ConfigurationError{Reason: "wall interval must be non-negative"}
		}
		sampleIdle = true
	}

	var interval time.Duration
	switch {
	case a.HasWallInterval:
		interval = a.WallInterval
	case a.DefaultInterval > 0:
		interval = a.DefaultInterval
	case sampleIdle:
		interval = 5 * DefaultInterval
	default:
		interval = DefaultInterval
	}

	if interval < 0 {
		return Config{}, &ConfigurationError{Reason: "resolved interval must be non-negative"}
	}
	return Config{Interval: interval, SampleIdle: sampleIdle}, nil
}

// adjustInterval implements spec.md §4.4's adjust_interval: keeps per-thread
// cadence roughly constant as the candidate population grows past
// ThreadsPerTick.
func adjustInterval(interval time.Duration, n int) time.Duration {
	if n <= ThreadsPerTick {
		return interval
	}
	ticks := (n + ThreadsPerTick - 1) / ThreadsPerTick
	return interval / time.Duration(ticks)
}
