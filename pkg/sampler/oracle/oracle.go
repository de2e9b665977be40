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

// Package oracle implements the library-address oracle external
// collaborator from spec.md §6, backed by a one-time parse of
// /proc/self/maps.
package oracle

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

type mapping struct {
	start, end uintptr
	path       string
}

// MapsOracle answers find_library(addr) by range lookup into the mappings
// captured at Load time. It is read-only after Load, so it is safe to
// share across the timer thread and any target thread calling back into
// ThreadStateClassifier on the driver side.
type MapsOracle struct {
	mappings []mapping
}

// Load parses /proc/self/maps once, using the standard bufio.Scanner +
// strings.Fields idiom for line-oriented /proc text; no file in the pack
// parses /proc/*/maps or a similar table, so this is a stdlib-only
// implementation rather than one adapted from an example.
func Load() (*MapsOracle, error) {
	f, err := os.Open("/proc/self/maps")
	if err != nil {
		return nil, fmt.Errorf("opening /proc/self/maps: %w", err)
	}
	defer f.Close()

	o := &MapsOracle{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 1 {
			continue
		}
		addrs := strings.SplitN(fields[0], "-", 2)
		if len(addrs) != 2 {
			continue
		}
		start, err := strconv.ParseUint(addrs[0], 16, 64)
		if err != nil {
			continue
		}
		end, err := strconv.ParseUint(addrs[1], 16, 64)
		if err != nil {
			continue
		}
		path := ""
		if len(fields) >= 6 {
			path = fields[5]
		}
		if path == "" {
			// Anonymous mappings (stacks, heap, JIT pages) are never
			// libraries; skip them to keep FindLibrary precise.
			continue
		}
		o.mappings = append(o.mappings, mapping{start: uintptr(start), end: uintptr(end), path: path})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanning /proc/self/maps: %w", err)
	}
	return o, nil
}

// FindLibrary implements sampler.LibraryOracle.
func (o *MapsOracle) FindLibrary(addr uintptr) (string, bool) {
	for _, m := range o.mappings {
		if addr >= m.start && addr < m.end {
			return m.path, true
		}
	}
	return "", false
}
