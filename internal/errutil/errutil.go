// Copyright 2025 AUTHORS
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

// Package errutil collects independent failures from fan-out work (lanes,
// apply phases, fleet targets) into a single reportable error.
package errutil

import "strings"

// MultiError aggregates independent failures. A nil or empty MultiError is
// never returned as an error value; callers construct one only once they
// know it is non-empty.
type MultiError []error

func (m MultiError) Error() string {
	if len(m) == 1 {
		return m[0].Error()
	}
	parts := make([]string, len(m))
	for i, err := range m {
		parts[i] = err.Error()
	}
	return strings.Join(parts, "; ")
}

// Unwrap exposes the individual errors to errors.Is/errors.As.
func (m MultiError) Unwrap() []error {
	return m
}
