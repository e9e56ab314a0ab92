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

package alarm

import (
	"fmt"
	"sort"
	"strings"
)

// renderAutoEnv copies the metadata values named by keys into a flat
// KEY=VALUE environment block, one line per key present in metadata.
// Missing or empty keys are skipped. Keys are upper-cased on output,
// matching the fleet's environment-variable convention.
func renderAutoEnv(keys []string, metadata map[string]string) string {
	var b strings.Builder
	for _, k := range keys {
		v, ok := metadata[k]
		if !ok || v == "" {
			continue
		}
		fmt.Fprintf(&b, "%s=%s\n", strings.ToUpper(k), v)
	}
	return b.String()
}

// mergeConfig builds a probe's opaque config by copying static, then
// layering in the rendered auto-environment block under "env".
func mergeConfig(static map[string]string, autoEnv []string, metadata map[string]string) map[string]string {
	out := make(map[string]string, len(static)+1)
	for k, v := range static {
		out[k] = v
	}
	if env := renderAutoEnv(autoEnv, metadata); env != "" {
		out["env"] = env
	}
	return out
}

// equalStrings reports whether a and b contain the same elements,
// order-independent.
func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	sortedA := append([]string(nil), a...)
	sortedB := append([]string(nil), b...)
	sort.Strings(sortedA)
	sort.Strings(sortedB)
	for i := range sortedA {
		if sortedA[i] != sortedB[i] {
			return false
		}
	}
	return true
}

// equalConfig reports whether two probe configs are equal, ignoring key
// order.
func equalConfig(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if b[k] != v {
			return false
		}
	}
	return true
}
