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

// Package layout builds and serializes desired-layout documents: the
// computeId -> serviceName -> configKey -> count shape that the planner
// diffs against observed inventory.
package layout

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/fleetops/fleetctl/pkg/catalog"
	"github.com/fleetops/fleetctl/pkg/inventory"
)

// AnyCompute is the pseudo-computeId meaning "unpinned — the executor
// chooses a host at apply time".
const AnyCompute = "<any>"

// ConfigCounts maps a service's config key to the number of instances
// desired at that key.
type ConfigCounts map[inventory.ConfigKey]int

// DesiredLayout is a computeId -> serviceName -> ConfigCounts document.
type DesiredLayout struct {
	ByCompute map[string]map[string]ConfigCounts
}

// New returns an empty DesiredLayout.
func New() *DesiredLayout {
	return &DesiredLayout{ByCompute: map[string]map[string]ConfigCounts{}}
}

// Add records count additional instances of service at key on computeId.
func (d *DesiredLayout) Add(computeID, service string, key inventory.ConfigKey, count int) {
	byService, ok := d.ByCompute[computeID]
	if !ok {
		byService = map[string]ConfigCounts{}
		d.ByCompute[computeID] = byService
	}
	counts, ok := byService[service]
	if !ok {
		counts = ConfigCounts{}
		byService[service] = counts
	}
	counts[key] += count
}

// Services returns the distinct service names referenced anywhere in the
// layout, sorted.
func (d *DesiredLayout) Services() []string {
	seen := map[string]bool{}
	for _, byService := range d.ByCompute {
		for svc := range byService {
			seen[svc] = true
		}
	}
	out := make([]string, 0, len(seen))
	for svc := range seen {
		out = append(out, svc)
	}
	sort.Strings(out)
	return out
}

// Validate checks every service name against cat, every config key against
// the service's shape, counts are nonnegative, and that AnyCompute is never
// mixed with specific computeIds for the same service.
func (d *DesiredLayout) Validate(cat *catalog.Catalog) error {
	anyUsers := map[string]bool{}
	specificUsers := map[string]bool{}
	for computeID, byService := range d.ByCompute {
		for service, counts := range byService {
			if !cat.IsValid(service) {
				return fmt.Errorf("layout: unknown service %q", service)
			}
			if computeID == AnyCompute {
				anyUsers[service] = true
			} else {
				specificUsers[service] = true
			}
			for key, count := range counts {
				if count < 0 {
					return fmt.Errorf("layout: negative count for %s on %s", service, computeID)
				}
				if cat.IsSharded(service) && key.Shard == 0 {
					return fmt.Errorf("layout: %s is sharded but config key on %s has no shard", service, computeID)
				}
				if !cat.IsSharded(service) && key.Shard != 0 {
					return fmt.Errorf("layout: %s is not sharded but config key on %s specifies a shard", service, computeID)
				}
			}
		}
	}
	for service := range anyUsers {
		if specificUsers[service] {
			return fmt.Errorf("layout: service %q mixes %s with specific compute ids", service, AnyCompute)
		}
	}
	return nil
}

// wireKey is the JSON-stable string encoding of a config key: "imageId" for
// unsharded services, "shard/imageId" for sharded ones.
func wireKey(key inventory.ConfigKey) string {
	if key.Shard == 0 {
		return key.ImageID
	}
	return strconv.Itoa(key.Shard) + "/" + key.ImageID
}

func parseWireKey(s string) (inventory.ConfigKey, error) {
	if idx := strings.IndexByte(s, '/'); idx >= 0 {
		shard, err := strconv.Atoi(s[:idx])
		if err != nil {
			return inventory.ConfigKey{}, fmt.Errorf("layout: invalid shard in config key %q: %w", s, err)
		}
		return inventory.ConfigKey{Shard: shard, ImageID: s[idx+1:]}, nil
	}
	return inventory.ConfigKey{ImageID: s}, nil
}

// MarshalJSON renders the layout as computeId -> serviceName -> configKey ->
// count, matching the on-disk desired-layout file format.
func (d *DesiredLayout) MarshalJSON() ([]byte, error) {
	out := make(map[string]map[string]map[string]int, len(d.ByCompute))
	for computeID, byService := range d.ByCompute {
		services := make(map[string]map[string]int, len(byService))
		for service, counts := range byService {
			wire := make(map[string]int, len(counts))
			for key, count := range counts {
				wire[wireKey(key)] = count
			}
			services[service] = wire
		}
		out[computeID] = services
	}
	return json.Marshal(out)
}

// UnmarshalJSON parses a desired-layout document in the on-disk format.
func (d *DesiredLayout) UnmarshalJSON(data []byte) error {
	var raw map[string]map[string]map[string]int
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	d.ByCompute = map[string]map[string]ConfigCounts{}
	for computeID, services := range raw {
		byService := map[string]ConfigCounts{}
		for service, wire := range services {
			counts := ConfigCounts{}
			for rawKey, count := range wire {
				key, err := parseWireKey(rawKey)
				if err != nil {
					return err
				}
				counts[key] = count
			}
			byService[service] = counts
		}
		d.ByCompute[computeID] = byService
	}
	return nil
}

// FromSnapshot derives an observed-layout document from a loaded Snapshot by
// grouping instances into the same computeId -> serviceName -> configKey ->
// count shape as a desired layout.
func FromSnapshot(snap *inventory.Snapshot, cat *catalog.Catalog) *DesiredLayout {
	observed := New()
	for _, inst := range snap.Instances {
		computeID := inst.HostCompute
		if computeID == "" {
			continue // instance lives in another datacenter; not locally observable
		}
		key := inventory.ConfigKey{ImageID: inst.ImageID}
		if cat.IsSharded(inst.ServiceName) {
			key.Shard = inst.Shard
		}
		observed.Add(computeID, inst.ServiceName, key, 1)
	}
	return observed
}
