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

package layout

import (
	"fmt"
	"io"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/fleetops/fleetctl/pkg/catalog"
	"github.com/fleetops/fleetctl/pkg/inventory"
)

// HardwareDescription is the input to the file-driven layout generator: a
// tree of availability zones, racks, and servers, each server carrying the
// list of service roles it is eligible to host.
type HardwareDescription struct {
	AvailabilityZones []AvailabilityZone `yaml:"availabilityZones"`
}

// AvailabilityZone is one independent failure domain.
type AvailabilityZone struct {
	Name  string `yaml:"name"`
	Racks []Rack `yaml:"racks"`
}

// Rack groups servers that share power and network failure domains.
type Rack struct {
	Name    string   `yaml:"name"`
	Servers []Server `yaml:"servers"`
}

// Server is one physical host eligible to carry instances of the services
// named in Roles.
type Server struct {
	ComputeID string   `yaml:"computeId"`
	Hostname  string   `yaml:"hostname"`
	Roles     []string `yaml:"roles"`
}

// ParseHardwareDescription decodes a hardware description from YAML.
func ParseHardwareDescription(r io.Reader) (*HardwareDescription, error) {
	var desc HardwareDescription
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&desc); err != nil {
		return nil, fmt.Errorf("layout: parse hardware description: %w", err)
	}
	return &desc, nil
}

// ServiceRequirement names a service's target image and replica count. The
// same requirement set is applied independently within every availability
// zone.
type ServiceRequirement struct {
	Service  string
	ImageID  string
	Replicas int
}

// Issue records a replica requirement that could not be fully satisfied in
// one availability zone because too few eligible servers were available.
type Issue struct {
	AvailabilityZone string
	Service          string
	Needed           int
	Available        int
}

func (i Issue) String() string {
	return fmt.Sprintf("%s/%s: needed %d, only %d eligible servers", i.AvailabilityZone, i.Service, i.Needed, i.Available)
}

// GenerateFromHardware produces one DesiredLayout per availability zone in
// desc, assigning one instance per requirement to each of the first
// Replicas servers (within that zone) whose Roles include the service.
// Requirements that cannot be fully satisfied are accumulated as Issues
// rather than failing generation outright.
func GenerateFromHardware(desc *HardwareDescription, reqs []ServiceRequirement, cat *catalog.Catalog) (map[string]*DesiredLayout, []Issue, error) {
	for _, req := range reqs {
		if !cat.IsValid(req.Service) {
			return nil, nil, fmt.Errorf("layout: unknown service %q in requirements", req.Service)
		}
	}

	layouts := map[string]*DesiredLayout{}
	var issues []Issue

	for _, az := range desc.AvailabilityZones {
		eligible := serversByRole(az)
		azLayout := New()
		for _, req := range reqs {
			servers := eligible[req.Service]
			if len(servers) < req.Replicas {
				issues = append(issues, Issue{
					AvailabilityZone: az.Name,
					Service:          req.Service,
					Needed:           req.Replicas,
					Available:        len(servers),
				})
			}
			assign := req.Replicas
			if len(servers) < assign {
				assign = len(servers)
			}
			sharded := cat.IsSharded(req.Service)
			for i := 0; i < assign; i++ {
				key := inventory.ConfigKey{ImageID: req.ImageID}
				if sharded {
					key.Shard = i + 1
				}
				azLayout.Add(servers[i], req.Service, key, 1)
			}
		}
		layouts[az.Name] = azLayout
	}
	return layouts, issues, nil
}

// serversByRole flattens every rack in az into a role -> []computeId index,
// preserving rack/server declaration order so assignment is deterministic.
func serversByRole(az AvailabilityZone) map[string][]string {
	out := map[string][]string{}
	for _, rack := range az.Racks {
		for _, srv := range rack.Servers {
			for _, role := range srv.Roles {
				out[role] = append(out[role], srv.ComputeID)
			}
		}
	}
	return out
}

// Generate runs GenerateFromHardware and turns a nonzero issue count into an
// error, matching the file-driven generator's user-visible failure mode.
func Generate(desc *HardwareDescription, reqs []ServiceRequirement, cat *catalog.Catalog) (map[string]*DesiredLayout, error) {
	layouts, issues, err := GenerateFromHardware(desc, reqs, cat)
	if err != nil {
		return nil, err
	}
	if len(issues) > 0 {
		sort.Slice(issues, func(i, j int) bool {
			if issues[i].AvailabilityZone != issues[j].AvailabilityZone {
				return issues[i].AvailabilityZone < issues[j].AvailabilityZone
			}
			return issues[i].Service < issues[j].Service
		})
		msgs := make([]string, len(issues))
		for i, iss := range issues {
			msgs[i] = iss.String()
		}
		return layouts, fmt.Errorf("layout: %d issue(s) generating layout: %v", len(issues), msgs)
	}
	return layouts, nil
}
