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

package fleet

import (
	"fmt"
	"sort"

	"github.com/fleetops/fleetctl/pkg/catalog"
	"github.com/fleetops/fleetctl/pkg/inventory"
)

// Scope is a union of target selectors. An empty Scope selects nothing.
type Scope struct {
	InstanceIDs []string
	Services    []string
	Computes    []string // hostname or compute id
	AllLocal    bool
	AllGlobalZones bool
}

// ResolveScope expands scope against snap into a deduplicated target list.
// Unknown instance ids and unknown service names are errors. A service or
// compute identifier that is valid but has no local presence resolves to an
// empty contribution — not an error.
func ResolveScope(snap *inventory.Snapshot, cat *catalog.Catalog, scope Scope) ([]Target, error) {
	byInstance := map[string]Target{}
	var globalZones []Target

	add := func(inst inventory.Instance) {
		if !cat.IsValid(inst.ServiceName) || !cat.SupportsFleetCommand(inst.ServiceName) {
			return
		}
		byInstance[inst.InstanceID] = Target{
			InstanceID:     inst.InstanceID,
			ComputeID:      inst.HostCompute,
			ServiceName:    inst.ServiceName,
			PrimaryAddress: inst.PrimaryAddress,
		}
	}

	instanceByID := map[string]inventory.Instance{}
	for _, inst := range snap.Instances {
		instanceByID[inst.InstanceID] = inst
	}

	for _, id := range scope.InstanceIDs {
		inst, ok := instanceByID[id]
		if !ok {
			return nil, fmt.Errorf("fleet: unknown instance id %q", id)
		}
		add(inst)
	}

	for _, service := range scope.Services {
		if !cat.IsValid(service) {
			return nil, fmt.Errorf("fleet: unknown service %q", service)
		}
		for _, inst := range snap.InstancesOf(service) {
			add(inst)
		}
	}

	for _, ident := range scope.Computes {
		for _, inst := range instancesOnComputeIdentifier(snap, ident) {
			add(inst)
		}
	}

	if scope.AllLocal {
		for _, inst := range snap.Instances {
			add(inst)
		}
	}

	if scope.AllGlobalZones {
		seen := map[string]bool{}
		for _, cn := range snap.Computes {
			if seen[cn.ComputeID] {
				continue
			}
			seen[cn.ComputeID] = true
			globalZones = append(globalZones, Target{
				ComputeID:      cn.ComputeID,
				Hostname:       cn.Hostname,
				PrimaryAddress: cn.AdministrativeAddress,
				IsGlobalZone:   true,
			})
		}
	}

	out := make([]Target, 0, len(byInstance)+len(globalZones))
	ids := make([]string, 0, len(byInstance))
	for id := range byInstance {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		out = append(out, byInstance[id])
	}
	sort.Slice(globalZones, func(i, j int) bool { return globalZones[i].ComputeID < globalZones[j].ComputeID })
	out = append(out, globalZones...)
	return out, nil
}

// instancesOnComputeIdentifier resolves a hostname-or-computeId reference to
// the instances hosted there. An identifier matching no known compute node
// contributes nothing; it is not an error, since compute presence is a
// local-inventory fact that can legally be absent.
func instancesOnComputeIdentifier(snap *inventory.Snapshot, ident string) []inventory.Instance {
	computeID := ident
	for id, cn := range snap.Computes {
		if cn.Hostname == ident {
			computeID = id
			break
		}
	}
	return snap.InstancesOnCompute(computeID)
}
