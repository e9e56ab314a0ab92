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

	"github.com/fleetops/fleetctl/pkg/catalog"
	"github.com/fleetops/fleetctl/pkg/inventory"
)

// GroupNameVersion is the format-version suffix every generated
// probe-group name carries, so the same logical group can be recognized
// across runs even as its contents change.
const GroupNameVersion = ";v=1"

func groupName(eventClass, suffix string) string {
	if suffix == "" {
		return eventClass + GroupNameVersion
	}
	return eventClass + "." + suffix + GroupNameVersion
}

// wantedGroup is an in-memory probe-group the reconciler wants to exist,
// before being matched or created against deployed state.
type wantedGroup struct {
	Name         string
	OwnerAccount string
	Contacts     []string
	Probes       []Probe
}

// buildWanted expands one event template into the probe-group(s) it
// implies, given the current fleet inventory.
func buildWanted(tpl EventTemplate, snap *inventory.Snapshot, cat *catalog.Catalog, aliases AliasTable) ([]wantedGroup, error) {
	switch {
	case tpl.Scope.Each:
		return buildEachWanted(tpl, snap, cat, aliases), nil
	case tpl.Scope.All:
		return []wantedGroup{buildAllWanted(tpl, snap, cat)}, nil
	case tpl.Scope.CheckFrom != "":
		if !cat.IsValid(tpl.Scope.Service) || !cat.IsValid(tpl.Scope.CheckFrom) {
			return nil, fmt.Errorf("alarm: checkFrom template %q references unknown service", tpl.EventClass)
		}
		return []wantedGroup{buildCheckFromWanted(tpl, snap)}, nil
	case tpl.Scope.Global:
		if !cat.IsValid(tpl.Scope.Service) {
			return nil, fmt.Errorf("alarm: global template %q references unknown service %q", tpl.EventClass, tpl.Scope.Service)
		}
		return []wantedGroup{buildGlobalWanted(tpl, snap)}, nil
	case tpl.Scope.Service != "":
		if !cat.IsValid(tpl.Scope.Service) {
			return nil, fmt.Errorf("alarm: template %q references unknown service %q", tpl.EventClass, tpl.Scope.Service)
		}
		return []wantedGroup{buildServiceWanted(tpl, snap)}, nil
	default:
		return nil, fmt.Errorf("alarm: template %q has no scope", tpl.EventClass)
	}
}

func buildServiceWanted(tpl EventTemplate, snap *inventory.Snapshot) wantedGroup {
	var probes []Probe
	for _, inst := range snap.InstancesOf(tpl.Scope.Service) {
		probes = append(probes, buildProbes(tpl, inst.InstanceID, "", inst.Metadata)...)
	}
	return wantedGroup{Name: groupName(tpl.EventClass, ""), OwnerAccount: tpl.OwnerAccount, Contacts: tpl.Contacts, Probes: probes}
}

func buildGlobalWanted(tpl EventTemplate, snap *inventory.Snapshot) wantedGroup {
	var probes []Probe
	for _, computeID := range snap.ComputesForService(tpl.Scope.Service) {
		probes = append(probes, buildProbes(tpl, computeID, "", nil)...)
	}
	return wantedGroup{Name: groupName(tpl.EventClass, ""), OwnerAccount: tpl.OwnerAccount, Contacts: tpl.Contacts, Probes: probes}
}

func buildEachWanted(tpl EventTemplate, snap *inventory.Snapshot, cat *catalog.Catalog, aliases AliasTable) []wantedGroup {
	var groups []wantedGroup
	for _, service := range cat.ProbeTargets() {
		var probes []Probe
		for _, inst := range snap.InstancesOf(service) {
			probes = append(probes, buildProbes(tpl, inst.InstanceID, "", inst.Metadata)...)
		}
		groups = append(groups, wantedGroup{
			Name:         groupName(tpl.EventClass, aliases.Alias(service)),
			OwnerAccount: tpl.OwnerAccount,
			Contacts:     tpl.Contacts,
			Probes:       probes,
		})
	}
	return groups
}

func buildAllWanted(tpl EventTemplate, snap *inventory.Snapshot, cat *catalog.Catalog) wantedGroup {
	var probes []Probe
	for _, service := range cat.ProbeTargets() {
		for _, inst := range snap.InstancesOf(service) {
			probes = append(probes, buildProbes(tpl, inst.InstanceID, "", inst.Metadata)...)
		}
	}
	return wantedGroup{Name: groupName(tpl.EventClass, ""), OwnerAccount: tpl.OwnerAccount, Contacts: tpl.Contacts, Probes: probes}
}

func buildCheckFromWanted(tpl EventTemplate, snap *inventory.Snapshot) wantedGroup {
	var probes []Probe
	for _, target := range snap.InstancesOf(tpl.Scope.Service) {
		for _, checker := range snap.InstancesOf(tpl.Scope.CheckFrom) {
			probes = append(probes, buildProbes(tpl, checker.InstanceID, target.InstanceID, checker.Metadata)...)
		}
	}
	return wantedGroup{Name: groupName(tpl.EventClass, ""), OwnerAccount: tpl.OwnerAccount, Contacts: tpl.Contacts, Probes: probes}
}

// buildProbes expands one template's checks into probes for a single
// (agent, machine) pair.
func buildProbes(tpl EventTemplate, agent, machine string, metadata map[string]string) []Probe {
	probes := make([]Probe, 0, len(tpl.Checks))
	for _, check := range tpl.Checks {
		name := check.Type + ":" + agent
		if machine != "" {
			name = check.Type + ":" + agent + "->" + machine
		}
		probes = append(probes, Probe{
			Name:        name,
			Type:        check.Type,
			Config:      mergeConfig(check.Config, check.AutoEnv, metadata),
			Agent:       agent,
			Machine:     machine,
			GroupEvents: []string{tpl.EventClass},
			Contacts:    tpl.Contacts,
		})
	}
	return probes
}
