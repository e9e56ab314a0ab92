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
	"context"
	"fmt"
	"strings"

	"github.com/fleetops/fleetctl/pkg/catalog"
	"github.com/fleetops/fleetctl/pkg/inventory"
)

// UpdatePlan is the set of changes needed to bring deployed monitoring
// state in line with either a wanted set (create) or nothing (unconfigure).
type UpdatePlan struct {
	CreateGroups []ProbeGroup
	RemoveGroups []ProbeGroup
	CreateProbes []Probe
	RemoveProbes []Probe
	Warnings     []string
}

// HasNoChanges reports whether applying this plan would be a no-op.
func (p *UpdatePlan) HasNoChanges() bool {
	return len(p.CreateGroups) == 0 && len(p.RemoveGroups) == 0 && len(p.CreateProbes) == 0 && len(p.RemoveProbes) == 0
}

// Reconciler computes and applies monitoring update plans.
type Reconciler struct {
	Upstream Upstream
	Catalog  *catalog.Catalog
	Aliases  AliasTable
	// FanOut bounds concurrent upstream calls during apply. Zero means
	// DefaultFanOut.
	FanOut int
}

// DefaultFanOut bounds concurrency within each apply phase.
const DefaultFanOut = 20

func (r *Reconciler) aliases() AliasTable {
	if r.Aliases != nil {
		return r.Aliases
	}
	return DefaultAliases()
}

func (r *Reconciler) fanOut() int {
	if r.FanOut > 0 {
		return r.FanOut
	}
	return DefaultFanOut
}

// Plan computes the create plan: deployed state brought in line with what
// templates want given snap.
func (r *Reconciler) Plan(ctx context.Context, snap *inventory.Snapshot, templates []EventTemplate) (*UpdatePlan, error) {
	var wanted []wantedGroup
	for _, tpl := range templates {
		w, err := buildWanted(tpl, snap, r.Catalog, r.aliases())
		if err != nil {
			return nil, err
		}
		wanted = append(wanted, w...)
	}
	owned := ownedEventClasses(templates)
	return r.diff(ctx, wanted, owned)
}

// Unconfigure computes the teardown plan: every group/probe this toolkit
// owns (per templates) is removed, regardless of whether its name follows
// the current naming scheme.
func (r *Reconciler) Unconfigure(ctx context.Context, templates []EventTemplate) (*UpdatePlan, error) {
	owned := ownedEventClasses(templates)
	return r.diff(ctx, nil, owned)
}

func ownedEventClasses(templates []EventTemplate) map[string]bool {
	owned := map[string]bool{}
	for _, tpl := range templates {
		owned[tpl.EventClass] = true
	}
	return owned
}

// eventClassOf extracts the event-class prefix of an "each"-scoped
// probe-group name, stripping the ";v=N" suffix and then the last
// ".<alias>" segment. For a name without an alias segment the result is
// not the event class; diff also checks the name with only ";v=N" removed.
func eventClassOf(name string) string {
	if idx := strings.Index(name, ";v="); idx >= 0 {
		name = name[:idx]
	}
	if idx := strings.LastIndex(name, "."); idx >= 0 {
		return name[:idx]
	}
	return name
}

func (r *Reconciler) diff(ctx context.Context, wanted []wantedGroup, owned map[string]bool) (*UpdatePlan, error) {
	deployedGroups, err := r.Upstream.ListDeployedGroups(ctx)
	if err != nil {
		return nil, fmt.Errorf("alarm: list deployed groups: %w", err)
	}
	deployedProbes := map[string][]Probe{}
	for _, g := range deployedGroups {
		probes, err := r.Upstream.ListDeployedProbes(ctx, g.UUID)
		if err != nil {
			return nil, fmt.Errorf("alarm: list probes for group %s: %w", g.Name, err)
		}
		deployedProbes[g.UUID] = probes
	}

	plan := &UpdatePlan{}
	deployedByName := map[string]ProbeGroup{}
	for _, g := range deployedGroups {
		deployedByName[g.Name] = g
	}
	wantedNames := map[string]bool{}

	for _, w := range wanted {
		wantedNames[w.Name] = true
		dg, matched := deployedByName[w.Name]

		var existingProbes []Probe
		if !matched {
			plan.CreateGroups = append(plan.CreateGroups, ProbeGroup{
				Name: w.Name, OwnerAccount: w.OwnerAccount, Enabled: true, Contacts: w.Contacts,
			})
		} else {
			existingProbes = deployedProbes[dg.UUID]
			if dg.OwnerAccount != w.OwnerAccount || !equalStrings(dg.Contacts, w.Contacts) {
				plan.Warnings = append(plan.Warnings, fmt.Sprintf("group %s: deployed contacts/owner differ from template", w.Name))
			}
		}

		matchedDeployed := map[int]bool{}
		for _, wp := range w.Probes {
			found := -1
			for i, dp := range existingProbes {
				if matchedDeployed[i] {
					continue
				}
				if probeMatches(dp, wp) {
					found = i
					break
				}
			}
			if found >= 0 {
				matchedDeployed[found] = true
				continue
			}
			wp.GroupName = w.Name
			plan.CreateProbes = append(plan.CreateProbes, wp)
		}
		for i, dp := range existingProbes {
			if !matchedDeployed[i] {
				plan.RemoveProbes = append(plan.RemoveProbes, dp)
			}
		}
	}

	for _, dg := range deployedGroups {
		if wantedNames[dg.Name] {
			continue
		}
		base := dg.Name
		if idx := strings.Index(base, ";v="); idx >= 0 {
			base = base[:idx]
		}
		if owned[base] || owned[eventClassOf(dg.Name)] {
			plan.RemoveGroups = append(plan.RemoveGroups, dg)
			plan.RemoveProbes = append(plan.RemoveProbes, deployedProbes[dg.UUID]...)
		}
	}
	return plan, nil
}

func probeMatches(a, b Probe) bool {
	return a.Type == b.Type && a.Agent == b.Agent && a.Machine == b.Machine && equalConfig(a.Config, b.Config)
}
