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

// Package ring audits and repairs the coordination ring stored as a
// property on the fleet application's metadata: the ordered list of
// nameservice-role addresses every other service discovers peers through.
package ring

import (
	"context"
	"fmt"
	"sort"

	"github.com/fleetops/fleetctl/pkg/inventory"
)

// DefaultProperty is the application-metadata property name the ring is
// stored under.
const DefaultProperty = "ZK_SERVERS"

// Entry is one coordination-ring member.
type Entry struct {
	Ordinal int
	Address string
	Port    int
	IsLast  bool
}

// Store is the collaborator the reconciler reads and rewrites the ring
// through: the fleet application's metadata property.
type Store interface {
	// GetProperty returns the raw stored value of name, or "" if unset.
	GetProperty(ctx context.Context, name string) (string, error)
	// SetProperty rewrites the raw stored value of name.
	SetProperty(ctx context.Context, name, value string) error
}

// Codec serializes and parses the ring's on-the-wire representation. Kept
// separate from Store so the reconciler's audit/repair logic never depends
// on the concrete string format.
type Codec interface {
	Encode(entries []Entry) (string, error)
	Decode(raw string) ([]Entry, error)
}

// Result is the outcome of an audit: the parsed entries plus every problem
// found with them.
type Result struct {
	Entries          []Entry
	MissingInstances []int // indices into Entries with no backing instance
	ValidationErrors []string
	ForeignCount     int
}

// Reconciler audits and repairs the ring stored under Property, against
// the nameservice-role instances in a loaded Snapshot.
type Reconciler struct {
	Store       Store
	Codec       Codec
	Property    string // defaults to DefaultProperty if empty
	ServiceName string // the nameservice-role service; defaults to "nameservice"
}

func (r *Reconciler) property() string {
	if r.Property != "" {
		return r.Property
	}
	return DefaultProperty
}

func (r *Reconciler) serviceName() string {
	if r.ServiceName != "" {
		return r.ServiceName
	}
	return "nameservice"
}

// Audit loads and validates the ring against snap's instances.
func (r *Reconciler) Audit(ctx context.Context, snap *inventory.Snapshot) (*Result, error) {
	raw, err := r.Store.GetProperty(ctx, r.property())
	if err != nil {
		return nil, fmt.Errorf("ring: load property %s: %w", r.property(), err)
	}
	entries, err := r.Codec.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("ring: decode %s: %w", r.property(), err)
	}

	res := &Result{Entries: entries}

	seenOrdinal := map[int]int{} // ordinal -> count
	lastCount := 0
	for i, e := range entries {
		seenOrdinal[e.Ordinal]++
		if e.IsLast {
			lastCount++
		}
		if i != len(entries)-1 && e.IsLast {
			res.ValidationErrors = append(res.ValidationErrors, fmt.Sprintf("entry %d (ordinal %d) has isLast set but is not the final entry", i, e.Ordinal))
		}
	}
	if len(entries) > 0 && !entries[len(entries)-1].IsLast {
		res.ValidationErrors = append(res.ValidationErrors, "final entry does not have isLast set")
	}
	for ordinal, count := range seenOrdinal {
		if count > 1 {
			res.ValidationErrors = append(res.ValidationErrors, fmt.Sprintf("duplicate ordinal %d", ordinal))
		}
	}

	byOrdinal := map[int]inventory.Instance{}
	ordinalCount := map[int]int{}
	for _, inst := range snap.InstancesOf(r.serviceName()) {
		raw, ok := inst.Metadata["ordinal"]
		if !ok {
			res.ValidationErrors = append(res.ValidationErrors, fmt.Sprintf("instance %s has no ordinal metadata", inst.InstanceID))
			continue
		}
		var ordinal int
		if _, err := fmt.Sscanf(raw, "%d", &ordinal); err != nil {
			res.ValidationErrors = append(res.ValidationErrors, fmt.Sprintf("instance %s has invalid ordinal metadata %q", inst.InstanceID, raw))
			continue
		}
		ordinalCount[ordinal]++
		byOrdinal[ordinal] = inst
	}
	for ordinal, count := range ordinalCount {
		if count > 1 {
			res.ValidationErrors = append(res.ValidationErrors, fmt.Sprintf("duplicate ordinal %d in instance metadata", ordinal))
		}
	}

	for i, e := range entries {
		inst, ok := byOrdinal[e.Ordinal]
		if !ok {
			res.MissingInstances = append(res.MissingInstances, i)
			continue
		}
		if inst.HostCompute == "" {
			res.ForeignCount++
			continue
		}
		if inst.PrimaryAddress != e.Address {
			res.ValidationErrors = append(res.ValidationErrors, fmt.Sprintf("ordinal %d: entry address %s does not match instance %s address %s", e.Ordinal, e.Address, inst.InstanceID, inst.PrimaryAddress))
		}
	}

	sort.Strings(res.ValidationErrors)
	sort.Ints(res.MissingInstances)
	return res, nil
}

// Repair removes MissingInstances entries and rewrites the stored property
// with isLast corrected to the new final entry. It re-reads the property
// immediately before writing rather than trusting res's snapshot, so a
// write that landed between Audit and Repair is not silently clobbered;
// the entries to remove are identified by ordinal, which is stable across
// a re-read, not by res's entry indices. Refuses if ValidationErrors is
// nonempty.
func (r *Reconciler) Repair(ctx context.Context, res *Result) ([]Entry, error) {
	if len(res.ValidationErrors) > 0 {
		return nil, fmt.Errorf("ring: refusing to repair: %d validation error(s) present", len(res.ValidationErrors))
	}
	if len(res.MissingInstances) == 0 {
		return res.Entries, nil
	}

	removeOrdinal := map[int]bool{}
	for _, idx := range res.MissingInstances {
		removeOrdinal[res.Entries[idx].Ordinal] = true
	}

	raw, err := r.Store.GetProperty(ctx, r.property())
	if err != nil {
		return nil, fmt.Errorf("ring: re-read property %s: %w", r.property(), err)
	}
	current, err := r.Codec.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("ring: decode %s: %w", r.property(), err)
	}

	repaired := make([]Entry, 0, len(current))
	for _, e := range current {
		if removeOrdinal[e.Ordinal] {
			continue
		}
		repaired = append(repaired, e)
	}
	for i := range repaired {
		repaired[i].IsLast = i == len(repaired)-1
	}

	encoded, err := r.Codec.Encode(repaired)
	if err != nil {
		return nil, fmt.Errorf("ring: encode repaired ring: %w", err)
	}
	if err := r.Store.SetProperty(ctx, r.property(), encoded); err != nil {
		return nil, fmt.Errorf("ring: write repaired ring: %w", err)
	}
	return repaired, nil
}
