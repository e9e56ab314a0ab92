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

// Package catalog holds the static, versioned metadata describing every
// service name the fleet knows about: whether it is sharded, whether it
// accepts fleet commands, whether it can carry monitoring probes, and the
// shape of its config key.
package catalog

// ConfigKeyShape names the ordered tuple of properties that make up a
// service's config key.
type ConfigKeyShape []string

var (
	shapeImageOnly    = ConfigKeyShape{"imageId"}
	shapeShardAndImage = ConfigKeyShape{"shard", "imageId"}
)

// Entry is one service's static catalog metadata.
type Entry struct {
	Name                 string
	Sharded              bool
	SupportsFleetCommand bool
	SupportsProbes       bool
}

func (e Entry) configKey() ConfigKeyShape {
	if e.Sharded {
		return shapeShardAndImage
	}
	return shapeImageOnly
}

// Catalog is an ordered, fixed list of service entries. Ordering is load
// bearing: the planner and executor walk services in catalog order so that
// plans and execution runs are stable across invocations.
type Catalog struct {
	order   []string
	entries map[string]Entry
}

// New builds a Catalog from an ordered list of entries. Order is preserved
// exactly as given; it is the order every downstream consumer (planner,
// executor, alarm reconciler) iterates services in.
func New(entries []Entry) *Catalog {
	c := &Catalog{
		order:   make([]string, 0, len(entries)),
		entries: make(map[string]Entry, len(entries)),
	}
	for _, e := range entries {
		c.order = append(c.order, e.Name)
		c.entries[e.Name] = e
	}
	return c
}

// Default is the fleet's built-in service catalog: the storage-service
// tiers (sharded metadata + unsharded storage/frontend/support services)
// that make up one deployment of the object-storage system this toolkit
// administers.
func Default() *Catalog {
	return New([]Entry{
		{Name: "nameservice", Sharded: false, SupportsFleetCommand: true, SupportsProbes: true},
		{Name: "postgres", Sharded: true, SupportsFleetCommand: true, SupportsProbes: true},
		{Name: "moray", Sharded: true, SupportsFleetCommand: true, SupportsProbes: true},
		{Name: "electric-moray", Sharded: false, SupportsFleetCommand: true, SupportsProbes: true},
		{Name: "storage", Sharded: false, SupportsFleetCommand: true, SupportsProbes: true},
		{Name: "medusa", Sharded: false, SupportsFleetCommand: true, SupportsProbes: true},
		{Name: "webapi", Sharded: false, SupportsFleetCommand: true, SupportsProbes: true},
		{Name: "loadbalancer", Sharded: false, SupportsFleetCommand: true, SupportsProbes: true},
		{Name: "ops", Sharded: false, SupportsFleetCommand: true, SupportsProbes: true},
		{Name: "madtom", Sharded: false, SupportsFleetCommand: true, SupportsProbes: false},
		{Name: "propeller", Sharded: false, SupportsFleetCommand: false, SupportsProbes: false},
	})
}

// IsValid reports whether name is a known service.
func (c *Catalog) IsValid(name string) bool {
	_, ok := c.entries[name]
	return ok
}

// IsSharded reports whether name requires a shard number as part of its
// config key. Panics if name is not in the catalog; callers are expected to
// validate with IsValid at input boundaries first.
func (c *Catalog) IsSharded(name string) bool {
	return c.mustEntry(name).Sharded
}

// SupportsFleetCommand reports whether instances of name can receive
// dispatched fleet commands.
func (c *Catalog) SupportsFleetCommand(name string) bool {
	return c.mustEntry(name).SupportsFleetCommand
}

// SupportsProbes reports whether instances of name are eligible for
// monitoring probes.
func (c *Catalog) SupportsProbes(name string) bool {
	return c.mustEntry(name).SupportsProbes
}

// ConfigKey returns the ordered property names making up name's config key.
func (c *Catalog) ConfigKey(name string) ConfigKeyShape {
	return c.mustEntry(name).configKey()
}

// All returns every service name, in catalog order.
func (c *Catalog) All() []string {
	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}

// ProbeTargets returns every service name that supports probes, in catalog
// order.
func (c *Catalog) ProbeTargets() []string {
	var out []string
	for _, name := range c.order {
		if c.entries[name].SupportsProbes {
			out = append(out, name)
		}
	}
	return out
}

// Index returns name's position in catalog order, or -1 if unknown. Used by
// the planner to sort operations into a stable, deterministic sequence.
func (c *Catalog) Index(name string) int {
	for i, n := range c.order {
		if n == name {
			return i
		}
	}
	return -1
}

func (c *Catalog) mustEntry(name string) Entry {
	e, ok := c.entries[name]
	if !ok {
		panic("catalog: unknown service " + name)
	}
	return e
}
