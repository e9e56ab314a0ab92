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

// Package alarm reconciles monitoring probe-groups and probes against a
// local table of event templates and the current fleet inventory.
package alarm

import "context"

// ProbeGroup is a monitoring grouping of related probes.
type ProbeGroup struct {
	UUID         string
	Name         string
	OwnerAccount string
	Enabled      bool
	Contacts     []string
}

// Probe is a single monitoring check bound to an agent (the instance or
// compute node that runs it) and, optionally, a machine (the subject of
// the check, when it differs from the agent — e.g. a checkFrom probe).
type Probe struct {
	UUID        string
	Name        string
	Type        string
	Config      map[string]string
	Agent       string
	Machine     string
	GroupID     string
	GroupName   string // set during planning; resolved into GroupID at apply time for newly created groups
	GroupEvents []string
	Contacts    []string
}

// Check is one failure-mode assertion an event template contributes to
// every probe it generates.
type Check struct {
	Type string
	// Config is merged verbatim into each generated probe's opaque config.
	Config map[string]string
	// AutoEnv names instance-metadata keys to copy into the probe's
	// environment (stored in the probe's config under the "env" key).
	AutoEnv []string
}

// Scope selects which instances/compute nodes an event template's probes
// attach to. Exactly one of Service (alone), Global, Each, All, or
// CheckFrom should be meaningfully set; see buildWanted for the precise
// precedence.
type Scope struct {
	Service   string
	Global    bool
	Each      bool
	All       bool
	CheckFrom string
}

// KnowledgeArticle is the operator-facing documentation attached to an
// event template.
type KnowledgeArticle struct {
	Severity    string // "minor", "major", "critical"
	Title       string
	Description string
	Impact      string
	Response    string
	Action      string
}

// EventTemplate is one locally-defined failure mode and the probes it
// expands into.
type EventTemplate struct {
	EventClass   string
	Scope        Scope
	Checks       []Check
	Article      KnowledgeArticle
	OwnerAccount string
	Contacts     []string
}

// Upstream is the monitoring system's API surface: list deployed state,
// create/delete groups and probes.
type Upstream interface {
	ListDeployedGroups(ctx context.Context) ([]ProbeGroup, error)
	ListDeployedProbes(ctx context.Context, groupID string) ([]Probe, error)
	CreateGroup(ctx context.Context, group ProbeGroup) (id string, err error)
	DeleteGroup(ctx context.Context, id string) error
	CreateProbe(ctx context.Context, probe Probe) (id string, err error)
	DeleteProbe(ctx context.Context, id string) error
}

// AliasTable names the short alias used in probe-group names generated for
// "each" scoped templates.
type AliasTable map[string]string

// Alias returns service's alias, or service itself if no alias is
// registered.
func (t AliasTable) Alias(service string) string {
	if a, ok := t[service]; ok {
		return a
	}
	return service
}

// DefaultAliases is the fleet's built-in per-service naming shorthand.
func DefaultAliases() AliasTable {
	return AliasTable{
		"nameservice":    "ns",
		"postgres":       "pg",
		"moray":          "moray",
		"electric-moray": "emoray",
		"storage":        "mako",
		"medusa":         "medusa",
		"webapi":         "muskie",
		"loadbalancer":   "lb",
		"ops":            "ops",
		"madtom":         "madtom",
	}
}
