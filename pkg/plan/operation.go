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

// Package plan computes the ordered sequence of provision, deprovision, and
// reprovision operations needed to move an observed layout to a desired
// one. Plan is a pure function: no I/O, no goroutines, no randomness.
package plan

import "github.com/fleetops/fleetctl/pkg/inventory"

// Kind names the three operation variants a Plan is built from.
type Kind int

const (
	Provision Kind = iota
	Deprovision
	Reprovision
)

func (k Kind) String() string {
	switch k {
	case Provision:
		return "provision"
	case Deprovision:
		return "deprovision"
	case Reprovision:
		return "reprovision"
	default:
		return "unknown"
	}
}

// Operation is one step of a plan. Which fields are meaningful depends on
// Kind: Provision uses Service/ConfigKey/ComputeID; Deprovision uses
// Service/ConfigKey/InstanceID; Reprovision uses Service/InstanceID/
// OldImage/NewImage/Shard. ComputeID is also set on Deprovision and
// Reprovision (the bound instance's host compute) so the executor can lane
// operations of every kind by compute node.
type Operation struct {
	Kind      Kind
	Service   string
	ConfigKey inventory.ConfigKey
	ComputeID string // may be layout.AnyCompute on a Provision
	InstanceID string // Deprovision, Reprovision
	OldImage  string // Reprovision only
	NewImage  string // Reprovision only
	Shard     int    // Reprovision only, 0 if unsharded
	Reason    string
}
