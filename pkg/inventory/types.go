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

// Package inventory assembles a consistent, read-only view of the fleet
// from the upstream application/service registry, VM inventory,
// compute-node inventory, and image registry.
package inventory

import (
	"fmt"
	"strconv"
	"strings"
)

// Instance is a single service member.
type Instance struct {
	InstanceID    string
	ServiceName   string
	HostCompute   string // empty means "in another datacenter"
	PrimaryAddress string
	ImageID       string
	Shard         int // only meaningful if the service is sharded
	Datacenter    string
	Metadata      map[string]string
	StorageID     string // only set for storage-service instances
}

// ComputeNode is a physical host carrying zero or more instances.
type ComputeNode struct {
	ComputeID             string
	Hostname              string
	Datacenter            string
	AdministrativeAddress string
	RAM                   int64
	IsStorageHost         bool
	StorageIDs            []string
}

// Image is a named, versioned software image.
type Image struct {
	ImageID string
	Version string
}

// Snapshot is the normalized, read-only view of the fleet produced by
// Load. It is constructed once per invocation and never mutated afterward.
type Snapshot struct {
	Application string
	Account     string

	Instances []Instance
	Computes  map[string]ComputeNode // keyed by ComputeID
	Images    map[string]Image       // keyed by ImageID

	// ByConfigKey is a per-service counter: serviceName -> computeId (or ""
	// for the cross-CN total) -> config key -> count.
	ByConfigKey map[string]map[string]map[ConfigKey]int
}

// ConfigKey identifies a variant of a service: image alone for unsharded
// services, or shard+image for sharded ones.
type ConfigKey struct {
	Shard   int // zero for unsharded services
	ImageID string
}

// MarshalText renders the key as "imageId", or "shard/imageId" when
// sharded, so ConfigKey can be used as a JSON object key (encoding/json
// only accepts string-keyed maps directly from the Go map type, but falls
// back to encoding.TextMarshaler for any other comparable key type).
func (k ConfigKey) MarshalText() ([]byte, error) {
	if k.Shard == 0 {
		return []byte(k.ImageID), nil
	}
	return []byte(fmt.Sprintf("%d/%s", k.Shard, k.ImageID)), nil
}

// UnmarshalText reverses MarshalText.
func (k *ConfigKey) UnmarshalText(text []byte) error {
	s := string(text)
	if idx := strings.IndexByte(s, '/'); idx >= 0 {
		shard, err := strconv.Atoi(s[:idx])
		if err != nil {
			return fmt.Errorf("inventory: invalid config key %q: %w", s, err)
		}
		k.Shard = shard
		k.ImageID = s[idx+1:]
		return nil
	}
	k.Shard = 0
	k.ImageID = s
	return nil
}

// InstancesOf returns every instance of the named service, in the order
// they appear in the snapshot.
func (s *Snapshot) InstancesOf(service string) []Instance {
	var out []Instance
	for _, inst := range s.Instances {
		if inst.ServiceName == service {
			out = append(out, inst)
		}
	}
	return out
}

// InstancesOnCompute returns every instance hosted on computeID.
func (s *Snapshot) InstancesOnCompute(computeID string) []Instance {
	var out []Instance
	for _, inst := range s.Instances {
		if inst.HostCompute == computeID {
			out = append(out, inst)
		}
	}
	return out
}

// ComputesForService returns the distinct, sorted-by-first-seen set of
// compute IDs hosting at least one instance of service.
func (s *Snapshot) ComputesForService(service string) []string {
	seen := map[string]bool{}
	var out []string
	for _, inst := range s.Instances {
		if inst.ServiceName != service || inst.HostCompute == "" {
			continue
		}
		if !seen[inst.HostCompute] {
			seen[inst.HostCompute] = true
			out = append(out, inst.HostCompute)
		}
	}
	return out
}
