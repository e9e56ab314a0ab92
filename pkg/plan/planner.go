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

package plan

import (
	"fmt"
	"sort"

	"github.com/fleetops/fleetctl/pkg/catalog"
	"github.com/fleetops/fleetctl/pkg/inventory"
	"github.com/fleetops/fleetctl/pkg/layout"
)

// Options restricts and tunes a single Plan call.
type Options struct {
	// Service, if non-empty, restricts planning to that one service; every
	// other service is left untouched.
	Service string
	// AllowReprovision lets matched provision/deprovision pairs within a
	// bucket collapse into a single Reprovision operation. When false,
	// every image change surfaces as a separate provision and deprovision.
	AllowReprovision bool
}

// Plan computes the ordered operations needed to move instances (the
// observed layout) to desired. It is a pure function of its inputs:
// given the same instances, desired, catalog, and options it always
// returns the same operations in the same order.
func Plan(instances []inventory.Instance, desired *layout.DesiredLayout, cat *catalog.Catalog, opts Options) ([]Operation, error) {
	if err := desired.Validate(cat); err != nil {
		return nil, err
	}

	var services []string
	if opts.Service != "" {
		if !cat.IsValid(opts.Service) {
			return nil, fmt.Errorf("plan: unknown service %q", opts.Service)
		}
		services = []string{opts.Service}
	} else {
		services = cat.All()
	}

	var ops []Operation
	for _, service := range services {
		svcOps, err := planService(service, instances, desired, cat, opts.AllowReprovision)
		if err != nil {
			return nil, err
		}
		ops = append(ops, svcOps...)
	}
	return ops, nil
}

func planService(service string, instances []inventory.Instance, desired *layout.DesiredLayout, cat *catalog.Catalog, allowReprovision bool) ([]Operation, error) {
	local := localInstancesOf(service, instances)
	sort.Slice(local, func(i, j int) bool {
		if local[i].Shard != local[j].Shard {
			return local[i].Shard < local[j].Shard
		}
		if local[i].Datacenter != local[j].Datacenter {
			return local[i].Datacenter < local[j].Datacenter
		}
		return local[i].InstanceID < local[j].InstanceID
	})

	used := map[string]bool{}
	sharded := cat.IsSharded(service)
	bind := func(computeConstraint string, key inventory.ConfigKey) (inventory.Instance, bool) {
		for _, inst := range local {
			if used[inst.InstanceID] {
				continue
			}
			instKey := inventory.ConfigKey{ImageID: inst.ImageID}
			if sharded {
				instKey.Shard = inst.Shard
			}
			if instKey != key {
				continue
			}
			if computeConstraint != "" && inst.HostCompute != computeConstraint {
				continue
			}
			used[inst.InstanceID] = true
			return inst, true
		}
		return inventory.Instance{}, false
	}

	svcDesired := desiredGroupsOf(service, desired)
	_, usesAny := svcDesired[layout.AnyCompute]

	if usesAny {
		return planAnyBucket(service, svcDesired[layout.AnyCompute], local, sharded, bind, allowReprovision)
	}
	return planSpecificBuckets(service, svcDesired, local, sharded, bind, allowReprovision)
}

func localInstancesOf(service string, instances []inventory.Instance) []inventory.Instance {
	var out []inventory.Instance
	for _, inst := range instances {
		if inst.ServiceName == service && inst.HostCompute != "" {
			out = append(out, inst)
		}
	}
	return out
}

// desiredGroupsOf extracts the computeId -> ConfigCounts view of a single
// service from the full desired layout.
func desiredGroupsOf(service string, desired *layout.DesiredLayout) map[string]layout.ConfigCounts {
	out := map[string]layout.ConfigCounts{}
	for computeID, byService := range desired.ByCompute {
		if counts, ok := byService[service]; ok {
			out[computeID] = counts
		}
	}
	return out
}

func observedByCompute(local []inventory.Instance, sharded bool) map[string]map[inventory.ConfigKey]int {
	out := map[string]map[inventory.ConfigKey]int{}
	for _, inst := range local {
		key := inventory.ConfigKey{ImageID: inst.ImageID}
		if sharded {
			key.Shard = inst.Shard
		}
		byKey, ok := out[inst.HostCompute]
		if !ok {
			byKey = map[inventory.ConfigKey]int{}
			out[inst.HostCompute] = byKey
		}
		byKey[key]++
	}
	return out
}

func sortedKeys(counts map[inventory.ConfigKey]int) []inventory.ConfigKey {
	out := make([]inventory.ConfigKey, 0, len(counts))
	for k := range counts {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Shard != out[j].Shard {
			return out[i].Shard < out[j].Shard
		}
		return out[i].ImageID < out[j].ImageID
	})
	return out
}

func unionKeys(a, b map[inventory.ConfigKey]int) []inventory.ConfigKey {
	merged := map[inventory.ConfigKey]int{}
	for k := range a {
		merged[k] = 0
	}
	for k := range b {
		merged[k] = 0
	}
	return sortedKeys(merged)
}

type bindFunc func(computeConstraint string, key inventory.ConfigKey) (inventory.Instance, bool)

func planAnyBucket(service string, desiredCounts layout.ConfigCounts, local []inventory.Instance, sharded bool, bind bindFunc, allowReprovision bool) ([]Operation, error) {
	observedTotal := map[inventory.ConfigKey]int{}
	byCompute := observedByCompute(local, sharded)
	for _, byKey := range byCompute {
		for k, c := range byKey {
			observedTotal[k] += c
		}
	}

	var bucket []Operation
	for _, key := range unionKeys(map[inventory.ConfigKey]int(desiredCounts), observedTotal) {
		diff := desiredCounts[key] - observedTotal[key]
		switch {
		case diff > 0:
			for i := 0; i < diff; i++ {
				bucket = append(bucket, Operation{
					Kind: Provision, Service: service, ConfigKey: key,
					ComputeID: layout.AnyCompute, Reason: "scale up",
				})
			}
		case diff < 0:
			for i := 0; i < -diff; i++ {
				inst, ok := bind("", key)
				if !ok {
					return nil, fmt.Errorf("plan: %s: could not bind deprovision for config key %+v", service, key)
				}
				bucket = append(bucket, Operation{
					Kind: Deprovision, Service: service, ConfigKey: key,
					InstanceID: inst.InstanceID, ComputeID: inst.HostCompute, Reason: "scale down",
				})
			}
		}
	}
	return orderBucket(service, bucket, allowReprovision), nil
}

func planSpecificBuckets(service string, svcDesired map[string]layout.ConfigCounts, local []inventory.Instance, sharded bool, bind bindFunc, allowReprovision bool) ([]Operation, error) {
	byCompute := observedByCompute(local, sharded)

	computeSet := map[string]bool{}
	for c := range svcDesired {
		computeSet[c] = true
	}
	for c := range byCompute {
		computeSet[c] = true
	}
	var computes []string
	for c := range computeSet {
		computes = append(computes, c)
	}
	sort.Strings(computes)

	var ops []Operation
	for _, computeID := range computes {
		group, hasGroup := svcDesired[computeID]
		obs := byCompute[computeID]

		var bucket []Operation
		if !hasGroup {
			for _, key := range sortedKeys(obs) {
				for i := 0; i < obs[key]; i++ {
					inst, ok := bind(computeID, key)
					if !ok {
						return nil, fmt.Errorf("plan: %s: could not bind deprovision on %s for config key %+v", service, computeID, key)
					}
					bucket = append(bucket, Operation{
						Kind: Deprovision, Service: service, ConfigKey: key,
						InstanceID: inst.InstanceID, ComputeID: inst.HostCompute, Reason: "compute not present in desired layout",
					})
				}
			}
		} else {
			for _, key := range unionKeys(map[inventory.ConfigKey]int(group), obs) {
				diff := group[key] - obs[key]
				switch {
				case diff > 0:
					for i := 0; i < diff; i++ {
						bucket = append(bucket, Operation{
							Kind: Provision, Service: service, ConfigKey: key,
							ComputeID: computeID, Reason: "scale up",
						})
					}
				case diff < 0:
					for i := 0; i < -diff; i++ {
						inst, ok := bind(computeID, key)
						if !ok {
							return nil, fmt.Errorf("plan: %s: could not bind deprovision on %s for config key %+v", service, computeID, key)
						}
						bucket = append(bucket, Operation{
							Kind: Deprovision, Service: service, ConfigKey: key,
							InstanceID: inst.InstanceID, ComputeID: inst.HostCompute, Reason: "scale down",
						})
					}
				}
			}
		}
		ops = append(ops, orderBucket(service, bucket, allowReprovision)...)
	}
	return ops, nil
}

// orderBucket applies the per-(service,compute) ordering rules: partition
// by config-key prefix (shard), optionally pair provisions with
// deprovisions into reprovisions, then interleave the remainder.
func orderBucket(service string, bucket []Operation, allowReprovision bool) []Operation {
	partitions := map[int][]Operation{}
	var shards []int
	for _, op := range bucket {
		s := op.ConfigKey.Shard
		if _, ok := partitions[s]; !ok {
			shards = append(shards, s)
		}
		partitions[s] = append(partitions[s], op)
	}
	sort.Ints(shards)

	var out []Operation
	for _, shard := range shards {
		var provs, deprovs []Operation
		for _, op := range partitions[shard] {
			switch op.Kind {
			case Provision:
				provs = append(provs, op)
			case Deprovision:
				deprovs = append(deprovs, op)
			}
		}

		if allowReprovision {
			for len(provs) > 0 && len(deprovs) > 0 {
				p := provs[0]
				d := deprovs[0]
				provs = provs[1:]
				deprovs = deprovs[1:]
				out = append(out, Operation{
					Kind:       Reprovision,
					Service:    service,
					InstanceID: d.InstanceID,
					ComputeID:  d.ComputeID,
					OldImage:   d.ConfigKey.ImageID,
					NewImage:   p.ConfigKey.ImageID,
					Shard:      shard,
					Reason:     "image upgrade",
				})
			}
		}

		for len(provs) > 0 || len(deprovs) > 0 {
			if len(provs) > 0 {
				out = append(out, provs[0])
				provs = provs[1:]
			}
			if len(deprovs) > 0 {
				out = append(out, deprovs[0])
				deprovs = deprovs[1:]
			}
		}
	}
	return out
}
