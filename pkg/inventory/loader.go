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

package inventory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/fleetops/fleetctl/pkg/catalog"
)

const (
	// FleetApplicationName is the well-known application name the loader
	// looks the fleet application up by.
	FleetApplicationName = "manta"
	// FleetMembershipTag is the VM tag active VMs must carry to be counted
	// as fleet members.
	FleetMembershipTag = "manta_role"
	// StorageServiceName is the service whose instances contribute to a
	// compute node's IsStorageHost/StorageIDs derived fields.
	StorageServiceName = "storage"
)

// DefaultFanOut is the default bound on concurrent upstream lookups issued
// while resolving compute nodes and images.
const DefaultFanOut = 50

// Loader loads a Snapshot from an Upstream, validating it against a
// service Catalog along the way.
type Loader struct {
	Upstream Upstream
	Catalog  *catalog.Catalog
	// FanOut bounds concurrent per-CN and per-image upstream lookups.
	// Zero means DefaultFanOut.
	FanOut int
}

// Load fetches and joins application, service, instance, VM, compute-node,
// and image records into a Snapshot. Upstream failures are fatal except
// where explicitly tolerated (missing compute nodes, missing images).
func (l *Loader) Load(ctx context.Context) (*Snapshot, error) {
	app, err := l.Upstream.GetApplication(ctx, FleetApplicationName)
	if err != nil {
		return nil, fmt.Errorf("inventory: load application %q: %w", FleetApplicationName, err)
	}

	services, err := l.Upstream.ListServices(ctx, app)
	if err != nil {
		return nil, fmt.Errorf("inventory: list services: %w", err)
	}
	for _, svc := range services {
		if !l.Catalog.IsValid(svc.Name) {
			return nil, fmt.Errorf("inventory: unknown service %q in registry", svc.Name)
		}
	}

	declared, err := l.Upstream.ListInstances(ctx, app)
	if err != nil {
		return nil, fmt.Errorf("inventory: list instances: %w", err)
	}

	vms, err := l.Upstream.ListActiveVMs(ctx, app.Account, FleetMembershipTag)
	if err != nil {
		return nil, fmt.Errorf("inventory: list active VMs: %w", err)
	}

	merged, err := mergeInstanceRecords(declared, vms)
	if err != nil {
		return nil, err
	}
	for _, rec := range merged {
		if !l.Catalog.IsValid(rec.ServiceName) {
			return nil, fmt.Errorf("inventory: unknown service %q on instance %q", rec.ServiceName, rec.InstanceID)
		}
	}

	computeIDs := distinctComputeIDs(merged)
	computes, err := l.loadComputes(ctx, computeIDs)
	if err != nil {
		return nil, err
	}

	imageIDs := distinctImageIDs(merged)
	images, err := l.loadImages(ctx, imageIDs)
	if err != nil {
		return nil, err
	}

	instances, err := buildInstances(merged, l.Catalog)
	if err != nil {
		return nil, err
	}
	annotateStorageHosts(instances, computes)

	snap := &Snapshot{
		Application: app.Name,
		Account:     app.Account,
		Instances:   instances,
		Computes:    computes,
		Images:      images,
	}
	snap.ByConfigKey = buildConfigKeyIndex(instances, l.Catalog)
	return snap, nil
}

// mergeInstanceRecords joins the registry's declared instance list against
// the VM inventory by instance id, failing on duplicate instance ids.
func mergeInstanceRecords(declared, vms []VMRecord) ([]VMRecord, error) {
	byID := make(map[string]VMRecord, len(declared))
	order := make([]string, 0, len(declared))
	for _, d := range declared {
		if _, dup := byID[d.InstanceID]; dup {
			return nil, fmt.Errorf("inventory: duplicate instance id %q", d.InstanceID)
		}
		byID[d.InstanceID] = d
		order = append(order, d.InstanceID)
	}
	for _, v := range vms {
		existing, ok := byID[v.InstanceID]
		if !ok {
			// A VM tagged as fleet membership but not declared under the
			// application: still a fleet member, just not pre-declared.
			byID[v.InstanceID] = v
			order = append(order, v.InstanceID)
			continue
		}
		existing.ServerID = v.ServerID
		existing.ImageID = v.ImageID
		existing.PrimaryAddress = v.PrimaryAddress
		if existing.Metadata == nil {
			existing.Metadata = v.Metadata
		} else {
			for k, val := range v.Metadata {
				existing.Metadata[k] = val
			}
		}
		byID[v.InstanceID] = existing
	}
	out := make([]VMRecord, 0, len(order))
	for _, id := range order {
		out = append(out, byID[id])
	}
	return out, nil
}

func distinctComputeIDs(recs []VMRecord) []string {
	seen := map[string]bool{}
	var out []string
	for _, r := range recs {
		if r.ServerID == "" || seen[r.ServerID] {
			continue
		}
		seen[r.ServerID] = true
		out = append(out, r.ServerID)
	}
	return out
}

func distinctImageIDs(recs []VMRecord) []string {
	seen := map[string]bool{}
	var out []string
	for _, r := range recs {
		if r.ImageID == "" || seen[r.ImageID] {
			continue
		}
		seen[r.ImageID] = true
		out = append(out, r.ImageID)
	}
	return out
}

func (l *Loader) fanOut() int {
	if l.FanOut > 0 {
		return l.FanOut
	}
	return DefaultFanOut
}

// loadComputes resolves compute-node records for every distinct hosting
// compute id, tolerating ErrNotFound (recorded as "remote"/absent from the
// map) but failing fast on any other upstream error.
func (l *Loader) loadComputes(ctx context.Context, ids []string) (map[string]ComputeNode, error) {
	out := make(map[string]ComputeNode, len(ids))
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.fanOut())
	for _, id := range ids {
		id := id
		g.Go(func() error {
			rec, err := l.Upstream.GetComputeNode(gctx, id)
			if errors.Is(err, ErrNotFound) {
				return nil
			}
			if err != nil {
				return fmt.Errorf("inventory: get compute node %q: %w", id, err)
			}
			mu.Lock()
			defer mu.Unlock()
			out[id] = ComputeNode{
				ComputeID:             rec.ComputeID,
				Hostname:              rec.Hostname,
				Datacenter:            rec.Datacenter,
				AdministrativeAddress: rec.AdministrativeAddress,
				RAM:                   rec.RAM,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// loadImages resolves image records best-effort: a missing image yields
// version "-" rather than failing the load.
func (l *Loader) loadImages(ctx context.Context, ids []string) (map[string]Image, error) {
	out := make(map[string]Image, len(ids))
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.fanOut())
	for _, id := range ids {
		id := id
		g.Go(func() error {
			rec, err := l.Upstream.GetImage(gctx, id)
			img := Image{ImageID: id, Version: "-"}
			if err == nil {
				img.Version = rec.Version
			} else if !errors.Is(err, ErrNotFound) {
				return fmt.Errorf("inventory: get image %q: %w", id, err)
			}
			mu.Lock()
			defer mu.Unlock()
			out[id] = img
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func buildInstances(recs []VMRecord, cat *catalog.Catalog) ([]Instance, error) {
	out := make([]Instance, 0, len(recs))
	for _, r := range recs {
		inst := Instance{
			InstanceID:     r.InstanceID,
			ServiceName:    r.ServiceName,
			HostCompute:    r.ServerID,
			PrimaryAddress: r.PrimaryAddress,
			ImageID:        r.ImageID,
			Datacenter:     r.Datacenter,
			Metadata:       r.Metadata,
		}
		if cat.IsSharded(r.ServiceName) {
			shard, err := shardFromMetadata(r.Metadata)
			if err != nil {
				return nil, fmt.Errorf("inventory: instance %q: %w", r.InstanceID, err)
			}
			inst.Shard = shard
		}
		if r.ServiceName == StorageServiceName {
			inst.StorageID = r.Metadata["datasetId"]
		}
		out = append(out, inst)
	}
	return out, nil
}

func shardFromMetadata(md map[string]string) (int, error) {
	raw, ok := md["shard"]
	if !ok {
		return 0, errors.New("missing shard metadata on sharded service instance")
	}
	var shard int
	if _, err := fmt.Sscanf(raw, "%d", &shard); err != nil {
		return 0, fmt.Errorf("invalid shard metadata %q: %w", raw, err)
	}
	return shard, nil
}

func annotateStorageHosts(instances []Instance, computes map[string]ComputeNode) {
	storageIDs := map[string][]string{}
	for _, inst := range instances {
		if inst.ServiceName != StorageServiceName || inst.HostCompute == "" {
			continue
		}
		storageIDs[inst.HostCompute] = append(storageIDs[inst.HostCompute], inst.StorageID)
	}
	for id, ids := range storageIDs {
		cn, ok := computes[id]
		if !ok {
			continue
		}
		cn.IsStorageHost = true
		cn.StorageIDs = ids
		computes[id] = cn
	}
}

func buildConfigKeyIndex(instances []Instance, cat *catalog.Catalog) map[string]map[string]map[ConfigKey]int {
	idx := map[string]map[string]map[ConfigKey]int{}
	for _, inst := range instances {
		key := ConfigKey{ImageID: inst.ImageID}
		if cat.IsSharded(inst.ServiceName) {
			key.Shard = inst.Shard
		}
		bump(idx, inst.ServiceName, inst.HostCompute, key)
		bump(idx, inst.ServiceName, "", key) // cross-CN total
	}
	return idx
}

func bump(idx map[string]map[string]map[ConfigKey]int, service, compute string, key ConfigKey) {
	byCompute, ok := idx[service]
	if !ok {
		byCompute = map[string]map[ConfigKey]int{}
		idx[service] = byCompute
	}
	byKey, ok := byCompute[compute]
	if !ok {
		byKey = map[ConfigKey]int{}
		byCompute[compute] = byKey
	}
	byKey[key]++
}
