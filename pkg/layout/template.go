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

package layout

import (
	"fmt"

	"github.com/fleetops/fleetctl/pkg/catalog"
	"github.com/fleetops/fleetctl/pkg/inventory"
)

// templateCounts is the hard-coded per-service instance count for a named
// template. Sharded services get one shard per count.
var templateCounts = map[string]map[string]int{
	"standalone": {
		"nameservice":    1,
		"postgres":       1,
		"moray":          1,
		"electric-moray": 1,
		"storage":        1,
		"medusa":         1,
		"webapi":         1,
		"loadbalancer":   1,
		"ops":            1,
	},
	"development": {
		"nameservice":    1,
		"postgres":       2,
		"moray":          2,
		"electric-moray": 1,
		"storage":        2,
		"medusa":         1,
		"webapi":         2,
		"loadbalancer":   1,
		"ops":            1,
		"madtom":         1,
	},
}

// GenerateTemplate builds a DesiredLayout from a named template
// ("standalone" or "development"), assigning every instance to the single
// head compute node found in snap. It fails if the head node cannot be
// uniquely identified, if the template name is unknown, or if any templated
// service has no image recorded in the snapshot.
func GenerateTemplate(name string, snap *inventory.Snapshot, cat *catalog.Catalog) (*DesiredLayout, error) {
	counts, ok := templateCounts[name]
	if !ok {
		return nil, fmt.Errorf("layout: unknown template %q", name)
	}
	head, err := headCompute(snap)
	if err != nil {
		return nil, err
	}

	layout := New()
	for _, service := range cat.All() {
		n, wanted := counts[service]
		if !wanted || n == 0 {
			continue
		}
		imageID, err := headImageFor(snap, service)
		if err != nil {
			return nil, err
		}
		if cat.IsSharded(service) {
			for shard := 1; shard <= n; shard++ {
				layout.Add(head, service, inventory.ConfigKey{Shard: shard, ImageID: imageID}, 1)
			}
			continue
		}
		layout.Add(head, service, inventory.ConfigKey{ImageID: imageID}, n)
	}
	return layout, nil
}

// headCompute identifies the single compute node a template layout should
// target. A template deployment is expected to have exactly one compute
// node in inventory; more or fewer is an error.
func headCompute(snap *inventory.Snapshot) (string, error) {
	switch len(snap.Computes) {
	case 0:
		return "", fmt.Errorf("layout: no compute node found for template generation")
	case 1:
		for id := range snap.Computes {
			return id, nil
		}
	}
	return "", fmt.Errorf("layout: template generation requires exactly one compute node, found %d", len(snap.Computes))
}

// headImageFor picks the image id a templated service should use: the image
// already running an instance of that service, if any, else any one image
// from snap.Images. Which image is picked when several are known is not
// defined, and versions are not compared. Fails if no image can be
// determined.
func headImageFor(snap *inventory.Snapshot, service string) (string, error) {
	for _, inst := range snap.Instances {
		if inst.ServiceName == service && inst.ImageID != "" {
			return inst.ImageID, nil
		}
	}
	for id := range snap.Images {
		return id, nil
	}
	return "", fmt.Errorf("layout: no image available for service %q", service)
}
