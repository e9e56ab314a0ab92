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
)

// ErrNotFound is returned by Upstream methods for lookups that are allowed
// to come back empty (CN records, images) without failing the load.
var ErrNotFound = errors.New("inventory: not found")

// Application is the fleet's owning application record, as returned by the
// registry.
type Application struct {
	Name    string
	Account string
	// Metadata holds application-level properties, including the
	// coordination-ring property read/written by pkg/ring.
	Metadata map[string]string
}

// ServiceRecord is one service under the fleet application, as the registry
// reports it.
type ServiceRecord struct {
	Name string
}

// VMRecord is an active or destroyed VM as the VM inventory reports it.
type VMRecord struct {
	ServerID string // hosting compute-node id
	ImageID  string
	Metadata map[string]string // includes shard number, coordination identifiers
	// PrimaryAddress is the VM's primary network address, when assigned.
	PrimaryAddress string
	ServiceName    string
	InstanceID     string
	Datacenter     string
	Tags           []string
}

// CNRecord is a compute-node sysinfo record.
type CNRecord struct {
	ComputeID             string
	Hostname              string
	Datacenter            string
	AdministrativeAddress string
	RAM                   int64
}

// ImageRecord is an image-registry entry.
type ImageRecord struct {
	ImageID string
	Version string
}

// Upstream is the set of read-only upstream APIs the loader consumes:
// the application/service registry, the VM inventory, the compute-node
// inventory, and the image registry. Each is treated as an opaque external
// collaborator — the core only ever reads from it.
type Upstream interface {
	// GetApplication looks up the fleet application by its well-known name.
	GetApplication(ctx context.Context, name string) (Application, error)
	// ListServices lists every service declared under app.
	ListServices(ctx context.Context, app Application) ([]ServiceRecord, error)
	// ListInstances lists every instance record declared under app.
	ListInstances(ctx context.Context, app Application) ([]VMRecord, error)
	// ListActiveVMs lists active VMs owned by account and tagged with tag.
	ListActiveVMs(ctx context.Context, account, tag string) ([]VMRecord, error)
	// GetComputeNode looks up a compute node by id. Returns ErrNotFound if
	// the compute node is not known locally (e.g. it lives in another
	// datacenter); the loader tolerates that and records the instance as
	// remote.
	GetComputeNode(ctx context.Context, computeID string) (CNRecord, error)
	// GetImage looks up an image by id. Returns ErrNotFound if the image is
	// not known; the loader tolerates that and records version "-".
	GetImage(ctx context.Context, imageID string) (ImageRecord, error)
}
