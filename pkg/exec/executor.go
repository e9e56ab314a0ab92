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

// Package exec runs a plan against a provisioning backend: one service at a
// time, in catalog order, with per-(service, compute) lanes executing in
// parallel and operations within a lane executing sequentially.
package exec

import (
	"context"
	"fmt"
	"io"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/fleetops/fleetctl/internal/errutil"
	"github.com/fleetops/fleetctl/pkg/catalog"
	"github.com/fleetops/fleetctl/pkg/cmdutil"
	"github.com/fleetops/fleetctl/pkg/plan"
)

// Backend is the provisioning collaborator the executor drives. Each call
// is expected to be atomic from the executor's point of view.
type Backend interface {
	Provision(ctx context.Context, service, image, computeID string, shard int) (instanceID string, err error)
	Deprovision(ctx context.Context, instanceID string) error
	Reprovision(ctx context.Context, instanceID, newImage string) error
}

// Options tunes one Execute call.
type Options struct {
	DryRun bool
	// Confirm, if set, is asked for permission before a non-dry-run starts.
	// It is never consulted in dry-run mode.
	Confirm func() (bool, error)
}

// Executor runs plans against a Backend, rendering progress to Out and
// lane failures to Err.
type Executor struct {
	Backend Backend
	Catalog *catalog.Catalog
	Out     io.Writer
	Err     io.Writer
}

// Execute runs ops against e.Backend and returns the count of operations
// actually applied (0 in dry-run mode). A lane failure aborts only that
// (service, compute) lane; other lanes continue, and all lane errors are
// combined into the returned error.
func (e *Executor) Execute(ctx context.Context, ops []plan.Operation, opts Options) (int, error) {
	if len(ops) == 0 {
		return 0, nil
	}

	if opts.DryRun {
		for _, op := range ops {
			fmt.Fprintln(e.Out, renderOp(op))
		}
		return 0, nil
	}

	if opts.Confirm != nil {
		ok, err := opts.Confirm()
		if err != nil {
			return 0, err
		}
		if !ok {
			return 0, fmt.Errorf("exec: execution not confirmed")
		}
	}

	byService := groupByService(ops)
	var applied int
	var errs errutil.MultiError
	for _, service := range e.Catalog.All() {
		svcOps, ok := byService[service]
		if !ok {
			continue
		}
		n, err := e.executeService(ctx, service, svcOps)
		applied += n
		if err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return applied, errs
	}
	return applied, nil
}

func groupByService(ops []plan.Operation) map[string][]plan.Operation {
	out := map[string][]plan.Operation{}
	for _, op := range ops {
		out[op.Service] = append(out[op.Service], op)
	}
	return out
}

// executeService fans operations for one service out into per-compute
// lanes and runs the lanes concurrently, returning the applied count and a
// combined error across all failing lanes.
func (e *Executor) executeService(ctx context.Context, service string, ops []plan.Operation) (int, error) {
	lanes := groupByLane(ops)

	var mu sync.Mutex
	applied := 0
	var errs errutil.MultiError
	var g errgroup.Group
	for lane, laneOps := range lanes {
		lane, laneOps := lane, laneOps
		g.Go(func() error {
			n, err := e.executeLane(ctx, lane, laneOps)
			mu.Lock()
			applied += n
			if err != nil {
				errs = append(errs, err)
			}
			mu.Unlock()
			return nil
		})
	}
	g.Wait()
	if len(errs) > 0 {
		return applied, errs
	}
	return applied, nil
}

func groupByLane(ops []plan.Operation) map[string][]plan.Operation {
	out := map[string][]plan.Operation{}
	for _, op := range ops {
		lane := laneKey(op)
		out[lane] = append(out[lane], op)
	}
	return out
}

func laneKey(op plan.Operation) string {
	return op.ComputeID
}

// executeLane runs laneOps against the backend sequentially, stopping at
// the first failure — failures abort only this lane.
func (e *Executor) executeLane(ctx context.Context, lane string, laneOps []plan.Operation) (int, error) {
	applied := 0
	for _, op := range laneOps {
		if err := e.apply(ctx, op); err != nil {
			fmt.Fprintf(e.Err, "lane %s: %s: %v\n", lane, renderOp(op), err)
			return applied, fmt.Errorf("lane %s: %w", lane, err)
		}
		applied++
		fmt.Fprintln(e.Out, renderOp(op))
	}
	return applied, nil
}

func (e *Executor) apply(ctx context.Context, op plan.Operation) error {
	switch op.Kind {
	case plan.Provision:
		_, err := e.Backend.Provision(ctx, op.Service, op.ConfigKey.ImageID, op.ComputeID, op.ConfigKey.Shard)
		return err
	case plan.Deprovision:
		return e.Backend.Deprovision(ctx, op.InstanceID)
	case plan.Reprovision:
		return e.Backend.Reprovision(ctx, op.InstanceID, op.NewImage)
	default:
		return fmt.Errorf("exec: unknown operation kind %v", op.Kind)
	}
}

// NewConfirm builds a Confirm hook that reads a y/N answer from r, writing
// the prompt to w — the same confirmation idiom used throughout the rest
// of the fleet command-line surface.
func NewConfirm(r io.Reader, w io.Writer, msg string) func() (bool, error) {
	return func() (bool, error) {
		return cmdutil.Confirm(r, w, msg)
	}
}
