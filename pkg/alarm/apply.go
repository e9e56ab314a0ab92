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

package alarm

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/fleetops/fleetctl/internal/errutil"
)

// Apply runs plan's phases in order: delete stale probes, delete stale
// groups, create new groups, create new probes. Each phase uses a
// bounded-concurrency worker pool; failures within a phase are collected
// and combined, but never stop later phases from running — a group
// creation failure just means its probes fail to create too, and that
// failure surfaces in its own right.
func (r *Reconciler) Apply(ctx context.Context, plan *UpdatePlan) error {
	var allErrs errutil.MultiError

	if err := r.runPhase(ctx, len(plan.RemoveProbes), func(i int) error {
		return r.Upstream.DeleteProbe(ctx, plan.RemoveProbes[i].UUID)
	}); err != nil {
		allErrs = append(allErrs, fmt.Errorf("delete probes: %w", err))
	}

	if err := r.runPhase(ctx, len(plan.RemoveGroups), func(i int) error {
		return r.Upstream.DeleteGroup(ctx, plan.RemoveGroups[i].UUID)
	}); err != nil {
		allErrs = append(allErrs, fmt.Errorf("delete groups: %w", err))
	}

	index := map[string]string{} // group name -> server-assigned id
	var indexMu sync.Mutex
	if err := r.runPhase(ctx, len(plan.CreateGroups), func(i int) error {
		id, err := r.Upstream.CreateGroup(ctx, plan.CreateGroups[i])
		if err != nil {
			return err
		}
		indexMu.Lock()
		index[plan.CreateGroups[i].Name] = id
		indexMu.Unlock()
		return nil
	}); err != nil {
		allErrs = append(allErrs, fmt.Errorf("create groups: %w", err))
	}

	if err := r.runPhase(ctx, len(plan.CreateProbes), func(i int) error {
		probe := plan.CreateProbes[i]
		if probe.GroupID == "" && probe.GroupName != "" {
			id, ok := index[probe.GroupName]
			if !ok {
				return fmt.Errorf("probe %s: group %s was not created", probe.Name, probe.GroupName)
			}
			probe.GroupID = id
		}
		_, err := r.Upstream.CreateProbe(ctx, probe)
		return err
	}); err != nil {
		allErrs = append(allErrs, fmt.Errorf("create probes: %w", err))
	}

	if len(allErrs) > 0 {
		return allErrs
	}
	return nil
}

// runPhase runs n independent indexed calls to fn with bounded
// concurrency, combining any per-call failures into one error.
func (r *Reconciler) runPhase(ctx context.Context, n int, fn func(i int) error) error {
	if n == 0 {
		return nil
	}
	var g errgroup.Group
	g.SetLimit(r.fanOut())
	var mu sync.Mutex
	var errs errutil.MultiError
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			if err := fn(i); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	g.Wait()
	if len(errs) > 0 {
		return errs
	}
	return nil
}
