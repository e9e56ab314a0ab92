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

package fleet

import (
	"context"
	"sync"
	"testing"
	"time"
)

// scriptedBroker resolves each target after a fixed delay, or never replies
// if no delay is scripted for it — letting the caller's per-target timeout
// fire instead.
type scriptedBroker struct {
	delays map[string]time.Duration
	exit   map[string]int
}

func (b *scriptedBroker) Dispatch(ctx context.Context, target Target, op Op) (Result, error) {
	delay, scripted := b.delays[target.InstanceID]
	if !scripted {
		<-ctx.Done()
		return Result{}, ctx.Err()
	}
	select {
	case <-time.After(delay):
		exit := b.exit[target.InstanceID]
		status := StatusOK
		if exit != 0 {
			status = StatusNonzero
		}
		return Result{Target: target, Status: status, ExitStatus: exit}, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

func TestDispatchStreamsResultsInCompletionOrder(t *testing.T) {
	targets := []Target{
		{InstanceID: "ok-1"},
		{InstanceID: "nonzero-1"},
		{InstanceID: "hung-1"},
	}
	broker := &scriptedBroker{
		delays: map[string]time.Duration{"ok-1": 10 * time.Millisecond, "nonzero-1": 20 * time.Millisecond},
		exit:   map[string]int{"nonzero-1": 1},
	}
	d := &Dispatcher{Broker: broker, Concurrency: 2, Timeout: 60 * time.Millisecond}

	out := d.Run(context.Background(), targets, Op{Kind: OpCommand, Command: "true"}, true)

	var results []Result
	for r := range out {
		results = append(results, r)
	}

	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	wantOrder := []Status{StatusOK, StatusNonzero, StatusTimeout}
	for i, want := range wantOrder {
		if results[i].Status != want {
			t.Errorf("result %d: got status %s, want %s", i, results[i].Status, want)
		}
	}
	if ExitCode(results) != 1 {
		t.Errorf("expected exit code 1 when any target is non-ok, got %d", ExitCode(results))
	}
}

func TestDispatchRespectsConcurrencyLimit(t *testing.T) {
	var mu sync.Mutex
	inFlight := 0
	maxInFlight := 0
	targets := make([]Target, 5)
	delays := map[string]time.Duration{}
	for i := range targets {
		id := string(rune('a' + i))
		targets[i] = Target{InstanceID: id}
		delays[id] = 20 * time.Millisecond
	}
	broker := &countingBroker{delays: delays, mu: &mu, inFlight: &inFlight, maxInFlight: &maxInFlight}
	d := &Dispatcher{Broker: broker, Concurrency: 2, Timeout: time.Second}

	out := d.Run(context.Background(), targets, Op{Kind: OpCommand, Command: "true"}, true)
	for range out {
	}

	if maxInFlight > 2 {
		t.Errorf("expected at most 2 concurrent dispatches, observed %d", maxInFlight)
	}
}

type countingBroker struct {
	delays      map[string]time.Duration
	mu          *sync.Mutex
	inFlight    *int
	maxInFlight *int
}

func (b *countingBroker) Dispatch(ctx context.Context, target Target, op Op) (Result, error) {
	b.mu.Lock()
	*b.inFlight++
	if *b.inFlight > *b.maxInFlight {
		*b.maxInFlight = *b.inFlight
	}
	b.mu.Unlock()

	time.Sleep(b.delays[target.InstanceID])

	b.mu.Lock()
	*b.inFlight--
	b.mu.Unlock()
	return Result{Target: target, Status: StatusOK}, nil
}

func TestRunStopsSchedulingAfterContextCancellation(t *testing.T) {
	targets := []Target{{InstanceID: "a"}, {InstanceID: "b"}, {InstanceID: "c"}}
	broker := &scriptedBroker{delays: map[string]time.Duration{
		"a": 5 * time.Millisecond, "b": 5 * time.Millisecond, "c": 5 * time.Millisecond,
	}}
	d := &Dispatcher{Broker: broker, Concurrency: 1, Timeout: time.Second}

	ctx, cancel := context.WithCancel(context.Background())
	out := d.Run(ctx, targets, Op{Kind: OpCommand, Command: "true"}, true)

	first := <-out
	if first.Status != StatusOK {
		t.Fatalf("expected first dispatched target to complete ok, got %s", first.Status)
	}
	cancel()

	var remaining int
	for range out {
		remaining++
	}
	if remaining >= len(targets)-1 {
		t.Errorf("expected cancellation to stop scheduling further targets, got %d more results", remaining)
	}
}
