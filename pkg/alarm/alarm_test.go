package alarm

import (
	"context"
	"testing"

	"github.com/fleetops/fleetctl/pkg/catalog"
	"github.com/fleetops/fleetctl/pkg/inventory"
)

type fakeMonitoring struct {
	groups map[string]ProbeGroup
	probes map[string][]Probe // by group id
	nextID int
}

func newFakeMonitoring() *fakeMonitoring {
	return &fakeMonitoring{groups: map[string]ProbeGroup{}, probes: map[string][]Probe{}}
}

func (f *fakeMonitoring) newID(prefix string) string {
	f.nextID++
	return prefix + "-" + string(rune('0'+f.nextID))
}

func (f *fakeMonitoring) ListDeployedGroups(ctx context.Context) ([]ProbeGroup, error) {
	var out []ProbeGroup
	for _, g := range f.groups {
		out = append(out, g)
	}
	return out, nil
}

func (f *fakeMonitoring) ListDeployedProbes(ctx context.Context, groupID string) ([]Probe, error) {
	return f.probes[groupID], nil
}

func (f *fakeMonitoring) CreateGroup(ctx context.Context, group ProbeGroup) (string, error) {
	id := f.newID("grp")
	group.UUID = id
	f.groups[id] = group
	return id, nil
}

func (f *fakeMonitoring) DeleteGroup(ctx context.Context, id string) error {
	delete(f.groups, id)
	delete(f.probes, id)
	return nil
}

func (f *fakeMonitoring) CreateProbe(ctx context.Context, probe Probe) (string, error) {
	id := f.newID("prb")
	probe.UUID = id
	f.probes[probe.GroupID] = append(f.probes[probe.GroupID], probe)
	return id, nil
}

func (f *fakeMonitoring) DeleteProbe(ctx context.Context, id string) error {
	for gid, probes := range f.probes {
		for i, p := range probes {
			if p.UUID == id {
				f.probes[gid] = append(probes[:i], probes[i+1:]...)
				return nil
			}
		}
	}
	return nil
}

func testSnapshot() *inventory.Snapshot {
	return &inventory.Snapshot{
		Instances: []inventory.Instance{
			{InstanceID: "webapi-1", ServiceName: "webapi", HostCompute: "cn-1", Metadata: map[string]string{"datacenter": "dc1"}},
			{InstanceID: "webapi-2", ServiceName: "webapi", HostCompute: "cn-2"},
			{InstanceID: "storage-1", ServiceName: "storage", HostCompute: "cn-1"},
		},
	}
}

func serviceTemplate() EventTemplate {
	return EventTemplate{
		EventClass:   "webapi.down",
		Scope:        Scope{Service: "webapi"},
		Checks:       []Check{{Type: "http", Config: map[string]string{"path": "/ping"}, AutoEnv: []string{"datacenter"}}},
		OwnerAccount: "ops",
		Contacts:     []string{"oncall"},
	}
}

func TestPlanCreatesGroupsAndProbesFromScratch(t *testing.T) {
	cat := catalog.Default()
	r := &Reconciler{Upstream: newFakeMonitoring(), Catalog: cat}
	snap := testSnapshot()

	plan, err := r.Plan(context.Background(), snap, []EventTemplate{serviceTemplate()})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(plan.CreateGroups) != 1 {
		t.Fatalf("expected 1 group to create, got %d", len(plan.CreateGroups))
	}
	if plan.CreateGroups[0].Name != "webapi.down;v=1" {
		t.Errorf("unexpected group name %q", plan.CreateGroups[0].Name)
	}
	if len(plan.CreateProbes) != 2 {
		t.Fatalf("expected 2 probes (one per webapi instance), got %d", len(plan.CreateProbes))
	}
	var sawEnv bool
	for _, p := range plan.CreateProbes {
		if p.Agent == "webapi-1" && p.Config["env"] == "DATACENTER=dc1\n" {
			sawEnv = true
		}
	}
	if !sawEnv {
		t.Error("expected autoEnv metadata to be copied into the webapi-1 probe's config")
	}
}

func TestReapplyAfterApplyProducesNoChanges(t *testing.T) {
	cat := catalog.Default()
	mon := newFakeMonitoring()
	r := &Reconciler{Upstream: mon, Catalog: cat}
	snap := testSnapshot()
	templates := []EventTemplate{serviceTemplate()}

	plan, err := r.Plan(context.Background(), snap, templates)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if err := r.Apply(context.Background(), plan); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	replan, err := r.Plan(context.Background(), snap, templates)
	if err != nil {
		t.Fatalf("re-Plan: %v", err)
	}
	if !replan.HasNoChanges() {
		t.Fatalf("expected no changes after reapplying the same templates, got %+v", replan)
	}
}

func TestUnconfigureRemovesOwnedGroupsEvenWithCurrentNaming(t *testing.T) {
	cat := catalog.Default()
	mon := newFakeMonitoring()
	r := &Reconciler{Upstream: mon, Catalog: cat}
	snap := testSnapshot()
	templates := []EventTemplate{serviceTemplate()}

	plan, err := r.Plan(context.Background(), snap, templates)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if err := r.Apply(context.Background(), plan); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	unconfig, err := r.Unconfigure(context.Background(), templates)
	if err != nil {
		t.Fatalf("Unconfigure: %v", err)
	}
	if len(unconfig.RemoveGroups) != 1 {
		t.Fatalf("expected 1 group scheduled for removal, got %d", len(unconfig.RemoveGroups))
	}
	if len(unconfig.RemoveProbes) != 2 {
		t.Fatalf("expected 2 probes scheduled for removal, got %d", len(unconfig.RemoveProbes))
	}
}

func TestUnownedDeployedGroupsAreLeftAlone(t *testing.T) {
	cat := catalog.Default()
	mon := newFakeMonitoring()
	mon.groups["operator-1"] = ProbeGroup{UUID: "operator-1", Name: "some-operator-owned-group"}
	r := &Reconciler{Upstream: mon, Catalog: cat}
	snap := testSnapshot()

	plan, err := r.Plan(context.Background(), snap, []EventTemplate{serviceTemplate()})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	for _, g := range plan.RemoveGroups {
		if g.UUID == "operator-1" {
			t.Fatal("operator-owned group should not be scheduled for removal")
		}
	}
}

func TestEachScopeCreatesOneGroupPerProbeTarget(t *testing.T) {
	cat := catalog.Default()
	r := &Reconciler{Upstream: newFakeMonitoring(), Catalog: cat}
	snap := testSnapshot()
	tpl := EventTemplate{
		EventClass: "disk.full",
		Scope:      Scope{Each: true},
		Checks:     []Check{{Type: "disk"}},
	}

	plan, err := r.Plan(context.Background(), snap, []EventTemplate{tpl})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(plan.CreateGroups) != len(cat.ProbeTargets()) {
		t.Fatalf("expected %d groups (one per probe target), got %d", len(cat.ProbeTargets()), len(plan.CreateGroups))
	}
}

func TestGlobalScopeDeduplicatesByComputeNode(t *testing.T) {
	cat := catalog.Default()
	r := &Reconciler{Upstream: newFakeMonitoring(), Catalog: cat}
	snap := &inventory.Snapshot{
		Instances: []inventory.Instance{
			{InstanceID: "webapi-1", ServiceName: "webapi", HostCompute: "cn-1"},
			{InstanceID: "webapi-2", ServiceName: "webapi", HostCompute: "cn-1"},
		},
	}
	tpl := EventTemplate{
		EventClass: "cn.load",
		Scope:      Scope{Service: "webapi", Global: true},
		Checks:     []Check{{Type: "load"}},
	}
	plan, err := r.Plan(context.Background(), snap, []EventTemplate{tpl})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(plan.CreateProbes) != 1 {
		t.Fatalf("expected 1 probe deduplicated by compute node, got %d", len(plan.CreateProbes))
	}
}

func TestCheckFromScopeCrossesTargetAndChecker(t *testing.T) {
	cat := catalog.Default()
	r := &Reconciler{Upstream: newFakeMonitoring(), Catalog: cat}
	snap := testSnapshot()
	tpl := EventTemplate{
		EventClass: "webapi.reachability",
		Scope:      Scope{Service: "webapi", CheckFrom: "storage"},
		Checks:     []Check{{Type: "ping"}},
	}
	plan, err := r.Plan(context.Background(), snap, []EventTemplate{tpl})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(plan.CreateProbes) != 2 { // 2 webapi targets x 1 storage checker
		t.Fatalf("expected 2 checkFrom probes, got %d", len(plan.CreateProbes))
	}
	for _, p := range plan.CreateProbes {
		if p.Agent != "storage-1" {
			t.Errorf("expected checker (storage-1) as agent, got %s", p.Agent)
		}
	}
}
