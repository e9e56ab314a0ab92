package plan

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/fleetops/fleetctl/pkg/catalog"
	"github.com/fleetops/fleetctl/pkg/inventory"
	"github.com/fleetops/fleetctl/pkg/layout"
)

func moraySharded(instanceID string, shard int, image, compute string) inventory.Instance {
	return inventory.Instance{InstanceID: instanceID, ServiceName: "moray", HostCompute: compute, ImageID: image, Shard: shard}
}

func TestPlanNoOp(t *testing.T) {
	cat := catalog.Default()
	instances := []inventory.Instance{
		moraySharded("i1", 1, "imgA", "cn1"),
		moraySharded("i2", 1, "imgA", "cn1"),
		moraySharded("i3", 1, "imgA", "cn1"),
	}
	desired := layout.New()
	desired.Add("cn1", "moray", inventory.ConfigKey{Shard: 1, ImageID: "imgA"}, 3)

	ops, err := Plan(instances, desired, cat, Options{Service: "moray", AllowReprovision: true})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(ops) != 0 {
		t.Fatalf("expected no-op plan, got %+v", ops)
	}
}

func TestPlanScaleUp(t *testing.T) {
	cat := catalog.Default()
	instances := []inventory.Instance{
		moraySharded("i1", 1, "imgA", "cn1"),
		moraySharded("i2", 1, "imgA", "cn1"),
	}
	desired := layout.New()
	desired.Add("cn1", "moray", inventory.ConfigKey{Shard: 1, ImageID: "imgA"}, 4)

	ops, err := Plan(instances, desired, cat, Options{Service: "moray", AllowReprovision: true})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(ops) != 2 {
		t.Fatalf("expected 2 ops, got %d: %+v", len(ops), ops)
	}
	for _, op := range ops {
		if op.Kind != Provision || op.Service != "moray" || op.ComputeID != "cn1" || op.ConfigKey.Shard != 1 || op.ConfigKey.ImageID != "imgA" {
			t.Errorf("unexpected op %+v", op)
		}
	}
}

func TestPlanImageUpgradeWithReprovision(t *testing.T) {
	cat := catalog.Default()
	instances := []inventory.Instance{
		{InstanceID: "i1", ServiceName: "medusa", HostCompute: "cn1", ImageID: "imgA"},
		{InstanceID: "i2", ServiceName: "medusa", HostCompute: "cn1", ImageID: "imgA"},
	}
	desired := layout.New()
	desired.Add("cn1", "medusa", inventory.ConfigKey{ImageID: "imgB"}, 2)

	ops, err := Plan(instances, desired, cat, Options{Service: "medusa", AllowReprovision: true})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(ops) != 2 {
		t.Fatalf("expected 2 reprovision ops, got %d: %+v", len(ops), ops)
	}
	for _, op := range ops {
		if op.Kind != Reprovision || op.OldImage != "imgA" || op.NewImage != "imgB" {
			t.Errorf("unexpected op %+v", op)
		}
	}
}

func TestPlanImageUpgradeWithoutReprovision(t *testing.T) {
	cat := catalog.Default()
	instances := []inventory.Instance{
		{InstanceID: "i1", ServiceName: "medusa", HostCompute: "cn1", ImageID: "imgA"},
		{InstanceID: "i2", ServiceName: "medusa", HostCompute: "cn1", ImageID: "imgA"},
	}
	desired := layout.New()
	desired.Add("cn1", "medusa", inventory.ConfigKey{ImageID: "imgB"}, 2)

	ops, err := Plan(instances, desired, cat, Options{Service: "medusa", AllowReprovision: false})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	wantKinds := []Kind{Provision, Deprovision, Provision, Deprovision}
	if len(ops) != len(wantKinds) {
		t.Fatalf("expected %d ops, got %d: %+v", len(wantKinds), len(ops), ops)
	}
	for i, op := range ops {
		if op.Kind != wantKinds[i] {
			t.Errorf("op %d: kind = %v, want %v", i, op.Kind, wantKinds[i])
		}
	}
	if ops[0].ConfigKey.ImageID != "imgB" || ops[2].ConfigKey.ImageID != "imgB" {
		t.Error("expected provisions to target imgB")
	}
	if ops[1].ConfigKey.ImageID != "imgA" || ops[3].ConfigKey.ImageID != "imgA" {
		t.Error("expected deprovisions to target imgA instances")
	}
}

func TestPlanIsIdempotent(t *testing.T) {
	cat := catalog.Default()
	instances := []inventory.Instance{
		moraySharded("i1", 1, "imgA", "cn1"),
	}
	observed := layout.FromSnapshot(&inventory.Snapshot{Instances: instances}, cat)
	ops, err := Plan(instances, observed, cat, Options{AllowReprovision: true})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(ops) != 0 {
		t.Fatalf("expected plan(O,O) to be empty, got %+v", ops)
	}
}

func TestPlanIsPure(t *testing.T) {
	cat := catalog.Default()
	instances := []inventory.Instance{
		moraySharded("i1", 1, "imgA", "cn1"),
		{InstanceID: "i2", ServiceName: "webapi", HostCompute: "cn1", ImageID: "imgA"},
	}
	desired := layout.New()
	desired.Add("cn1", "moray", inventory.ConfigKey{Shard: 1, ImageID: "imgA"}, 3)
	desired.Add("cn1", "webapi", inventory.ConfigKey{ImageID: "imgB"}, 1)

	ops1, err := Plan(instances, desired, cat, Options{AllowReprovision: true})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	ops2, err := Plan(instances, desired, cat, Options{AllowReprovision: true})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if diff := cmp.Diff(ops1, ops2); diff != "" {
		t.Fatalf("expected repeated Plan calls to agree (-first +second):\n%s", diff)
	}
}

func TestPlanDeprovisionsComputeNotInDesiredLayout(t *testing.T) {
	cat := catalog.Default()
	instances := []inventory.Instance{
		{InstanceID: "i1", ServiceName: "webapi", HostCompute: "cn1", ImageID: "imgA"},
		{InstanceID: "i2", ServiceName: "webapi", HostCompute: "cn2", ImageID: "imgA"},
	}
	desired := layout.New()
	desired.Add("cn1", "webapi", inventory.ConfigKey{ImageID: "imgA"}, 1)

	ops, err := Plan(instances, desired, cat, Options{Service: "webapi"})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(ops) != 1 {
		t.Fatalf("expected 1 op, got %d: %+v", len(ops), ops)
	}
	if ops[0].Kind != Deprovision || ops[0].InstanceID != "i2" {
		t.Errorf("expected deprovision of i2 on cn2, got %+v", ops[0])
	}
}

func TestPlanAnyComputeMatchesTotalAcrossCNs(t *testing.T) {
	cat := catalog.Default()
	instances := []inventory.Instance{
		{InstanceID: "i1", ServiceName: "webapi", HostCompute: "cn1", ImageID: "imgA"},
		{InstanceID: "i2", ServiceName: "webapi", HostCompute: "cn2", ImageID: "imgA"},
	}
	desired := layout.New()
	desired.Add(layout.AnyCompute, "webapi", inventory.ConfigKey{ImageID: "imgA"}, 3)

	ops, err := Plan(instances, desired, cat, Options{Service: "webapi"})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(ops) != 1 {
		t.Fatalf("expected 1 provision op, got %d: %+v", len(ops), ops)
	}
	if ops[0].Kind != Provision || ops[0].ComputeID != layout.AnyCompute {
		t.Errorf("unexpected op %+v", ops[0])
	}
}

func TestPlanRestrictsToRequestedService(t *testing.T) {
	cat := catalog.Default()
	instances := []inventory.Instance{
		{InstanceID: "i1", ServiceName: "webapi", HostCompute: "cn1", ImageID: "imgA"},
		{InstanceID: "i2", ServiceName: "ops", HostCompute: "cn1", ImageID: "imgA"},
	}
	desired := layout.New() // empty desired: would deprovision everything if unrestricted

	ops, err := Plan(instances, desired, cat, Options{Service: "webapi"})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(ops) != 1 || ops[0].Service != "webapi" {
		t.Fatalf("expected exactly one webapi op, got %+v", ops)
	}
}

func TestPlanRejectsUnknownService(t *testing.T) {
	cat := catalog.Default()
	desired := layout.New()
	if _, err := Plan(nil, desired, cat, Options{Service: "bogus"}); err == nil {
		t.Fatal("expected error for unknown service")
	}
}
