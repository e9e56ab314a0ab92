package inventory

import (
	"context"
	"testing"

	"github.com/fleetops/fleetctl/pkg/catalog"
)

type fakeUpstream struct {
	app       Application
	services  []ServiceRecord
	declared  []VMRecord
	activeVMs []VMRecord
	computes  map[string]CNRecord
	images    map[string]ImageRecord
}

func (f *fakeUpstream) GetApplication(ctx context.Context, name string) (Application, error) {
	return f.app, nil
}

func (f *fakeUpstream) ListServices(ctx context.Context, app Application) ([]ServiceRecord, error) {
	return f.services, nil
}

func (f *fakeUpstream) ListInstances(ctx context.Context, app Application) ([]VMRecord, error) {
	return f.declared, nil
}

func (f *fakeUpstream) ListActiveVMs(ctx context.Context, account, tag string) ([]VMRecord, error) {
	return f.activeVMs, nil
}

func (f *fakeUpstream) GetComputeNode(ctx context.Context, computeID string) (CNRecord, error) {
	rec, ok := f.computes[computeID]
	if !ok {
		return CNRecord{}, ErrNotFound
	}
	return rec, nil
}

func (f *fakeUpstream) GetImage(ctx context.Context, imageID string) (ImageRecord, error) {
	rec, ok := f.images[imageID]
	if !ok {
		return ImageRecord{}, ErrNotFound
	}
	return rec, nil
}

func baseUpstream() *fakeUpstream {
	return &fakeUpstream{
		app:      Application{Name: "manta", Account: "acct-1"},
		services: []ServiceRecord{{Name: "moray"}, {Name: "webapi"}},
		declared: []VMRecord{
			{InstanceID: "inst-moray-1", ServiceName: "moray", ServerID: "cn-1", ImageID: "img-1", Metadata: map[string]string{"shard": "1"}},
			{InstanceID: "inst-webapi-1", ServiceName: "webapi", ServerID: "cn-2", ImageID: "img-2"},
		},
		activeVMs: []VMRecord{
			{InstanceID: "inst-moray-1", ServerID: "cn-1", ImageID: "img-1", PrimaryAddress: "10.0.0.1"},
			{InstanceID: "inst-webapi-1", ServerID: "cn-2", ImageID: "img-2", PrimaryAddress: "10.0.0.2"},
		},
		computes: map[string]CNRecord{
			"cn-1": {ComputeID: "cn-1", Hostname: "host-1", Datacenter: "dc1"},
			"cn-2": {ComputeID: "cn-2", Hostname: "host-2", Datacenter: "dc1"},
		},
		images: map[string]ImageRecord{
			"img-1": {ImageID: "img-1", Version: "1.0.0"},
			"img-2": {ImageID: "img-2", Version: "2.0.0"},
		},
	}
}

func TestLoadJoinsVMsAndComputes(t *testing.T) {
	up := baseUpstream()
	l := &Loader{Upstream: up, Catalog: catalog.Default()}
	snap, err := l.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(snap.Instances) != 2 {
		t.Fatalf("expected 2 instances, got %d", len(snap.Instances))
	}
	var moray Instance
	for _, inst := range snap.Instances {
		if inst.ServiceName == "moray" {
			moray = inst
		}
	}
	if moray.PrimaryAddress != "10.0.0.1" {
		t.Errorf("expected joined primary address, got %q", moray.PrimaryAddress)
	}
	if moray.Shard != 1 {
		t.Errorf("expected shard 1, got %d", moray.Shard)
	}
	if len(snap.Computes) != 2 {
		t.Errorf("expected 2 computes, got %d", len(snap.Computes))
	}
	if snap.Images["img-1"].Version != "1.0.0" {
		t.Errorf("expected resolved image version")
	}
}

func TestLoadTreatsMissingComputeAsRemote(t *testing.T) {
	up := baseUpstream()
	delete(up.computes, "cn-2")
	l := &Loader{Upstream: up, Catalog: catalog.Default()}
	snap, err := l.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, ok := snap.Computes["cn-2"]; ok {
		t.Error("expected cn-2 to be absent from Computes")
	}
}

func TestLoadTreatsMissingImageAsUnknownVersion(t *testing.T) {
	up := baseUpstream()
	delete(up.images, "img-2")
	l := &Loader{Upstream: up, Catalog: catalog.Default()}
	snap, err := l.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if snap.Images["img-2"].Version != "-" {
		t.Errorf("expected placeholder version for missing image, got %q", snap.Images["img-2"].Version)
	}
}

func TestLoadRejectsUnknownService(t *testing.T) {
	up := baseUpstream()
	up.declared = append(up.declared, VMRecord{InstanceID: "inst-x", ServiceName: "bogus", ServerID: "cn-1"})
	up.activeVMs = append(up.activeVMs, VMRecord{InstanceID: "inst-x", ServerID: "cn-1"})
	l := &Loader{Upstream: up, Catalog: catalog.Default()}
	if _, err := l.Load(context.Background()); err == nil {
		t.Fatal("expected error for unknown service")
	}
}

func TestLoadRejectsMissingShardMetadata(t *testing.T) {
	up := baseUpstream()
	up.declared[0].Metadata = nil
	l := &Loader{Upstream: up, Catalog: catalog.Default()}
	if _, err := l.Load(context.Background()); err == nil {
		t.Fatal("expected error for missing shard metadata on sharded service")
	}
}

func TestLoadMarksStorageHosts(t *testing.T) {
	up := baseUpstream()
	up.services = append(up.services, ServiceRecord{Name: "storage"})
	up.declared = append(up.declared, VMRecord{
		InstanceID: "inst-storage-1", ServiceName: "storage", ServerID: "cn-1", ImageID: "img-1",
		Metadata: map[string]string{"datasetId": "stor-001"},
	})
	up.activeVMs = append(up.activeVMs, VMRecord{InstanceID: "inst-storage-1", ServerID: "cn-1", ImageID: "img-1"})
	l := &Loader{Upstream: up, Catalog: catalog.Default()}
	snap, err := l.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	cn1 := snap.Computes["cn-1"]
	if !cn1.IsStorageHost {
		t.Error("expected cn-1 to be marked as a storage host")
	}
	if len(cn1.StorageIDs) != 1 || cn1.StorageIDs[0] != "stor-001" {
		t.Errorf("expected storage ids [stor-001], got %v", cn1.StorageIDs)
	}
}

func TestLoadBuildsConfigKeyIndex(t *testing.T) {
	up := baseUpstream()
	l := &Loader{Upstream: up, Catalog: catalog.Default()}
	snap, err := l.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	key := ConfigKey{Shard: 1, ImageID: "img-1"}
	if got := snap.ByConfigKey["moray"]["cn-1"][key]; got != 1 {
		t.Errorf("expected count 1 for moray@cn-1 config key, got %d", got)
	}
	if got := snap.ByConfigKey["moray"][""][key]; got != 1 {
		t.Errorf("expected cross-CN total count 1, got %d", got)
	}
}

func TestLoadFailsFastOnApplicationError(t *testing.T) {
	up := baseUpstream()
	l := &failingAppUpstream{fakeUpstream: up}
	ld := &Loader{Upstream: l, Catalog: catalog.Default()}
	if _, err := ld.Load(context.Background()); err == nil {
		t.Fatal("expected error when application lookup fails")
	}
}

type failingAppUpstream struct {
	*fakeUpstream
}

func (f *failingAppUpstream) GetApplication(ctx context.Context, name string) (Application, error) {
	return Application{}, errBoom
}

var errBoom = errNew("boom")

type errNew string

func (e errNew) Error() string { return string(e) }
