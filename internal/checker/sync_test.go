package checker

import (
	"context"
	"testing"

	"github.com/moby/moby/api/types/container"

	"github.com/homelabforge/tidewatch/internal/model"
)

type fakeDockerLister struct {
	summaries []container.Summary
}

func (f *fakeDockerLister) ListAllContainers(ctx context.Context) ([]container.Summary, error) {
	return f.summaries, nil
}

type fakeSyncStore struct {
	byName map[string]*model.Container
}

func newFakeSyncStore() *fakeSyncStore { return &fakeSyncStore{byName: map[string]*model.Container{}} }

func (s *fakeSyncStore) GetContainerByName(name string) (*model.Container, error) {
	return s.byName[name], nil
}

func (s *fakeSyncStore) SaveContainer(c *model.Container) error {
	s.byName[c.Name] = c
	return nil
}

func TestSyncAddsNewComposeContainer(t *testing.T) {
	docker := &fakeDockerLister{summaries: []container.Summary{
		{
			Names: []string{"/web"},
			Image: "nginx:1.25.3",
			Labels: map[string]string{
				composeLabel: "myapp",
				"com.docker.compose.service": "web",
				"tidewatch.policy": "auto",
				"tidewatch.scope": "minor",
			},
		},
	}}
	st := newFakeSyncStore()

	res, err := Sync(context.Background(), docker, st)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Added != 1 || res.Total != 1 {
		t.Errorf("got %+v, want added=1 total=1", res)
	}

	c := st.byName["web"]
	if c == nil {
		t.Fatal("expected web to be tracked")
	}
	if c.Policy != model.PolicyAuto || c.Scope != model.ScopeMinor {
		t.Errorf("labels not applied: %+v", c)
	}
	if c.CurrentTag != "1.25.3" {
		t.Errorf("CurrentTag = %q, want 1.25.3", c.CurrentTag)
	}
}

func TestSyncSkipsNonComposeContainers(t *testing.T) {
	docker := &fakeDockerLister{summaries: []container.Summary{
		{Names: []string{"/standalone"}, Image: "redis:7"},
	}}
	st := newFakeSyncStore()

	res, err := Sync(context.Background(), docker, st)
	if err != nil {
		t.Fatal(err)
	}
	if res.Total != 0 {
		t.Errorf("expected non-compose container to be skipped, got %+v", res)
	}
}

func TestSyncSkipsExplicitlyDisabledContainer(t *testing.T) {
	docker := &fakeDockerLister{summaries: []container.Summary{
		{Names: []string{"/web"}, Image: "nginx:1.25.3", Labels: map[string]string{
			composeLabel: "myapp",
			"tidewatch.enabled": "false",
		}},
	}}
	st := newFakeSyncStore()

	res, err := Sync(context.Background(), docker, st)
	if err != nil {
		t.Fatal(err)
	}
	if res.Total != 0 {
		t.Errorf("expected opted-out container to be skipped, got %+v", res)
	}
}

func TestSyncReportsUnchangedOnRepeatedRun(t *testing.T) {
	summary := container.Summary{Names: []string{"/web"}, Image: "nginx:1.25.3", Labels: map[string]string{composeLabel: "myapp"}}
	docker := &fakeDockerLister{summaries: []container.Summary{summary}}
	st := newFakeSyncStore()

	if _, err := Sync(context.Background(), docker, st); err != nil {
		t.Fatal(err)
	}
	res, err := Sync(context.Background(), docker, st)
	if err != nil {
		t.Fatal(err)
	}
	if res.Unchanged != 1 || res.Added != 0 {
		t.Errorf("got %+v, want unchanged=1 added=0", res)
	}
}

func TestSyncDetectsImageDrift(t *testing.T) {
	docker := &fakeDockerLister{summaries: []container.Summary{
		{Names: []string{"/web"}, Image: "nginx:1.25.3", Labels: map[string]string{composeLabel: "myapp"}},
	}}
	st := newFakeSyncStore()
	Sync(context.Background(), docker, st)

	docker.summaries[0].Image = "nginx:1.26.0"
	res, err := Sync(context.Background(), docker, st)
	if err != nil {
		t.Fatal(err)
	}
	if res.Updated != 1 {
		t.Errorf("got %+v, want updated=1 after image drift", res)
	}
}

func TestSanitizeLabelsTruncatesOversizedValues(t *testing.T) {
	big := make([]byte, maxLabelVal+100)
	for i := range big {
		big[i] = 'x'
	}
	out := sanitizeLabels(map[string]string{"k": string(big)})
	if len(out["k"]) != maxLabelVal {
		t.Errorf("len = %d, want %d", len(out["k"]), maxLabelVal)
	}
}

func TestSanitizeLabelsStripsControlChars(t *testing.T) {
	out := sanitizeLabels(map[string]string{"k": "hello\x00world\x1b"})
	if out["k"] != "helloworld" {
		t.Errorf("got %q", out["k"])
	}
}
