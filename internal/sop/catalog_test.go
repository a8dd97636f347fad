package sop

import (
	"context"
	"errors"
	"testing"

	"tellerdesk/internal/domain"
)

type fakeSteps struct {
	services map[string][]domain.SOPStep
	names    map[string]string
	failure  error
}

func newFakeSteps() *fakeSteps {
	return &fakeSteps{
		services: make(map[string][]domain.SOPStep),
		names:    make(map[string]string),
	}
}

func (f *fakeSteps) SOPStepsForService(_ context.Context, serviceID string) ([]domain.SOPStep, error) {
	if f.failure != nil {
		return nil, f.failure
	}
	if _, ok := f.names[serviceID]; !ok {
		return nil, errors.New("service not found")
	}
	return f.services[serviceID], nil
}

func (f *fakeSteps) UpsertService(_ context.Context, serviceID, name string, steps []domain.SOPStep) error {
	if f.failure != nil {
		return f.failure
	}
	f.names[serviceID] = name
	f.services[serviceID] = steps
	return nil
}

func TestServiceStepsReturnsOrderedList(t *testing.T) {
	t.Parallel()

	store := newFakeSteps()
	catalog := NewCatalog(store)
	ctx := context.Background()

	if err := catalog.Seed(ctx); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	steps, err := catalog.ServiceSteps(ctx, "SV0001")
	if err != nil {
		t.Fatalf("service steps failed: %v", err)
	}
	if len(steps) != 5 {
		t.Fatalf("expected 5 steps for SV0001, got %d", len(steps))
	}
	for i, step := range steps {
		if step.Number != i+1 {
			t.Fatalf("step %d has number %d", i, step.Number)
		}
		if step.ServiceID != "SV0001" {
			t.Fatalf("step %s belongs to %s", step.ID, step.ServiceID)
		}
	}
}

func TestServiceStepsUnknownService(t *testing.T) {
	t.Parallel()

	catalog := NewCatalog(newFakeSteps())
	if _, err := catalog.ServiceSteps(context.Background(), "SV9999"); err == nil {
		t.Fatalf("unknown service must fail")
	}
}

func TestServiceStepsRejectsEmptyProcedure(t *testing.T) {
	t.Parallel()

	store := newFakeSteps()
	store.names["SV0009"] = "Layanan Kosong"
	catalog := NewCatalog(store)

	if _, err := catalog.ServiceSteps(context.Background(), "SV0009"); err == nil {
		t.Fatalf("service without steps must fail")
	}
}

func TestSeedInstallsAllBranchServices(t *testing.T) {
	t.Parallel()

	store := newFakeSteps()
	catalog := NewCatalog(store)
	ctx := context.Background()

	if err := catalog.Seed(ctx); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	for _, id := range []string{"SV0001", "SV0002", "SV0003"} {
		if _, ok := store.names[id]; !ok {
			t.Fatalf("service %s was not seeded", id)
		}
		if len(store.services[id]) == 0 {
			t.Fatalf("service %s has no steps", id)
		}
	}

	// Reseeding replaces rather than duplicates.
	before := len(store.services["SV0002"])
	if err := catalog.Seed(ctx); err != nil {
		t.Fatalf("reseed failed: %v", err)
	}
	if len(store.services["SV0002"]) != before {
		t.Fatalf("reseed changed step count")
	}
}

func TestSeedPropagatesStoreFailure(t *testing.T) {
	t.Parallel()

	store := newFakeSteps()
	store.failure = errors.New("disk full")
	if err := NewCatalog(store).Seed(context.Background()); err == nil {
		t.Fatalf("expected seed failure")
	}
}
