package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"slices"
	"testing"

	"github.com/google/uuid"

	"github.com/shaiso/Printflow/internal/domain"
	"github.com/shaiso/Printflow/internal/pipeline"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var errBrokenConfig = errors.New("broken config")

// fakeCatalog знает типы noop и broken; broken никогда не собирается.
type fakeCatalog struct {
	built []string
}

func (c *fakeCatalog) Has(typ string) bool {
	return typ == "noop" || typ == "broken"
}

func (c *fakeCatalog) Build(def FunctionDef, _ *pipeline.Registry) (pipeline.WorkFunc, error) {
	if def.FunctionType() == "broken" {
		return nil, errBrokenConfig
	}
	c.built = append(c.built, def.Name)
	return func(context.Context, *pipeline.Stage) error { return nil }, nil
}

// --- Validate ---

func TestValidate_Valid(t *testing.T) {
	defs := []FunctionDef{
		{Name: "fields", Type: "noop", Order: 10},
		{Name: "noop", Order: 20},
	}
	if err := Validate(defs, &fakeCatalog{}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	defs := []FunctionDef{
		{Name: "", Type: "noop"},
		{Name: "pdf", Type: "pdf", Order: 5},
		{Name: "a", Type: "noop", Order: 1},
		{Name: "a", Type: "noop", Order: 1},
	}

	err := Validate(defs, &fakeCatalog{})
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, ErrEmptyName) {
		t.Error("expected ErrEmptyName")
	}
	if !errors.Is(err, ErrUnknownType) {
		t.Error("expected ErrUnknownType")
	}
	if !errors.Is(err, ErrDuplicateDefinition) {
		t.Error("expected ErrDuplicateDefinition")
	}

	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatal("expected ValidationError")
	}
	if vErr.Field != "name" {
		t.Errorf("expected field name, got %q", vErr.Field)
	}
}

func TestFunctionDef_FunctionType(t *testing.T) {
	if (FunctionDef{Name: "duplex"}).FunctionType() != "duplex" {
		t.Error("empty type should default to name")
	}
	if (FunctionDef{Name: "notify", Type: "http"}).FunctionType() != "http" {
		t.Error("explicit type should win")
	}
}

// --- Load ---

func TestLoad_SkipsUnavailable(t *testing.T) {
	catalog := &fakeCatalog{}
	defs := []FunctionDef{
		{Name: "fields", Type: "noop", Order: 10},
		{Name: "pdf", Type: "pdf", Order: 20},
		{Name: "bad", Type: "broken", Order: 30},
		{Name: "off", Type: "noop", Order: 40, Disabled: true},
		{Name: "fields", Type: "noop", Order: 10},
		{Name: "notify", Type: "noop", Order: 900},
	}

	reg, errs := Load(defs, catalog, testLogger())

	if got := reg.Names(); !slices.Equal(got, []string{"fields", "notify"}) {
		t.Errorf("registered = %v", got)
	}
	if len(errs) != 3 {
		t.Fatalf("errors = %d, want 3: %v", len(errs), errs)
	}
	if !errors.Is(errs[0], ErrFunctionUnavailable) || !errors.Is(errs[0], ErrUnknownType) {
		t.Errorf("unexpected error for unknown type: %v", errs[0])
	}
	if !errors.Is(errs[1], ErrFunctionUnavailable) || !errors.Is(errs[1], errBrokenConfig) {
		t.Errorf("unexpected error for broken config: %v", errs[1])
	}
	if !errors.Is(errs[2], ErrDuplicateDefinition) {
		t.Errorf("unexpected error for duplicate: %v", errs[2])
	}
	if slices.Contains(catalog.built, "off") {
		t.Error("disabled function should not be built")
	}
}

// --- Session ---

func TestSession_NewRun(t *testing.T) {
	reg, _ := Load([]FunctionDef{
		{Name: "c", Type: "noop", Order: 200},
		{Name: "a", Type: "noop", Order: 100},
		{Name: "b", Type: "noop", Order: 40},
	}, &fakeCatalog{}, testLogger())

	var terminalProps map[string]any
	s := &Session{
		Registry: reg,
		Terminal: func(ctx context.Context, doc *domain.Document, props map[string]any) error {
			terminalProps = props
			return nil
		},
		Logger: testLogger(),
	}

	runID := uuid.New()
	m, err := s.NewRun(runID, &domain.Document{ID: uuid.New()}, nil,
		WithProperties(map[string]any{"job_id": "j-1"}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.RunID() != runID {
		t.Errorf("run id = %s, want %s", m.RunID(), runID)
	}
	if got := m.Functions(); !slices.Equal(got, []string{"b", "a", "c"}) {
		t.Errorf("run list = %v", got)
	}

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if terminalProps["job_id"] != "j-1" {
		t.Errorf("terminal props = %v", terminalProps)
	}
}

func TestSession_NewRunSelection(t *testing.T) {
	reg, _ := Load([]FunctionDef{
		{Name: "a", Type: "noop", Order: 1},
		{Name: "b", Type: "noop", Order: 2},
	}, &fakeCatalog{}, testLogger())
	s := &Session{Registry: reg, Logger: testLogger()}

	m, err := s.NewRun(uuid.New(), &domain.Document{}, []string{"b"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := m.Functions(); !slices.Equal(got, []string{"b"}) {
		t.Errorf("run list = %v", got)
	}

	_, err = s.NewRun(uuid.New(), &domain.Document{}, []string{"missing"})
	if !errors.Is(err, pipeline.ErrFunctionNotFound) {
		t.Errorf("expected ErrFunctionNotFound, got %v", err)
	}

	plan, err := s.Plan(nil)
	if err != nil || len(plan) != 2 {
		t.Errorf("plan = %v, %v", pipeline.Names(plan), err)
	}
}

func TestSession_TerminalOverride(t *testing.T) {
	reg, _ := Load([]FunctionDef{{Name: "a", Type: "noop", Order: 1}}, &fakeCatalog{}, testLogger())

	defaultCalled, overrideCalled := false, false
	s := &Session{
		Registry: reg,
		Terminal: func(context.Context, *domain.Document, map[string]any) error {
			defaultCalled = true
			return nil
		},
		Logger: testLogger(),
	}

	m, err := s.NewRun(uuid.New(), &domain.Document{}, nil,
		WithTerminal(func(context.Context, *domain.Document, map[string]any) error {
			overrideCalled = true
			return nil
		}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if defaultCalled || !overrideCalled {
		t.Errorf("default=%v override=%v", defaultCalled, overrideCalled)
	}
}

func TestSession_NoRegistry(t *testing.T) {
	s := &Session{}
	if _, err := s.NewRun(uuid.New(), &domain.Document{}, nil); !errors.Is(err, ErrNoRegistry) {
		t.Errorf("expected ErrNoRegistry, got %v", err)
	}
}
