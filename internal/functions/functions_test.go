package functions

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"slices"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Printflow/internal/domain"
	"github.com/shaiso/Printflow/internal/engine"
	"github.com/shaiso/Printflow/internal/pipeline"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testDoc(pages ...string) *domain.Document {
	doc := &domain.Document{ID: uuid.New(), Title: "Invoice"}
	for _, p := range pages {
		doc.Pages = append(doc.Pages, domain.Page{Content: p})
	}
	return doc
}

// runDefs собирает реестр из определений и прогоняет документ через цепочку.
func runDefs(t *testing.T, defs []engine.FunctionDef, doc *domain.Document, opts Options) *pipeline.Master {
	t.Helper()

	reg, errs := engine.Load(defs, DefaultCatalog(opts), testLogger())
	if len(errs) != 0 {
		t.Fatalf("load errors: %v", errs)
	}

	s := &engine.Session{Registry: reg, Logger: testLogger()}
	m, err := s.NewRun(uuid.New(), doc, nil)
	if err != nil {
		t.Fatalf("new run: %v", err)
	}
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	return m
}

// --- Catalog Tests ---

func TestCatalog(t *testing.T) {
	c := DefaultCatalog(Options{})

	want := []string{
		TypeCollectOutput, TypeCollectSetup, TypeDelay, TypeDuplex,
		TypeFields, TypeHTTP, TypeInsert, TypeSetProperties,
	}
	if got := c.Types(); !slices.Equal(got, want) {
		t.Errorf("types = %v, want %v", got, want)
	}

	if !c.Has(TypeHTTP) || c.Has("pdf") {
		t.Error("Has reports wrong membership")
	}

	_, err := c.Build(engine.FunctionDef{Name: "pdf"}, pipeline.NewRegistry(testLogger()))
	if !errors.Is(err, ErrTypeNotFound) {
		t.Errorf("expected ErrTypeNotFound, got %v", err)
	}
}

func TestCatalog_InvalidConfig(t *testing.T) {
	c := DefaultCatalog(Options{})
	reg := pipeline.NewRegistry(testLogger())

	defs := []engine.FunctionDef{
		{Name: "props", Type: TypeSetProperties},
		{Name: "wait", Type: TypeDelay},
		{Name: "wait", Type: TypeDelay, Config: map[string]any{"duration": "1s", "tick": "0s"}},
		{Name: "wait", Type: TypeDelay, Config: map[string]any{"duration": "1s", "tick": "-5ms"}},
		{Name: "wait", Type: TypeDelay, Config: map[string]any{"duration": "1s", "tick": 0}},
		{Name: "notify", Type: TypeHTTP},
		{Name: "ins", Type: TypeInsert},
		{Name: "ins", Type: TypeInsert, Config: map[string]any{"function": "ins"}},
		{Name: "collect", Type: TypeCollectSetup, Config: map[string]any{"sources": "[bad"}},
	}
	for _, def := range defs {
		if _, err := c.Build(def, reg); !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("%s: expected ErrInvalidConfig, got %v", def.FunctionType(), err)
		}
	}
}

// --- Config helpers ---

func TestConfigHelpers(t *testing.T) {
	cfg := map[string]any{
		"s":     "text",
		"i":     7,
		"f":     float64(12),
		"b":     true,
		"d":     "1500ms",
		"dms":   250,
		"m":     map[string]any{"a": "x", "n": 1},
		"wrong": []int{1},
	}

	if GetConfigString(cfg, "s") != "text" || GetConfigString(cfg, "i") != "" {
		t.Error("GetConfigString")
	}
	if GetConfigInt(cfg, "i", 0) != 7 || GetConfigInt(cfg, "f", 0) != 12 || GetConfigInt(cfg, "missing", 3) != 3 {
		t.Error("GetConfigInt")
	}
	if !GetConfigBool(cfg, "b", false) || !GetConfigBool(cfg, "missing", true) {
		t.Error("GetConfigBool")
	}
	if GetConfigDuration(cfg, "d", 0) != 1500*time.Millisecond {
		t.Error("GetConfigDuration string")
	}
	if GetConfigDuration(cfg, "dms", 0) != 250*time.Millisecond {
		t.Error("GetConfigDuration number")
	}
	if GetConfigDuration(cfg, "wrong", time.Second) != time.Second {
		t.Error("GetConfigDuration default")
	}
	if m := GetConfigMapString(cfg, "m"); len(m) != 1 || m["a"] != "x" {
		t.Errorf("GetConfigMapString = %v", m)
	}
}

// --- Built-in functions ---

func TestSetPropertiesAndFields(t *testing.T) {
	doc := testDoc("Dear {{ .Fields.customer }}", "Page {{ .Page }}/{{ .Pages }} by {{ .Fields.printed_by }}")
	doc.Fields = map[string]string{"customer": "ACME"}

	m := runDefs(t, []engine.FunctionDef{
		{Name: "props", Type: TypeSetProperties, Order: 1, Config: map[string]any{
			"properties": map[string]any{"user": "alice"},
		}},
		{Name: "fields", Order: 10, Config: map[string]any{
			"fields": map[string]any{"printed_by": "{{ .Props.user }}"},
		}},
	}, doc, Options{})

	if doc.Pages[0].Content != "Dear ACME" {
		t.Errorf("page 1 = %q", doc.Pages[0].Content)
	}
	if doc.Pages[1].Content != "Page 2/2 by alice" {
		t.Errorf("page 2 = %q", doc.Pages[1].Content)
	}
	if doc.Fields["printed_by"] != "alice" {
		t.Errorf("fields = %v", doc.Fields)
	}
	if p := m.Progress(); p.Max != 2 || p.Value != 2 {
		t.Errorf("progress = %+v", p)
	}
}

func TestDuplex_PadsAfterContentChanges(t *testing.T) {
	doc := testDoc("one", "two")

	// Функция с order между duplex и выравниванием добавляет страницу
	addPage := func(def engine.FunctionDef, _ *pipeline.Registry) (pipeline.WorkFunc, error) {
		return func(ctx context.Context, s *pipeline.Stage) error {
			s.Document().Pages = append(s.Document().Pages, domain.Page{Content: "three"})
			return nil
		}, nil
	}
	c := DefaultCatalog(Options{})
	c.Register("add_page", addPage)

	reg, errs := engine.Load([]engine.FunctionDef{
		{Name: "duplex", Order: 10},
		{Name: "add_page", Order: 500},
	}, c, testLogger())
	if len(errs) != 0 {
		t.Fatalf("load errors: %v", errs)
	}

	s := &engine.Session{Registry: reg, Logger: testLogger()}
	m, err := s.NewRun(uuid.New(), doc, nil)
	if err != nil {
		t.Fatalf("new run: %v", err)
	}
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	if !doc.Duplex {
		t.Error("document should be duplex")
	}
	if doc.PageCount() != 4 || !doc.Pages[3].Blank {
		t.Errorf("expected blank 4th page, got %+v", doc.Pages)
	}
	if got := m.Executed(); !slices.Equal(got, []string{"duplex", "add_page", "duplex.pad"}) {
		t.Errorf("executed = %v", got)
	}
	if v, _ := m.Properties()[PropertyDuplex].(bool); !v {
		t.Error("duplex property should be set")
	}
}

func TestDelay_StopsOnCancel(t *testing.T) {
	cancelFirst := func(def engine.FunctionDef, _ *pipeline.Registry) (pipeline.WorkFunc, error) {
		return func(ctx context.Context, s *pipeline.Stage) error {
			// Отменяем run, но delay уже в цепочке: этап не запустится
			s.RequestCancel()
			return nil
		}, nil
	}
	c := DefaultCatalog(Options{})
	c.Register("cancel", cancelFirst)

	reg, _ := engine.Load([]engine.FunctionDef{
		{Name: "cancel", Order: 1},
		{Name: "wait", Type: TypeDelay, Order: 2, Config: map[string]any{"duration": "10s"}},
	}, c, testLogger())

	s := &engine.Session{Registry: reg, Logger: testLogger()}
	m, _ := s.NewRun(uuid.New(), testDoc(), nil)

	start := time.Now()
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if time.Since(start) > time.Second {
		t.Error("delay should not run after cancellation")
	}
	if slices.Contains(m.Executed(), "wait") {
		t.Error("wait should not be executed")
	}
}

func TestDelay_PollsCancellation(t *testing.T) {
	var m *pipeline.Master
	reg, _ := engine.Load([]engine.FunctionDef{
		{Name: "wait", Type: TypeDelay, Order: 1, Config: map[string]any{"duration_ms": 10000, "tick": "5ms"}},
	}, DefaultCatalog(Options{}), testLogger())

	s := &engine.Session{Registry: reg, Logger: testLogger()}
	m, _ = s.NewRun(uuid.New(), testDoc(), nil)

	go func() {
		time.Sleep(20 * time.Millisecond)
		m.Cancel()
	}()

	start := time.Now()
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if time.Since(start) > 2*time.Second {
		t.Error("delay should stop soon after cancellation")
	}
}

func TestHTTP_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	var payload WebhookPayload

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		if r.Header.Get("X-Token") != "secret" {
			t.Errorf("header not rendered: %q", r.Header.Get("X-Token"))
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	doc := testDoc("a", "b")
	m := runDefs(t, []engine.FunctionDef{
		{Name: "props", Type: TypeSetProperties, Order: 1, Config: map[string]any{
			"properties": map[string]any{"token": "secret"},
		}},
		{Name: "notify", Type: TypeHTTP, Order: 900, Config: map[string]any{
			"url":     srv.URL,
			"headers": map[string]any{"X-Token": "{{ .Props.token }}"},
			"backoff": "1ms",
		}},
	}, doc, Options{HTTPClient: srv.Client()})

	if calls.Load() != 3 {
		t.Errorf("calls = %d, want 3", calls.Load())
	}
	if payload.DocumentID != doc.ID || payload.Pages != 2 || payload.Function != "notify" {
		t.Errorf("payload = %+v", payload)
	}
	if m.Properties()["notify.status_code"] != http.StatusAccepted {
		t.Errorf("status property = %v", m.Properties()["notify.status_code"])
	}
}

func TestHTTP_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	m := runDefs(t, []engine.FunctionDef{
		{Name: "notify", Type: TypeHTTP, Order: 1, Config: map[string]any{
			"url":     srv.URL,
			"backoff": "1ms",
		}},
	}, testDoc(), Options{HTTPClient: srv.Client()})

	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
	if _, ok := m.Properties()["notify.status_code"]; ok {
		t.Error("status should not be recorded on failure")
	}
}

func TestInsert(t *testing.T) {
	doc := testDoc("x")

	m := runDefs(t, []engine.FunctionDef{
		{Name: "props", Type: TypeSetProperties, Order: 1, Config: map[string]any{
			"properties": map[string]any{"urgent": true},
		}},
		{Name: "maybe_duplex", Type: TypeInsert, Order: 5, Config: map[string]any{
			"function": "late_duplex",
			"order":    50,
			"when":     "urgent",
		}},
		{Name: "skip", Type: TypeInsert, Order: 6, Config: map[string]any{
			"function": "late_duplex",
			"order":    60,
			"when":     "missing",
		}},
		{Name: "late_duplex", Type: TypeDuplex, Order: 2000, Config: map[string]any{"pad": false}},
	}, doc, Options{})

	want := []string{"props", "maybe_duplex", "skip", "late_duplex", "late_duplex"}
	if got := m.Executed(); !slices.Equal(got, want) {
		t.Errorf("executed = %v, want %v", got, want)
	}
	if !doc.Duplex {
		t.Error("inserted function should run")
	}
}

func TestCollect_MergesInFilenameOrder(t *testing.T) {
	sources := t.TempDir()
	scratch := t.TempDir()

	if err := SaveDocument(filepath.Join(sources, "b.json"), testDoc("b1")); err != nil {
		t.Fatal(err)
	}
	if err := SaveDocument(filepath.Join(sources, "a.json"), testDoc("a1", "a2", "a3")); err != nil {
		t.Fatal(err)
	}

	doc := testDoc("main")
	m := runDefs(t, []engine.FunctionDef{
		{Name: "collect_setup", Order: 1, Config: map[string]any{
			"sources": filepath.Join(sources, "*.json"),
			"duplex":  true,
		}},
		{Name: "collect_output", Order: 990},
	}, doc, Options{ScratchDir: scratch})

	var contents []string
	for _, p := range doc.Pages {
		if p.Blank {
			contents = append(contents, "_")
			continue
		}
		contents = append(contents, p.Content)
	}
	want := []string{"main", "_", "a1", "a2", "a3", "_", "b1", "_"}
	if !slices.Equal(contents, want) {
		t.Errorf("pages = %v, want %v", contents, want)
	}
	if !doc.Duplex {
		t.Error("merged document should be duplex")
	}

	// Временный каталог удалён после завершения цепочки
	entries, _ := os.ReadDir(scratch)
	if len(entries) != 0 {
		t.Errorf("scratch dir not cleaned: %v", entries)
	}
	if p := m.Progress(); p.Max != 3 || p.Value != 3 {
		t.Errorf("progress = %+v", p)
	}
}

func TestCollect_KeepsChangesBetweenSetupAndOutput(t *testing.T) {
	doc := testDoc("Hello {{ .Fields.name }}")
	doc.Fields = map[string]string{"name": "Ann"}

	runDefs(t, []engine.FunctionDef{
		{Name: "collect_setup", Order: 10},
		{Name: "fields", Order: 50},
		{Name: "collect_output", Order: 990},
	}, doc, Options{ScratchDir: t.TempDir()})

	if len(doc.Pages) != 1 || doc.Pages[0].Content != "Hello Ann" {
		t.Errorf("pages = %+v, want rendered page", doc.Pages)
	}
	if doc.Fields["name"] != "Ann" {
		t.Errorf("fields = %v", doc.Fields)
	}
}

func TestCollect_OutputWithoutSetup(t *testing.T) {
	reg, _ := engine.Load([]engine.FunctionDef{{Name: "collect_output", Order: 1}}, DefaultCatalog(Options{}), testLogger())
	fn, _ := reg.Get("collect_output")

	var stageErr error
	obs := &errObserver{err: &stageErr}
	m := pipeline.New(pipeline.Config{
		Document:  testDoc(),
		Functions: []*pipeline.Function{fn},
		Observer:  obs,
		Logger:    testLogger(),
	})
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if !errors.Is(stageErr, ErrNoCollection) {
		t.Errorf("expected ErrNoCollection, got %v", stageErr)
	}
}

type errObserver struct {
	pipeline.NopObserver
	err *error
}

func (o *errObserver) AfterStage(_ context.Context, _ pipeline.StageInfo, err error, _ bool, _ time.Duration) {
	*o.err = err
}

func TestMerge_CanceledRemovesPartialOutput(t *testing.T) {
	dir := t.TempDir()
	var files []string
	for _, name := range []string{"1.json", "2.json", "3.json"} {
		path := filepath.Join(dir, name)
		if err := SaveDocument(path, testDoc(name)); err != nil {
			t.Fatal(err)
		}
		files = append(files, path)
	}

	out := filepath.Join(dir, "merged.out")
	done := 0
	_, err := Merge(context.Background(), files, out, MergeOptions{
		Canceled: func() bool { return done >= 2 },
		Progress: func(d, _ int) { done = d },
	})

	if !errors.Is(err, ErrCanceled) {
		t.Errorf("expected ErrCanceled, got %v", err)
	}
	if _, err := os.Stat(out); !os.IsNotExist(err) {
		t.Error("partial output should be removed")
	}
}

// --- Documents ---

func TestFileTerminal(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	doc := testDoc("hello")

	terminal := FileTerminal(dir, testLogger())
	if err := terminal(context.Background(), doc, nil); err != nil {
		t.Fatalf("terminal: %v", err)
	}

	loaded, err := LoadDocument(OutputPath(dir, doc))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.ID != doc.ID || loaded.Pages[0].Content != "hello" {
		t.Errorf("loaded = %+v", loaded)
	}
}

func TestLoadDocument_AssignsID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.json")
	if err := os.WriteFile(path, []byte(`{"title":"t","pages":[{"content":"x"}]}`), 0o644); err != nil {
		t.Fatal(err)
	}

	doc, err := LoadDocument(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc.ID == uuid.Nil {
		t.Error("document should get an ID")
	}

	if _, err := LoadDocument(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("expected error for missing file")
	}
}
