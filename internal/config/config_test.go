package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Printflow/internal/domain"
	"github.com/shaiso/Printflow/internal/functions"
)

const sampleYAML = `
log:
  level: debug
worker:
  poll_interval: 3s
  concurrency: 4
output:
  dir: OUTDIR
functions:
  - name: duplex
    order: 50
  - name: stamp
    type: set_properties
    order: 10
    config:
      properties:
        stamp: approved
  - name: ghost
    type: no_such_type
    order: 5
schedules:
  - name: nightly
    cron: "0 2 * * *"
    document: /srv/docs/report.json
    functions: [stamp]
    enabled: true
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "printflow.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_File(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleYAML))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Log.Level != "debug" {
		t.Errorf("log.level = %q, want debug", cfg.Log.Level)
	}
	if cfg.Worker.PollInterval != 3*time.Second {
		t.Errorf("worker.poll_interval = %v, want 3s", cfg.Worker.PollInterval)
	}
	if cfg.Worker.Concurrency != 4 {
		t.Errorf("worker.concurrency = %d, want 4", cfg.Worker.Concurrency)
	}
	if len(cfg.Functions) != 3 {
		t.Fatalf("expected 3 function defs, got %d", len(cfg.Functions))
	}
	if cfg.Functions[1].Type != "set_properties" || cfg.Functions[1].Order != 10 {
		t.Errorf("function def = %+v", cfg.Functions[1])
	}

	if len(cfg.Schedules) != 1 {
		t.Fatalf("expected 1 schedule, got %d", len(cfg.Schedules))
	}
	sched := cfg.Schedules[0]
	if sched.CronExpr != "0 2 * * *" || sched.DocumentPath != "/srv/docs/report.json" || !sched.Enabled {
		t.Errorf("schedule = %+v", sched)
	}
	if sched.Timezone != "UTC" {
		t.Errorf("schedule timezone should default to UTC, got %q", sched.Timezone)
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "log:\n  format: text\n"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Log.Format != "text" || cfg.Log.Level != "info" {
		t.Errorf("log = %+v", cfg.Log)
	}
	if cfg.API.Port != 8080 {
		t.Errorf("api.port = %d, want 8080", cfg.API.Port)
	}
	if cfg.Worker.PollInterval != 10*time.Second {
		t.Errorf("worker.poll_interval = %v, want 10s", cfg.Worker.PollInterval)
	}
	if cfg.Scheduler.TickInterval != time.Second || cfg.Scheduler.LockKey != 424242 {
		t.Errorf("scheduler = %+v", cfg.Scheduler)
	}
	if cfg.Database.MaxConns != 10 {
		t.Errorf("database.max_conns = %d", cfg.Database.MaxConns)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("PRINTFLOW_API__PORT", "9000")
	t.Setenv("PRINTFLOW_WORKER__POLL_INTERVAL", "250ms")
	t.Setenv("PRINTFLOW_DATABASE__URL", "postgres://env/db")

	cfg, err := Load(writeConfig(t, sampleYAML))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.API.Port != 9000 {
		t.Errorf("api.port = %d, want 9000", cfg.API.Port)
	}
	if cfg.Worker.PollInterval != 250*time.Millisecond {
		t.Errorf("worker.poll_interval = %v, want 250ms", cfg.Worker.PollInterval)
	}
	if cfg.Database.URL != "postgres://env/db" {
		t.Errorf("database.url = %q", cfg.Database.URL)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("explicit missing file should be an error")
	}

	// Файл по умолчанию может отсутствовать
	t.Chdir(t.TempDir())
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\") error = %v", err)
	}
	if cfg.API.Port != 8080 {
		t.Errorf("defaults should apply, api.port = %d", cfg.API.Port)
	}
}

func TestEnvKey(t *testing.T) {
	if got := envKey("PRINTFLOW_WORKER__STAGE_TIMEOUT"); got != "worker.stage_timeout" {
		t.Errorf("envKey = %q", got)
	}
}

func TestSession_FromConfig(t *testing.T) {
	out := t.TempDir()
	cfg, err := Load(writeConfig(t, sampleYAML))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	cfg.Output.Dir = out

	session, errs := cfg.Session(nil, nil)
	if len(errs) != 1 {
		t.Errorf("expected 1 unavailable function (ghost), got %v", errs)
	}

	plan, err := session.Plan(nil)
	if err != nil {
		t.Fatalf("Plan error = %v", err)
	}
	if len(plan) != 2 || plan[0].Name() != "stamp" || plan[1].Name() != "duplex" {
		t.Fatalf("plan = %v", plan)
	}

	doc := &domain.Document{ID: uuid.New(), Title: "t", Pages: []domain.Page{{Content: "one"}}}
	master, err := session.NewRun(uuid.New(), doc, nil)
	if err != nil {
		t.Fatalf("NewRun error = %v", err)
	}
	if err := master.Start(context.Background()); err != nil {
		t.Fatalf("Start error = %v", err)
	}

	if master.Properties()["stamp"] != "approved" {
		t.Errorf("stamp property = %v", master.Properties()["stamp"])
	}

	saved, err := functions.LoadDocument(functions.OutputPath(out, doc))
	if err != nil {
		t.Fatalf("terminal should write the document: %v", err)
	}
	if !saved.Duplex {
		t.Error("saved document should be duplex")
	}
}
