package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Printflow/internal/domain"
	"github.com/shaiso/Printflow/internal/functions"
	"github.com/shaiso/Printflow/internal/repo"
)

// --- cron ---

func TestCalculateNextDue(t *testing.T) {
	sched := &domain.Schedule{CronExpr: "0 9 * * *", Timezone: "UTC"}
	from := time.Date(2026, 3, 1, 8, 30, 0, 0, time.UTC)

	next, err := CalculateNextDue(sched, from)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Errorf("next = %v, want %v", next, want)
	}
}

func TestCalculateNextDue_Timezone(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Moscow")
	if err != nil {
		t.Skipf("tzdata not available: %v", err)
	}

	sched := &domain.Schedule{CronExpr: "0 9 * * *", Timezone: "Europe/Moscow"}
	from := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	next, err := CalculateNextDue(sched, from)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := time.Date(2026, 3, 1, 9, 0, 0, 0, loc).UTC()
	if !next.Equal(want) {
		t.Errorf("next = %v, want %v", next, want)
	}
	if next.Location() != time.UTC {
		t.Error("next due should be in UTC")
	}
}

func TestCalculateNextDue_Invalid(t *testing.T) {
	if _, err := CalculateNextDue(&domain.Schedule{CronExpr: "not a cron"}, time.Now()); err == nil {
		t.Error("expected error for invalid cron")
	}
	if _, err := CalculateNextDue(&domain.Schedule{CronExpr: "* * * * *", Timezone: "Mars/Olympus"}, time.Now()); err == nil {
		t.Error("expected error for invalid timezone")
	}
}

func TestValidate(t *testing.T) {
	valid := domain.Schedule{Name: "nightly", CronExpr: "@daily", DocumentPath: "doc.json"}
	if err := Validate(&valid); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	cases := map[string]domain.Schedule{
		"no name":     {CronExpr: "@daily", DocumentPath: "doc.json"},
		"no document": {Name: "x", CronExpr: "@daily"},
		"bad cron":    {Name: "x", CronExpr: "61 * * * *", DocumentPath: "doc.json"},
		"bad tz":      {Name: "x", CronExpr: "@daily", DocumentPath: "doc.json", Timezone: "Nowhere/City"},
	}
	for name, sched := range cases {
		if err := Validate(&sched); !errors.Is(err, ErrInvalidSchedule) {
			t.Errorf("%s: expected ErrInvalidSchedule, got %v", name, err)
		}
	}
}

// --- fakes ---

type fakeJobs struct {
	mu   sync.Mutex
	jobs []domain.Job
	keys map[string]bool
}

func (f *fakeJobs) Create(_ context.Context, job *domain.Job) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.keys == nil {
		f.keys = make(map[string]bool)
	}
	if f.keys[job.IdempotencyKey] {
		return repo.ErrAlreadyExists
	}
	f.keys[job.IdempotencyKey] = true
	f.jobs = append(f.jobs, *job)
	return nil
}

type fakePublisher struct {
	ids []uuid.UUID
	err error
}

func (f *fakePublisher) PublishJobPending(_ context.Context, id uuid.UUID) error {
	f.ids = append(f.ids, id)
	return f.err
}

type fakeLock struct {
	acquire  bool
	attempts int
	released bool
}

func (f *fakeLock) TryAcquire(context.Context) (bool, error) {
	f.attempts++
	return f.acquire, nil
}

func (f *fakeLock) Release(context.Context) error {
	f.released = true
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeDocument(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "report.json")
	doc := &domain.Document{ID: uuid.New(), Title: "report", Pages: []domain.Page{{Content: "p1"}}}
	if err := functions.SaveDocument(path, doc); err != nil {
		t.Fatalf("save document: %v", err)
	}
	return path
}

// --- Scheduler ---

func TestNew_SkipsDisabledAndInvalid(t *testing.T) {
	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	s, err := New(Config{
		Schedules: []domain.Schedule{
			{Name: "ok", CronExpr: "0 9 * * *", DocumentPath: "a.json", Enabled: true},
			{Name: "off", CronExpr: "0 9 * * *", DocumentPath: "a.json"},
			{Name: "broken", CronExpr: "garbage", DocumentPath: "a.json", Enabled: true},
		},
		Jobs:   &fakeJobs{},
		Logger: testLogger(),
	}, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	active := s.Schedules()
	if len(active) != 1 || active[0].Name != "ok" {
		t.Fatalf("active schedules = %+v", active)
	}
	if active[0].NextDueAt == nil || !active[0].NextDueAt.Equal(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)) {
		t.Errorf("next due = %v", active[0].NextDueAt)
	}
}

func TestNew_DuplicateName(t *testing.T) {
	_, err := New(Config{
		Schedules: []domain.Schedule{
			{Name: "same", CronExpr: "@daily", DocumentPath: "a.json", Enabled: true},
			{Name: "same", CronExpr: "@hourly", DocumentPath: "b.json", Enabled: true},
		},
		Logger: testLogger(),
	}, time.Now())
	if !errors.Is(err, ErrDuplicateSchedule) {
		t.Errorf("expected ErrDuplicateSchedule, got %v", err)
	}
}

func TestTick_CreatesDueJobs(t *testing.T) {
	path := writeDocument(t)
	jobs := &fakeJobs{}
	pub := &fakePublisher{}
	start := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	s, err := New(Config{
		Schedules: []domain.Schedule{
			{Name: "morning", CronExpr: "0 9 * * *", DocumentPath: path, Functions: []string{"duplex"}, Enabled: true},
		},
		Jobs:      jobs,
		Publisher: pub,
		Logger:    testLogger(),
	}, start)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Ещё рано
	if n := s.Tick(context.Background(), start.Add(30*time.Minute)); n != 0 {
		t.Fatalf("expected no jobs before due, got %d", n)
	}

	due := time.Date(2026, 3, 1, 9, 0, 1, 0, time.UTC)
	if n := s.Tick(context.Background(), due); n != 1 {
		t.Fatalf("expected 1 job, got %d", n)
	}

	if len(jobs.jobs) != 1 {
		t.Fatalf("expected 1 stored job, got %d", len(jobs.jobs))
	}
	job := jobs.jobs[0]
	if job.Status != domain.JobStatusPending || job.Source != "schedule:morning" {
		t.Errorf("job = %s from %s", job.Status, job.Source)
	}
	if job.Document.Title != "report" || len(job.Functions) != 1 || job.Functions[0] != "duplex" {
		t.Errorf("job document/functions not copied: %+v", job)
	}
	if len(pub.ids) != 1 || pub.ids[0] != job.ID {
		t.Errorf("published = %v", pub.ids)
	}

	sched := s.Schedules()[0]
	if sched.LastJobID == nil || *sched.LastJobID != job.ID {
		t.Error("schedule should remember last job")
	}
	if !sched.NextDueAt.Equal(time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)) {
		t.Errorf("next due = %v", sched.NextDueAt)
	}

	// Тот же тик повторно — уже не due
	if n := s.Tick(context.Background(), due); n != 0 {
		t.Errorf("expected no duplicate job, got %d", n)
	}
}

func TestTick_Idempotency(t *testing.T) {
	path := writeDocument(t)
	jobs := &fakeJobs{}
	start := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	due := start.Add(2 * time.Hour)
	schedules := []domain.Schedule{{Name: "s", CronExpr: "0 9 * * *", DocumentPath: path, Enabled: true}}

	// Два экземпляра планировщика (например, до и после рестарта)
	first, _ := New(Config{Schedules: schedules, Jobs: jobs, Logger: testLogger()}, start)
	second, _ := New(Config{Schedules: schedules, Jobs: jobs, Logger: testLogger()}, start)

	if n := first.Tick(context.Background(), due); n != 1 {
		t.Fatalf("first tick created %d jobs", n)
	}
	if n := second.Tick(context.Background(), due); n != 0 {
		t.Errorf("second scheduler should not duplicate the job, created %d", n)
	}
	if len(jobs.jobs) != 1 {
		t.Errorf("expected 1 job, got %d", len(jobs.jobs))
	}
}

func TestTick_MissingDocument(t *testing.T) {
	jobs := &fakeJobs{}
	start := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	s, _ := New(Config{
		Schedules: []domain.Schedule{{Name: "s", CronExpr: "0 9 * * *", DocumentPath: filepath.Join(t.TempDir(), "missing.json"), Enabled: true}},
		Jobs:      jobs,
		Logger:    testLogger(),
	}, start)

	if n := s.Tick(context.Background(), start.Add(2*time.Hour)); n != 0 {
		t.Errorf("expected no jobs, got %d", n)
	}
	if len(jobs.jobs) != 0 {
		t.Error("no job should be stored")
	}
	if !s.Schedules()[0].NextDueAt.After(start.Add(2 * time.Hour)) {
		t.Error("next due should move forward after a failed run")
	}
}

func TestTick_PublishFailureKeepsJob(t *testing.T) {
	path := writeDocument(t)
	jobs := &fakeJobs{}
	start := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	s, _ := New(Config{
		Schedules: []domain.Schedule{{Name: "s", CronExpr: "0 9 * * *", DocumentPath: path, Enabled: true}},
		Jobs:      jobs,
		Publisher: &fakePublisher{err: errors.New("broker down")},
		Logger:    testLogger(),
	}, start)

	if n := s.Tick(context.Background(), start.Add(2*time.Hour)); n != 1 {
		t.Errorf("job should be created even if publish fails, got %d", n)
	}
}

func TestRun_WaitsForLeadership(t *testing.T) {
	s, _ := New(Config{Jobs: &fakeJobs{}, Logger: testLogger()}, time.Now())
	lock := &fakeLock{acquire: false}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if err := s.Run(ctx, 5*time.Millisecond, lock); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if lock.attempts == 0 {
		t.Error("scheduler should try to acquire the lock")
	}
	if lock.released {
		t.Error("lock that was never acquired should not be released")
	}

	lock = &fakeLock{acquire: true}
	ctx2, cancel2 := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel2()
	_ = s.Run(ctx2, 5*time.Millisecond, lock)
	if !lock.released {
		t.Error("leader should release the lock on shutdown")
	}
}

func TestLoadDocumentDefault(t *testing.T) {
	s, _ := New(Config{Logger: testLogger()}, time.Now())
	if _, err := s.loadDoc(filepath.Join(os.TempDir(), uuid.NewString()+".json")); err == nil {
		t.Error("default loader should fail on a missing file")
	}
}
