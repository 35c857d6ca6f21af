package repo

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestIsUniqueViolation(t *testing.T) {
	err := fmt.Errorf("insert job: %w", &pgconn.PgError{Code: "23505"})
	if !isUniqueViolation(err) {
		t.Error("expected unique violation")
	}
	if isUniqueViolation(&pgconn.PgError{Code: "23503"}) {
		t.Error("foreign key violation is not a unique violation")
	}
	if isUniqueViolation(errors.New("plain")) {
		t.Error("plain error is not a unique violation")
	}
}

func TestNullHelpers(t *testing.T) {
	if nullString("") != nil {
		t.Error("empty string should be NULL")
	}
	if s := nullString("x"); s == nil || *s != "x" {
		t.Error("non-empty string should be kept")
	}
	if derefString(nil) != "" || derefString(nullString("y")) != "y" {
		t.Error("derefString")
	}
	if got := nonNil(nil); got == nil || len(got) != 0 {
		t.Error("nil slice should become empty")
	}
}

func TestJobFilter_Normalize(t *testing.T) {
	f := JobFilter{Limit: 0, Offset: -5}.normalize()
	if f.Limit != 50 || f.Offset != 0 {
		t.Errorf("normalize = %+v", f)
	}
	if (JobFilter{Limit: 10}).normalize().Limit != 10 {
		t.Error("explicit limit should be kept")
	}
	if (JobFilter{Limit: 10000}).normalize().Limit != 50 {
		t.Error("oversized limit should be clamped")
	}
}

func TestMigrations_Embedded(t *testing.T) {
	names, err := migrationNames()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(names) == 0 || names[0] != "migrations/001_init.sql" {
		t.Fatalf("migrations = %v", names)
	}

	sql, _ := migrations.ReadFile(names[0])
	for _, table := range []string{"jobs", "job_stages"} {
		if !strings.Contains(string(sql), "CREATE TABLE IF NOT EXISTS "+table) {
			t.Errorf("migration should create %s", table)
		}
	}
}
