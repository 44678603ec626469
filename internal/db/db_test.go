package db

import (
	"io/fs"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

func TestText(t *testing.T) {
	t.Parallel()

	if got := Text("  "); got.Valid {
		t.Fatalf("blank string should be NULL, got %+v", got)
	}
	got := Text(" John ")
	if !got.Valid || got.String != "John" {
		t.Fatalf("unexpected text: %+v", got)
	}
	if TextValue(pgtype.Text{}) != "" {
		t.Fatal("NULL text should read as empty")
	}
	if TextValue(got) != "John" {
		t.Fatalf("unexpected value: %q", TextValue(got))
	}
}

func TestTimestamptz(t *testing.T) {
	t.Parallel()

	if Timestamptz(time.Time{}).Valid {
		t.Fatal("zero time should be NULL")
	}
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.FixedZone("UZT", 5*3600))
	ts := Timestamptz(now)
	if !ts.Valid || !ts.Time.Equal(now) || ts.Time.Location() != time.UTC {
		t.Fatalf("unexpected timestamptz: %+v", ts)
	}
	if !TimeValue(ts).Equal(now) {
		t.Fatal("round trip mismatch")
	}
}

func TestMigrationURL(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"postgres://u:p@h:5432/db?sslmode=disable":   "pgx5://u:p@h:5432/db?sslmode=disable",
		"postgresql://u:p@h:5432/db?sslmode=disable": "pgx5://u:p@h:5432/db?sslmode=disable",
		"pgx5://already": "pgx5://already",
	}
	for in, want := range cases {
		if got := migrationURL(in); got != want {
			t.Fatalf("migrationURL(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	t.Parallel()

	entries, err := fs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		t.Fatalf("read migrations: %v", err)
	}
	ups := map[string]bool{}
	downs := map[string]bool{}
	for _, entry := range entries {
		name := entry.Name()
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			ups[strings.TrimSuffix(name, ".up.sql")] = true
		case strings.HasSuffix(name, ".down.sql"):
			downs[strings.TrimSuffix(name, ".down.sql")] = true
		}
	}
	if len(ups) == 0 {
		t.Fatal("no migrations embedded")
	}
	for version := range ups {
		if !downs[version] {
			t.Fatalf("migration %s has no down script", version)
		}
	}
}
