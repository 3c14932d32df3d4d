package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

var migrationsDir = filepath.Join("..", "..", "db", "migrations")

var migrationName = regexp.MustCompile(`^(\d+)_.*\.(up|down)\.sql$`)

func TestMigrationsComeInPairs(t *testing.T) {
	entries, err := os.ReadDir(migrationsDir)
	if err != nil {
		t.Fatalf("read migrations dir: %v", err)
	}

	directions := map[string]map[string]bool{}
	for _, entry := range entries {
		match := migrationName.FindStringSubmatch(entry.Name())
		if entry.IsDir() || match == nil {
			continue
		}
		version, direction := match[1], match[2]
		if directions[version] == nil {
			directions[version] = map[string]bool{}
		}
		if directions[version][direction] {
			t.Fatalf("version %s has two %s files", version, direction)
		}
		directions[version][direction] = true
	}

	if len(directions) == 0 {
		t.Fatal("no migrations found")
	}
	for version, seen := range directions {
		if !seen["up"] || !seen["down"] {
			t.Fatalf("version %s is missing its up or down file", version)
		}
	}
}

// The tests below need a disposable Postgres database.
func testDatabase(t *testing.T) *sql.DB {
	t.Helper()
	dsn := strings.TrimSpace(os.Getenv("INKWELL_TEST_DATABASE_URL"))
	if dsn == "" {
		t.Skip("INKWELL_TEST_DATABASE_URL is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	db, err := Open(ctx, dsn)
	if err != nil {
		t.Fatalf("open postgres: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if _, err := db.ExecContext(ctx, `DROP SCHEMA IF EXISTS public CASCADE; CREATE SCHEMA public;`); err != nil {
		t.Fatalf("reset schema: %v", err)
	}
	return db
}

func TestMigrationsRoundTrip(t *testing.T) {
	db := testDatabase(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if _, err := ApplyMigrations(ctx, db, migrationsDir); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	if err := revertMigrations(ctx, db); err != nil {
		t.Fatalf("revert migrations: %v", err)
	}
	if _, err := db.ExecContext(ctx, `DELETE FROM schema_migrations`); err != nil {
		t.Fatalf("clear schema_migrations: %v", err)
	}
	if _, err := ApplyMigrations(ctx, db, migrationsDir); err != nil {
		t.Fatalf("re-apply migrations: %v", err)
	}
}

func TestContentActivitiesRejectUpdates(t *testing.T) {
	db := testDatabase(t)
	ctx := context.Background()
	if _, err := ApplyMigrations(ctx, db, migrationsDir); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}

	st := NewPostgresStore(db)
	if err := st.CreateTeam(ctx, Team{ID: "team_1", Name: "Acme", Slug: "acme"}, TeamMember{UserID: "user_1", Role: "OWNER"}); err != nil {
		t.Fatalf("create team: %v", err)
	}
	if err := st.CreateContent(ctx, Content{ID: "cnt_1", TeamID: "team_1", Title: "Launch", Status: StatusDraft, CreatedBy: "user_1"}); err != nil {
		t.Fatalf("create content: %v", err)
	}

	_, err := db.ExecContext(ctx, `UPDATE content_activities SET action='edited' WHERE content_id='cnt_1'`)
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		t.Fatalf("expected postgres error, got %v", err)
	}
	if pgErr.Message != "content_activities is append-only" {
		t.Fatalf("unexpected message: %s", pgErr.Message)
	}
}

func revertMigrations(ctx context.Context, db *sql.DB) error {
	entries, err := os.ReadDir(migrationsDir)
	if err != nil {
		return err
	}
	var downs []string
	for _, entry := range entries {
		match := migrationName.FindStringSubmatch(entry.Name())
		if match != nil && match[2] == "down" {
			downs = append(downs, entry.Name())
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(downs)))

	for _, name := range downs {
		contents, err := os.ReadFile(filepath.Join(migrationsDir, name))
		if err != nil {
			return err
		}
		if _, err := db.ExecContext(ctx, string(contents)); err != nil {
			return err
		}
	}
	return nil
}
