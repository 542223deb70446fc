package db

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	upMarker   = "-- +up"
	downMarker = "-- +down"

	// MigrationLockKey is the lock name held while migrations are applied.
	MigrationLockKey = "clinic:migrations"
)

// ErrNoDownSection is returned when a migration file has no "-- +down" block.
var ErrNoDownSection = errors.New("migration has no down section")

// Migration represents a single database migration loaded from a SQL file.
// A file may carry an "-- +up" and a "-- +down" section; without markers the
// whole file is the up section.
type Migration struct {
	Version   int
	Name      string
	Up        string
	Down      string
	AppliedAt time.Time
}

// MigrationStatus represents the status of a migration (applied or pending).
type MigrationStatus struct {
	Version   int
	Name      string
	Applied   bool
	AppliedAt *time.Time
}

// Locker serializes migration runs across processes.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// Migrator reads SQL migration files from a directory and applies them.
type Migrator struct {
	pool   *pgxpool.Pool
	dir    string
	locker Locker
}

// NewMigrator creates a Migrator. Migrations run against the connection's
// search_path.
func NewMigrator(pool *pgxpool.Pool, migrationsDir string) *Migrator {
	return &Migrator{pool: pool, dir: migrationsDir}
}

// SetLocker makes Up and Down hold the given lock while they run.
func (m *Migrator) SetLocker(l Locker) {
	m.locker = l
}

func (m *Migrator) lock(ctx context.Context) (func(), error) {
	if m.locker == nil {
		return func() {}, nil
	}
	unlock, err := m.locker.Lock(ctx, MigrationLockKey)
	if err != nil {
		return nil, fmt.Errorf("acquire migration lock: %w", err)
	}
	return unlock, nil
}

// EnsureMigrationsTable creates the _migrations tracking table if it does not
// already exist.
func (m *Migrator) EnsureMigrationsTable(ctx context.Context) error {
	query := `CREATE TABLE IF NOT EXISTS _migrations (
    version INTEGER PRIMARY KEY,
    name VARCHAR(255) NOT NULL,
    applied_at TIMESTAMPTZ DEFAULT NOW()
)`

	if _, err := m.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create _migrations table: %w", err)
	}
	return nil
}

// LoadMigrations reads all .sql files from the migrations directory, parses the
// version number from the filename prefix (e.g., "001_core.sql" -> version 1),
// and returns them sorted by version. Files that do not start with a numeric
// prefix are skipped.
func (m *Migrator) LoadMigrations() ([]Migration, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return nil, fmt.Errorf("read migrations directory %s: %w", m.dir, err)
	}

	var migrations []Migration
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".sql") {
			continue
		}

		parts := strings.SplitN(name, "_", 2)
		if len(parts) < 2 {
			continue
		}
		version, err := strconv.Atoi(parts[0])
		if err != nil {
			continue
		}

		content, err := os.ReadFile(filepath.Join(m.dir, name))
		if err != nil {
			return nil, fmt.Errorf("read migration file %s: %w", name, err)
		}

		up, down := splitSections(string(content))
		migrations = append(migrations, Migration{
			Version: version,
			Name:    name,
			Up:      up,
			Down:    down,
		})
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})

	return migrations, nil
}

// splitSections separates the up and down halves of a migration file.
func splitSections(content string) (up, down string) {
	idx := strings.Index(content, downMarker)
	if idx < 0 {
		up = content
	} else {
		up = content[:idx]
		down = content[idx+len(downMarker):]
	}
	up = strings.TrimSpace(strings.Replace(up, upMarker, "", 1))
	return up, strings.TrimSpace(down)
}

// AppliedVersions returns the versions recorded in _migrations with the time
// each one was applied.
func (m *Migrator) AppliedVersions(ctx context.Context) (map[int]time.Time, error) {
	rows, err := m.pool.Query(ctx, `SELECT version, applied_at FROM _migrations`)
	if err != nil {
		return nil, fmt.Errorf("query applied versions: %w", err)
	}
	defer rows.Close()

	applied := make(map[int]time.Time)
	for rows.Next() {
		var v int
		var at time.Time
		if err := rows.Scan(&v, &at); err != nil {
			return nil, fmt.Errorf("scan migration version: %w", err)
		}
		applied[v] = at
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate applied versions: %w", err)
	}
	return applied, nil
}

// Up applies all pending migrations in version order. Each migration runs in
// its own transaction. Returns the count of applied migrations.
func (m *Migrator) Up(ctx context.Context) (int, error) {
	unlock, err := m.lock(ctx)
	if err != nil {
		return 0, err
	}
	defer unlock()

	if err := m.EnsureMigrationsTable(ctx); err != nil {
		return 0, err
	}
	migrations, err := m.LoadMigrations()
	if err != nil {
		return 0, err
	}
	applied, err := m.AppliedVersions(ctx)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, mig := range migrations {
		if _, ok := applied[mig.Version]; ok {
			continue
		}
		if err := m.run(ctx, mig.Up, "INSERT INTO _migrations (version, name) VALUES ($1, $2)", mig.Version, mig.Name); err != nil {
			return count, fmt.Errorf("apply migration %d (%s): %w", mig.Version, mig.Name, err)
		}
		count++
	}
	return count, nil
}

// Down rolls back the most recent `steps` applied migrations, newest first.
func (m *Migrator) Down(ctx context.Context, steps int) (int, error) {
	if steps <= 0 {
		return 0, nil
	}
	unlock, err := m.lock(ctx)
	if err != nil {
		return 0, err
	}
	defer unlock()

	if err := m.EnsureMigrationsTable(ctx); err != nil {
		return 0, err
	}
	migrations, err := m.LoadMigrations()
	if err != nil {
		return 0, err
	}
	applied, err := m.AppliedVersions(ctx)
	if err != nil {
		return 0, err
	}

	targets := rollbackTargets(migrations, applied, steps)
	count := 0
	for _, mig := range targets {
		if mig.Down == "" {
			return count, fmt.Errorf("roll back migration %d (%s): %w", mig.Version, mig.Name, ErrNoDownSection)
		}
		if err := m.run(ctx, mig.Down, "DELETE FROM _migrations WHERE version = $1", mig.Version); err != nil {
			return count, fmt.Errorf("roll back migration %d (%s): %w", mig.Version, mig.Name, err)
		}
		count++
	}
	return count, nil
}

// rollbackTargets picks the newest applied migrations, newest first.
func rollbackTargets(migrations []Migration, applied map[int]time.Time, steps int) []Migration {
	var targets []Migration
	for i := len(migrations) - 1; i >= 0 && len(targets) < steps; i-- {
		if _, ok := applied[migrations[i].Version]; ok {
			targets = append(targets, migrations[i])
		}
	}
	return targets
}

// run executes one migration body and its bookkeeping statement in a
// transaction.
func (m *Migrator) run(ctx context.Context, body, record string, args ...interface{}) error {
	tx, err := m.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, body); err != nil {
		return fmt.Errorf("execute SQL: %w", err)
	}
	if _, err := tx.Exec(ctx, record, args...); err != nil {
		return fmt.Errorf("record migration: %w", err)
	}
	return tx.Commit(ctx)
}

// Status returns the status of all known migrations, applied and pending.
func (m *Migrator) Status(ctx context.Context) ([]MigrationStatus, error) {
	if err := m.EnsureMigrationsTable(ctx); err != nil {
		return nil, err
	}
	migrations, err := m.LoadMigrations()
	if err != nil {
		return nil, err
	}
	applied, err := m.AppliedVersions(ctx)
	if err != nil {
		return nil, err
	}
	return buildStatus(migrations, applied), nil
}

func buildStatus(migrations []Migration, applied map[int]time.Time) []MigrationStatus {
	statuses := make([]MigrationStatus, 0, len(migrations))
	for _, mig := range migrations {
		status := MigrationStatus{Version: mig.Version, Name: mig.Name}
		if at, ok := applied[mig.Version]; ok {
			appliedAt := at
			status.Applied = true
			status.AppliedAt = &appliedAt
		}
		statuses = append(statuses, status)
	}
	return statuses
}
