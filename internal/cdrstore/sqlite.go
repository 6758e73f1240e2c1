package cdrstore

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/openlcs/gmlc/internal/cdr"

	_ "modernc.org/sqlite"
)

//go:embed migrations/sqlite/*.sql
var sqliteMigrationsFS embed.FS

// SQLiteStore persists CDRs in an embedded SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite creates or opens the CDR database under dataDir with WAL mode
// enabled and runs any pending migrations.
func OpenSQLite(dataDir string) (*SQLiteStore, error) {
	if err := os.MkdirAll(dataDir, 0750); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "gmlc.db")
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)", dbPath)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// SQLite performs best with a single writer connection.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	slog.Info("cdr store opened", "backend", "sqlite", "path", dbPath)
	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// migrate runs all pending SQL migration files in order.
func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version TEXT PRIMARY KEY,
		applied_at DATETIME DEFAULT (datetime('now'))
	)`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	entries, err := fs.ReadDir(sqliteMigrationsFS, "migrations/sqlite")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version := strings.TrimSuffix(entry.Name(), ".sql")

		var count int
		err := s.db.QueryRow("SELECT COUNT(*) FROM schema_migrations WHERE version = ?", version).Scan(&count)
		if err != nil {
			return fmt.Errorf("checking migration %s: %w", version, err)
		}
		if count > 0 {
			continue
		}

		content, err := sqliteMigrationsFS.ReadFile("migrations/sqlite/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", version, err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %s: %w", version, err)
		}

		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("executing migration %s: %w", version, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %s: %w", version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %s: %w", version, err)
		}

		slog.Info("applied migration", "version", version)
	}

	return nil
}

// Insert persists one finalized CDR.
func (s *SQLiteStore) Insert(ctx context.Context, rec *cdr.Record) error {
	p := projection(rec)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO cdrs (id, start_time, end_time, duration_ms, status, class,
		 flow, kind, msisdn, imsi, latitude, longitude, line)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.StartTime, p.EndTime, p.DurationMS, p.Status, p.Class,
		p.Flow, p.Kind, p.MSISDN, p.IMSI, p.Latitude, p.Longitude, p.Line,
	)
	if err != nil {
		return fmt.Errorf("inserting cdr: %w", err)
	}
	return nil
}

// GetByID returns one stored CDR, or nil when it does not exist.
func (s *SQLiteStore) GetByID(ctx context.Context, id string) (*StoredRecord, error) {
	var p StoredRecord
	err := s.db.QueryRowContext(ctx,
		`SELECT id, start_time, end_time, duration_ms, status, class,
		 flow, kind, msisdn, imsi, latitude, longitude, line
		 FROM cdrs WHERE id = ?`, id,
	).Scan(&p.ID, &p.StartTime, &p.EndTime, &p.DurationMS, &p.Status, &p.Class,
		&p.Flow, &p.Kind, &p.MSISDN, &p.IMSI, &p.Latitude, &p.Longitude, &p.Line)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying cdr: %w", err)
	}
	return &p, nil
}

// List returns CDRs matching the filter, newest first, with the total count.
func (s *SQLiteStore) List(ctx context.Context, filter Filter) ([]StoredRecord, int, error) {
	where := "1=1"
	args := []any{}

	if filter.Status != "" {
		where += " AND status = ?"
		args = append(args, filter.Status)
	}
	if filter.Class != "" {
		where += " AND class = ?"
		args = append(args, filter.Class)
	}
	if filter.Flow != "" {
		where += " AND flow = ?"
		args = append(args, filter.Flow)
	}
	if filter.MSISDN != "" {
		where += " AND msisdn = ?"
		args = append(args, filter.MSISDN)
	}
	if !filter.From.IsZero() {
		where += " AND end_time >= ?"
		args = append(args, filter.From.UTC())
	}
	if !filter.To.IsZero() {
		where += " AND end_time <= ?"
		args = append(args, filter.To.UTC())
	}

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM cdrs WHERE "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting cdrs: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT id, start_time, end_time, duration_ms, status, class,
		 flow, kind, msisdn, imsi, latitude, longitude, line
		 FROM cdrs WHERE ` + where + ` ORDER BY end_time DESC LIMIT ? OFFSET ?`
	args = append(args, limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("listing cdrs: %w", err)
	}
	defer rows.Close()

	var recs []StoredRecord
	for rows.Next() {
		var p StoredRecord
		if err := rows.Scan(&p.ID, &p.StartTime, &p.EndTime, &p.DurationMS, &p.Status,
			&p.Class, &p.Flow, &p.Kind, &p.MSISDN, &p.IMSI,
			&p.Latitude, &p.Longitude, &p.Line); err != nil {
			return nil, 0, fmt.Errorf("scanning cdr row: %w", err)
		}
		recs = append(recs, p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterating cdr rows: %w", err)
	}

	return recs, total, nil
}

// CountByClass returns the number of stored CDRs grouped by result class.
func (s *SQLiteStore) CountByClass(ctx context.Context) (map[string]int64, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT class, COUNT(*) FROM cdrs GROUP BY class")
	if err != nil {
		return nil, fmt.Errorf("counting cdrs by class: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var class string
		var n int64
		if err := rows.Scan(&class, &n); err != nil {
			return nil, fmt.Errorf("scanning count row: %w", err)
		}
		counts[class] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating count rows: %w", err)
	}
	return counts, nil
}
