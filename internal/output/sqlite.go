// internal/output/sqlite.go
package output

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/propertylens/propertylens/internal/config"
	"github.com/propertylens/propertylens/pkg/types"
)

// SQLiteSink upserts listings into a local SQLite file keyed by
// fingerprint, so re-running a locality refreshes rows instead of
// duplicating them.
type SQLiteSink struct {
	db    *sql.DB
	path  string
	table string
	runID string
}

func NewSQLiteSink(cfg *config.DatabaseConfig, runID string) (*SQLiteSink, error) {
	path := cfg.DSN
	if dir := filepath.Dir(path); dir != "." && path != ":memory:" && !strings.HasPrefix(path, "file:") {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory %s: %w", dir, err)
		}
	}

	dsn := path
	if !strings.Contains(dsn, "?") {
		dsn += "?_busy_timeout=5000&_journal_mode=WAL"
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening SQLite database: %w", err)
	}
	// SQLite allows one writer at a time; a single connection avoids
	// SQLITE_BUSY under concurrent flushes.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging SQLite database: %w", err)
	}

	s := &SQLiteSink{db: db, path: path, table: tableOrDefault(cfg.Table), runID: runID}
	if err := s.ensureTable(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating table %s: %w", s.table, err)
	}
	return s, nil
}

func (s *SQLiteSink) ensureTable() error {
	defs := make([]string, 0, len(sqlListingColumns)+1)
	defs = append(defs, "[fingerprint] TEXT PRIMARY KEY")
	for _, column := range sqlListingColumns {
		if column == "fingerprint" {
			continue
		}
		defs = append(defs, fmt.Sprintf("[%s] %s", column, sqliteColumnType(column)))
	}
	defs = append(defs, "[created_at] DATETIME DEFAULT CURRENT_TIMESTAMP")
	query := fmt.Sprintf("CREATE TABLE IF NOT EXISTS [%s] (\n\t%s\n)", s.table, strings.Join(defs, ",\n\t"))
	_, err := s.db.Exec(query)
	return err
}

func sqliteColumnType(column string) string {
	switch column {
	case "position", "area_sqft", "image_count", "verified_tag", "premium_tag":
		return "INTEGER"
	case "price_amount":
		return "REAL"
	case "extracted_at":
		return "DATETIME"
	default:
		return "TEXT"
	}
}

func (s *SQLiteSink) Write(ctx context.Context, records []types.ListingRecord) error {
	if len(records) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	quoted := make([]string, len(sqlListingColumns))
	for i, column := range sqlListingColumns {
		quoted[i] = "[" + column + "]"
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(sqlListingColumns)), ",")
	query := fmt.Sprintf("INSERT OR REPLACE INTO [%s] (%s) VALUES (%s)",
		s.table, strings.Join(quoted, ", "), placeholders)

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("preparing upsert: %w", err)
	}
	defer stmt.Close()

	for _, record := range records {
		if _, err := stmt.ExecContext(ctx, listingArgs(record, s.runID, sqliteValue)...); err != nil {
			return fmt.Errorf("upserting listing %s: %w", record.Fingerprint, err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteSink) Close() error {
	return s.db.Close()
}

func (s *SQLiteSink) Path() string {
	return "sqlite3:" + s.path
}

// sqliteValue keeps arguments inside SQLite's scalar set: booleans
// become 0/1, times RFC3339 text.
func sqliteValue(value interface{}) interface{} {
	switch v := value.(type) {
	case bool:
		if v {
			return 1
		}
		return 0
	case time.Time:
		if v.IsZero() {
			return nil
		}
		return v.Format(time.RFC3339)
	default:
		return value
	}
}
