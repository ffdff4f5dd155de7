// internal/output/postgres.go
package output

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/propertylens/propertylens/internal/config"
	"github.com/propertylens/propertylens/pkg/types"
)

// PostgresSink batch-inserts listings with an upsert on fingerprint.
type PostgresSink struct {
	db        *sql.DB
	display   string
	table     string
	runID     string
	batchSize int
}

func NewPostgresSink(cfg *config.DatabaseConfig, runID string) (*PostgresSink, error) {
	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("opening PostgreSQL connection: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging PostgreSQL: %w", err)
	}

	s := &PostgresSink{
		db:        db,
		display:   dsnDisplay("postgres", cfg.DSN),
		table:     tableOrDefault(cfg.Table),
		runID:     runID,
		batchSize: batchOrDefault(cfg.BatchSize),
	}
	if err := s.ensureTable(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating table %s: %w", s.table, err)
	}
	return s, nil
}

func (s *PostgresSink) ensureTable() error {
	defs := make([]string, 0, len(sqlListingColumns)+1)
	defs = append(defs, `"fingerprint" TEXT PRIMARY KEY`)
	for _, column := range sqlListingColumns {
		if column == "fingerprint" {
			continue
		}
		defs = append(defs, fmt.Sprintf("%s %s", pgQuote(column), postgresColumnType(column)))
	}
	defs = append(defs, `"created_at" TIMESTAMPTZ DEFAULT NOW()`)
	query := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n\t%s\n)", pgQuote(s.table), strings.Join(defs, ",\n\t"))
	_, err := s.db.Exec(query)
	return err
}

func postgresColumnType(column string) string {
	switch column {
	case "position", "area_sqft", "image_count":
		return "INTEGER"
	case "verified_tag", "premium_tag":
		return "BOOLEAN"
	case "price_amount":
		return "DOUBLE PRECISION"
	case "extracted_at":
		return "TIMESTAMPTZ"
	default:
		return "TEXT"
	}
}

func (s *PostgresSink) Write(ctx context.Context, records []types.ListingRecord) error {
	for start := 0; start < len(records); start += s.batchSize {
		end := start + s.batchSize
		if end > len(records) {
			end = len(records)
		}
		if err := s.writeBatch(ctx, records[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (s *PostgresSink) writeBatch(ctx context.Context, batch []types.ListingRecord) error {
	if len(batch) == 0 {
		return nil
	}
	args := make([]interface{}, 0, len(batch)*len(sqlListingColumns))
	for _, record := range batch {
		args = append(args, listingArgs(record, s.runID, postgresValue)...)
	}
	if _, err := s.db.ExecContext(ctx, postgresUpsertQuery(s.table, len(batch)), args...); err != nil {
		return fmt.Errorf("inserting %d listings: %w", len(batch), err)
	}
	return nil
}

// postgresUpsertQuery builds a multi-row INSERT with numbered
// placeholders and an EXCLUDED update on fingerprint collision.
func postgresUpsertQuery(table string, rows int) string {
	cols := len(sqlListingColumns)
	values := make([]string, rows)
	for i := 0; i < rows; i++ {
		refs := make([]string, cols)
		for j := 0; j < cols; j++ {
			refs[j] = fmt.Sprintf("$%d", i*cols+j+1)
		}
		values[i] = "(" + strings.Join(refs, ", ") + ")"
	}

	quoted := make([]string, cols)
	updates := make([]string, 0, cols)
	for i, column := range sqlListingColumns {
		quoted[i] = pgQuote(column)
		if column == "fingerprint" {
			continue
		}
		updates = append(updates, fmt.Sprintf("%s = EXCLUDED.%s", pgQuote(column), pgQuote(column)))
	}

	return fmt.Sprintf("INSERT INTO %s (%s) VALUES %s ON CONFLICT (fingerprint) DO UPDATE SET %s",
		pgQuote(table),
		strings.Join(quoted, ", "),
		strings.Join(values, ", "),
		strings.Join(updates, ", "))
}

func (s *PostgresSink) Close() error {
	return s.db.Close()
}

func (s *PostgresSink) Path() string {
	return s.display
}

// postgresValue maps zero times to NULL; lib/pq takes times and
// booleans natively.
func postgresValue(value interface{}) interface{} {
	switch v := value.(type) {
	case time.Time:
		if v.IsZero() {
			return nil
		}
		return v
	default:
		return value
	}
}

func pgQuote(identifier string) string {
	return `"` + strings.ReplaceAll(identifier, `"`, `""`) + `"`
}
