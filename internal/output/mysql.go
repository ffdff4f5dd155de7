// internal/output/mysql.go
package output

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"github.com/propertylens/propertylens/internal/config"
	"github.com/propertylens/propertylens/pkg/types"
)

// MySQLSink batch-inserts listings, updating existing rows when the
// fingerprint is already present.
type MySQLSink struct {
	db        *sql.DB
	display   string
	table     string
	runID     string
	batchSize int
}

func NewMySQLSink(cfg *config.DatabaseConfig, runID string) (*MySQLSink, error) {
	db, err := sql.Open("mysql", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("opening MySQL connection: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging MySQL: %w", err)
	}

	s := &MySQLSink{
		db:        db,
		display:   dsnDisplay("mysql", cfg.DSN),
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

func (s *MySQLSink) ensureTable() error {
	defs := make([]string, 0, len(sqlListingColumns)+1)
	defs = append(defs, "`fingerprint` VARCHAR(64) PRIMARY KEY")
	for _, column := range sqlListingColumns {
		if column == "fingerprint" {
			continue
		}
		defs = append(defs, fmt.Sprintf("`%s` %s", column, mysqlColumnType(column)))
	}
	defs = append(defs, "`created_at` DATETIME DEFAULT CURRENT_TIMESTAMP")
	query := fmt.Sprintf("CREATE TABLE IF NOT EXISTS `%s` (\n\t%s\n)", s.table, strings.Join(defs, ",\n\t"))
	_, err := s.db.Exec(query)
	return err
}

func mysqlColumnType(column string) string {
	switch column {
	case "position", "area_sqft", "image_count":
		return "INT"
	case "verified_tag", "premium_tag":
		return "TINYINT(1)"
	case "price_amount":
		return "DOUBLE"
	case "extracted_at":
		return "DATETIME NULL"
	case "title", "property_url", "description", "image_urls", "nearby_places", "amenities", "highlights":
		return "TEXT"
	default:
		return "VARCHAR(255)"
	}
}

func (s *MySQLSink) Write(ctx context.Context, records []types.ListingRecord) error {
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

func (s *MySQLSink) writeBatch(ctx context.Context, batch []types.ListingRecord) error {
	if len(batch) == 0 {
		return nil
	}
	args := make([]interface{}, 0, len(batch)*len(sqlListingColumns))
	for _, record := range batch {
		args = append(args, listingArgs(record, s.runID, mysqlValue)...)
	}
	if _, err := s.db.ExecContext(ctx, mysqlUpsertQuery(s.table, len(batch)), args...); err != nil {
		return fmt.Errorf("inserting %d listings: %w", len(batch), err)
	}
	return nil
}

// mysqlUpsertQuery builds a multi-row INSERT that refreshes every
// column on fingerprint collision.
func mysqlUpsertQuery(table string, rows int) string {
	row := "(" + strings.TrimSuffix(strings.Repeat("?,", len(sqlListingColumns)), ",") + ")"
	values := make([]string, rows)
	for i := range values {
		values[i] = row
	}

	updates := make([]string, 0, len(sqlListingColumns))
	for _, column := range sqlListingColumns {
		if column == "fingerprint" {
			continue
		}
		updates = append(updates, fmt.Sprintf("`%s` = VALUES(`%s`)", column, column))
	}

	return fmt.Sprintf("INSERT INTO `%s` (`%s`) VALUES %s ON DUPLICATE KEY UPDATE %s",
		table,
		strings.Join(sqlListingColumns, "`, `"),
		strings.Join(values, ", "),
		strings.Join(updates, ", "))
}

func (s *MySQLSink) Close() error {
	return s.db.Close()
}

func (s *MySQLSink) Path() string {
	return s.display
}

// mysqlValue converts times to DATETIME literals; everything else the
// driver handles natively.
func mysqlValue(value interface{}) interface{} {
	switch v := value.(type) {
	case time.Time:
		if v.IsZero() {
			return nil
		}
		return v.Format("2006-01-02 15:04:05")
	default:
		return value
	}
}
