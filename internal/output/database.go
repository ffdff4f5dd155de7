// internal/output/database.go
package output

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/propertylens/propertylens/internal/config"
	"github.com/propertylens/propertylens/pkg/types"
)

const (
	defaultTable     = "listings"
	defaultBatchSize = 50
)

// sqlListingColumns is the export column order plus run bookkeeping.
// Every database sink inserts in exactly this order.
var sqlListingColumns = append(append([]string{}, types.ListingColumns...), "run_id")

func newDatabaseSink(cfg *config.DatabaseConfig, runID string) (RecordSink, error) {
	switch cfg.Driver {
	case "sqlite3":
		return NewSQLiteSink(cfg, runID)
	case "mysql":
		return NewMySQLSink(cfg, runID)
	case "postgres":
		return NewPostgresSink(cfg, runID)
	case "mongodb":
		return NewMongoSink(cfg, runID)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// listingArgs flattens one record into driver arguments following
// sqlListingColumns, mapping values through the dialect converter.
func listingArgs(record types.ListingRecord, runID string, convert func(interface{}) interface{}) []interface{} {
	fields := record.Map()
	args := make([]interface{}, 0, len(sqlListingColumns))
	for _, column := range sqlListingColumns[:len(sqlListingColumns)-1] {
		args = append(args, convert(fields[column]))
	}
	return append(args, runID)
}

// tableOrDefault falls back to the standard table name when the
// config leaves it empty.
func tableOrDefault(table string) string {
	if table == "" {
		return defaultTable
	}
	return table
}

func batchOrDefault(size int) int {
	if size <= 0 {
		return defaultBatchSize
	}
	return size
}

// dsnDisplay renders a connection target for logs and run summaries
// with any password masked out.
func dsnDisplay(driver, dsn string) string {
	if u, err := url.Parse(dsn); err == nil && u.User != nil {
		return driver + ":" + u.Redacted()
	}
	// mysql DSNs put user:pass before an @ without being URLs.
	if at := strings.LastIndex(dsn, "@"); at >= 0 {
		cred := dsn[:at]
		if colon := strings.Index(cred, ":"); colon >= 0 {
			return driver + ":" + cred[:colon] + ":***" + dsn[at:]
		}
	}
	return driver + ":" + dsn
}
