// internal/output/output.go
package output

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/propertylens/propertylens/internal/config"
	"github.com/propertylens/propertylens/internal/utils"
	"github.com/propertylens/propertylens/pkg/types"
)

// RecordSink receives batches of extracted listings. Implementations
// must accept any number of Write calls followed by exactly one Close.
type RecordSink interface {
	Write(ctx context.Context, records []types.ListingRecord) error
	Close() error
	// Path identifies the destination for run summaries: a file path
	// for report sinks, a redacted target for database sinks.
	Path() string
}

// Manager fans each batch out to every configured destination. It
// satisfies the crawl driver's flush contract, so a single run can
// feed CSV, JSON, Excel and a database at the same time.
type Manager struct {
	sinks  []RecordSink
	logger utils.Logger
}

// NewManager builds the sink set for one run. File sinks are named
// <site>_listings_<timestamp>_run-<id>.<ext> under cfg.Directory; the
// directory is created if missing. A nil database section means no
// database sink.
func NewManager(cfg *config.OutputConfig, site types.Site, runID string, logger utils.Logger) (*Manager, error) {
	if cfg == nil {
		return nil, errors.New("output configuration is required")
	}
	if logger == nil {
		logger = utils.NewLogger()
	}
	m := &Manager{logger: logger.WithField("component", "output")}

	if len(cfg.Formats) > 0 && cfg.Directory != "" {
		if err := os.MkdirAll(cfg.Directory, 0755); err != nil {
			return nil, fmt.Errorf("creating output directory %s: %w", cfg.Directory, err)
		}
	}

	stamp := time.Now().Format("20060102_150405")
	fileName := func(ext string) string {
		return filepath.Join(cfg.Directory, fmt.Sprintf("%s_listings_%s_run-%s.%s", site, stamp, runID, ext))
	}

	for _, format := range cfg.Formats {
		var (
			sink RecordSink
			err  error
		)
		switch format {
		case "csv":
			sink, err = NewCSVSink(fileName("csv"))
		case "json":
			ext := "json"
			if cfg.JSONLines {
				ext = "jsonl"
			}
			sink, err = NewJSONSink(fileName(ext), cfg.JSONLines)
		case "excel":
			sink = NewExcelReport(fileName("xlsx"), site, runID, m.logger)
		default:
			err = fmt.Errorf("unsupported output format %q", format)
		}
		if err != nil {
			m.discard()
			return nil, err
		}
		m.sinks = append(m.sinks, sink)
	}

	if cfg.Database != nil {
		sink, err := newDatabaseSink(cfg.Database, runID)
		if err != nil {
			m.discard()
			return nil, fmt.Errorf("opening database sink: %w", err)
		}
		m.sinks = append(m.sinks, sink)
	}

	return m, nil
}

// Write forwards the batch to every sink. A failing sink does not
// block the others; the joined error reports each failure by
// destination.
func (m *Manager) Write(ctx context.Context, records []types.ListingRecord) error {
	if len(records) == 0 {
		return nil
	}
	var errs []error
	for _, sink := range m.sinks {
		if err := sink.Write(ctx, records); err != nil {
			m.logger.Warnf("sink %s failed: %v", sink.Path(), err)
			errs = append(errs, fmt.Errorf("%s: %w", sink.Path(), err))
		}
	}
	return errors.Join(errs...)
}

// Close finalizes every sink. Buffered sinks (JSON arrays, Excel
// workbooks) write their files here.
func (m *Manager) Close() error {
	var errs []error
	for _, sink := range m.sinks {
		if err := sink.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", sink.Path(), err))
		}
	}
	return errors.Join(errs...)
}

// Paths lists every destination, for run summaries. Call after Close:
// the Excel sink may have swapped its path for a CSV fallback.
func (m *Manager) Paths() []string {
	paths := make([]string, 0, len(m.sinks))
	for _, sink := range m.sinks {
		paths = append(paths, sink.Path())
	}
	return paths
}

// SinkCount reports how many destinations are wired. Zero is legal:
// extracted listings are then only counted, never persisted.
func (m *Manager) SinkCount() int {
	return len(m.sinks)
}

// discard closes sinks opened before a construction failure.
func (m *Manager) discard() {
	for _, sink := range m.sinks {
		_ = sink.Close()
	}
	m.sinks = nil
}
