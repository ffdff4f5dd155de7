// internal/output/csv.go
package output

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/propertylens/propertylens/pkg/types"
)

// CSVSink streams listings into a single CSV file. The header row is
// written up front so a partial run still yields a usable file.
type CSVSink struct {
	path   string
	file   *os.File
	writer *csv.Writer
}

func NewCSVSink(path string) (*CSVSink, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating %s: %w", path, err)
	}
	writer := csv.NewWriter(file)
	if err := writer.Write(types.ListingColumns); err != nil {
		file.Close()
		return nil, fmt.Errorf("writing CSV header: %w", err)
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		file.Close()
		return nil, fmt.Errorf("writing CSV header: %w", err)
	}
	return &CSVSink{path: path, file: file, writer: writer}, nil
}

func (s *CSVSink) Write(_ context.Context, records []types.ListingRecord) error {
	row := make([]string, len(types.ListingColumns))
	for _, record := range records {
		fields := record.Map()
		for i, column := range types.ListingColumns {
			row[i] = cellString(fields[column])
		}
		if err := s.writer.Write(row); err != nil {
			return fmt.Errorf("writing CSV row: %w", err)
		}
	}
	s.writer.Flush()
	return s.writer.Error()
}

func (s *CSVSink) Close() error {
	if s.file == nil {
		return nil
	}
	s.writer.Flush()
	err := s.writer.Error()
	if cerr := s.file.Close(); err == nil {
		err = cerr
	}
	s.file = nil
	return err
}

func (s *CSVSink) Path() string {
	return s.path
}

// cellString renders one flattened field for tabular output. Zero
// prices render empty rather than as a misleading 0.
func cellString(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case int:
		return strconv.Itoa(v)
	case float64:
		if v == 0 {
			return ""
		}
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	case time.Time:
		if v.IsZero() {
			return ""
		}
		return v.Format(time.RFC3339)
	default:
		return fmt.Sprintf("%v", v)
	}
}
