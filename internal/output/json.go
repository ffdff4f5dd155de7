// internal/output/json.go
package output

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/propertylens/propertylens/pkg/types"
)

// JSONSink writes listings either as one indented JSON array or, in
// lines mode, as newline-delimited JSON with one listing per line.
// Array mode buffers in memory and writes the document on Close so the
// file is always valid JSON; lines mode streams as batches arrive.
type JSONSink struct {
	path    string
	lines   bool
	file    *os.File
	encoder *json.Encoder
	records []types.ListingRecord
}

func NewJSONSink(path string, lines bool) (*JSONSink, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating %s: %w", path, err)
	}
	s := &JSONSink{path: path, lines: lines, file: file}
	if lines {
		s.encoder = json.NewEncoder(file)
	}
	return s, nil
}

func (s *JSONSink) Write(_ context.Context, records []types.ListingRecord) error {
	if !s.lines {
		s.records = append(s.records, records...)
		return nil
	}
	for _, record := range records {
		if err := s.encoder.Encode(record); err != nil {
			return fmt.Errorf("encoding listing %s: %w", record.Fingerprint, err)
		}
	}
	return nil
}

func (s *JSONSink) Close() error {
	if s.file == nil {
		return nil
	}
	var err error
	if !s.lines {
		if s.records == nil {
			s.records = []types.ListingRecord{}
		}
		encoder := json.NewEncoder(s.file)
		encoder.SetIndent("", "  ")
		err = encoder.Encode(s.records)
	}
	if cerr := s.file.Close(); err == nil {
		err = cerr
	}
	s.file = nil
	return err
}

func (s *JSONSink) Path() string {
	return s.path
}
