// internal/pipeline/processor.go
package pipeline

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/propertylens/propertylens/internal/scraper"
	"github.com/propertylens/propertylens/internal/utils"
	"github.com/propertylens/propertylens/pkg/types"
)

// Stats tracks what the processor did across every batch it has seen.
type Stats struct {
	Processed       int64     `json:"processed"`
	Kept            int64     `json:"kept"`
	Dropped         int64     `json:"dropped"`
	Duplicates      int64     `json:"duplicates"`
	LastProcessedAt time.Time `json:"last_processed_at"`

	// DroppedByPolicy breaks drops down by the policy responsible.
	DroppedByPolicy map[string]int64 `json:"dropped_by_policy,omitempty"`
}

// Processor applies a policy chain to record batches and deduplicates
// across batches, so a multi-locality crawl that revisits a listing on two
// search pages outputs it once. Safe for concurrent use.
type Processor struct {
	mu     sync.Mutex
	chain  Chain
	seen   map[string]bool
	stats  Stats
	logger utils.Logger
}

// NewProcessor builds a processor over a policy chain. A nil logger gets
// the package default.
func NewProcessor(chain Chain, logger utils.Logger) *Processor {
	if logger == nil {
		logger = utils.NewLogger()
	}
	return &Processor{
		chain:  chain,
		seen:   make(map[string]bool),
		logger: logger,
		stats:  Stats{DroppedByPolicy: make(map[string]int64)},
	}
}

// Process runs the chain over a batch and returns the surviving records.
// The input slice is not modified; records are copied before mutation.
func (p *Processor) Process(records []types.ListingRecord) []types.ListingRecord {
	p.mu.Lock()
	defer p.mu.Unlock()

	kept := make([]types.ListingRecord, 0, len(records))
	for i := range records {
		rec := records[i]
		p.stats.Processed++

		dropped, by := p.chain.Apply(&rec)
		if dropped {
			p.stats.Dropped++
			p.stats.DroppedByPolicy[by]++
			p.logger.Debugf("record %s dropped by policy %s", rec.Fingerprint, by)
			continue
		}
		key := dedupeKey(&rec)
		if key != "" && p.seen[key] {
			p.stats.Duplicates++
			continue
		}
		if key != "" {
			p.seen[key] = true
		}
		p.stats.Kept++
		kept = append(kept, rec)
	}
	p.stats.LastProcessedAt = time.Now()
	return kept
}

// Stats returns a snapshot of the processor counters.
func (p *Processor) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	snap := p.stats
	snap.DroppedByPolicy = make(map[string]int64, len(p.stats.DroppedByPolicy))
	for k, v := range p.stats.DroppedByPolicy {
		snap.DroppedByPolicy[k] = v
	}
	return snap
}

// dedupeKey identifies a listing across localities and rounds: the detail
// URL when present, else the card fingerprint, else a content key. Records
// with no identity at all are never deduplicated.
func dedupeKey(r *types.ListingRecord) string {
	if r.PropertyURL != "" {
		return "url:" + r.PropertyURL
	}
	if r.Fingerprint != "" {
		return "fp:" + string(r.Site) + ":" + r.Fingerprint
	}
	if r.Title == "" && r.Price == "" {
		return ""
	}
	return "content:" + strings.ToLower(r.Title) + "|" + r.Price + "|" + strings.ToLower(r.Locality)
}

// Sink filters records through a processor on their way to another sink.
// It satisfies the driver's sink contract, so it can sit between a run and
// the output manager without either knowing.
type Sink struct {
	next scraper.Sink
	proc *Processor
}

// NewSink wraps next with post-processing.
func NewSink(next scraper.Sink, proc *Processor) *Sink {
	return &Sink{next: next, proc: proc}
}

// Write processes the batch and forwards the survivors. A batch with no
// survivors is not forwarded.
func (s *Sink) Write(ctx context.Context, records []types.ListingRecord) error {
	kept := s.proc.Process(records)
	if len(kept) == 0 {
		return nil
	}
	return s.next.Write(ctx, kept)
}
