// internal/dashboard/store.go

// Package dashboard persists crawl history and deduplicated listings in
// SQLite and serves them over a small HTTP API. The store outlives
// individual runs: listings accumulate across runs keyed on a stable
// identity, runs keep their final summaries for the history view.
package dashboard

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/propertylens/propertylens/pkg/types"
)

//go:embed schema.sql
var schemaFS embed.FS

const (
	defaultRunHistory = 10
	defaultPageSize   = 50
	maxPageSize       = 500
)

// Store wraps the dashboard database. All timestamps are stored as
// RFC3339 UTC text so lexicographic order is chronological order.
type Store struct {
	*sqlx.DB
}

// Open opens or creates the SQLite store at path and applies the schema.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." && path != ":memory:" && !strings.HasPrefix(path, "file:") {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create store directory: %w", err)
		}
	}
	dsn := path
	if !strings.Contains(dsn, "?") {
		dsn += "?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on"
	}
	db, err := sqlx.Connect("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open dashboard store: %w", err)
	}
	// SQLite allows one writer at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db}, nil
}

func migrate(db *sqlx.DB) error {
	schema, err := schemaFS.ReadFile("schema.sql")
	if err != nil {
		return fmt.Errorf("read embedded schema: %w", err)
	}
	if _, err := db.Exec(string(schema)); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// storedRun is the database image of a run summary. Slices and maps are
// JSON-encoded, times RFC3339.
type storedRun struct {
	RunID            string `db:"run_id"`
	Site             string `db:"site"`
	Status           string `db:"status"`
	Reason           string `db:"done_reason"`
	City             string `db:"city"`
	Localities       string `db:"localities"`
	StartedAt        string `db:"started_at"`
	FinishedAt       string `db:"finished_at"`
	TargetListings   int    `db:"target_listings"`
	PagesVisited     int    `db:"pages_visited"`
	RoundsAdvanced   int    `db:"rounds_advanced"`
	CardsSeen        int    `db:"cards_seen"`
	CardsValid       int    `db:"cards_valid"`
	RecordsExtracted int    `db:"records_extracted"`
	RecordsDropped   int    `db:"records_dropped"`
	RecordsSaved     int    `db:"records_saved"`
	FieldFailures    string `db:"field_failures"`
	ErrorCounts      string `db:"error_counts"`
	OutputPaths      string `db:"output_paths"`
	LogPath          string `db:"log_path"`
}

func newStoredRun(sum types.RunSummary) storedRun {
	return storedRun{
		RunID:            sum.RunID,
		Site:             string(sum.Site),
		Status:           string(sum.Status),
		Reason:           string(sum.Reason),
		City:             sum.City,
		Localities:       marshalList(sum.Localities),
		StartedAt:        formatTime(sum.StartedAt),
		FinishedAt:       formatTime(sum.FinishedAt),
		TargetListings:   sum.TargetListings,
		PagesVisited:     sum.PagesVisited,
		RoundsAdvanced:   sum.RoundsAdvanced,
		CardsSeen:        sum.CardsSeen,
		CardsValid:       sum.CardsValid,
		RecordsExtracted: sum.RecordsExtracted,
		RecordsDropped:   sum.RecordsDropped,
		RecordsSaved:     sum.RecordsSaved,
		FieldFailures:    marshalCounts(sum.FieldFailures),
		ErrorCounts:      marshalCounts(sum.ErrorCounts),
		OutputPaths:      marshalList(sum.OutputPaths),
		LogPath:          sum.LogPath,
	}
}

func (r storedRun) summary() types.RunSummary {
	return types.RunSummary{
		RunID:            r.RunID,
		Site:             types.Site(r.Site),
		Status:           types.RunStatus(r.Status),
		Reason:           types.DoneReason(r.Reason),
		City:             r.City,
		Localities:       unmarshalList(r.Localities),
		StartedAt:        parseTime(r.StartedAt),
		FinishedAt:       parseTime(r.FinishedAt),
		TargetListings:   r.TargetListings,
		PagesVisited:     r.PagesVisited,
		RoundsAdvanced:   r.RoundsAdvanced,
		CardsSeen:        r.CardsSeen,
		CardsValid:       r.CardsValid,
		RecordsExtracted: r.RecordsExtracted,
		RecordsDropped:   r.RecordsDropped,
		RecordsSaved:     r.RecordsSaved,
		FieldFailures:    unmarshalCounts(r.FieldFailures),
		ErrorCounts:      unmarshalCounts(r.ErrorCounts),
		OutputPaths:      unmarshalList(r.OutputPaths),
		LogPath:          r.LogPath,
	}
}

const runUpsertSQL = `
INSERT INTO runs (
	run_id, site, status, done_reason, city, localities,
	started_at, finished_at,
	target_listings, pages_visited, rounds_advanced,
	cards_seen, cards_valid, records_extracted, records_dropped, records_saved,
	field_failures, error_counts, output_paths, log_path
) VALUES (
	:run_id, :site, :status, :done_reason, :city, :localities,
	:started_at, :finished_at,
	:target_listings, :pages_visited, :rounds_advanced,
	:cards_seen, :cards_valid, :records_extracted, :records_dropped, :records_saved,
	:field_failures, :error_counts, :output_paths, :log_path
)
ON CONFLICT(run_id) DO UPDATE SET
	site = excluded.site,
	status = excluded.status,
	done_reason = excluded.done_reason,
	city = excluded.city,
	localities = excluded.localities,
	started_at = excluded.started_at,
	finished_at = excluded.finished_at,
	target_listings = excluded.target_listings,
	pages_visited = excluded.pages_visited,
	rounds_advanced = excluded.rounds_advanced,
	cards_seen = excluded.cards_seen,
	cards_valid = excluded.cards_valid,
	records_extracted = excluded.records_extracted,
	records_dropped = excluded.records_dropped,
	records_saved = excluded.records_saved,
	field_failures = excluded.field_failures,
	error_counts = excluded.error_counts,
	output_paths = excluded.output_paths,
	log_path = excluded.log_path
`

// SaveRun inserts or replaces a run summary keyed on its run id. It is
// called once when a run starts and again with the final summary, so a
// crashed run stays visible as running until overwritten.
func (s *Store) SaveRun(ctx context.Context, sum types.RunSummary) error {
	if sum.RunID == "" {
		return fmt.Errorf("save run: empty run id")
	}
	if _, err := s.NamedExecContext(ctx, runUpsertSQL, newStoredRun(sum)); err != nil {
		return fmt.Errorf("save run %s: %w", sum.RunID, err)
	}
	return nil
}

// ListRuns returns the most recent runs, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]types.RunSummary, error) {
	if limit <= 0 {
		limit = defaultRunHistory
	}
	var rows []storedRun
	err := s.SelectContext(ctx, &rows,
		"SELECT * FROM runs ORDER BY started_at DESC, run_id LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	out := make([]types.RunSummary, len(rows))
	for i, row := range rows {
		out[i] = row.summary()
	}
	return out, nil
}

// GetRun returns one run by id. The error wraps sql.ErrNoRows when the
// run is unknown.
func (s *Store) GetRun(ctx context.Context, runID string) (types.RunSummary, error) {
	var row storedRun
	err := s.GetContext(ctx, &row, "SELECT * FROM runs WHERE run_id = ?", runID)
	if err != nil {
		return types.RunSummary{}, fmt.Errorf("get run %s: %w", runID, err)
	}
	return row.summary(), nil
}

// StoredListing is a deduplicated listing row. List fields are stored
// pipe-joined like the tabular sinks write them; timestamps are RFC3339.
type StoredListing struct {
	DedupKey           string  `db:"dedup_key" json:"dedup_key"`
	Position           int     `db:"position" json:"position"`
	Title              string  `db:"title" json:"title"`
	PropertyURL        string  `db:"property_url" json:"property_url,omitempty"`
	Price              string  `db:"price" json:"price"`
	PriceAmount        float64 `db:"price_amount" json:"price_amount,omitempty"`
	PricePerSqft       string  `db:"price_per_sqft" json:"price_per_sqft,omitempty"`
	EMI                string  `db:"emi" json:"emi,omitempty"`
	ApartmentType      string  `db:"apartment_type" json:"apartment_type,omitempty"`
	BedroomCount       string  `db:"bedroom_count" json:"bedroom_count,omitempty"`
	BathroomCount      string  `db:"bathroom_count" json:"bathroom_count,omitempty"`
	BalconyCount       string  `db:"balcony_count" json:"balcony_count,omitempty"`
	AreaDisplay        string  `db:"area_display" json:"area_display,omitempty"`
	AreaSqft           int     `db:"area_sqft" json:"area_sqft,omitempty"`
	FacingDirection    string  `db:"facing_direction" json:"facing_direction,omitempty"`
	FloorInfo          string  `db:"floor_info" json:"floor_info,omitempty"`
	FurnishingStatus   string  `db:"furnishing_status" json:"furnishing_status,omitempty"`
	PropertyAge        string  `db:"property_age" json:"property_age,omitempty"`
	PossessionStatus   string  `db:"possession_status" json:"possession_status,omitempty"`
	ParkingDescription string  `db:"parking_description" json:"parking_description,omitempty"`
	OwnerName          string  `db:"owner_name" json:"owner_name,omitempty"`
	BrokerStatus       string  `db:"broker_status" json:"broker_status,omitempty"`
	VerifiedTag        bool    `db:"verified_tag" json:"verified_tag"`
	PremiumTag         bool    `db:"premium_tag" json:"premium_tag"`
	ImageCount         int     `db:"image_count" json:"image_count"`
	ImageURLs          string  `db:"image_urls" json:"image_urls,omitempty"`
	NearbyPlaces       string  `db:"nearby_places" json:"nearby_places,omitempty"`
	Amenities          string  `db:"amenities" json:"amenities,omitempty"`
	Highlights         string  `db:"highlights" json:"highlights,omitempty"`
	Description        string  `db:"description" json:"description,omitempty"`
	Locality           string  `db:"locality" json:"locality,omitempty"`
	Site               string  `db:"site" json:"site"`
	ExtractedAt        string  `db:"extracted_at" json:"extracted_at,omitempty"`
	SourceFile         string  `db:"source_file" json:"source_file,omitempty"`
	Fingerprint        string  `db:"fingerprint" json:"fingerprint,omitempty"`
	RunID              string  `db:"run_id" json:"run_id"`
	FirstSeen          string  `db:"first_seen" json:"first_seen"`
	LastSeen           string  `db:"last_seen" json:"last_seen"`
}

// listingColumns is the full column set of the listings table in insert
// order, derived from the export column order so the two stay in sync.
var listingColumns = append(append([]string{"dedup_key"}, types.ListingColumns...),
	"run_id", "first_seen", "last_seen")

var listingUpsertSQL = buildListingUpsert()

func buildListingUpsert() string {
	sets := make([]string, 0, len(listingColumns))
	for _, col := range listingColumns {
		// dedup_key is the conflict target; first_seen keeps the value
		// from the first sighting.
		if col == "dedup_key" || col == "first_seen" {
			continue
		}
		sets = append(sets, col+" = excluded."+col)
	}
	return fmt.Sprintf("INSERT INTO listings (%s) VALUES (:%s) ON CONFLICT(dedup_key) DO UPDATE SET %s",
		strings.Join(listingColumns, ", "),
		strings.Join(listingColumns, ", :"),
		strings.Join(sets, ", "))
}

// dedupKey derives a listing's cross-run identity. Portal DOM ids make
// stable fingerprints; geometry-derived fingerprints shift between page
// loads, so anything else dedups on title, price and locality content.
func dedupKey(rec types.ListingRecord) string {
	fp := rec.Fingerprint
	if strings.HasPrefix(fp, "id:") || strings.HasPrefix(fp, "tid:") {
		return fp
	}
	if rec.Title == "" && fp != "" {
		return fp
	}
	h := fnv.New64a()
	fmt.Fprintf(h, "%s|%s|%s",
		strings.ToLower(rec.Title), rec.Price, strings.ToLower(rec.Locality))
	return fmt.Sprintf("ck:%016x", h.Sum64())
}

func newStoredListing(rec types.ListingRecord, runID string, now time.Time) StoredListing {
	seen := formatTime(now)
	return StoredListing{
		DedupKey:           dedupKey(rec),
		Position:           rec.Position,
		Title:              rec.Title,
		PropertyURL:        rec.PropertyURL,
		Price:              rec.Price,
		PriceAmount:        rec.PriceAmount,
		PricePerSqft:       rec.PricePerSqft,
		EMI:                rec.EMI,
		ApartmentType:      rec.ApartmentType,
		BedroomCount:       rec.BedroomCount,
		BathroomCount:      rec.BathroomCount,
		BalconyCount:       rec.BalconyCount,
		AreaDisplay:        rec.AreaDisplay,
		AreaSqft:           rec.AreaSqft,
		FacingDirection:    rec.FacingDirection,
		FloorInfo:          rec.FloorInfo,
		FurnishingStatus:   rec.FurnishingStatus,
		PropertyAge:        rec.PropertyAge,
		PossessionStatus:   rec.PossessionStatus,
		ParkingDescription: rec.ParkingDescription,
		OwnerName:          rec.OwnerName,
		BrokerStatus:       rec.BrokerStatus,
		VerifiedTag:        rec.VerifiedTag,
		PremiumTag:         rec.PremiumTag,
		ImageCount:         rec.ImageCount,
		ImageURLs:          strings.Join(rec.ImageURLs, " | "),
		NearbyPlaces:       strings.Join(rec.NearbyPlaces, " | "),
		Amenities:          strings.Join(rec.Amenities, " | "),
		Highlights:         strings.Join(rec.Highlights, " | "),
		Description:        rec.Description,
		Locality:           rec.Locality,
		Site:               string(rec.Site),
		ExtractedAt:        formatTime(rec.ExtractedAt),
		SourceFile:         rec.SourceFile,
		Fingerprint:        rec.Fingerprint,
		RunID:              runID,
		FirstSeen:          seen,
		LastSeen:           seen,
	}
}

// SaveListings upserts a batch of records under the given run id. A
// record seen in an earlier run keeps its first_seen but takes the new
// field values, run id and last_seen. Returns the number processed.
func (s *Store) SaveListings(ctx context.Context, runID string, records []types.ListingRecord) (int, error) {
	return s.saveListingsAt(ctx, runID, records, time.Now())
}

func (s *Store) saveListingsAt(ctx context.Context, runID string, records []types.ListingRecord, now time.Time) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}
	tx, err := s.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin listings tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareNamedContext(ctx, listingUpsertSQL)
	if err != nil {
		return 0, fmt.Errorf("prepare listings upsert: %w", err)
	}
	defer stmt.Close()

	for _, rec := range records {
		if _, err := stmt.ExecContext(ctx, newStoredListing(rec, runID, now)); err != nil {
			return 0, fmt.Errorf("upsert listing %s: %w", dedupKey(rec), err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit listings: %w", err)
	}
	return len(records), nil
}

// RunSink adapts the store to the flush interface crawl drivers write
// to, so dashboard-triggered runs persist listings as they go.
type RunSink struct {
	store *Store
	runID string
}

// RunSink returns a flush target that attributes written records to runID.
func (s *Store) RunSink(runID string) *RunSink {
	return &RunSink{store: s, runID: runID}
}

func (rs *RunSink) Write(ctx context.Context, records []types.ListingRecord) error {
	_, err := rs.store.SaveListings(ctx, rs.runID, records)
	return err
}

// ListingFilter narrows listing queries. Zero values mean "no filter".
type ListingFilter struct {
	Site     string
	Locality string
	Bedrooms string
	MinPrice float64
	MaxPrice float64
	Limit    int
	Offset   int
}

func (f ListingFilter) where() (string, []interface{}) {
	var clauses []string
	var args []interface{}
	if f.Site != "" {
		clauses = append(clauses, "site = ?")
		args = append(args, f.Site)
	}
	if f.Locality != "" {
		clauses = append(clauses, "locality LIKE ?")
		args = append(args, "%"+f.Locality+"%")
	}
	if f.Bedrooms != "" {
		clauses = append(clauses, "bedroom_count = ?")
		args = append(args, f.Bedrooms)
	}
	if f.MinPrice > 0 {
		clauses = append(clauses, "price_amount >= ?")
		args = append(args, f.MinPrice)
	}
	if f.MaxPrice > 0 {
		clauses = append(clauses, "price_amount <= ?")
		args = append(args, f.MaxPrice)
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

// QueryListings returns one page of matching listings plus the total
// match count before pagination, most recently seen first.
func (s *Store) QueryListings(ctx context.Context, f ListingFilter) ([]StoredListing, int, error) {
	where, args := f.where()

	var total int
	if err := s.GetContext(ctx, &total, "SELECT COUNT(*) FROM listings"+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count listings: %w", err)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}

	listings := []StoredListing{}
	query := "SELECT * FROM listings" + where + " ORDER BY last_seen DESC, dedup_key LIMIT ? OFFSET ?"
	if err := s.SelectContext(ctx, &listings, query, append(args, limit, offset)...); err != nil {
		return nil, 0, fmt.Errorf("query listings: %w", err)
	}
	return listings, total, nil
}

// ExportListings returns every matching listing, unpaginated. The
// filter's Limit and Offset are ignored.
func (s *Store) ExportListings(ctx context.Context, f ListingFilter) ([]StoredListing, error) {
	where, args := f.where()
	listings := []StoredListing{}
	query := "SELECT * FROM listings" + where + " ORDER BY last_seen DESC, dedup_key"
	if err := s.SelectContext(ctx, &listings, query, args...); err != nil {
		return nil, fmt.Errorf("export listings: %w", err)
	}
	return listings, nil
}

// LocalityCount is one row of the top-localities breakdown.
type LocalityCount struct {
	Locality string `db:"locality" json:"locality"`
	Count    int    `db:"n" json:"count"`
}

// Stats aggregates the store for the dashboard front page.
type Stats struct {
	TotalListings  int             `json:"total_listings"`
	TotalRuns      int             `json:"total_runs"`
	ListingsBySite map[string]int  `json:"listings_by_site"`
	TopLocalities  []LocalityCount `json:"top_localities"`
	// AveragePrice covers listings with a parsed price only.
	AveragePrice float64 `json:"average_price"`
	LastRunAt    string  `json:"last_run_at,omitempty"`
}

// Stats computes store-wide aggregates.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	st := &Stats{ListingsBySite: map[string]int{}, TopLocalities: []LocalityCount{}}

	if err := s.GetContext(ctx, &st.TotalListings, "SELECT COUNT(*) FROM listings"); err != nil {
		return nil, fmt.Errorf("count listings: %w", err)
	}
	if err := s.GetContext(ctx, &st.TotalRuns, "SELECT COUNT(*) FROM runs"); err != nil {
		return nil, fmt.Errorf("count runs: %w", err)
	}

	var bySite []struct {
		Site string `db:"site"`
		N    int    `db:"n"`
	}
	if err := s.SelectContext(ctx, &bySite,
		"SELECT site, COUNT(*) AS n FROM listings GROUP BY site"); err != nil {
		return nil, fmt.Errorf("listings by site: %w", err)
	}
	for _, row := range bySite {
		st.ListingsBySite[row.Site] = row.N
	}

	err := s.SelectContext(ctx, &st.TopLocalities,
		`SELECT locality, COUNT(*) AS n FROM listings
		 WHERE locality != '' GROUP BY locality ORDER BY n DESC, locality LIMIT 10`)
	if err != nil {
		return nil, fmt.Errorf("top localities: %w", err)
	}

	err = s.GetContext(ctx, &st.AveragePrice,
		"SELECT COALESCE(AVG(price_amount), 0) FROM listings WHERE price_amount > 0")
	if err != nil {
		return nil, fmt.Errorf("average price: %w", err)
	}

	var lastStarted string
	err = s.GetContext(ctx, &lastStarted,
		"SELECT started_at FROM runs ORDER BY started_at DESC LIMIT 1")
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("last run: %w", err)
	}
	st.LastRunAt = lastStarted
	return st, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func marshalList(v []string) string {
	if len(v) == 0 {
		return ""
	}
	b, _ := json.Marshal(v)
	return string(b)
}

func unmarshalList(s string) []string {
	if s == "" {
		return nil
	}
	var v []string
	_ = json.Unmarshal([]byte(s), &v)
	return v
}

func marshalCounts(m map[string]int) string {
	if len(m) == 0 {
		return ""
	}
	b, _ := json.Marshal(m)
	return string(b)
}

func unmarshalCounts(s string) map[string]int {
	if s == "" {
		return nil
	}
	var m map[string]int
	_ = json.Unmarshal([]byte(s), &m)
	return m
}
