// internal/output/excel.go
package output

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/propertylens/propertylens/internal/utils"
	"github.com/propertylens/propertylens/pkg/types"
)

const (
	sheetListings = "Listings"
	sheetSummary  = "Summary"
	sheetQuality  = "Data_Quality"
	sheetPlaces   = "Nearby_Places_Analysis"
)

// ExcelReport buffers a run's listings and writes a styled workbook on
// Close: the Listings sheet plus Summary, Data_Quality and
// Nearby_Places_Analysis. If the workbook cannot be saved the buffered
// rows are written to a plain CSV next to the intended path instead,
// so a styling or disk problem never loses the run's data.
type ExcelReport struct {
	path    string
	site    types.Site
	runID   string
	logger  utils.Logger
	records []types.ListingRecord
}

func NewExcelReport(path string, site types.Site, runID string, logger utils.Logger) *ExcelReport {
	if logger == nil {
		logger = utils.NewLogger()
	}
	return &ExcelReport{path: path, site: site, runID: runID, logger: logger}
}

func (r *ExcelReport) Write(_ context.Context, records []types.ListingRecord) error {
	r.records = append(r.records, records...)
	return nil
}

func (r *ExcelReport) Close() error {
	if err := r.saveWorkbook(); err != nil {
		r.logger.Warnf("excel report failed, falling back to CSV: %v", err)
		return r.saveFallbackCSV()
	}
	return nil
}

// Path reports where the report landed. After a fallback this is the
// CSV path, not the original .xlsx one.
func (r *ExcelReport) Path() string {
	return r.path
}

func (r *ExcelReport) saveWorkbook() error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), sheetListings); err != nil {
		return err
	}
	header, err := newHeaderStyle(f)
	if err != nil {
		return err
	}
	if err := r.writeListings(f, header); err != nil {
		return fmt.Errorf("listings sheet: %w", err)
	}
	if err := r.writeSummary(f, header); err != nil {
		return fmt.Errorf("summary sheet: %w", err)
	}
	if err := r.writeDataQuality(f, header); err != nil {
		return fmt.Errorf("data quality sheet: %w", err)
	}
	if err := r.writePlacesAnalysis(f, header); err != nil {
		return fmt.Errorf("places sheet: %w", err)
	}
	return f.SaveAs(r.path)
}

func (r *ExcelReport) writeListings(f *excelize.File, headerStyle int) error {
	for col, name := range types.ListingColumns {
		if err := f.SetCellValue(sheetListings, cellRef(col, 1), name); err != nil {
			return err
		}
	}
	lastCol := columnName(len(types.ListingColumns))
	if err := f.SetCellStyle(sheetListings, "A1", lastCol+"1", headerStyle); err != nil {
		return err
	}

	for i, record := range r.records {
		fields := record.Map()
		for col, name := range types.ListingColumns {
			if err := f.SetCellValue(sheetListings, cellRef(col, i+2), excelValue(fields[name])); err != nil {
				return err
			}
		}
	}

	wide := map[string]float64{
		"title":         40,
		"property_url":  50,
		"description":   50,
		"image_urls":    35,
		"nearby_places": 35,
		"amenities":     35,
		"highlights":    35,
	}
	for col, name := range types.ListingColumns {
		width := 15.0
		if w, ok := wide[name]; ok {
			width = w
		}
		ref := columnName(col + 1)
		if err := f.SetColWidth(sheetListings, ref, ref, width); err != nil {
			return err
		}
	}

	if len(r.records) > 0 {
		ref := fmt.Sprintf("A1:%s%d", lastCol, len(r.records)+1)
		if err := f.AutoFilter(sheetListings, ref, nil); err != nil {
			return err
		}
	}
	return f.SetPanes(sheetListings, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})
}

func (r *ExcelReport) writeSummary(f *excelize.File, headerStyle int) error {
	if _, err := f.NewSheet(sheetSummary); err != nil {
		return err
	}

	withPrice := 0
	var priceSum, priceMin, priceMax float64
	var completenessSum float64
	localities := make(map[string]bool)
	for _, record := range r.records {
		if record.PriceAmount > 0 {
			withPrice++
			priceSum += record.PriceAmount
			if priceMin == 0 || record.PriceAmount < priceMin {
				priceMin = record.PriceAmount
			}
			if record.PriceAmount > priceMax {
				priceMax = record.PriceAmount
			}
		}
		completenessSum += record.Completeness()
		if record.Locality != "" {
			localities[record.Locality] = true
		}
	}

	rows := [][]interface{}{
		{"Metric", "Value"},
		{"Site", string(r.site)},
		{"Run ID", r.runID},
		{"Generated At", time.Now().Format(time.RFC3339)},
		{"Total Listings", len(r.records)},
		{"Localities Covered", len(localities)},
		{"Listings With Price", withPrice},
	}
	if withPrice > 0 {
		rows = append(rows,
			[]interface{}{"Average Price (INR)", math.Round(priceSum / float64(withPrice))},
			[]interface{}{"Lowest Price (INR)", priceMin},
			[]interface{}{"Highest Price (INR)", priceMax},
		)
	}
	if len(r.records) > 0 {
		avg := 100 * completenessSum / float64(len(r.records))
		rows = append(rows, []interface{}{"Average Completeness", fmt.Sprintf("%.0f%%", avg)})
	}

	for i, row := range rows {
		for col, value := range row {
			if err := f.SetCellValue(sheetSummary, cellRef(col, i+1), value); err != nil {
				return err
			}
		}
	}
	if err := f.SetCellStyle(sheetSummary, "A1", "B1", headerStyle); err != nil {
		return err
	}
	if err := f.SetColWidth(sheetSummary, "A", "A", 24); err != nil {
		return err
	}
	return f.SetColWidth(sheetSummary, "B", "B", 32)
}

func (r *ExcelReport) writeDataQuality(f *excelize.File, headerStyle int) error {
	if _, err := f.NewSheet(sheetQuality); err != nil {
		return err
	}

	filled := make(map[string]int, len(types.ListingColumns))
	for _, record := range r.records {
		fields := record.Map()
		for _, column := range types.ListingColumns {
			if fieldFilled(fields[column]) {
				filled[column]++
			}
		}
	}

	for col, name := range []string{"Field", "Filled", "Fill Rate"} {
		if err := f.SetCellValue(sheetQuality, cellRef(col, 1), name); err != nil {
			return err
		}
	}
	for i, column := range types.ListingColumns {
		rate := "0.0%"
		if len(r.records) > 0 {
			rate = fmt.Sprintf("%.1f%%", 100*float64(filled[column])/float64(len(r.records)))
		}
		row := i + 2
		if err := f.SetCellValue(sheetQuality, cellRef(0, row), column); err != nil {
			return err
		}
		if err := f.SetCellValue(sheetQuality, cellRef(1, row), filled[column]); err != nil {
			return err
		}
		if err := f.SetCellValue(sheetQuality, cellRef(2, row), rate); err != nil {
			return err
		}
	}
	if err := f.SetCellStyle(sheetQuality, "A1", "C1", headerStyle); err != nil {
		return err
	}
	return f.SetColWidth(sheetQuality, "A", "A", 24)
}

func (r *ExcelReport) writePlacesAnalysis(f *excelize.File, headerStyle int) error {
	if _, err := f.NewSheet(sheetPlaces); err != nil {
		return err
	}

	counts := make(map[string]int)
	for _, record := range r.records {
		for _, place := range record.NearbyPlaces {
			counts[place]++
		}
	}
	type placeCount struct {
		name  string
		count int
	}
	ranked := make([]placeCount, 0, len(counts))
	for name, count := range counts {
		ranked = append(ranked, placeCount{name, count})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].count != ranked[j].count {
			return ranked[i].count > ranked[j].count
		}
		return ranked[i].name < ranked[j].name
	})

	for col, name := range []string{"Place", "Mentions", "Share of Listings"} {
		if err := f.SetCellValue(sheetPlaces, cellRef(col, 1), name); err != nil {
			return err
		}
	}
	for i, place := range ranked {
		share := ""
		if len(r.records) > 0 {
			share = fmt.Sprintf("%.1f%%", 100*float64(place.count)/float64(len(r.records)))
		}
		row := i + 2
		if err := f.SetCellValue(sheetPlaces, cellRef(0, row), place.name); err != nil {
			return err
		}
		if err := f.SetCellValue(sheetPlaces, cellRef(1, row), place.count); err != nil {
			return err
		}
		if err := f.SetCellValue(sheetPlaces, cellRef(2, row), share); err != nil {
			return err
		}
	}
	if err := f.SetCellStyle(sheetPlaces, "A1", "C1", headerStyle); err != nil {
		return err
	}
	return f.SetColWidth(sheetPlaces, "A", "A", 36)
}

// saveFallbackCSV dumps the buffered listings as plain CSV and points
// Path at the new file.
func (r *ExcelReport) saveFallbackCSV() error {
	fallback := strings.TrimSuffix(r.path, filepath.Ext(r.path)) + ".csv"
	sink, err := NewCSVSink(fallback)
	if err != nil {
		return fmt.Errorf("excel fallback: %w", err)
	}
	if err := sink.Write(context.Background(), r.records); err != nil {
		sink.Close()
		return fmt.Errorf("excel fallback: %w", err)
	}
	if err := sink.Close(); err != nil {
		return fmt.Errorf("excel fallback: %w", err)
	}
	r.path = fallback
	return nil
}

func newHeaderStyle(f *excelize.File) (int, error) {
	return f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Size: 11},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#D6E4F0"}, Pattern: 1},
		Border: []excelize.Border{
			{Type: "left", Color: "000000", Style: 1},
			{Type: "top", Color: "000000", Style: 1},
			{Type: "bottom", Color: "000000", Style: 1},
			{Type: "right", Color: "000000", Style: 1},
		},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
}

// excelValue prepares a flattened field for SetCellValue. Times become
// readable strings, zero prices blank cells; numbers stay numeric so
// the autofilter can sort them.
func excelValue(value interface{}) interface{} {
	switch v := value.(type) {
	case time.Time:
		if v.IsZero() {
			return ""
		}
		return v.Format(time.RFC3339)
	case float64:
		if v == 0 {
			return ""
		}
		return v
	default:
		return value
	}
}

// fieldFilled decides whether a field carries information for the
// quality sheet. False booleans and zero counts do not.
func fieldFilled(value interface{}) bool {
	switch v := value.(type) {
	case nil:
		return false
	case string:
		return strings.TrimSpace(v) != ""
	case int:
		return v > 0
	case float64:
		return v > 0
	case bool:
		return v
	case time.Time:
		return !v.IsZero()
	default:
		return true
	}
}

// cellRef builds an A1-style reference from a zero-based column index.
func cellRef(col, row int) string {
	return columnName(col+1) + strconv.Itoa(row)
}

// columnName converts a one-based column number to its letter form,
// so 1 is A, 26 is Z and 27 is AA.
func columnName(n int) string {
	name := ""
	for n > 0 {
		n--
		name = string(rune('A'+n%26)) + name
		n /= 26
	}
	return name
}
