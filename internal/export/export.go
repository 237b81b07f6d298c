// Package export writes consolidated park records to lead files for
// outreach. Records are graded into tiers by completeness and written
// as an XLSX workbook with one sheet per tier plus a flat CSV.
package export

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/sells-group/parkscout/internal/model"
	"github.com/sells-group/parkscout/internal/store"
)

// Tier grades a lead by how actionable its record is.
type Tier string

const (
	// TierA records carry a name, a full street address, and a direct
	// contact channel.
	TierA Tier = "A"
	// TierB records carry a name and address but no contact.
	TierB Tier = "B"
	// TierC records carry only a usable address.
	TierC Tier = "C"
	// TierInvalid records lack enough data to mail.
	TierInvalid Tier = "X"
)

// ParseTier converts a user-supplied tier name to a Tier.
func ParseTier(s string) (Tier, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "A":
		return TierA, nil
	case "B":
		return TierB, nil
	case "C":
		return TierC, nil
	}
	return "", eris.Errorf("export: unknown tier %q, want A, B, or C", s)
}

// Grade assigns the lead tier for one master record.
func Grade(m *model.MasterRecord) Tier {
	hasName := m.Name != ""
	hasAddress := m.Address != "" && m.City != "" && m.State != ""
	hasContact := m.HasContact() || m.Email != ""

	switch {
	case hasName && hasAddress && hasContact:
		return TierA
	case hasName && hasAddress:
		return TierB
	case m.Address != "":
		return TierC
	default:
		return TierInvalid
	}
}

// Stats summarizes one export run.
type Stats struct {
	TotalRecords int
	TierA        int
	TierB        int
	TierC        int
	Filtered     int
	Written      int
}

func (s *Stats) count(t Tier) {
	switch t {
	case TierA:
		s.TierA++
	case TierB:
		s.TierB++
	case TierC:
		s.TierC++
	}
}

// Lister is the slice of the store the exporter reads from.
type Lister interface {
	ListMasterRecords(ctx context.Context, filter store.MasterFilter) ([]model.MasterRecord, error)
}

// Exporter writes lead files from the master record table.
type Exporter struct {
	store     Lister
	outputDir string
	logger    *zap.Logger

	// now is swappable for deterministic file names in tests.
	now func() time.Time
}

// NewExporter creates an Exporter writing into outputDir.
func NewExporter(lister Lister, outputDir string) *Exporter {
	return &Exporter{
		store:     lister,
		outputDir: outputDir,
		logger:    zap.L().With(zap.String("component", "export")),
		now:       time.Now,
	}
}

// listPageSize bounds each store read while paging through the table.
const listPageSize = 500

// load pages through every master record.
func (e *Exporter) load(ctx context.Context, filter store.MasterFilter) ([]model.MasterRecord, error) {
	var all []model.MasterRecord
	filter.Limit = listPageSize
	for offset := 0; ; offset += listPageSize {
		filter.Offset = offset
		page, err := e.store.ListMasterRecords(ctx, filter)
		if err != nil {
			return nil, eris.Wrap(err, "export: list master records")
		}
		all = append(all, page...)
		if len(page) < listPageSize {
			return all, nil
		}
	}
}

// lead is one flattened output row.
type lead struct {
	tier   Tier
	record model.MasterRecord
}

// prepare grades and filters records. Permanently closed parks, invalid
// tiers, and repeated (name, city) pairs are dropped.
func (e *Exporter) prepare(records []model.MasterRecord, minTier Tier, stats *Stats) []lead {
	tierOrder := map[Tier]int{TierA: 0, TierB: 1, TierC: 2, TierInvalid: 3}
	maxOrder := tierOrder[TierC]
	if minTier != "" {
		maxOrder = tierOrder[minTier]
	}

	seen := make(map[string]struct{})
	var leads []lead
	for _, m := range records {
		t := Grade(&m)
		stats.count(t)

		if t == TierInvalid || m.BusinessStatus == "CLOSED_PERMANENTLY" {
			stats.Filtered++
			continue
		}
		if tierOrder[t] > maxOrder {
			stats.Filtered++
			continue
		}
		key := m.Name + "\x00" + m.City
		if _, dup := seen[key]; dup {
			stats.Filtered++
			continue
		}
		seen[key] = struct{}{}
		leads = append(leads, lead{tier: t, record: m})
	}
	return leads
}

var leadHeader = []string{
	"lead_tier", "master_id", "park_name", "park_type",
	"address", "city", "state", "zip_code", "county",
	"phone", "website", "email",
	"latitude", "longitude",
	"business_status", "avg_rating", "total_reviews",
	"confidence_score", "needs_review",
}

func leadRow(l lead) []string {
	m := l.record
	return []string{
		string(l.tier), m.MasterID, m.Name, m.ParkType,
		m.Address, m.City, m.State, m.ZipCode, m.County,
		m.Phone, m.Website, m.Email,
		formatFloat(m.Latitude), formatFloat(m.Longitude),
		m.BusinessStatus, formatFloat(m.AvgRating), strconv.Itoa(m.TotalReviews),
		strconv.FormatFloat(m.ConfidenceScore, 'f', 2, 64),
		strconv.FormatBool(m.NeedsManualReview),
	}
}

func formatFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

// Result holds the paths written by one run.
type Result struct {
	XLSXPath string
	CSVPath  string
	Stats    Stats
}

// Run exports all master records at or above minTier. An empty minTier
// exports every mailable tier.
func (e *Exporter) Run(ctx context.Context, minTier Tier) (*Result, error) {
	records, err := e.load(ctx, store.MasterFilter{})
	if err != nil {
		return nil, err
	}

	stats := Stats{TotalRecords: len(records)}
	leads := e.prepare(records, minTier, &stats)
	stats.Written = len(leads)

	if err := os.MkdirAll(e.outputDir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "export: create output dir %s", e.outputDir)
	}

	stamp := e.now().Format("20060102_150405")
	xlsxPath := filepath.Join(e.outputDir, fmt.Sprintf("park_leads_%s.xlsx", stamp))
	csvPath := filepath.Join(e.outputDir, fmt.Sprintf("park_leads_%s.csv", stamp))

	if err := writeWorkbook(xlsxPath, leads); err != nil {
		return nil, err
	}
	if err := writeCSV(csvPath, leads); err != nil {
		return nil, err
	}

	e.logger.Info("export complete",
		zap.Int("total", stats.TotalRecords),
		zap.Int("tier_a", stats.TierA),
		zap.Int("tier_b", stats.TierB),
		zap.Int("tier_c", stats.TierC),
		zap.Int("filtered", stats.Filtered),
		zap.Int("written", stats.Written),
	)
	return &Result{XLSXPath: xlsxPath, CSVPath: csvPath, Stats: stats}, nil
}

// writeWorkbook writes one sheet per tier, skipping empty tiers. An
// empty run still produces a workbook with a header-only sheet.
func writeWorkbook(path string, leads []lead) error {
	f := xlsx.NewFile()

	if len(leads) == 0 {
		sheet, err := f.AddSheet("Leads")
		if err != nil {
			return eris.Wrap(err, "export: add empty sheet")
		}
		header := sheet.AddRow()
		for _, col := range leadHeader {
			header.AddCell().Value = col
		}
		if err := f.Save(path); err != nil {
			return eris.Wrapf(err, "export: save workbook %s", path)
		}
		return nil
	}

	for _, tier := range []Tier{TierA, TierB, TierC} {
		var rows []lead
		for _, l := range leads {
			if l.tier == tier {
				rows = append(rows, l)
			}
		}
		if len(rows) == 0 {
			continue
		}

		sheet, err := f.AddSheet("Tier " + string(tier))
		if err != nil {
			return eris.Wrapf(err, "export: add sheet for tier %s", tier)
		}
		header := sheet.AddRow()
		for _, col := range leadHeader {
			header.AddCell().Value = col
		}
		for _, l := range rows {
			row := sheet.AddRow()
			for _, val := range leadRow(l) {
				row.AddCell().Value = val
			}
		}
	}

	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "export: save workbook %s", path)
	}
	return nil
}

// writeCSV writes all leads to one flat file.
func writeCSV(path string, leads []lead) error {
	file, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "export: create csv %s", path)
	}
	defer file.Close() //nolint:errcheck

	w := csv.NewWriter(file)
	if err := w.Write(leadHeader); err != nil {
		return eris.Wrap(err, "export: write csv header")
	}
	for _, l := range leads {
		if err := w.Write(leadRow(l)); err != nil {
			return eris.Wrap(err, "export: write csv row")
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return eris.Wrap(err, "export: flush csv")
	}
	return file.Close()
}
