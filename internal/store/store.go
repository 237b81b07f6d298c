// Package store persists raw park listings and consolidated master
// records, with PostgreSQL and SQLite backends.
package store

import (
	"context"

	"github.com/sells-group/parkscout/internal/dedup"
	"github.com/sells-group/parkscout/internal/model"
)

// MasterFilter specifies criteria for listing master records.
type MasterFilter struct {
	NeedsReview *bool  `json:"needs_review,omitempty"`
	State       string `json:"state,omitempty"`
	County      string `json:"county,omitempty"`
	ZipCode     string `json:"zip_code,omitempty"`
	Limit       int    `json:"limit,omitempty"`
	Offset      int    `json:"offset,omitempty"`
}

// Stats summarizes pipeline progress across both tables.
type Stats struct {
	RawListings    int            `json:"raw_listings"`
	UnprocessedRaw int            `json:"unprocessed_raw"`
	RawBySource    map[string]int `json:"raw_by_source"`
	MasterRecords  int            `json:"master_records"`
	NeedsReview    int            `json:"needs_review"`
}

// Store defines the persistence interface for the consolidation pipeline.
// It includes the dedup.Storage methods, so any Store can back a
// dedup.Processor directly.
type Store interface {
	// Raw listings
	InsertRawListings(ctx context.Context, listings []model.RawListing) (int64, error)
	LoadUnprocessedRawListings(ctx context.Context) ([]model.RawListing, error)

	// Consolidation
	ConsolidationBatch(ctx context.Context, fn func(dedup.BatchWriter) error) error

	// Master records
	ListMasterRecords(ctx context.Context, filter MasterFilter) ([]model.MasterRecord, error)
	GetMasterRecord(ctx context.Context, masterID string) (*model.MasterRecord, error)

	// Reporting
	Stats(ctx context.Context) (*Stats, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
