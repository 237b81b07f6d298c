// Package model defines the park listing domain types shared across the
// ingestion, deduplication, and export subsystems.
package model

import (
	"time"

	"github.com/rotisserie/eris"
)

// Source identifies the platform a raw listing was collected from.
type Source string

const (
	SourceGooglePlaces Source = "google_places"
	SourceOSM          Source = "osm"
	SourceYelp         Source = "yelp"
	SourceManual       Source = "manual"
)

// sourceRank orders sources by data quality for field arbitration.
// Unknown sources rank 0, same as manual entries.
var sourceRank = map[Source]int{
	SourceGooglePlaces: 3,
	SourceOSM:          2,
	SourceYelp:         1,
	SourceManual:       0,
}

// Rank returns the arbitration priority of the source. Higher wins.
func (s Source) Rank() int {
	return sourceRank[s]
}

// Park type labels derived from OSM tagging during ingestion.
const (
	ParkTypeCampground     = "campground"
	ParkTypeRVPark         = "rv_park"
	ParkTypeMobileHomePark = "mobile_home_park"
	ParkTypeTrailerPark    = "trailer_park"
)

// RawListing is one source's record of one park before deduplication.
// Rows are written by the ingestion connectors and consumed read-only by
// the consolidation pipeline, which marks them processed afterwards.
type RawListing struct {
	ID             int64             `json:"id"`
	ExternalID     string            `json:"external_id"`
	Source         Source            `json:"source"`
	Name           string            `json:"name"`
	ParkType       string            `json:"park_type"`
	Address        string            `json:"address"`
	City           string            `json:"city"`
	State          string            `json:"state"`
	ZipCode        string            `json:"zip_code"`
	County         string            `json:"county"`
	Latitude       *float64          `json:"latitude,omitempty"`
	Longitude      *float64          `json:"longitude,omitempty"`
	Phone          string            `json:"phone"`
	Website        string            `json:"website"`
	Email          string            `json:"email"`
	BusinessStatus string            `json:"business_status"`
	Rating         *float64          `json:"rating,omitempty"`
	TotalReviews   int               `json:"total_reviews"`
	RawData        map[string]any    `json:"raw_data,omitempty"`
	Tags           map[string]string `json:"tags,omitempty"`
	FetchedAt      time.Time         `json:"fetched_at"`
	Processed      bool              `json:"processed"`
}

// HasCoordinates reports whether the listing carries a usable lat/lon pair.
func (r *RawListing) HasCoordinates() bool {
	if r.Latitude == nil || r.Longitude == nil {
		return false
	}
	return *r.Latitude >= -90 && *r.Latitude <= 90 &&
		*r.Longitude >= -180 && *r.Longitude <= 180
}

// Validate checks coordinate ranges and the presence of a source label.
func (r *RawListing) Validate() error {
	if r.Source == "" {
		return eris.New("model: raw listing missing source")
	}
	if r.Latitude != nil && (*r.Latitude < -90 || *r.Latitude > 90) {
		return eris.Errorf("model: latitude %f out of range", *r.Latitude)
	}
	if r.Longitude != nil && (*r.Longitude < -180 || *r.Longitude > 180) {
		return eris.Errorf("model: longitude %f out of range", *r.Longitude)
	}
	return nil
}

// NormalizedAddress holds the comparable form of a free-text postal address.
// It is derived during a pipeline run and never persisted.
type NormalizedAddress struct {
	StreetNumber   string `json:"street_number,omitempty"`
	StreetName     string `json:"street_name,omitempty"`
	StreetType     string `json:"street_type,omitempty"`
	City           string `json:"city,omitempty"`
	State          string `json:"state,omitempty"`
	ZipCode        string `json:"zip_code,omitempty"`
	FullNormalized string `json:"full_normalized,omitempty"`
	ParseSuccess   bool   `json:"parse_success"`
}

// SourceRef records which source row contributed to a master record.
type SourceRef struct {
	Source     Source `json:"source"`
	ExternalID string `json:"external_id"`
}

// QualityFlags summarizes data completeness of a master record.
type QualityFlags struct {
	NumSources     int  `json:"num_sources"`
	HasCoordinates bool `json:"has_coordinates"`
	HasContactInfo bool `json:"has_contact_info"`
	HasReviews     bool `json:"has_reviews"`
}

// MasterRecord is the canonical consolidated record for one physical park,
// built from a group of duplicate raw listings.
type MasterRecord struct {
	MasterID           string       `json:"master_id"`
	Name               string       `json:"name"`
	ParkType           string       `json:"park_type"`
	AlternativeNames   []string     `json:"alternative_names"`
	Address            string       `json:"address"`
	City               string       `json:"city"`
	State              string       `json:"state"`
	ZipCode            string       `json:"zip_code"`
	County             string       `json:"county"`
	Latitude           *float64     `json:"latitude,omitempty"`
	Longitude          *float64     `json:"longitude,omitempty"`
	LocationConfidence float64      `json:"location_confidence"`
	Phone              string       `json:"phone"`
	Website            string       `json:"website"`
	Email              string       `json:"email"`
	BusinessStatus     string       `json:"business_status"`
	AvgRating          *float64     `json:"avg_rating,omitempty"`
	TotalReviews       int          `json:"total_reviews"`
	SourceRefs         []SourceRef  `json:"source_refs"`
	ConfidenceScore    float64      `json:"confidence_score"`
	QualityFlags       QualityFlags `json:"data_quality_flags"`
	NeedsManualReview  bool         `json:"needs_manual_review"`
}

// HasContact reports whether the record carries a phone or website.
func (m *MasterRecord) HasContact() bool {
	return m.Phone != "" || m.Website != ""
}
