package ingest

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/parkscout/internal/model"
	"github.com/sells-group/parkscout/pkg/overpass"
)

// RawInserter is the slice of the store the connectors need.
type RawInserter interface {
	InsertRawListings(ctx context.Context, listings []model.RawListing) (int64, error)
}

// OSMQuerier runs Overpass queries for a bounding box.
type OSMQuerier interface {
	QueryParks(ctx context.Context, bbox overpass.BBox) ([]overpass.Element, error)
}

// OSMIngestor pulls park sites from OpenStreetMap via the Overpass API.
type OSMIngestor struct {
	client OSMQuerier
	store  RawInserter
	logger *zap.Logger
}

// NewOSMIngestor wires an Overpass client to the raw listing store.
func NewOSMIngestor(client OSMQuerier, store RawInserter) *OSMIngestor {
	return &OSMIngestor{
		client: client,
		store:  store,
		logger: zap.L().With(zap.String("component", "ingest_osm")),
	}
}

// OSMResult summarizes one OSM ingest run.
type OSMResult struct {
	Fetched  int
	Skipped  int
	Inserted int64
}

// Run queries the state's bounding box, converts the elements, and
// inserts the listings. Elements without coordinates are skipped since
// they cannot be blocked or matched downstream.
func (in *OSMIngestor) Run(ctx context.Context, cfg *StateConfig) (*OSMResult, error) {
	bbox := cfg.BBox()
	in.logger.Info("querying overpass",
		zap.String("state", cfg.State.Abbreviation),
		zap.String("bbox", bbox.String()),
	)

	elements, err := in.client.QueryParks(ctx, bbox)
	if err != nil {
		return nil, eris.Wrap(err, "ingest: overpass query")
	}

	res := &OSMResult{Fetched: len(elements)}
	listings := make([]model.RawListing, 0, len(elements))
	for _, el := range elements {
		listing, ok := osmToListing(el, cfg.State.Abbreviation)
		if !ok {
			res.Skipped++
			continue
		}
		listings = append(listings, listing)
	}

	inserted, err := in.store.InsertRawListings(ctx, listings)
	if err != nil {
		return nil, eris.Wrap(err, "ingest: insert osm listings")
	}
	res.Inserted = inserted

	in.logger.Info("osm ingest complete",
		zap.Int("fetched", res.Fetched),
		zap.Int("skipped", res.Skipped),
		zap.Int64("inserted", res.Inserted),
	)
	return res, nil
}

// osmParkType derives the park type label from OSM tags.
func osmParkType(tags map[string]string) string {
	switch {
	case tags["tourism"] == "camp_site":
		return model.ParkTypeCampground
	case tags["tourism"] == "caravan_site":
		return model.ParkTypeRVPark
	case strings.Contains(strings.ToLower(tags["residential"]), "mobile"):
		return model.ParkTypeMobileHomePark
	case strings.Contains(strings.ToLower(tags["residential"]), "trailer"):
		return model.ParkTypeTrailerPark
	}
	return ""
}

func firstTag(tags map[string]string, keys ...string) string {
	for _, k := range keys {
		if v := tags[k]; v != "" {
			return v
		}
	}
	return ""
}

// osmToListing converts one Overpass element into a raw listing. The
// second return is false when the element has no usable coordinates.
func osmToListing(el overpass.Element, stateAbbr string) (model.RawListing, bool) {
	lat, lon, ok := el.Coordinates()
	if !ok {
		return model.RawListing{}, false
	}

	state := el.Tags["addr:state"]
	if state == "" {
		state = stateAbbr
	}

	return model.RawListing{
		ExternalID: el.ExternalID(),
		Source:     model.SourceOSM,
		Name:       el.Tags["name"],
		ParkType:   osmParkType(el.Tags),
		Address:    el.Tags["addr:street"],
		City:       el.Tags["addr:city"],
		State:      state,
		ZipCode:    el.Tags["addr:postcode"],
		Latitude:   &lat,
		Longitude:  &lon,
		Phone:      firstTag(el.Tags, "phone", "contact:phone"),
		Website:    firstTag(el.Tags, "website", "contact:website"),
		RawData: map[string]any{
			"osm_type": el.Type,
			"osm_id":   el.ID,
			"osm_tags": el.Tags,
		},
		Tags:      el.Tags,
		FetchedAt: time.Now().UTC(),
	}, true
}
