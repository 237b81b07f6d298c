package ingest

import (
	"context"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/parkscout/internal/model"
	"github.com/sells-group/parkscout/pkg/overpass"
	"github.com/sells-group/parkscout/pkg/places"
)

// PlacesSearcher is the slice of the Places client the connector needs.
type PlacesSearcher interface {
	NearbySearch(ctx context.Context, lat, lon float64, radiusMeters int, keyword string) ([]places.Result, error)
	PlaceDetails(ctx context.Context, placeID string) (*places.Details, error)
}

// GridPoint is one search center in the coverage grid.
type GridPoint struct {
	Lat float64
	Lon float64
}

// GridPoints lays a regular grid over the bounding box with roughly
// spacingKm between points. One degree of latitude is about 111km; the
// longitude spacing is widened by the cosine of the box's center
// latitude so the ground distance stays near spacingKm.
func GridPoints(bbox overpass.BBox, spacingKm float64) []GridPoint {
	centerLat := (bbox.MinLat + bbox.MaxLat) / 2
	latSpacing := spacingKm / 111.0
	lonSpacing := spacingKm / (111.0 * math.Cos(centerLat*math.Pi/180))

	var points []GridPoint
	for lat := bbox.MinLat; lat <= bbox.MaxLat; lat += latSpacing {
		for lon := bbox.MinLon; lon <= bbox.MaxLon; lon += lonSpacing {
			points = append(points, GridPoint{Lat: lat, Lon: lon})
		}
	}
	return points
}

// PlacesIngestorConfig tunes the grid search and detail fetch stage.
type PlacesIngestorConfig struct {
	GridSpacingKm float64
	SearchRadiusM int
	DetailWorkers int
	// MaxDetailFetch caps the number of detail lookups per run. Zero
	// means no cap.
	MaxDetailFetch int
}

// PlacesIngestor pulls park listings from the Google Places API using a
// grid of nearby searches followed by per-place detail lookups.
type PlacesIngestor struct {
	client PlacesSearcher
	store  RawInserter
	cfg    PlacesIngestorConfig
	logger *zap.Logger
}

// NewPlacesIngestor wires a Places client to the raw listing store.
func NewPlacesIngestor(client PlacesSearcher, store RawInserter, cfg PlacesIngestorConfig) *PlacesIngestor {
	if cfg.GridSpacingKm <= 0 {
		cfg.GridSpacingKm = 40
	}
	if cfg.SearchRadiusM <= 0 {
		cfg.SearchRadiusM = 30000
	}
	if cfg.DetailWorkers <= 0 {
		cfg.DetailWorkers = 4
	}
	return &PlacesIngestor{
		client: client,
		store:  store,
		cfg:    cfg,
		logger: zap.L().With(zap.String("component", "ingest_places")),
	}
}

// PlacesResult summarizes one Places ingest run.
type PlacesResult struct {
	GridPoints   int
	Searches     int
	UniquePlaces int
	DetailErrors int
	Inserted     int64
}

// Run searches every grid point with every keyword, deduplicates the
// hits by place ID, fetches details concurrently, and inserts the
// resulting listings. Individual detail failures are counted, not fatal.
func (in *PlacesIngestor) Run(ctx context.Context, cfg *StateConfig) (*PlacesResult, error) {
	grid := GridPoints(cfg.BBox(), in.cfg.GridSpacingKm)
	keywords := cfg.Keywords()
	in.logger.Info("starting grid search",
		zap.String("state", cfg.State.Abbreviation),
		zap.Int("grid_points", len(grid)),
		zap.Int("keywords", len(keywords)),
	)

	res := &PlacesResult{GridPoints: len(grid)}
	seen := make(map[string]struct{})
	var placeIDs []string

	for _, point := range grid {
		for _, keyword := range keywords {
			results, err := in.client.NearbySearch(ctx, point.Lat, point.Lon, in.cfg.SearchRadiusM, keyword)
			if err != nil {
				if eris.Is(err, places.ErrQuotaExhausted) {
					in.logger.Warn("daily quota exhausted, stopping search",
						zap.Int("searches", res.Searches))
					return in.finish(ctx, res, placeIDs)
				}
				return nil, eris.Wrapf(err, "ingest: nearby search %q at (%f, %f)", keyword, point.Lat, point.Lon)
			}
			res.Searches++
			for _, r := range results {
				if _, dup := seen[r.PlaceID]; dup {
					continue
				}
				seen[r.PlaceID] = struct{}{}
				placeIDs = append(placeIDs, r.PlaceID)
			}
		}
	}

	return in.finish(ctx, res, placeIDs)
}

// finish runs the detail stage and inserts whatever was collected.
func (in *PlacesIngestor) finish(ctx context.Context, res *PlacesResult, placeIDs []string) (*PlacesResult, error) {
	res.UniquePlaces = len(placeIDs)
	if in.cfg.MaxDetailFetch > 0 && len(placeIDs) > in.cfg.MaxDetailFetch {
		placeIDs = placeIDs[:in.cfg.MaxDetailFetch]
	}

	listings, detailErrors := in.fetchDetails(ctx, placeIDs)
	res.DetailErrors = detailErrors

	inserted, err := in.store.InsertRawListings(ctx, listings)
	if err != nil {
		return nil, eris.Wrap(err, "ingest: insert places listings")
	}
	res.Inserted = inserted

	in.logger.Info("places ingest complete",
		zap.Int("searches", res.Searches),
		zap.Int("unique_places", res.UniquePlaces),
		zap.Int("detail_errors", res.DetailErrors),
		zap.Int64("inserted", res.Inserted),
	)
	return res, nil
}

// fetchDetails looks up every place concurrently, bounded by the worker
// limit. Failures are logged and counted so one bad place cannot sink
// the run.
func (in *PlacesIngestor) fetchDetails(ctx context.Context, placeIDs []string) ([]model.RawListing, int) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(in.cfg.DetailWorkers)

	var mu sync.Mutex
	listings := make([]model.RawListing, 0, len(placeIDs))
	errCount := 0

	for _, placeID := range placeIDs {
		g.Go(func() error {
			details, err := in.client.PlaceDetails(gctx, placeID)
			if err != nil {
				in.logger.Warn("place details failed",
					zap.String("place_id", placeID),
					zap.Error(err),
				)
				mu.Lock()
				errCount++
				mu.Unlock()
				return nil
			}
			listing := placeToListing(details)
			mu.Lock()
			listings = append(listings, listing)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return listings, errCount
}

// placeParkType derives the park type label from Google place types.
func placeParkType(types []string) string {
	var hasMobile bool
	for _, t := range types {
		switch strings.ToLower(t) {
		case "rv_park":
			return model.ParkTypeRVPark
		case "campground":
			return model.ParkTypeCampground
		}
		if strings.Contains(strings.ToLower(t), "mobile") {
			hasMobile = true
		}
	}
	if hasMobile {
		return model.ParkTypeMobileHomePark
	}
	return ""
}

// placeToListing converts a place details record into a raw listing.
func placeToListing(d *places.Details) model.RawListing {
	lat := d.Geometry.Location.Lat
	lon := d.Geometry.Location.Lng

	return model.RawListing{
		ExternalID:     d.PlaceID,
		Source:         model.SourceGooglePlaces,
		Name:           d.Name,
		ParkType:       placeParkType(d.Types),
		Address:        d.FormattedAddress,
		City:           d.Component("locality"),
		State:          d.Component("administrative_area_level_1"),
		ZipCode:        d.Component("postal_code"),
		County:         d.Component("administrative_area_level_2"),
		Latitude:       &lat,
		Longitude:      &lon,
		Phone:          d.Phone,
		Website:        d.Website,
		BusinessStatus: d.BusinessStatus,
		Rating:         d.Rating,
		TotalReviews:   d.UserRatings,
		RawData: map[string]any{
			"place_id": d.PlaceID,
			"types":    d.Types,
		},
		FetchedAt: time.Now().UTC(),
	}
}
