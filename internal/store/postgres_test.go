package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/parkscout/internal/dedup"
	"github.com/sells-group/parkscout/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	return NewPostgresWithPool(mock), mock
}

func TestPostgresStore_GetMasterRecord_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT .+ FROM parks_master WHERE master_id = \$1`).
		WithArgs("no-such-id").
		WillReturnError(pgx.ErrNoRows)

	got, err := s.GetMasterRecord(context.Background(), "no-such-id")
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetMasterRecord_Found(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	lat, lon := 39.77, -86.15
	mock.ExpectQuery(`SELECT .+ FROM parks_master WHERE master_id = \$1`).
		WithArgs("m-1").
		WillReturnRows(pgxmock.NewRows([]string{
			"master_id", "name", "park_type", "alternative_names", "address", "city", "state",
			"zip_code", "county", "latitude", "longitude", "location_confidence", "phone",
			"website", "email", "business_status", "avg_rating", "total_reviews",
			"source_refs", "confidence_score", "quality_flags", "needs_manual_review",
		}).AddRow(
			"m-1", "Sunny Acres RV Park", "rv_park", []byte(`["Sunny Acres RV Park"]`),
			"123 Oak St", "Indianapolis", "IN", "46201", "Marion", &lat, &lon, 1.0,
			"317-555-0101", "", "", "OPERATIONAL", (*float64)(nil), 0,
			[]byte(`[{"source":"google_places","external_id":"gp_1"}]`), 0.77,
			[]byte(`{"num_sources":1,"has_coordinates":true,"has_contact_info":true,"has_reviews":false}`),
			false,
		))

	got, err := s.GetMasterRecord(context.Background(), "m-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Sunny Acres RV Park", got.Name)
	assert.Equal(t, []string{"Sunny Acres RV Park"}, got.AlternativeNames)
	require.Len(t, got.SourceRefs, 1)
	assert.Equal(t, model.SourceGooglePlaces, got.SourceRefs[0].Source)
	assert.True(t, got.QualityFlags.HasCoordinates)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_LoadUnprocessedRawListings(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	lat, lon := 39.77, -86.15
	now := time.Now().UTC()
	mock.ExpectQuery(`SELECT .+ FROM parks_raw WHERE processed = false ORDER BY id`).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "external_id", "source", "name", "park_type", "address", "city", "state",
			"zip_code", "county", "latitude", "longitude", "phone", "website", "email",
			"business_status", "rating", "total_reviews", "raw_data", "tags", "fetched_at", "processed",
		}).AddRow(
			int64(1), "gp_1", model.SourceGooglePlaces, "Sunny Acres RV Park", "rv_park",
			"123 Oak St", "Indianapolis", "IN", "46201", "", &lat, &lon,
			"317-555-0101", "", "", "OPERATIONAL", (*float64)(nil), 0,
			[]byte(`{"place_id":"gp_1"}`), []byte(`{"tourism":"caravan_site"}`), now, false,
		))

	listings, err := s.LoadUnprocessedRawListings(context.Background())
	require.NoError(t, err)
	require.Len(t, listings, 1)
	assert.Equal(t, int64(1), listings[0].ID)
	assert.Equal(t, "Sunny Acres RV Park", listings[0].Name)
	assert.Equal(t, "gp_1", listings[0].RawData["place_id"])
	assert.Equal(t, "caravan_site", listings[0].Tags["tourism"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ConsolidationBatch_CommitsOnSuccess(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	master := dedup.NewBuilder().Consolidate([]model.RawListing{
		{ID: 1, Source: model.SourceOSM, ExternalID: "node_1", Name: "Park"},
	})

	mock.ExpectBegin()
	mock.ExpectBegin() // savepoint for the master upsert
	mock.ExpectExec(`INSERT INTO parks_master`).WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit() // release savepoint
	mock.ExpectExec(`UPDATE parks_raw SET processed = true`).
		WithArgs([]int64{1}).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()
	mock.ExpectRollback()

	err := s.ConsolidationBatch(context.Background(), func(w dedup.BatchWriter) error {
		if err := w.UpsertMasterRecord(context.Background(), master); err != nil {
			return err
		}
		return w.MarkRawListingsProcessed(context.Background(), []int64{1})
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertMasterWritesGeom(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	lat, lon := 39.77, -86.15
	master := dedup.NewBuilder().Consolidate([]model.RawListing{
		{ID: 1, Source: model.SourceOSM, ExternalID: "node_1", Name: "Park", Latitude: &lat, Longitude: &lon},
	})

	mock.ExpectBegin()
	mock.ExpectBegin()
	mock.ExpectExec(`(?s)INSERT INTO parks_master \(\s*master_id,.+longitude, geom,.+CAST\(ST_SetSRID\(ST_MakePoint\(\$11, \$10\), 4326\) AS geography\)`).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()
	mock.ExpectCommit()
	mock.ExpectRollback()

	err := s.ConsolidationBatch(context.Background(), func(w dedup.BatchWriter) error {
		return w.UpsertMasterRecord(context.Background(), master)
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_MigrationDefinesMasterGeom(t *testing.T) {
	assert.Contains(t, postgresMigration, "geom                geography(Point, 4326)")
	assert.Contains(t, postgresMigration, "idx_parks_master_geom ON parks_master USING GIST (geom)")
}

func TestPostgresStore_ConsolidationBatch_SavepointIsolatesFailure(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	master := dedup.NewBuilder().Consolidate([]model.RawListing{
		{ID: 1, Source: model.SourceOSM, ExternalID: "node_1", Name: "Park"},
	})

	mock.ExpectBegin()
	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO parks_master`).WillReturnError(assert.AnError)
	mock.ExpectRollback() // rollback to savepoint only
	mock.ExpectExec(`UPDATE parks_raw SET processed = true`).
		WithArgs([]int64{1}).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()
	mock.ExpectRollback()

	// The caller treats the upsert failure as non-fatal, mirroring the
	// pipeline's behavior, and the batch still commits.
	err := s.ConsolidationBatch(context.Background(), func(w dedup.BatchWriter) error {
		if err := w.UpsertMasterRecord(context.Background(), master); err == nil {
			t.Fatal("expected upsert error")
		}
		return w.MarkRawListingsProcessed(context.Background(), []int64{1})
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ConsolidationBatch_RollsBackOnError(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectRollback()

	err := s.ConsolidationBatch(context.Background(), func(w dedup.BatchWriter) error {
		return assert.AnError
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "consolidation batch")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_MarkRawListingsProcessed_EmptyIDs(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectCommit()
	mock.ExpectRollback()

	err := s.ConsolidationBatch(context.Background(), func(w dedup.BatchWriter) error {
		return w.MarkRawListingsProcessed(context.Background(), nil)
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Stats(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT count\(\*\), count\(\*\) FILTER \(WHERE NOT processed\) FROM parks_raw`).
		WillReturnRows(pgxmock.NewRows([]string{"count", "count"}).AddRow(10, 4))
	mock.ExpectQuery(`SELECT source, count\(\*\) FROM parks_raw GROUP BY source`).
		WillReturnRows(pgxmock.NewRows([]string{"source", "count"}).
			AddRow("osm", 6).AddRow("google_places", 4))
	mock.ExpectQuery(`SELECT count\(\*\), count\(\*\) FILTER \(WHERE needs_manual_review\) FROM parks_master`).
		WillReturnRows(pgxmock.NewRows([]string{"count", "count"}).AddRow(7, 2))

	stats, err := s.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 10, stats.RawListings)
	assert.Equal(t, 4, stats.UnprocessedRaw)
	assert.Equal(t, map[string]int{"osm": 6, "google_places": 4}, stats.RawBySource)
	assert.Equal(t, 7, stats.MasterRecords)
	assert.Equal(t, 2, stats.NeedsReview)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListMasterRecords_FilterQuery(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	review := true
	mock.ExpectQuery(`SELECT .+ FROM parks_master WHERE true AND needs_manual_review = \$1 AND state = \$2 ORDER BY name, master_id LIMIT \$3`).
		WithArgs(true, "IN", 50).
		WillReturnRows(pgxmock.NewRows([]string{
			"master_id", "name", "park_type", "alternative_names", "address", "city", "state",
			"zip_code", "county", "latitude", "longitude", "location_confidence", "phone",
			"website", "email", "business_status", "avg_rating", "total_reviews",
			"source_refs", "confidence_score", "quality_flags", "needs_manual_review",
		}))

	masters, err := s.ListMasterRecords(context.Background(), MasterFilter{
		NeedsReview: &review,
		State:       "IN",
		Limit:       50,
	})
	require.NoError(t, err)
	assert.Empty(t, masters)
	assert.NoError(t, mock.ExpectationsWereMet())
}
