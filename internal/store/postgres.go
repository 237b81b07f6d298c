package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/parkscout/internal/db"
	"github.com/sells-group/parkscout/internal/dedup"
	"github.com/sells-group/parkscout/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

const rawListingColumns = `id, external_id, source, name, park_type, address, city, state,
	 zip_code, county, latitude, longitude, phone, website, email,
	 business_status, rating, total_reviews, raw_data, tags, fetched_at, processed`

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the most frequently used store operations.
var preparedStatements = map[string]string{
	"load_unprocessed": `SELECT ` + rawListingColumns + ` FROM parks_raw WHERE processed = false ORDER BY id`,
	"mark_processed":   `UPDATE parks_raw SET processed = true WHERE id = ANY($1)`,
	"get_master":       `SELECT ` + masterColumns + ` FROM parks_master WHERE master_id = $1`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	// Apply pool sizing from config with sensible defaults.
	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	// Prepare frequently-used statements on each new connection.
	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresWithPool wraps an existing pool; used by tests and by
// subsystems that manage their own connections.
func NewPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Pool returns the underlying database pool for use by subsystems that
// need direct query access (e.g., the county backfill).
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS parks_raw (
	id              BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
	external_id     TEXT NOT NULL DEFAULT '',
	source          TEXT NOT NULL,
	name            TEXT NOT NULL DEFAULT '',
	park_type       TEXT NOT NULL DEFAULT '',
	address         TEXT NOT NULL DEFAULT '',
	city            TEXT NOT NULL DEFAULT '',
	state           TEXT NOT NULL DEFAULT '',
	zip_code        TEXT NOT NULL DEFAULT '',
	county          TEXT NOT NULL DEFAULT '',
	latitude        DOUBLE PRECISION,
	longitude       DOUBLE PRECISION,
	phone           TEXT NOT NULL DEFAULT '',
	website         TEXT NOT NULL DEFAULT '',
	email           TEXT NOT NULL DEFAULT '',
	business_status TEXT NOT NULL DEFAULT '',
	rating          DOUBLE PRECISION,
	total_reviews   INTEGER NOT NULL DEFAULT 0,
	raw_data        JSONB,
	tags            JSONB,
	fetched_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	processed       BOOLEAN NOT NULL DEFAULT false,
	UNIQUE (source, external_id)
);

CREATE INDEX IF NOT EXISTS idx_parks_raw_processed ON parks_raw(processed) WHERE processed = false;
CREATE INDEX IF NOT EXISTS idx_parks_raw_zip ON parks_raw(zip_code);

CREATE TABLE IF NOT EXISTS parks_master (
	master_id           TEXT PRIMARY KEY,
	name                TEXT NOT NULL DEFAULT '',
	park_type           TEXT NOT NULL DEFAULT '',
	alternative_names   JSONB,
	address             TEXT NOT NULL DEFAULT '',
	city                TEXT NOT NULL DEFAULT '',
	state               TEXT NOT NULL DEFAULT '',
	zip_code            TEXT NOT NULL DEFAULT '',
	county              TEXT NOT NULL DEFAULT '',
	latitude            DOUBLE PRECISION,
	longitude           DOUBLE PRECISION,
	geom                geography(Point, 4326),
	location_confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
	phone               TEXT NOT NULL DEFAULT '',
	website             TEXT NOT NULL DEFAULT '',
	email               TEXT NOT NULL DEFAULT '',
	business_status     TEXT NOT NULL DEFAULT '',
	avg_rating          DOUBLE PRECISION,
	total_reviews       INTEGER NOT NULL DEFAULT 0,
	source_refs         JSONB,
	confidence_score    DOUBLE PRECISION NOT NULL DEFAULT 0,
	quality_flags       JSONB,
	needs_manual_review BOOLEAN NOT NULL DEFAULT false,
	created_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at          TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_parks_master_geom ON parks_master USING GIST (geom);
CREATE INDEX IF NOT EXISTS idx_parks_master_review ON parks_master(needs_manual_review) WHERE needs_manual_review;
CREATE INDEX IF NOT EXISTS idx_parks_master_zip ON parks_master(zip_code);
CREATE INDEX IF NOT EXISTS idx_parks_master_state_county ON parks_master(state, county);

CREATE SCHEMA IF NOT EXISTS geo;

CREATE TABLE IF NOT EXISTS geo.counties (
	geoid      TEXT PRIMARY KEY,
	state_fips TEXT NOT NULL,
	name       TEXT NOT NULL,
	boundary   geometry(MultiPolygon, 4326) NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_geo_counties_boundary ON geo.counties USING GIST (boundary);
CREATE INDEX IF NOT EXISTS idx_geo_counties_state ON geo.counties(state_fips);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

// Migrate creates the schema. PostGIS must already be installed; the
// extension is created here so a fresh database works out of the box.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS postgis"); err != nil {
		return eris.Wrap(err, "postgres: create postgis extension")
	}
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

var rawInsertColumns = []string{
	"external_id", "source", "name", "park_type", "address", "city", "state",
	"zip_code", "county", "latitude", "longitude", "phone", "website", "email",
	"business_status", "rating", "total_reviews", "raw_data", "tags",
	"fetched_at", "processed",
}

// InsertRawListings bulk-inserts listings, silently skipping rows whose
// (source, external_id) pair already exists. Returns the number of rows
// actually inserted.
func (s *PostgresStore) InsertRawListings(ctx context.Context, listings []model.RawListing) (int64, error) {
	rows := make([][]any, 0, len(listings))
	for i := range listings {
		l := &listings[i]
		if err := l.Validate(); err != nil {
			return 0, eris.Wrapf(err, "postgres: listing %s/%s", l.Source, l.ExternalID)
		}
		rawJSON, err := json.Marshal(l.RawData)
		if err != nil {
			return 0, eris.Wrap(err, "postgres: marshal raw data")
		}
		tagsJSON, err := json.Marshal(l.Tags)
		if err != nil {
			return 0, eris.Wrap(err, "postgres: marshal tags")
		}
		fetchedAt := l.FetchedAt
		if fetchedAt.IsZero() {
			fetchedAt = time.Now().UTC()
		}
		rows = append(rows, []any{
			l.ExternalID, string(l.Source), l.Name, l.ParkType, l.Address, l.City, l.State,
			l.ZipCode, l.County, l.Latitude, l.Longitude, l.Phone, l.Website, l.Email,
			l.BusinessStatus, l.Rating, l.TotalReviews, rawJSON, tagsJSON,
			fetchedAt, false,
		})
	}

	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "parks_raw",
		Columns:      rawInsertColumns,
		ConflictKeys: []string{"source", "external_id"},
		DoNothing:    true,
	}, rows)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: insert raw listings")
	}
	return n, nil
}

func (s *PostgresStore) LoadUnprocessedRawListings(ctx context.Context) ([]model.RawListing, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+rawListingColumns+` FROM parks_raw WHERE processed = false ORDER BY id`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: load unprocessed raw listings")
	}
	defer rows.Close()

	var listings []model.RawListing
	for rows.Next() {
		l, err := scanRawListing(rows)
		if err != nil {
			return nil, err
		}
		listings = append(listings, *l)
	}
	return listings, eris.Wrap(rows.Err(), "postgres: load unprocessed iterate")
}

func scanRawListing(row pgx.Row) (*model.RawListing, error) {
	var l model.RawListing
	var rawJSON, tagsJSON []byte
	err := row.Scan(
		&l.ID, &l.ExternalID, &l.Source, &l.Name, &l.ParkType, &l.Address, &l.City, &l.State,
		&l.ZipCode, &l.County, &l.Latitude, &l.Longitude, &l.Phone, &l.Website, &l.Email,
		&l.BusinessStatus, &l.Rating, &l.TotalReviews, &rawJSON, &tagsJSON, &l.FetchedAt, &l.Processed,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan raw listing")
	}
	if len(rawJSON) > 0 {
		if err := json.Unmarshal(rawJSON, &l.RawData); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal raw data")
		}
	}
	if len(tagsJSON) > 0 {
		if err := json.Unmarshal(tagsJSON, &l.Tags); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal tags")
		}
	}
	return &l, nil
}

// ConsolidationBatch runs fn inside a single transaction. Master upserts
// issued through the writer run in per-record savepoints so one bad row
// cannot poison the transaction.
func (s *PostgresStore) ConsolidationBatch(ctx context.Context, fn func(dedup.BatchWriter) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin consolidation batch")
	}
	defer tx.Rollback(ctx)

	if err := fn(&pgBatchWriter{tx: tx}); err != nil {
		return eris.Wrap(err, "postgres: consolidation batch")
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit consolidation batch")
}

type pgBatchWriter struct {
	tx pgx.Tx
}

// ST_MakePoint is strict, so records without coordinates get a NULL geom.
const upsertMasterSQL = `
INSERT INTO parks_master (
	master_id, name, park_type, alternative_names, address, city, state,
	zip_code, county, latitude, longitude, geom, location_confidence, phone,
	website, email, business_status, avg_rating, total_reviews,
	source_refs, confidence_score, quality_flags, needs_manual_review
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11,
	CAST(ST_SetSRID(ST_MakePoint($11, $10), 4326) AS geography),
	$12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)
ON CONFLICT (master_id) DO UPDATE SET updated_at = now()`

func (w *pgBatchWriter) UpsertMasterRecord(ctx context.Context, m model.MasterRecord) error {
	namesJSON, err := json.Marshal(m.AlternativeNames)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal alternative names")
	}
	refsJSON, err := json.Marshal(m.SourceRefs)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal source refs")
	}
	flagsJSON, err := json.Marshal(m.QualityFlags)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal quality flags")
	}

	// Nested Begin issues a savepoint on the enclosing transaction.
	sp, err := w.tx.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin master savepoint")
	}
	_, err = sp.Exec(ctx, upsertMasterSQL,
		m.MasterID, m.Name, m.ParkType, namesJSON, m.Address, m.City, m.State,
		m.ZipCode, m.County, m.Latitude, m.Longitude, m.LocationConfidence, m.Phone,
		m.Website, m.Email, m.BusinessStatus, m.AvgRating, m.TotalReviews,
		refsJSON, m.ConfidenceScore, flagsJSON, m.NeedsManualReview,
	)
	if err != nil {
		sp.Rollback(ctx)
		return eris.Wrapf(err, "postgres: upsert master %s", m.MasterID)
	}
	return eris.Wrap(sp.Commit(ctx), "postgres: release master savepoint")
}

func (w *pgBatchWriter) MarkRawListingsProcessed(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := w.tx.Exec(ctx,
		`UPDATE parks_raw SET processed = true WHERE id = ANY($1)`,
		ids,
	)
	return eris.Wrap(err, "postgres: mark raw listings processed")
}

const masterColumns = `master_id, name, park_type, alternative_names, address, city, state,
	 zip_code, county, latitude, longitude, location_confidence, phone,
	 website, email, business_status, avg_rating, total_reviews,
	 source_refs, confidence_score, quality_flags, needs_manual_review`

func (s *PostgresStore) ListMasterRecords(ctx context.Context, filter MasterFilter) ([]model.MasterRecord, error) {
	query := `SELECT ` + masterColumns + ` FROM parks_master WHERE true`
	args := []any{}
	argIdx := 1

	if filter.NeedsReview != nil {
		query += fmt.Sprintf(` AND needs_manual_review = $%d`, argIdx)
		args = append(args, *filter.NeedsReview)
		argIdx++
	}
	if filter.State != "" {
		query += fmt.Sprintf(` AND state = $%d`, argIdx)
		args = append(args, filter.State)
		argIdx++
	}
	if filter.County != "" {
		query += fmt.Sprintf(` AND county = $%d`, argIdx)
		args = append(args, filter.County)
		argIdx++
	}
	if filter.ZipCode != "" {
		query += fmt.Sprintf(` AND zip_code = $%d`, argIdx)
		args = append(args, filter.ZipCode)
		argIdx++
	}
	query += ` ORDER BY name, master_id`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list master records")
	}
	defer rows.Close()

	var masters []model.MasterRecord
	for rows.Next() {
		m, err := scanMasterRecord(rows)
		if err != nil {
			return nil, err
		}
		masters = append(masters, *m)
	}
	return masters, eris.Wrap(rows.Err(), "postgres: list master records iterate")
}

func (s *PostgresStore) GetMasterRecord(ctx context.Context, masterID string) (*model.MasterRecord, error) {
	m, err := scanMasterRecord(s.pool.QueryRow(ctx,
		`SELECT `+masterColumns+` FROM parks_master WHERE master_id = $1`,
		masterID,
	))
	if err != nil {
		if errors.Is(eris.Cause(err), pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: get master %s", masterID)
	}
	return m, nil
}

func scanMasterRecord(row pgx.Row) (*model.MasterRecord, error) {
	var m model.MasterRecord
	var namesJSON, refsJSON, flagsJSON []byte
	err := row.Scan(
		&m.MasterID, &m.Name, &m.ParkType, &namesJSON, &m.Address, &m.City, &m.State,
		&m.ZipCode, &m.County, &m.Latitude, &m.Longitude, &m.LocationConfidence, &m.Phone,
		&m.Website, &m.Email, &m.BusinessStatus, &m.AvgRating, &m.TotalReviews,
		&refsJSON, &m.ConfidenceScore, &flagsJSON, &m.NeedsManualReview,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan master record")
	}
	if len(namesJSON) > 0 {
		if err := json.Unmarshal(namesJSON, &m.AlternativeNames); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal alternative names")
		}
	}
	if len(refsJSON) > 0 {
		if err := json.Unmarshal(refsJSON, &m.SourceRefs); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal source refs")
		}
	}
	if len(flagsJSON) > 0 {
		if err := json.Unmarshal(flagsJSON, &m.QualityFlags); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal quality flags")
		}
	}
	return &m, nil
}

func (s *PostgresStore) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{RawBySource: make(map[string]int)}

	err := s.pool.QueryRow(ctx,
		`SELECT count(*), count(*) FILTER (WHERE NOT processed) FROM parks_raw`,
	).Scan(&stats.RawListings, &stats.UnprocessedRaw)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: raw listing counts")
	}

	rows, err := s.pool.Query(ctx, `SELECT source, count(*) FROM parks_raw GROUP BY source`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: raw listings by source")
	}
	defer rows.Close()
	for rows.Next() {
		var source string
		var n int
		if err := rows.Scan(&source, &n); err != nil {
			return nil, eris.Wrap(err, "postgres: scan source count")
		}
		stats.RawBySource[source] = n
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: raw listings by source iterate")
	}

	err = s.pool.QueryRow(ctx,
		`SELECT count(*), count(*) FILTER (WHERE needs_manual_review) FROM parks_master`,
	).Scan(&stats.MasterRecords, &stats.NeedsReview)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: master record counts")
	}

	return stats, nil
}
