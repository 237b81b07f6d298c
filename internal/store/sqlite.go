package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/parkscout/internal/dedup"
	"github.com/sells-group/parkscout/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. It backs
// single-machine runs and local development; county geometry lives in
// PostGIS only.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS parks_raw (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	external_id     TEXT NOT NULL DEFAULT '',
	source          TEXT NOT NULL,
	name            TEXT NOT NULL DEFAULT '',
	park_type       TEXT NOT NULL DEFAULT '',
	address         TEXT NOT NULL DEFAULT '',
	city            TEXT NOT NULL DEFAULT '',
	state           TEXT NOT NULL DEFAULT '',
	zip_code        TEXT NOT NULL DEFAULT '',
	county          TEXT NOT NULL DEFAULT '',
	latitude        REAL,
	longitude       REAL,
	phone           TEXT NOT NULL DEFAULT '',
	website         TEXT NOT NULL DEFAULT '',
	email           TEXT NOT NULL DEFAULT '',
	business_status TEXT NOT NULL DEFAULT '',
	rating          REAL,
	total_reviews   INTEGER NOT NULL DEFAULT 0,
	raw_data        TEXT,
	tags            TEXT,
	fetched_at      DATETIME NOT NULL DEFAULT (datetime('now')),
	processed       INTEGER NOT NULL DEFAULT 0,
	UNIQUE (source, external_id)
);

CREATE INDEX IF NOT EXISTS idx_parks_raw_processed ON parks_raw(processed);
CREATE INDEX IF NOT EXISTS idx_parks_raw_zip ON parks_raw(zip_code);

CREATE TABLE IF NOT EXISTS parks_master (
	master_id           TEXT PRIMARY KEY,
	name                TEXT NOT NULL DEFAULT '',
	park_type           TEXT NOT NULL DEFAULT '',
	alternative_names   TEXT,
	address             TEXT NOT NULL DEFAULT '',
	city                TEXT NOT NULL DEFAULT '',
	state               TEXT NOT NULL DEFAULT '',
	zip_code            TEXT NOT NULL DEFAULT '',
	county              TEXT NOT NULL DEFAULT '',
	latitude            REAL,
	longitude           REAL,
	location_confidence REAL NOT NULL DEFAULT 0,
	phone               TEXT NOT NULL DEFAULT '',
	website             TEXT NOT NULL DEFAULT '',
	email               TEXT NOT NULL DEFAULT '',
	business_status     TEXT NOT NULL DEFAULT '',
	avg_rating          REAL,
	total_reviews       INTEGER NOT NULL DEFAULT 0,
	source_refs         TEXT,
	confidence_score    REAL NOT NULL DEFAULT 0,
	quality_flags       TEXT,
	needs_manual_review INTEGER NOT NULL DEFAULT 0,
	created_at          DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at          DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_parks_master_review ON parks_master(needs_manual_review);
CREATE INDEX IF NOT EXISTS idx_parks_master_zip ON parks_master(zip_code);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// InsertRawListings inserts listings one at a time inside a transaction,
// skipping rows whose (source, external_id) pair already exists.
func (s *SQLiteStore) InsertRawListings(ctx context.Context, listings []model.RawListing) (int64, error) {
	if len(listings) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin insert")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO parks_raw (
			external_id, source, name, park_type, address, city, state,
			zip_code, county, latitude, longitude, phone, website, email,
			business_status, rating, total_reviews, raw_data, tags, fetched_at, processed
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0)`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare insert")
	}
	defer stmt.Close()

	var inserted int64
	for i := range listings {
		l := &listings[i]
		if err := l.Validate(); err != nil {
			return 0, eris.Wrapf(err, "sqlite: listing %s/%s", l.Source, l.ExternalID)
		}
		rawJSON, err := json.Marshal(l.RawData)
		if err != nil {
			return 0, eris.Wrap(err, "sqlite: marshal raw data")
		}
		tagsJSON, err := json.Marshal(l.Tags)
		if err != nil {
			return 0, eris.Wrap(err, "sqlite: marshal tags")
		}
		fetchedAt := l.FetchedAt
		if fetchedAt.IsZero() {
			fetchedAt = time.Now().UTC()
		}
		res, err := stmt.ExecContext(ctx,
			l.ExternalID, string(l.Source), l.Name, l.ParkType, l.Address, l.City, l.State,
			l.ZipCode, l.County, l.Latitude, l.Longitude, l.Phone, l.Website, l.Email,
			l.BusinessStatus, l.Rating, l.TotalReviews, string(rawJSON), string(tagsJSON), fetchedAt,
		)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: insert listing %s/%s", l.Source, l.ExternalID)
		}
		n, _ := res.RowsAffected()
		inserted += n
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit insert")
	}
	return inserted, nil
}

func (s *SQLiteStore) LoadUnprocessedRawListings(ctx context.Context) ([]model.RawListing, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, external_id, source, name, park_type, address, city, state,
		       zip_code, county, latitude, longitude, phone, website, email,
		       business_status, rating, total_reviews, raw_data, tags, fetched_at, processed
		FROM parks_raw WHERE processed = 0 ORDER BY id`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: load unprocessed raw listings")
	}
	defer rows.Close()

	var listings []model.RawListing
	for rows.Next() {
		var l model.RawListing
		var rawJSON, tagsJSON sql.NullString
		if err := rows.Scan(
			&l.ID, &l.ExternalID, &l.Source, &l.Name, &l.ParkType, &l.Address, &l.City, &l.State,
			&l.ZipCode, &l.County, &l.Latitude, &l.Longitude, &l.Phone, &l.Website, &l.Email,
			&l.BusinessStatus, &l.Rating, &l.TotalReviews, &rawJSON, &tagsJSON, &l.FetchedAt, &l.Processed,
		); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan raw listing")
		}
		if rawJSON.Valid && rawJSON.String != "" && rawJSON.String != "null" {
			if err := json.Unmarshal([]byte(rawJSON.String), &l.RawData); err != nil {
				return nil, eris.Wrap(err, "sqlite: unmarshal raw data")
			}
		}
		if tagsJSON.Valid && tagsJSON.String != "" && tagsJSON.String != "null" {
			if err := json.Unmarshal([]byte(tagsJSON.String), &l.Tags); err != nil {
				return nil, eris.Wrap(err, "sqlite: unmarshal tags")
			}
		}
		listings = append(listings, l)
	}
	return listings, eris.Wrap(rows.Err(), "sqlite: load unprocessed iterate")
}

// ConsolidationBatch runs fn inside a single transaction. A failed
// statement in SQLite does not poison the transaction, so per-record
// recovery needs no savepoints here.
func (s *SQLiteStore) ConsolidationBatch(ctx context.Context, fn func(dedup.BatchWriter) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin consolidation batch")
	}
	defer tx.Rollback()

	if err := fn(&sqliteBatchWriter{tx: tx}); err != nil {
		return eris.Wrap(err, "sqlite: consolidation batch")
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit consolidation batch")
}

type sqliteBatchWriter struct {
	tx *sql.Tx
}

func (w *sqliteBatchWriter) UpsertMasterRecord(ctx context.Context, m model.MasterRecord) error {
	namesJSON, err := json.Marshal(m.AlternativeNames)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal alternative names")
	}
	refsJSON, err := json.Marshal(m.SourceRefs)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal source refs")
	}
	flagsJSON, err := json.Marshal(m.QualityFlags)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal quality flags")
	}

	_, err = w.tx.ExecContext(ctx, `
		INSERT INTO parks_master (
			master_id, name, park_type, alternative_names, address, city, state,
			zip_code, county, latitude, longitude, location_confidence, phone,
			website, email, business_status, avg_rating, total_reviews,
			source_refs, confidence_score, quality_flags, needs_manual_review
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (master_id) DO UPDATE SET updated_at = datetime('now')`,
		m.MasterID, m.Name, m.ParkType, string(namesJSON), m.Address, m.City, m.State,
		m.ZipCode, m.County, m.Latitude, m.Longitude, m.LocationConfidence, m.Phone,
		m.Website, m.Email, m.BusinessStatus, m.AvgRating, m.TotalReviews,
		string(refsJSON), m.ConfidenceScore, string(flagsJSON), m.NeedsManualReview,
	)
	return eris.Wrapf(err, "sqlite: upsert master %s", m.MasterID)
}

func (w *sqliteBatchWriter) MarkRawListingsProcessed(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	_, err := w.tx.ExecContext(ctx,
		`UPDATE parks_raw SET processed = 1 WHERE id IN (`+placeholders+`)`,
		args...,
	)
	return eris.Wrap(err, "sqlite: mark raw listings processed")
}

func (s *SQLiteStore) ListMasterRecords(ctx context.Context, filter MasterFilter) ([]model.MasterRecord, error) {
	query := `
		SELECT master_id, name, park_type, alternative_names, address, city, state,
		       zip_code, county, latitude, longitude, location_confidence, phone,
		       website, email, business_status, avg_rating, total_reviews,
		       source_refs, confidence_score, quality_flags, needs_manual_review
		FROM parks_master WHERE 1=1`
	var args []any

	if filter.NeedsReview != nil {
		query += ` AND needs_manual_review = ?`
		args = append(args, *filter.NeedsReview)
	}
	if filter.State != "" {
		query += ` AND state = ?`
		args = append(args, filter.State)
	}
	if filter.County != "" {
		query += ` AND county = ?`
		args = append(args, filter.County)
	}
	if filter.ZipCode != "" {
		query += ` AND zip_code = ?`
		args = append(args, filter.ZipCode)
	}
	query += ` ORDER BY name, master_id`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list master records")
	}
	defer rows.Close()

	var masters []model.MasterRecord
	for rows.Next() {
		m, err := scanSQLiteMaster(rows.Scan)
		if err != nil {
			return nil, err
		}
		masters = append(masters, *m)
	}
	return masters, eris.Wrap(rows.Err(), "sqlite: list master records iterate")
}

func (s *SQLiteStore) GetMasterRecord(ctx context.Context, masterID string) (*model.MasterRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT master_id, name, park_type, alternative_names, address, city, state,
		       zip_code, county, latitude, longitude, location_confidence, phone,
		       website, email, business_status, avg_rating, total_reviews,
		       source_refs, confidence_score, quality_flags, needs_manual_review
		FROM parks_master WHERE master_id = ?`, masterID)

	m, err := scanSQLiteMaster(row.Scan)
	if err != nil {
		if errors.Is(eris.Cause(err), sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "sqlite: get master %s", masterID)
	}
	return m, nil
}

func scanSQLiteMaster(scan func(dest ...any) error) (*model.MasterRecord, error) {
	var m model.MasterRecord
	var namesJSON, refsJSON, flagsJSON sql.NullString
	err := scan(
		&m.MasterID, &m.Name, &m.ParkType, &namesJSON, &m.Address, &m.City, &m.State,
		&m.ZipCode, &m.County, &m.Latitude, &m.Longitude, &m.LocationConfidence, &m.Phone,
		&m.Website, &m.Email, &m.BusinessStatus, &m.AvgRating, &m.TotalReviews,
		&refsJSON, &m.ConfidenceScore, &flagsJSON, &m.NeedsManualReview,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan master record")
	}
	for _, f := range []struct {
		src sql.NullString
		dst any
	}{
		{namesJSON, &m.AlternativeNames},
		{refsJSON, &m.SourceRefs},
		{flagsJSON, &m.QualityFlags},
	} {
		if f.src.Valid && f.src.String != "" && f.src.String != "null" {
			if err := json.Unmarshal([]byte(f.src.String), f.dst); err != nil {
				return nil, eris.Wrap(err, "sqlite: unmarshal master field")
			}
		}
	}
	return &m, nil
}

func (s *SQLiteStore) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{RawBySource: make(map[string]int)}

	err := s.db.QueryRowContext(ctx, `
		SELECT count(*), coalesce(sum(CASE WHEN processed = 0 THEN 1 ELSE 0 END), 0)
		FROM parks_raw`,
	).Scan(&stats.RawListings, &stats.UnprocessedRaw)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: raw listing counts")
	}

	rows, err := s.db.QueryContext(ctx, `SELECT source, count(*) FROM parks_raw GROUP BY source`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: raw listings by source")
	}
	defer rows.Close()
	for rows.Next() {
		var source string
		var n int
		if err := rows.Scan(&source, &n); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan source count")
		}
		stats.RawBySource[source] = n
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: raw listings by source iterate")
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT count(*), coalesce(sum(CASE WHEN needs_manual_review THEN 1 ELSE 0 END), 0)
		FROM parks_master`,
	).Scan(&stats.MasterRecords, &stats.NeedsReview)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: master record counts")
	}

	return stats, nil
}

var _ Store = (*SQLiteStore)(nil)
var _ Store = (*PostgresStore)(nil)
