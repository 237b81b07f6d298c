package dedup

import (
	"context"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/parkscout/internal/model"
)

// memStorage is an in-memory Storage with scriptable failures.
type memStorage struct {
	listings []model.RawListing
	loadErr  error
	batchErr error

	// failMasters makes UpsertMasterRecord fail for the named park names.
	failMasters map[string]bool

	written      []model.MasterRecord
	processedIDs []int64
	batchCalls   int
}

func (s *memStorage) LoadUnprocessedRawListings(ctx context.Context) ([]model.RawListing, error) {
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	return s.listings, nil
}

func (s *memStorage) ConsolidationBatch(ctx context.Context, fn func(BatchWriter) error) error {
	s.batchCalls++
	if s.batchErr != nil {
		return s.batchErr
	}
	return fn(&memWriter{store: s})
}

type memWriter struct {
	store *memStorage
}

func (w *memWriter) UpsertMasterRecord(ctx context.Context, m model.MasterRecord) error {
	if w.store.failMasters[m.Name] {
		return eris.New("duplicate key value violates unique constraint")
	}
	w.store.written = append(w.store.written, m)
	return nil
}

func (w *memWriter) MarkRawListingsProcessed(ctx context.Context, ids []int64) error {
	w.store.processedIDs = append(w.store.processedIDs, ids...)
	return nil
}

func TestProcessorRun_EmptyInputIsNoOp(t *testing.T) {
	store := &memStorage{}
	p := NewProcessor(store, DefaultProcessorConfig())

	summary, err := p.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, &RunSummary{}, summary)
	assert.Zero(t, store.batchCalls, "no batch should open for empty input")
}

func TestProcessorRun_LoadErrorIsFatal(t *testing.T) {
	store := &memStorage{loadErr: eris.New("connection refused")}
	p := NewProcessor(store, DefaultProcessorConfig())

	summary, err := p.Run(context.Background())

	require.Error(t, err)
	assert.Nil(t, summary)
	assert.Contains(t, err.Error(), "load unprocessed raw listings")
}

func TestProcessorRun_MergesDuplicatePair(t *testing.T) {
	store := &memStorage{listings: []model.RawListing{
		{
			ID: 1, ExternalID: "gp_abc", Source: model.SourceGooglePlaces,
			Name: "Sunny Acres RV Park", Address: "123 Oak Street",
			City: "Indianapolis", State: "IN", ZipCode: "46201",
			Latitude: f64(39.7700), Longitude: f64(-86.1500),
			Phone: "317-555-0101",
		},
		{
			ID: 2, ExternalID: "osm_node_42", Source: model.SourceOSM,
			Name: "Sunny Acres RV Resort", ZipCode: "46201",
			Latitude: f64(39.7703), Longitude: f64(-86.1498),
		},
	}}
	p := NewProcessor(store, DefaultProcessorConfig())

	summary, err := p.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 2, summary.Loaded)
	assert.Equal(t, 1, summary.Groups)
	assert.Equal(t, 1, summary.MastersWritten)
	assert.Zero(t, summary.WriteErrors)
	assert.InDelta(t, 0.5, summary.DedupRate, 1e-9)

	require.Len(t, store.written, 1)
	master := store.written[0]
	assert.Equal(t, "Sunny Acres RV Park", master.Name)
	assert.Len(t, master.SourceRefs, 2)
	assert.False(t, master.NeedsManualReview)

	assert.ElementsMatch(t, []int64{1, 2}, store.processedIDs)
}

func TestProcessorRun_SingletonWithoutZipOrCoords(t *testing.T) {
	store := &memStorage{listings: []model.RawListing{
		{ID: 7, Source: model.SourceManual, Name: "Hidden Park", Address: "99 Dirt Rd"},
	}}
	p := NewProcessor(store, DefaultProcessorConfig())

	summary, err := p.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, summary.Loaded)
	assert.Equal(t, 1, summary.MastersWritten)
	assert.Equal(t, 1, summary.NeedsReview)
	assert.Zero(t, summary.DedupRate)

	require.Len(t, store.written, 1)
	assert.True(t, store.written[0].NeedsManualReview)
	assert.Equal(t, []int64{7}, store.processedIDs)
}

func TestProcessorRun_DistinctParksStaySeparate(t *testing.T) {
	store := &memStorage{listings: []model.RawListing{
		{ID: 1, Source: model.SourceGooglePlaces, Name: "Sunny Acres RV Park", ZipCode: "46201"},
		{ID: 2, Source: model.SourceGooglePlaces, Name: "Lakeside Estates", ZipCode: "46201"},
	}}
	p := NewProcessor(store, DefaultProcessorConfig())

	summary, err := p.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 2, summary.MastersWritten)
	assert.Zero(t, summary.DedupRate)
	assert.Len(t, store.written, 2)
}

func TestProcessorRun_WriteErrorCountedNotFatal(t *testing.T) {
	store := &memStorage{
		listings: []model.RawListing{
			{ID: 1, Source: model.SourceGooglePlaces, Name: "Alpha Park", ZipCode: "46201",
				Address: "1 A St", Latitude: f64(39.1), Longitude: f64(-86.1), Phone: "p"},
			{ID: 2, Source: model.SourceGooglePlaces, Name: "Beta Park", ZipCode: "46202",
				Address: "2 B St", Latitude: f64(39.2), Longitude: f64(-86.2), Phone: "p"},
		},
		failMasters: map[string]bool{"Alpha Park": true},
	}
	p := NewProcessor(store, DefaultProcessorConfig())

	summary, err := p.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, summary.MastersWritten)
	assert.Equal(t, 1, summary.WriteErrors)

	require.Len(t, store.written, 1)
	assert.Equal(t, "Beta Park", store.written[0].Name)

	// The processed flags still cover every loaded listing.
	assert.ElementsMatch(t, []int64{1, 2}, store.processedIDs)
}

func TestProcessorRun_BatchErrorIsFatal(t *testing.T) {
	store := &memStorage{
		listings: []model.RawListing{
			{ID: 1, Source: model.SourceOSM, Name: "Park", ZipCode: "46201"},
		},
		batchErr: eris.New("deadlock detected"),
	}
	p := NewProcessor(store, DefaultProcessorConfig())

	summary, err := p.Run(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "consolidation batch")
	// The summary still reports the in-memory stages that completed.
	require.NotNil(t, summary)
	assert.Equal(t, 1, summary.Loaded)
	assert.Equal(t, 1, summary.Groups)
}

func TestProcessorRun_SummaryAggregates(t *testing.T) {
	store := &memStorage{listings: []model.RawListing{
		{ID: 1, Source: model.SourceGooglePlaces, Name: "Sunny Acres RV Park", ZipCode: "46201",
			Address: "123 Oak St", Latitude: f64(39.77), Longitude: f64(-86.15), Phone: "p"},
		{ID: 2, Source: model.SourceOSM, Name: "Sunny Acres Campground", ZipCode: "46201",
			Latitude: f64(39.7701), Longitude: f64(-86.1501)},
		{ID: 3, Source: model.SourceManual, Name: "Hidden Park"},
	}}
	p := NewProcessor(store, DefaultProcessorConfig())

	summary, err := p.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 3, summary.Loaded)
	assert.Equal(t, 2, summary.Groups)
	assert.Equal(t, 2, summary.MastersWritten)
	assert.Equal(t, 1, summary.NeedsReview)
	assert.InDelta(t, 1.0/3.0, summary.DedupRate, 1e-9)
	assert.Greater(t, summary.AvgConfidence, 0.0)
	assert.LessOrEqual(t, summary.AvgConfidence, 1.0)
}
