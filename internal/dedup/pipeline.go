package dedup

import (
	"context"
	"sort"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/parkscout/internal/model"
)

// Storage is the persistence collaborator for the processor. It is
// injected at construction; the processor owns no connection state.
type Storage interface {
	// LoadUnprocessedRawListings returns all rows with processed=false,
	// ordered by identifier.
	LoadUnprocessedRawListings(ctx context.Context) ([]model.RawListing, error)

	// ConsolidationBatch runs fn against a transactional writer. The
	// master upserts and the processed-flag update issued through the
	// writer commit together or not at all.
	ConsolidationBatch(ctx context.Context, fn func(BatchWriter) error) error
}

// BatchWriter is the transactional write surface handed to a
// consolidation batch.
type BatchWriter interface {
	// UpsertMasterRecord inserts the master or, on master_id conflict,
	// only bumps its updated_at timestamp. A failure aborts this record
	// only, not the surrounding batch.
	UpsertMasterRecord(ctx context.Context, m model.MasterRecord) error

	// MarkRawListingsProcessed sets processed=true for the given ids.
	MarkRawListingsProcessed(ctx context.Context, ids []int64) error
}

// ProcessorConfig carries the tunable pipeline parameters.
type ProcessorConfig struct {
	ProximityMeters float64
	Detector        DetectorConfig
}

// DefaultProcessorConfig returns the production pipeline parameters.
func DefaultProcessorConfig() ProcessorConfig {
	return ProcessorConfig{
		ProximityMeters: 500,
		Detector:        DefaultDetectorConfig(),
	}
}

// RunSummary reports what one pipeline run did.
type RunSummary struct {
	Loaded         int     `json:"loaded"`
	Blocks         int     `json:"blocks"`
	Groups         int     `json:"groups"`
	MastersWritten int     `json:"masters_written"`
	WriteErrors    int     `json:"write_errors"`
	NeedsReview    int     `json:"needs_review"`
	AvgConfidence  float64 `json:"avg_confidence"`
	DedupRate      float64 `json:"dedup_rate"`
}

// Processor drives the full consolidation pipeline: load, normalize,
// block, detect, consolidate, persist. It is a synchronous batch job;
// one invocation owns its working set and shares nothing across runs.
type Processor struct {
	store      Storage
	normalizer *AddressNormalizer
	blocker    *Blocker
	detector   *Detector
	builder    *Builder
	log        *zap.Logger
}

// NewProcessor wires a processor against the given storage collaborator.
func NewProcessor(store Storage, cfg ProcessorConfig) *Processor {
	return &Processor{
		store:      store,
		normalizer: NewAddressNormalizer(),
		blocker:    NewBlocker(cfg.ProximityMeters),
		detector:   NewDetector(cfg.Detector),
		builder:    NewBuilder(),
		log:        zap.L().With(zap.String("component", "dedup.processor")),
	}
}

// Run executes one consolidation pass over all unprocessed raw listings.
// An empty input set is a no-op completion, not an error. Individual
// master write failures are counted and logged, never fatal; the
// processed-flag update and the surviving master writes commit in a
// single transaction.
func (p *Processor) Run(ctx context.Context) (*RunSummary, error) {
	listings, err := p.store.LoadUnprocessedRawListings(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "dedup: load unprocessed raw listings")
	}

	summary := &RunSummary{Loaded: len(listings)}
	if len(listings) == 0 {
		p.log.Info("no unprocessed raw listings, nothing to do")
		return summary, nil
	}
	p.log.Info("loaded raw listings", zap.Int("count", len(listings)))

	// Normalize addresses once up front; the normalized string is the
	// only address representation later stages see.
	candidates := make([]Candidate, len(listings))
	for i := range listings {
		norm := p.normalizer.Parse(listings[i].Address)
		normAddr := norm.FullNormalized
		if normAddr == "" {
			normAddr = listings[i].Address
		}
		candidates[i] = Candidate{Listing: listings[i], NormAddress: normAddr}
	}

	blocks := p.blocker.Block(listings)
	summary.Blocks = len(blocks)
	p.log.Info("built candidate blocks", zap.Int("blocks", len(blocks)))

	// Sorted block keys keep duplicate groups reproducible for a fixed
	// input ordering.
	keys := make([]string, 0, len(blocks))
	for k := range blocks {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var groups [][]int
	for _, key := range keys {
		groups = append(groups, p.detector.FindDuplicateGroups(candidates, blocks[key])...)
	}
	summary.Groups = len(groups)
	p.log.Info("detected duplicate groups", zap.Int("groups", len(groups)))

	// Consolidate fully in memory before any write so a storage failure
	// can never leave a half-built master.
	masters := make([]model.MasterRecord, 0, len(groups))
	var confidenceSum float64
	for _, group := range groups {
		members := make([]model.RawListing, 0, len(group))
		for _, idx := range group {
			members = append(members, listings[idx])
		}
		master := p.builder.Consolidate(members)
		masters = append(masters, master)
		confidenceSum += master.ConfidenceScore
		if master.NeedsManualReview {
			summary.NeedsReview++
		}
	}
	if len(masters) > 0 {
		summary.AvgConfidence = confidenceSum / float64(len(masters))
	}

	ids := make([]int64, len(listings))
	for i := range listings {
		ids[i] = listings[i].ID
	}

	err = p.store.ConsolidationBatch(ctx, func(w BatchWriter) error {
		for i := range masters {
			if werr := w.UpsertMasterRecord(ctx, masters[i]); werr != nil {
				summary.WriteErrors++
				p.log.Error("master record write failed",
					zap.String("master_id", masters[i].MasterID),
					zap.String("name", masters[i].Name),
					zap.Error(werr),
				)
				continue
			}
			summary.MastersWritten++
		}
		return w.MarkRawListingsProcessed(ctx, ids)
	})
	if err != nil {
		return summary, eris.Wrap(err, "dedup: consolidation batch")
	}

	summary.DedupRate = 1 - float64(summary.MastersWritten)/float64(summary.Loaded)

	p.log.Info("consolidation run complete",
		zap.Int("loaded", summary.Loaded),
		zap.Int("blocks", summary.Blocks),
		zap.Int("groups", summary.Groups),
		zap.Int("masters_written", summary.MastersWritten),
		zap.Int("write_errors", summary.WriteErrors),
		zap.Int("needs_review", summary.NeedsReview),
		zap.Float64("avg_confidence", summary.AvgConfidence),
		zap.Float64("dedup_rate", summary.DedupRate),
	)

	return summary, nil
}
