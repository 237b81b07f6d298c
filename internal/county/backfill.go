package county

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/parkscout/internal/db"
)

// Master rows carry a stored geography point; raw rows do not, so
// their point is built from the coordinate columns.
const backfillMasterSQL = `
UPDATE parks_master pm
SET county = c.name, updated_at = now()
FROM geo.counties c
WHERE pm.county = ''
  AND pm.geom IS NOT NULL
  AND ST_Contains(c.boundary, pm.geom::geometry)`

const backfillRawSQL = `
UPDATE parks_raw pr
SET county = c.name
FROM geo.counties c
WHERE pr.county = ''
  AND pr.latitude IS NOT NULL
  AND pr.longitude IS NOT NULL
  AND ST_Contains(c.boundary, ST_SetSRID(ST_MakePoint(pr.longitude, pr.latitude), 4326))`

// BackfillResult reports how many rows gained a county.
type BackfillResult struct {
	MasterUpdated int64
	RawUpdated    int64
}

// Backfill fills the county column on master and raw rows that have
// coordinates but no county, using point-in-polygon containment against
// the loaded boundaries.
func Backfill(ctx context.Context, pool db.Pool) (*BackfillResult, error) {
	log := zap.L().With(zap.String("component", "county.backfill"))

	masterTag, err := pool.Exec(ctx, backfillMasterSQL)
	if err != nil {
		return nil, eris.Wrap(err, "county: backfill parks_master")
	}

	rawTag, err := pool.Exec(ctx, backfillRawSQL)
	if err != nil {
		return nil, eris.Wrap(err, "county: backfill parks_raw")
	}

	res := &BackfillResult{
		MasterUpdated: masterTag.RowsAffected(),
		RawUpdated:    rawTag.RowsAffected(),
	}
	log.Info("county backfill complete",
		zap.Int64("master_updated", res.MasterUpdated),
		zap.Int64("raw_updated", res.RawUpdated),
	)
	return res, nil
}
