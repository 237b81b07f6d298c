package dedup

import (
	fuzzy "github.com/paul-mannino/go-fuzzywuzzy"

	"github.com/sells-group/parkscout/internal/model"
)

// DetectorConfig holds the duplicate decision thresholds. All values are
// plain parameters; nothing here reads the environment.
type DetectorConfig struct {
	// NameThreshold is the minimum token-sort name similarity (0-100)
	// for a pair to be considered at all. Inclusive: exactly at the
	// threshold passes.
	NameThreshold float64
	// DistanceThresholdMeters is the maximum great-circle distance for
	// two coordinate-bearing listings to be the same park. Exclusive on
	// the far side: exactly at the threshold still matches.
	DistanceThresholdMeters float64
	// AddressThreshold is the minimum character-level similarity (0-100,
	// strict) between normalized addresses on the no-coordinates path.
	AddressThreshold float64
	// NearExactNameThreshold is the name similarity at which a pair is
	// accepted with no geographic or address confirmation.
	NearExactNameThreshold float64
}

// DefaultDetectorConfig returns the production thresholds.
func DefaultDetectorConfig() DetectorConfig {
	return DetectorConfig{
		NameThreshold:           85,
		DistanceThresholdMeters: 500,
		AddressThreshold:        80,
		NearExactNameThreshold:  95,
	}
}

// Candidate pairs a raw listing with its normalized address for
// comparison. The pipeline builds one candidate per loaded listing.
type Candidate struct {
	Listing     model.RawListing
	NormAddress string
}

// Detector decides whether two listings describe the same physical park.
type Detector struct {
	cfg DetectorConfig
}

// NewDetector creates a detector with the given thresholds.
func NewDetector(cfg DetectorConfig) *Detector {
	return &Detector{cfg: cfg}
}

// AreDuplicates compares two candidates and returns the decision with a
// confidence in [0,1]. The comparison is symmetric: swapping a and b
// yields the same result.
//
// Decision ladder:
//  1. Name similarity below NameThreshold: not a duplicate.
//  2. Both sides have coordinates: too far means not a duplicate; close
//     enough blends name similarity with a linear distance decay.
//  3. Coordinates missing on either side: normalized addresses above
//     AddressThreshold confirm the match.
//  4. A near-exact name alone is sufficient.
func (d *Detector) AreDuplicates(a, b Candidate) (bool, float64) {
	name1 := NormalizeName(a.Listing.Name)
	name2 := NormalizeName(b.Listing.Name)
	if name1 == "" || name2 == "" {
		return false, 0
	}

	nameSim := float64(fuzzy.TokenSortRatio(name1, name2))
	if nameSim < d.cfg.NameThreshold {
		return false, 0
	}

	if a.Listing.HasCoordinates() && b.Listing.HasCoordinates() {
		dist := HaversineMeters(
			*a.Listing.Latitude, *a.Listing.Longitude,
			*b.Listing.Latitude, *b.Listing.Longitude,
		)
		if dist > d.cfg.DistanceThresholdMeters {
			return false, 0
		}
		distScore := 100 - (dist/d.cfg.DistanceThresholdMeters)*100
		if distScore < 0 {
			distScore = 0
		}
		confidence := (nameSim*0.7 + distScore*0.3) / 100
		return true, confidence
	}

	if a.NormAddress != "" && b.NormAddress != "" {
		addrSim := float64(fuzzy.Ratio(a.NormAddress, b.NormAddress))
		if addrSim > d.cfg.AddressThreshold {
			confidence := (nameSim*0.6 + addrSim*0.4) / 100
			return true, confidence
		}
	}

	if nameSim >= d.cfg.NearExactNameThreshold {
		return true, nameSim / 100
	}

	return false, 0
}

// FindDuplicateGroups partitions a block's indices into duplicate groups.
// Grouping is greedy and single-pass: each unvisited candidate seeds a
// group and absorbs every later positive match, so clusters are
// star-shaped around the seed and the outcome depends on visit order.
// This bounds the work per block and mirrors the pairwise relation, not
// its transitive closure. Every index lands in exactly one group.
func (d *Detector) FindDuplicateGroups(candidates []Candidate, blockIndices []int) [][]int {
	if len(blockIndices) <= 1 {
		groups := make([][]int, 0, len(blockIndices))
		for _, idx := range blockIndices {
			groups = append(groups, []int{idx})
		}
		return groups
	}

	var groups [][]int
	processed := make(map[int]bool, len(blockIndices))

	for _, idx := range blockIndices {
		if processed[idx] {
			continue
		}
		group := []int{idx}
		processed[idx] = true

		for _, otherIdx := range blockIndices {
			if processed[otherIdx] {
				continue
			}
			if dup, _ := d.AreDuplicates(candidates[idx], candidates[otherIdx]); dup {
				group = append(group, otherIdx)
				processed[otherIdx] = true
			}
		}
		groups = append(groups, group)
	}

	return groups
}
