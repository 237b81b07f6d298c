package dedup

import (
	"fmt"

	"github.com/sells-group/parkscout/internal/model"
)

// Blocker partitions listings into candidate blocks so duplicate
// detection never compares across the whole dataset. Blocking is purely
// a cost bound: comparisons only happen within a block.
type Blocker struct {
	proximityMeters float64
}

// NewBlocker creates a blocker with the given geo-cluster radius.
func NewBlocker(proximityMeters float64) *Blocker {
	return &Blocker{proximityMeters: proximityMeters}
}

// Block assigns every listing index to exactly one block:
//
//   - zip_<code> for listings sharing a postal code
//   - geo_cluster_<seed> for zipless listings within the proximity
//     radius of an unclustered seed (greedy single pass: a listing
//     joins the first seed it matches and is never re-evaluated)
//   - no_geo_<index> singletons for listings with neither
//
// The union of all blocks is the full input index set, each index once.
func (b *Blocker) Block(listings []model.RawListing) map[string][]int {
	blocks := make(map[string][]int)

	clustered := make(map[int]bool, len(listings))

	for i := range listings {
		if zip := listings[i].ZipCode; zip != "" {
			key := "zip_" + zip
			blocks[key] = append(blocks[key], i)
			clustered[i] = true
		}
	}

	// Greedy proximity clustering over the zipless remainder. Seeds are
	// visited in load order, so membership is deterministic for a fixed
	// input ordering.
	for i := range listings {
		if clustered[i] {
			continue
		}
		if !listings[i].HasCoordinates() {
			blocks[fmt.Sprintf("no_geo_%d", i)] = []int{i}
			clustered[i] = true
			continue
		}

		members := []int{i}
		clustered[i] = true

		for j := range listings {
			if clustered[j] || !listings[j].HasCoordinates() {
				continue
			}
			dist := HaversineMeters(
				*listings[i].Latitude, *listings[i].Longitude,
				*listings[j].Latitude, *listings[j].Longitude,
			)
			if dist <= b.proximityMeters {
				members = append(members, j)
				clustered[j] = true
			}
		}

		blocks[fmt.Sprintf("geo_cluster_%d", i)] = members
	}

	return blocks
}
