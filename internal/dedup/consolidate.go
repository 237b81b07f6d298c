package dedup

import (
	"sort"

	"github.com/google/uuid"

	"github.com/sells-group/parkscout/internal/model"
)

// defaultBusinessStatus is assumed when no source reports a status.
const defaultBusinessStatus = "OPERATIONAL"

// Builder consolidates a duplicate group into one master record,
// arbitrating conflicting field values by source priority and computing
// confidence scores.
type Builder struct{}

// NewBuilder creates a master record builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// Consolidate merges a non-empty group of duplicate listings into a
// single master record keyed by a freshly generated UUID. The caller is
// responsible for grouping; this never splits or drops members.
func (b *Builder) Consolidate(group []model.RawListing) model.MasterRecord {
	// Arbitration order: highest source rank first, input order on ties.
	members := make([]model.RawListing, len(group))
	copy(members, group)
	sort.SliceStable(members, func(i, j int) bool {
		return members[i].Source.Rank() > members[j].Source.Rank()
	})

	master := model.MasterRecord{
		MasterID:         uuid.NewString(),
		Name:             selectBestValue(members, func(r model.RawListing) string { return r.Name }),
		ParkType:         selectBestValue(members, func(r model.RawListing) string { return r.ParkType }),
		Address:          selectBestValue(members, func(r model.RawListing) string { return r.Address }),
		City:             selectBestValue(members, func(r model.RawListing) string { return r.City }),
		State:            selectBestValue(members, func(r model.RawListing) string { return r.State }),
		ZipCode:          selectBestValue(members, func(r model.RawListing) string { return r.ZipCode }),
		County:           selectBestValue(members, func(r model.RawListing) string { return r.County }),
		Email:            selectBestValue(members, func(r model.RawListing) string { return r.Email }),
		Phone:            selectPreferringGoogle(members, func(r model.RawListing) string { return r.Phone }),
		Website:          selectPreferringGoogle(members, func(r model.RawListing) string { return r.Website }),
		AlternativeNames: distinctNames(members),
	}

	if status := selectBestValue(members, func(r model.RawListing) string { return r.BusinessStatus }); status != "" {
		master.BusinessStatus = status
	} else {
		master.BusinessStatus = defaultBusinessStatus
	}

	consolidateCoordinates(&master, members)
	consolidateReviews(&master, members)

	for _, m := range members {
		if m.ExternalID != "" {
			master.SourceRefs = append(master.SourceRefs, model.SourceRef{
				Source:     m.Source,
				ExternalID: m.ExternalID,
			})
		}
	}

	scoreConfidence(&master, members)

	// Hard business rule: incomplete essentials always go to review.
	master.NeedsManualReview = master.Latitude == nil ||
		master.Address == "" ||
		master.ConfidenceScore < 0.5

	return master
}

// selectBestValue returns the first non-empty value scanning members in
// priority order.
func selectBestValue(members []model.RawListing, get func(model.RawListing) string) string {
	for _, m := range members {
		if v := get(m); v != "" {
			return v
		}
	}
	return ""
}

// selectPreferringGoogle scans google_places members first, then falls
// back to the generic priority-ordered scan. Phone and website quality
// is materially better on the maps provider.
func selectPreferringGoogle(members []model.RawListing, get func(model.RawListing) string) string {
	for _, m := range members {
		if m.Source == model.SourceGooglePlaces {
			if v := get(m); v != "" {
				return v
			}
		}
	}
	return selectBestValue(members, get)
}

// distinctNames returns all distinct non-empty names in priority order.
func distinctNames(members []model.RawListing) []string {
	seen := make(map[string]bool, len(members))
	var names []string
	for _, m := range members {
		if m.Name == "" || seen[m.Name] {
			continue
		}
		seen[m.Name] = true
		names = append(names, m.Name)
	}
	return names
}

// consolidateCoordinates averages coordinates over members that have
// them and derives the location confidence from coverage.
func consolidateCoordinates(master *model.MasterRecord, members []model.RawListing) {
	var latSum, lonSum float64
	var n int
	for _, m := range members {
		if m.HasCoordinates() {
			latSum += *m.Latitude
			lonSum += *m.Longitude
			n++
		}
	}
	if n == 0 {
		return
	}
	lat := latSum / float64(n)
	lon := lonSum / float64(n)
	master.Latitude = &lat
	master.Longitude = &lon

	confidence := float64(n) / float64(len(members))
	if confidence > 1 {
		confidence = 1
	}
	master.LocationConfidence = confidence
}

// consolidateReviews averages non-null ratings and sums review counts.
// Counts are summed across sources without deduplication; the sources
// are distinct platforms, so a review is assumed to appear only once.
func consolidateReviews(master *model.MasterRecord, members []model.RawListing) {
	var ratingSum float64
	var rated int
	for _, m := range members {
		if m.Rating != nil {
			ratingSum += *m.Rating
			rated++
		}
	}
	if rated == 0 {
		return
	}
	avg := ratingSum / float64(rated)
	master.AvgRating = &avg

	for _, m := range members {
		master.TotalReviews += m.TotalReviews
	}
}

// scoreConfidence computes the overall confidence from source diversity,
// coordinate presence, and contact presence. Three distinct sources are
// the practical ceiling; more do not raise the score.
func scoreConfidence(master *model.MasterRecord, members []model.RawListing) {
	sources := make(map[model.Source]bool, len(members))
	for _, m := range members {
		sources[m.Source] = true
	}
	numSources := len(sources)

	hasCoords := 0.0
	if master.Latitude != nil {
		hasCoords = 1.0
	}
	hasContact := 0.0
	if master.HasContact() {
		hasContact = 0.5
	}

	score := (float64(numSources)/3)*0.4 + hasCoords*0.4 + hasContact*0.2
	if score > 1 {
		score = 1
	}
	master.ConfidenceScore = score

	master.QualityFlags = model.QualityFlags{
		NumSources:     numSources,
		HasCoordinates: master.Latitude != nil,
		HasContactInfo: master.HasContact(),
		HasReviews:     master.TotalReviews > 0,
	}
}
