package dedup

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/parkscout/internal/model"
)

func TestConsolidate_SpecExamplePair(t *testing.T) {
	group := []model.RawListing{
		{
			ID: 2, ExternalID: "osm_node_42", Source: model.SourceOSM,
			Name: "Sunny Acres RV Resort", ZipCode: "46201",
			Latitude: f64(39.7703), Longitude: f64(-86.1498),
		},
		{
			ID: 1, ExternalID: "gp_abc", Source: model.SourceGooglePlaces,
			Name: "Sunny Acres RV Park", ParkType: model.ParkTypeRVPark,
			Address: "123 Oak St", City: "Indianapolis", State: "IN", ZipCode: "46201",
			Latitude: f64(39.77), Longitude: f64(-86.15),
			Phone: "317-555-0101", Website: "https://sunnyacres.example",
		},
	}

	master := NewBuilder().Consolidate(group)

	require.NotEmpty(t, master.MasterID)
	// Maps provider outranks OSM for every arbitrated field.
	assert.Equal(t, "Sunny Acres RV Park", master.Name)
	assert.Equal(t, "123 Oak St", master.Address)
	assert.Equal(t, "317-555-0101", master.Phone)
	assert.ElementsMatch(t,
		[]string{"Sunny Acres RV Park", "Sunny Acres RV Resort"},
		master.AlternativeNames,
	)
	// Coordinates are averaged, not taken from the best source.
	require.NotNil(t, master.Latitude)
	assert.InDelta(t, (39.77+39.7703)/2, *master.Latitude, 1e-9)
	assert.InDelta(t, (-86.15-86.1498)/2, *master.Longitude, 1e-9)
	assert.Equal(t, 1.0, master.LocationConfidence)
	assert.Len(t, master.SourceRefs, 2)
	assert.False(t, master.NeedsManualReview)
}

func TestConsolidate_SourcePriorityOrder(t *testing.T) {
	group := []model.RawListing{
		{Source: model.SourceManual, Name: "Manual Name", City: "Manual City"},
		{Source: model.SourceYelp, Name: "Yelp Name"},
		{Source: model.SourceOSM, Name: "OSM Name"},
	}

	master := NewBuilder().Consolidate(group)

	assert.Equal(t, "OSM Name", master.Name)
	// City is only present on the lowest-priority source; first non-empty wins.
	assert.Equal(t, "Manual City", master.City)
}

func TestConsolidate_PhonePrefersGooglePlaces(t *testing.T) {
	group := []model.RawListing{
		{Source: model.SourceOSM, Name: "Park", Phone: "osm-phone", Website: "osm-site"},
		{Source: model.SourceGooglePlaces, Name: "Park", Phone: "gp-phone"},
	}

	master := NewBuilder().Consolidate(group)

	assert.Equal(t, "gp-phone", master.Phone)
	// Google has no website; generic priority scan falls through to OSM.
	assert.Equal(t, "osm-site", master.Website)
}

func TestConsolidate_BusinessStatusDefault(t *testing.T) {
	master := NewBuilder().Consolidate([]model.RawListing{
		{Source: model.SourceOSM, Name: "Park"},
	})
	assert.Equal(t, "OPERATIONAL", master.BusinessStatus)

	master = NewBuilder().Consolidate([]model.RawListing{
		{Source: model.SourceGooglePlaces, Name: "Park", BusinessStatus: "CLOSED_TEMPORARILY"},
	})
	assert.Equal(t, "CLOSED_TEMPORARILY", master.BusinessStatus)
}

func TestConsolidate_LocationConfidencePartialCoverage(t *testing.T) {
	group := []model.RawListing{
		{Source: model.SourceGooglePlaces, Name: "Park", Latitude: f64(39.0), Longitude: f64(-86.0)},
		{Source: model.SourceOSM, Name: "Park"},
		{Source: model.SourceYelp, Name: "Park"},
		{Source: model.SourceManual, Name: "Park"},
	}

	master := NewBuilder().Consolidate(group)

	assert.InDelta(t, 0.25, master.LocationConfidence, 1e-9)
	require.NotNil(t, master.Latitude)
	assert.Equal(t, 39.0, *master.Latitude)
}

func TestConsolidate_RatingsAndReviews(t *testing.T) {
	group := []model.RawListing{
		{Source: model.SourceGooglePlaces, Name: "Park", Rating: f64(4.0), TotalReviews: 10},
		{Source: model.SourceYelp, Name: "Park", Rating: f64(3.0), TotalReviews: 5},
		{Source: model.SourceOSM, Name: "Park"},
	}

	master := NewBuilder().Consolidate(group)

	require.NotNil(t, master.AvgRating)
	assert.InDelta(t, 3.5, *master.AvgRating, 1e-9)
	// Review counts sum across all members, not only rated ones.
	assert.Equal(t, 15, master.TotalReviews)
}

func TestConsolidate_NoRatingsLeavesReviewsZero(t *testing.T) {
	group := []model.RawListing{
		{Source: model.SourceOSM, Name: "Park", TotalReviews: 7},
	}

	master := NewBuilder().Consolidate(group)

	assert.Nil(t, master.AvgRating)
	assert.Zero(t, master.TotalReviews)
	assert.False(t, master.QualityFlags.HasReviews)
}

func TestConsolidate_ConfidenceBounds(t *testing.T) {
	groups := [][]model.RawListing{
		{{Source: model.SourceManual, Name: "Park"}},
		{
			{Source: model.SourceGooglePlaces, Name: "Park", Phone: "p", Latitude: f64(39), Longitude: f64(-86)},
			{Source: model.SourceOSM, Name: "Park"},
			{Source: model.SourceYelp, Name: "Park"},
			{Source: model.SourceManual, Name: "Park"},
		},
	}
	for _, g := range groups {
		master := NewBuilder().Consolidate(g)
		assert.GreaterOrEqual(t, master.ConfidenceScore, 0.0)
		assert.LessOrEqual(t, master.ConfidenceScore, 1.0)
		assert.GreaterOrEqual(t, master.LocationConfidence, 0.0)
		assert.LessOrEqual(t, master.LocationConfidence, 1.0)
	}
}

func TestConsolidate_ConfidenceFormula(t *testing.T) {
	three := []model.RawListing{
		{Source: model.SourceGooglePlaces, Name: "Park", Phone: "p", Latitude: f64(39), Longitude: f64(-86)},
		{Source: model.SourceOSM, Name: "Park"},
		{Source: model.SourceYelp, Name: "Park"},
	}
	four := append(append([]model.RawListing{}, three...),
		model.RawListing{Source: model.SourceManual, Name: "Park"})

	// 3 sources + coords + contact: 0.4 + 0.4 + 0.1.
	scoreThree := NewBuilder().Consolidate(three).ConfidenceScore
	assert.InDelta(t, 0.9, scoreThree, 1e-9)

	// A fourth source pushes the raw score past 1; it is capped.
	scoreFour := NewBuilder().Consolidate(four).ConfidenceScore
	assert.Equal(t, 1.0, scoreFour)
}

func TestConsolidate_NeedsManualReviewRule(t *testing.T) {
	tests := []struct {
		name  string
		group []model.RawListing
		want  bool
	}{
		{
			"missing coordinates",
			[]model.RawListing{{
				Source: model.SourceGooglePlaces, Name: "Park", Address: "123 Oak St",
				Phone: "p", Website: "w",
			}},
			true,
		},
		{
			"missing address",
			[]model.RawListing{{
				Source: model.SourceGooglePlaces, Name: "Park",
				Latitude: f64(39), Longitude: f64(-86), Phone: "p",
			}},
			true,
		},
		{
			"complete multi-source record",
			[]model.RawListing{
				{Source: model.SourceGooglePlaces, Name: "Park", Address: "123 Oak St",
					Latitude: f64(39), Longitude: f64(-86), Phone: "p"},
				{Source: model.SourceOSM, Name: "Park"},
			},
			false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			master := NewBuilder().Consolidate(tt.group)
			assert.Equal(t, tt.want, master.NeedsManualReview)

			// The flag must match the rule exactly.
			rule := master.Latitude == nil || master.Address == "" || master.ConfidenceScore < 0.5
			assert.Equal(t, rule, master.NeedsManualReview)
		})
	}
}

func TestConsolidate_ZiplessCoordlessSingleton(t *testing.T) {
	// Spec scenario: a record with no zip and no coordinates still gets
	// its own master, flagged for review.
	master := NewBuilder().Consolidate([]model.RawListing{
		{Source: model.SourceManual, Name: "Hidden Park", Address: "123 Oak St"},
	})

	require.NotEmpty(t, master.MasterID)
	assert.Nil(t, master.Latitude)
	assert.True(t, master.NeedsManualReview)
}

func TestConsolidate_ProvenanceSkipsEmptyExternalIDs(t *testing.T) {
	group := []model.RawListing{
		{Source: model.SourceGooglePlaces, ExternalID: "gp_1", Name: "Park"},
		{Source: model.SourceManual, Name: "Park"},
	}

	master := NewBuilder().Consolidate(group)

	require.Len(t, master.SourceRefs, 1)
	assert.Equal(t, model.SourceGooglePlaces, master.SourceRefs[0].Source)
	assert.Equal(t, "gp_1", master.SourceRefs[0].ExternalID)
}

func TestConsolidate_FreshMasterIDPerCall(t *testing.T) {
	group := []model.RawListing{{Source: model.SourceOSM, Name: "Park"}}
	a := NewBuilder().Consolidate(group)
	b := NewBuilder().Consolidate(group)
	assert.NotEqual(t, a.MasterID, b.MasterID)
}
