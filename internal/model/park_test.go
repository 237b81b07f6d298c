package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func f64(v float64) *float64 { return &v }

func TestSourceRank_Ordering(t *testing.T) {
	assert.Greater(t, SourceGooglePlaces.Rank(), SourceOSM.Rank())
	assert.Greater(t, SourceOSM.Rank(), SourceYelp.Rank())
	assert.Greater(t, SourceYelp.Rank(), SourceManual.Rank())
}

func TestSourceRank_UnknownIsZero(t *testing.T) {
	assert.Equal(t, 0, Source("craigslist").Rank())
	assert.Equal(t, SourceManual.Rank(), Source("craigslist").Rank())
}

func TestRawListing_HasCoordinates(t *testing.T) {
	tests := []struct {
		name string
		lat  *float64
		lon  *float64
		want bool
	}{
		{"both present", f64(39.77), f64(-86.15), true},
		{"missing lat", nil, f64(-86.15), false},
		{"missing lon", f64(39.77), nil, false},
		{"both missing", nil, nil, false},
		{"lat out of range", f64(91.0), f64(-86.15), false},
		{"lon out of range", f64(39.77), f64(181.0), false},
		{"boundary lat", f64(90.0), f64(-180.0), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := RawListing{Latitude: tt.lat, Longitude: tt.lon}
			assert.Equal(t, tt.want, r.HasCoordinates())
		})
	}
}

func TestRawListing_Validate(t *testing.T) {
	r := RawListing{Source: SourceOSM, Latitude: f64(39.77), Longitude: f64(-86.15)}
	require.NoError(t, r.Validate())

	r.Latitude = f64(-95)
	require.Error(t, r.Validate())

	r = RawListing{Source: SourceOSM, Longitude: f64(200)}
	require.Error(t, r.Validate())

	r = RawListing{}
	require.Error(t, r.Validate())
}

func TestMasterRecord_HasContact(t *testing.T) {
	assert.False(t, (&MasterRecord{}).HasContact())
	assert.True(t, (&MasterRecord{Phone: "555-0101"}).HasContact())
	assert.True(t, (&MasterRecord{Website: "https://example.com"}).HasContact())
}
