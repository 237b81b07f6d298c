package overpass

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuery_ParsesElements(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		gotQuery = r.Form.Get("data")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"elements": [
				{"type": "node", "id": 42, "lat": 39.77, "lon": -86.15,
				 "tags": {"tourism": "caravan_site", "name": "Sunny Acres"}},
				{"type": "way", "id": 7, "center": {"lat": 40.1, "lon": -85.9},
				 "tags": {"tourism": "camp_site"}}
			]
		}`))
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL), WithRateLimit(6000))
	elements, err := c.Query(context.Background(), "[out:json];node(1);out;")
	require.NoError(t, err)
	assert.Equal(t, "[out:json];node(1);out;", gotQuery)

	require.Len(t, elements, 2)
	assert.Equal(t, "osm_node_42", elements[0].ExternalID())
	assert.Equal(t, "Sunny Acres", elements[0].Tags["name"])

	lat, lon, ok := elements[0].Coordinates()
	assert.True(t, ok)
	assert.Equal(t, 39.77, lat)
	assert.Equal(t, -86.15, lon)

	// Ways carry a computed center instead of lat/lon.
	lat, lon, ok = elements[1].Coordinates()
	assert.True(t, ok)
	assert.Equal(t, 40.1, lat)
	assert.Equal(t, -85.9, lon)
}

func TestQuery_NoCoordinates(t *testing.T) {
	e := Element{Type: "relation", ID: 9}
	_, _, ok := e.Coordinates()
	assert.False(t, ok)
}

func TestQuery_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL), WithRateLimit(6000))
	_, err := c.Query(context.Background(), "[out:json];")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 429")
}

func TestBuildParkQuery(t *testing.T) {
	q := BuildParkQuery(BBox{MinLat: 37.77, MinLon: -88.1, MaxLat: 41.76, MaxLon: -84.78})

	assert.Contains(t, q, "[out:json][timeout:90];")
	assert.Contains(t, q, `node["tourism"="caravan_site"](37.77,-88.1,41.76,-84.78);`)
	assert.Contains(t, q, `way["tourism"="camp_site"](37.77,-88.1,41.76,-84.78);`)
	assert.Contains(t, q, `relation["landuse"="residential"]["residential"="trailer_park"]`)
	assert.Contains(t, q, `["name"~"mobile home|trailer park|rv park|rv resort",i]`)
	assert.True(t, strings.HasSuffix(q, "out center tags;"))
}

func TestQueryParks_UsesGeneratedQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Contains(t, r.Form.Get("data"), `"tourism"="caravan_site"`)
		w.Write([]byte(`{"elements": []}`))
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL), WithRateLimit(6000))
	elements, err := c.QueryParks(context.Background(), BBox{MinLat: 1, MinLon: 2, MaxLat: 3, MaxLon: 4})
	require.NoError(t, err)
	assert.Empty(t, elements)
}
