package places

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNearbySearch_ParsesResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/nearbysearch/json")
		q := r.URL.Query()
		assert.Equal(t, "test-key", q.Get("key"))
		assert.Equal(t, "rv park", q.Get("keyword"))
		assert.Equal(t, "30000", q.Get("radius"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"status": "OK",
			"results": [
				{
					"place_id": "ChIJabc123",
					"name": "Lakeside RV Resort",
					"types": ["rv_park", "lodging"],
					"business_status": "OPERATIONAL",
					"vicinity": "123 Lake Rd, Indianapolis",
					"rating": 4.3,
					"user_ratings_total": 87,
					"geometry": {"location": {"lat": 39.77, "lng": -86.15}}
				}
			]
		}`))
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL), WithRateLimit(1000))
	results, err := client.NearbySearch(context.Background(), 39.77, -86.15, 30000, "rv park")
	require.NoError(t, err)
	require.Len(t, results, 1)

	assert.Equal(t, "ChIJabc123", results[0].PlaceID)
	assert.Equal(t, "Lakeside RV Resort", results[0].Name)
	assert.Equal(t, "OPERATIONAL", results[0].BusinessStatus)
	require.NotNil(t, results[0].Rating)
	assert.InDelta(t, 4.3, *results[0].Rating, 0.001)
	assert.Equal(t, 87, results[0].UserRatings)
	assert.InDelta(t, 39.77, results[0].Geometry.Location.Lat, 0.001)
}

func TestNearbySearch_ClampsRadius(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "50000", r.URL.Query().Get("radius"))
		_, _ = w.Write([]byte(`{"status": "ZERO_RESULTS", "results": []}`))
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL), WithRateLimit(1000))
	results, err := client.NearbySearch(context.Background(), 39.77, -86.15, 80000, "campground")
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestNearbySearch_StatusErrors(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{
			name:    "over query limit",
			body:    `{"status": "OVER_QUERY_LIMIT"}`,
			wantErr: "over query limit",
		},
		{
			name:    "request denied",
			body:    `{"status": "REQUEST_DENIED", "error_message": "API key invalid"}`,
			wantErr: "request denied",
		},
		{
			name:    "unknown status",
			body:    `{"status": "INVALID_REQUEST"}`,
			wantErr: "unexpected status",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			client := NewClient("test-key", WithBaseURL(srv.URL), WithRateLimit(1000))
			_, err := client.NearbySearch(context.Background(), 39.77, -86.15, 1000, "rv park")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestPlaceDetails_ParsesResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/details/json")
		q := r.URL.Query()
		assert.Equal(t, "ChIJabc123", q.Get("place_id"))
		assert.Contains(t, q.Get("fields"), "address_components")

		_, _ = w.Write([]byte(`{
			"status": "OK",
			"result": {
				"place_id": "ChIJabc123",
				"name": "Lakeside RV Resort",
				"business_status": "OPERATIONAL",
				"formatted_address": "123 Lake Rd, Indianapolis, IN 46201, USA",
				"address_components": [
					{"long_name": "Indianapolis", "short_name": "Indianapolis", "types": ["locality", "political"]},
					{"long_name": "Marion County", "short_name": "Marion County", "types": ["administrative_area_level_2", "political"]},
					{"long_name": "Indiana", "short_name": "IN", "types": ["administrative_area_level_1", "political"]},
					{"long_name": "46201", "short_name": "46201", "types": ["postal_code"]}
				],
				"geometry": {"location": {"lat": 39.77, "lng": -86.15}},
				"formatted_phone_number": "(317) 555-0123",
				"website": "https://lakesiderv.example.com",
				"rating": 4.3,
				"user_ratings_total": 87
			}
		}`))
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL), WithRateLimit(1000))
	details, err := client.PlaceDetails(context.Background(), "ChIJabc123")
	require.NoError(t, err)

	assert.Equal(t, "Lakeside RV Resort", details.Name)
	assert.Equal(t, "(317) 555-0123", details.Phone)
	assert.Equal(t, "Indianapolis", details.Component("locality"))
	assert.Equal(t, "Marion County", details.Component("administrative_area_level_2"))
	assert.Equal(t, "Indiana", details.Component("administrative_area_level_1"))
	assert.Equal(t, "46201", details.Component("postal_code"))
	assert.Equal(t, "", details.Component("route"))
}

func TestPlaceDetails_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL), WithRateLimit(1000))
	_, err := client.PlaceDetails(context.Background(), "ChIJabc123")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")
}

func TestDailyQuota(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status": "ZERO_RESULTS", "results": []}`))
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL), WithRateLimit(1000), WithDailyQuota(2))
	ctx := context.Background()

	_, err := client.NearbySearch(ctx, 39.77, -86.15, 1000, "rv park")
	require.NoError(t, err)
	_, err = client.NearbySearch(ctx, 39.77, -86.15, 1000, "rv park")
	require.NoError(t, err)
	assert.Equal(t, 2, client.RequestsToday())

	_, err = client.NearbySearch(ctx, 39.77, -86.15, 1000, "rv park")
	require.ErrorIs(t, err, ErrQuotaExhausted)
}
