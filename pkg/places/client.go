// Package places provides a rate-limited client for the Google Places
// API (nearby search and place details).
package places

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

const defaultBaseURL = "https://maps.googleapis.com/maps/api/place"

// maxSearchRadiusMeters is the API-imposed ceiling for nearby search.
const maxSearchRadiusMeters = 50000

// Result is one hit from a nearby search. It carries enough to decide
// whether the place is worth a details call.
type Result struct {
	PlaceID        string   `json:"place_id"`
	Name           string   `json:"name"`
	Types          []string `json:"types"`
	BusinessStatus string   `json:"business_status"`
	Vicinity       string   `json:"vicinity"`
	Rating         *float64 `json:"rating,omitempty"`
	UserRatings    int      `json:"user_ratings_total"`
	Geometry       Geometry `json:"geometry"`
}

// Details is the full record from a place details call.
type Details struct {
	PlaceID           string             `json:"place_id"`
	Name              string             `json:"name"`
	Types             []string           `json:"types"`
	BusinessStatus    string             `json:"business_status"`
	FormattedAddress  string             `json:"formatted_address"`
	AddressComponents []AddressComponent `json:"address_components"`
	Geometry          Geometry           `json:"geometry"`
	Phone             string             `json:"formatted_phone_number"`
	Website           string             `json:"website"`
	Rating            *float64           `json:"rating,omitempty"`
	UserRatings       int                `json:"user_ratings_total"`
}

// AddressComponent is one structured piece of a formatted address.
type AddressComponent struct {
	LongName  string   `json:"long_name"`
	ShortName string   `json:"short_name"`
	Types     []string `json:"types"`
}

// Geometry holds the place location.
type Geometry struct {
	Location LatLng `json:"location"`
}

// LatLng is a WGS84 coordinate pair.
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Component returns the long name of the first address component with
// the given type, or "".
func (d *Details) Component(componentType string) string {
	for _, c := range d.AddressComponents {
		for _, t := range c.Types {
			if t == componentType {
				if c.LongName != "" {
					return c.LongName
				}
				return c.ShortName
			}
		}
	}
	return ""
}

type searchResponse struct {
	Status       string   `json:"status"`
	ErrorMessage string   `json:"error_message"`
	Results      []Result `json:"results"`
	NextPage     string   `json:"next_page_token"`
}

type detailsResponse struct {
	Status       string  `json:"status"`
	ErrorMessage string  `json:"error_message"`
	Result       Details `json:"result"`
}

// ErrQuotaExhausted is returned once the configured daily request budget
// is spent. Callers should stop and resume the next day.
var ErrQuotaExhausted = eris.New("places: daily quota exhausted")

// Option configures the client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithBaseURL overrides the API endpoint. Empty means the default.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if baseURL != "" {
			c.baseURL = baseURL
		}
	}
}

// WithRateLimit sets the requests-per-second limit.
func WithRateLimit(rps float64) Option {
	return func(c *Client) {
		if rps > 0 {
			burst := int(rps)
			if burst < 1 {
				burst = 1
			}
			c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
		}
	}
}

// WithDailyQuota caps the number of requests per calendar day. Zero
// means unlimited.
func WithDailyQuota(n int) Option {
	return func(c *Client) {
		c.dailyQuota = n
	}
}

// Client calls the Google Places API.
type Client struct {
	key        string
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter

	mu         sync.Mutex
	dailyQuota int
	usedToday  int
	quotaDay   time.Time
}

// NewClient creates a Places client with the given API key and options.
func NewClient(key string, opts ...Option) *Client {
	c := &Client{
		key:        key,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    rate.NewLimiter(10, 10),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// checkQuota counts a request against the daily budget, resetting the
// counter at midnight UTC.
func (c *Client) checkQuota() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	today := time.Now().UTC().Truncate(24 * time.Hour)
	if today.After(c.quotaDay) {
		c.quotaDay = today
		c.usedToday = 0
	}
	if c.dailyQuota > 0 && c.usedToday >= c.dailyQuota {
		return ErrQuotaExhausted
	}
	c.usedToday++
	return nil
}

// RequestsToday reports how many requests were counted against today's
// quota.
func (c *Client) RequestsToday() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.usedToday
}

func (c *Client) get(ctx context.Context, endpoint string, params url.Values, out any) error {
	if err := c.checkQuota(); err != nil {
		return err
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return eris.Wrap(err, "places: rate limit")
	}

	params.Set("key", c.key)
	reqURL := fmt.Sprintf("%s/%s/json?%s", c.baseURL, endpoint, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return eris.Wrap(err, "places: build request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return eris.Wrapf(err, "places: %s request", endpoint)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return eris.Errorf("places: %s returned status %d", endpoint, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return eris.Wrap(err, "places: read body")
	}
	if err := json.Unmarshal(body, out); err != nil {
		return eris.Wrapf(err, "places: parse %s response", endpoint)
	}
	return nil
}

func checkStatus(endpoint, status, message string) error {
	switch status {
	case "OK", "ZERO_RESULTS":
		return nil
	case "OVER_QUERY_LIMIT":
		return eris.Errorf("places: %s over query limit", endpoint)
	case "REQUEST_DENIED":
		return eris.Errorf("places: %s request denied: %s", endpoint, message)
	default:
		return eris.Errorf("places: %s unexpected status %s", endpoint, status)
	}
}

// NearbySearch finds places around the given point matching the keyword.
// The radius is clamped to the API maximum of 50km.
func (c *Client) NearbySearch(ctx context.Context, lat, lon float64, radiusMeters int, keyword string) ([]Result, error) {
	if radiusMeters > maxSearchRadiusMeters {
		radiusMeters = maxSearchRadiusMeters
	}
	params := url.Values{
		"location": {fmt.Sprintf("%f,%f", lat, lon)},
		"radius":   {fmt.Sprintf("%d", radiusMeters)},
		"keyword":  {keyword},
	}

	var sr searchResponse
	if err := c.get(ctx, "nearbysearch", params, &sr); err != nil {
		return nil, err
	}
	if err := checkStatus("nearbysearch", sr.Status, sr.ErrorMessage); err != nil {
		return nil, err
	}
	return sr.Results, nil
}

// PlaceDetails fetches the full record for one place.
func (c *Client) PlaceDetails(ctx context.Context, placeID string) (*Details, error) {
	params := url.Values{
		"place_id": {placeID},
		"fields": {"place_id,name,types,business_status,formatted_address," +
			"address_components,geometry,formatted_phone_number,website," +
			"rating,user_ratings_total"},
	}

	var dr detailsResponse
	if err := c.get(ctx, "details", params, &dr); err != nil {
		return nil, err
	}
	if err := checkStatus("details", dr.Status, dr.ErrorMessage); err != nil {
		return nil, err
	}
	return &dr.Result, nil
}
