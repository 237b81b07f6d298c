// Package overpass provides a rate-limited client for the OpenStreetMap
// Overpass API.
package overpass

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

const defaultBaseURL = "https://overpass-api.de/api/interpreter"

// userAgent identifies the crawler per the Overpass usage policy.
const userAgent = "parkscout/1.0 (park research; contact ops@sells.group)"

// LatLon is a computed centroid for ways and relations.
type LatLon struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Element is one OSM node, way, or relation from a query result.
type Element struct {
	Type   string            `json:"type"`
	ID     int64             `json:"id"`
	Lat    float64           `json:"lat,omitempty"`
	Lon    float64           `json:"lon,omitempty"`
	Center *LatLon           `json:"center,omitempty"`
	Tags   map[string]string `json:"tags,omitempty"`
}

// Coordinates returns the element's own position for nodes, or the
// computed center for ways and relations. ok is false when neither is
// present.
func (e *Element) Coordinates() (lat, lon float64, ok bool) {
	if e.Lat != 0 || e.Lon != 0 {
		return e.Lat, e.Lon, true
	}
	if e.Center != nil {
		return e.Center.Lat, e.Center.Lon, true
	}
	return 0, 0, false
}

// ExternalID returns the stable identifier "osm_<type>_<id>".
func (e *Element) ExternalID() string {
	return fmt.Sprintf("osm_%s_%d", e.Type, e.ID)
}

type queryResponse struct {
	Elements []Element `json:"elements"`
}

// BBox is a bounding box in (south, west, north, east) order, matching
// Overpass QL conventions.
type BBox struct {
	MinLat float64 `yaml:"min_lat" mapstructure:"min_lat"`
	MinLon float64 `yaml:"min_lon" mapstructure:"min_lon"`
	MaxLat float64 `yaml:"max_lat" mapstructure:"max_lat"`
	MaxLon float64 `yaml:"max_lon" mapstructure:"max_lon"`
}

func (b BBox) String() string {
	return fmt.Sprintf("%g,%g,%g,%g", b.MinLat, b.MinLon, b.MaxLat, b.MaxLon)
}

// Option configures the client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithBaseURL overrides the Overpass endpoint. Empty means the default.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if baseURL != "" {
			c.baseURL = baseURL
		}
	}
}

// WithRateLimit sets the requests-per-minute limit. Public Overpass
// instances throttle aggressively, so the default is conservative.
func WithRateLimit(rpm float64) Option {
	return func(c *Client) {
		if rpm > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rpm/60), 1)
		}
	}
}

// WithTimeout sets the HTTP client timeout. Overpass queries over a
// whole state routinely run for minutes.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// Client queries the Overpass API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient creates an Overpass client with the given options.
func NewClient(opts ...Option) *Client {
	c := &Client{
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 180 * time.Second},
		limiter:    rate.NewLimiter(rate.Limit(0.1), 1), // 6 req/min
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Query executes a raw Overpass QL query and returns the elements.
func (c *Client) Query(ctx context.Context, ql string) ([]Element, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "overpass: rate limit")
	}

	form := url.Values{"data": {ql}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL,
		strings.NewReader(form.Encode()))
	if err != nil {
		return nil, eris.Wrap(err, "overpass: build request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "overpass: request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("overpass: returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "overpass: read body")
	}

	var qr queryResponse
	if err := json.Unmarshal(body, &qr); err != nil {
		return nil, eris.Wrap(err, "overpass: parse response")
	}
	return qr.Elements, nil
}

// QueryParks fetches every park-like feature inside the bounding box:
// campgrounds, caravan sites, mobile home and trailer park land use, and
// a name-based catch for parks tagged only with a descriptive name.
func (c *Client) QueryParks(ctx context.Context, bbox BBox) ([]Element, error) {
	return c.Query(ctx, BuildParkQuery(bbox))
}

// BuildParkQuery renders the Overpass QL for QueryParks.
func BuildParkQuery(bbox BBox) string {
	bb := bbox.String()
	var b strings.Builder
	b.WriteString("[out:json][timeout:90];\n(\n")
	for _, filter := range []string{
		`["tourism"="camp_site"]`,
		`["tourism"="caravan_site"]`,
		`["landuse"="residential"]["residential"="mobile_home"]`,
		`["landuse"="residential"]["residential"="trailer_park"]`,
		`["name"~"mobile home|trailer park|rv park|rv resort",i]`,
	} {
		for _, kind := range []string{"node", "way", "relation"} {
			fmt.Fprintf(&b, "  %s%s(%s);\n", kind, filter, bb)
		}
	}
	b.WriteString(");\nout center tags;")
	return b.String()
}
