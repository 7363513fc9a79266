// Package catalog queries the SDSS radial-search service and decides whether
// a sky position holds a known galaxy.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"galaxy-roi/internal/models"
	"galaxy-roi/internal/services"
	"galaxy-roi/internal/sky"
)

const (
	DefaultBaseURL = "http://skyserver.sdss.org/dr16/SkyServerWS/SearchTools/RadialSearch"
	DefaultLimit   = 10
)

// SDSS photometric object type codes accepted as a confirmation.
const (
	TypeGalaxy = 3
	TypeKnown  = 5
)

// Row is one catalog object near the search centre.
type Row struct {
	Type int `json:"type"`
}

type table struct {
	Rows []Row `json:"Rows"`
}

// Searcher runs a radial search around center with a radius in arc-minutes.
type Searcher interface {
	Search(ctx context.Context, center sky.Coordinate, radiusArcmin float64) ([]Row, error)
}

// IsGalaxyType reports whether an object type code counts as a galaxy.
// Codes 3 (galaxy) and 5 (known object) are both accepted.
func IsGalaxyType(code int) bool {
	return code == TypeGalaxy || code == TypeKnown
}

// ContainsGalaxy reports whether any row has a galaxy type code.
func ContainsGalaxy(rows []Row) bool {
	for _, r := range rows {
		if IsGalaxyType(r.Type) {
			return true
		}
	}
	return false
}

type Client struct {
	baseURL string
	limit   int
	fetcher *services.Fetcher
}

func NewClient(baseURL string, limit int, fetcher *services.Fetcher) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	if fetcher == nil {
		fetcher = services.NewFetcher(services.Options{Service: "catalog"})
	}
	return &Client{
		baseURL: baseURL,
		limit:   limit,
		fetcher: fetcher,
	}
}

// SearchURL formats the radial-search request for center and radius.
func (c *Client) SearchURL(center sky.Coordinate, radiusArcmin float64) string {
	q := url.Values{}
	q.Set("ra", formatFloat(center.RA))
	q.Set("dec", formatFloat(center.Dec))
	q.Set("radius", formatFloat(radiusArcmin))
	q.Set("whichway", "equatorial")
	q.Set("limit", strconv.Itoa(c.limit))
	q.Set("format", "json")
	q.Set("fp", "none")
	q.Set("whichquery", "imaging")
	return c.baseURL + "?" + q.Encode()
}

func (c *Client) Search(ctx context.Context, center sky.Coordinate, radiusArcmin float64) ([]Row, error) {
	body, err := c.fetcher.Get(ctx, c.SearchURL(center, radiusArcmin))
	if err != nil {
		return nil, err
	}
	return ParseResponse(body)
}

// ParseResponse reads the first table's rows. An empty table list yields no
// rows; a body that is not the expected JSON is a service failure.
func ParseResponse(body []byte) ([]Row, error) {
	var tables []table
	if err := json.Unmarshal(body, &tables); err != nil {
		return nil, fmt.Errorf("decode radial search response: %v: %w", err, models.ErrServiceFailure)
	}
	if len(tables) == 0 {
		return nil, nil
	}
	return tables[0].Rows, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
