// Package index implements the search-index tier over OpenSearch.
package index

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/opensearch-project/opensearch-go/v2"

	"github.com/careatlas-systems/pulse/query/internal/models"
)

// ErrUnavailable marks transient index failures. The query service responds
// by falling back to the source-of-truth store.
var ErrUnavailable = errors.New("index: search index unavailable")

// ErrBadQuery marks malformed queries. These propagate without fallback;
// the store would reject them just the same.
var ErrBadQuery = errors.New("index: bad query")

// Config holds OpenSearch connection settings.
type Config struct {
	URL      string
	Username string
	Password string
	Insecure bool
	Index    string
}

// Client searches the facility index.
type Client struct {
	client *opensearch.Client
	index  string
}

// NewClient connects to OpenSearch and verifies the connection.
func NewClient(cfg Config) (*Client, error) {
	httpClient := &http.Client{
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: cfg.Insecure,
			},
		},
	}

	osCfg := opensearch.Config{
		Addresses: []string{cfg.URL},
		Username:  cfg.Username,
		Password:  cfg.Password,
		Transport: httpClient.Transport,
	}

	client, err := opensearch.NewClient(osCfg)
	if err != nil {
		return nil, fmt.Errorf("create opensearch client: %w", err)
	}

	info, err := client.Info()
	if err != nil {
		return nil, fmt.Errorf("ping opensearch: %w", err)
	}
	defer info.Body.Close()

	if info.IsError() {
		return nil, fmt.Errorf("opensearch returned error: %s", info.Status())
	}

	index := cfg.Index
	if index == "" {
		index = "facilities"
	}
	return &Client{client: client, index: index}, nil
}

// SearchFacilities executes the facility search against the index.
func (c *Client) SearchFacilities(ctx context.Context, params models.SearchParams) (*models.SearchResult, error) {
	p := params.Normalize()
	query := buildQuery(p)

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(query); err != nil {
		return nil, fmt.Errorf("%w: encode query: %v", ErrBadQuery, err)
	}

	res, err := c.client.Search(
		c.client.Search.WithContext(ctx),
		c.client.Search.WithIndex(c.index),
		c.client.Search.WithBody(&buf),
		c.client.Search.WithSize(p.Limit),
		c.client.Search.WithTrackTotalHits(true),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		if res.StatusCode >= 400 && res.StatusCode < 500 {
			return nil, fmt.Errorf("%w: %s", ErrBadQuery, res.String())
		}
		return nil, fmt.Errorf("%w: %s", ErrUnavailable, res.String())
	}

	var searchResult struct {
		Hits struct {
			Total struct {
				Value int `json:"value"`
			} `json:"total"`
			Hits []struct {
				Source models.Facility `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&searchResult); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrUnavailable, err)
	}

	facilities := make([]models.Facility, 0, len(searchResult.Hits.Hits))
	for _, hit := range searchResult.Hits.Hits {
		facilities = append(facilities, hit.Source)
	}

	return &models.SearchResult{
		Facilities: facilities,
		Total:      searchResult.Hits.Total.Value,
	}, nil
}

// buildQuery translates normalized search params into an OpenSearch bool
// query with an optional geo_distance filter.
func buildQuery(p models.SearchParams) map[string]any {
	var must []any
	var filter []any

	if p.Query != "" {
		must = append(must, map[string]any{
			"match": map[string]any{
				"name": map[string]any{"query": p.Query, "fuzziness": "AUTO"},
			},
		})
	}
	if p.City != "" {
		filter = append(filter, map[string]any{
			"term": map[string]any{"city": p.City},
		})
	}
	if p.Service != "" {
		filter = append(filter, map[string]any{
			"term": map[string]any{"services": p.Service},
		})
	}
	if p.CapacityStatus != "" {
		filter = append(filter, map[string]any{
			"term": map[string]any{"capacity_status": p.CapacityStatus},
		})
	}
	if p.Latitude != nil && p.Longitude != nil {
		filter = append(filter, map[string]any{
			"geo_distance": map[string]any{
				"distance": fmt.Sprintf("%.3fkm", p.RadiusKm),
				"location": map[string]any{
					"lat": *p.Latitude,
					"lon": *p.Longitude,
				},
			},
		})
	}

	boolQuery := map[string]any{}
	if len(must) > 0 {
		boolQuery["must"] = must
	}
	if len(filter) > 0 {
		boolQuery["filter"] = filter
	}
	if len(boolQuery) == 0 {
		return map[string]any{"query": map[string]any{"match_all": map[string]any{}}}
	}
	return map[string]any{"query": map[string]any{"bool": boolQuery}}
}
