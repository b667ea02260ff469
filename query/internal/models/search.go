package models

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// SearchParams are the normalized facility search parameters.
type SearchParams struct {
	// Query matches against facility name.
	Query string `json:"query,omitempty"`

	City           string `json:"city,omitempty"`
	Service        string `json:"service,omitempty"`
	CapacityStatus string `json:"capacity_status,omitempty"`

	// Geographic constraint; both coordinates must be set together.
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
	RadiusKm  float64  `json:"radius_km,omitempty"`

	Limit int `json:"limit,omitempty"`
}

// Normalize canonicalizes free-text fields so that equivalent parameter
// sets produce the same cache key.
func (p SearchParams) Normalize() SearchParams {
	p.Query = strings.ToLower(strings.TrimSpace(p.Query))
	p.City = strings.ToLower(strings.TrimSpace(p.City))
	p.Service = strings.ToLower(strings.TrimSpace(p.Service))
	p.CapacityStatus = strings.ToLower(strings.TrimSpace(p.CapacityStatus))
	if p.Limit <= 0 {
		p.Limit = 20
	}
	if p.Limit > 100 {
		p.Limit = 100
	}
	if p.Latitude != nil && p.Longitude != nil && p.RadiusKm <= 0 {
		p.RadiusKm = 50
	}
	return p
}

// Validate rejects parameter sets no tier could answer.
func (p SearchParams) Validate() error {
	if (p.Latitude == nil) != (p.Longitude == nil) {
		return fmt.Errorf("latitude and longitude must be provided together")
	}
	if p.Latitude != nil {
		if *p.Latitude < -90 || *p.Latitude > 90 {
			return fmt.Errorf("latitude %v out of range [-90, 90]", *p.Latitude)
		}
		if *p.Longitude < -180 || *p.Longitude > 180 {
			return fmt.Errorf("longitude %v out of range [-180, 180]", *p.Longitude)
		}
	}
	if p.RadiusKm < 0 {
		return fmt.Errorf("radius_km must not be negative")
	}
	return nil
}

// CacheHash returns a deterministic digest of the normalized parameters,
// used as the search cache key suffix.
func (p SearchParams) CacheHash() string {
	n := p.Normalize()
	var lat, lon string
	if n.Latitude != nil {
		lat = fmt.Sprintf("%.6f", *n.Latitude)
		lon = fmt.Sprintf("%.6f", *n.Longitude)
	}
	canonical := strings.Join([]string{
		n.Query, n.City, n.Service, n.CapacityStatus,
		lat, lon,
		fmt.Sprintf("%.3f", n.RadiusKm),
		fmt.Sprintf("%d", n.Limit),
	}, "|")
	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:])
}

// SearchResult is the payload cached and returned for a search.
type SearchResult struct {
	Facilities []Facility `json:"facilities"`
	Total      int        `json:"total"`

	// Degraded is true when the search index was unavailable and the
	// result came from the source-of-truth store instead.
	Degraded bool `json:"degraded,omitempty"`
}
