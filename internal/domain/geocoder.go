package domain

import (
	"context"

	"github.com/paulmach/orb"
)

// Place is one place search hit.
type Place struct {
	Name      string    `json:"place_name"`
	Text      string    `json:"text"`
	Center    orb.Point `json:"center"` // [lng, lat]
	Relevance float64   `json:"relevance"` // 0.0–1.0 provider score
}

// SearchQuery is a free-text place search, optionally biased toward a point.
type SearchQuery struct {
	Text      string
	Limit     int
	Proximity *orb.Point
}

// Geocoder resolves free-text searches to places for the map search box.
type Geocoder interface {
	Search(ctx context.Context, q SearchQuery) ([]Place, error)
}
