package domain

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
)

// MapDefaults are the presentation settings used when the page URL does
// not override them.
type MapDefaults struct {
	Style          string    `yaml:"style" json:"style"`
	Center         orb.Point `yaml:"center" json:"center"` // [lng, lat]
	Zoom           float64   `yaml:"zoom" json:"zoom"`
	ClusterRadius  int       `yaml:"cluster_radius" json:"cluster_radius"`
	ClusterMaxZoom int       `yaml:"cluster_max_zoom" json:"cluster_max_zoom"`
}

// DefaultMapDefaults returns the built-in map settings: dark style, centered on the continental US.
func DefaultMapDefaults() MapDefaults {
	return MapDefaults{
		Style:          "dark-v10",
		Center:         orb.Point{-98, 39},
		Zoom:           4,
		ClusterRadius:  22,
		ClusterMaxZoom: 12,
	}
}

// ViewOptions are the per-page settings carried in the URL query.
type ViewOptions struct {
	Center     orb.Point `json:"center"`
	Zoom       float64   `json:"zoom"`
	ShowMarker bool      `json:"show_marker"`
	NoCluster  bool      `json:"no_cluster"`
	Geocoder   bool      `json:"geocoder"`
	CacheBust  string    `json:"cache_bust,omitempty"`
}

// ParseViewOptions reads lat, lng, zoom, showmarker, nocluster, gc and cb.
// The center is overridden only when both lat and lng parse; a zoom that
// does not parse keeps the default.
func ParseViewOptions(q url.Values, d MapDefaults) ViewOptions {
	opts := ViewOptions{
		Center:     d.Center,
		Zoom:       d.Zoom,
		ShowMarker: q.Get("showmarker") == "1",
		NoCluster:  q.Get("nocluster") == "1",
		Geocoder:   q.Get("gc") != "0",
		CacheBust:  q.Get("cb"),
	}
	if q.Get("lat") != "" && q.Get("lng") != "" {
		if c := ParseCoordinate(q.Get("lng"), q.Get("lat")); c.Valid {
			opts.Center = orb.Point{c.Lng, c.Lat}
		}
	}
	if z, err := strconv.ParseFloat(strings.TrimSpace(q.Get("zoom")), 64); err == nil && z >= 0 {
		opts.Zoom = z
	}
	return opts
}

// Query encodes the options back into URL parameters, used for share links.
func (o ViewOptions) Query() url.Values {
	q := url.Values{}
	q.Set("lng", strconv.FormatFloat(o.Center[0], 'f', DisplayPrecision, 64))
	q.Set("lat", strconv.FormatFloat(o.Center[1], 'f', DisplayPrecision, 64))
	q.Set("zoom", strconv.FormatFloat(o.Zoom, 'f', -1, 64))
	if o.ShowMarker {
		q.Set("showmarker", "1")
	}
	if o.NoCluster {
		q.Set("nocluster", "1")
	}
	if !o.Geocoder {
		q.Set("gc", "0")
	}
	return q
}
