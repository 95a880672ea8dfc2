package cluster

import (
	"strconv"

	"github.com/couchcryptid/poi-map/internal/domain"
	"github.com/paulmach/orb/geojson"
)

// LeafSource looks up a page of cluster leaves. *Index implements it.
type LeafSource interface {
	Leaves(id string, limit, offset int) ([]*geojson.Feature, error)
}

// Colors classifies every multi-feature cluster by its first
// domain.LeafLimit leaves. A cluster whose leaf lookup fails is left out of
// the result and reported through onError, which may be nil.
func Colors(src LeafSource, clusters []Cluster, onError func(id string, err error)) map[string]domain.ClusterColor {
	colors := make(map[string]domain.ClusterColor, len(clusters))
	for _, c := range clusters {
		if !c.IsCluster() {
			continue
		}
		leaves, err := src.Leaves(c.ID, domain.LeafLimit, 0)
		if err != nil {
			if onError != nil {
				onError(c.ID, err)
			}
			continue
		}
		colors[c.ID] = domain.ClassifyCluster(statusesOf(leaves))
	}
	return colors
}

// Cluster feature property names.
const (
	PropCluster         = "cluster"
	PropClusterID       = "cluster_id"
	PropPointCount      = "point_count"
	PropPointCountAbbrv = "point_count_abbreviated"
)

// Features renders clusters as GeoJSON. Single features are returned as the
// indexed feature with its numeric id. Clusters missing from colors keep
// the default cluster color.
func (x *Index) Features(clusters []Cluster, colors map[string]domain.ClusterColor) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, c := range clusters {
		if !c.IsCluster() {
			src, ok := x.Feature(c.Feature)
			if !ok {
				continue
			}
			f := geojson.NewFeature(src.Geometry)
			f.ID = c.Feature
			for k, v := range src.Properties {
				f.Properties[k] = v
			}
			fc.Append(f)
			continue
		}
		f := geojson.NewFeature(c.Center)
		f.ID = c.ID
		f.Properties[PropCluster] = true
		f.Properties[PropClusterID] = c.ID
		f.Properties[PropPointCount] = c.Count
		f.Properties[PropPointCountAbbrv] = AbbreviateCount(c.Count)
		f.Properties[domain.PropColor] = colors[c.ID].Color()
		fc.Append(f)
	}
	return fc
}

// AbbreviateCount formats a point count the way map cluster labels do:
// 950, 1.2k, 12k.
func AbbreviateCount(n int) string {
	switch {
	case n >= 10000:
		return strconv.Itoa((n+500)/1000) + "k"
	case n >= 1000:
		tenths := (n + 50) / 100
		if tenths%10 == 0 {
			return strconv.Itoa(tenths/10) + "k"
		}
		return strconv.Itoa(tenths/10) + "." + strconv.Itoa(tenths%10) + "k"
	default:
		return strconv.Itoa(n)
	}
}
