// Package cluster groups projected POIs into zoom-dependent grid clusters
// and recolors clusters by the status of their leaves.
package cluster

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/couchcryptid/poi-map/internal/domain"
	"github.com/mmcloughlin/geohash"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

var (
	// ErrClusterNotFound is returned for ids that name no cluster at their zoom.
	ErrClusterNotFound = errors.New("cluster not found")
	// ErrInvalidPage is returned for a non-positive limit or negative offset.
	ErrInvalidPage = errors.New("invalid leaf page")
)

// Cluster is a group of features sharing a grid cell, or a single feature.
type Cluster struct {
	ID      string
	Center  orb.Point
	Count   int
	Feature int // feature index when Count == 1
}

// IsCluster reports whether c aggregates more than one feature.
func (c Cluster) IsCluster() bool { return c.Count > 1 }

// DefaultRadius is the cluster radius in pixels used when Options leaves it unset.
const DefaultRadius = 22

const (
	tileSize     = 512 // pixels per tile edge at zoom 0
	maxPrecision = 12  // length of a full geohash
)

// Options controls how an Index groups features.
type Options struct {
	// MaxZoom is the highest zoom at which features are clustered.
	MaxZoom int
	// Radius is the cluster radius in pixels. Grid cells at each zoom are
	// the smallest geohash cells at least this wide on screen.
	Radius int
}

// Index is an immutable cluster index over one FeatureCollection.
// Feature ids are positions in the collection.
type Index struct {
	fc        *geojson.FeatureCollection
	maxZoom   int
	precision []int              // per zoom: geohash prefix length
	cells     []map[string][]int // per zoom: cell prefix -> feature indices
	hashes    []string           // per feature: full geohash, empty for non-points
}

// Build indexes fc for zooms 0 through opts.MaxZoom. Above MaxZoom features
// are never clustered.
func Build(fc *geojson.FeatureCollection, opts Options) *Index {
	maxZoom := max(opts.MaxZoom, 0)
	radius := opts.Radius
	if radius <= 0 {
		radius = DefaultRadius
	}
	idx := &Index{
		fc:        fc,
		maxZoom:   maxZoom,
		precision: make([]int, maxZoom+1),
		cells:     make([]map[string][]int, maxZoom+1),
		hashes:    make([]string, len(fc.Features)),
	}
	for z := range idx.cells {
		idx.precision[z] = precisionFor(z, radius)
		idx.cells[z] = make(map[string][]int)
	}
	for i, f := range fc.Features {
		p, ok := f.Geometry.(orb.Point)
		if !ok {
			continue
		}
		hash := geohash.Encode(p.Lat(), p.Lon())
		idx.hashes[i] = hash
		for z := 0; z <= maxZoom; z++ {
			cell := hash[:idx.precision[z]]
			idx.cells[z][cell] = append(idx.cells[z][cell], i)
		}
	}
	return idx
}

// precisionFor returns the longest geohash prefix whose cells are still at
// least radius pixels wide at zoom. A prefix of length p spends ceil(5p/2)
// bits on longitude.
func precisionFor(zoom, radius int) int {
	bits := math.Floor(math.Log2(tileSize * math.Exp2(float64(zoom)) / float64(radius)))
	p := 1
	for p < maxPrecision && float64((5*(p+1)+1)/2) <= bits {
		p++
	}
	return p
}

// Len returns the number of indexed features.
func (x *Index) Len() int { return len(x.fc.Features) }

// MaxZoom returns the highest zoom at which features are clustered.
func (x *Index) MaxZoom() int { return x.maxZoom }

// FeatureCollection returns the indexed collection. Callers must not modify it.
func (x *Index) FeatureCollection() *geojson.FeatureCollection { return x.fc }

// Feature returns the feature with the given id.
func (x *Index) Feature(id int) (*geojson.Feature, bool) {
	if id < 0 || id >= len(x.fc.Features) {
		return nil, false
	}
	return x.fc.Features[id], true
}

// Clusters returns the clusters and single features whose center lies in
// bound at the given zoom, ordered by id. With cluster set to false every
// feature is returned on its own.
func (x *Index) Clusters(bound orb.Bound, zoom int, cluster bool) []Cluster {
	var out []Cluster
	if !cluster || zoom > x.maxZoom {
		for i, f := range x.fc.Features {
			p, ok := f.Geometry.(orb.Point)
			if ok && bound.Contains(p) {
				out = append(out, Cluster{ID: pointID(i), Center: p, Count: 1, Feature: i})
			}
		}
		return out
	}
	if zoom < 0 {
		zoom = 0
	}
	for cell, members := range x.cells[zoom] {
		center := x.centroid(members)
		if !bound.Contains(center) {
			continue
		}
		if len(members) == 1 {
			out = append(out, Cluster{ID: pointID(members[0]), Center: center, Count: 1, Feature: members[0]})
			continue
		}
		out = append(out, Cluster{ID: clusterID(zoom, cell), Center: center, Count: len(members), Feature: -1})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Leaves returns up to limit leaves of a cluster starting at offset.
func (x *Index) Leaves(id string, limit, offset int) ([]*geojson.Feature, error) {
	if limit <= 0 || offset < 0 {
		return nil, ErrInvalidPage
	}
	_, members, err := x.members(id)
	if err != nil {
		return nil, err
	}
	if offset >= len(members) {
		return []*geojson.Feature{}, nil
	}
	end := offset + min(limit, len(members)-offset)
	leaves := make([]*geojson.Feature, 0, end-offset)
	for _, i := range members[offset:end] {
		leaves = append(leaves, x.fc.Features[i])
	}
	return leaves, nil
}

// ExpansionZoom returns the lowest zoom at which the cluster's members no
// longer share one cell. Clusters that hold together up to MaxZoom expand
// at MaxZoom+1, where every feature is shown on its own.
func (x *Index) ExpansionZoom(id string) (int, error) {
	zoom, members, err := x.members(id)
	if err != nil {
		return 0, err
	}
	first := x.hashes[members[0]]
	for z := zoom + 1; z <= x.maxZoom; z++ {
		p := x.precision[z]
		for _, i := range members[1:] {
			if x.hashes[i][:p] != first[:p] {
				return z, nil
			}
		}
	}
	return x.maxZoom + 1, nil
}

// members resolves a cluster id to its zoom and feature indices.
func (x *Index) members(id string) (int, []int, error) {
	zoom, cell, err := parseClusterID(id)
	if err != nil {
		return 0, nil, err
	}
	if zoom > x.maxZoom {
		return 0, nil, fmt.Errorf("%w: %s", ErrClusterNotFound, id)
	}
	members, ok := x.cells[zoom][cell]
	if !ok || len(members) < 2 {
		return 0, nil, fmt.Errorf("%w: %s", ErrClusterNotFound, id)
	}
	return zoom, members, nil
}

func (x *Index) centroid(members []int) orb.Point {
	var lng, lat float64
	for _, i := range members {
		p := x.fc.Features[i].Geometry.(orb.Point)
		lng += p.Lon()
		lat += p.Lat()
	}
	n := float64(len(members))
	return orb.Point{lng / n, lat / n}
}

func clusterID(zoom int, cell string) string {
	return "z" + strconv.Itoa(zoom) + ":" + cell
}

func pointID(i int) string {
	return "p" + strconv.Itoa(i)
}

func parseClusterID(id string) (int, string, error) {
	rest, ok := strings.CutPrefix(id, "z")
	if !ok {
		return 0, "", fmt.Errorf("%w: %s", ErrClusterNotFound, id)
	}
	zs, cell, ok := strings.Cut(rest, ":")
	if !ok || cell == "" {
		return 0, "", fmt.Errorf("%w: %s", ErrClusterNotFound, id)
	}
	zoom, err := strconv.Atoi(zs)
	if err != nil || zoom < 0 {
		return 0, "", fmt.Errorf("%w: %s", ErrClusterNotFound, id)
	}
	return zoom, cell, nil
}

// statusesOf reads the leaf statuses used for cluster classification.
func statusesOf(leaves []*geojson.Feature) []domain.Status {
	out := make([]domain.Status, len(leaves))
	for i, f := range leaves {
		out[i] = domain.StatusOf(f)
	}
	return out
}
