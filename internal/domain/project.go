package domain

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// Feature property names shared with the map page.
const (
	PropImage          = "img"
	PropTitle          = "title"
	PropAddress        = "address"
	PropLocalizability = "localizability"
	PropStatus         = "status"
	PropColor          = "color"
)

// Project maps classified features onto point features with coordinates
// rounded to DisplayPrecision. Features without valid coordinates cannot be
// encoded as GeoJSON; they are left out and counted in dropped.
// No ids are assigned here.
func Project(features []ClassifiedFeature) (fc *geojson.FeatureCollection, dropped int) {
	fc = geojson.NewFeatureCollection()
	for _, f := range features {
		if !f.Coordinate.Valid {
			dropped++
			continue
		}
		c := f.Coordinate.Rounded()
		gf := geojson.NewFeature(orb.Point{c.Lng, c.Lat})
		gf.Properties[PropImage] = f.Image
		gf.Properties[PropTitle] = f.Title
		gf.Properties[PropAddress] = f.Address
		gf.Properties[PropLocalizability] = f.Localizability
		gf.Properties[PropStatus] = f.Status.String()
		gf.Properties[PropColor] = f.Color()
		fc.Append(gf)
	}
	return fc, dropped
}

// StatusOf reads the status property written by Project.
func StatusOf(f *geojson.Feature) Status {
	switch f.Properties.MustString(PropStatus, "") {
	case StatusActivated.String():
		return StatusActivated
	case StatusQueued.String():
		return StatusQueued
	default:
		return StatusDefault
	}
}
