// Package domain models point-of-interest (POI) feeds and their map status.
//
// # Feeds
//
// Every feed is CSV text fetched over HTTP, first line a header. The primary
// feed lists POIs:
//
//	lng,lat,title,address,img_uri,localizability
//
// Two optional status feeds list locations only ("lng,lat"): the activated
// feed and the queued feed. Rows are parsed by one of two strategies:
//
//	quoted: byte scanner honoring double quotes, quotes kept in values,
//	        an unterminated last line is not emitted.
//	naive:  split on "\n" then ",", rows with the wrong field count dropped.
//
// Malformed rows are dropped, never reported as errors.
//
// # Coordinate Keys
//
// Feeds are produced independently and format numbers differently, so
// locations are matched by key rather than by exact value:
//
//	key = fixed(lng, 5) + "," + fixed(lat, 5)   e.g. "-98.12345,39.00000"
//
// Non-numeric components render as "NaN". Rendered geometry uses 6 decimals
// and is never used for matching.
//
// # Status
//
//	activated (green) > queued (red) > default (teal)
//
// A cluster is green when every inspected leaf is activated, yellow when
// some are, and teal when none are. At most [LeafLimit] leaves are inspected.
package domain
