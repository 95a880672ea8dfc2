package domain

// Status is the status a POI is colored by.
type Status int

const (
	StatusDefault Status = iota
	StatusActivated
	StatusQueued
)

// Marker colors.
const (
	ColorActivated = "rgba(46,204,113,0.9)"
	ColorQueued    = "rgba(231,76,60,0.9)"
	ColorDefault   = "rgba(0,133,163,0.9)"
)

func (s Status) String() string {
	switch s {
	case StatusActivated:
		return "activated"
	case StatusQueued:
		return "queued"
	default:
		return "default"
	}
}

// Color returns the marker color for the status.
func (s Status) Color() string {
	switch s {
	case StatusActivated:
		return ColorActivated
	case StatusQueued:
		return ColorQueued
	default:
		return ColorDefault
	}
}

// KeySet is the set of coordinate keys present in a status feed.
// A nil KeySet means the feed is not in use.
type KeySet map[CoordinateKey]struct{}

// NewKeySet collects the coordinate keys of records. Duplicate locations collapse.
func NewKeySet(records []Record) KeySet {
	set := make(KeySet, len(records))
	for _, r := range records {
		set[r.Coordinate().Key()] = struct{}{}
	}
	return set
}

// Has reports whether key is in the set. It is safe on a nil set.
func (s KeySet) Has(key CoordinateKey) bool {
	_, ok := s[key]
	return ok
}

// ClassifiedFeature is a primary feed record annotated with its status.
type ClassifiedFeature struct {
	Coordinate     Coordinate
	Key            CoordinateKey
	Image          string
	Title          string
	Address        string
	Localizability string
	Status         Status
}

// Color returns the marker color for the feature's status.
func (f ClassifiedFeature) Color() string {
	return f.Status.Color()
}

// StatusFor resolves a key with priority activated, then queued, then default.
func StatusFor(key CoordinateKey, activated, queued KeySet) Status {
	switch {
	case activated.Has(key):
		return StatusActivated
	case queued.Has(key):
		return StatusQueued
	default:
		return StatusDefault
	}
}

// Classify produces one ClassifiedFeature per primary record, in order.
// Either status set may be nil when that feed is not loaded.
func Classify(primary []Record, activated, queued KeySet) []ClassifiedFeature {
	out := make([]ClassifiedFeature, 0, len(primary))
	for _, r := range primary {
		coord := r.Coordinate()
		key := coord.Key()
		out = append(out, ClassifiedFeature{
			Coordinate:     coord,
			Key:            key,
			Image:          r[FieldImage],
			Title:          r[FieldTitle],
			Address:        r[FieldAddress],
			Localizability: r[FieldLocalizability],
			Status:         StatusFor(key, activated, queued),
		})
	}
	return out
}
