package domain

// LeafLimit caps how many leaves a single cluster recolor may inspect.
const LeafLimit = 1000

// ClusterColor classifies a cluster by how many of its leaves are activated.
type ClusterColor int

const (
	ClusterDefault ClusterColor = iota
	ClusterMixed
	ClusterActivated
)

// ColorMixed marks clusters with some, but not all, leaves activated.
const ColorMixed = "rgba(241,196,15,0.9)"

func (c ClusterColor) String() string {
	switch c {
	case ClusterActivated:
		return "activated"
	case ClusterMixed:
		return "mixed"
	default:
		return "default"
	}
}

// Color returns the fill color for the cluster marker.
func (c ClusterColor) Color() string {
	switch c {
	case ClusterActivated:
		return ColorActivated
	case ClusterMixed:
		return ColorMixed
	default:
		return ColorDefault
	}
}

// ClassifyCluster counts activated leaves by color: all activated gives
// ClusterActivated, some gives ClusterMixed, none (or no leaves) gives
// ClusterDefault.
func ClassifyCluster(leaves []Status) ClusterColor {
	if len(leaves) == 0 {
		return ClusterDefault
	}
	activated := 0
	for _, s := range leaves {
		if s.Color() == ColorActivated {
			activated++
		}
	}
	switch {
	case activated == len(leaves):
		return ClusterActivated
	case activated > 0:
		return ClusterMixed
	default:
		return ClusterDefault
	}
}
