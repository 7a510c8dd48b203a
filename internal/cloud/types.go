package cloud

import (
	"math"
	"time"
)

// Unlabeled is the sentinel label for background / unsegmented points.
const Unlabeled uint32 = 0

// Point is a single 3D sample with optional colour and a segment label.
type Point struct {
	X     float32 `json:"x"`
	Y     float32 `json:"y"`
	Z     float32 `json:"z"`
	R     uint8   `json:"r,omitempty"`
	G     uint8   `json:"g,omitempty"`
	B     uint8   `json:"b,omitempty"`
	Label uint32  `json:"label,omitempty"`
}

// IsFinite reports whether all three coordinates are finite numbers.
func (p Point) IsFinite() bool {
	return isFinite(p.X) && isFinite(p.Y) && isFinite(p.Z)
}

func isFinite(v float32) bool {
	f := float64(v)
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// Header identifies a cloud: acquisition time, source frame and sequence.
type Header struct {
	Seq     uint32    `json:"seq"`
	Stamp   time.Time `json:"stamp"`
	FrameID string    `json:"frame_id"`
}

// Cloud is an ordered sequence of points with a header.
type Cloud struct {
	Header Header  `json:"header"`
	Points []Point `json:"points"`
}

// Len returns the number of points.
func (c *Cloud) Len() int {
	return len(c.Points)
}

// Empty reports whether the cloud has no points.
func (c *Cloud) Empty() bool {
	return len(c.Points) == 0
}

// Clone returns a deep copy. The copy never shares its point slice with c.
func (c *Cloud) Clone() Cloud {
	out := Cloud{Header: c.Header}
	if c.Points != nil {
		out.Points = make([]Point, len(c.Points))
		copy(out.Points, c.Points)
	}
	return out
}

// RemoveNaN drops every point with a non-finite coordinate, in place,
// keeping the relative order of the remaining points. It returns the number
// of points removed.
func (c *Cloud) RemoveNaN() int {
	kept := c.Points[:0]
	for _, p := range c.Points {
		if p.IsFinite() {
			kept = append(kept, p)
		}
	}
	removed := len(c.Points) - len(kept)
	// zero the tail so dropped points are not retained by the backing array
	for i := len(kept); i < len(c.Points); i++ {
		c.Points[i] = Point{}
	}
	c.Points = kept
	return removed
}

// Segments returns the number of distinct non-zero labels in the cloud.
func (c *Cloud) Segments() int {
	seen := make(map[uint32]struct{})
	for _, p := range c.Points {
		if p.Label != Unlabeled {
			seen[p.Label] = struct{}{}
		}
	}
	return len(seen)
}
