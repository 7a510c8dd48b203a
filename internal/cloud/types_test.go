package cloud

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func nan() float32 { return float32(math.NaN()) }

func TestRemoveNaN(t *testing.T) {
	tests := []struct {
		name        string
		points      []Point
		wantPoints  []Point
		wantRemoved int
	}{
		{
			name:        "nil cloud",
			points:      nil,
			wantPoints:  nil,
			wantRemoved: 0,
		},
		{
			name:        "all finite",
			points:      []Point{{X: 1}, {X: 2}},
			wantPoints:  []Point{{X: 1}, {X: 2}},
			wantRemoved: 0,
		},
		{
			name:        "mixed keeps order",
			points:      []Point{{X: 1}, {X: nan()}, {X: 2, Label: 3}, {Y: float32(math.Inf(1))}, {Z: 3}},
			wantPoints:  []Point{{X: 1}, {X: 2, Label: 3}, {Z: 3}},
			wantRemoved: 2,
		},
		{
			name:        "all NaN",
			points:      []Point{{X: nan()}, {Y: nan()}, {Z: nan()}},
			wantPoints:  []Point{},
			wantRemoved: 3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Cloud{Points: tt.points}
			removed := c.RemoveNaN()
			if removed != tt.wantRemoved {
				t.Errorf("RemoveNaN() removed %d, want %d", removed, tt.wantRemoved)
			}
			if diff := cmp.Diff(tt.wantPoints, c.Points); diff != "" {
				t.Errorf("points mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestCloneDoesNotAlias(t *testing.T) {
	c := Cloud{Header: Header{FrameID: "cam"}, Points: []Point{{X: 1}}}
	cp := c.Clone()
	cp.Points[0].X = 42

	if c.Points[0].X != 1 {
		t.Errorf("Clone shares backing array: original X = %v", c.Points[0].X)
	}
	if cp.Header != c.Header {
		t.Errorf("Clone header = %+v, want %+v", cp.Header, c.Header)
	}
}

func TestSegments(t *testing.T) {
	c := Cloud{Points: []Point{{Label: 0}, {Label: 1}, {Label: 1}, {Label: 7}}}
	if got := c.Segments(); got != 2 {
		t.Errorf("Segments() = %d, want 2", got)
	}
}
