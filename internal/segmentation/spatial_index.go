package segmentation

import (
	"math"

	"github.com/banshee-data/cloudseg/internal/cloud"
)

// estimatedPointsPerCell is used for initial index capacity estimation.
const estimatedPointsPerCell = 8

type cellKey struct {
	x, y, z int64
}

// SpatialIndex is a regular 3D grid over point indices. Cell size should
// match the neighbourhood radius so a query only visits the 27 surrounding
// cells.
type SpatialIndex struct {
	CellSize float64
	Grid     map[cellKey][]int
}

// NewSpatialIndex creates an empty index with the given cell size.
func NewSpatialIndex(cellSize float64) *SpatialIndex {
	return &SpatialIndex{
		CellSize: cellSize,
		Grid:     make(map[cellKey][]int),
	}
}

// Build populates the index from points.
func (si *SpatialIndex) Build(points []cloud.Point) {
	si.Grid = make(map[cellKey][]int, len(points)/estimatedPointsPerCell+1)
	for i, p := range points {
		k := si.cellOf(p)
		si.Grid[k] = append(si.Grid[k], i)
	}
}

func (si *SpatialIndex) cellOf(p cloud.Point) cellKey {
	return cellKey{
		x: int64(math.Floor(float64(p.X) / si.CellSize)),
		y: int64(math.Floor(float64(p.Y) / si.CellSize)),
		z: int64(math.Floor(float64(p.Z) / si.CellSize)),
	}
}

// RegionQuery returns the indices of all points within radius of
// points[idx], including idx itself. dst is reused when non-nil.
func (si *SpatialIndex) RegionQuery(points []cloud.Point, idx int, radius float64, dst []int) []int {
	dst = dst[:0]
	p := points[idx]
	r2 := radius * radius
	base := si.cellOf(p)

	for dx := int64(-1); dx <= 1; dx++ {
		for dy := int64(-1); dy <= 1; dy++ {
			for dz := int64(-1); dz <= 1; dz++ {
				k := cellKey{base.x + dx, base.y + dy, base.z + dz}
				for _, candidateIdx := range si.Grid[k] {
					c := points[candidateIdx]
					ddx := float64(c.X - p.X)
					ddy := float64(c.Y - p.Y)
					ddz := float64(c.Z - p.Z)
					if ddx*ddx+ddy*ddy+ddz*ddz <= r2 {
						dst = append(dst, candidateIdx)
					}
				}
			}
		}
	}
	return dst
}
