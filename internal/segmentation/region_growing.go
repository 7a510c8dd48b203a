package segmentation

import (
	"fmt"
	"math"
	"sort"

	"github.com/banshee-data/cloudseg/internal/cloud"
	"github.com/banshee-data/cloudseg/internal/config"
)

// baseNormalTolerance is the normal angle tolerance at normal_importance 1.
const baseNormalTolerance = 10 * math.Pi / 180

// RegionGrowing segments smooth surfaces. Seeds are taken in order of
// increasing curvature; a region absorbs neighbours within seed_resolution
// whose normals agree, and keeps growing only through points whose
// curvature is at most max_curvature. Regions smaller than
// min_inliers_per_plane are left unlabeled.
type RegionGrowing struct {
	cfg config.Segmentation
}

// NewRegionGrowing creates an engine with the given configuration.
func NewRegionGrowing(cfg config.Segmentation) (*RegionGrowing, error) {
	e := &RegionGrowing{}
	if err := e.SetConfig(cfg); err != nil {
		return nil, err
	}
	return e, nil
}

// NewDefaultRegionGrowing creates an engine with default parameters.
func NewDefaultRegionGrowing() *RegionGrowing {
	return &RegionGrowing{cfg: config.DefaultSegmentation()}
}

// SetConfig validates and stores cfg.
func (e *RegionGrowing) SetConfig(cfg config.Segmentation) error {
	if cfg.SeedResolution <= 0 {
		return fmt.Errorf("%w: seed_resolution must be positive, got %f", ErrInvalidConfig, cfg.SeedResolution)
	}
	if cfg.MinInliersPerPlane < 0 {
		return fmt.Errorf("%w: min_inliers_per_plane must be non-negative, got %d", ErrInvalidConfig, cfg.MinInliersPerPlane)
	}
	e.cfg = cfg
	return nil
}

// GetConfig returns the current configuration.
func (e *RegionGrowing) GetConfig() config.Segmentation {
	return e.cfg
}

// Segment labels every point of in; see RegionGrowing.
func (e *RegionGrowing) Segment(in cloud.Cloud) (cloud.Cloud, error) {
	out := in.Clone()
	if out.Points == nil {
		out.Points = []cloud.Point{}
	}
	for i := range out.Points {
		out.Points[i].Label = cloud.Unlabeled
	}
	n := len(out.Points)
	if n == 0 {
		return out, nil
	}

	for i, p := range out.Points {
		if !p.IsFinite() {
			return cloud.Cloud{}, fmt.Errorf("point %d has non-finite coordinates", i)
		}
	}

	radius := e.cfg.SeedResolution
	si := NewSpatialIndex(radius)
	si.Build(out.Points)

	surfaces := estimateSurfaces(out.Points, si, radius)
	cosTol := normalCosTolerance(e.cfg.NormalImportance)

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return surfaces[order[a]].Curvature < surfaces[order[b]].Curvature
	})

	visited := make([]bool, n)
	var (
		label      uint32
		neighbours []int
		region     []int
	)

	for _, seed := range order {
		if visited[seed] || !surfaces[seed].Valid {
			continue
		}

		// Queue-based expansion; region doubles as the queue.
		visited[seed] = true
		region = append(region[:0], seed)
		for j := 0; j < len(region); j++ {
			cur := region[j]
			if surfaces[cur].Curvature > e.cfg.MaxCurvature {
				continue // border point: part of the region but does not grow it
			}
			neighbours = si.RegionQuery(out.Points, cur, radius, neighbours)
			for _, nb := range neighbours {
				if visited[nb] || !surfaces[nb].Valid {
					continue
				}
				if absDot(surfaces[cur].Normal, surfaces[nb].Normal) < cosTol {
					continue
				}
				visited[nb] = true
				region = append(region, nb)
			}
		}

		if len(region) < e.cfg.MinInliersPerPlane || len(region) == 0 {
			continue
		}
		label++
		for _, idx := range region {
			out.Points[idx].Label = label
		}
	}

	return out, nil
}

// normalCosTolerance converts normal_importance into the minimum |cos| two
// normals must share. Non-positive importance disables the normal test.
func normalCosTolerance(importance float64) float64 {
	if importance <= 0 {
		return -1
	}
	angle := baseNormalTolerance / importance
	if angle >= math.Pi/2 {
		return -1
	}
	return math.Cos(angle)
}

// Verify at compile time that *RegionGrowing implements Engine.
var _ Engine = (*RegionGrowing)(nil)
