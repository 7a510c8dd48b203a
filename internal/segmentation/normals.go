package segmentation

import (
	"github.com/banshee-data/cloudseg/internal/cloud"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// minNormalNeighbours is the smallest neighbourhood that defines a plane.
const minNormalNeighbours = 3

// surfaceEstimate is the local plane fit for one point.
type surfaceEstimate struct {
	Normal    [3]float64
	Curvature float64 // λ0 / (λ0 + λ1 + λ2), 0 for a perfect plane
	Valid     bool
}

// estimateSurfaces fits a plane to the neighbourhood of every point using
// the covariance of its neighbours. The normal is the eigenvector of the
// smallest eigenvalue.
func estimateSurfaces(points []cloud.Point, si *SpatialIndex, radius float64) []surfaceEstimate {
	out := make([]surfaceEstimate, len(points))

	var (
		neighbours []int
		cov        = mat.NewSymDense(3, nil)
		eig        mat.EigenSym
		vecs       mat.Dense
		vals       = make([]float64, 3)
	)

	for i := range points {
		neighbours = si.RegionQuery(points, i, radius, neighbours)
		if len(neighbours) < minNormalNeighbours {
			continue
		}

		data := mat.NewDense(len(neighbours), 3, nil)
		for row, idx := range neighbours {
			p := points[idx]
			data.Set(row, 0, float64(p.X))
			data.Set(row, 1, float64(p.Y))
			data.Set(row, 2, float64(p.Z))
		}
		stat.CovarianceMatrix(cov, data, nil)

		if ok := eig.Factorize(cov, true); !ok {
			continue
		}
		eig.Values(vals)
		eig.VectorsTo(&vecs)

		sum := vals[0] + vals[1] + vals[2]
		var curvature float64
		if sum > 0 {
			curvature = vals[0] / sum
		}

		out[i] = surfaceEstimate{
			Normal:    [3]float64{vecs.At(0, 0), vecs.At(1, 0), vecs.At(2, 0)},
			Curvature: curvature,
			Valid:     true,
		}
	}

	return out
}

func absDot(a, b [3]float64) float64 {
	d := a[0]*b[0] + a[1]*b[1] + a[2]*b[2]
	if d < 0 {
		return -d
	}
	return d
}
