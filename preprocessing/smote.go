package preprocessing

import (
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/hotelres/core/parallel"
	"github.com/YuminosukeSato/hotelres/pkg/errors"
	"github.com/YuminosukeSato/hotelres/pkg/log"
)

// SMOTE は少数クラスを合成サンプルで多数クラスの件数まで増やす。
// 合成サンプルは少数クラスのサンプルと、その k 近傍の一つとの間を線形補間して作る。
type SMOTE struct {
	KNeighbors  int
	RandomState int

	// ScaleNeighbors が true の場合、近傍探索は標準化した空間で行う。
	// 補間そのものは元のスケールで行う。
	ScaleNeighbors bool
}

// NewSMOTE は imbalanced-learn と同じ既定値 (k=5) でSMOTEを作成する
func NewSMOTE(kNeighbors, randomState int) *SMOTE {
	if kNeighbors < 1 {
		kNeighbors = 5
	}
	return &SMOTE{KNeighbors: kNeighbors, RandomState: randomState}
}

// FitResample は X, y に合成サンプルを追加した新しい行列を返す。
// 元の行がそのまま先頭に並び、その後にクラスラベル昇順で合成サンプルが続く。
func (s *SMOTE) FitResample(X, y mat.Matrix) (*mat.Dense, *mat.Dense, error) {
	rows, cols := X.Dims()
	yRows, _ := y.Dims()
	if rows == 0 {
		return nil, nil, errors.NewModelError("SMOTE.FitResample", "empty data", errors.ErrEmptyData)
	}
	if rows != yRows {
		return nil, nil, errors.NewDimensionError("SMOTE.FitResample", rows, yRows, 0)
	}

	byClass := make(map[float64][]int)
	for i := 0; i < rows; i++ {
		byClass[y.At(i, 0)] = append(byClass[y.At(i, 0)], i)
	}
	labels := make([]float64, 0, len(byClass))
	majority := 0
	for label, idx := range byClass {
		labels = append(labels, label)
		if len(idx) > majority {
			majority = len(idx)
		}
	}
	sort.Float64s(labels)

	space := X
	if s.ScaleNeighbors {
		scaled, err := NewStandardScalerDefault().FitTransform(X)
		if err != nil {
			return nil, nil, err
		}
		space = scaled
	}

	rng := rand.New(rand.NewPCG(uint64(s.RandomState), uint64(s.RandomState)))
	var synthX [][]float64
	var synthY []float64

	logger := log.GetLoggerWithName("preprocessing.smote")
	for _, label := range labels {
		members := byClass[label]
		need := majority - len(members)
		if need == 0 {
			continue
		}

		k := s.KNeighbors
		if k > len(members)-1 {
			k = len(members) - 1
		}
		logger.Debug("Oversampling class",
			"class", label, "members", len(members), "synthetic", need, "k", k)

		if k == 0 {
			// 1件しかないクラスは複製する
			row := mat.Row(nil, members[0], X)
			for n := 0; n < need; n++ {
				synthX = append(synthX, append([]float64(nil), row...))
				synthY = append(synthY, label)
			}
			continue
		}

		neighbors := nearestNeighbors(space, members, k)
		a := make([]float64, cols)
		b := make([]float64, cols)
		for n := 0; n < need; n++ {
			i := rng.IntN(len(members))
			j := neighbors[i][rng.IntN(k)]
			gap := rng.Float64()

			mat.Row(a, members[i], X)
			mat.Row(b, j, X)
			sample := make([]float64, cols)
			for f := range sample {
				sample[f] = a[f] + gap*(b[f]-a[f])
			}
			synthX = append(synthX, sample)
			synthY = append(synthY, label)
		}
	}

	total := rows + len(synthX)
	outX := mat.NewDense(total, cols, nil)
	outY := mat.NewDense(total, 1, nil)
	row := make([]float64, cols)
	for i := 0; i < rows; i++ {
		mat.Row(row, i, X)
		outX.SetRow(i, row)
		outY.Set(i, 0, y.At(i, 0))
	}
	for n, sample := range synthX {
		outX.SetRow(rows+n, sample)
		outY.Set(rows+n, 0, synthY[n])
	}
	return outX, outY, nil
}

// nearestNeighbors returns, for every member, the row indices of its k
// nearest other members. Ties go to the lower row index.
func nearestNeighbors(X mat.Matrix, members []int, k int) [][]int {
	_, cols := X.Dims()
	points := make([][]float64, len(members))
	for i, m := range members {
		points[i] = mat.Row(make([]float64, cols), m, X)
	}

	out := make([][]int, len(members))
	parallel.ParallelizeWithThreshold(len(members), 256, func(start, end int) {
		type cand struct {
			dist float64
			row  int
		}
		for i := start; i < end; i++ {
			best := make([]cand, 0, k+1)
			for j := range members {
				if j == i {
					continue
				}
				c := cand{dist: floats.Distance(points[i], points[j], 2), row: members[j]}
				pos := sort.Search(len(best), func(p int) bool {
					return best[p].dist > c.dist || (best[p].dist == c.dist && best[p].row > c.row)
				})
				if pos >= k {
					continue
				}
				best = append(best, cand{})
				copy(best[pos+1:], best[pos:])
				best[pos] = c
				if len(best) > k {
					best = best[:k]
				}
			}
			idx := make([]int, len(best))
			for p, c := range best {
				idx[p] = c.row
			}
			out[i] = idx
		}
	})
	return out
}
