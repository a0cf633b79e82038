package preprocessing

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/YuminosukeSato/hotelres/core/model"
	"github.com/YuminosukeSato/hotelres/pkg/errors"
)

// SkewTransformer は歪度が閾値を超える列に log1p を適用する。
// 歪度はバイアス補正済みの標本歪度（pandas の skew と同じ値）。
type SkewTransformer struct {
	State *model.StateManager

	Threshold float64

	// Skewness は Fit 時の列ごとの歪度。定数列は 0
	Skewness []float64

	// Mask[j] が true の列が log1p の対象
	Mask []bool
}

var _ model.Transformer = (*SkewTransformer)(nil)

// NewSkewTransformer は新しいSkewTransformerを作成する
func NewSkewTransformer(threshold float64) *SkewTransformer {
	return &SkewTransformer{State: model.NewStateManager(), Threshold: threshold}
}

// Fit は列ごとの歪度を計算し、変換対象の列を決める
func (s *SkewTransformer) Fit(X mat.Matrix) error {
	r, c := X.Dims()
	if r == 0 || c == 0 {
		return errors.NewModelError("SkewTransformer.Fit", "empty data", errors.ErrEmptyData)
	}

	s.Skewness = make([]float64, c)
	s.Mask = make([]bool, c)
	col := make([]float64, r)
	for j := 0; j < c; j++ {
		mat.Col(col, j, X)
		skew := stat.Skew(col, nil)
		if math.IsNaN(skew) || math.IsInf(skew, 0) {
			skew = 0
		}
		s.Skewness[j] = skew
		s.Mask[j] = skew > s.Threshold
	}

	if s.State == nil {
		s.State = model.NewStateManager()
	}
	s.State.SetDimensions(c, r)
	s.State.SetFitted()
	return nil
}

// Transform は対象列に log1p を適用する。対象列に -1 以下の値があればエラー
func (s *SkewTransformer) Transform(X mat.Matrix) (mat.Matrix, error) {
	if s.State == nil {
		return nil, errors.NewNotFittedError("SkewTransformer", "Transform")
	}
	if err := s.State.RequireFitted("SkewTransformer", "Transform"); err != nil {
		return nil, err
	}
	r, c := X.Dims()
	if err := s.State.RequireFeatures("SkewTransformer.Transform", c); err != nil {
		return nil, err
	}

	out := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			v := X.At(i, j)
			if s.Mask[j] {
				if v <= -1 {
					return nil, errors.NewValidationError("X", "log1p needs values greater than -1", v)
				}
				v = math.Log1p(v)
			}
			out.Set(i, j, v)
		}
	}
	return out, nil
}

// FitTransform はFitとTransformを同時に実行する
func (s *SkewTransformer) FitTransform(X mat.Matrix) (mat.Matrix, error) {
	if err := s.Fit(X); err != nil {
		return nil, err
	}
	return s.Transform(X)
}

// Selected は列名のうち変換対象になったものを返す
func (s *SkewTransformer) Selected(columns []string) []string {
	var out []string
	for j, m := range s.Mask {
		if m && j < len(columns) {
			out = append(out, columns[j])
		}
	}
	return out
}
