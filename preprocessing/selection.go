package preprocessing

import (
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/hotelres/core/model"
	"github.com/YuminosukeSato/hotelres/pkg/errors"
	"github.com/YuminosukeSato/hotelres/sklearn/lightgbm"
)

// SelectKBest はランダムフォレスト（rfモードのブースター）のgain重要度で特徴量を順位付けし、上位K個を選ぶ
type SelectKBest struct {
	State *model.StateManager

	K int

	// Selectable が空でなければ、この中からのみ選ぶ
	Selectable []string

	RandomState   int
	NumIterations int

	// Importance は Fit に渡した列順の正規化済み重要度
	Importance []float64

	// Selected は重要度の高い順に並んだ選択済みの列名
	Selected []string
}

// NewSelectKBest は新しいSelectKBestを作成する
func NewSelectKBest(k, randomState int) *SelectKBest {
	return &SelectKBest{
		State:         model.NewStateManager(),
		K:             k,
		RandomState:   randomState,
		NumIterations: 100,
	}
}

// Fit は X（列名 columns）と二値ラベル y から選択する列を決める
func (s *SelectKBest) Fit(X, y mat.Matrix, columns []string) error {
	_, cols := X.Dims()
	if len(columns) != cols {
		return errors.NewDimensionError("SelectKBest.Fit", cols, len(columns), 1)
	}
	if s.K < 1 {
		return errors.NewValidationError("no_of_features", "must be at least 1", s.K)
	}

	allowed := make(map[string]bool, len(s.Selectable))
	for _, name := range s.Selectable {
		allowed[name] = true
	}
	if len(allowed) > 0 {
		found := false
		for _, c := range columns {
			if allowed[c] {
				found = true
				break
			}
		}
		if !found {
			return errors.NewValidationError("selectable_features", "none of the features are present", s.Selectable)
		}
	}

	forest := lightgbm.NewLGBMClassifier().
		WithBoostingType(string(lightgbm.RF)).
		WithSubsample(0.8, 1).
		WithColsampleBytree(0.8).
		WithNumIterations(s.NumIterations).
		WithRandomState(s.RandomState)
	if err := forest.Fit(X, y); err != nil {
		return errors.Wrap(err, "SelectKBest.Fit")
	}
	importance, err := forest.FeatureImportance("gain")
	if err != nil {
		return err
	}

	order := make([]int, 0, cols)
	for j, c := range columns {
		if len(allowed) == 0 || allowed[c] {
			order = append(order, j)
		}
	}
	sort.SliceStable(order, func(a, b int) bool { return importance[order[a]] > importance[order[b]] })
	if len(order) > s.K {
		order = order[:s.K]
	}

	s.Importance = importance
	s.Selected = make([]string, len(order))
	for i, j := range order {
		s.Selected[i] = columns[j]
	}
	if s.State == nil {
		s.State = model.NewStateManager()
	}
	rows, _ := X.Dims()
	s.State.SetDimensions(cols, rows)
	s.State.SetFitted()
	return nil
}
