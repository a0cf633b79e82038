// Package preprocessing は学習前のデータ変換（エンコード、歪度補正、オーバーサンプリング、特徴量選択）を提供します。
package preprocessing

import (
	"sort"

	"github.com/YuminosukeSato/hotelres/core/model"
	"github.com/YuminosukeSato/hotelres/pkg/errors"
)

// LabelEncoder はカテゴリ文字列を 0..k-1 の整数コードに変換する。
// コードはソート済みのユニークなラベル順に割り当てられる（scikit-learn互換）。
type LabelEncoder struct {
	State *model.StateManager

	// Labels はソート済みのユニークなラベル。Labels[code] が元の値
	Labels []string
}

// NewLabelEncoder は新しいLabelEncoderを作成する
func NewLabelEncoder() *LabelEncoder {
	return &LabelEncoder{State: model.NewStateManager()}
}

// Fit はラベルの一覧を学習する
func (e *LabelEncoder) Fit(values []string) error {
	if len(values) == 0 {
		return errors.NewModelError("LabelEncoder.Fit", "empty data", errors.ErrEmptyData)
	}
	seen := make(map[string]struct{}, 8)
	labels := make([]string, 0, 8)
	for _, v := range values {
		if _, ok := seen[v]; !ok {
			seen[v] = struct{}{}
			labels = append(labels, v)
		}
	}
	sort.Strings(labels)

	e.Labels = labels
	if e.State == nil {
		e.State = model.NewStateManager()
	}
	e.State.SetDimensions(1, len(values))
	e.State.SetFitted()
	return nil
}

// Transform はラベルをコードに変換する。未知のラベルはValidationErrorになる
func (e *LabelEncoder) Transform(values []string) ([]float64, error) {
	if err := e.requireFitted("Transform"); err != nil {
		return nil, err
	}
	codes := make([]float64, len(values))
	for i, v := range values {
		code, ok := e.Lookup(v)
		if !ok {
			return nil, errors.NewValidationError("label", "previously unseen label", v)
		}
		codes[i] = code
	}
	return codes, nil
}

// Lookup は一つのラベルのコードを返す。未知のラベルなら ok は false
func (e *LabelEncoder) Lookup(label string) (code float64, ok bool) {
	i := sort.SearchStrings(e.Labels, label)
	if i < len(e.Labels) && e.Labels[i] == label {
		return float64(i), true
	}
	return 0, false
}

// FitTransform はFitとTransformを同時に実行する
func (e *LabelEncoder) FitTransform(values []string) ([]float64, error) {
	if err := e.Fit(values); err != nil {
		return nil, err
	}
	return e.Transform(values)
}

// InverseTransform はコードを元のラベルに戻す
func (e *LabelEncoder) InverseTransform(codes []float64) ([]string, error) {
	if err := e.requireFitted("InverseTransform"); err != nil {
		return nil, err
	}
	out := make([]string, len(codes))
	for i, c := range codes {
		code := int(c)
		if float64(code) != c || code < 0 || code >= len(e.Labels) {
			return nil, errors.NewValidationError("code", "out of range", c)
		}
		out[i] = e.Labels[code]
	}
	return out, nil
}

// Classes は学習済みのラベル一覧のコピーを返す
func (e *LabelEncoder) Classes() []string {
	return append([]string(nil), e.Labels...)
}

func (e *LabelEncoder) requireFitted(method string) error {
	if e.State == nil {
		return errors.NewNotFittedError("LabelEncoder", method)
	}
	return e.State.RequireFitted("LabelEncoder", method)
}

// TargetEncoder は目的変数を二値に変換する。PositiveLabel が 1、それ以外が 0
type TargetEncoder struct {
	PositiveLabel string
}

// NewTargetEncoder は新しいTargetEncoderを作成する
func NewTargetEncoder(positiveLabel string) *TargetEncoder {
	return &TargetEncoder{PositiveLabel: positiveLabel}
}

// Fit は訓練データに陽性ラベルが含まれることを確認する。
// 一つも含まれない場合は設定ミスとみなしてエラーを返す。
func (e *TargetEncoder) Fit(values []string) error {
	if len(values) == 0 {
		return errors.NewModelError("TargetEncoder.Fit", "empty data", errors.ErrEmptyData)
	}
	for _, v := range values {
		if v == e.PositiveLabel {
			return nil
		}
	}
	return errors.NewValidationError("positive_label", "label not present in the target column", e.PositiveLabel)
}

// Transform はラベルを 0/1 に変換する
func (e *TargetEncoder) Transform(values []string) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		if v == e.PositiveLabel {
			out[i] = 1
		}
	}
	return out
}
