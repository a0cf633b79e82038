// Package metrics は分類モデルの評価指標を提供します。
package metrics

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/hotelres/pkg/errors"
)

// 評価レポートのキー
const (
	KeyAccuracy  = "accuracy"
	KeyPrecision = "precision"
	KeyRecall    = "recall"
	KeyF1        = "f1"
	KeyROCAUC    = "roc_auc"
)

// checkPair は2つのベクトルが空でなく同じ長さかを検証する
func checkPair(op string, yTrue, yPred *mat.VecDense) (int, error) {
	if yTrue == nil || yPred == nil || yTrue.Len() == 0 {
		return 0, errors.NewValueError(op, "empty vector")
	}
	n := yTrue.Len()
	if yPred.Len() != n {
		return 0, errors.NewDimensionError(op, n, yPred.Len(), 0)
	}
	return n, nil
}

func checkBinaryLabels(op string, y *mat.VecDense) error {
	for i := 0; i < y.Len(); i++ {
		if v := y.AtVec(i); v != 0 && v != 1 {
			return errors.NewValueError(op, "labels must be 0 or 1")
		}
	}
	return nil
}

// Accuracy は正解率を計算する（多クラスでも可）
func Accuracy(yTrue, yPred *mat.VecDense) (float64, error) {
	n, err := checkPair("Accuracy", yTrue, yPred)
	if err != nil {
		return 0, err
	}
	correct := 0
	for i := 0; i < n; i++ {
		if yTrue.AtVec(i) == yPred.AtVec(i) {
			correct++
		}
	}
	return float64(correct) / float64(n), nil
}

// ClassificationError は誤分類率（1 - Accuracy）を計算する
func ClassificationError(yTrue, yPred *mat.VecDense) (float64, error) {
	acc, err := Accuracy(yTrue, yPred)
	if err != nil {
		return 0, err
	}
	return 1 - acc, nil
}

// ConfusionMatrix は二値分類の混同行列 [[TN, FP], [FN, TP]] を返す
func ConfusionMatrix(yTrue, yPred *mat.VecDense) (*mat.Dense, error) {
	n, err := checkPair("ConfusionMatrix", yTrue, yPred)
	if err != nil {
		return nil, err
	}
	if err := checkBinaryLabels("ConfusionMatrix", yTrue); err != nil {
		return nil, err
	}
	if err := checkBinaryLabels("ConfusionMatrix", yPred); err != nil {
		return nil, err
	}
	cm := mat.NewDense(2, 2, nil)
	for i := 0; i < n; i++ {
		t, p := int(yTrue.AtVec(i)), int(yPred.AtVec(i))
		cm.Set(t, p, cm.At(t, p)+1)
	}
	return cm, nil
}

// Precision は陽性クラス(1)の適合率 TP/(TP+FP) を計算する。
// 陽性の予測が一つもない場合は0を返し、UndefinedMetricWarningを発生させる。
func Precision(yTrue, yPred *mat.VecDense) (float64, error) {
	cm, err := ConfusionMatrix(yTrue, yPred)
	if err != nil {
		return 0, err
	}
	tp, fp := cm.At(1, 1), cm.At(0, 1)
	if tp+fp == 0 {
		errors.Warn(errors.NewUndefinedMetricWarning(KeyPrecision, "no predicted samples", 0))
		return 0, nil
	}
	return tp / (tp + fp), nil
}

// Recall は陽性クラス(1)の再現率 TP/(TP+FN) を計算する。
// 正解に陽性が一つもない場合は0を返し、UndefinedMetricWarningを発生させる。
func Recall(yTrue, yPred *mat.VecDense) (float64, error) {
	cm, err := ConfusionMatrix(yTrue, yPred)
	if err != nil {
		return 0, err
	}
	tp, fn := cm.At(1, 1), cm.At(1, 0)
	if tp+fn == 0 {
		errors.Warn(errors.NewUndefinedMetricWarning(KeyRecall, "no true samples", 0))
		return 0, nil
	}
	return tp / (tp + fn), nil
}

// F1Score は適合率と再現率の調和平均を計算する
func F1Score(yTrue, yPred *mat.VecDense) (float64, error) {
	cm, err := ConfusionMatrix(yTrue, yPred)
	if err != nil {
		return 0, err
	}
	tp, fp, fn := cm.At(1, 1), cm.At(0, 1), cm.At(1, 0)
	denom := 2*tp + fp + fn
	if denom == 0 {
		errors.Warn(errors.NewUndefinedMetricWarning(KeyF1, "no true nor predicted samples", 0))
		return 0, nil
	}
	return 2 * tp / denom, nil
}

// AUC はROC曲線下面積を計算する。
// 同順位のスコアは平均順位で扱う（台形則と同値）。
// 正解ラベルが1クラスしかない場合は定義できないため0.5を返す。
func AUC(yTrue, yScore *mat.VecDense) (float64, error) {
	n, err := checkPair("AUC", yTrue, yScore)
	if err != nil {
		return 0, err
	}
	if err := checkBinaryLabels("AUC", yTrue); err != nil {
		return 0, err
	}

	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return yScore.AtVec(idx[a]) < yScore.AtVec(idx[b])
	})

	// 平均順位（1始まり）
	var nPos, nNeg, rankSumPos float64
	for i := 0; i < n; {
		j := i
		for j+1 < n && yScore.AtVec(idx[j+1]) == yScore.AtVec(idx[i]) {
			j++
		}
		avgRank := float64(i+j)/2 + 1
		for k := i; k <= j; k++ {
			if yTrue.AtVec(idx[k]) == 1 {
				rankSumPos += avgRank
				nPos++
			} else {
				nNeg++
			}
		}
		i = j + 1
	}

	if nPos == 0 || nNeg == 0 {
		errors.Warn(errors.NewUndefinedMetricWarning(KeyROCAUC, "only one class present in y_true", 0.5))
		return 0.5, nil
	}
	return (rankSumPos - nPos*(nPos+1)/2) / (nPos * nNeg), nil
}

// AUCMatrix は行列入力（先頭列を使用）に対してAUCを計算する
func AUCMatrix(yTrue, yScore mat.Matrix) (float64, error) {
	t, err := firstColumn("AUCMatrix", yTrue)
	if err != nil {
		return 0, err
	}
	s, err := firstColumn("AUCMatrix", yScore)
	if err != nil {
		return 0, err
	}
	return AUC(t, s)
}

func firstColumn(op string, m mat.Matrix) (*mat.VecDense, error) {
	if m == nil {
		return nil, errors.NewValueError(op, "nil matrix")
	}
	r, c := m.Dims()
	if r == 0 || c == 0 {
		return nil, errors.NewValueError(op, "empty matrix")
	}
	return mat.NewVecDense(r, mat.Col(nil, 0, m)), nil
}

// ROCCurve は閾値を降順に動かしたときの偽陽性率と真陽性率を返す。
// 先頭は (0, 0)、閾値は +Inf から始まる。
func ROCCurve(yTrue, yScore *mat.VecDense) (fpr, tpr, thresholds []float64, err error) {
	n, err := checkPair("ROCCurve", yTrue, yScore)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := checkBinaryLabels("ROCCurve", yTrue); err != nil {
		return nil, nil, nil, err
	}

	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return yScore.AtVec(idx[a]) > yScore.AtVec(idx[b])
	})

	var nPos, nNeg float64
	for i := 0; i < n; i++ {
		if yTrue.AtVec(i) == 1 {
			nPos++
		} else {
			nNeg++
		}
	}

	fpr = []float64{0}
	tpr = []float64{0}
	thresholds = []float64{math.Inf(1)}
	var tp, fp float64
	for i := 0; i < n; i++ {
		if yTrue.AtVec(idx[i]) == 1 {
			tp++
		} else {
			fp++
		}
		// 同じスコアが続く間は点を打たない
		if i+1 < n && yScore.AtVec(idx[i+1]) == yScore.AtVec(idx[i]) {
			continue
		}
		fpr = append(fpr, errors.SafeDivide(fp, nNeg))
		tpr = append(tpr, errors.SafeDivide(tp, nPos))
		thresholds = append(thresholds, yScore.AtVec(idx[i]))
	}
	return fpr, tpr, thresholds, nil
}

// BinaryLogLoss は二値交差エントロピーを計算する。
// 予測確率は log(0) を避けるため [eps, 1-eps] にクリップする。
func BinaryLogLoss(yTrue, yProb *mat.VecDense) (float64, error) {
	n, err := checkPair("BinaryLogLoss", yTrue, yProb)
	if err != nil {
		return 0, err
	}
	if err := checkBinaryLabels("BinaryLogLoss", yTrue); err != nil {
		return 0, err
	}
	const eps = 1e-15
	var sum float64
	for i := 0; i < n; i++ {
		p := errors.ClipValue(yProb.AtVec(i), eps, 1-eps)
		if yTrue.AtVec(i) == 1 {
			sum -= math.Log(p)
		} else {
			sum -= math.Log(1 - p)
		}
	}
	return sum / float64(n), nil
}

// ClassificationReport は二値分類の主要指標をまとめて返す。
// yPred はクラスラベル、yProb は陽性クラスの確率。
// すべての値は [0, 1] に収まる。
func ClassificationReport(yTrue, yPred, yProb *mat.VecDense) (map[string]float64, error) {
	acc, err := Accuracy(yTrue, yPred)
	if err != nil {
		return nil, err
	}
	prec, err := Precision(yTrue, yPred)
	if err != nil {
		return nil, err
	}
	rec, err := Recall(yTrue, yPred)
	if err != nil {
		return nil, err
	}
	f1, err := F1Score(yTrue, yPred)
	if err != nil {
		return nil, err
	}
	auc, err := AUC(yTrue, yProb)
	if err != nil {
		return nil, err
	}
	return map[string]float64{
		KeyAccuracy:  acc,
		KeyPrecision: prec,
		KeyRecall:    rec,
		KeyF1:        f1,
		KeyROCAUC:    auc,
	}, nil
}

// ColumnVector は行列の先頭列をベクトルとして返す
func ColumnVector(m mat.Matrix) *mat.VecDense {
	return mat.NewVecDense(rowsOf(m), mat.Col(nil, 0, m))
}

func rowsOf(m mat.Matrix) int {
	r, _ := m.Dims()
	return r
}
