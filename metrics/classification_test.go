package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/hotelres/pkg/errors"
)

func vec(v []float64) *mat.VecDense {
	if len(v) == 0 {
		return nil
	}
	return mat.NewVecDense(len(v), v)
}

func TestAUC(t *testing.T) {
	tests := []struct {
		name    string
		yTrue   []float64
		yPred   []float64
		want    float64
		wantErr bool
	}{
		{name: "Perfect classifier", yTrue: []float64{0, 0, 0, 1, 1, 1}, yPred: []float64{0.1, 0.2, 0.3, 0.7, 0.8, 0.9}, want: 1.0},
		{name: "Worst classifier", yTrue: []float64{0, 0, 0, 1, 1, 1}, yPred: []float64{0.9, 0.8, 0.7, 0.3, 0.2, 0.1}, want: 0.0},
		{name: "Random classifier", yTrue: []float64{0, 1, 0, 1}, yPred: []float64{0.5, 0.5, 0.5, 0.5}, want: 0.5},
		{name: "Typical case", yTrue: []float64{0, 0, 1, 1}, yPred: []float64{0.1, 0.4, 0.35, 0.8}, want: 0.75},
		{name: "All positive labels", yTrue: []float64{1, 1, 1, 1}, yPred: []float64{0.1, 0.4, 0.35, 0.8}, want: 0.5},
		{name: "All negative labels", yTrue: []float64{0, 0, 0, 0}, yPred: []float64{0.1, 0.4, 0.35, 0.8}, want: 0.5},
		{name: "Non-binary labels", yTrue: []float64{0, 0.5, 1}, yPred: []float64{0.1, 0.5, 0.9}, wantErr: true},
		{name: "Dimension mismatch", yTrue: []float64{0, 1}, yPred: []float64{0.5}, wantErr: true},
		{name: "Empty vectors", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := AUC(vec(tt.yTrue), vec(tt.yPred))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestAUCMatrix(t *testing.T) {
	got, err := AUCMatrix(
		mat.NewDense(4, 2, []float64{0, 9, 0, 9, 1, 9, 1, 9}),
		mat.NewDense(4, 2, []float64{0.1, 9, 0.4, 9, 0.35, 9, 0.8, 9}),
	)
	require.NoError(t, err)
	assert.InDelta(t, 0.75, got, 1e-9)

	_, err = AUCMatrix(nil, mat.NewDense(1, 1, []float64{0.5}))
	assert.Error(t, err)
	_, err = AUCMatrix(&mat.Dense{}, &mat.Dense{})
	assert.Error(t, err)
}

func TestAccuracyAndError(t *testing.T) {
	yTrue := vec([]float64{0, 1, 2, 1, 0})
	yPred := vec([]float64{0, 1, 1, 1, 0})

	acc, err := Accuracy(yTrue, yPred)
	require.NoError(t, err)
	assert.InDelta(t, 0.8, acc, 1e-9)

	e, err := ClassificationError(yTrue, yPred)
	require.NoError(t, err)
	assert.InDelta(t, 0.2, e, 1e-9)

	_, err = Accuracy(nil, nil)
	assert.Error(t, err)
	_, err = Accuracy(vec([]float64{0, 1}), vec([]float64{0}))
	var de *errors.DimensionError
	assert.True(t, errors.As(err, &de))
}

func TestBinaryClassificationMetrics(t *testing.T) {
	// TN=2 FP=1 FN=1 TP=2
	yTrue := vec([]float64{0, 0, 0, 1, 1, 1})
	yPred := vec([]float64{0, 0, 1, 0, 1, 1})

	cm, err := ConfusionMatrix(yTrue, yPred)
	require.NoError(t, err)
	assert.Equal(t, []float64{2, 1, 1, 2}, cm.RawMatrix().Data)

	p, err := Precision(yTrue, yPred)
	require.NoError(t, err)
	assert.InDelta(t, 2.0/3.0, p, 1e-9)

	r, err := Recall(yTrue, yPred)
	require.NoError(t, err)
	assert.InDelta(t, 2.0/3.0, r, 1e-9)

	f1, err := F1Score(yTrue, yPred)
	require.NoError(t, err)
	assert.InDelta(t, 2.0/3.0, f1, 1e-9)

	_, err = Precision(vec([]float64{0, 2}), vec([]float64{0, 1}))
	assert.Error(t, err)
}

func TestUndefinedMetricsWarnAndReturnZero(t *testing.T) {
	var warnings []error
	errors.SetWarningHandler(func(w error) { warnings = append(warnings, w) })
	t.Cleanup(func() { errors.SetWarningHandler(nil) })

	yTrue := vec([]float64{0, 0, 0})
	yPred := vec([]float64{0, 0, 0})

	p, err := Precision(yTrue, yPred)
	require.NoError(t, err)
	assert.Zero(t, p)

	r, err := Recall(yTrue, yPred)
	require.NoError(t, err)
	assert.Zero(t, r)

	f1, err := F1Score(yTrue, yPred)
	require.NoError(t, err)
	assert.Zero(t, f1)

	require.Len(t, warnings, 3)
	var umw *errors.UndefinedMetricWarning
	require.True(t, errors.As(warnings[0], &umw))
	assert.Equal(t, KeyPrecision, umw.Metric)
}

func TestROCCurve(t *testing.T) {
	fpr, tpr, thr, err := ROCCurve(vec([]float64{0, 0, 1, 1}), vec([]float64{0.1, 0.4, 0.35, 0.8}))
	require.NoError(t, err)

	assert.Equal(t, []float64{0, 0, 0.5, 0.5, 1}, fpr)
	assert.Equal(t, []float64{0, 0.5, 0.5, 1, 1}, tpr)
	assert.Equal(t, []float64{0.8, 0.4, 0.35, 0.1}, thr[1:])

	// ties collapse into one point
	fpr, tpr, _, err = ROCCurve(vec([]float64{0, 1, 0, 1}), vec([]float64{0.5, 0.5, 0.5, 0.5}))
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 1}, fpr)
	assert.Equal(t, []float64{0, 1}, tpr)
}

func TestBinaryLogLoss(t *testing.T) {
	tests := []struct {
		name    string
		yTrue   []float64
		yPred   []float64
		want    float64
		wantErr bool
	}{
		{name: "Perfect predictions", yTrue: []float64{0, 0, 1, 1}, yPred: []float64{0, 0, 1, 1}, want: 0.0},
		{name: "Typical case", yTrue: []float64{0, 0, 1, 1}, yPred: []float64{0.1, 0.2, 0.8, 0.9}, want: 0.164252},
		{name: "Worst predictions", yTrue: []float64{0, 0, 1, 1}, yPred: []float64{0.9, 0.9, 0.1, 0.1}, want: 2.3025851},
		{name: "Non-binary labels", yTrue: []float64{0, 0.5, 1}, yPred: []float64{0.1, 0.5, 0.9}, wantErr: true},
		{name: "Empty vectors", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := BinaryLogLoss(vec(tt.yTrue), vec(tt.yPred))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-3)
		})
	}
}

func TestClassificationReport(t *testing.T) {
	yTrue := vec([]float64{0, 0, 1, 1, 1, 0})
	yPred := vec([]float64{0, 1, 1, 1, 0, 0})
	yProb := vec([]float64{0.2, 0.6, 0.9, 0.7, 0.4, 0.1})

	report, err := ClassificationReport(yTrue, yPred, yProb)
	require.NoError(t, err)

	for _, key := range []string{KeyAccuracy, KeyPrecision, KeyRecall, KeyF1, KeyROCAUC} {
		v, ok := report[key]
		require.True(t, ok, key)
		assert.GreaterOrEqual(t, v, 0.0, key)
		assert.LessOrEqual(t, v, 1.0, key)
	}
	assert.InDelta(t, 4.0/6.0, report[KeyAccuracy], 1e-9)
	assert.InDelta(t, 8.0/9.0, report[KeyROCAUC], 1e-9)
}

func TestColumnVector(t *testing.T) {
	v := ColumnVector(mat.NewDense(3, 2, []float64{1, 9, 2, 9, 3, 9}))
	assert.Equal(t, []float64{1, 2, 3}, v.RawVector().Data)
}

func BenchmarkAUC(b *testing.B) {
	n := 1000
	yTrue := make([]float64, n)
	yPred := make([]float64, n)
	for i := 0; i < n; i++ {
		if i >= n/2 {
			yTrue[i] = 1
		}
		yPred[i] = float64(i) / float64(n)
	}
	yTrueVec := vec(yTrue)
	yPredVec := vec(yPred)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = AUC(yTrueVec, yPredVec)
	}
}
