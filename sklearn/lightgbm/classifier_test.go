package lightgbm

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/hotelres/core/model"
	"github.com/YuminosukeSato/hotelres/pkg/errors"
)

func TestLGBMClassifierFitPredict(t *testing.T) {
	X, y := separableData(100)

	clf := NewLGBMClassifier().WithNumIterations(30).WithFeatureNames([]string{"lead_time", "noise"})
	require.NoError(t, clf.Fit(X, y))
	assert.True(t, clf.State.IsFitted())

	proba, err := clf.PredictProba(X)
	require.NoError(t, err)
	rows, cols := proba.Dims()
	assert.Equal(t, 100, rows)
	assert.Equal(t, 2, cols)
	for i := 0; i < rows; i++ {
		assert.InDelta(t, 1.0, proba.At(i, 0)+proba.At(i, 1), 1e-12)
	}

	pred, err := clf.Predict(X)
	require.NoError(t, err)
	assert.Equal(t, 0.0, pred.At(0, 0))
	assert.Equal(t, 1.0, pred.At(99, 0))

	acc, err := clf.Score(X, y)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, acc, 0.95)

	auc, err := clf.ScoreWith("roc_auc", X, y)
	require.NoError(t, err)
	assert.Greater(t, auc, 0.95)

	importance, err := clf.FeatureImportance("gain")
	require.NoError(t, err)
	require.Len(t, importance, 2)
	assert.Greater(t, importance[0], importance[1])
	assert.Equal(t, []string{"lead_time", "noise"}, clf.Model.FeatureNames)
}

func TestLGBMClassifierErrors(t *testing.T) {
	X, y := separableData(40)
	clf := NewLGBMClassifier()

	_, err := clf.Predict(X)
	var nf *errors.NotFittedError
	assert.True(t, errors.As(err, &nf))

	_, err = clf.FeatureImportance("gain")
	assert.True(t, errors.As(err, &nf))

	bad := mat.DenseCopyOf(y)
	bad.Set(3, 0, 2)
	var ve *errors.ValidationError
	assert.True(t, errors.As(clf.Fit(X, bad), &ve))

	require.NoError(t, clf.Fit(X, y))
	_, err = clf.Predict(mat.NewDense(2, 3, nil))
	var de *errors.DimensionError
	assert.True(t, errors.As(err, &de))

	_, err = clf.ScoreWith("log_loss", X, y)
	assert.Error(t, err)
	_, err = clf.FeatureImportance("cover")
	assert.Error(t, err)
}

func TestLGBMClassifierTinyAndSingleClassData(t *testing.T) {
	X := mat.NewDense(3, 2, []float64{1, 2, 3, 4, 5, 6})

	clf := NewLGBMClassifier().WithNumIterations(5)
	require.NoError(t, clf.Fit(X, mat.NewDense(3, 1, []float64{0, 1, 0})))
	_, err := clf.Predict(X)
	require.NoError(t, err)

	single := NewLGBMClassifier().WithNumIterations(5)
	require.NoError(t, single.Fit(X, mat.NewDense(3, 1, []float64{0, 0, 0})))
	pred, err := single.Predict(X)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		assert.Equal(t, 0.0, pred.At(i, 0))
	}
}

func TestLGBMClassifierParams(t *testing.T) {
	clf := NewLGBMClassifier()
	require.NoError(t, clf.SetParams(map[string]interface{}{
		"n_estimators":  250,
		"max_depth":     12.0,
		"learning_rate": 0.05,
		"num_leaves":    int64(40),
		"boosting_type": "goss",
	}))

	params := clf.GetParams()
	assert.Equal(t, 250, params["n_estimators"])
	assert.Equal(t, 12, params["max_depth"])
	assert.Equal(t, 0.05, params["learning_rate"])
	assert.Equal(t, 40, params["num_leaves"])
	assert.Equal(t, "goss", params["boosting_type"])

	var ve *errors.ValidationError
	assert.True(t, errors.As(clf.SetParams(map[string]interface{}{"colour": 1}), &ve))
	assert.Error(t, clf.SetParams(map[string]interface{}{"max_depth": 1.5}))
	assert.Error(t, clf.SetParams(map[string]interface{}{"boosting_type": "dart"}))
	assert.Error(t, clf.SetParams(map[string]interface{}{"learning_rate": "fast"}))
}

func TestLGBMClassifierBuilderAndEarlyStopping(t *testing.T) {
	X, y := separableData(80)
	clf := NewLGBMClassifier().
		WithNumIterations(200).
		WithLearningRate(0.3).
		WithMaxDepth(3).
		WithNumLeaves(4).
		WithMinChildSamples(5).
		WithEarlyStopping(3, "binary_logloss")

	params := clf.GetParams()
	assert.Equal(t, 0.3, params["learning_rate"])
	assert.Equal(t, 3, params["max_depth"])
	assert.Equal(t, 4, params["num_leaves"])
	assert.Equal(t, 3, params["early_stopping_rounds"])
	assert.Equal(t, "binary_logloss", params["eval_metric"])

	require.NoError(t, clf.FitWithValidation(X, y, X, y))
	assert.LessOrEqual(t, len(clf.Model.Trees), 200)

	acc, err := clf.Score(X, y)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, acc, 0.95)
}

func TestLGBMClassifierClone(t *testing.T) {
	X, y := separableData(40)
	clf := NewLGBMClassifier().WithNumIterations(3).WithMinChildSamples(5)
	require.NoError(t, clf.Fit(X, y))

	c := clf.Clone()
	assert.Nil(t, c.Model)
	assert.False(t, c.State.IsFitted())
	assert.Equal(t, clf.GetParams(), c.GetParams())
	assert.True(t, clf.State.IsFitted(), "cloning must not touch the original")
}

func TestLGBMClassifierGobRoundTrip(t *testing.T) {
	X, y := separableData(80)
	clf := NewLGBMClassifier().WithNumIterations(10).WithMinChildSamples(5)
	require.NoError(t, clf.Fit(X, y))

	path := filepath.Join(t.TempDir(), "model.gob")
	require.NoError(t, model.SaveModel(clf, path))

	loaded := &LGBMClassifier{}
	require.NoError(t, model.LoadModel(loaded, path))

	want, err := clf.PredictProba(X)
	require.NoError(t, err)
	got, err := loaded.PredictProba(X)
	require.NoError(t, err)
	assert.True(t, mat.EqualApprox(want, got, 1e-12))
}
