package lightgbm

import (
	"context"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/hotelres/pkg/errors"
)

func TestStratifiedKFold(t *testing.T) {
	X, y := separableData(10)

	folds, err := NewStratifiedKFold(3, false, 0).Split(X, y)
	require.NoError(t, err)
	require.Len(t, folds, 3)

	seen := map[int]int{}
	for _, fold := range folds {
		assert.NotEmpty(t, fold.TestIndices)
		assert.Equal(t, 10, len(fold.TrainIndices)+len(fold.TestIndices))
		positives := 0
		for _, i := range fold.TestIndices {
			seen[i]++
			positives += int(y.At(i, 0))
		}
		// 5 positives over 3 folds
		assert.GreaterOrEqual(t, positives, 1)
		assert.LessOrEqual(t, positives, 2)
	}
	assert.Len(t, seen, 10, "every sample is tested exactly once")

	shuffled, err := NewStratifiedKFold(3, true, 1).Split(X, y)
	require.NoError(t, err)
	again, err := NewStratifiedKFold(3, true, 1).Split(X, y)
	require.NoError(t, err)
	assert.Equal(t, shuffled, again)

	_, err = NewStratifiedKFold(5, false, 0).Split(mat.NewDense(3, 1, nil), mat.NewDense(3, 1, nil))
	var ve *errors.ValidationError
	assert.True(t, errors.As(err, &ve))
}

func TestKFold(t *testing.T) {
	X, _ := separableData(7)
	folds, err := NewKFold(3, false, 0).Split(X, nil)
	require.NoError(t, err)
	sizes := []int{len(folds[0].TestIndices), len(folds[1].TestIndices), len(folds[2].TestIndices)}
	assert.Equal(t, []int{3, 2, 2}, sizes)
	assert.Equal(t, []int{0, 1, 2}, folds[0].TestIndices)
}

func TestCrossValidateClassifier(t *testing.T) {
	X, y := separableData(60)
	clf := NewLGBMClassifier().WithNumIterations(10).WithMinChildSamples(5)

	res, err := CrossValidateClassifier(clf, X, y, NewStratifiedKFold(3, true, 42), "accuracy")
	require.NoError(t, err)
	assert.Len(t, res.TestScores, 3)
	assert.Greater(t, res.GetMeanScore(), 0.8)
	assert.GreaterOrEqual(t, res.GetStdScore(), 0.0)
	assert.Nil(t, clf.Model, "the template estimator stays unfitted")
}

func TestDistributions(t *testing.T) {
	r := rand.New(rand.NewPCG(1, 1))
	for i := 0; i < 200; i++ {
		v := IntRange{Low: 5, High: 8}.Sample(r).(int)
		assert.GreaterOrEqual(t, v, 5)
		assert.Less(t, v, 8)

		f := FloatRange{Low: 0.01, High: 0.2}.Sample(r).(float64)
		assert.GreaterOrEqual(t, f, 0.01)
		assert.Less(t, f, 0.2)

		c := Choice{Values: []interface{}{"gbdt", "goss"}}.Sample(r)
		assert.Contains(t, []interface{}{"gbdt", "goss"}, c)
	}
	assert.Equal(t, 3, IntRange{Low: 3, High: 3}.Sample(r))
}

func searchSpace() map[string]Distribution {
	return map[string]Distribution{
		"n_estimators":  IntRange{Low: 5, High: 15},
		"max_depth":     IntRange{Low: 2, High: 6},
		"learning_rate": FloatRange{Low: 0.05, High: 0.3},
		"num_leaves":    IntRange{Low: 4, High: 16},
		"boosting_type": Choice{Values: []interface{}{"gbdt", "goss"}},
	}
}

func TestRandomizedSearchCV(t *testing.T) {
	X, y := separableData(80)

	search := NewRandomizedSearchCV(NewLGBMClassifier().WithMinChildSamples(5), searchSpace())
	search.NIter = 4
	search.CV = 3
	search.NJobs = 2
	require.NoError(t, search.Fit(context.Background(), X, y))

	require.Len(t, search.CVResults, 4)
	require.NotNil(t, search.BestEstimator)
	assert.True(t, search.BestEstimator.State.IsFitted())
	assert.Equal(t, search.CVResults[search.BestIndex].MeanTestScore, search.BestScore)
	assert.Equal(t, 1, search.CVResults[search.BestIndex].Rank)
	for _, r := range search.CVResults {
		assert.GreaterOrEqual(t, r.MeanTestScore, 0.0)
		assert.LessOrEqual(t, r.MeanTestScore, search.BestScore)
	}
	assert.Equal(t, search.BestParams["n_estimators"], search.BestEstimator.NumIterations)

	// same seed, same candidates
	again := NewRandomizedSearchCV(NewLGBMClassifier().WithMinChildSamples(5), searchSpace())
	again.NIter = 4
	again.CV = 3
	require.NoError(t, again.Fit(context.Background(), X, y))
	assert.Equal(t, search.BestParams, again.BestParams)
}

func TestRandomizedSearchCVTinyData(t *testing.T) {
	X := mat.NewDense(3, 2, []float64{1, 10, 2, 20, 3, 30})
	y := mat.NewDense(3, 1, []float64{0, 1, 0})

	search := NewRandomizedSearchCV(NewLGBMClassifier(), searchSpace())
	search.NIter = 2
	search.CV = 2
	require.NoError(t, search.Fit(context.Background(), X, y))
	assert.NotNil(t, search.BestEstimator)
}

func TestRandomizedSearchCVValidation(t *testing.T) {
	X, y := separableData(20)
	ctx := context.Background()

	s := NewRandomizedSearchCV(NewLGBMClassifier(), searchSpace())
	s.Scoring = "log_loss"
	assert.Error(t, s.Fit(ctx, X, y))

	s = NewRandomizedSearchCV(NewLGBMClassifier(), searchSpace())
	s.NIter = 0
	assert.Error(t, s.Fit(ctx, X, y))

	s = NewRandomizedSearchCV(NewLGBMClassifier(), map[string]Distribution{"boosting_type": Choice{}})
	assert.Error(t, s.Fit(ctx, X, y))

	// every candidate fails
	s = NewRandomizedSearchCV(NewLGBMClassifier(), map[string]Distribution{"boosting_type": Choice{Values: []interface{}{"dart"}}})
	s.NIter = 2
	s.CV = 2
	var me *errors.ModelError
	assert.True(t, errors.As(s.Fit(ctx, X, y), &me))

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	s = NewRandomizedSearchCV(NewLGBMClassifier(), searchSpace())
	s.CV = 2
	assert.ErrorIs(t, s.Fit(cancelled, X, y), context.Canceled)
}
