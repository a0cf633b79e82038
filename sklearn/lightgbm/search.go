package lightgbm

import (
	"context"
	"math"
	"math/rand/v2"
	"sort"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/hotelres/core/parallel"
	"github.com/YuminosukeSato/hotelres/metrics"
	"github.com/YuminosukeSato/hotelres/pkg/errors"
	"github.com/YuminosukeSato/hotelres/pkg/log"
)

// Distribution samples one hyperparameter value
type Distribution interface {
	Sample(r *rand.Rand) interface{}
}

// IntRange samples integers uniformly from [Low, High)
type IntRange struct {
	Low, High int
}

func (d IntRange) Sample(r *rand.Rand) interface{} {
	if d.High <= d.Low {
		return d.Low
	}
	return d.Low + r.IntN(d.High-d.Low)
}

// FloatRange samples floats uniformly from [Low, High)
type FloatRange struct {
	Low, High float64
}

func (d FloatRange) Sample(r *rand.Rand) interface{} {
	return d.Low + r.Float64()*(d.High-d.Low)
}

// Choice samples one of Values uniformly
type Choice struct {
	Values []interface{}
}

func (d Choice) Sample(r *rand.Rand) interface{} {
	return d.Values[r.IntN(len(d.Values))]
}

// CandidateResult is the cross-validated score of one sampled parameter set
type CandidateResult struct {
	Params        map[string]interface{} `json:"params"`
	FoldScores    []float64              `json:"fold_scores"`
	MeanTestScore float64                `json:"mean_test_score"`
	StdTestScore  float64                `json:"std_test_score"`
	Rank          int                    `json:"rank_test_score"`
	Err           string                 `json:"error,omitempty"`
}

// RandomizedSearchCV samples NIter parameter sets from ParamDistributions,
// scores each with stratified CV and refits the best on the full data.
type RandomizedSearchCV struct {
	Estimator          *LGBMClassifier
	ParamDistributions map[string]Distribution
	NIter              int
	CV                 int
	Scoring            string // accuracy, f1 or roc_auc
	RandomState        int
	NJobs              int // concurrent candidates, <= 0 means NumCPU

	BestParams    map[string]interface{}
	BestScore     float64
	BestIndex     int
	BestEstimator *LGBMClassifier
	CVResults     []CandidateResult
}

// NewRandomizedSearchCV creates a search with sklearn's defaults (n_iter=10, cv=5, accuracy)
func NewRandomizedSearchCV(estimator *LGBMClassifier, distributions map[string]Distribution) *RandomizedSearchCV {
	return &RandomizedSearchCV{
		Estimator:          estimator,
		ParamDistributions: distributions,
		NIter:              10,
		CV:                 5,
		Scoring:            metrics.KeyAccuracy,
		RandomState:        42,
		BestIndex:          -1,
	}
}

func (s *RandomizedSearchCV) validate() error {
	if s.Estimator == nil {
		return errors.NewValueError("RandomizedSearchCV", "estimator is nil")
	}
	if s.NIter < 1 {
		return errors.NewValidationError("n_iter", "must be at least 1", s.NIter)
	}
	if s.CV < 2 {
		return errors.NewValidationError("cv", "must be at least 2", s.CV)
	}
	switch s.Scoring {
	case metrics.KeyAccuracy, metrics.KeyF1, metrics.KeyROCAUC:
	default:
		return errors.NewValidationError("scoring", "must be accuracy, f1 or roc_auc", s.Scoring)
	}
	for name, d := range s.ParamDistributions {
		if c, ok := d.(Choice); ok && len(c.Values) == 0 {
			return errors.NewValidationError(name, "choice has no values", nil)
		}
	}
	return nil
}

// sampleCandidates draws NIter parameter sets. Keys are visited in sorted
// order so a seed always yields the same candidates.
func (s *RandomizedSearchCV) sampleCandidates() []map[string]interface{} {
	keys := make([]string, 0, len(s.ParamDistributions))
	for k := range s.ParamDistributions {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	r := rand.New(rand.NewPCG(uint64(s.RandomState), uint64(s.RandomState)))
	candidates := make([]map[string]interface{}, s.NIter)
	for i := range candidates {
		params := make(map[string]interface{}, len(keys))
		for _, k := range keys {
			params[k] = s.ParamDistributions[k].Sample(r)
		}
		candidates[i] = params
	}
	return candidates
}

// Fit runs the search. A candidate that fails to train is kept in CVResults
// with a NaN score; Fit fails only when every candidate fails.
func (s *RandomizedSearchCV) Fit(ctx context.Context, X, y mat.Matrix) error {
	if err := s.validate(); err != nil {
		return err
	}
	folds, err := NewStratifiedKFold(s.CV, false, s.RandomState).Split(X, y)
	if err != nil {
		return err
	}

	logger := log.GetLoggerWithName("lightgbm.search")
	start := time.Now()
	candidates := s.sampleCandidates()
	results := make([]CandidateResult, len(candidates))

	err = parallel.ForEach(ctx, len(candidates), s.NJobs, func(ctx context.Context, i int) error {
		res := CandidateResult{Params: candidates[i], MeanTestScore: math.NaN(), StdTestScore: math.NaN()}
		defer func() { results[i] = res }()

		clf := s.Estimator.Clone()
		if err := clf.SetParams(candidates[i]); err != nil {
			res.Err = err.Error()
			return nil
		}
		scores, err := scoreFolds(ctx, clf, X, y, folds, s.Scoring)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			res.Err = err.Error()
			logger.Warn("Candidate failed", "candidate", i, log.ErrAttrKey, err)
			return nil
		}
		cv := CVResult{TestScores: scores}
		res.FoldScores = scores
		res.MeanTestScore = cv.GetMeanScore()
		res.StdTestScore = cv.GetStdScore()
		return nil
	})
	if err != nil {
		return errors.Wrap(err, "randomized search")
	}

	rankCandidates(results)
	s.CVResults = results
	s.BestIndex = -1
	for i, r := range results {
		if math.IsNaN(r.MeanTestScore) {
			continue
		}
		if s.BestIndex < 0 || r.MeanTestScore > results[s.BestIndex].MeanTestScore {
			s.BestIndex = i
		}
	}
	if s.BestIndex < 0 {
		return errors.NewModelError("RandomizedSearchCV.Fit", "all candidates failed", errors.New(results[0].Err))
	}

	s.BestParams = results[s.BestIndex].Params
	s.BestScore = results[s.BestIndex].MeanTestScore

	best := s.Estimator.Clone()
	if err := best.SetParams(s.BestParams); err != nil {
		return err
	}
	if err := best.Fit(X, y); err != nil {
		return errors.Wrap(err, "refit best estimator")
	}
	s.BestEstimator = best

	logger.Info("Randomized search finished",
		"candidates", len(candidates),
		"best_index", s.BestIndex,
		"best_score", s.BestScore,
		"scoring", s.Scoring,
		log.DurationMsKey, time.Since(start).Milliseconds())
	return nil
}

// rankCandidates assigns sklearn style ranks: 1 is best, ties share the
// lowest rank, failed candidates rank last.
func rankCandidates(results []CandidateResult) {
	order := make([]int, len(results))
	for i := range order {
		order[i] = i
	}
	score := func(i int) float64 {
		if math.IsNaN(results[i].MeanTestScore) {
			return math.Inf(-1)
		}
		return results[i].MeanTestScore
	}
	sort.SliceStable(order, func(a, b int) bool { return score(order[a]) > score(order[b]) })
	for pos, i := range order {
		if pos > 0 && score(i) == score(order[pos-1]) {
			results[i].Rank = results[order[pos-1]].Rank
		} else {
			results[i].Rank = pos + 1
		}
	}
}
