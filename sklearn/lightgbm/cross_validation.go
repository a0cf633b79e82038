package lightgbm

import (
	"context"
	"math"
	"math/rand/v2"
	"sort"
	"strconv"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/hotelres/pkg/errors"
	"github.com/YuminosukeSato/hotelres/pkg/log"
)

// KFoldSplitter defines interface for cross-validation splitters
type KFoldSplitter interface {
	Split(X, y mat.Matrix) ([]CVFold, error)
	GetNSplits() int
}

// CVFold represents a single fold in cross-validation
type CVFold struct {
	TrainIndices []int
	TestIndices  []int
}

// KFold implements k-fold cross-validation splitter
type KFold struct {
	NSplits    int
	Shuffle    bool
	RandomSeed int
}

// NewKFold creates a new k-fold splitter
func NewKFold(nSplits int, shuffle bool, randomSeed int) *KFold {
	if nSplits < 2 {
		nSplits = 5
	}
	return &KFold{NSplits: nSplits, Shuffle: shuffle, RandomSeed: randomSeed}
}

// GetNSplits returns the number of splits
func (kf *KFold) GetNSplits() int {
	return kf.NSplits
}

// Split generates train/test indices for each fold
func (kf *KFold) Split(X, _ mat.Matrix) ([]CVFold, error) {
	nSamples, _ := X.Dims()
	if err := checkSplits(nSamples, kf.NSplits); err != nil {
		return nil, err
	}

	indices := make([]int, nSamples)
	for i := range indices {
		indices[i] = i
	}
	if kf.Shuffle {
		r := rand.New(rand.NewPCG(uint64(kf.RandomSeed), uint64(kf.RandomSeed)))
		r.Shuffle(len(indices), func(i, j int) {
			indices[i], indices[j] = indices[j], indices[i]
		})
	}

	assign := make([]int, nSamples)
	foldSize := nSamples / kf.NSplits
	remainder := nSamples % kf.NSplits
	pos := 0
	for fold := 0; fold < kf.NSplits; fold++ {
		size := foldSize
		if fold < remainder {
			size++
		}
		for _, idx := range indices[pos : pos+size] {
			assign[idx] = fold
		}
		pos += size
	}
	return buildFolds(assign, kf.NSplits), nil
}

// StratifiedKFold implements stratified k-fold cross-validation: every fold
// keeps roughly the class proportions of y.
type StratifiedKFold struct {
	NSplits    int
	Shuffle    bool
	RandomSeed int
}

// NewStratifiedKFold creates a new stratified k-fold splitter
func NewStratifiedKFold(nSplits int, shuffle bool, randomSeed int) *StratifiedKFold {
	if nSplits < 2 {
		nSplits = 5
	}
	return &StratifiedKFold{NSplits: nSplits, Shuffle: shuffle, RandomSeed: randomSeed}
}

// GetNSplits returns the number of splits
func (skf *StratifiedKFold) GetNSplits() int {
	return skf.NSplits
}

// Split generates stratified train/test indices for each fold. Samples are
// ordered by class and dealt to folds round-robin, so fold sizes differ by at
// most one and no fold is empty.
func (skf *StratifiedKFold) Split(X, y mat.Matrix) ([]CVFold, error) {
	nSamples, _ := X.Dims()
	if yRows, _ := y.Dims(); yRows != nSamples {
		return nil, errors.NewDimensionError("StratifiedKFold.Split", nSamples, yRows, 0)
	}
	if err := checkSplits(nSamples, skf.NSplits); err != nil {
		return nil, err
	}

	classIndices := make(map[float64][]int)
	for i := 0; i < nSamples; i++ {
		label := y.At(i, 0)
		classIndices[label] = append(classIndices[label], i)
	}
	labels := make([]float64, 0, len(classIndices))
	for label := range classIndices {
		labels = append(labels, label)
	}
	sort.Float64s(labels)

	var r *rand.Rand
	if skf.Shuffle {
		r = rand.New(rand.NewPCG(uint64(skf.RandomSeed), uint64(skf.RandomSeed)))
	}

	logger := log.GetLoggerWithName("lightgbm.cv")
	assign := make([]int, nSamples)
	k := 0
	for _, label := range labels {
		indices := classIndices[label]
		if len(indices) < skf.NSplits {
			logger.Warn("Least populated class has fewer members than n_splits",
				"class", label, "members", len(indices), "n_splits", skf.NSplits)
		}
		if r != nil {
			r.Shuffle(len(indices), func(i, j int) {
				indices[i], indices[j] = indices[j], indices[i]
			})
		}
		for _, idx := range indices {
			assign[idx] = k % skf.NSplits
			k++
		}
	}
	return buildFolds(assign, skf.NSplits), nil
}

func checkSplits(nSamples, nSplits int) error {
	if nSamples < nSplits {
		return errors.NewValidationError("n_splits",
			"cannot be greater than the number of samples ("+strconv.Itoa(nSamples)+")", nSplits)
	}
	return nil
}

func buildFolds(assign []int, nSplits int) []CVFold {
	folds := make([]CVFold, nSplits)
	for idx, fold := range assign {
		for f := range folds {
			if f == fold {
				folds[f].TestIndices = append(folds[f].TestIndices, idx)
			} else {
				folds[f].TrainIndices = append(folds[f].TrainIndices, idx)
			}
		}
	}
	return folds
}

// CVResult stores cross-validation results
type CVResult struct {
	TestScores []float64
}

// GetMeanScore returns mean test score
func (cv *CVResult) GetMeanScore() float64 {
	if len(cv.TestScores) == 0 {
		return 0.0
	}
	sum := 0.0
	for _, score := range cv.TestScores {
		sum += score
	}
	return sum / float64(len(cv.TestScores))
}

// GetStdScore returns the population standard deviation of test scores
func (cv *CVResult) GetStdScore() float64 {
	if len(cv.TestScores) <= 1 {
		return 0.0
	}
	mean := cv.GetMeanScore()
	sumSq := 0.0
	for _, score := range cv.TestScores {
		diff := score - mean
		sumSq += diff * diff
	}
	return math.Sqrt(sumSq / float64(len(cv.TestScores)))
}

// CrossValidateClassifier fits a clone of classifier on every training fold
// and scores it on the held-out fold.
func CrossValidateClassifier(classifier *LGBMClassifier, X, y mat.Matrix,
	splitter KFoldSplitter, scoring string) (*CVResult, error) {

	folds, err := splitter.Split(X, y)
	if err != nil {
		return nil, err
	}
	scores, err := scoreFolds(context.Background(), classifier, X, y, folds, scoring)
	if err != nil {
		return nil, err
	}
	return &CVResult{TestScores: scores}, nil
}

func scoreFolds(ctx context.Context, classifier *LGBMClassifier, X, y mat.Matrix,
	folds []CVFold, scoring string) ([]float64, error) {

	scores := make([]float64, len(folds))
	for i, fold := range folds {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		XTrain, yTrain := extractSubset(X, y, fold.TrainIndices)
		XTest, yTest := extractSubset(X, y, fold.TestIndices)

		clf := classifier.Clone()
		if err := clf.Fit(XTrain, yTrain); err != nil {
			return nil, errors.Wrapf(err, "fold %d", i)
		}
		score, err := clf.ScoreWith(scoring, XTest, yTest)
		if err != nil {
			return nil, errors.Wrapf(err, "fold %d", i)
		}
		scores[i] = score
	}
	return scores, nil
}

// extractSubset returns the rows of X and y at indices
func extractSubset(X, y mat.Matrix, indices []int) (*mat.Dense, *mat.Dense) {
	_, cols := X.Dims()
	XSub := mat.NewDense(len(indices), cols, nil)
	ySub := mat.NewDense(len(indices), 1, nil)
	row := make([]float64, cols)
	for i, idx := range indices {
		mat.Row(row, idx, X)
		XSub.SetRow(i, row)
		ySub.Set(i, 0, y.At(idx, 0))
	}
	return XSub, ySub
}
