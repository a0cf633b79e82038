package lightgbm

import (
	"math"
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/hotelres/core/parallel"
	"github.com/YuminosukeSato/hotelres/pkg/errors"
	"github.com/YuminosukeSato/hotelres/pkg/log"
)

// rows*features below which split search stays on the calling goroutine
const parallelMinWork = 1 << 14

// Trainer implements histogram-based, leaf-wise gradient boosting
type Trainer struct {
	params   TrainingParams
	boosting BoostingType

	// Data
	X     *mat.Dense
	y     []float64
	nRows int
	nCols int

	// Histogram data structures: bins[f][row] is the bin of X[row, f],
	// binUpper[f][b] the inclusive upper bound of bin b.
	bins     [][]uint8
	binUpper [][]float64

	// Gradient and Hessian
	gradients []float64
	hessians  []float64

	// treeSum caches the summed tree outputs for every training row
	treeSum []float64

	trees         []Tree
	iteration     int
	bestIteration int
	bestScore     float64

	objective ObjectiveFunction
	initScore float64
	rng       *rand.Rand
	bag       []int

	callbacks *CallbackList
}

// TrainingParams contains all training hyperparameters
type TrainingParams struct {
	NumIterations int     `json:"num_iterations"`
	LearningRate  float64 `json:"learning_rate"`
	NumLeaves     int     `json:"num_leaves"`
	MaxDepth      int     `json:"max_depth"` // <= 0 means no limit
	MinDataInLeaf int     `json:"min_data_in_leaf"`

	// Regularization
	MinSumHessianInLeaf float64 `json:"min_sum_hessian_in_leaf"`
	Lambda              float64 `json:"lambda_l2"`
	MinGainToSplit      float64 `json:"min_gain_to_split"`

	// Sampling
	BaggingFraction float64 `json:"bagging_fraction"`
	BaggingFreq     int     `json:"bagging_freq"`
	FeatureFraction float64 `json:"feature_fraction"`
	TopRate         float64 `json:"top_rate"`   // goss
	OtherRate       float64 `json:"other_rate"` // goss

	MaxBin int `json:"max_bin"`

	Objective    string `json:"objective"`
	BoostingType string `json:"boosting_type"`

	Seed          int    `json:"seed"`
	Verbosity     int    `json:"verbosity"`
	EarlyStopping int    `json:"early_stopping_rounds"`
	Metric        string `json:"metric"`
}

// SplitInfo contains information about a potential split
type SplitInfo struct {
	Feature    int
	Bin        int
	Threshold  float64
	Gain       float64
	LeftCount  int
	RightCount int
	LeftGrad   float64
	RightGrad  float64
	LeftHess   float64
	RightHess  float64
	Valid      bool
}

// NewTrainer creates a new trainer, filling zero-valued parameters with defaults
func NewTrainer(params TrainingParams) *Trainer {
	if params.NumIterations == 0 {
		params.NumIterations = 100
	}
	if params.LearningRate == 0 {
		params.LearningRate = 0.1
	}
	if params.NumLeaves == 0 {
		params.NumLeaves = 31
	}
	if params.MaxBin == 0 || params.MaxBin > 255 {
		params.MaxBin = 255
	}
	if params.MinDataInLeaf == 0 {
		params.MinDataInLeaf = 20
	}
	if params.MinSumHessianInLeaf == 0 {
		params.MinSumHessianInLeaf = 1e-3
	}
	if params.BaggingFraction == 0 {
		params.BaggingFraction = 1.0
	}
	if params.FeatureFraction == 0 {
		params.FeatureFraction = 1.0
	}
	if params.TopRate == 0 {
		params.TopRate = 0.2
	}
	if params.OtherRate == 0 {
		params.OtherRate = 0.1
	}
	if params.Objective == "" {
		params.Objective = string(RegressionL2)
	}

	return &Trainer{params: params, bestIteration: -1}
}

// Params returns the effective parameters after defaults were applied.
func (t *Trainer) Params() TrainingParams {
	return t.params
}

// WithCallbacks sets the callbacks for training
func (t *Trainer) WithCallbacks(callbacks ...Callback) *Trainer {
	t.callbacks = NewCallbackList(callbacks...)
	return t
}

// Fit trains the model on X (n×d) and y (n×1)
func (t *Trainer) Fit(X, y mat.Matrix) error {
	return t.FitWithValidation(X, y, nil)
}

// FitWithValidation trains the model and, when valData is given, evaluates it
// after every iteration. With EarlyStopping > 0 training stops once the
// validation metric has not improved for that many rounds and the ensemble is
// cut back to the best iteration.
func (t *Trainer) FitWithValidation(X, y mat.Matrix, valData *ValidationData) error {
	if err := t.validateParams(); err != nil {
		return err
	}
	if err := t.setData(X, y); err != nil {
		return err
	}

	objective, err := CreateObjectiveFunction(t.params.Objective)
	if err != nil {
		return err
	}
	t.objective = objective
	t.initScore = objective.GetInitScore(t.y)
	t.treeSum = make([]float64, t.nRows)
	t.gradients = make([]float64, t.nRows)
	t.hessians = make([]float64, t.nRows)
	t.trees = nil
	t.bag = nil
	t.bestIteration = -1
	t.rng = rand.New(rand.NewPCG(uint64(t.params.Seed), uint64(t.params.Seed)))
	t.buildHistograms()

	var (
		val    *validationState
		es     *EarlyStopping
		metric string
	)
	if valData != nil {
		metric = t.params.Metric
		if metric == "" {
			metric = defaultMetric(ObjectiveType(objective.Name()))
		}
		val, err = newValidationState(valData, t.nCols)
		if err != nil {
			return err
		}
		es = NewEarlyStopping(t.params.EarlyStopping, metric)
	}

	logger := log.GetLoggerWithName("lightgbm.trainer")
	var progress Callback
	if t.params.Verbosity > 0 {
		progress = LogEvaluation(logger, 10)
	}

	for iter := 0; iter < t.params.NumIterations; iter++ {
		t.iteration = iter

		if t.callbacks != nil {
			if err := t.callbacks.BeforeIteration(iter, t.GetModel()); err != nil {
				return errors.Wrapf(err, "callback error at iteration %d", iter)
			}
			if t.callbacks.ShouldStop() {
				break
			}
		}

		if err := t.calculateGradients(); err != nil {
			return err
		}
		rows := t.sampleRows(iter)
		features := t.sampleFeatures()

		tree := t.buildTree(rows, features)
		t.trees = append(t.trees, tree)
		t.updatePredictions(&tree)

		loss := t.calculateLoss()
		if err := errors.CheckScalar("training_loss", loss, iter); err != nil {
			return err
		}
		evalResults := map[string]float64{"training_loss": loss}

		stop := false
		if val != nil {
			val.add(&tree)
			score, err := val.evaluate(metric, t.objective, t.rawScorer(val.treeSum))
			if err != nil {
				return err
			}
			evalResults["valid_"+metric] = score
			if es.Update(iter, score) {
				stop = true
			}
		}

		if t.callbacks != nil {
			if err := t.callbacks.AfterIteration(iter, t.GetModel(), evalResults); err != nil {
				return errors.Wrapf(err, "callback error at iteration %d", iter)
			}
			if t.callbacks.ShouldStop() {
				stop = true
			}
		}

		if progress != nil {
			_ = progress(&CallbackEnv{Iteration: iter, EvalResults: evalResults})
		}

		if stop {
			break
		}
	}

	if es != nil && es.Enabled && es.BestIteration >= 0 && es.BestIteration+1 < len(t.trees) {
		t.trees = t.trees[:es.BestIteration+1]
		t.bestIteration = es.BestIteration
		t.bestScore = es.BestScore
		if t.params.Verbosity > 0 {
			logger.Info("Early stopping",
				log.IterationKey, es.BestIteration,
				"best_score", es.BestScore,
				"metric", metric)
		}
	}

	return nil
}

func (t *Trainer) validateParams() error {
	boosting, err := ParseBoostingType(t.params.BoostingType)
	if err != nil {
		return err
	}
	t.boosting = boosting

	p := t.params
	switch {
	case p.NumIterations < 0:
		return errors.NewValidationError("num_iterations", "must be positive", p.NumIterations)
	case p.LearningRate <= 0:
		return errors.NewValidationError("learning_rate", "must be positive", p.LearningRate)
	case p.NumLeaves < 2:
		return errors.NewValidationError("num_leaves", "must be at least 2", p.NumLeaves)
	case p.BaggingFraction <= 0 || p.BaggingFraction > 1:
		return errors.NewValidationError("bagging_fraction", "must be in (0, 1]", p.BaggingFraction)
	case p.FeatureFraction <= 0 || p.FeatureFraction > 1:
		return errors.NewValidationError("feature_fraction", "must be in (0, 1]", p.FeatureFraction)
	case boosting == GOSS && p.TopRate+p.OtherRate > 1:
		return errors.NewValidationError("top_rate + other_rate", "must not exceed 1", p.TopRate+p.OtherRate)
	case boosting == RF && (p.BaggingFraction >= 1 || p.BaggingFreq <= 0):
		return errors.NewValueError("Trainer", "rf boosting requires bagging_fraction < 1 and bagging_freq > 0")
	}
	return nil
}

func (t *Trainer) setData(X, y mat.Matrix) error {
	rows, cols := X.Dims()
	yRows, yCols := y.Dims()
	if rows == 0 || cols == 0 {
		return errors.NewValueError("Trainer.Fit", "empty training data")
	}
	if rows != yRows {
		return errors.NewDimensionError("Trainer.Fit", rows, yRows, 0)
	}
	if yCols != 1 {
		return errors.NewDimensionError("Trainer.Fit", 1, yCols, 1)
	}
	if cols > math.MaxInt32 {
		return errors.NewValueError("Trainer.Fit", "too many features")
	}

	t.X = mat.DenseCopyOf(X)
	t.y = mat.Col(nil, 0, y)
	t.nRows, t.nCols = rows, cols
	return nil
}

// buildHistograms bins every feature once. Split search then works on bin
// statistics instead of raw values.
func (t *Trainer) buildHistograms() {
	t.bins = make([][]uint8, t.nCols)
	t.binUpper = make([][]float64, t.nCols)

	parallel.ParallelizeWithThreshold(t.nCols, 1, func(start, end int) {
		for j := start; j < end; j++ {
			values := mat.Col(nil, j, t.X)
			uppers := findBinBoundaries(values, t.params.MaxBin)
			col := make([]uint8, len(values))
			for i, v := range values {
				col[i] = uint8(binOf(v, uppers))
			}
			t.bins[j] = col
			t.binUpper[j] = uppers
		}
	})
}

// findBinBoundaries returns the inclusive upper bound of every bin. Bounds
// sit halfway between neighbouring distinct values; the last one is +Inf.
// With more distinct values than maxBin the bins hold roughly equal counts.
func findBinBoundaries(values []float64, maxBin int) []float64 {
	sorted := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) {
			sorted = append(sorted, v)
		}
	}
	sort.Float64s(sorted)
	if len(sorted) == 0 {
		return []float64{math.Inf(1)}
	}

	distinct := []float64{sorted[0]}
	counts := []int{1}
	for i := 1; i < len(sorted); i++ {
		if sorted[i] != sorted[i-1] {
			distinct = append(distinct, sorted[i])
			counts = append(counts, 0)
		}
		counts[len(counts)-1]++
	}

	var uppers []float64
	if len(distinct) <= maxBin {
		uppers = make([]float64, 0, len(distinct))
		for k := 0; k < len(distinct)-1; k++ {
			uppers = append(uppers, (distinct[k]+distinct[k+1])/2)
		}
	} else {
		perBin := float64(len(sorted)) / float64(maxBin)
		acc := 0
		for k := 0; k < len(distinct)-1 && len(uppers) < maxBin-1; k++ {
			acc += counts[k]
			if float64(acc) >= perBin*float64(len(uppers)+1) {
				uppers = append(uppers, (distinct[k]+distinct[k+1])/2)
			}
		}
	}
	return append(uppers, math.Inf(1))
}

// binOf returns the first bin whose upper bound is >= v. NaN goes to the last bin.
func binOf(v float64, uppers []float64) int {
	if math.IsNaN(v) {
		return len(uppers) - 1
	}
	return sort.SearchFloat64s(uppers, v)
}

// rawScore is the current untransformed prediction of a training row
func (t *Trainer) rawScore(i int) float64 {
	return t.rawScorer(t.treeSum)(i)
}

func (t *Trainer) rawScorer(treeSum []float64) func(i int) float64 {
	if t.boosting == RF {
		n := float64(len(t.trees))
		return func(i int) float64 {
			if n == 0 {
				return t.initScore
			}
			return t.initScore + treeSum[i]/n
		}
	}
	return func(i int) float64 {
		return t.initScore + treeSum[i]
	}
}

// calculateGradients computes gradients and hessians for current predictions.
// rf fits every tree to the gradients at the initial score.
func (t *Trainer) calculateGradients() error {
	parallel.ParallelizeWithThreshold(t.nRows, 4096, func(start, end int) {
		for i := start; i < end; i++ {
			pred := t.initScore
			if t.boosting != RF {
				pred = t.rawScore(i)
			}
			t.gradients[i] = t.objective.CalculateGradient(pred, t.y[i])
			t.hessians[i] = t.objective.CalculateHessian(pred, t.y[i])
		}
	})
	return errors.CheckNumericalStability("gradient", t.gradients, t.iteration)
}

// sampleRows returns the rows the next tree is grown on.
func (t *Trainer) sampleRows(iter int) []int {
	if t.boosting == GOSS && float64(iter) >= 1/t.params.LearningRate {
		return t.gossSample()
	}

	if t.params.BaggingFraction < 1 && t.params.BaggingFreq > 0 {
		if t.bag == nil || iter%t.params.BaggingFreq == 0 {
			k := int(t.params.BaggingFraction * float64(t.nRows))
			if k < 1 {
				k = 1
			}
			bag := t.rng.Perm(t.nRows)[:k]
			sort.Ints(bag)
			t.bag = bag
		}
		return t.bag
	}

	all := make([]int, t.nRows)
	for i := range all {
		all[i] = i
	}
	return all
}

// gossSample keeps the rows with the largest |g·h| and a random share of the
// rest, whose gradients are scaled up to keep the sums unbiased.
func (t *Trainer) gossSample() []int {
	n := t.nRows
	topN := int(t.params.TopRate * float64(n))
	otherN := int(t.params.OtherRate * float64(n))
	if topN+otherN >= n || otherN == 0 {
		all := make([]int, n)
		for i := range all {
			all[i] = i
		}
		return all
	}

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return math.Abs(t.gradients[order[a]]*t.hessians[order[a]]) >
			math.Abs(t.gradients[order[b]]*t.hessians[order[b]])
	})

	rest := order[topN:]
	picked := t.rng.Perm(len(rest))[:otherN]
	amplify := float64(n-topN) / float64(otherN)

	rows := append([]int(nil), order[:topN]...)
	for _, p := range picked {
		i := rest[p]
		t.gradients[i] *= amplify
		t.hessians[i] *= amplify
		rows = append(rows, i)
	}
	sort.Ints(rows)
	return rows
}

// sampleFeatures picks the feature subset for the next tree (feature_fraction).
func (t *Trainer) sampleFeatures() []int {
	if t.params.FeatureFraction >= 1 {
		all := make([]int, t.nCols)
		for j := range all {
			all[j] = j
		}
		return all
	}
	k := int(math.Round(t.params.FeatureFraction * float64(t.nCols)))
	if k < 1 {
		k = 1
	}
	features := t.rng.Perm(t.nCols)[:k]
	sort.Ints(features)
	return features
}

type leafState struct {
	node  int
	rows  []int
	depth int
	sumG  float64
	sumH  float64
	split SplitInfo
}

// buildTree grows one tree leaf-wise: the leaf with the largest split gain is
// split next until num_leaves is reached or no leaf can be split.
func (t *Trainer) buildTree(rows, features []int) Tree {
	shrinkage := t.params.LearningRate
	if t.boosting == RF {
		shrinkage = 1.0
	}
	tree := Tree{TreeIndex: t.iteration, ShrinkageRate: shrinkage}

	sumG, sumH := t.sums(rows)
	root := &leafState{node: t.appendLeaf(&tree, -1, len(rows), sumG, sumH), rows: rows, sumG: sumG, sumH: sumH}
	t.findBestSplit(root, features)
	leaves := []*leafState{root}

	for len(leaves) < t.params.NumLeaves {
		best := -1
		for i, l := range leaves {
			if l.split.Valid && (best < 0 || l.split.Gain > leaves[best].split.Gain) {
				best = i
			}
		}
		if best < 0 {
			break
		}

		l := leaves[best]
		s := l.split
		leftRows, rightRows := t.splitData(l.rows, s)

		leftID := t.appendLeaf(&tree, l.node, len(leftRows), s.LeftGrad, s.LeftHess)
		rightID := t.appendLeaf(&tree, l.node, len(rightRows), s.RightGrad, s.RightHess)

		n := &tree.Nodes[l.node]
		n.NodeType = NumericalNode
		n.SplitFeature = s.Feature
		n.Threshold = s.Threshold
		n.Gain = s.Gain
		n.LeftChild = leftID
		n.RightChild = rightID
		n.InternalValue = n.LeafValue
		n.InternalCount = n.LeafCount
		n.LeafValue = 0
		n.LeafCount = 0

		left := &leafState{node: leftID, rows: leftRows, depth: l.depth + 1, sumG: s.LeftGrad, sumH: s.LeftHess}
		right := &leafState{node: rightID, rows: rightRows, depth: l.depth + 1, sumG: s.RightGrad, sumH: s.RightHess}
		t.findBestSplit(left, features)
		t.findBestSplit(right, features)

		leaves[best] = left
		leaves = append(leaves, right)
		if l.depth+1 > tree.MaxDepth {
			tree.MaxDepth = l.depth + 1
		}
	}

	tree.NumLeaves = len(leaves)
	return tree
}

func (t *Trainer) appendLeaf(tree *Tree, parent, count int, sumG, sumH float64) int {
	id := len(tree.Nodes)
	tree.Nodes = append(tree.Nodes, Node{
		NodeID:     id,
		ParentID:   parent,
		LeftChild:  -1,
		RightChild: -1,
		NodeType:   LeafNode,
		LeafValue:  t.calculateLeafValue(sumG, sumH),
		LeafCount:  count,
	})
	return id
}

func (t *Trainer) sums(rows []int) (sumG, sumH float64) {
	for _, i := range rows {
		sumG += t.gradients[i]
		sumH += t.hessians[i]
	}
	return sumG, sumH
}

// findBestSplit stores the best split of a leaf over the given features, or
// marks the leaf unsplittable.
func (t *Trainer) findBestSplit(l *leafState, features []int) {
	l.split = SplitInfo{Gain: math.Inf(-1)}
	if t.params.MaxDepth > 0 && l.depth >= t.params.MaxDepth {
		return
	}
	if len(l.rows) < 2*t.params.MinDataInLeaf || len(l.rows) < 2 {
		return
	}

	results := make([]SplitInfo, len(features))
	search := func(start, end int) {
		for k := start; k < end; k++ {
			results[k] = t.findBestSplitForFeature(l.rows, features[k], l.sumG, l.sumH)
		}
	}
	if len(l.rows)*len(features) < parallelMinWork {
		search(0, len(features))
	} else {
		parallel.Parallelize(len(features), search)
	}

	best := SplitInfo{Gain: math.Inf(-1)}
	for _, s := range results {
		if s.Valid && s.Gain > best.Gain {
			best = s
		}
	}
	if best.Valid && best.Gain > t.params.MinGainToSplit {
		l.split = best
	}
}

// findBestSplitForFeature scans the histogram of one feature
func (t *Trainer) findBestSplitForFeature(rows []int, feature int, sumG, sumH float64) SplitInfo {
	best := SplitInfo{Feature: feature, Gain: math.Inf(-1)}
	nb := len(t.binUpper[feature])
	if nb < 2 {
		return best
	}

	grad := make([]float64, nb)
	hess := make([]float64, nb)
	count := make([]int, nb)
	col := t.bins[feature]
	for _, i := range rows {
		b := col[i]
		grad[b] += t.gradients[i]
		hess[b] += t.hessians[i]
		count[b]++
	}

	lambda := t.params.Lambda
	minData := t.params.MinDataInLeaf
	minHess := t.params.MinSumHessianInLeaf
	parentScore := sumG * sumG / (sumH + lambda)

	var leftGrad, leftHess float64
	leftCount := 0
	for b := 0; b < nb-1; b++ {
		if count[b] == 0 {
			continue
		}
		leftGrad += grad[b]
		leftHess += hess[b]
		leftCount += count[b]

		rightCount := len(rows) - leftCount
		if rightCount < minData || rightCount == 0 {
			break
		}
		if leftCount < minData || leftHess < minHess {
			continue
		}
		rightGrad := sumG - leftGrad
		rightHess := sumH - leftHess
		if rightHess < minHess {
			continue
		}

		gain := t.calculateSplitGain(leftGrad, leftHess, rightGrad, rightHess, parentScore)
		if gain > best.Gain {
			best = SplitInfo{
				Feature:    feature,
				Bin:        b,
				Threshold:  t.binUpper[feature][b],
				Gain:       gain,
				LeftCount:  leftCount,
				RightCount: rightCount,
				LeftGrad:   leftGrad,
				RightGrad:  rightGrad,
				LeftHess:   leftHess,
				RightHess:  rightHess,
				Valid:      true,
			}
		}
	}
	return best
}

// calculateSplitGain calculates the gain from a split
func (t *Trainer) calculateSplitGain(leftGrad, leftHess, rightGrad, rightHess, parentScore float64) float64 {
	lambda := t.params.Lambda
	leftScore := (leftGrad * leftGrad) / (leftHess + lambda)
	rightScore := (rightGrad * rightGrad) / (rightHess + lambda)
	return 0.5 * (leftScore + rightScore - parentScore)
}

// splitData splits rows by the bin of the split feature
func (t *Trainer) splitData(rows []int, split SplitInfo) ([]int, []int) {
	col := t.bins[split.Feature]
	left := make([]int, 0, split.LeftCount)
	right := make([]int, 0, split.RightCount)
	for _, i := range rows {
		if int(col[i]) <= split.Bin {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	return left, right
}

// calculateLeafValue calculates the optimal value for a leaf node
func (t *Trainer) calculateLeafValue(sumGrad, sumHess float64) float64 {
	const epsilon = 1e-10
	return -sumGrad / (sumHess + t.params.Lambda + epsilon)
}

// updatePredictions adds the new tree's output to the cached training scores
func (t *Trainer) updatePredictions(tree *Tree) {
	parallel.ParallelizeWithThreshold(t.nRows, 4096, func(start, end int) {
		for i := start; i < end; i++ {
			t.treeSum[i] += tree.Predict(t.X.RawRowView(i))
		}
	})
}

// calculateLoss calculates the mean training loss of the current ensemble
func (t *Trainer) calculateLoss() float64 {
	loss := 0.0
	for i := 0; i < t.nRows; i++ {
		loss += t.objective.CalculateLoss(t.rawScore(i), t.y[i])
	}
	return loss / float64(t.nRows)
}

// GetModel returns the trained model
func (t *Trainer) GetModel() *Model {
	model := NewModel()
	model.Trees = t.trees
	model.NumIteration = len(t.trees)
	model.NumFeatures = t.nCols
	model.LearningRate = t.params.LearningRate
	model.NumLeaves = t.params.NumLeaves
	model.MaxDepth = t.params.MaxDepth
	model.InitScore = t.initScore
	model.BoostingType = t.boosting
	model.AverageOutput = t.boosting == RF
	model.BestIteration = t.bestIteration
	if t.objective != nil {
		model.Objective = ObjectiveType(t.objective.Name())
	}
	return model
}
