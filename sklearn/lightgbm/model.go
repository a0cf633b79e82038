package lightgbm

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/hotelres/pkg/errors"
)

// NodeType represents the type of a tree node
type NodeType int

const (
	// LeafNode represents a terminal node with a value
	LeafNode NodeType = iota
	// NumericalNode represents a node with numerical split
	NumericalNode
)

// Node represents a single node in a decision tree
type Node struct {
	NodeID     int
	ParentID   int // -1 for root
	LeftChild  int // -1 if leaf
	RightChild int // -1 if leaf
	NodeType   NodeType

	// Split information (for non-leaf nodes)
	SplitFeature int
	Threshold    float64
	DefaultLeft  bool // direction for NaN
	Gain         float64

	// Leaf information (for leaf nodes)
	LeafValue float64
	LeafCount int

	// Value and sample count the node had before it was split
	InternalValue float64
	InternalCount int
}

// IsLeaf returns true if the node is a leaf node
func (n *Node) IsLeaf() bool {
	return n.LeftChild == -1 && n.RightChild == -1
}

// Tree represents a single decision tree in the ensemble
type Tree struct {
	TreeIndex     int
	NumLeaves     int
	MaxDepth      int
	ShrinkageRate float64

	Nodes []Node
}

// Predict makes a prediction for a single sample using this tree.
// Values <= threshold go left.
func (t *Tree) Predict(features []float64) float64 {
	nodeID := 0
	for nodeID >= 0 && nodeID < len(t.Nodes) {
		node := &t.Nodes[nodeID]
		if node.IsLeaf() {
			return node.LeafValue * t.ShrinkageRate
		}

		v := features[node.SplitFeature]
		switch {
		case math.IsNaN(v):
			if node.DefaultLeft {
				nodeID = node.LeftChild
			} else {
				nodeID = node.RightChild
			}
		case v <= node.Threshold:
			nodeID = node.LeftChild
		default:
			nodeID = node.RightChild
		}
	}
	return 0.0
}

// ObjectiveType represents the objective function type
type ObjectiveType string

const (
	RegressionL2   ObjectiveType = "regression"
	BinaryLogistic ObjectiveType = "binary"
)

// BoostingType represents the boosting algorithm type
type BoostingType string

const (
	GBDT BoostingType = "gbdt" // Gradient Boosting Decision Tree
	DART BoostingType = "dart" // not supported, rejected by ParseBoostingType
	GOSS BoostingType = "goss" // Gradient-based One-Side Sampling
	RF   BoostingType = "rf"   // Random Forest
)

// ParseBoostingType validates a boosting type name.
func ParseBoostingType(s string) (BoostingType, error) {
	switch BoostingType(s) {
	case GBDT, "":
		return GBDT, nil
	case GOSS:
		return GOSS, nil
	case RF:
		return RF, nil
	case DART:
		return "", errors.NewValueError("ParseBoostingType", "boosting_type \"dart\" is not supported")
	default:
		return "", errors.NewValueError("ParseBoostingType", "unknown boosting_type \""+s+"\"")
	}
}

// Model represents a trained ensemble
type Model struct {
	Objective    ObjectiveType
	BoostingType BoostingType
	NumIteration int
	LearningRate float64
	NumLeaves    int
	MaxDepth     int

	Trees []Tree

	NumFeatures  int
	FeatureNames []string

	// BestIteration is the zero-based iteration kept by early stopping, -1 otherwise
	BestIteration int

	// InitScore is the raw score every prediction starts from
	InitScore float64

	// AverageOutput averages tree outputs instead of summing them (rf)
	AverageOutput bool
}

// NewModel creates a new empty model
func NewModel() *Model {
	return &Model{
		Trees:         make([]Tree, 0),
		LearningRate:  0.1,
		NumLeaves:     31,
		MaxDepth:      -1,
		BestIteration: -1,
	}
}

// PredictRawSingle returns the untransformed score for one sample.
func (m *Model) PredictRawSingle(features []float64) float64 {
	sum := 0.0
	for i := range m.Trees {
		sum += m.Trees[i].Predict(features)
	}
	if m.AverageOutput && len(m.Trees) > 0 {
		sum /= float64(len(m.Trees))
	}
	return m.InitScore + sum
}

// PredictSingle returns the transformed prediction for one sample:
// a probability for binary, the raw score for regression.
func (m *Model) PredictSingle(features []float64) float64 {
	raw := m.PredictRawSingle(features)
	if m.Objective == BinaryLogistic {
		return sigmoid(raw)
	}
	return raw
}

// Predict makes predictions for a batch of samples (n×1).
func (m *Model) Predict(X mat.Matrix) (mat.Matrix, error) {
	rows, cols := X.Dims()
	if cols != m.NumFeatures {
		return nil, errors.NewDimensionError("Model.Predict", m.NumFeatures, cols, 1)
	}
	out := mat.NewDense(rows, 1, nil)
	features := make([]float64, cols)
	for i := 0; i < rows; i++ {
		mat.Row(features, i, X)
		out.Set(i, 0, m.PredictSingle(features))
	}
	return out, nil
}

// GetFeatureImportance returns per-feature importance normalized to sum to 1.
// importanceType is "split" (number of splits) or "gain" (total split gain).
func (m *Model) GetFeatureImportance(importanceType string) []float64 {
	importance := make([]float64, m.NumFeatures)

	for _, tree := range m.Trees {
		for _, node := range tree.Nodes {
			if node.IsLeaf() {
				continue
			}
			switch importanceType {
			case "split":
				importance[node.SplitFeature]++
			case "gain":
				importance[node.SplitFeature] += node.Gain
			}
		}
	}

	total := 0.0
	for _, v := range importance {
		total += v
	}
	if total > 0 {
		for i := range importance {
			importance[i] /= total
		}
	}
	return importance
}

func sigmoid(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}
