package lightgbm

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBinaryLogLossObjective(t *testing.T) {
	obj := NewBinaryLogLossObjective()

	assert.InDelta(t, 0.5, obj.CalculateGradient(0, 0), 1e-12)
	assert.InDelta(t, -0.5, obj.CalculateGradient(0, 1), 1e-12)
	assert.InDelta(t, 0.25, obj.CalculateHessian(0, 1), 1e-12)
	assert.InDelta(t, math.Log(2), obj.CalculateLoss(0, 1), 1e-12)

	// hessian never collapses to zero
	assert.Greater(t, obj.CalculateHessian(100, 1), 0.0)
	assert.False(t, math.IsInf(obj.CalculateLoss(-100, 1), 0))

	init := obj.GetInitScore([]float64{1, 0, 0, 0})
	assert.InDelta(t, math.Log(0.25/0.75), init, 1e-12)

	// single-class targets stay finite
	assert.False(t, math.IsInf(obj.GetInitScore([]float64{1, 1}), 0))
	assert.Zero(t, obj.GetInitScore(nil))
}

func TestL2Objective(t *testing.T) {
	obj := NewL2Objective()
	assert.Equal(t, 1.5, obj.CalculateGradient(2, 0.5))
	assert.Equal(t, 1.0, obj.CalculateHessian(2, 0.5))
	assert.Equal(t, 2.0, obj.GetInitScore([]float64{1, 2, 3}))
}

func TestCreateObjectiveFunction(t *testing.T) {
	obj, err := CreateObjectiveFunction("binary")
	require.NoError(t, err)
	assert.Equal(t, "binary", obj.Name())

	obj, err = CreateObjectiveFunction("mse")
	require.NoError(t, err)
	assert.Equal(t, "regression", obj.Name())

	_, err = CreateObjectiveFunction("lambdarank")
	assert.Error(t, err)
}
