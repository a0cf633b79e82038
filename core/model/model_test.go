package model

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/hotelres/pkg/errors"
)

func TestStateManager(t *testing.T) {
	s := NewStateManager()
	assert.False(t, s.IsFitted())

	err := s.RequireFitted("LabelEncoder", "Transform")
	var nf *errors.NotFittedError
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, "Transform", nf.Method)

	s.SetDimensions(10, 500)
	s.SetFitted()
	assert.NoError(t, s.RequireFitted("LabelEncoder", "Transform"))
	assert.NoError(t, s.RequireFeatures("Predict", 10))

	var de *errors.DimensionError
	require.True(t, errors.As(s.RequireFeatures("Predict", 9), &de))
	assert.Equal(t, 10, de.Expected)

	nFeatures, nSamples := s.GetDimensions()
	assert.Equal(t, 10, nFeatures)
	assert.Equal(t, 500, nSamples)

	s.Reset()
	assert.False(t, s.IsFitted())
	nFeatures, _ = s.GetDimensions()
	assert.Zero(t, nFeatures)
}

type savedThing struct {
	Name    string
	Weights []float64
	State   *StateManager
}

func TestSaveLoadModel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "model.gob")

	in := savedThing{Name: "lgbm", Weights: []float64{0.5, -1}, State: NewStateManager()}
	in.State.SetDimensions(2, 3)
	in.State.SetFitted()
	require.NoError(t, SaveModel(&in, path))

	var out savedThing
	require.NoError(t, LoadModel(&out, path))
	assert.Equal(t, in.Name, out.Name)
	assert.Equal(t, in.Weights, out.Weights)
	assert.True(t, out.State.IsFitted())

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files must not be left behind")
}

func TestLoadModelErrors(t *testing.T) {
	var out savedThing
	assert.Error(t, LoadModel(&out, filepath.Join(t.TempDir(), "missing.gob")))

	bad := filepath.Join(t.TempDir(), "bad.gob")
	require.NoError(t, os.WriteFile(bad, []byte("not gob"), 0o600))
	assert.Error(t, LoadModel(&out, bad))
}
