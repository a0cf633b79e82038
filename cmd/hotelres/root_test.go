package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/hotelres/internal/pipeline"
	"github.com/YuminosukeSato/hotelres/internal/testinfra"
	"github.com/YuminosukeSato/hotelres/pkg/errors"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

// writeConfig writes a config that reads bookings from a local file and keeps
// every artifact inside a temp dir.
func writeConfig(t *testing.T, rows int) (path, artifacts string) {
	t.Helper()
	dir := t.TempDir()
	src, err := testinfra.WriteBookings(dir, "bookings.csv", rows, 11)
	require.NoError(t, err)
	artifacts = filepath.Join(dir, "artifacts")

	yaml := strings.Join([]string{
		"data_ingestion:",
		"  source: file",
		"  local_path: " + src,
		"model_training:",
		"  n_iter: 2",
		"  n_estimators: {min: 10, max: 30}",
		"  num_leaves: {min: 4, max: 16}",
		"paths:",
		"  artifacts_dir: " + artifacts,
		"logging:",
		"  level: warn",
		"",
	}, "\n")
	path = filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))
	return path, artifacts
}

func TestConfigPrint(t *testing.T) {
	path, artifacts := writeConfig(t, 10)
	out, err := execute(t, "--config", path, "config", "print")
	require.NoError(t, err)
	assert.Contains(t, out, "source: file")
	assert.Contains(t, out, "artifacts_dir: "+artifacts)
	assert.Contains(t, out, "n_iter: 2")
	assert.Contains(t, out, "positive_label: Canceled", "defaults fill unset keys")
}

func TestLogLevelFlag(t *testing.T) {
	path, _ := writeConfig(t, 10)
	_, err := execute(t, "--config", path, "--log-level", "loud", "config", "print")
	require.Error(t, err)

	_, err = execute(t, "--config", path, "--log-level", "debug", "config", "print")
	require.NoError(t, err)
}

func TestMissingConfigFile(t *testing.T) {
	_, err := execute(t, "--config", filepath.Join(t.TempDir(), "nope.yaml"), "config", "print")
	assert.Error(t, err)
}

func TestRunCommand(t *testing.T) {
	path, artifacts := writeConfig(t, 300)
	out, err := execute(t, "--config", path, "run")
	require.NoError(t, err)
	assert.Contains(t, out, "accuracy")
	assert.Contains(t, out, "roc_auc")

	b, err := pipeline.LoadBundle(filepath.Join(artifacts, "models", "lgbm_model.gob"))
	require.NoError(t, err)
	assert.Contains(t, out, "run "+b.RunID)
}

func TestStagesInOrder(t *testing.T) {
	path, artifacts := writeConfig(t, 300)

	_, err := execute(t, "--config", path, "train")
	var se *errors.StageError
	require.True(t, errors.As(err, &se), "training before processing fails")
	assert.Equal(t, pipeline.TrainStage, se.Stage)

	_, err = execute(t, "--config", path, "ingest")
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(artifacts, "raw", "train.csv"))

	out, err := execute(t, "--config", path, "process")
	require.NoError(t, err)
	assert.Contains(t, out, "selected features")

	_, err = execute(t, "--config", path, "train")
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(artifacts, "reports", "metrics.json"))
}
