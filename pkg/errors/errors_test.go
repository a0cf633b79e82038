package errors

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewModelError(t *testing.T) {
	cause := New("underlying")
	err := NewModelError("LGBMClassifier.Fit", "training failed", cause)

	var me *ModelError
	require.True(t, As(err, &me))
	assert.Equal(t, "LGBMClassifier.Fit", me.Op)
	assert.True(t, Is(err, cause))
	assert.Equal(t, "hotelres: LGBMClassifier.Fit: training failed: underlying", me.Error())

	noCause := &ModelError{Op: "op", Kind: "kind"}
	assert.Equal(t, "hotelres: op: kind", noCause.Error())
}

func TestNewDimensionError(t *testing.T) {
	err := NewDimensionError("Predict", 10, 8, 1)

	var de *DimensionError
	require.True(t, As(err, &de))
	assert.Equal(t, 10, de.Expected)
	assert.Equal(t, 8, de.Got)
	assert.Contains(t, err.Error(), "axis 1 (features)")

	rows := NewDimensionError("Fit", 5, 4, 0)
	assert.Contains(t, rows.Error(), "axis 0 (rows)")
}

func TestNewNotFittedError(t *testing.T) {
	err := NewNotFittedError("LabelEncoder", "Transform")

	var nf *NotFittedError
	require.True(t, As(err, &nf))
	assert.Equal(t, "LabelEncoder", nf.ModelName)
	assert.Contains(t, err.Error(), "Call Fit() before using Transform()")
}

func TestNewValueError(t *testing.T) {
	err := NewValueError("TrainTestSplit", "test size must be in (0, 1)")
	var ve *ValueError
	require.True(t, As(err, &ve))
	assert.Equal(t, "hotelres: TrainTestSplit: test size must be in (0, 1)", err.Error())
}

func TestNewValidationError(t *testing.T) {
	err := NewValidationError("n_estimators", "must be positive", -1)
	var ve *ValidationError
	require.True(t, As(err, &ve))
	assert.Equal(t, -1, ve.Value)
	assert.Contains(t, err.Error(), "'n_estimators'")
}

func TestStageError(t *testing.T) {
	cause := New("bucket not found")
	err := NewStageError("ingest", "Failed to download CSV file", cause)

	var se *StageError
	require.True(t, As(err, &se))
	assert.Equal(t, "ingest", se.Stage)
	assert.True(t, Is(err, cause))
	assert.Equal(t, "ingest: Failed to download CSV file: bucket not found", se.Error())

	bare := &StageError{Stage: "train", Message: "Failed to load data"}
	assert.Equal(t, "train: Failed to load data", bare.Error())
}

func TestStructuredErrorsMarshalZerolog(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	logger.Info().Object("err", &StageError{Stage: "process", Message: "Failed to preprocess data", Err: New("x")}).Msg("")
	assert.Contains(t, buf.String(), `"stage":"process"`)
	assert.Contains(t, buf.String(), `"cause":"x"`)
	assert.Contains(t, buf.String(), `"type":"StageError"`)

	buf.Reset()
	logger.Info().Object("err", &DimensionError{Op: "Predict", Expected: 3, Got: 2, Axis: 1}).Msg("")
	assert.Contains(t, buf.String(), `"axis_name":"features"`)
}

func TestWarnRoutesToHandler(t *testing.T) {
	var got []error
	SetWarningHandler(func(w error) { got = append(got, w) })
	t.Cleanup(func() { SetWarningHandler(nil) })

	w := NewUndefinedMetricWarning("recall", "no true samples", 0)
	Warn(w)

	require.Len(t, got, 1)
	assert.Equal(t, "'recall' is ill-defined and being set to 0.000000 due to no true samples.", got[0].Error())
}

func TestWarnPrefersZerologFunc(t *testing.T) {
	var handler, zl int
	SetWarningHandler(func(error) { handler++ })
	SetZerologWarnFunc(func(error) { zl++ })
	t.Cleanup(func() {
		SetZerologWarnFunc(nil)
		SetWarningHandler(nil)
	})

	Warn(NewDataConversionWarning("arrival_month", "float to int"))
	assert.Equal(t, 0, handler)
	assert.Equal(t, 1, zl)
}

func TestNumericalHelpers(t *testing.T) {
	assert.NoError(t, CheckNumericalStability("gradient", []float64{0.1, -2, 3}, 0))

	err := CheckNumericalStability("gradient", []float64{1, nan(), 2}, 4)
	var ni *NumericalInstabilityError
	require.True(t, As(err, &ni))
	assert.Equal(t, 4, ni.Iteration)
	assert.Contains(t, err.Error(), "gradient at iteration 4")

	assert.Error(t, CheckScalar("loss", inf(), 1))
	assert.NoError(t, CheckScalar("loss", 0.3, 1))

	assert.Equal(t, 0.0, SafeDivide(1, 0))
	assert.Equal(t, 2.0, SafeDivide(4, 2))
	assert.Equal(t, 1.0, ClipValue(3, 0, 1))
	assert.Equal(t, 0.0, ClipValue(-3, 0, 1))
}

func TestWrapAndIs(t *testing.T) {
	wrapped := Wrap(ErrEmptyData, "reading train.csv")
	assert.True(t, Is(wrapped, ErrEmptyData))
	assert.Contains(t, wrapped.Error(), "reading train.csv: empty data")

	wf := Wrapf(ErrModelNotLoaded, "predict %d rows", 3)
	assert.True(t, Is(wf, ErrModelNotLoaded))
	assert.Contains(t, wf.Error(), "predict 3 rows")
}

func nan() float64 {
	zero := 0.0
	return zero / zero
}

func inf() float64 {
	zero := 0.0
	return 1 / zero
}
