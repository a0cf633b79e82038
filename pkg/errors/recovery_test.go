package errors

import (
	stderrors "errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecover_WithPanic(t *testing.T) {
	fn := func() (err error) {
		defer Recover(&err, "Predict")
		panic("index out of range")
	}

	err := fn()
	require.Error(t, err)

	var panicErr *PanicError
	require.True(t, As(err, &panicErr))
	assert.Equal(t, "Predict", panicErr.Operation)
	assert.Equal(t, "index out of range", panicErr.PanicValue)
	assert.NotEmpty(t, panicErr.StackTrace)
	assert.Equal(t, "panic in Predict: index out of range", err.Error())
	assert.Contains(t, panicErr.String(), "Stack trace:")
}

func TestRecover_WithoutPanic(t *testing.T) {
	fn := func() (err error) {
		defer Recover(&err, "Predict")
		return nil
	}
	assert.NoError(t, fn())
}

func TestRecover_WithExistingError(t *testing.T) {
	original := New("bad input")
	fn := func() (err error) {
		defer Recover(&err, "Transform")
		err = original
		panic("boom")
	}

	err := fn()
	require.Error(t, err)
	assert.True(t, Is(err, original), "original error must stay in the chain")
	assert.Contains(t, err.Error(), "panic in Transform: boom")
}

func TestRecover_DifferentPanicTypes(t *testing.T) {
	tests := []struct {
		name  string
		value interface{}
		want  string
	}{
		{"string", "message", "message"},
		{"int", 42, "42"},
		{"error", stderrors.New("inner"), "inner"},
		{"struct", struct{ Code int }{7}, "{7}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := SafeExecute("op", func() error { panic(tt.value) })
			require.Error(t, err)
			assert.True(t, strings.HasSuffix(err.Error(), tt.want), err.Error())
		})
	}
}

func TestPanicError_UnwrapsErrorValue(t *testing.T) {
	inner := stderrors.New("inner")
	pe := NewPanicError("op", inner)
	assert.Same(t, inner, pe.Unwrap())
	assert.Nil(t, NewPanicError("op", "text").Unwrap())
}

func TestSafeExecute(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		called := false
		err := SafeExecute("op", func() error {
			called = true
			return nil
		})
		assert.NoError(t, err)
		assert.True(t, called)
	})

	t.Run("function error is returned unchanged", func(t *testing.T) {
		want := New("failed")
		err := SafeExecute("op", func() error { return want })
		assert.Same(t, want, err)
	})

	t.Run("panic becomes PanicError", func(t *testing.T) {
		err := SafeExecute("load bundle", func() error {
			var m map[string]int
			m["x"] = 1
			return nil
		})
		var panicErr *PanicError
		require.True(t, As(err, &panicErr))
		assert.Equal(t, "load bundle", panicErr.Operation)
	})
}
