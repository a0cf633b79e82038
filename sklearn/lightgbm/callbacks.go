package lightgbm

import (
	"context"
	"sort"
	"time"

	"github.com/YuminosukeSato/hotelres/pkg/log"
)

// CallbackEnv contains the environment for callbacks
type CallbackEnv struct {
	Model        *Model
	Iteration    int
	BeginTime    time.Time
	EndTime      time.Time
	EvalResults  map[string]float64
	StopTraining bool
}

// Callback is a function that can be called during training
type Callback func(env *CallbackEnv) error

// LogEvaluation logs evaluation results every period iterations
func LogEvaluation(logger log.Logger, period int) Callback {
	if period <= 0 {
		period = 1
	}
	return func(env *CallbackEnv) error {
		if len(env.EvalResults) == 0 || env.Iteration%period != 0 {
			return nil
		}
		names := make([]string, 0, len(env.EvalResults))
		for name := range env.EvalResults {
			names = append(names, name)
		}
		sort.Strings(names)

		fields := []any{log.IterationKey, env.Iteration}
		for _, name := range names {
			fields = append(fields, name, env.EvalResults[name])
		}
		logger.Debug("Evaluation", fields...)
		return nil
	}
}

// RecordEvaluation records evaluation history
func RecordEvaluation(history map[string][]float64) Callback {
	return func(env *CallbackEnv) error {
		for name, value := range env.EvalResults {
			history[name] = append(history[name], value)
		}
		return nil
	}
}

// TimeLimit stops training after a specified duration
func TimeLimit(maxDuration time.Duration) Callback {
	var startTime time.Time
	return func(env *CallbackEnv) error {
		if startTime.IsZero() {
			startTime = time.Now()
		}
		if time.Since(startTime) > maxDuration {
			log.GetLoggerWithName("lightgbm.callbacks").Warn("Time limit reached",
				log.IterationKey, env.Iteration)
			env.StopTraining = true
		}
		return nil
	}
}

// WithContext aborts training with ctx.Err() once ctx is done.
func WithContext(ctx context.Context) Callback {
	return func(_ *CallbackEnv) error {
		return ctx.Err()
	}
}

// CallbackList manages multiple callbacks
type CallbackList struct {
	callbacks []Callback
	env       *CallbackEnv
}

// NewCallbackList creates a new callback list
func NewCallbackList(callbacks ...Callback) *CallbackList {
	return &CallbackList{
		callbacks: callbacks,
		env: &CallbackEnv{
			EvalResults: make(map[string]float64),
		},
	}
}

// BeforeIteration calls callbacks before each iteration
func (cl *CallbackList) BeforeIteration(iteration int, model *Model) error {
	cl.env.Iteration = iteration
	cl.env.Model = model
	cl.env.BeginTime = time.Now()
	cl.env.EvalResults = nil

	for _, cb := range cl.callbacks {
		if err := cb(cl.env); err != nil {
			return err
		}
		if cl.env.StopTraining {
			break
		}
	}
	return nil
}

// AfterIteration calls callbacks after each iteration
func (cl *CallbackList) AfterIteration(iteration int, model *Model, evalResults map[string]float64) error {
	cl.env.Iteration = iteration
	cl.env.Model = model
	cl.env.EndTime = time.Now()
	cl.env.EvalResults = evalResults

	for _, cb := range cl.callbacks {
		if err := cb(cl.env); err != nil {
			return err
		}
	}
	return nil
}

// ShouldStop returns whether training should stop
func (cl *CallbackList) ShouldStop() bool {
	return cl.env.StopTraining
}
