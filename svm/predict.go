package svm

import (
	"context"
	"fmt"
	"math"

	"github.com/viant/libsvm-wasm/engine"
	"go.uber.org/multierr"
)

func (s *SVM) hasModel() bool {
	return (s.state == Trained || s.state == Loaded) && s.model.Valid()
}

// Predict returns the engine's prediction for one feature vector. Without a
// trained or loaded model it returns NaN and ErrModelNotTrained and the
// engine is not called.
func (s *SVM) Predict(ctx context.Context, x []float64) (float64, error) {
	if !s.hasModel() {
		return math.NaN(), ErrModelNotTrained
	}
	return s.predict(ctx, x)
}

func (s *SVM) predict(ctx context.Context, x []float64) (label float64, err error) {
	scope := engine.NewScope(s.engine)
	defer func() { err = multierr.Append(err, scope.Release(ctx)) }()
	data, err := scope.Float64s(ctx, x)
	if err != nil {
		return math.NaN(), err
	}
	label, err = s.engine.PredictOne(ctx, s.model.Handle().Ptr(), data, int32(len(x)))
	if err != nil {
		return math.NaN(), err
	}
	return label, nil
}

// PredictBatch predicts every row of features in order.
func (s *SVM) PredictBatch(ctx context.Context, features [][]float64) ([]float64, error) {
	if !s.hasModel() {
		return nil, ErrModelNotTrained
	}
	out := make([]float64, len(features))
	for i, x := range features {
		label, err := s.predict(ctx, x)
		if err != nil {
			return nil, fmt.Errorf("svm: predict row %d: %w", i, err)
		}
		out[i] = label
	}
	return out, nil
}

// PredictProbability returns the predicted label and one probability
// estimate per class, in the model's class order. The configuration must
// request probability estimates.
func (s *SVM) PredictProbability(ctx context.Context, x []float64) (label float64, probs []float64, err error) {
	if !s.hasModel() {
		return math.NaN(), nil, ErrModelNotTrained
	}
	if !s.cfg.Probability {
		return math.NaN(), nil, ErrProbabilityDisabled
	}
	n, err := s.classCount(ctx)
	if err != nil {
		return math.NaN(), nil, err
	}
	scope := engine.NewScope(s.engine)
	defer func() { err = multierr.Append(err, scope.Release(ctx)) }()
	data, err := scope.Float64s(ctx, x)
	if err != nil {
		return math.NaN(), nil, err
	}
	target, err := scope.Alloc(ctx, uint32(n)*8)
	if err != nil {
		return math.NaN(), nil, err
	}
	label, err = s.engine.PredictOneWithProb(ctx, s.model.Handle().Ptr(), data, int32(len(x)), target)
	if err != nil {
		return math.NaN(), nil, err
	}
	if probs, err = scope.ReadFloat64s(target, n); err != nil {
		return math.NaN(), nil, err
	}
	return label, probs, nil
}

// classCount sizes probability output: the engine's own class count when
// it reports a positive one, else the number of distinct training labels.
func (s *SVM) classCount(ctx context.Context) (int, error) {
	if counter, ok := s.engine.(engine.ClassCounter); ok {
		n, err := counter.NrClass(ctx, s.model.Handle().Ptr())
		if err != nil {
			return 0, err
		}
		if n > 0 {
			return int(n), nil
		}
	}
	if s.state == Trained && s.classes > 0 {
		return s.classes, nil
	}
	return 0, fmt.Errorf("svm: class count unknown for %s model", s.state)
}
