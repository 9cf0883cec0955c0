package svm

import (
	"context"
	"fmt"

	"github.com/viant/libsvm-wasm/engine"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Train builds a model from the current sample set and parameters, releasing
// the previous model first. When the engine declines, the SVM is left
// Untrained and ErrEngineCall is returned.
func (s *SVM) Train(ctx context.Context) error {
	if !s.samples.Valid() {
		return ErrNoSamples
	}
	if err := s.ensureParam(ctx); err != nil {
		return err
	}
	s.state = Untrained
	samples, prm := s.samples.Handle().Ptr(), s.param.Handle().Ptr()
	h, err := s.model.Replace(ctx, func(ctx context.Context) (engine.Ptr, error) {
		return s.engine.TrainModel(ctx, samples, prm)
	})
	if err != nil {
		return err
	}
	if !h.Valid() {
		s.logger.Warn("train_model returned null", zap.Int("rows", s.rows), zap.Stringer("svm_type", s.cfg.SVMType))
		return fmt.Errorf("%w: train_model returned null", ErrEngineCall)
	}
	s.state = Trained
	s.logger.Debug("model trained", zap.Stringer("handle", h), zap.Int("rows", s.rows))
	return nil
}

// CrossValidate runs k-fold cross-validation on the current sample set and
// returns one prediction per sample, in sample order. The held model is not
// affected.
func (s *SVM) CrossValidate(ctx context.Context, folds int) (predictions []float64, err error) {
	if folds < 2 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidFolds, folds)
	}
	if !s.samples.Valid() {
		return nil, ErrNoSamples
	}
	if err := s.ensureParam(ctx); err != nil {
		return nil, err
	}
	scope := engine.NewScope(s.engine)
	defer func() { err = multierr.Append(err, scope.Release(ctx)) }()
	target, err := scope.Alloc(ctx, uint32(s.rows)*8)
	if err != nil {
		return nil, err
	}
	samples, prm := s.samples.Handle().Ptr(), s.param.Handle().Ptr()
	if err = s.engine.CrossValidate(ctx, samples, prm, int32(folds), target); err != nil {
		return nil, err
	}
	return scope.ReadFloat64s(target, s.rows)
}
