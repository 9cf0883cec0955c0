package svm

import (
	"context"
	"fmt"

	"github.com/viant/libsvm-wasm/engine"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Feed copies a feature matrix and its labels into a new engine sample set,
// replacing the previous one. The shape is checked before anything is
// allocated. A held model stays usable.
func (s *SVM) Feed(ctx context.Context, features [][]float64, labels []float64) (err error) {
	if len(features) == 0 {
		return ErrEmptyDataset
	}
	if len(labels) != len(features) {
		return fmt.Errorf("%w: %d rows, %d labels", ErrLengthMismatch, len(features), len(labels))
	}
	cols := len(features[0])
	for i, row := range features {
		if len(row) != cols {
			return fmt.Errorf("%w: row %d has %d features, want %d", ErrDimensionMismatch, i, len(row), cols)
		}
	}

	scope := engine.NewScope(s.engine)
	defer func() { err = multierr.Append(err, scope.Release(ctx)) }()
	featPtr, err := scope.Float64s(ctx, engine.Flatten(features))
	if err != nil {
		return err
	}
	labelPtr, err := scope.Float64s(ctx, labels)
	if err != nil {
		return err
	}
	h, err := s.samples.Replace(ctx, func(ctx context.Context) (engine.Ptr, error) {
		return s.engine.MakeSamples(ctx, featPtr, labelPtr, int32(len(features)), int32(cols))
	})
	if err != nil {
		return err
	}
	if !h.Valid() {
		s.rows, s.cols, s.classes = 0, 0, 0
		return fmt.Errorf("%w: make_samples returned null", ErrEngineCall)
	}
	s.rows, s.cols = len(features), cols
	s.classes = distinct(labels)
	s.logger.Debug("samples fed", zap.Stringer("handle", h), zap.Int("rows", s.rows), zap.Int("cols", s.cols))
	return nil
}

func distinct(values []float64) int {
	seen := make(map[float64]struct{}, len(values))
	for _, v := range values {
		seen[v] = struct{}{}
	}
	return len(seen)
}
