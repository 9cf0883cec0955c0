package svm

import (
	"context"
	"fmt"

	"github.com/viant/libsvm-wasm/engine"
	"github.com/viant/libsvm-wasm/param"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

func paramArgs(cfg param.Config) engine.ParamArgs {
	return engine.ParamArgs{
		SVMType:     int32(cfg.SVMType),
		KernelType:  int32(cfg.KernelType),
		Degree:      int32(cfg.Degree),
		Gamma:       float32(cfg.Gamma),
		Coef0:       float32(cfg.Coef0),
		Nu:          float32(cfg.Nu),
		CacheSize:   float32(cfg.CacheSize),
		C:           float32(cfg.C),
		Eps:         float32(cfg.Eps),
		P:           float32(cfg.P),
		Shrinking:   boolInt(cfg.Shrinking),
		Probability: boolInt(cfg.Probability),
		NrWeight:    int32(cfg.NrWeight()),
	}
}

func boolInt(b bool) int32 {
	if b {
		return 1
	}
	return 0
}

// encodeParam releases the current parameter handle and its weight arrays,
// then builds new ones from s.cfg. The weight arrays stay allocated for as
// long as the parameter handle that references them.
func (s *SVM) encodeParam(ctx context.Context) error {
	if err := s.releaseParam(ctx); err != nil {
		return err
	}
	args := paramArgs(s.cfg)
	if n := s.cfg.NrWeight(); n > 0 {
		labels := make([]int32, n)
		weights := make([]float32, n)
		for i := 0; i < n; i++ {
			labels[i] = int32(s.cfg.WeightLabel[i])
			weights[i] = float32(s.cfg.Weight[i])
		}
		var err error
		if args.WeightLabel, err = s.weights.Int32s(ctx, labels); err != nil {
			return multierr.Append(err, s.weights.Release(ctx))
		}
		if args.Weight, err = s.weights.Float32s(ctx, weights); err != nil {
			return multierr.Append(err, s.weights.Release(ctx))
		}
	}
	h, err := s.param.Replace(ctx, func(ctx context.Context) (engine.Ptr, error) {
		return s.engine.MakeParam(ctx, args)
	})
	if err == nil && !h.Valid() {
		err = fmt.Errorf("%w: make_param returned null", ErrEngineCall)
	}
	if err != nil {
		return multierr.Append(err, s.weights.Release(ctx))
	}
	s.logger.Debug("param encoded",
		zap.Stringer("handle", h),
		zap.Stringer("svm_type", s.cfg.SVMType),
		zap.Stringer("kernel_type", s.cfg.KernelType),
		zap.Int("nr_weight", int(args.NrWeight)))
	return nil
}

// releaseParam frees the parameter handle before the arrays it references.
func (s *SVM) releaseParam(ctx context.Context) error {
	err := s.param.Release(ctx)
	return multierr.Append(err, s.weights.Release(ctx))
}

func (s *SVM) ensureParam(ctx context.Context) error {
	if s.param.Valid() {
		return nil
	}
	return s.encodeParam(ctx)
}
