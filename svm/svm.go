package svm

import (
	"context"
	"fmt"

	"github.com/viant/libsvm-wasm/engine"
	"github.com/viant/libsvm-wasm/param"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// State is the model lifecycle state of an SVM.
type State int

const (
	// Untrained means no model is held.
	Untrained State = iota
	// Trained means the model was produced by Train.
	Trained
	// Loaded means the model was read from a file by Load.
	Loaded
)

func (s State) String() string {
	switch s {
	case Untrained:
		return "untrained"
	case Trained:
		return "trained"
	case Loaded:
		return "loaded"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// SVM is one binding instance: a configuration plus the parameter, sample set
// and model handles it owns in the engine.
type SVM struct {
	engine engine.Engine
	logger *zap.Logger
	cfg    param.Config

	param   engine.Slot[engine.ParamKind]
	weights *engine.Scope // weight_label/weight arrays referenced by param
	samples engine.Slot[engine.SamplesKind]
	model   engine.Slot[engine.ModelKind]
	state   State

	rows    int
	cols    int
	classes int // distinct labels in the current sample set
}

// Option configures an SVM.
type Option func(*SVM)

// WithLogger sets the logger used for handle lifecycle events.
func WithLogger(logger *zap.Logger) Option {
	return func(s *SVM) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New waits for gw to be ready and returns an SVM configured with a copy of
// cfg, whose parameters are already encoded in the engine. cfg is normalized
// and validated before the engine is touched.
func New(ctx context.Context, gw *engine.Gateway, cfg param.Config, opts ...Option) (*SVM, error) {
	cfg = cfg.Clone().Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	e, err := gw.Ready(ctx)
	if err != nil {
		return nil, err
	}
	s := &SVM{
		engine:  e,
		logger:  zap.NewNop(),
		cfg:     cfg,
		param:   engine.NewSlot[engine.ParamKind](e.Free),
		weights: engine.NewScope(e),
		samples: engine.NewSlot[engine.SamplesKind](e.FreeSample),
		model:   engine.NewSlot[engine.ModelKind](e.FreeModel),
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.encodeParam(ctx); err != nil {
		return nil, multierr.Append(err, s.Close(ctx))
	}
	return s, nil
}

// State returns the model lifecycle state.
func (s *SVM) State() State { return s.state }

// Config returns a copy of the normalized configuration. Changing it has no
// effect on s; use SetConfig.
func (s *SVM) Config() param.Config { return s.cfg.Clone() }

// Samples returns the shape of the current sample set, or zeros when none
// was fed.
func (s *SVM) Samples() (rows, cols int) {
	if !s.samples.Valid() {
		return 0, 0
	}
	return s.rows, s.cols
}

// SetConfig replaces the configuration and re-encodes the parameters. An
// invalid cfg is rejected without touching the engine. The current model,
// if any, is kept.
func (s *SVM) SetConfig(ctx context.Context, cfg param.Config) error {
	cfg = cfg.Clone().Normalize()
	if err := cfg.Validate(); err != nil {
		return err
	}
	s.cfg = cfg
	return s.encodeParam(ctx)
}

// Reset releases the model and returns to Untrained. Samples and parameters
// are kept.
func (s *SVM) Reset(ctx context.Context) error {
	s.state = Untrained
	return s.model.Release(ctx)
}

// Close releases every handle and buffer the SVM owns. It is safe to call
// more than once; an SVM may be fed and trained again after Close.
func (s *SVM) Close(ctx context.Context) error {
	s.state = Untrained
	err := s.model.Release(ctx)
	err = multierr.Append(err, s.samples.Release(ctx))
	err = multierr.Append(err, s.releaseParam(ctx))
	s.rows, s.cols, s.classes = 0, 0, 0
	return err
}
