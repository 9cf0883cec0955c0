package svm

import (
	"context"

	"github.com/viant/libsvm-wasm/engine"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

func (s *SVM) enginePath(path string) (string, error) {
	if resolver, ok := s.engine.(engine.PathResolver); ok {
		return resolver.ResolvePath(path)
	}
	return path, nil
}

// settle releases scope and combines the release error with err. After a
// successful engine call the release error is logged instead.
func (s *SVM) settle(ctx context.Context, scope *engine.Scope, op string, ok bool, err error) error {
	rerr := scope.Release(ctx)
	if rerr != nil && ok && err == nil {
		s.logger.Warn("releasing scratch buffers failed", zap.String("op", op), zap.Error(rerr))
		return nil
	}
	return multierr.Append(err, rerr)
}

// Save asks the engine to write the model to path in its own format and
// returns the engine's success flag. Without a model it returns false and
// ErrModelNotTrained. A true result always comes with a nil error.
func (s *SVM) Save(ctx context.Context, path string) (bool, error) {
	if !s.hasModel() {
		return false, ErrModelNotTrained
	}
	name, err := s.enginePath(path)
	if err != nil {
		return false, err
	}
	scope := engine.NewScope(s.engine)
	ok, err := s.save(ctx, scope, name)
	if err = s.settle(ctx, scope, "save_model", ok, err); err != nil {
		return false, err
	}
	if !ok {
		s.logger.Warn("save_model failed", zap.String("path", path))
	}
	return ok, nil
}

func (s *SVM) save(ctx context.Context, scope *engine.Scope, name string) (bool, error) {
	p, err := scope.CString(ctx, name)
	if err != nil {
		return false, err
	}
	return s.engine.SaveModel(ctx, s.model.Handle().Ptr(), p)
}

// Load asks the engine to read a model from path. On success the new model
// replaces the previous one and the SVM becomes Loaded; when the engine
// cannot read the file Load returns false and the SVM is left as it was.
// A true result always comes with a nil error: once the new model is held,
// failures releasing the previous model or scratch buffers are logged.
func (s *SVM) Load(ctx context.Context, path string) (bool, error) {
	name, err := s.enginePath(path)
	if err != nil {
		return false, err
	}
	scope := engine.NewScope(s.engine)
	h, err := s.load(ctx, scope, name)
	if h.Valid() {
		s.state = Loaded
		if err != nil {
			s.logger.Warn("releasing previous model failed", zap.Error(err))
		}
		_ = s.settle(ctx, scope, "load_model", true, nil)
		s.logger.Debug("model loaded", zap.Stringer("handle", h), zap.String("path", path))
		return true, nil
	}
	if err = s.settle(ctx, scope, "load_model", false, err); err != nil {
		return false, err
	}
	s.logger.Warn("load_model returned null", zap.String("path", path))
	return false, nil
}

func (s *SVM) load(ctx context.Context, scope *engine.Scope, name string) (engine.Handle[engine.ModelKind], error) {
	p, err := scope.CString(ctx, name)
	if err != nil {
		return engine.Handle[engine.ModelKind]{}, err
	}
	return s.model.Swap(ctx, func(ctx context.Context) (engine.Ptr, error) {
		return s.engine.LoadModel(ctx, p)
	})
}
