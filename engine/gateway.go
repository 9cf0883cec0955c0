package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Loader brings up an engine. A Gateway invokes its loader at most once.
type Loader func(ctx context.Context) (Engine, error)

// Gateway lazily initializes an engine exactly once and hands it to every
// caller that awaits readiness. It replaces a process-global engine variable:
// create one Gateway per process (or per engine) and inject it into each
// binding instance.
type Gateway struct {
	loader Loader
	logger *zap.Logger

	once   sync.Once
	done   chan struct{}
	engine Engine
	err    error
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithLogger sets the logger used to report engine start-up.
func WithLogger(logger *zap.Logger) Option {
	return func(g *Gateway) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// NewGateway returns a Gateway that will start the engine with loader on
// first use.
func NewGateway(loader Loader, opts ...Option) *Gateway {
	g := &Gateway{
		loader: loader,
		logger: zap.NewNop(),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Ready waits until the engine is loaded and returns it. The first call
// starts the loader; later and concurrent calls wait on the same result. If
// loading failed, every call returns that failure. When ctx ends first,
// Ready returns an error wrapping ErrNotReady, and loading continues in the
// background.
func (g *Gateway) Ready(ctx context.Context) (Engine, error) {
	g.once.Do(func() {
		// Loading outlives the caller that happened to trigger it.
		go g.load(context.WithoutCancel(ctx))
	})
	select {
	case <-g.done:
		return g.engine, g.err
	default:
	}
	select {
	case <-g.done:
		return g.engine, g.err
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", ErrNotReady, ctx.Err())
	}
}

// Loaded reports whether loading has completed, successfully or not, without
// triggering it.
func (g *Gateway) Loaded() bool {
	select {
	case <-g.done:
		return true
	default:
		return false
	}
}

func (g *Gateway) load(ctx context.Context) {
	defer close(g.done)
	if g.loader == nil {
		g.err = fmt.Errorf("engine: loader is nil")
		return
	}
	started := time.Now()
	e, err := g.loader(ctx)
	switch {
	case err != nil:
		g.err = fmt.Errorf("engine: load failed: %w", err)
	case e == nil:
		g.err = fmt.Errorf("engine: loader returned no engine")
	default:
		g.engine = e
	}
	if g.err != nil {
		g.logger.Error("engine load failed", zap.Error(g.err))
		return
	}
	g.logger.Info("engine loaded", zap.Duration("elapsed", time.Since(started)))
}
