package wasm

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/emscripten"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"github.com/viant/libsvm-wasm/engine"
	"go.uber.org/zap"
)

// Export names.
const (
	fnMalloc             = "malloc"
	fnFree               = "free"
	fnMakeParam          = "make_param"
	fnMakeSamples        = "make_samples"
	fnFreeSample         = "free_sample"
	fnFreeModel          = "free_model"
	fnTrainModel         = "train_model"
	fnCrossValidModel    = "cross_valid_model"
	fnPredictOne         = "predict_one"
	fnPredictOneWithProb = "predict_one_with_prob"
	fnSaveModel          = "save_model"
	fnLoadModel          = "load_model"
	fnNrClass            = "get_nr_class"
)

var requiredExports = []string{
	fnMalloc, fnFree, fnMakeParam, fnMakeSamples, fnFreeSample, fnFreeModel,
	fnTrainModel, fnCrossValidModel, fnPredictOne, fnPredictOneWithProb,
	fnSaveModel, fnLoadModel,
}

// Engine is a libsvm module instantiated in a wazero runtime.
type Engine struct {
	mu       sync.Mutex
	runtime  wazero.Runtime
	module   api.Module
	fns      map[string]api.Function
	mountDir string
	logger   *zap.Logger
}

// Option configures an Engine.
type Option func(*options)

type options struct {
	logger *zap.Logger
}

// WithLogger sets the logger for module start-up.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// Loader returns an engine.Loader that instantiates cfg.
func Loader(cfg Config, opts ...Option) engine.Loader {
	return func(ctx context.Context) (engine.Engine, error) {
		return New(ctx, cfg, opts...)
	}
}

// New compiles and instantiates the module described by cfg.
func New(ctx context.Context, cfg Config, opts ...Option) (*Engine, error) {
	o := &options{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(o)
	}
	cfg.init()
	mountDir, err := filepath.Abs(cfg.MountDir)
	if err != nil {
		return nil, fmt.Errorf("wasm: mount dir: %w", err)
	}
	bin, err := cfg.binary()
	if err != nil {
		return nil, err
	}

	started := time.Now()
	rc := wazero.NewRuntimeConfig()
	if cfg.MemoryLimitPages > 0 {
		rc = rc.WithMemoryLimitPages(cfg.MemoryLimitPages)
	}
	if cfg.CacheDir != "" {
		cache, err := wazero.NewCompilationCacheWithDir(cfg.CacheDir)
		if err != nil {
			return nil, fmt.Errorf("wasm: compilation cache: %w", err)
		}
		rc = rc.WithCompilationCache(cache)
	}
	r := wazero.NewRuntimeWithConfig(ctx, rc)
	e, err := instantiate(ctx, r, bin, cfg, mountDir)
	if err != nil {
		_ = r.Close(ctx)
		return nil, err
	}
	e.logger = o.logger
	var memory uint64
	if mem := e.module.Memory(); mem != nil {
		memory = uint64(mem.Size())
	}
	e.logger.Info("wasm engine instantiated",
		zap.String("module", humanize.Bytes(uint64(len(bin)))),
		zap.String("memory", humanize.IBytes(memory)),
		zap.String("mount", mountDir),
		zap.Duration("elapsed", time.Since(started)))
	return e, nil
}

func instantiate(ctx context.Context, r wazero.Runtime, bin []byte, cfg Config, mountDir string) (*Engine, error) {
	if _, err := wasi_snapshot_preview1.Instantiate(ctx, r); err != nil {
		return nil, fmt.Errorf("wasm: wasi: %w", err)
	}
	compiled, err := r.CompileModule(ctx, bin)
	if err != nil {
		return nil, fmt.Errorf("wasm: compile: %w", err)
	}
	if _, err := emscripten.InstantiateForModule(ctx, r, compiled); err != nil {
		return nil, fmt.Errorf("wasm: emscripten imports: %w", err)
	}
	exported := compiled.ExportedFunctions()
	var missing []string
	for _, name := range requiredExports {
		if _, ok := exported[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("wasm: module does not export %s", strings.Join(missing, ", "))
	}
	mc := wazero.NewModuleConfig().
		WithName("libsvm").
		WithFSConfig(wazero.NewFSConfig().WithDirMount(mountDir, "/")).
		WithStartFunctions(cfg.StartFunctions...)
	mod, err := r.InstantiateModule(ctx, compiled, mc)
	if err != nil {
		return nil, fmt.Errorf("wasm: instantiate: %w", err)
	}
	e := &Engine{
		runtime:  r,
		module:   mod,
		fns:      make(map[string]api.Function, len(requiredExports)+1),
		mountDir: mountDir,
	}
	for _, name := range append(requiredExports, fnNrClass) {
		if fn := mod.ExportedFunction(name); fn != nil {
			e.fns[name] = fn
		}
	}
	return e, nil
}

// Close releases the runtime and everything allocated in it.
func (e *Engine) Close(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.runtime.Close(ctx)
}

func (e *Engine) call(ctx context.Context, name string, params ...uint64) ([]uint64, error) {
	fn, ok := e.fns[name]
	if !ok {
		return nil, fmt.Errorf("wasm: export %s not found", name)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	results, err := fn.Call(ctx, params...)
	if err != nil {
		return nil, fmt.Errorf("wasm: %s: %w", name, err)
	}
	return results, nil
}

func (e *Engine) callPtr(ctx context.Context, name string, params ...uint64) (engine.Ptr, error) {
	results, err := e.call(ctx, name, params...)
	if err != nil {
		return 0, err
	}
	if len(results) == 0 {
		return 0, fmt.Errorf("wasm: %s returned no result", name)
	}
	return engine.Ptr(api.DecodeU32(results[0])), nil
}

func (e *Engine) callF64(ctx context.Context, name string, params ...uint64) (float64, error) {
	results, err := e.call(ctx, name, params...)
	if err != nil {
		return 0, err
	}
	if len(results) == 0 {
		return 0, fmt.Errorf("wasm: %s returned no result", name)
	}
	return api.DecodeF64(results[0]), nil
}

func ptr(p engine.Ptr) uint64 { return api.EncodeU32(uint32(p)) }
func i32(v int32) uint64      { return api.EncodeI32(v) }
func f32(v float32) uint64    { return api.EncodeF32(v) }

// Malloc calls the module's malloc.
func (e *Engine) Malloc(ctx context.Context, size uint32) (engine.Ptr, error) {
	return e.callPtr(ctx, fnMalloc, api.EncodeU32(size))
}

// Free calls the module's free.
func (e *Engine) Free(ctx context.Context, p engine.Ptr) error {
	_, err := e.call(ctx, fnFree, ptr(p))
	return err
}

// Write copies data into linear memory at p.
func (e *Engine) Write(p engine.Ptr, data []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.module.Memory().Write(uint32(p), data) {
		return fmt.Errorf("wasm: write of %d bytes at %#x out of range", len(data), uint32(p))
	}
	return nil
}

// Read copies size bytes of linear memory starting at p.
func (e *Engine) Read(p engine.Ptr, size uint32) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	view, ok := e.module.Memory().Read(uint32(p), size)
	if !ok {
		return nil, fmt.Errorf("wasm: read of %d bytes at %#x out of range", size, uint32(p))
	}
	out := make([]byte, len(view))
	copy(out, view)
	return out, nil
}

// MakeParam calls make_param; scalar hyperparameters are passed as f32.
func (e *Engine) MakeParam(ctx context.Context, a engine.ParamArgs) (engine.Ptr, error) {
	return e.callPtr(ctx, fnMakeParam,
		i32(a.SVMType), i32(a.KernelType), i32(a.Degree),
		f32(a.Gamma), f32(a.Coef0), f32(a.Nu), f32(a.CacheSize), f32(a.C), f32(a.Eps), f32(a.P),
		i32(a.Shrinking), i32(a.Probability), i32(a.NrWeight),
		ptr(a.WeightLabel), ptr(a.Weight))
}

// MakeSamples calls make_samples.
func (e *Engine) MakeSamples(ctx context.Context, features, labels engine.Ptr, rows, cols int32) (engine.Ptr, error) {
	return e.callPtr(ctx, fnMakeSamples, ptr(features), ptr(labels), i32(rows), i32(cols))
}

// FreeSample calls free_sample.
func (e *Engine) FreeSample(ctx context.Context, samples engine.Ptr) error {
	_, err := e.call(ctx, fnFreeSample, ptr(samples))
	return err
}

// FreeModel calls free_model.
func (e *Engine) FreeModel(ctx context.Context, model engine.Ptr) error {
	_, err := e.call(ctx, fnFreeModel, ptr(model))
	return err
}

// TrainModel calls train_model.
func (e *Engine) TrainModel(ctx context.Context, samples, param engine.Ptr) (engine.Ptr, error) {
	return e.callPtr(ctx, fnTrainModel, ptr(samples), ptr(param))
}

// CrossValidate calls cross_valid_model, which fills target.
func (e *Engine) CrossValidate(ctx context.Context, samples, param engine.Ptr, folds int32, target engine.Ptr) error {
	_, err := e.call(ctx, fnCrossValidModel, ptr(samples), ptr(param), i32(folds), ptr(target))
	return err
}

// PredictOne calls predict_one.
func (e *Engine) PredictOne(ctx context.Context, model, data engine.Ptr, size int32) (float64, error) {
	return e.callF64(ctx, fnPredictOne, ptr(model), ptr(data), i32(size))
}

// PredictOneWithProb calls predict_one_with_prob, which fills probs.
func (e *Engine) PredictOneWithProb(ctx context.Context, model, data engine.Ptr, size int32, probs engine.Ptr) (float64, error) {
	return e.callF64(ctx, fnPredictOneWithProb, ptr(model), ptr(data), i32(size), ptr(probs))
}

// SaveModel returns the engine's success flag; save_model returns a C short.
func (e *Engine) SaveModel(ctx context.Context, model, path engine.Ptr) (bool, error) {
	results, err := e.call(ctx, fnSaveModel, ptr(model), ptr(path))
	if err != nil {
		return false, err
	}
	if len(results) == 0 {
		return false, fmt.Errorf("wasm: %s returned no result", fnSaveModel)
	}
	return int16(api.DecodeI32(results[0])) != 0, nil
}

// LoadModel calls load_model.
func (e *Engine) LoadModel(ctx context.Context, path engine.Ptr) (engine.Ptr, error) {
	return e.callPtr(ctx, fnLoadModel, ptr(path))
}

// NrClass returns the class count of model, or zero when the module does not
// export get_nr_class.
func (e *Engine) NrClass(ctx context.Context, model engine.Ptr) (int32, error) {
	if _, ok := e.fns[fnNrClass]; !ok {
		return 0, nil
	}
	results, err := e.call(ctx, fnNrClass, ptr(model))
	if err != nil {
		return 0, err
	}
	if len(results) == 0 {
		return 0, fmt.Errorf("wasm: %s returned no result", fnNrClass)
	}
	return api.DecodeI32(results[0]), nil
}

// ResolvePath maps a host path below the mount directory to the path the
// engine sees.
func (e *Engine) ResolvePath(path string) (string, error) {
	return resolvePath(e.mountDir, path)
}

func resolvePath(mountDir, path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(mountDir, abs)
	if err != nil {
		return "", err
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("wasm: %s is outside mount directory %s", path, mountDir)
	}
	if rel == "." {
		return "/", nil
	}
	return "/" + filepath.ToSlash(rel), nil
}

var (
	_ engine.Engine       = (*Engine)(nil)
	_ engine.ClassCounter = (*Engine)(nil)
	_ engine.PathResolver = (*Engine)(nil)
)
