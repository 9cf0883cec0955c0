package enginetest

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/viant/libsvm-wasm/engine"
)

// Primitive names, as counted by Calls.
const (
	CallMalloc             = "malloc"
	CallFree               = "free"
	CallMakeParam          = "make_param"
	CallMakeSamples        = "make_samples"
	CallFreeSample         = "free_sample"
	CallFreeModel          = "free_model"
	CallTrainModel         = "train_model"
	CallCrossValidModel    = "cross_valid_model"
	CallPredictOne         = "predict_one"
	CallPredictOneWithProb = "predict_one_with_prob"
	CallSaveModel          = "save_model"
	CallLoadModel          = "load_model"
	CallNrClass            = "get_nr_class"
)

const (
	initialMemory = 1 << 16
	align         = 8
	objectSize    = 16 // bytes reserved for each param/samples/model struct
)

// Stats is a snapshot of the engine's memory and handle accounting.
type Stats struct {
	Allocs       int // successful allocations, including engine objects
	Frees        int // successful releases, including free_sample/free_model
	DoubleFrees  int // releases of something already released
	InvalidFrees int // releases of something never allocated (or of the wrong kind)
	LiveBuffers  int // raw buffers and parameter structs still allocated
	LiveParams   int
	LiveSamples  int
	LiveModels   int
}

// Leaks returns the number of live allocations of any kind.
func (s Stats) Leaks() int {
	return s.LiveBuffers + s.LiveSamples + s.LiveModels
}

type problem struct {
	rows   [][]float32
	labels []float64
	cols   int
}

// Engine is an in-process engine.Engine. It is safe for concurrent use.
type Engine struct {
	mu       sync.Mutex
	mem      []byte
	next     uint32
	allocs   map[engine.Ptr]uint32
	released map[engine.Ptr]bool
	params   map[engine.Ptr]engine.ParamArgs
	samples  map[engine.Ptr]*problem
	models   map[engine.Ptr]*model
	calls    map[string]int
	declined map[string]int
	stats    Stats
}

// New returns an empty engine.
func New() *Engine {
	return &Engine{
		mem:      make([]byte, initialMemory),
		next:     align,
		allocs:   make(map[engine.Ptr]uint32),
		released: make(map[engine.Ptr]bool),
		params:   make(map[engine.Ptr]engine.ParamArgs),
		samples:  make(map[engine.Ptr]*problem),
		models:   make(map[engine.Ptr]*model),
		calls:    make(map[string]int),
		declined: make(map[string]int),
	}
}

// Loader returns an engine.Loader that yields e.
func (e *Engine) Loader() engine.Loader {
	return func(ctx context.Context) (engine.Engine, error) { return e, nil }
}

// Stats returns a snapshot of the accounting counters.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := e.stats
	s.LiveBuffers = len(e.allocs) - len(e.samples) - len(e.models)
	s.LiveParams = len(e.params)
	s.LiveSamples = len(e.samples)
	s.LiveModels = len(e.models)
	return s
}

// Calls returns how many times the named primitive was invoked.
func (e *Engine) Calls(name string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls[name]
}

// Decline makes the next n calls of the named constructor (make_param,
// make_samples, train_model, load_model) return null, or of save_model return
// false, the way the real engine signals failure.
func (e *Engine) Decline(name string, n int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.declined[name] += n
}

func (e *Engine) enter(name string) (declined bool) {
	e.calls[name]++
	if e.declined[name] > 0 {
		e.declined[name]--
		return true
	}
	return false
}

// Malloc allocates size bytes; addresses are never reused.
func (e *Engine) Malloc(ctx context.Context, size uint32) (engine.Ptr, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.enter(CallMalloc)
	return e.malloc(size)
}

func (e *Engine) malloc(size uint32) (engine.Ptr, error) {
	if size == 0 {
		size = 1
	}
	start := e.next
	end := uint64(start) + uint64(size)
	if end > 1<<32-1 {
		return 0, fmt.Errorf("enginetest: out of memory allocating %d bytes", size)
	}
	for uint64(len(e.mem)) < end {
		e.mem = append(e.mem, make([]byte, len(e.mem))...)
	}
	e.next = uint32((end + align - 1) &^ (align - 1))
	p := engine.Ptr(start)
	e.allocs[p] = size
	e.stats.Allocs++
	return p, nil
}

// Free releases a buffer or a parameter struct. Freeing null is a no-op.
func (e *Engine) Free(ctx context.Context, p engine.Ptr) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.enter(CallFree)
	if p.IsNull() {
		return nil
	}
	if _, ok := e.samples[p]; ok {
		e.stats.InvalidFrees++
		return fmt.Errorf("enginetest: free of sample set %#x, use free_sample", uint32(p))
	}
	if _, ok := e.models[p]; ok {
		e.stats.InvalidFrees++
		return fmt.Errorf("enginetest: free of model %#x, use free_model", uint32(p))
	}
	if err := e.release(p); err != nil {
		return err
	}
	delete(e.params, p)
	return nil
}

func (e *Engine) release(p engine.Ptr) error {
	if _, ok := e.allocs[p]; !ok {
		if e.released[p] {
			e.stats.DoubleFrees++
			return fmt.Errorf("enginetest: double free of %#x", uint32(p))
		}
		e.stats.InvalidFrees++
		return fmt.Errorf("enginetest: free of unallocated pointer %#x", uint32(p))
	}
	delete(e.allocs, p)
	e.released[p] = true
	e.stats.Frees++
	return nil
}

// Write copies data to p, which must be the start of a live allocation large
// enough to hold it.
func (e *Engine) Write(p engine.Ptr, data []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.check(p, uint32(len(data))); err != nil {
		return err
	}
	copy(e.mem[p:], data)
	return nil
}

// Read copies size bytes from p, which must be the start of a live
// allocation at least that large.
func (e *Engine) Read(p engine.Ptr, size uint32) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.read(p, size)
}

func (e *Engine) read(p engine.Ptr, size uint32) ([]byte, error) {
	if err := e.check(p, size); err != nil {
		return nil, err
	}
	return bytes.Clone(e.mem[p : uint32(p)+size]), nil
}

func (e *Engine) check(p engine.Ptr, size uint32) error {
	allocated, ok := e.allocs[p]
	if !ok {
		if e.released[p] {
			return fmt.Errorf("enginetest: use after free of %#x", uint32(p))
		}
		return fmt.Errorf("enginetest: access to unallocated pointer %#x", uint32(p))
	}
	if size > allocated {
		return fmt.Errorf("enginetest: access of %d bytes overflows %d byte allocation at %#x", size, allocated, uint32(p))
	}
	return nil
}

func (e *Engine) readCString(p engine.Ptr) (string, error) {
	size, ok := e.allocs[p]
	if !ok {
		return "", fmt.Errorf("enginetest: string at unallocated pointer %#x", uint32(p))
	}
	b := e.mem[p : uint32(p)+size]
	if i := bytes.IndexByte(b, 0); i >= 0 {
		return string(b[:i]), nil
	}
	return "", fmt.Errorf("enginetest: unterminated string at %#x", uint32(p))
}

// MakeParam records args. Like the real engine it keeps the weight pointers
// rather than copying the arrays; they are dereferenced at training time.
func (e *Engine) MakeParam(ctx context.Context, args engine.ParamArgs) (engine.Ptr, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.enter(CallMakeParam) {
		return 0, nil
	}
	p, err := e.malloc(objectSize)
	if err != nil {
		return 0, err
	}
	e.params[p] = args
	return p, nil
}

// MakeSamples copies rows*cols features and rows labels into a new sample set.
func (e *Engine) MakeSamples(ctx context.Context, features, labels engine.Ptr, rows, cols int32) (engine.Ptr, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.enter(CallMakeSamples) {
		return 0, nil
	}
	if rows <= 0 || cols < 0 {
		return 0, fmt.Errorf("enginetest: invalid sample shape %dx%d", rows, cols)
	}
	var flat []float64
	if cols > 0 {
		b, err := e.read(features, uint32(rows)*uint32(cols)*8)
		if err != nil {
			return 0, err
		}
		if flat, err = engine.DecodeFloat64s(b); err != nil {
			return 0, err
		}
	}
	b, err := e.read(labels, uint32(rows)*8)
	if err != nil {
		return 0, err
	}
	y, err := engine.DecodeFloat64s(b)
	if err != nil {
		return 0, err
	}
	prob := &problem{rows: make([][]float32, rows), labels: y, cols: int(cols)}
	for i := range prob.rows {
		row := make([]float32, cols)
		for j := range row {
			row[j] = float32(flat[i*int(cols)+j])
		}
		prob.rows[i] = row
	}
	p, err := e.malloc(objectSize)
	if err != nil {
		return 0, err
	}
	e.samples[p] = prob
	return p, nil
}

// FreeSample releases a sample set. Freeing null is a no-op.
func (e *Engine) FreeSample(ctx context.Context, p engine.Ptr) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.enter(CallFreeSample)
	if p.IsNull() {
		return nil
	}
	if _, ok := e.samples[p]; !ok && !e.released[p] {
		e.stats.InvalidFrees++
		return fmt.Errorf("enginetest: free_sample of non sample set %#x", uint32(p))
	}
	if err := e.release(p); err != nil {
		return err
	}
	delete(e.samples, p)
	return nil
}

// FreeModel releases a model. Freeing null is a no-op.
func (e *Engine) FreeModel(ctx context.Context, p engine.Ptr) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.enter(CallFreeModel)
	if p.IsNull() {
		return nil
	}
	if _, ok := e.models[p]; !ok && !e.released[p] {
		e.stats.InvalidFrees++
		return fmt.Errorf("enginetest: free_model of non model %#x", uint32(p))
	}
	if err := e.release(p); err != nil {
		return err
	}
	delete(e.models, p)
	return nil
}

func (e *Engine) lookup(samples, param engine.Ptr) (*problem, engine.ParamArgs, error) {
	prob, ok := e.samples[samples]
	if !ok {
		return nil, engine.ParamArgs{}, fmt.Errorf("enginetest: unknown sample set %#x", uint32(samples))
	}
	args, ok := e.params[param]
	if !ok {
		return nil, engine.ParamArgs{}, fmt.Errorf("enginetest: unknown param %#x", uint32(param))
	}
	if _, _, err := e.weights(args); err != nil {
		return nil, engine.ParamArgs{}, err
	}
	return prob, args, nil
}

func (e *Engine) weights(args engine.ParamArgs) ([]int32, []float32, error) {
	if args.NrWeight <= 0 {
		return nil, nil, nil
	}
	n := uint32(args.NrWeight) * 4
	b, err := e.read(args.WeightLabel, n)
	if err != nil {
		return nil, nil, fmt.Errorf("enginetest: weight_label: %w", err)
	}
	labels, err := engine.DecodeInt32s(b)
	if err != nil {
		return nil, nil, err
	}
	if b, err = e.read(args.Weight, n); err != nil {
		return nil, nil, fmt.Errorf("enginetest: weight: %w", err)
	}
	weights, err := engine.DecodeFloat32s(b)
	if err != nil {
		return nil, nil, err
	}
	return labels, weights, nil
}

// ParamWeights decodes the class-weight arrays referenced by a live parameter
// struct, reading them from memory as training would.
func (e *Engine) ParamWeights(param engine.Ptr) (labels []int32, weights []float32, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	args, ok := e.params[param]
	if !ok {
		return nil, nil, fmt.Errorf("enginetest: unknown param %#x", uint32(param))
	}
	return e.weights(args)
}

// TrainModel builds a model from a sample set and a parameter struct. The
// parameter struct is left intact.
func (e *Engine) TrainModel(ctx context.Context, samples, param engine.Ptr) (engine.Ptr, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.enter(CallTrainModel) {
		return 0, nil
	}
	prob, args, err := e.lookup(samples, param)
	if err != nil {
		return 0, err
	}
	m := newModel(args.SVMType, args.Probability == 1, prob.cols, prob.rows, prob.labels)
	p, err := e.malloc(objectSize)
	if err != nil {
		return 0, err
	}
	e.models[p] = m
	return p, nil
}

// CrossValidate predicts every sample with a model trained on the other
// folds; sample i belongs to fold i mod folds.
func (e *Engine) CrossValidate(ctx context.Context, samples, param engine.Ptr, folds int32, target engine.Ptr) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.enter(CallCrossValidModel)
	prob, args, err := e.lookup(samples, param)
	if err != nil {
		return err
	}
	l := len(prob.rows)
	if err := e.check(target, uint32(l)*8); err != nil {
		return err
	}
	k := int(folds)
	if k > l {
		k = l
	}
	if k < 1 {
		return fmt.Errorf("enginetest: invalid fold count %d", folds)
	}
	out := make([]float64, l)
	for f := 0; f < k; f++ {
		var rows [][]float32
		var labels []float64
		for i := 0; i < l; i++ {
			if i%k != f {
				rows = append(rows, prob.rows[i])
				labels = append(labels, prob.labels[i])
			}
		}
		m := newModel(args.SVMType, false, prob.cols, rows, labels)
		for i := f; i < l; i += k {
			x := make([]float64, prob.cols)
			for j, v := range prob.rows[i] {
				x[j] = float64(v)
			}
			out[i] = m.predict(x)
		}
	}
	copy(e.mem[target:], engine.EncodeFloat64s(out))
	return nil
}

func (e *Engine) vector(data engine.Ptr, size int32) ([]float64, error) {
	if size <= 0 {
		return nil, nil
	}
	b, err := e.read(data, uint32(size)*8)
	if err != nil {
		return nil, err
	}
	return engine.DecodeFloat64s(b)
}

// PredictOne predicts the label of one feature vector.
func (e *Engine) PredictOne(ctx context.Context, model, data engine.Ptr, size int32) (float64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.enter(CallPredictOne)
	m, ok := e.models[model]
	if !ok {
		return 0, fmt.Errorf("enginetest: unknown model %#x", uint32(model))
	}
	x, err := e.vector(data, size)
	if err != nil {
		return 0, err
	}
	return m.predict(x), nil
}

// PredictOneWithProb predicts like PredictOne and, for classification models
// trained with probability estimates, writes one probability per class to
// probs. Other models leave probs untouched.
func (e *Engine) PredictOneWithProb(ctx context.Context, model, data engine.Ptr, size int32, probs engine.Ptr) (float64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.enter(CallPredictOneWithProb)
	m, ok := e.models[model]
	if !ok {
		return 0, fmt.Errorf("enginetest: unknown model %#x", uint32(model))
	}
	x, err := e.vector(data, size)
	if err != nil {
		return 0, err
	}
	if !m.probability || m.regression() || m.svmType == svmOneClass {
		return m.predict(x), nil
	}
	estimates := m.probabilities(x)
	if err := e.check(probs, uint32(len(estimates))*8); err != nil {
		return 0, err
	}
	copy(e.mem[probs:], engine.EncodeFloat64s(estimates))
	best := 0
	for c := range estimates {
		if estimates[c] > estimates[best] {
			best = c
		}
	}
	return m.classes[best], nil
}

// NrClass reports the number of classes of a model.
func (e *Engine) NrClass(ctx context.Context, model engine.Ptr) (int32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.enter(CallNrClass)
	m, ok := e.models[model]
	if !ok {
		return 0, fmt.Errorf("enginetest: unknown model %#x", uint32(model))
	}
	return m.nrClass(), nil
}

// SaveModel writes a model to the file named by the string at path.
func (e *Engine) SaveModel(ctx context.Context, model, path engine.Ptr) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.enter(CallSaveModel) {
		return false, nil
	}
	m, ok := e.models[model]
	if !ok {
		return false, fmt.Errorf("enginetest: unknown model %#x", uint32(model))
	}
	name, err := e.readCString(path)
	if err != nil {
		return false, err
	}
	data, err := m.MarshalBinary()
	if err != nil {
		return false, nil
	}
	if err := os.WriteFile(name, data, 0o644); err != nil {
		return false, nil
	}
	return true, nil
}

// LoadModel reads a model from the file named by the string at path. A
// missing or corrupt file yields null.
func (e *Engine) LoadModel(ctx context.Context, path engine.Ptr) (engine.Ptr, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.enter(CallLoadModel) {
		return 0, nil
	}
	name, err := e.readCString(path)
	if err != nil {
		return 0, err
	}
	data, err := os.ReadFile(name)
	if err != nil {
		return 0, nil
	}
	m := &model{}
	if err := m.UnmarshalBinary(data); err != nil {
		return 0, nil
	}
	p, err := e.malloc(objectSize)
	if err != nil {
		return 0, err
	}
	e.models[p] = m
	return p, nil
}

var (
	_ engine.Engine       = (*Engine)(nil)
	_ engine.ClassCounter = (*Engine)(nil)
)
