package wasm

import (
	"context"
	"slices"
	"sync"
	"testing"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/viant/libsvm-wasm/engine"
	"github.com/viant/libsvm-wasm/param"
	"github.com/viant/libsvm-wasm/svm"
)

type stubFunc struct {
	name    string
	params  []api.ValueType
	results []api.ValueType
}

var (
	vI32 = api.ValueTypeI32
	vF32 = api.ValueTypeF32
	vF64 = api.ValueTypeF64
)

// libsvmFuncs mirrors the C signatures of the glue exports on wasm32.
var libsvmFuncs = []stubFunc{
	{fnMalloc, []api.ValueType{vI32}, []api.ValueType{vI32}},
	{fnFree, []api.ValueType{vI32}, nil},
	{fnMakeParam, []api.ValueType{vI32, vI32, vI32, vF32, vF32, vF32, vF32, vF32, vF32, vF32, vI32, vI32, vI32, vI32, vI32}, []api.ValueType{vI32}},
	{fnMakeSamples, []api.ValueType{vI32, vI32, vI32, vI32}, []api.ValueType{vI32}},
	{fnFreeSample, []api.ValueType{vI32}, nil},
	{fnFreeModel, []api.ValueType{vI32}, nil},
	{fnTrainModel, []api.ValueType{vI32, vI32}, []api.ValueType{vI32}},
	{fnCrossValidModel, []api.ValueType{vI32, vI32, vI32, vI32}, nil},
	{fnPredictOne, []api.ValueType{vI32, vI32, vI32}, []api.ValueType{vF64}},
	{fnPredictOneWithProb, []api.ValueType{vI32, vI32, vI32, vI32}, []api.ValueType{vF64}},
	{fnSaveModel, []api.ValueType{vI32, vI32}, []api.ValueType{vI32}},
	{fnLoadModel, []api.ValueType{vI32}, []api.ValueType{vI32}},
	{fnNrClass, []api.ValueType{vI32}, []api.ValueType{vI32}},
}

// stubLibsvm is a host module standing in for libsvm. It records the raw
// arguments of every call and answers with canned results; malloc bumps a
// pointer through the guest's memory and free is a no-op.
type stubLibsvm struct {
	mu      sync.Mutex
	next    uint32
	calls   map[string][][]uint64
	results map[string]uint64
}

func newStubLibsvm() *stubLibsvm {
	return &stubLibsvm{next: 1024, calls: map[string][][]uint64{}, results: map[string]uint64{}}
}

func (s *stubLibsvm) instantiate(ctx context.Context, r wazero.Runtime, funcs []stubFunc) error {
	b := r.NewHostModuleBuilder("stub")
	for _, fn := range funcs {
		b = b.NewFunctionBuilder().
			WithGoFunction(api.GoFunc(func(ctx context.Context, stack []uint64) { s.handle(fn, stack) }), fn.params, fn.results).
			Export(fn.name)
	}
	_, err := b.Instantiate(ctx)
	return err
}

func (s *stubLibsvm) handle(fn stubFunc, stack []uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[fn.name] = append(s.calls[fn.name], slices.Clone(stack[:len(fn.params)]))
	if len(fn.results) == 0 {
		return
	}
	if fn.name == fnMalloc {
		p := s.next
		s.next += (api.DecodeU32(stack[0]) + 7) &^ 7
		stack[0] = api.EncodeU32(p)
		return
	}
	stack[0] = s.results[fn.name]
}

func (s *stubLibsvm) set(name string, result uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[name] = result
}

func (s *stubLibsvm) args(name string) [][]uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[name]
}

func (s *stubLibsvm) last(t *testing.T, name string) []uint64 {
	t.Helper()
	calls := s.args(name)
	if len(calls) == 0 {
		t.Fatalf("%s was not called", name)
	}
	return calls[len(calls)-1]
}

// guestModule assembles a module that imports every function in funcs from
// "stub", re-exports each under its own name and exports one page of memory.
func guestModule(funcs []stubFunc) []byte {
	types := appendLEB(nil, len(funcs))
	imports := appendLEB(nil, len(funcs))
	exports := appendLEB(nil, len(funcs)+1)
	for i, fn := range funcs {
		types = append(types, 0x60)
		types = appendValueTypes(types, fn.params)
		types = appendValueTypes(types, fn.results)

		imports = appendName(imports, "stub")
		imports = appendName(imports, fn.name)
		imports = append(imports, 0x00)
		imports = appendLEB(imports, i)

		exports = appendName(exports, fn.name)
		exports = append(exports, 0x00)
		exports = appendLEB(exports, i)
	}
	exports = appendName(exports, "memory")
	exports = append(exports, 0x02, 0x00)
	memory := []byte{0x01, 0x00, 0x01} // one memory: no maximum, one page

	out := []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}
	out = appendSection(out, 1, types)
	out = appendSection(out, 2, imports)
	out = appendSection(out, 5, memory)
	out = appendSection(out, 7, exports)
	return out
}

func appendLEB(b []byte, v int) []byte {
	u := uint32(v)
	for {
		c := byte(u & 0x7f)
		u >>= 7
		if u == 0 {
			return append(b, c)
		}
		b = append(b, c|0x80)
	}
}

func appendName(b []byte, s string) []byte {
	return append(appendLEB(b, len(s)), s...)
}

func appendValueTypes(b []byte, types []api.ValueType) []byte {
	b = appendLEB(b, len(types))
	for _, vt := range types {
		b = append(b, byte(vt))
	}
	return b
}

func appendSection(b []byte, id byte, content []byte) []byte {
	b = append(b, id)
	b = appendLEB(b, len(content))
	return append(b, content...)
}

func newStubEngine(t *testing.T, funcs []stubFunc) (*Engine, *stubLibsvm) {
	t.Helper()
	ctx := context.Background()
	r := wazero.NewRuntime(ctx)
	t.Cleanup(func() { _ = r.Close(ctx) })
	stub := newStubLibsvm()
	if err := stub.instantiate(ctx, r, funcs); err != nil {
		t.Fatalf("stub instantiate failed: %v", err)
	}
	e, err := instantiate(ctx, r, guestModule(funcs), Config{}, t.TempDir())
	if err != nil {
		t.Fatalf("instantiate failed: %v", err)
	}
	return e, stub
}

func TestEngine_MemoryRoundTrip(t *testing.T) {
	ctx := context.Background()
	e, stub := newStubEngine(t, libsvmFuncs)
	scope := engine.NewScope(e)

	values := []float64{1.5, -2, 1e-300}
	p, err := scope.Float64s(ctx, values)
	if err != nil {
		t.Fatalf("Float64s failed: %v", err)
	}
	labels, err := scope.Int32s(ctx, []int32{1, -1})
	if err != nil {
		t.Fatalf("Int32s failed: %v", err)
	}
	got, err := scope.ReadFloat64s(p, len(values))
	if err != nil {
		t.Fatalf("ReadFloat64s failed: %v", err)
	}
	if !slices.Equal(got, values) {
		t.Fatalf("ReadFloat64s = %v, want %v", got, values)
	}
	b, err := e.Read(labels, 8)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if ints, err := engine.DecodeInt32s(b); err != nil || !slices.Equal(ints, []int32{1, -1}) {
		t.Fatalf("labels = %v, %v; want [1 -1]", ints, err)
	}

	mallocs := stub.args(fnMalloc)
	if len(mallocs) != 2 || api.DecodeU32(mallocs[0][0]) != 24 || api.DecodeU32(mallocs[1][0]) != 8 {
		t.Fatalf("malloc sizes = %v, want 24 then 8", mallocs)
	}
	if err := scope.Release(ctx); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	frees := stub.args(fnFree)
	if len(frees) != 2 || engine.Ptr(api.DecodeU32(frees[0][0])) != labels || engine.Ptr(api.DecodeU32(frees[1][0])) != p {
		t.Fatalf("free args = %v, want %#x then %#x", frees, uint32(labels), uint32(p))
	}

	if err := e.Write(engine.Ptr(1<<16-4), make([]byte, 8)); err == nil {
		t.Fatalf("expected error writing past the end of memory")
	}
	if _, err := e.Read(engine.Ptr(1<<16), 1); err == nil {
		t.Fatalf("expected error reading past the end of memory")
	}
}

func TestEngine_MakeParamArguments(t *testing.T) {
	ctx := context.Background()
	e, stub := newStubEngine(t, libsvmFuncs)
	stub.set(fnMakeParam, api.EncodeU32(0x1000))

	args := engine.ParamArgs{
		SVMType: 4, KernelType: 2, Degree: 3,
		Gamma: 0.5, Coef0: 0.25, Nu: 0.75, CacheSize: 100, C: 2, Eps: 0.001, P: 0.125,
		Shrinking: 1, Probability: 0, NrWeight: 2,
		WeightLabel: 0x40, Weight: 0x80,
	}
	p, err := e.MakeParam(ctx, args)
	if err != nil || p != 0x1000 {
		t.Fatalf("MakeParam = %#x, %v; want 0x1000", uint32(p), err)
	}
	call := stub.last(t, fnMakeParam)
	if len(call) != 15 {
		t.Fatalf("make_param got %d arguments, want 15", len(call))
	}
	ints := []struct {
		name string
		idx  int
		want int32
	}{
		{"svm_type", 0, args.SVMType},
		{"kernel_type", 1, args.KernelType},
		{"degree", 2, args.Degree},
		{"shrinking", 10, args.Shrinking},
		{"probability", 11, args.Probability},
		{"nr_weight", 12, args.NrWeight},
	}
	for _, tc := range ints {
		if got := api.DecodeI32(call[tc.idx]); got != tc.want {
			t.Errorf("%s = %d, want %d", tc.name, got, tc.want)
		}
	}
	floats := []struct {
		name string
		idx  int
		want float32
	}{
		{"gamma", 3, args.Gamma},
		{"coef0", 4, args.Coef0},
		{"nu", 5, args.Nu},
		{"cache_size", 6, args.CacheSize},
		{"C", 7, args.C},
		{"eps", 8, args.Eps},
		{"p", 9, args.P},
	}
	for _, tc := range floats {
		if got := api.DecodeF32(call[tc.idx]); got != tc.want {
			t.Errorf("%s = %v, want %v", tc.name, got, tc.want)
		}
	}
	if got := api.DecodeU32(call[13]); got != 0x40 {
		t.Errorf("weight_label = %#x, want 0x40", got)
	}
	if got := api.DecodeU32(call[14]); got != 0x80 {
		t.Errorf("weight = %#x, want 0x80", got)
	}
}

func TestEngine_CallArguments(t *testing.T) {
	ctx := context.Background()
	e, stub := newStubEngine(t, libsvmFuncs)
	stub.set(fnMakeSamples, api.EncodeU32(0x2000))
	stub.set(fnTrainModel, api.EncodeU32(0x3000))
	stub.set(fnPredictOne, api.EncodeF64(-1.5))
	stub.set(fnPredictOneWithProb, api.EncodeF64(3))
	stub.set(fnLoadModel, 0)
	stub.set(fnNrClass, api.EncodeI32(3))

	u32s := func(call []uint64) []uint32 {
		out := make([]uint32, len(call))
		for i, v := range call {
			out[i] = api.DecodeU32(v)
		}
		return out
	}
	expect := func(name string, want ...uint32) {
		t.Helper()
		if got := u32s(stub.last(t, name)); !slices.Equal(got, want) {
			t.Fatalf("%s args = %v, want %v", name, got, want)
		}
	}

	samples, err := e.MakeSamples(ctx, 0x10, 0x20, 5, 2)
	if err != nil || samples != 0x2000 {
		t.Fatalf("MakeSamples = %#x, %v; want 0x2000", uint32(samples), err)
	}
	expect(fnMakeSamples, 0x10, 0x20, 5, 2)

	model, err := e.TrainModel(ctx, samples, 0x1000)
	if err != nil || model != 0x3000 {
		t.Fatalf("TrainModel = %#x, %v; want 0x3000", uint32(model), err)
	}
	expect(fnTrainModel, 0x2000, 0x1000)

	if err := e.CrossValidate(ctx, samples, 0x1000, 5, 0x50); err != nil {
		t.Fatalf("CrossValidate failed: %v", err)
	}
	expect(fnCrossValidModel, 0x2000, 0x1000, 5, 0x50)

	if got, err := e.PredictOne(ctx, model, 0x60, 2); err != nil || got != -1.5 {
		t.Fatalf("PredictOne = %v, %v; want -1.5", got, err)
	}
	expect(fnPredictOne, 0x3000, 0x60, 2)

	if got, err := e.PredictOneWithProb(ctx, model, 0x60, 2, 0x70); err != nil || got != 3 {
		t.Fatalf("PredictOneWithProb = %v, %v; want 3", got, err)
	}
	expect(fnPredictOneWithProb, 0x3000, 0x60, 2, 0x70)

	if n, err := e.NrClass(ctx, model); err != nil || n != 3 {
		t.Fatalf("NrClass = %d, %v; want 3", n, err)
	}
	expect(fnNrClass, 0x3000)

	if p, err := e.LoadModel(ctx, 0x90); err != nil || !p.IsNull() {
		t.Fatalf("LoadModel = %#x, %v; want null", uint32(p), err)
	}
	expect(fnLoadModel, 0x90)

	if err := e.FreeSample(ctx, samples); err != nil {
		t.Fatalf("FreeSample failed: %v", err)
	}
	expect(fnFreeSample, 0x2000)
	if err := e.FreeModel(ctx, model); err != nil {
		t.Fatalf("FreeModel failed: %v", err)
	}
	expect(fnFreeModel, 0x3000)
}

func TestEngine_SaveModelShort(t *testing.T) {
	ctx := context.Background()
	e, stub := newStubEngine(t, libsvmFuncs)
	cases := []struct {
		result uint64
		want   bool
	}{
		{api.EncodeI32(1), true},
		{api.EncodeI32(0), false},
		{api.EncodeI32(-1), true},
		{api.EncodeU32(0x10000), false}, // only the low 16 bits carry the short
	}
	for _, tc := range cases {
		stub.set(fnSaveModel, tc.result)
		ok, err := e.SaveModel(ctx, 0x3000, 0x90)
		if err != nil {
			t.Fatalf("SaveModel failed: %v", err)
		}
		if ok != tc.want {
			t.Errorf("SaveModel with result %#x = %v, want %v", tc.result, ok, tc.want)
		}
	}
	call := stub.last(t, fnSaveModel)
	if api.DecodeU32(call[0]) != 0x3000 || api.DecodeU32(call[1]) != 0x90 {
		t.Fatalf("save_model args = %v, want model then path", call)
	}
}

func TestEngine_NrClassOptional(t *testing.T) {
	without := slices.DeleteFunc(slices.Clone(libsvmFuncs), func(fn stubFunc) bool { return fn.name == fnNrClass })
	e, stub := newStubEngine(t, without)
	n, err := e.NrClass(context.Background(), 0x3000)
	if err != nil || n != 0 {
		t.Fatalf("NrClass = %d, %v; want 0, nil", n, err)
	}
	if len(stub.args(fnNrClass)) != 0 {
		t.Fatalf("get_nr_class was called")
	}
}

func TestEngine_DrivesSVM(t *testing.T) {
	ctx := context.Background()
	e, stub := newStubEngine(t, libsvmFuncs)
	stub.set(fnMakeParam, api.EncodeU32(0x1000))
	stub.set(fnMakeSamples, api.EncodeU32(0x2000))
	stub.set(fnTrainModel, api.EncodeU32(0x3000))
	stub.set(fnPredictOne, api.EncodeF64(7))

	gw := engine.NewGateway(func(ctx context.Context) (engine.Engine, error) { return e, nil })
	s, err := svm.New(ctx, gw, param.New(param.WithClassWeight(7, 2.5)))
	if err != nil {
		t.Fatalf("svm.New failed: %v", err)
	}
	defer s.Close(ctx)

	// the weight arrays stay allocated while the param handle is live
	call := stub.last(t, fnMakeParam)
	b, err := e.Read(engine.Ptr(api.DecodeU32(call[13])), 4)
	if err != nil {
		t.Fatalf("Read weight_label failed: %v", err)
	}
	if labels, _ := engine.DecodeInt32s(b); len(labels) != 1 || labels[0] != 7 {
		t.Fatalf("weight_label = %v, want [7]", labels)
	}
	if b, err = e.Read(engine.Ptr(api.DecodeU32(call[14])), 4); err != nil {
		t.Fatalf("Read weight failed: %v", err)
	}
	if weights, _ := engine.DecodeFloat32s(b); len(weights) != 1 || weights[0] != 2.5 {
		t.Fatalf("weight = %v, want [2.5]", weights)
	}

	if err := s.Feed(ctx, [][]float64{{1, 2}, {3, 4}}, []float64{7, 8}); err != nil {
		t.Fatalf("Feed failed: %v", err)
	}
	feed := stub.last(t, fnMakeSamples)
	if api.DecodeI32(feed[2]) != 2 || api.DecodeI32(feed[3]) != 2 {
		t.Fatalf("make_samples shape = %dx%d, want 2x2", api.DecodeI32(feed[2]), api.DecodeI32(feed[3]))
	}
	// the stub's free leaves memory intact, so the copied rows are still readable
	if b, err = e.Read(engine.Ptr(api.DecodeU32(feed[0])), 32); err != nil {
		t.Fatalf("Read features failed: %v", err)
	}
	if features, _ := engine.DecodeFloat64s(b); !slices.Equal(features, []float64{1, 2, 3, 4}) {
		t.Fatalf("features = %v, want row-major [1 2 3 4]", features)
	}

	if err := s.Train(ctx); err != nil {
		t.Fatalf("Train failed: %v", err)
	}
	if train := stub.last(t, fnTrainModel); api.DecodeU32(train[0]) != 0x2000 || api.DecodeU32(train[1]) != 0x1000 {
		t.Fatalf("train_model args = %v, want samples then param", train)
	}
	label, err := s.Predict(ctx, []float64{3, 4})
	if err != nil || label != 7 {
		t.Fatalf("Predict = %v, %v; want 7", label, err)
	}
	if predict := stub.last(t, fnPredictOne); api.DecodeU32(predict[0]) != 0x3000 || api.DecodeI32(predict[2]) != 2 {
		t.Fatalf("predict_one args = %v, want model 0x3000 and size 2", predict)
	}
}
