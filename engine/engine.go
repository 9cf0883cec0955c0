package engine

import (
	"context"
	"errors"
)

// Ptr is an address in the engine's linear memory. Zero is the null pointer,
// which the engine also uses to signal a failed construction.
type Ptr uint32

// IsNull reports whether p is the null pointer.
func (p Ptr) IsNull() bool { return p == 0 }

// ErrNotReady is returned when a caller stops waiting before the engine has
// been loaded.
var ErrNotReady = errors.New("engine: not ready")

// ParamArgs carries the arguments of make_param. Floating point fields are
// narrowed to float32 because the engine ABI declares them as C float.
type ParamArgs struct {
	SVMType     int32
	KernelType  int32
	Degree      int32
	Gamma       float32
	Coef0       float32
	Nu          float32
	CacheSize   float32 // in MB
	C           float32
	Eps         float32
	P           float32
	Shrinking   int32
	Probability int32
	NrWeight    int32
	WeightLabel Ptr // int32[NrWeight], or null
	Weight      Ptr // float32[NrWeight], or null
}

// Engine is the set of primitives exposed by the external solver.
//
// A non-nil error means the call could not be carried out at all (a trap, a
// missing export, an out-of-bounds access). Failures signalled by the solver
// itself are reported the way the solver reports them: a null Ptr from the
// constructors and false from SaveModel.
type Engine interface {
	// Malloc allocates size bytes of linear memory.
	Malloc(ctx context.Context, size uint32) (Ptr, error)
	// Free releases memory obtained from Malloc or a parameter struct from
	// MakeParam.
	Free(ctx context.Context, p Ptr) error
	// Write copies data into linear memory at p.
	Write(p Ptr, data []byte) error
	// Read copies size bytes of linear memory starting at p.
	Read(p Ptr, size uint32) ([]byte, error)

	MakeParam(ctx context.Context, args ParamArgs) (Ptr, error)
	MakeSamples(ctx context.Context, features, labels Ptr, rows, cols int32) (Ptr, error)
	FreeSample(ctx context.Context, samples Ptr) error
	FreeModel(ctx context.Context, model Ptr) error
	TrainModel(ctx context.Context, samples, param Ptr) (Ptr, error)
	// CrossValidate writes one prediction per sample into target.
	CrossValidate(ctx context.Context, samples, param Ptr, folds int32, target Ptr) error
	PredictOne(ctx context.Context, model, data Ptr, size int32) (float64, error)
	// PredictOneWithProb additionally writes one float64 probability per class
	// into probs.
	PredictOneWithProb(ctx context.Context, model, data Ptr, size int32, probs Ptr) (float64, error)
	SaveModel(ctx context.Context, model, path Ptr) (bool, error)
	LoadModel(ctx context.Context, path Ptr) (Ptr, error)
}

// ClassCounter is implemented by engines that can report the number of
// classes of a model, used to size probability output buffers.
type ClassCounter interface {
	NrClass(ctx context.Context, model Ptr) (int32, error)
}

// PathResolver is implemented by engines whose file system differs from the
// host's; it maps a host path to the path the engine should open.
type PathResolver interface {
	ResolvePath(path string) (string, error)
}
