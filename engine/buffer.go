package engine

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/multierr"
)

// Scope owns boundary buffers allocated in the engine's linear memory for a
// single call frame, or for a long-lived side channel such as the weight
// arrays a parameter struct references.
// Release frees every buffer still owned exactly once; use it with defer so
// buffers are released on error paths too.
type Scope struct {
	engine  Engine
	buffers []Ptr
}

// NewScope returns an empty scope allocating from e.
func NewScope(e Engine) *Scope {
	return &Scope{engine: e}
}

// Alloc allocates size zeroed bytes.
func (s *Scope) Alloc(ctx context.Context, size uint32) (Ptr, error) {
	if size == 0 {
		return 0, nil
	}
	p, err := s.engine.Malloc(ctx, size)
	if err != nil {
		return 0, err
	}
	if p.IsNull() {
		return 0, fmt.Errorf("engine: malloc(%d) returned null", size)
	}
	s.buffers = append(s.buffers, p)
	if err := s.engine.Write(p, make([]byte, size)); err != nil {
		return 0, err
	}
	return p, nil
}

// Bytes copies data into a new buffer. Empty data yields the null pointer
// without allocating.
func (s *Scope) Bytes(ctx context.Context, data []byte) (Ptr, error) {
	if len(data) == 0 {
		return 0, nil
	}
	if uint64(len(data)) > math.MaxUint32 {
		return 0, fmt.Errorf("engine: buffer of %d bytes exceeds linear memory", len(data))
	}
	p, err := s.engine.Malloc(ctx, uint32(len(data)))
	if err != nil {
		return 0, err
	}
	if p.IsNull() {
		return 0, fmt.Errorf("engine: malloc(%d) returned null", len(data))
	}
	s.buffers = append(s.buffers, p)
	if err := s.engine.Write(p, data); err != nil {
		return 0, err
	}
	return p, nil
}

// Float64s copies values into a new C double array.
func (s *Scope) Float64s(ctx context.Context, values []float64) (Ptr, error) {
	return s.Bytes(ctx, EncodeFloat64s(values))
}

// Float32s copies values into a new C float array.
func (s *Scope) Float32s(ctx context.Context, values []float32) (Ptr, error) {
	return s.Bytes(ctx, EncodeFloat32s(values))
}

// Int32s copies values into a new C int array.
func (s *Scope) Int32s(ctx context.Context, values []int32) (Ptr, error) {
	return s.Bytes(ctx, EncodeInt32s(values))
}

// CString copies str into a new NUL-terminated buffer.
func (s *Scope) CString(ctx context.Context, str string) (Ptr, error) {
	return s.Bytes(ctx, EncodeCString(str))
}

// ReadFloat64s reads n float64 values starting at p.
func (s *Scope) ReadFloat64s(p Ptr, n int) ([]float64, error) {
	if n == 0 {
		return nil, nil
	}
	b, err := s.engine.Read(p, uint32(n*8))
	if err != nil {
		return nil, err
	}
	return DecodeFloat64s(b)
}

// Release frees every owned buffer, most recent first. Each buffer is freed
// once even if some frees fail; the failures are combined.
func (s *Scope) Release(ctx context.Context) error {
	var err error
	for i := len(s.buffers) - 1; i >= 0; i-- {
		err = multierr.Append(err, s.engine.Free(ctx, s.buffers[i]))
	}
	s.buffers = s.buffers[:0]
	return err
}
