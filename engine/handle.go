package engine

import (
	"context"
	"fmt"
)

// Kind names a category of engine-owned state. It only exists at the type
// level so that handles of different categories cannot be mixed up.
type Kind interface {
	kindName() string
}

type (
	// ParamKind tags parameter handles (svm_parameter*).
	ParamKind struct{}
	// SamplesKind tags sample-set handles (svm_problem*).
	SamplesKind struct{}
	// ModelKind tags model handles (svm_model*).
	ModelKind struct{}
)

func (ParamKind) kindName() string   { return "param" }
func (SamplesKind) kindName() string { return "samples" }
func (ModelKind) kindName() string   { return "model" }

// KindName returns the name of K.
func KindName[K Kind]() string {
	var k K
	return k.kindName()
}

// Handle is an opaque reference to engine-owned state of kind K. The zero
// Handle is absent; a Handle is only valid when it was produced by the
// engine with a non-null address.
type Handle[K Kind] struct {
	ptr   Ptr
	valid bool
}

// Valid reports whether h refers to live engine state.
func (h Handle[K]) Valid() bool { return h.valid }

// Ptr returns the engine address of h, or null when h is absent.
func (h Handle[K]) Ptr() Ptr {
	if !h.valid {
		return 0
	}
	return h.ptr
}

func (h Handle[K]) String() string {
	if !h.valid {
		return KindName[K]() + "(absent)"
	}
	return fmt.Sprintf("%s(%#x)", KindName[K](), uint32(h.ptr))
}

// ReleaseFunc frees engine state at p.
type ReleaseFunc func(ctx context.Context, p Ptr) error

// Producer asks the engine for new state; a null Ptr means the engine
// declined.
type Producer func(ctx context.Context) (Ptr, error)

// Slot owns at most one live handle of kind K. Producing a new handle through
// the slot releases the previous one, and a handle is released only while it
// is live, so neither leaks on replacement nor double frees can happen.
type Slot[K Kind] struct {
	handle  Handle[K]
	release ReleaseFunc
}

// NewSlot returns an empty slot that frees its handles with release.
func NewSlot[K Kind](release ReleaseFunc) Slot[K] {
	return Slot[K]{release: release}
}

// Handle returns the current handle, which may be absent.
func (s *Slot[K]) Handle() Handle[K] { return s.handle }

// Valid reports whether the slot holds a live handle.
func (s *Slot[K]) Valid() bool { return s.handle.valid }

// Release frees the live handle, if any. The slot is emptied before the
// engine is called: a failed free leaks rather than risking a second free.
func (s *Slot[K]) Release(ctx context.Context) error {
	if !s.handle.valid {
		return nil
	}
	p := s.handle.ptr
	s.handle = Handle[K]{}
	if err := s.release(ctx, p); err != nil {
		return fmt.Errorf("engine: release %s %#x: %w", KindName[K](), uint32(p), err)
	}
	return nil
}

// Replace releases the live handle and then stores the one returned by
// produce. When produce yields null the slot stays empty and the returned
// handle is absent.
func (s *Slot[K]) Replace(ctx context.Context, produce Producer) (Handle[K], error) {
	if err := s.Release(ctx); err != nil {
		return Handle[K]{}, err
	}
	p, err := produce(ctx)
	if err != nil {
		return Handle[K]{}, err
	}
	if p.IsNull() {
		return Handle[K]{}, nil
	}
	s.handle = Handle[K]{ptr: p, valid: true}
	return s.handle, nil
}

// Swap calls produce first and only when it yields a live handle releases the
// previous one and adopts the new one. When produce yields null the slot is
// left untouched and the returned handle is absent.
func (s *Slot[K]) Swap(ctx context.Context, produce Producer) (Handle[K], error) {
	p, err := produce(ctx)
	if err != nil {
		return Handle[K]{}, err
	}
	if p.IsNull() {
		return Handle[K]{}, nil
	}
	releaseErr := s.Release(ctx)
	s.handle = Handle[K]{ptr: p, valid: true}
	return s.handle, releaseErr
}
