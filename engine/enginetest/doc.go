// Package enginetest provides an in-process implementation of engine.Engine
// for tests. It keeps a real linear memory with a bump allocator, validates
// every pointer it is handed, and counts allocations, frees, double frees and
// primitive calls so tests can assert handle accounting.
//
// The "solver" is a nearest-neighbour stand-in: training stores the samples,
// classification and regression predict the label of the closest training
// row, and one-class models accept points inside the training bounding box.
// Models are saved in a compact binary format private to this package.
package enginetest
