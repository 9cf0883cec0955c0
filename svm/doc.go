// Package svm binds Go feature matrices, labels and solver configuration to
// an external SVM engine.
//
// An SVM owns at most one parameter handle, one sample set and one model in
// the engine, each released before it is replaced and all released by Close.
// Typical use:
//
//	gw := engine.NewGateway(wasm.Loader(cfg))
//	s, err := svm.New(ctx, gw, param.New(param.WithKernelType(param.Linear)))
//	...
//	defer s.Close(ctx)
//	err = s.Feed(ctx, features, labels)
//	err = s.Train(ctx)
//	label, err := s.Predict(ctx, x)
//
// An SVM is not safe for concurrent use.
package svm
