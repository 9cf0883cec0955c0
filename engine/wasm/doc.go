// Package wasm hosts a WebAssembly build of libsvm with wazero and exposes it
// as an engine.Engine.
//
// The module must export malloc, free, make_param, make_samples, free_sample,
// free_model, train_model, cross_valid_model, predict_one,
// predict_one_with_prob, save_model and load_model, and may export
// get_nr_class. Emscripten and WASI imports are provided. Model files are
// read and written through a host directory mounted as the guest root.
//
// One Engine instance is shared by every SVM built on the same gateway;
// calls and memory access are serialized.
package wasm
