// Package engine defines the boundary between Go code and the external SVM
// solver engine, and the small amount of machinery needed to cross it safely:
//
//   - Engine: the primitives the solver exposes (make_param, make_samples,
//     train_model, predict_one, save_model, load_model, ...)
//   - Gateway: a lazily started, exactly-once engine initializer that every
//     caller awaits before touching engine state
//   - Scope: call-scoped boundary buffers in the engine's linear memory,
//     released together on every exit path
//   - Handle and Slot: typed opaque handles with explicit valid/absent state
//     and release-before-replace ownership
//
// The engine itself (the numerical solver) is a black box; see the wasm
// subpackage for the production backend and enginetest for an in-process
// double with handle accounting.
package engine
