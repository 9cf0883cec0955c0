// Package param defines the solver configuration: the SVM formulation, the
// kernel and their hyperparameters. Config values start from Default and are
// overridden field by field, either with functional options or by decoding
// YAML on top of the defaults; Normalize then derives gamma when it was left
// at its zero sentinel.
package param
