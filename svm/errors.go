package svm

import "errors"

var (
	// ErrEmptyDataset is returned by Feed when there are no samples.
	ErrEmptyDataset = errors.New("svm: empty dataset")
	// ErrLengthMismatch is returned by Feed when features and labels differ in length.
	ErrLengthMismatch = errors.New("svm: features and labels length mismatch")
	// ErrDimensionMismatch is returned by Feed when rows differ in length.
	ErrDimensionMismatch = errors.New("svm: inconsistent feature dimension")
	// ErrModelNotTrained is returned when predicting or saving without a model.
	ErrModelNotTrained = errors.New("svm: model not trained")
	// ErrNoSamples is returned when training or cross-validating before Feed.
	ErrNoSamples = errors.New("svm: no samples")
	// ErrEngineCall is returned when the engine declines to produce a handle.
	ErrEngineCall = errors.New("svm: engine call failed")
	// ErrProbabilityDisabled is returned by PredictProbability when the
	// configuration does not request probability estimates.
	ErrProbabilityDisabled = errors.New("svm: probability estimates disabled")
	// ErrInvalidFolds is returned by CrossValidate for fewer than two folds.
	ErrInvalidFolds = errors.New("svm: invalid fold count")
)
