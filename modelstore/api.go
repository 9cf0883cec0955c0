package modelstore

import (
	"context"
	"errors"
	"time"

	"github.com/viant/libsvm-wasm/evaluate"
	"github.com/viant/libsvm-wasm/param"
)

var (
	// ErrNotFound is returned when no model matches a name or id.
	ErrNotFound = errors.New("modelstore: model not found")
	// ErrSaveFailed is returned when the engine could not write the model.
	ErrSaveFailed = errors.New("modelstore: engine failed to save model")
	// ErrLoadFailed is returned when the engine could not read a stored model.
	ErrLoadFailed = errors.New("modelstore: engine failed to load model")
)

// Saver is a model holder that can persist its model through the engine,
// such as *svm.SVM.
type Saver interface {
	Save(ctx context.Context, path string) (bool, error)
	Config() param.Config
}

// Loader is a model holder that can load a model file through the engine,
// such as *svm.SVM.
type Loader interface {
	Load(ctx context.Context, path string) (bool, error)
}

// Model describes one stored model version.
type Model struct {
	ID      string
	Name    string
	Version int
	// SVMType and KernelType come from the configuration of the holder that
	// was Put. For a holder that loaded its model from a file rather than
	// training it, they describe the holder, not the model bytes.
	SVMType    param.SVMType
	KernelType param.KernelType
	Size       int
	CreatedAt  time.Time
}

// Evaluation is an evaluation report recorded against a model version.
type Evaluation struct {
	ModelID   string
	Stats     evaluate.Stats
	CreatedAt time.Time
}

// Store is a versioned model registry.
type Store interface {
	// Put saves m under name as a new version.
	Put(ctx context.Context, name string, m Saver) (Model, error)
	// Get loads the latest version of name into m.
	Get(ctx context.Context, name string, m Loader) (Model, error)
	// GetVersion loads the version with the given id into m.
	GetVersion(ctx context.Context, id string, m Loader) (Model, error)
	// Versions lists the versions of name, newest first.
	Versions(ctx context.Context, name string) ([]Model, error)
	// Remove deletes every version of name and their evaluations.
	Remove(ctx context.Context, name string) error
	// RecordEvaluation attaches stats to a model version.
	RecordEvaluation(ctx context.Context, id string, stats evaluate.Stats) error
	// Evaluations lists the evaluations of a model version, oldest first.
	Evaluations(ctx context.Context, id string) ([]Evaluation, error)
}
