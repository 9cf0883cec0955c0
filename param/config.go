package param

import (
	"errors"
	"fmt"
	"io"
	"os"
	"slices"

	"gopkg.in/yaml.v2"
)

// Default gamma values applied when Gamma is left at zero.
const (
	DefaultRegressionGamma     = 0.1
	DefaultClassificationGamma = 0.5
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("param: invalid config")

// Config holds the solver hyperparameters.
type Config struct {
	SVMType    SVMType    `yaml:"svm_type" json:"svm_type"`
	KernelType KernelType `yaml:"kernel_type" json:"kernel_type"`
	Degree     int        `yaml:"degree" json:"degree"` // for poly
	Gamma      float64    `yaml:"gamma" json:"gamma"`   // for poly/rbf/sigmoid; 0 selects a per-type default
	Coef0      float64    `yaml:"coef0" json:"coef0"`   // for poly/sigmoid

	// these are for training only
	CacheSize   float64   `yaml:"cache_size" json:"cache_size"`     // in MB
	Eps         float64   `yaml:"eps" json:"eps"`                   // stopping criteria
	C           float64   `yaml:"c" json:"c"`                       // for C_SVC, EPSILON_SVR and NU_SVR
	Nu          float64   `yaml:"nu" json:"nu"`                     // for NU_SVC, ONE_CLASS, and NU_SVR
	P           float64   `yaml:"p" json:"p"`                       // for EPSILON_SVR
	Shrinking   bool      `yaml:"shrinking" json:"shrinking"`       // use the shrinking heuristics
	Probability bool      `yaml:"probability" json:"probability"`   // do probability estimates
	WeightLabel []int     `yaml:"weight_label" json:"weight_label"` // for C_SVC
	Weight      []float64 `yaml:"weight" json:"weight"`             // for C_SVC, parallel to WeightLabel
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	return Config{
		SVMType:    CSVC,
		KernelType: RBF,
		Degree:     3,
		CacheSize:  100,
		Eps:        1e-3,
		C:          1,
		Nu:         0.5,
		P:          0.1,
	}
}

// New returns Default with opts applied in order, normalized.
func New(opts ...Option) Config {
	c := Default()
	for _, opt := range opts {
		opt(&c)
	}
	return c.Normalize()
}

// Normalize returns c with derived fields filled in: a zero Gamma becomes
// DefaultRegressionGamma for regression types and DefaultClassificationGamma
// otherwise.
func (c Config) Normalize() Config {
	if c.Gamma == 0 {
		if c.SVMType.Regression() {
			c.Gamma = DefaultRegressionGamma
		} else {
			c.Gamma = DefaultClassificationGamma
		}
	}
	return c
}

// Clone returns a copy of c that shares no slices with it.
func (c Config) Clone() Config {
	c.WeightLabel = slices.Clone(c.WeightLabel)
	c.Weight = slices.Clone(c.Weight)
	return c
}

// NrWeight returns the number of class-weight overrides.
func (c Config) NrWeight() int { return len(c.WeightLabel) }

// Validate checks the data-independent constraints the solver places on its
// parameters.
func (c Config) Validate() error {
	invalid := func(format string, args ...interface{}) error {
		return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
	}
	if c.SVMType < CSVC || c.SVMType > NuSVR {
		return invalid("unknown svm type %d", c.SVMType)
	}
	if c.KernelType < Linear || c.KernelType > Precomputed {
		return invalid("unknown kernel type %d", c.KernelType)
	}
	if c.Gamma < 0 {
		return invalid("gamma < 0")
	}
	if c.Degree < 0 {
		return invalid("degree of polynomial kernel < 0")
	}
	if c.CacheSize <= 0 {
		return invalid("cache_size <= 0")
	}
	if c.Eps <= 0 {
		return invalid("eps <= 0")
	}
	switch c.SVMType {
	case CSVC, EpsilonSVR, NuSVR:
		if c.C <= 0 {
			return invalid("C <= 0")
		}
	}
	switch c.SVMType {
	case NuSVC, OneClass, NuSVR:
		if c.Nu <= 0 || c.Nu > 1 {
			return invalid("nu <= 0 or nu > 1")
		}
	}
	if c.SVMType == EpsilonSVR && c.P < 0 {
		return invalid("p < 0")
	}
	if c.Probability && c.SVMType == OneClass {
		return invalid("one-class SVM probability output not supported")
	}
	if len(c.WeightLabel) != len(c.Weight) {
		return invalid("%d weight labels for %d weights", len(c.WeightLabel), len(c.Weight))
	}
	return nil
}

// Decode reads a YAML document from r over Default, then normalizes and
// validates the result. Keys absent from the document keep their defaults.
func Decode(r io.Reader) (Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Config{}, err
	}
	c := Default()
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Config{}, fmt.Errorf("param: decode: %w", err)
	}
	c = c.Normalize()
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Load decodes the YAML file at path; see Decode.
func Load(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, err
	}
	defer f.Close()
	return Decode(f)
}
