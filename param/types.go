package param

import (
	"fmt"
	"strconv"
	"strings"
)

// SVMType selects the SVM formulation.
type SVMType int32

const (
	CSVC SVMType = iota
	NuSVC
	OneClass
	EpsilonSVR
	NuSVR
)

var svmTypeNames = []string{"c_svc", "nu_svc", "one_class", "epsilon_svr", "nu_svr"}

// String returns the libsvm name of t.
func (t SVMType) String() string {
	if t < 0 || int(t) >= len(svmTypeNames) {
		return "svm_type(" + strconv.Itoa(int(t)) + ")"
	}
	return svmTypeNames[t]
}

// Regression reports whether t is one of the regression formulations.
func (t SVMType) Regression() bool { return t == EpsilonSVR || t == NuSVR }

// ParseSVMType parses a libsvm name ("c_svc", "nu_svr", ...) or an integer.
func ParseSVMType(s string) (SVMType, error) {
	i, err := parseEnum(s, svmTypeNames)
	if err != nil {
		return 0, fmt.Errorf("param: unknown svm type %q", s)
	}
	return SVMType(i), nil
}

// UnmarshalYAML accepts either a libsvm name or an integer.
func (t *SVMType) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	v, err := ParseSVMType(s)
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// MarshalYAML emits the libsvm name.
func (t SVMType) MarshalYAML() (interface{}, error) { return t.String(), nil }

// KernelType selects the kernel function.
type KernelType int32

const (
	Linear KernelType = iota
	Poly
	RBF
	Sigmoid
	Precomputed
)

var kernelTypeNames = []string{"linear", "polynomial", "rbf", "sigmoid", "precomputed"}

// String returns the libsvm name of k.
func (k KernelType) String() string {
	if k < 0 || int(k) >= len(kernelTypeNames) {
		return "kernel_type(" + strconv.Itoa(int(k)) + ")"
	}
	return kernelTypeNames[k]
}

// ParseKernelType parses a libsvm name ("linear", "rbf", ...) or an integer.
// "poly" is accepted as an alias of "polynomial".
func ParseKernelType(s string) (KernelType, error) {
	if strings.EqualFold(strings.TrimSpace(s), "poly") {
		return Poly, nil
	}
	i, err := parseEnum(s, kernelTypeNames)
	if err != nil {
		return 0, fmt.Errorf("param: unknown kernel type %q", s)
	}
	return KernelType(i), nil
}

// UnmarshalYAML accepts either a libsvm name or an integer.
func (k *KernelType) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	v, err := ParseKernelType(s)
	if err != nil {
		return err
	}
	*k = v
	return nil
}

// MarshalYAML emits the libsvm name.
func (k KernelType) MarshalYAML() (interface{}, error) { return k.String(), nil }

func parseEnum(s string, names []string) (int, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, name := range names {
		if s == name {
			return i, nil
		}
	}
	i, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	if i < 0 || i >= len(names) {
		return 0, fmt.Errorf("out of range")
	}
	return i, nil
}
