package evaluate

import (
	"errors"
	"math"
	"testing"
)

func TestEvaluate_Perfect(t *testing.T) {
	labels := []float64{1, -1, 1, 1, -1}
	r, err := Evaluate(labels, labels)
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if r.Accuracy != "100.00" || r.MSE != "0.000" || r.SCC != "1.000" {
		t.Fatalf("report = %+v, want 100.00/0.000/1.000", r)
	}
}

func TestEvaluate_LengthMismatch(t *testing.T) {
	_, err := Evaluate([]float64{1, 2, 3}, []float64{1, 2})
	if !errors.Is(err, ErrLengthMismatch) {
		t.Fatalf("Evaluate error = %v, want ErrLengthMismatch", err)
	}
}

func TestCompute_ZeroVariance(t *testing.T) {
	s, err := Compute([]float64{1, 2, 3, 4}, []float64{2, 2, 2, 2})
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}
	if !math.IsNaN(s.SCC) {
		t.Fatalf("scc = %v, want NaN", s.SCC)
	}
	if s.Accuracy != 25 {
		t.Fatalf("accuracy = %v, want 25", s.Accuracy)
	}
	if s.MSE != 1.5 {
		t.Fatalf("mse = %v, want 1.5", s.MSE)
	}
	if got := s.Report().SCC; got != "NaN" {
		t.Fatalf("formatted scc = %q, want NaN", got)
	}
}

func TestCompute_Regression(t *testing.T) {
	labels := []float64{1, 2, 3, 4}
	preds := []float64{1.5, 2, 2.5, 4.5}
	s, err := Compute(labels, preds)
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}
	if got, want := s.MSE, 0.1875; math.Abs(got-want) > 1e-12 {
		t.Fatalf("mse = %v, want %v", got, want)
	}
	// Σp=10.5 Σy=10 Σp²=32.75 Σy²=30 Σpy=31, n=4
	want := 361.0 / 415.0
	if math.Abs(s.SCC-want) > 1e-12 {
		t.Fatalf("scc = %v, want %v", s.SCC, want)
	}
	if s.Report().Accuracy != "25.00" {
		t.Fatalf("accuracy = %q, want 25.00", s.Report().Accuracy)
	}
}

func TestCompute_Empty(t *testing.T) {
	s, err := Compute(nil, nil)
	if err != nil {
		t.Fatalf("Compute(nil, nil) failed: %v", err)
	}
	if !math.IsNaN(s.Accuracy) || !math.IsNaN(s.MSE) || !math.IsNaN(s.SCC) {
		t.Fatalf("stats = %+v, want NaN", s)
	}
}
