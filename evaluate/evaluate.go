package evaluate

import (
	"errors"
	"fmt"
	"math"
)

// ErrLengthMismatch is returned when labels and predictions differ in length.
var ErrLengthMismatch = errors.New("evaluate: labels and predictions length mismatch")

// Stats holds the raw statistics.
type Stats struct {
	Samples  int
	Accuracy float64 // percentage of exact matches
	MSE      float64 // mean squared error
	SCC      float64 // squared correlation coefficient
}

// Report holds Stats formatted for display: accuracy with two decimals, mse
// and scc with three.
type Report struct {
	Accuracy string `json:"accuracy" yaml:"accuracy"`
	MSE      string `json:"mse" yaml:"mse"`
	SCC      string `json:"scc" yaml:"scc"`
}

// Compute returns the statistics of predictions against labels. Empty input
// yields NaN statistics; scc is NaN when either side has zero variance.
func Compute(labels, predictions []float64) (Stats, error) {
	if len(labels) != len(predictions) {
		return Stats{}, fmt.Errorf("%w: %d labels, %d predictions", ErrLengthMismatch, len(labels), len(predictions))
	}
	var matches, sqErr float64
	var sumP, sumY, sumPP, sumYY, sumPY float64
	for i, y := range labels {
		p := predictions[i]
		if p == y {
			matches++
		}
		sqErr += (p - y) * (p - y)
		sumP += p
		sumY += y
		sumPP += p * p
		sumYY += y * y
		sumPY += p * y
	}
	n := float64(len(labels))
	stats := Stats{
		Samples:  len(labels),
		Accuracy: 100 * matches / n,
		MSE:      sqErr / n,
	}
	num := n*sumPY - sumP*sumY
	den := (n*sumPP - sumP*sumP) * (n*sumYY - sumY*sumY)
	if den == 0 {
		stats.SCC = math.NaN()
	} else {
		stats.SCC = num * num / den
	}
	return stats, nil
}

// Report formats s.
func (s Stats) Report() Report {
	return Report{
		Accuracy: fmt.Sprintf("%.2f", s.Accuracy),
		MSE:      fmt.Sprintf("%.3f", s.MSE),
		SCC:      fmt.Sprintf("%.3f", s.SCC),
	}
}

func (r Report) String() string {
	return fmt.Sprintf("accuracy=%s%% mse=%s scc=%s", r.Accuracy, r.MSE, r.SCC)
}

// Evaluate computes the statistics of predictions against labels and
// formats them.
func Evaluate(labels, predictions []float64) (Report, error) {
	stats, err := Compute(labels, predictions)
	if err != nil {
		return Report{}, err
	}
	return stats.Report(), nil
}
