// Package evaluate computes accuracy, mean squared error and the squared
// correlation coefficient of predictions against true labels, and renders
// them as a fixed-precision report.
package evaluate
