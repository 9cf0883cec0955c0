// Package reload watches a persisted model file and re-applies it whenever it
// changes, typically by loading it into an SVM through LoadInto.
package reload
