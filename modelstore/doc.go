// Package modelstore keeps engine-serialized SVM models and their evaluation
// reports in a SQLite database (modernc.org/sqlite driver).
//
// Models are stored as opaque blobs: the store asks the engine to save a
// model into a temporary file and keeps the bytes, and materializes them
// back into a file for the engine to load. Each Put creates a new version
// identified by a UUID; Get returns the latest one.
package modelstore
