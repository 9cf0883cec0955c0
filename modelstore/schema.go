package modelstore

import (
	"database/sql"
	"strings"

	_ "modernc.org/sqlite" // register pure-Go SQLite driver
)

var schema = []string{`
CREATE TABLE IF NOT EXISTS models (
    id          TEXT PRIMARY KEY,
    name        TEXT NOT NULL,
    version     INTEGER NOT NULL,
    svm_type    INTEGER NOT NULL,
    kernel_type INTEGER NOT NULL,
    blob        BLOB NOT NULL,
    created_at  INTEGER NOT NULL,
    UNIQUE(name, version)
);`, `
CREATE TABLE IF NOT EXISTS evaluations (
    model_id   TEXT NOT NULL REFERENCES models(id) ON DELETE CASCADE,
    accuracy   REAL,
    mse        REAL,
    scc        REAL,
    samples    INTEGER NOT NULL,
    created_at INTEGER NOT NULL
);`,
	`CREATE INDEX IF NOT EXISTS evaluations_model ON evaluations(model_id);`,
}

// Open opens a SQLite database using the modernc.org/sqlite driver.
//
// For file-based databases, pass a path like "./models.sqlite". For
// in-memory databases, pass ":memory:"; the pool is then limited to one
// connection so every query sees the same database.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if dsn == ":memory:" || strings.Contains(dsn, "mode=memory") {
		db.SetMaxOpenConns(1)
	}
	return db, nil
}

// EnsureSchema creates the models and evaluations tables if they do not
// already exist.
func EnsureSchema(db *sql.DB) error {
	for _, ddl := range schema {
		if _, err := db.Exec(ddl); err != nil {
			return err
		}
	}
	return nil
}
