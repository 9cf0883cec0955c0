package modelstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/viant/libsvm-wasm/evaluate"
	"github.com/viant/libsvm-wasm/param"
	"go.uber.org/zap"
)

// DefaultCacheSize is the number of model blobs kept in memory.
const DefaultCacheSize = 16

// SQLiteStore is a Store backed by a SQLite database.
type SQLiteStore struct {
	db      *sql.DB
	cache   *lru.Cache[string, []byte]
	tempDir string
	logger  *zap.Logger
}

// Option configures a SQLiteStore.
type Option func(*options)

type options struct {
	cacheSize int
	tempDir   string
	logger    *zap.Logger
}

// WithCacheSize sets how many model blobs are cached in memory.
func WithCacheSize(n int) Option { return func(o *options) { o.cacheSize = n } }

// WithTempDir sets where model files are materialized for the engine. With
// the wasm engine it must lie below the engine's mount directory.
func WithTempDir(dir string) Option { return func(o *options) { o.tempDir = dir } }

// WithLogger sets the store logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// NewSQLiteStore creates a SQLite-backed Store. It ensures the schema exists
// in the provided database.
func NewSQLiteStore(db *sql.DB, opts ...Option) (*SQLiteStore, error) {
	if db == nil {
		return nil, fmt.Errorf("modelstore: db is nil")
	}
	o := &options{cacheSize: DefaultCacheSize, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(o)
	}
	if err := EnsureSchema(db); err != nil {
		return nil, err
	}
	cache, err := lru.New[string, []byte](max(o.cacheSize, 1))
	if err != nil {
		return nil, err
	}
	return &SQLiteStore{db: db, cache: cache, tempDir: o.tempDir, logger: o.logger}, nil
}

func (s *SQLiteStore) tempFile() (string, error) {
	f, err := os.CreateTemp(s.tempDir, "model-*.svm")
	if err != nil {
		return "", err
	}
	name := f.Name()
	if err := f.Close(); err != nil {
		_ = os.Remove(name)
		return "", err
	}
	return name, nil
}

// Put asks m to save its model into a temporary file and stores the file's
// bytes as the next version of name, tagged with the svm and kernel types of
// m.Config().
func (s *SQLiteStore) Put(ctx context.Context, name string, m Saver) (Model, error) {
	if name == "" {
		return Model{}, fmt.Errorf("modelstore: Put called with empty name")
	}
	path, err := s.tempFile()
	if err != nil {
		return Model{}, err
	}
	defer os.Remove(path)
	ok, err := m.Save(ctx, path)
	if err != nil {
		return Model{}, err
	}
	if !ok {
		return Model{}, ErrSaveFailed
	}
	blob, err := os.ReadFile(path)
	if err != nil {
		return Model{}, err
	}

	cfg := m.Config()
	model := Model{
		ID:         uuid.NewString(),
		Name:       name,
		SVMType:    cfg.SVMType,
		KernelType: cfg.KernelType,
		Size:       len(blob),
		CreatedAt:  time.Now().UTC(),
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Model{}, err
	}
	defer func() { _ = tx.Rollback() }()
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) + 1 FROM models WHERE name = ?`, name).Scan(&model.Version); err != nil {
		return Model{}, err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO models(id, name, version, svm_type, kernel_type, blob, created_at) VALUES(?, ?, ?, ?, ?, ?, ?)`,
		model.ID, name, model.Version, int32(model.SVMType), int32(model.KernelType), blob, model.CreatedAt.UnixNano())
	if err != nil {
		return Model{}, err
	}
	if err := tx.Commit(); err != nil {
		return Model{}, err
	}
	s.cache.Add(model.ID, blob)
	s.logger.Info("model stored",
		zap.String("name", name),
		zap.Int("version", model.Version),
		zap.String("id", model.ID),
		zap.String("size", humanize.Bytes(uint64(len(blob)))))
	return model, nil
}

const modelColumns = `id, name, version, svm_type, kernel_type, length(blob), created_at`

func scanModel(row interface{ Scan(...any) error }) (Model, error) {
	var m Model
	var svmType, kernelType int32
	var created int64
	if err := row.Scan(&m.ID, &m.Name, &m.Version, &svmType, &kernelType, &m.Size, &created); err != nil {
		return Model{}, err
	}
	m.SVMType = param.SVMType(svmType)
	m.KernelType = param.KernelType(kernelType)
	m.CreatedAt = time.Unix(0, created).UTC()
	return m, nil
}

// Get loads the latest version of name into m.
func (s *SQLiteStore) Get(ctx context.Context, name string, m Loader) (Model, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+modelColumns+` FROM models WHERE name = ? ORDER BY version DESC LIMIT 1`, name)
	return s.load(ctx, row, m)
}

// GetVersion loads the version with the given id into m.
func (s *SQLiteStore) GetVersion(ctx context.Context, id string, m Loader) (Model, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+modelColumns+` FROM models WHERE id = ?`, id)
	return s.load(ctx, row, m)
}

func (s *SQLiteStore) load(ctx context.Context, row *sql.Row, m Loader) (Model, error) {
	model, err := scanModel(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Model{}, ErrNotFound
	}
	if err != nil {
		return Model{}, err
	}
	blob, err := s.blob(ctx, model.ID)
	if err != nil {
		return Model{}, err
	}
	path, err := s.tempFile()
	if err != nil {
		return Model{}, err
	}
	defer os.Remove(path)
	if err := os.WriteFile(path, blob, 0o600); err != nil {
		return Model{}, err
	}
	ok, err := m.Load(ctx, path)
	if err != nil {
		return Model{}, err
	}
	if !ok {
		return Model{}, fmt.Errorf("%w: %s version %d", ErrLoadFailed, model.Name, model.Version)
	}
	return model, nil
}

func (s *SQLiteStore) blob(ctx context.Context, id string) ([]byte, error) {
	if blob, ok := s.cache.Get(id); ok {
		return blob, nil
	}
	var blob []byte
	if err := s.db.QueryRowContext(ctx, `SELECT blob FROM models WHERE id = ?`, id).Scan(&blob); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	s.cache.Add(id, blob)
	return blob, nil
}

// Versions lists the versions of name, newest first.
func (s *SQLiteStore) Versions(ctx context.Context, name string) ([]Model, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+modelColumns+` FROM models WHERE name = ? ORDER BY version DESC`, name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Model
	for rows.Next() {
		m, err := scanModel(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Remove deletes every version of name and their evaluations.
func (s *SQLiteStore) Remove(ctx context.Context, name string) error {
	if name == "" {
		return fmt.Errorf("modelstore: Remove called with empty name")
	}
	versions, err := s.Versions(ctx, name)
	if err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.ExecContext(ctx, `DELETE FROM evaluations WHERE model_id IN (SELECT id FROM models WHERE name = ?)`, name); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM models WHERE name = ?`, name); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	for _, v := range versions {
		s.cache.Remove(v.ID)
	}
	return nil
}

func nullable(v float64) sql.NullFloat64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: v, Valid: true}
}

func orNaN(v sql.NullFloat64) float64 {
	if !v.Valid {
		return math.NaN()
	}
	return v.Float64
}

// RecordEvaluation attaches stats to a model version. NaN statistics are
// stored as NULL.
func (s *SQLiteStore) RecordEvaluation(ctx context.Context, id string, stats evaluate.Stats) error {
	var exists int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM models WHERE id = ?`, id).Scan(&exists); err != nil {
		return err
	}
	if exists == 0 {
		return ErrNotFound
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO evaluations(model_id, accuracy, mse, scc, samples, created_at) VALUES(?, ?, ?, ?, ?, ?)`,
		id, nullable(stats.Accuracy), nullable(stats.MSE), nullable(stats.SCC), stats.Samples, time.Now().UTC().UnixNano())
	return err
}

// Evaluations lists the evaluations of a model version, oldest first.
func (s *SQLiteStore) Evaluations(ctx context.Context, id string) ([]Evaluation, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT model_id, accuracy, mse, scc, samples, created_at FROM evaluations WHERE model_id = ? ORDER BY rowid`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Evaluation
	for rows.Next() {
		var e Evaluation
		var accuracy, mse, scc sql.NullFloat64
		var created int64
		if err := rows.Scan(&e.ModelID, &accuracy, &mse, &scc, &e.Stats.Samples, &created); err != nil {
			return nil, err
		}
		e.Stats.Accuracy, e.Stats.MSE, e.Stats.SCC = orNaN(accuracy), orNaN(mse), orNaN(scc)
		e.CreatedAt = time.Unix(0, created).UTC()
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Ensure SQLiteStore satisfies the Store interface.
var _ Store = (*SQLiteStore)(nil)
