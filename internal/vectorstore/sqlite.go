package vectorstore

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dshills/coderag/pkg/types"
)

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string) (*sql.DB, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
	}

	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// SQLite benefits from a single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// SQLiteBackend stores each generation as rows in one SQLite database
type SQLiteBackend struct {
	db *sql.DB
}

// NewSQLiteBackend opens (or creates) the database at dbPath, applies
// migrations and discards generations left incomplete by an interrupted pass
func NewSQLiteBackend(ctx context.Context, dbPath string) (*SQLiteBackend, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("%w: sqlite path is required", types.ErrNotConfigured)
	}

	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := ApplyMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	if _, err := db.ExecContext(ctx, "DELETE FROM generations WHERE complete = 0"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to discard incomplete generations: %w", err)
	}

	return &SQLiteBackend{db: db}, nil
}

func (b *SQLiteBackend) Name() string {
	return BackendSQLite
}

func (b *SQLiteBackend) NewGeneration(ctx context.Context, scheme string, dim int) (Store, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("%w: invalid dimension %d", ErrDimensionMismatch, dim)
	}

	res, err := b.db.ExecContext(ctx,
		"INSERT INTO generations (scheme, dimension, complete, created_at) VALUES (?, ?, 0, ?)",
		scheme, dim, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("create generation: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("create generation: %w", err)
	}

	return &SQLiteStore{db: b.db, generation: id, scheme: scheme, dim: dim}, nil
}

func (b *SQLiteBackend) Open(ctx context.Context, scheme string) (Store, error) {
	var (
		id          int64
		storeScheme string
		dim         int
	)
	err := b.db.QueryRowContext(ctx,
		"SELECT id, scheme, dimension FROM generations WHERE complete = 1 ORDER BY id DESC LIMIT 1",
	).Scan(&id, &storeScheme, &dim)
	if err == sql.ErrNoRows {
		return nil, ErrEmpty
	}
	if err != nil {
		return nil, fmt.Errorf("read generation: %w", err)
	}
	if storeScheme != scheme {
		return nil, fmt.Errorf("%w: stored %q, embedder %q", types.ErrStaleSnapshot, storeScheme, scheme)
	}

	return &SQLiteStore{db: b.db, generation: id, scheme: storeScheme, dim: dim}, nil
}

// Commit marks the generation complete. Older generations stay readable
// until their stores are dropped.
func (b *SQLiteBackend) Commit(ctx context.Context, s Store) error {
	store, ok := s.(*SQLiteStore)
	if !ok {
		return fmt.Errorf("sqlite backend cannot commit %T", s)
	}

	_, err := b.db.ExecContext(ctx,
		"UPDATE generations SET complete = 1, committed_at = ? WHERE id = ?",
		time.Now().UTC(), store.generation)
	if err != nil {
		return fmt.Errorf("commit generation %d: %w", store.generation, err)
	}
	return nil
}

// Prune deletes generations with a lower id than keep. Passes started
// after keep was created have higher ids and are left alone.
func (b *SQLiteBackend) Prune(ctx context.Context, keep Store) error {
	store, ok := keep.(*SQLiteStore)
	if !ok {
		return fmt.Errorf("sqlite backend cannot prune around %T", keep)
	}

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM documents WHERE generation_id < ?", store.generation); err != nil {
		return fmt.Errorf("prune documents: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM generations WHERE id < ?", store.generation); err != nil {
		return fmt.Errorf("prune generations: %w", err)
	}
	return tx.Commit()
}

func (b *SQLiteBackend) Clear(ctx context.Context) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM documents"); err != nil {
		return fmt.Errorf("clear documents: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM generations"); err != nil {
		return fmt.Errorf("clear generations: %w", err)
	}
	return tx.Commit()
}

// Close closes the database connection
func (b *SQLiteBackend) Close() error {
	return b.db.Close()
}

// SQLiteStore is one generation inside a SQLiteBackend database
type SQLiteStore struct {
	db         *sql.DB
	generation int64
	scheme     string
	dim        int
}

// Generation returns the generation row id
func (s *SQLiteStore) Generation() int64 {
	return s.generation
}

// Upsert writes documents in transactions of BatchSize rows
func (s *SQLiteStore) Upsert(ctx context.Context, docs []Document) error {
	if err := validateDocs(docs, s.dim); err != nil {
		return err
	}

	for start := 0; start < len(docs); start += BatchSize {
		end := start + BatchSize
		if end > len(docs) {
			end = len(docs)
		}
		if err := s.upsertBatch(ctx, docs[start:end]); err != nil {
			return fmt.Errorf("upsert batch %d-%d: %w", start, end, err)
		}
	}
	return nil
}

func (s *SQLiteStore) upsertBatch(ctx context.Context, docs []Document) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO documents (generation_id, id, content, metadata, vector)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(generation_id, id) DO UPDATE SET
			content = excluded.content,
			metadata = excluded.metadata,
			vector = excluded.vector
	`)
	if err != nil {
		return err
	}
	defer func() { _ = stmt.Close() }()

	for _, d := range docs {
		meta, err := json.Marshal(d.Metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata for %s: %w", d.ID, err)
		}
		if _, err := stmt.ExecContext(ctx, s.generation, d.ID, d.Content, string(meta), serializeVector(d.Embedding)); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (s *SQLiteStore) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	for start := 0; start < len(ids); start += BatchSize {
		end := start + BatchSize
		if end > len(ids) {
			end = len(ids)
		}
		batch := ids[start:end]

		placeholders := strings.Repeat("?,", len(batch))
		placeholders = placeholders[:len(placeholders)-1]
		args := make([]interface{}, 0, len(batch)+1)
		args = append(args, s.generation)
		for _, id := range batch {
			args = append(args, id)
		}

		query := fmt.Sprintf("DELETE FROM documents WHERE generation_id = ? AND id IN (%s)", placeholders)
		if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("delete documents: %w", err)
		}
	}
	return nil
}

// Search scans the generation and ranks by cosine similarity
func (s *SQLiteStore) Search(ctx context.Context, query []float32, k int) ([]types.SearchResult, error) {
	if k <= 0 {
		return []types.SearchResult{}, nil
	}
	if err := checkQuery(query, s.dim); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, content, metadata, vector FROM documents WHERE generation_id = ?", s.generation)
	if err != nil {
		return nil, fmt.Errorf("search documents: %w", err)
	}
	defer func() { _ = rows.Close() }()

	results := make([]types.SearchResult, 0, 256)
	for rows.Next() {
		var (
			d          Document
			meta       string
			vectorBlob []byte
		)
		if err := rows.Scan(&d.ID, &d.Content, &meta, &vectorBlob); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(meta), &d.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata for %s: %w", d.ID, err)
		}

		vector := deserializeVector(vectorBlob)
		if len(vector) != len(query) {
			continue
		}
		results = append(results, toResult(d, CosineSimilarity(query, vector)))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return rank(results, k), nil
}

func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM documents WHERE generation_id = ?", s.generation).Scan(&n)
	return n, err
}

func (s *SQLiteStore) Scheme() string {
	return s.scheme
}

func (s *SQLiteStore) Dimension() int {
	return s.dim
}

// Drop deletes the generation and its documents
func (s *SQLiteStore) Drop(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM documents WHERE generation_id = ?", s.generation); err != nil {
		return fmt.Errorf("drop generation %d: %w", s.generation, err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM generations WHERE id = ?", s.generation); err != nil {
		return fmt.Errorf("drop generation %d: %w", s.generation, err)
	}
	return tx.Commit()
}

// Close is a no-op; the backend owns the database handle
func (s *SQLiteStore) Close() error {
	return nil
}

// serializeVector converts a float32 slice to a byte blob (little-endian)
func serializeVector(vector []float32) []byte {
	blob := make([]byte, len(vector)*4)
	for i, v := range vector {
		binary.LittleEndian.PutUint32(blob[i*4:], math.Float32bits(v))
	}
	return blob
}

// deserializeVector converts a byte blob back to a float32 slice
func deserializeVector(blob []byte) []float32 {
	vector := make([]float32, len(blob)/4)
	for i := range vector {
		bits := binary.LittleEndian.Uint32(blob[i*4:])
		vector[i] = math.Float32frombits(bits)
	}
	return vector
}
