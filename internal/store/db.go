package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"go-plan-pipeline/internal/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS generations (
	id TEXT PRIMARY KEY,
	goal TEXT,
	mode TEXT,
	path TEXT,
	status TEXT,
	plan_text TEXT,
	schema_json TEXT,
	metadata_json TEXT,
	sample_json TEXT,
	warnings_json TEXT,
	created_at DATETIME,
	updated_at DATETIME
);
CREATE TABLE IF NOT EXISTS generation_errors (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	generation_id TEXT,
	kind TEXT,
	category TEXT,
	error_message TEXT,
	created_at DATETIME
);
CREATE INDEX IF NOT EXISTS idx_generation_errors_generation ON generation_errors (generation_id);
`

// Store persists generations in SQLite.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at dbPath and makes sure the tables
// exist. Use ":memory:" for a throwaway store.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, model.ErrStorage(err, "open %s", dbPath)
	}
	// An in-memory database lives as long as its connection.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, model.ErrStorage(err, "create tables")
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveGeneration inserts rec, replacing an earlier record with the same id.
func (s *Store) SaveGeneration(ctx context.Context, rec *model.GenerationRecord) error {
	warnings, err := json.Marshal(rec.Warnings)
	if err != nil {
		return model.ErrStorage(err, "encode warnings")
	}
	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = now
	}
	if rec.Status == "" {
		rec.Status = model.StatusPending
	}
	_, err = s.db.ExecContext(ctx, `INSERT OR REPLACE INTO generations
		(id, goal, mode, path, status, plan_text, schema_json, metadata_json, sample_json, warnings_json, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Goal, string(rec.Mode), string(rec.Path), rec.Status, rec.PlanText,
		string(rec.Schema), string(rec.Metadata), string(rec.Sample), string(warnings),
		rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		return model.ErrStorage(err, "save generation %s", rec.ID)
	}
	return nil
}

// UpdateGenerationStatus updates the status of a generation.
func (s *Store) UpdateGenerationStatus(ctx context.Context, id, status string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE generations SET status = ?, updated_at = ? WHERE id = ?`,
		status, time.Now().UTC(), id)
	if err != nil {
		return model.ErrStorage(err, "update generation %s", id)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return model.ErrNotFound(nil, "generation %s not found", id)
	}
	return nil
}

// GetGeneration fetches one generation.
func (s *Store) GetGeneration(ctx context.Context, id string) (*model.GenerationRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, goal, mode, path, status, plan_text, schema_json,
		metadata_json, sample_json, warnings_json, created_at, updated_at
		FROM generations WHERE id = ?`, id)
	rec, err := scanGeneration(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrNotFound(err, "generation %s not found", id)
	}
	if err != nil {
		return nil, model.ErrStorage(err, "get generation %s", id)
	}
	return rec, nil
}

// ListGenerations returns the newest generations first, without their
// samples. A limit of zero or less returns all of them.
func (s *Store) ListGenerations(ctx context.Context, limit int) ([]*model.GenerationRecord, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id, goal, mode, path, status, plan_text, schema_json,
		metadata_json, '', warnings_json, created_at, updated_at
		FROM generations ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, model.ErrStorage(err, "list generations")
	}
	defer rows.Close()

	out := make([]*model.GenerationRecord, 0)
	for rows.Next() {
		rec, err := scanGeneration(rows)
		if err != nil {
			return nil, model.ErrStorage(err, "scan generation")
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, model.ErrStorage(err, "list generations")
	}
	return out, nil
}

// SaveGenerationError records an error for a generation.
func (s *Store) SaveGenerationError(ctx context.Context, detail model.ErrorDetail) error {
	ts := detail.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO generation_errors (generation_id, kind, category, error_message, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		detail.GenerationID, string(detail.Kind), detail.Category, detail.Message, ts.UTC())
	if err != nil {
		return model.ErrStorage(err, "save error for generation %s", detail.GenerationID)
	}
	return nil
}

// GetGenerationErrors returns the errors recorded for a generation, oldest
// first.
func (s *Store) GetGenerationErrors(ctx context.Context, id string) ([]model.ErrorDetail, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, generation_id, kind, category, error_message, created_at
		FROM generation_errors WHERE generation_id = ? ORDER BY id`, id)
	if err != nil {
		return nil, model.ErrStorage(err, "get errors for generation %s", id)
	}
	defer rows.Close()

	out := make([]model.ErrorDetail, 0)
	for rows.Next() {
		var d model.ErrorDetail
		var kind string
		if err := rows.Scan(&d.ID, &d.GenerationID, &kind, &d.Category, &d.Message, &d.Timestamp); err != nil {
			return nil, model.ErrStorage(err, "scan generation error")
		}
		d.Kind = model.ErrorKind(kind)
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, model.ErrStorage(err, "get errors for generation %s", id)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanGeneration(sc scanner) (*model.GenerationRecord, error) {
	var rec model.GenerationRecord
	var mode, path, schemaJSON, metadataJSON, sampleJSON, warningsJSON string
	err := sc.Scan(&rec.ID, &rec.Goal, &mode, &path, &rec.Status, &rec.PlanText,
		&schemaJSON, &metadataJSON, &sampleJSON, &warningsJSON, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return nil, err
	}
	rec.Mode = model.Mode(mode)
	rec.Path = model.GenerationPath(path)
	rec.Schema = rawOrNil(schemaJSON)
	rec.Metadata = rawOrNil(metadataJSON)
	rec.Sample = rawOrNil(sampleJSON)
	if warningsJSON != "" && warningsJSON != "null" {
		if err := json.Unmarshal([]byte(warningsJSON), &rec.Warnings); err != nil {
			return nil, err
		}
	}
	return &rec, nil
}

func rawOrNil(s string) json.RawMessage {
	if s == "" {
		return nil
	}
	return json.RawMessage(s)
}
