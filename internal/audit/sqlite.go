package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/spigell/cv-screener/internal/evaluation"
)

// SQLiteSink stores records in a single insert-only table. The full record is
// kept as a JSON payload; a few columns are lifted out for querying.
type SQLiteSink struct {
	db     *sql.DB
	logger *zap.Logger
}

var _ Sink = (*SQLiteSink)(nil)

// NewSQLiteSink opens (or creates) the database at path.
func NewSQLiteSink(ctx context.Context, path string, logger *zap.Logger) (*SQLiteSink, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("audit: mkdir %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("audit: open db: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite: single writer

	if err := initSchema(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("audit: init schema: %w", err)
	}

	return &SQLiteSink{db: db, logger: logger}, nil
}

func initSchema(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS evaluations (
		id           TEXT PRIMARY KEY,
		created_at   TEXT NOT NULL,
		vacancy_id   TEXT NOT NULL,
		submitter_id TEXT NOT NULL,
		rating       INTEGER NOT NULL,
		tag          TEXT NOT NULL,
		payload      TEXT NOT NULL
	)`)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS evaluations_vacancy ON evaluations (vacancy_id, created_at)`)
	return err
}

func (s *SQLiteSink) Persist(ctx context.Context, record evaluation.Record) (Ref, error) {
	ref, err := refFor(record)
	if err != nil {
		return "", err
	}
	record = record.WithID(ref.String())

	payload, err := json.Marshal(record)
	if err != nil {
		return "", fmt.Errorf("encode record: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO evaluations (id, created_at, vacancy_id, submitter_id, rating, tag, payload)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ref.String(), record.CreatedAt.UTC().Format(time.RFC3339Nano), record.VacancyID,
		record.SubmitterID, record.Rating, string(record.Tag), string(payload),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return "", fmt.Errorf("%w: %s", ErrExists, ref)
		}
		return "", fmt.Errorf("insert record: %w", err)
	}

	s.logger.Debug("evaluation record stored", zap.String("ref", ref.String()))
	return ref, nil
}

func (s *SQLiteSink) Get(ctx context.Context, ref Ref) (evaluation.Record, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM evaluations WHERE id = ?`, ref.String()).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return evaluation.Record{}, fmt.Errorf("%w: %s", ErrNotFound, ref)
	}
	if err != nil {
		return evaluation.Record{}, fmt.Errorf("query record %s: %w", ref, err)
	}

	var record evaluation.Record
	if err := json.Unmarshal([]byte(payload), &record); err != nil {
		return evaluation.Record{}, fmt.Errorf("decode record %s: %w", ref, err)
	}
	return record, nil
}

// ListByVacancy returns the records of one vacancy, oldest first.
func (s *SQLiteSink) ListByVacancy(ctx context.Context, vacancyID string) ([]evaluation.Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT payload FROM evaluations WHERE vacancy_id = ? ORDER BY created_at, id`, vacancyID)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	var records []evaluation.Record
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var record evaluation.Record
		if err := json.Unmarshal([]byte(payload), &record); err != nil {
			return nil, fmt.Errorf("decode record: %w", err)
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

func (s *SQLiteSink) Close() error {
	return s.db.Close()
}
