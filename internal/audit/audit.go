// Package audit stores evaluation records. Sinks are append-only: a record is
// written once under a fresh identifier and never modified afterwards.
package audit

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spigell/cv-screener/internal/evaluation"
)

// Ref identifies a persisted record.
type Ref string

func (r Ref) String() string { return string(r) }

var (
	// ErrNotFound is returned by Get for unknown references.
	ErrNotFound = errors.New("evaluation record not found")
	// ErrExists is returned when a record id is already taken.
	ErrExists = errors.New("evaluation record already exists")
	// ErrInvalidRef is returned for references that are not sink identifiers.
	ErrInvalidRef = errors.New("invalid evaluation reference")
)

// Sink persists evaluation records.
type Sink interface {
	// Persist stores record durably. The record id is assigned by the caller
	// through NewRef; an empty id gets a fresh one.
	Persist(ctx context.Context, record evaluation.Record) (Ref, error)
	Get(ctx context.Context, ref Ref) (evaluation.Record, error)
	Close() error
}

// NewRef returns a random 128-bit identifier.
func NewRef() Ref {
	return Ref(uuid.NewString())
}

// ParseRef validates a reference supplied from outside, e.g. an URL path.
func ParseRef(s string) (Ref, error) {
	id, err := uuid.Parse(strings.TrimSpace(s))
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidRef, s)
	}
	return Ref(id.String()), nil
}

// Config selects and configures a sink.
type Config struct {
	Sink       string `mapstructure:"sink"`
	Dir        string `mapstructure:"dir"`
	SQLitePath string `mapstructure:"sqlite-path"`
}

const (
	SinkFile   = "file"
	SinkSQLite = "sqlite"
)

// Open builds the sink named by cfg.Sink.
func Open(ctx context.Context, cfg Config, logger *zap.Logger) (Sink, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Sink)) {
	case "", SinkFile:
		dir := cfg.Dir
		if strings.TrimSpace(dir) == "" {
			dir = "data/evaluations"
		}
		sink, err := NewFileSink(dir, logger)
		if err != nil {
			return nil, err
		}
		return sink, nil
	case SinkSQLite:
		path := cfg.SQLitePath
		if strings.TrimSpace(path) == "" {
			path = "data/audit.db"
		}
		sink, err := NewSQLiteSink(ctx, path, logger)
		if err != nil {
			return nil, err
		}
		return sink, nil
	default:
		return nil, fmt.Errorf("unknown audit sink %q", cfg.Sink)
	}
}

func refFor(record evaluation.Record) (Ref, error) {
	if strings.TrimSpace(record.ID) == "" {
		return NewRef(), nil
	}
	return ParseRef(record.ID)
}
