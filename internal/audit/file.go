package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/spigell/cv-screener/internal/evaluation"
)

const recordExt = ".json"

var syncDir = func(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	if err := d.Sync(); err != nil {
		d.Close()
		return err
	}
	return d.Close()
}

// FileSink stores one JSON document per record in a directory.
type FileSink struct {
	dir    string
	logger *zap.Logger
}

var _ Sink = (*FileSink)(nil)

// NewFileSink creates dir when needed.
func NewFileSink(dir string, logger *zap.Logger) (*FileSink, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create audit dir %s: %w", dir, err)
	}
	return &FileSink{dir: dir, logger: logger}, nil
}

// Persist writes the record to a temporary file, syncs it and links it under
// its final name. Linking fails when the name exists, so records are never
// overwritten and readers never see a partial document.
func (s *FileSink) Persist(ctx context.Context, record evaluation.Record) (Ref, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	ref, err := refFor(record)
	if err != nil {
		return "", err
	}
	record = record.WithID(ref.String())

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode record: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, "."+ref.String()+"-*.tmp")
	if err != nil {
		return "", fmt.Errorf("create temp record: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write record: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return "", fmt.Errorf("sync record: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close record: %w", err)
	}

	if err := os.Link(tmpName, s.path(ref)); err != nil {
		if errors.Is(err, os.ErrExist) {
			return "", fmt.Errorf("%w: %s", ErrExists, ref)
		}
		return "", fmt.Errorf("link record: %w", err)
	}
	os.Remove(tmpName)

	// The record counts as stored only once its directory entry is durable.
	if err := syncDir(s.dir); err != nil {
		return "", fmt.Errorf("sync audit dir: %w", err)
	}

	s.logger.Debug("evaluation record stored", zap.String("ref", ref.String()))
	return ref, nil
}

func (s *FileSink) Get(_ context.Context, ref Ref) (evaluation.Record, error) {
	if _, err := ParseRef(ref.String()); err != nil {
		return evaluation.Record{}, err
	}

	data, err := os.ReadFile(s.path(ref))
	if errors.Is(err, os.ErrNotExist) {
		return evaluation.Record{}, fmt.Errorf("%w: %s", ErrNotFound, ref)
	}
	if err != nil {
		return evaluation.Record{}, fmt.Errorf("read record %s: %w", ref, err)
	}

	var record evaluation.Record
	if err := json.Unmarshal(data, &record); err != nil {
		return evaluation.Record{}, fmt.Errorf("decode record %s: %w", ref, err)
	}
	return record, nil
}

// List returns every stored record ordered by creation time. Unreadable
// files are logged and skipped.
func (s *FileSink) List(ctx context.Context) ([]evaluation.Record, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read audit dir: %w", err)
	}

	records := make([]evaluation.Record, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") || filepath.Ext(name) != recordExt {
			continue
		}
		record, err := s.Get(ctx, Ref(strings.TrimSuffix(name, recordExt)))
		if err != nil {
			s.logger.Warn("skip unreadable evaluation record", zap.String("file", name), zap.Error(err))
			continue
		}
		records = append(records, record)
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].CreatedAt.Before(records[j].CreatedAt)
	})
	return records, nil
}

func (s *FileSink) Close() error { return nil }

func (s *FileSink) path(ref Ref) string {
	return filepath.Join(s.dir, ref.String()+recordExt)
}
