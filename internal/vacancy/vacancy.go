// Package vacancy provides read access to vacancies and, for the database
// backed store, their administration.
package vacancy

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"go.uber.org/zap"
)

// ErrNotFound is returned for unknown or inactive vacancies.
var ErrNotFound = errors.New("vacancy not found")

// Descriptor is the read-only view of a vacancy used for scoring.
type Descriptor struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// Text is what the scorer compares the résumé with. Vacancies without a
// description are represented by their title.
func (d Descriptor) Text() string {
	if text := strings.TrimSpace(d.Description); text != "" {
		return text
	}
	return strings.TrimSpace(d.Title)
}

// Hashtag turns the title into a single tag usable in chat summaries.
func (d Descriptor) Hashtag() string {
	return "#" + strings.Join(strings.Fields(d.Title), "_")
}

// Store looks vacancies up.
type Store interface {
	Get(ctx context.Context, id string) (Descriptor, error)
	ListActive(ctx context.Context) ([]Descriptor, error)
}

// Config selects the vacancy source.
type Config struct {
	Source          string `mapstructure:"source"`
	File            string `mapstructure:"file"`
	DatabaseURLFile string `mapstructure:"database-url-file"`
	DatabaseURLEnv  string `mapstructure:"database-url-env"`
}

const (
	SourceFile     = "file"
	SourcePostgres = "postgres"
)

// Open builds the store named by cfg.Source. databaseURL is only used for postgres.
func Open(cfg Config, databaseURL string, logger *zap.Logger) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Source)) {
	case "", SourceFile:
		path := cfg.File
		if strings.TrimSpace(path) == "" {
			path = "vacancies.json"
		}
		store, err := LoadFileStore(path)
		if err != nil {
			return nil, err
		}
		return store, nil
	case SourcePostgres:
		store, err := OpenGormStore(databaseURL, logger)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown vacancy source %q", cfg.Source)
	}
}

// Slug derives a stable identifier from a title.
func Slug(title string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(title)) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
