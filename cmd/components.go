package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/cv-screener/internal/ai"
	"github.com/spigell/cv-screener/internal/ai/gemini"
	"github.com/spigell/cv-screener/internal/ai/openai"
	"github.com/spigell/cv-screener/internal/audit"
	"github.com/spigell/cv-screener/internal/evaluation"
	"github.com/spigell/cv-screener/internal/filtering"
	"github.com/spigell/cv-screener/internal/logger"
	"github.com/spigell/cv-screener/internal/pipeline"
	"github.com/spigell/cv-screener/internal/review"
	"github.com/spigell/cv-screener/internal/secrets"
	"github.com/spigell/cv-screener/internal/staging"
	"github.com/spigell/cv-screener/internal/vacancy"
)

// setup returns the logger and the decoded config or exits.
func setup() (*zap.Logger, *Config) {
	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	return logger, config
}

// components is everything a submission needs. close releases what was opened.
type components struct {
	orchestrator *pipeline.Orchestrator
	vacancies    vacancy.Store
	sink         audit.Sink
	staging      *staging.Area
	notifier     review.Notifier
}

func (c *components) close(logger *zap.Logger) {
	if c.notifier != nil {
		if err := c.notifier.Close(); err != nil {
			logger.Warn("closing review notifier", zap.Error(err))
		}
	}
	if c.sink != nil {
		if err := c.sink.Close(); err != nil {
			logger.Warn("closing audit sink", zap.Error(err))
		}
	}
	if closer, ok := c.vacancies.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			logger.Warn("closing vacancy store", zap.Error(err))
		}
	}
}

func buildComponents(ctx context.Context, config *Config, logger *zap.Logger) (*components, error) {
	c := &components{}
	var err error
	ok := false
	defer func() {
		if !ok {
			c.close(logger)
		}
	}()

	if c.vacancies, err = openVacancies(config, logger); err != nil {
		return nil, err
	}
	if c.sink, err = audit.Open(ctx, config.Audit, logger); err != nil {
		return nil, fmt.Errorf("opening audit sink: %w", err)
	}
	if c.staging, err = staging.NewArea(config.DataDir); err != nil {
		return nil, err
	}
	if c.notifier, err = review.Open(config.Review); err != nil {
		return nil, fmt.Errorf("opening review channel: %w", err)
	}

	scorer, err := newScorer(ctx, config, logger)
	if err != nil {
		return nil, err
	}

	tags, err := evaluation.NewTagTable(config.Decision.Tags, config.Decision.FallbackTag)
	if err != nil {
		return nil, fmt.Errorf("decision.tags: %w", err)
	}

	messages := evaluation.DefaultMessages()
	if config.Decision.AcceptMessage != "" || config.Decision.RejectMessage != "" {
		accept, reject := config.Decision.AcceptMessage, config.Decision.RejectMessage
		if accept == "" || reject == "" {
			return nil, errors.New("decision.accept-message and decision.reject-message must be set together")
		}
		if messages, err = evaluation.ParseMessages(accept, reject); err != nil {
			return nil, err
		}
	}

	filters := filtering.Default(config.Screening.WithDefaults())
	for _, st := range filtering.Describe(filters) {
		logger.Debug("screening filter", zap.String("name", st.Name), zap.Bool("enabled", st.Enabled),
			zap.String("reason", st.Reason), zap.Any("details", st.Details))
	}

	deps := pipeline.Deps{
		Staging:  c.staging,
		Scorer:   scorer,
		Sink:     c.sink,
		Notifier: c.notifier,
		Logger:   logger,
	}
	minRating := config.Decision.MinRating
	c.orchestrator, err = pipeline.New(deps, pipeline.Config{
		Filters:       filters,
		Tags:          tags,
		MinRating:     &minRating,
		Messages:      messages,
		ReviewTimeout: config.Review.Timeout,
	})
	if err != nil {
		return nil, err
	}

	ok = true
	return c, nil
}

func openVacancies(config *Config, logger *zap.Logger) (vacancy.Store, error) {
	var dsn string
	if strings.EqualFold(strings.TrimSpace(config.Vacancies.Source), vacancy.SourcePostgres) {
		var err error
		dsn, err = secrets.Load(secrets.Source{
			Name: "vacancies database url",
			File: config.Vacancies.DatabaseURLFile,
			Env:  config.Vacancies.DatabaseURLEnv,
		})
		if err != nil {
			return nil, err
		}
	}

	store, err := vacancy.Open(config.Vacancies, dsn, logger)
	if err != nil {
		return nil, fmt.Errorf("opening vacancy store: %w", err)
	}
	return store, nil
}

// openAdmin opens the postgres store for commands that change vacancies.
func openAdmin(config *Config, logger *zap.Logger) (*vacancy.GormStore, error) {
	if !strings.EqualFold(strings.TrimSpace(config.Vacancies.Source), vacancy.SourcePostgres) {
		return nil, fmt.Errorf("vacancies.source must be %q to change vacancies; edit %s instead", vacancy.SourcePostgres, config.Vacancies.File)
	}
	store, err := openVacancies(config, logger)
	if err != nil {
		return nil, err
	}
	return store.(*vacancy.GormStore), nil
}

func newScorer(ctx context.Context, config *Config, logger *zap.Logger) (*ai.Scorer, error) {
	cfg := config.AI
	provider := strings.TrimSpace(strings.ToLower(cfg.Provider))

	keyEnv := cfg.APIKeyEnv
	if keyEnv == "" {
		keyEnv = map[string]string{"": "GEMINI_API_KEY", "gemini": "GEMINI_API_KEY", "openai": "OPENAI_API_KEY"}[provider]
	}
	apiKey, err := secrets.Load(secrets.Source{
		Name:  provider + " api key",
		File:  cfg.APIKeyFile,
		Env:   keyEnv,
		Value: cfg.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("%w (set ai.api-key-file or %s)", err, keyEnv)
	}

	var generator ai.Generator
	switch provider {
	case "", "gemini":
		generator, err = gemini.NewGenerator(ctx, gemini.Config{
			APIKey:          apiKey,
			Model:           cfg.Model,
			Temperature:     cfg.Temperature,
			MaxOutputTokens: int32(cfg.MaxOutputTokens),
		}, logger)
	case "openai":
		generator, err = openai.NewGenerator(openai.Config{
			APIKey:          apiKey,
			Model:           cfg.Model,
			BaseURL:         cfg.BaseURL,
			Temperature:     cfg.Temperature,
			MaxOutputTokens: cfg.MaxOutputTokens,
		}, logger)
	default:
		return nil, fmt.Errorf("unsupported ai provider: %s", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}

	return ai.NewScorer(generator, ai.Options{
		Timeout:       cfg.Timeout,
		RetryDelay:    cfg.RetryDelay,
		TipsMaxLength: config.Decision.TipsMaxLength,
		MaxLogLength:  cfg.MaxLogLength,
	}, logger), nil
}
