package cmd

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/spigell/cv-screener/internal/audit"
	"github.com/spigell/cv-screener/internal/evaluation"
	"github.com/spigell/cv-screener/internal/filtering"
	"github.com/spigell/cv-screener/internal/review"
	"github.com/spigell/cv-screener/internal/vacancy"
)

const (
	app       = "cv-screener"
	envPrefix = "CV_SCREENER"
)

type Config struct {
	DataDir   string           `mapstructure:"data-dir"`
	Vacancies vacancy.Config   `mapstructure:"vacancies"`
	AI        AIConfig         `mapstructure:"ai"`
	Screening filtering.Config `mapstructure:"screening"`
	Decision  DecisionConfig   `mapstructure:"decision"`
	Audit     audit.Config     `mapstructure:"audit"`
	Review    review.Config    `mapstructure:"review"`
	HTTP      HTTPConfig       `mapstructure:"http"`
	HH        HHConfig         `mapstructure:"hh"`
}

type AIConfig struct {
	Provider        string        `mapstructure:"provider"`
	Model           string        `mapstructure:"model"`
	BaseURL         string        `mapstructure:"base-url"`
	APIKey          string        `mapstructure:"api-key"`
	APIKeyFile      string        `mapstructure:"api-key-file"`
	APIKeyEnv       string        `mapstructure:"api-key-env"`
	Temperature     float32       `mapstructure:"temperature"`
	MaxOutputTokens int           `mapstructure:"max-output-tokens"`
	Timeout         time.Duration `mapstructure:"timeout"`
	RetryDelay      time.Duration `mapstructure:"retry-delay"`
	MaxLogLength    int           `mapstructure:"max-log-length"`
}

type DecisionConfig struct {
	MinRating     int                  `mapstructure:"min-rating"`
	Tags          []evaluation.TagRule `mapstructure:"tags"`
	FallbackTag   string               `mapstructure:"fallback-tag"`
	TipsMaxLength int                  `mapstructure:"tips-max-length"`
	AcceptMessage string               `mapstructure:"accept-message"`
	RejectMessage string               `mapstructure:"reject-message"`
}

type HTTPConfig struct {
	Listen         string        `mapstructure:"listen"`
	MaxUploadBytes int64         `mapstructure:"max-upload-bytes"`
	ReadTimeout    time.Duration `mapstructure:"read-timeout"`
	// WriteTimeout must cover scoring, including the retry.
	WriteTimeout time.Duration `mapstructure:"write-timeout"`
}

type HHConfig struct {
	TokenFile string `mapstructure:"token-file"`
	UserAgent string `mapstructure:"user-agent"`
}

var (
	// Used for flags.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   app,
		Short: "cv-screener evaluates résumés against vacancies with an LLM and records every decision",
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config file (default is cv-screener.yaml in current directory)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")

	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("data-dir", "data/resumes")

	v.SetDefault("vacancies.source", vacancy.SourceFile)
	v.SetDefault("vacancies.file", "vacancies.json")
	v.SetDefault("vacancies.database-url-file", "")
	v.SetDefault("vacancies.database-url-env", "DATABASE_URL")

	v.SetDefault("ai.provider", "gemini")
	v.SetDefault("ai.model", "")
	v.SetDefault("ai.base-url", "")
	v.SetDefault("ai.api-key", "")
	v.SetDefault("ai.api-key-file", "")
	v.SetDefault("ai.api-key-env", "")
	v.SetDefault("ai.temperature", 0.2)
	v.SetDefault("ai.max-output-tokens", 700)
	v.SetDefault("ai.timeout", 45*time.Second)
	v.SetDefault("ai.retry-delay", time.Second)
	v.SetDefault("ai.max-log-length", 200)

	v.SetDefault("screening.min-chars", filtering.DefaultMinChars)
	v.SetDefault("screening.min-words", filtering.DefaultMinWords)
	v.SetDefault("screening.max-url-ratio", filtering.DefaultMaxURLRatio)
	v.SetDefault("screening.disabled", []string{})

	v.SetDefault("decision.min-rating", evaluation.DefaultMinRating)
	v.SetDefault("decision.tags", []map[string]any{
		{"min": 85, "label": "top"},
		{"min": 70, "label": "senior"},
		{"min": 50, "label": "middle"},
	})
	v.SetDefault("decision.fallback-tag", "junior")
	v.SetDefault("decision.tips-max-length", 500)
	v.SetDefault("decision.accept-message", "")
	v.SetDefault("decision.reject-message", "")

	v.SetDefault("audit.sink", audit.SinkFile)
	v.SetDefault("audit.dir", "data/evaluations")
	v.SetDefault("audit.sqlite-path", "data/audit.db")

	v.SetDefault("review.enabled", false)
	v.SetDefault("review.transport", review.TransportRedis)
	v.SetDefault("review.redis-url", "")
	v.SetDefault("review.channel", "cv-screener.reviews")
	v.SetDefault("review.amqp-url", "")
	v.SetDefault("review.queue", "cv-screener.reviews")
	v.SetDefault("review.timeout", review.DefaultTimeout)

	v.SetDefault("http.listen", ":8080")
	v.SetDefault("http.max-upload-bytes", 10<<20)
	v.SetDefault("http.read-timeout", 30*time.Second)
	v.SetDefault("http.write-timeout", 2*time.Minute)

	v.SetDefault("hh.token-file", "")
	v.SetDefault("hh.user-agent", "")
}

func initConfig() {
	// A .env file is optional; real environment variables win over it.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Fatalf("loading .env: %v", err)
	}

	setDefaults(viper.GetViper())
	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName(app)
		viper.SetConfigType("yaml")
	}

	// Running without a config file is fine; a broken one is not.
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			log.Fatal(err)
		}
	}
}

func getConfig() (*Config, error) {
	var config *Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if config == nil {
		return nil, errors.New("config is empty")
	}

	return config, nil
}
