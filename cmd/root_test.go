package cmd

import (
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"

	"github.com/spigell/cv-screener/internal/evaluation"
)

func newTestViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()
	return v
}

func TestDefaultsDecode(t *testing.T) {
	var config Config
	if err := newTestViper().Unmarshal(&config); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if config.AI.Timeout != 45*time.Second || config.Review.Timeout != 10*time.Second {
		t.Fatalf("unexpected timeouts: ai=%v review=%v", config.AI.Timeout, config.Review.Timeout)
	}
	if config.Screening.MinChars != 150 || config.Screening.MaxURLRatio != 0.5 {
		t.Fatalf("unexpected screening config %+v", config.Screening)
	}

	tags, err := evaluation.NewTagTable(config.Decision.Tags, config.Decision.FallbackTag)
	if err != nil {
		t.Fatalf("default tags are invalid: %v", err)
	}
	if tags.TagFor(85) != evaluation.TagTop || tags.TagFor(49) != evaluation.TagJunior {
		t.Fatalf("unexpected default tag table %+v", tags)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("CV_SCREENER_AI_PROVIDER", "openai")
	t.Setenv("CV_SCREENER_DECISION_MIN_RATING", "55")
	t.Setenv("CV_SCREENER_REVIEW_TIMEOUT", "3s")

	var config Config
	if err := newTestViper().Unmarshal(&config); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if config.AI.Provider != "openai" || config.Decision.MinRating != 55 || config.Review.Timeout != 3*time.Second {
		t.Fatalf("environment not applied: %+v %+v %+v", config.AI, config.Decision, config.Review)
	}
}
