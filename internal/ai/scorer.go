package ai

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	_ "embed"

	"go.uber.org/zap"

	"github.com/spigell/cv-screener/internal/logger"
	"github.com/spigell/cv-screener/internal/utils"
)

//go:embed prompt.md
var promptTemplate string

const (
	DefaultTimeout       = 45 * time.Second
	DefaultRetryDelay    = time.Second
	DefaultTipsMaxLength = 500
	DefaultMaxLogLength  = 200

	maxAttempts = 2
)

var sleep = time.Sleep

// Options tunes a Scorer. Zero values fall back to the defaults above.
type Options struct {
	Timeout       time.Duration
	RetryDelay    time.Duration
	TipsMaxLength int
	MaxLogLength  int
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.RetryDelay < 0 {
		o.RetryDelay = 0
	}
	if o.TipsMaxLength <= 0 {
		o.TipsMaxLength = DefaultTipsMaxLength
	}
	if o.MaxLogLength <= 0 {
		o.MaxLogLength = DefaultMaxLogLength
	}
	return o
}

// Scorer builds the prompt, calls the generator and validates the answer.
type Scorer struct {
	generator Generator
	opts      Options
	logger    *zap.Logger
}

// NewScorer creates a Scorer. The generator is shared between submissions.
func NewScorer(generator Generator, opts Options, log *zap.Logger) *Scorer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Scorer{
		generator: generator,
		opts:      opts.withDefaults(),
		logger:    logger.WithCommonFields(log, generator.Provider(), generator.Model()),
	}
}

// Score evaluates resumeText against vacancyText. Transport failures are
// retried once; parse and validation failures are returned immediately.
func (s *Scorer) Score(ctx context.Context, resumeText, vacancyText string) (*Assessment, error) {
	prompt := BuildPrompt(resumeText, vacancyText, s.opts.TipsMaxLength)

	s.logger.Debug("scoring request",
		zap.Int("prompt_length", utf8.RuneCountInString(prompt)),
		zap.String("prompt_preview", utils.TruncateForLog(prompt, s.opts.MaxLogLength)),
	)

	// A request that is already in flight ends only by its own timeout.
	base := context.WithoutCancel(ctx)

	var (
		raw string
		err error
	)
	attempt := 0
	for attempt < maxAttempts {
		attempt++
		raw, err = s.generate(base, prompt)
		if err == nil {
			break
		}
		if !errors.Is(err, ErrUnavailable) {
			return nil, err
		}
		s.logger.Warn("scoring provider unavailable",
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		if attempt < maxAttempts {
			sleep(s.opts.RetryDelay)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("after %d attempts: %w", attempt, err)
	}

	s.logger.Debug("scoring response",
		zap.Int("attempt", attempt),
		zap.Int("response_length", utf8.RuneCountInString(raw)),
		zap.String("response_preview", utils.TruncateForLog(raw, s.opts.MaxLogLength)),
	)

	assessment, err := ParseResponse(raw, s.opts.TipsMaxLength)
	if err != nil {
		s.logger.Warn("scoring response rejected",
			zap.Error(err),
			zap.String("response_preview", utils.TruncateForLog(raw, s.opts.MaxLogLength)),
		)
		return nil, err
	}

	assessment.Model = s.generator.Model()
	assessment.Attempts = attempt
	assessment.Raw = raw
	return assessment, nil
}

func (s *Scorer) generate(base context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(base, s.opts.Timeout)
	defer cancel()

	raw, err := s.generator.GenerateContent(ctx, prompt)
	if err == nil {
		return raw, nil
	}
	if errors.Is(err, ErrUnavailable) {
		return "", err
	}
	if errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
		return "", fmt.Errorf("%w: timed out after %s: %w", ErrUnavailable, s.opts.Timeout, err)
	}
	return "", err
}

// BuildPrompt embeds both texts verbatim into the prompt template.
func BuildPrompt(resumeText, vacancyText string, tipsLimit int) string {
	template := promptTemplate
	if strings.TrimSpace(template) == "" {
		template = "Vacancy:\n{{VACANCY}}\n\nRésumé:\n{{RESUME}}\n\nJSON Response:"
	}
	if tipsLimit <= 0 {
		tipsLimit = DefaultTipsMaxLength
	}
	r := strings.NewReplacer(
		"{{VACANCY}}", strings.TrimSpace(vacancyText),
		"{{RESUME}}", strings.TrimSpace(resumeText),
		"{{TIPS_LIMIT}}", strconv.Itoa(tipsLimit),
	)
	return r.Replace(template)
}
