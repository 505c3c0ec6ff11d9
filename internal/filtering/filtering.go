// Package filtering holds the cheap heuristic checks a text must pass before
// it is sent to the scoring model.
package filtering

import (
	"strings"

	"go.uber.org/zap"
)

// Filter represents a single heuristic check applied to extracted text.
type Filter interface {
	Name() string
	Disable(reason string)
	IsEnabled() bool

	Check(text string) Verdict
}

// Verdict is the outcome of a single check.
type Verdict struct {
	Passed bool
	// Measured is the value the filter computed (characters, words, ratio).
	Measured float64
	// Limit is the threshold it was compared with.
	Limit  float64
	Reason string
}

// Step describes the result of executing a filtering step.
type Step struct {
	Name    string
	Skipped bool
	Verdict Verdict
}

// Result aggregates every step of a run.
type Result struct {
	Steps []Step
}

// Passed reports whether no enabled step rejected the text.
func (r Result) Passed() bool {
	for _, step := range r.Steps {
		if !step.Skipped && !step.Verdict.Passed {
			return false
		}
	}
	return true
}

// Reasons returns the rejection reasons of every failed step.
func (r Result) Reasons() []string {
	var reasons []string
	for _, step := range r.Steps {
		if step.Skipped || step.Verdict.Passed {
			continue
		}
		reasons = append(reasons, step.Verdict.Reason)
	}
	return reasons
}

// Config contains the thresholds consumed by the default filters.
type Config struct {
	MinChars    int     `mapstructure:"min-chars"`
	MinWords    int     `mapstructure:"min-words"`
	MaxURLRatio float64 `mapstructure:"max-url-ratio"`
	// Disabled names filters that stay in the list but are skipped.
	Disabled []string `mapstructure:"disabled"`
}

const (
	DefaultMinChars    = 150
	DefaultMinWords    = 10
	DefaultMaxURLRatio = 0.5
)

// DefaultConfig returns the standard thresholds.
func DefaultConfig() Config {
	return Config{
		MinChars:    DefaultMinChars,
		MinWords:    DefaultMinWords,
		MaxURLRatio: DefaultMaxURLRatio,
	}
}

// WithDefaults fills zero values with the standard thresholds.
func (c Config) WithDefaults() Config {
	d := DefaultConfig()
	if c.MinChars <= 0 {
		c.MinChars = d.MinChars
	}
	if c.MinWords <= 0 {
		c.MinWords = d.MinWords
	}
	if c.MaxURLRatio <= 0 {
		c.MaxURLRatio = d.MaxURLRatio
	}
	return c
}

// Status represents runtime information about a filter.
type Status struct {
	Name    string
	Enabled bool
	Reason  string
	Details map[string]string
}

// statusProvider is implemented by filters that can supply detailed status information.
type statusProvider interface {
	Status() Status
}

// Default builds the standard set of checks from cfg.
func Default(cfg Config) []Filter {
	cfg = cfg.WithDefaults()
	steps := []Filter{
		NewMinLength(cfg.MinChars),
		NewMinWords(cfg.MinWords),
		NewURLRatio(cfg.MaxURLRatio),
	}
	for _, name := range cfg.Disabled {
		DisableByName(steps, name, "disabled in config")
	}
	return steps
}

// DisableByName marks a filter with the provided name as disabled while keeping it in the list.
func DisableByName(steps []Filter, name, reason string) {
	for _, step := range steps {
		if step.Name() == name {
			step.Disable(reason)
		}
	}
}

// Run evaluates every enabled filter independently so that all failing
// reasons are reported together.
func Run(steps []Filter, text string) Result {
	result := Result{Steps: make([]Step, 0, len(steps))}
	for _, step := range steps {
		if !step.IsEnabled() {
			result.Steps = append(result.Steps, Step{Name: step.Name(), Skipped: true})
			continue
		}
		result.Steps = append(result.Steps, Step{Name: step.Name(), Verdict: step.Check(text)})
	}
	return result
}

// LooksLikeResume applies the default checks to text.
func LooksLikeResume(text string) bool {
	return Run(Default(DefaultConfig()), text).Passed()
}

// LogResult writes one entry per step.
func LogResult(logger *zap.Logger, r Result) {
	if logger == nil {
		return
	}
	for _, step := range r.Steps {
		if step.Skipped {
			logger.Debug("filter disabled", zap.String("name", step.Name))
			continue
		}
		logger.Debug("filter step",
			zap.String("name", step.Name),
			zap.Bool("passed", step.Verdict.Passed),
			zap.Float64("measured", step.Verdict.Measured),
			zap.Float64("limit", step.Verdict.Limit),
		)
	}
	if !r.Passed() {
		logger.Info("text rejected by heuristics", zap.String("reasons", strings.Join(r.Reasons(), "; ")))
	}
}

// Describe returns status entries for the provided filters.
func Describe(steps []Filter) []Status {
	statuses := make([]Status, 0, len(steps))
	for _, step := range steps {
		if reporter, ok := step.(statusProvider); ok {
			statuses = append(statuses, reporter.Status())
			continue
		}

		statuses = append(statuses, Status{
			Name:    step.Name(),
			Enabled: step.IsEnabled(),
		})
	}
	return statuses
}
