package filtering

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

// toggle carries the enable/disable state shared by every filter.
type toggle struct {
	disabled bool
	reason   string
}

func (t *toggle) Disable(reason string) {
	t.disabled = true
	t.reason = reason
}

func (t *toggle) IsEnabled() bool { return !t.disabled }

type minLengthFilter struct {
	toggle
	min int
}

// NewMinLength creates a filter that rejects texts shorter than min characters.
func NewMinLength(min int) Filter {
	return &minLengthFilter{min: min}
}

func (f *minLengthFilter) Name() string { return "min_length" }

func (f *minLengthFilter) Check(text string) Verdict {
	n := utf8.RuneCountInString(text)
	v := Verdict{Passed: n >= f.min, Measured: float64(n), Limit: float64(f.min)}
	if !v.Passed {
		v.Reason = fmt.Sprintf("text has %d characters, need at least %d", n, f.min)
	}
	return v
}

func (f *minLengthFilter) Status() Status {
	return Status{
		Name:    f.Name(),
		Enabled: f.IsEnabled(),
		Reason:  f.reason,
		Details: map[string]string{"min_chars": strconv.Itoa(f.min)},
	}
}

type minWordsFilter struct {
	toggle
	min int
}

// NewMinWords creates a filter that rejects texts with fewer than min whitespace separated words.
func NewMinWords(min int) Filter {
	return &minWordsFilter{min: min}
}

func (f *minWordsFilter) Name() string { return "min_words" }

func (f *minWordsFilter) Check(text string) Verdict {
	n := len(strings.Fields(text))
	v := Verdict{Passed: n >= f.min, Measured: float64(n), Limit: float64(f.min)}
	if !v.Passed {
		v.Reason = fmt.Sprintf("text has %d words, need at least %d", n, f.min)
	}
	return v
}

func (f *minWordsFilter) Status() Status {
	return Status{
		Name:    f.Name(),
		Enabled: f.IsEnabled(),
		Reason:  f.reason,
		Details: map[string]string{"min_words": strconv.Itoa(f.min)},
	}
}

var urlToken = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9+.-]*://`)

type urlRatioFilter struct {
	toggle
	max float64
}

// NewURLRatio creates a filter that rejects texts where the share of URL
// tokens exceeds max.
func NewURLRatio(max float64) Filter {
	return &urlRatioFilter{max: max}
}

func (f *urlRatioFilter) Name() string { return "url_ratio" }

func (f *urlRatioFilter) Check(text string) Verdict {
	words := strings.Fields(text)
	if len(words) == 0 {
		return Verdict{Passed: true, Limit: f.max}
	}

	urls := 0
	for _, w := range words {
		if urlToken.MatchString(w) {
			urls++
		}
	}

	ratio := float64(urls) / float64(len(words))
	v := Verdict{Passed: ratio <= f.max, Measured: ratio, Limit: f.max}
	if !v.Passed {
		v.Reason = fmt.Sprintf("%.0f%% of tokens are links, allowed at most %.0f%%", ratio*100, f.max*100)
	}
	return v
}

func (f *urlRatioFilter) Status() Status {
	return Status{
		Name:    f.Name(),
		Enabled: f.IsEnabled(),
		Reason:  f.reason,
		Details: map[string]string{"max_url_ratio": strconv.FormatFloat(f.max, 'f', 2, 64)},
	}
}
