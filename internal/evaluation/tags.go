package evaluation

import (
	"errors"
	"fmt"
	"strings"
)

// Tag is a seniority label derived from the rating.
type Tag string

const (
	TagTop    Tag = "top"
	TagSenior Tag = "senior"
	TagMiddle Tag = "middle"
	TagJunior Tag = "junior"
)

// TagRule assigns Label to ratings of at least Min.
type TagRule struct {
	Min   int    `mapstructure:"min" json:"min"`
	Label string `mapstructure:"label" json:"label"`
}

// TagTable maps ratings to tags. Rules are ordered by strictly descending Min;
// ratings below every rule get Fallback.
type TagTable struct {
	Rules    []TagRule
	Fallback Tag
}

// DefaultTagTable returns top/senior/middle/junior with cut-offs 85/70/50.
func DefaultTagTable() TagTable {
	return TagTable{
		Rules: []TagRule{
			{Min: 85, Label: string(TagTop)},
			{Min: 70, Label: string(TagSenior)},
			{Min: 50, Label: string(TagMiddle)},
		},
		Fallback: TagJunior,
	}
}

// NewTagTable validates rules and builds a table.
func NewTagTable(rules []TagRule, fallback string) (TagTable, error) {
	t := TagTable{Rules: append([]TagRule(nil), rules...), Fallback: Tag(strings.TrimSpace(fallback))}
	if err := t.Validate(); err != nil {
		return TagTable{}, err
	}
	return t, nil
}

// Validate checks that the table is monotonic and unambiguous.
func (t TagTable) Validate() error {
	if t.Fallback == "" {
		return errors.New("fallback tag must not be empty")
	}

	seen := map[string]bool{string(t.Fallback): true}
	prev := 101
	for i, rule := range t.Rules {
		label := strings.TrimSpace(rule.Label)
		if label == "" {
			return fmt.Errorf("tag rule %d: label must not be empty", i)
		}
		if seen[label] {
			return fmt.Errorf("tag rule %d: duplicate label %q", i, label)
		}
		seen[label] = true

		if rule.Min < 1 || rule.Min > 100 {
			return fmt.Errorf("tag rule %q: min %d outside 1..100", label, rule.Min)
		}
		if rule.Min >= prev {
			return fmt.Errorf("tag rule %q: min %d must be lower than the previous rule (%d)", label, rule.Min, prev)
		}
		prev = rule.Min
	}

	return nil
}

// TagFor returns the tag of the first rule the rating reaches.
func (t TagTable) TagFor(rating int) Tag {
	for _, rule := range t.Rules {
		if rating >= rule.Min {
			return Tag(strings.TrimSpace(rule.Label))
		}
	}
	return t.Fallback
}

// Rank orders tags: the fallback is 0 and each rule above it adds one.
// Unknown tags rank -1.
func (t TagTable) Rank(tag Tag) int {
	if tag == t.Fallback {
		return 0
	}
	for i, rule := range t.Rules {
		if Tag(strings.TrimSpace(rule.Label)) == tag {
			return len(t.Rules) - i
		}
	}
	return -1
}
