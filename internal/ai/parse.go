package ai

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"

	"github.com/mitchellh/mapstructure"

	"github.com/spigell/cv-screener/internal/utils"
)

const parsePrefixLength = 200

// ParseError is returned when no JSON object can be decoded from the response.
type ParseError struct {
	// Prefix is the beginning of the raw response, for diagnostics only.
	Prefix string
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse model response: %v (response starts with %q)", e.Err, e.Prefix)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ValidationError is returned when the decoded object violates the field contract.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// rawAssessment mirrors the response schema before validation.
type rawAssessment struct {
	Rating                   any    `mapstructure:"rating"`
	Strengths                string `mapstructure:"strengths"`
	Weaknesses               string `mapstructure:"weaknesses"`
	MatchedExperience        string `mapstructure:"matched_experience"`
	MissingExperience        string `mapstructure:"missing_experience"`
	FillerLanguageAssessment string `mapstructure:"filler_language_assessment"`
	Inconsistencies          string `mapstructure:"inconsistencies"`
	InterviewQuestions       any    `mapstructure:"interview_questions"`
	InterviewTips            string `mapstructure:"interview_tips"`
}

// Older prompt revisions used these names; they are folded into the canonical
// ones when the canonical key is absent.
var fieldAliases = map[string][]string{
	"strengths":                  {"strong"},
	"weaknesses":                 {"weak"},
	"filler_language_assessment": {"water"},
	"inconsistencies":            {"mismatches", "suspicious"},
}

// ParseResponse decodes and validates a raw model answer.
func ParseResponse(raw string, tipsLimit int) (*Assessment, error) {
	obj, err := decodeObject(raw)
	if err != nil {
		return nil, err
	}

	applyAliases(obj)

	var r rawAssessment
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       joinListHook,
		WeaklyTypedInput: true,
		Result:           &r,
	})
	if err != nil {
		return nil, fmt.Errorf("build decoder: %w", err)
	}
	if err := dec.Decode(obj); err != nil {
		return nil, &ValidationError{Field: "response", Reason: err.Error()}
	}

	return r.validate(tipsLimit)
}

func decodeObject(raw string) (map[string]any, error) {
	cleaned := stripFences(raw)

	var obj map[string]any
	directErr := json.Unmarshal([]byte(cleaned), &obj)
	if directErr == nil && obj != nil {
		return obj, nil
	}

	if span, ok := firstBalancedObject(raw); ok {
		obj = nil
		if err := json.Unmarshal([]byte(span), &obj); err == nil && obj != nil {
			return obj, nil
		}
	}

	if directErr == nil {
		directErr = errors.New("response is not a JSON object")
	}
	return nil, &ParseError{Prefix: utils.Truncate(raw, parsePrefixLength), Err: directErr}
}

func stripFences(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		raw = strings.TrimPrefix(raw, "```json")
		raw = strings.TrimPrefix(raw, "```")
		raw = strings.TrimSpace(raw)
		if idx := strings.LastIndex(raw, "```"); idx != -1 {
			raw = raw[:idx]
		}
	}
	return strings.TrimSpace(raw)
}

// firstBalancedObject returns the first {...} span whose braces balance,
// ignoring braces inside string literals.
func firstBalancedObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	for start != -1 {
		depth := 0
		inString := false
		escaped := false
		for i := start; i < len(s); i++ {
			c := s[i]
			if inString {
				switch {
				case escaped:
					escaped = false
				case c == '\\':
					escaped = true
				case c == '"':
					inString = false
				}
				continue
			}
			switch c {
			case '"':
				inString = true
			case '{':
				depth++
			case '}':
				depth--
				if depth == 0 {
					return s[start : i+1], true
				}
			}
		}

		next := strings.IndexByte(s[start+1:], '{')
		if next == -1 {
			break
		}
		start += next + 1
	}
	return "", false
}

func applyAliases(obj map[string]any) {
	for canonical, aliases := range fieldAliases {
		if v, ok := obj[canonical]; ok && v != nil {
			continue
		}
		for _, alias := range aliases {
			if v, ok := obj[alias]; ok && v != nil {
				obj[canonical] = v
				break
			}
		}
	}
}

// joinListHook lets the model answer a text field with a list.
func joinListHook(from reflect.Type, to reflect.Type, data any) (any, error) {
	if to.Kind() != reflect.String || from.Kind() != reflect.Slice {
		return data, nil
	}
	items, ok := data.([]any)
	if !ok {
		return data, nil
	}
	parts := make([]string, 0, len(items))
	for _, item := range items {
		if s := strings.TrimSpace(fmt.Sprint(item)); s != "" && item != nil {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "; "), nil
}

func (r rawAssessment) validate(tipsLimit int) (*Assessment, error) {
	rating, err := coerceRating(r.Rating)
	if err != nil {
		return nil, err
	}

	questions, err := coerceQuestions(r.InterviewQuestions)
	if err != nil {
		return nil, err
	}

	tips := strings.TrimSpace(r.InterviewTips)
	if tipsLimit > 0 {
		tips = utils.Truncate(tips, tipsLimit)
	}

	return &Assessment{
		Rating:                   rating,
		Strengths:                strings.TrimSpace(r.Strengths),
		Weaknesses:               strings.TrimSpace(r.Weaknesses),
		MatchedExperience:        strings.TrimSpace(r.MatchedExperience),
		MissingExperience:        strings.TrimSpace(r.MissingExperience),
		FillerLanguageAssessment: strings.TrimSpace(r.FillerLanguageAssessment),
		Inconsistencies:          strings.TrimSpace(r.Inconsistencies),
		InterviewQuestions:       questions,
		InterviewTips:            tips,
	}, nil
}

func coerceRating(v any) (int, error) {
	var f float64
	switch val := v.(type) {
	case nil:
		return 0, &ValidationError{Field: "rating", Reason: "missing"}
	case float64:
		f = val
	case int:
		f = float64(val)
	case string:
		trimmed := strings.TrimSuffix(strings.TrimSpace(val), "%")
		parsed, err := strconv.ParseFloat(strings.TrimSpace(trimmed), 64)
		if err != nil {
			return 0, &ValidationError{Field: "rating", Reason: fmt.Sprintf("%q is not a number", val)}
		}
		f = parsed
	default:
		return 0, &ValidationError{Field: "rating", Reason: fmt.Sprintf("unexpected type %T", v)}
	}

	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, &ValidationError{Field: "rating", Reason: "not a finite number"}
	}
	if f < 0 || f > 100 {
		return 0, &ValidationError{Field: "rating", Reason: fmt.Sprintf("%v outside 0..100", f)}
	}

	return int(math.Floor(f + 0.5)), nil
}

func coerceQuestions(v any) ([]string, error) {
	var items []any
	switch val := v.(type) {
	case nil:
	case []any:
		items = val
	case string:
		items = []any{val}
	default:
		return nil, &ValidationError{Field: "interview_questions", Reason: fmt.Sprintf("expected a list, got %T", v)}
	}

	questions := make([]string, 0, MinQuestions)
	for _, item := range items {
		switch q := item.(type) {
		case nil:
		case string:
			if q = strings.TrimSpace(q); q != "" {
				questions = append(questions, q)
			}
		case float64, bool:
			questions = append(questions, fmt.Sprint(q))
		default:
			return nil, &ValidationError{Field: "interview_questions", Reason: fmt.Sprintf("element of type %T", item)}
		}
	}

	for len(questions) < MinQuestions {
		questions = append(questions, QuestionPlaceholder)
	}
	return questions, nil
}
