// Package ai scores a résumé against a vacancy with a language model.
package ai

import (
	"context"
	"errors"
)

// ErrUnavailable marks transport level failures of the model provider:
// timeouts, non-2xx responses, authentication and quota errors. Only errors
// wrapping it are retried.
var ErrUnavailable = errors.New("scoring provider unavailable")

// Generator sends a prompt to a model and returns its raw text answer.
type Generator interface {
	GenerateContent(ctx context.Context, prompt string) (string, error)
	Model() string
	Provider() string
}

// QuestionPlaceholder pads interview_questions up to MinQuestions.
const QuestionPlaceholder = "—"

// MinQuestions is the number of interview questions every assessment carries.
const MinQuestions = 3

// Assessment is the validated model output.
type Assessment struct {
	Rating                   int
	Strengths                string
	Weaknesses               string
	MatchedExperience        string
	MissingExperience        string
	FillerLanguageAssessment string
	Inconsistencies          string
	InterviewQuestions       []string
	InterviewTips            string

	Model    string
	Attempts int
	Raw      string
}
