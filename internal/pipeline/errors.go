package pipeline

import (
	"errors"
	"fmt"
)

// Kind classifies why a submission failed.
type Kind string

const (
	KindUnsupportedFormat  Kind = "unsupported_format"
	KindExtraction         Kind = "extraction_failure"
	KindInvalidResume      Kind = "invalid_resume"
	KindScoringUnavailable Kind = "scoring_unavailable"
	KindScoringParse       Kind = "scoring_parse"
	KindScoringValidation  Kind = "scoring_validation"
	KindPersistence        Kind = "persistence_failure"
	KindCancelled          Kind = "cancelled"
	KindInternal           Kind = "internal"
)

var safeMessages = map[Kind]string{
	KindUnsupportedFormat:  "Only PDF, DOC/DOCX or TXT files are supported.",
	KindExtraction:         "We could not read this file. Please check it is not damaged or upload it in another format.",
	KindInvalidResume:      "This file does not look like a résumé. Please send a document that describes your experience and skills.",
	KindScoringUnavailable: "The evaluation service is temporarily unavailable. Please send your résumé again in a few minutes.",
	KindScoringParse:       "Processing failed. Please try again later.",
	KindScoringValidation:  "Processing failed. Please try again later.",
	KindPersistence:        "We could not register your application. Please try again later.",
	KindCancelled:          "The submission was cancelled.",
	KindInternal:           "Something went wrong. Please try again later.",
}

// Transient reports whether resubmitting the same file may succeed.
func (k Kind) Transient() bool {
	switch k {
	case KindScoringUnavailable, KindPersistence, KindInternal:
		return true
	}
	return false
}

// Failure is the only error type Submit returns. Error() is meant for
// operators, SafeMessage() for candidates.
type Failure struct {
	Kind    Kind
	Stage   Stage
	Reasons []string
	Err     error
}

func (f *Failure) Error() string {
	if f.Err == nil {
		return fmt.Sprintf("%s at %s", f.Kind, f.Stage)
	}
	return fmt.Sprintf("%s at %s: %v", f.Kind, f.Stage, f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }

// SafeMessage is a user-facing text without internal details.
func (f *Failure) SafeMessage() string {
	if msg, ok := safeMessages[f.Kind]; ok {
		return msg
	}
	return safeMessages[KindInternal]
}

// AsFailure extracts a Failure from err. Errors of any other type are
// reported as internal failures.
func AsFailure(err error) *Failure {
	if err == nil {
		return nil
	}
	var f *Failure
	if errors.As(err, &f) {
		return f
	}
	return &Failure{Kind: KindInternal, Stage: StageFailed, Err: err}
}

func fail(kind Kind, stage Stage, err error) *Failure {
	return &Failure{Kind: kind, Stage: stage, Err: err}
}
