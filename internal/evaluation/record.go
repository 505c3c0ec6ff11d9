// Package evaluation holds the evaluation record, the seniority tag table and
// the accept/reject decision.
package evaluation

import (
	"strings"
	"time"
)

// Record is the structured result of scoring one résumé against one vacancy.
// Records are values: once persisted they are never modified.
type Record struct {
	ID                       string    `json:"id"`
	VacancyID                string    `json:"vacancy_id"`
	VacancyTitle             string    `json:"vacancy_title"`
	SubmitterID              string    `json:"submitter_id"`
	Rating                   int       `json:"rating"`
	Tag                      Tag       `json:"tag"`
	Strengths                string    `json:"strengths"`
	Weaknesses               string    `json:"weaknesses"`
	MatchedExperience        string    `json:"matched_experience"`
	MissingExperience        string    `json:"missing_experience"`
	FillerLanguageAssessment string    `json:"filler_language_assessment"`
	Inconsistencies          string    `json:"inconsistencies"`
	InterviewQuestions       []string  `json:"interview_questions"`
	InterviewTips            string    `json:"interview_tips"`
	Model                    string    `json:"model,omitempty"`
	CreatedAt                time.Time `json:"created_at"`
	SourceFileRef            string    `json:"source_file_ref,omitempty"`
}

// HasTips reports whether the record carries interview preparation tips.
func (r Record) HasTips() bool {
	return strings.TrimSpace(r.InterviewTips) != ""
}

// WithID returns a copy of r with the id set.
func (r Record) WithID(id string) Record {
	r.InterviewQuestions = append([]string(nil), r.InterviewQuestions...)
	r.ID = id
	return r
}
