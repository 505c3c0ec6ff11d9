// Package review delivers evaluation summaries to the internal review channel.
// Delivery is best effort and never affects what the candidate is told.
package review

import (
	"fmt"
	"strings"

	"github.com/spigell/cv-screener/internal/ai"
	"github.com/spigell/cv-screener/internal/evaluation"
	"github.com/spigell/cv-screener/internal/vacancy"
)

const emptyField = "—"

// Summary is what reviewers receive for every persisted evaluation.
type Summary struct {
	Ref                string   `json:"ref"`
	VacancyID          string   `json:"vacancy_id"`
	VacancyTitle       string   `json:"vacancy_title"`
	Hashtag            string   `json:"hashtag"`
	SubmitterID        string   `json:"submitter_id"`
	Rating             int      `json:"rating"`
	Tag                string   `json:"tag"`
	Accepted           bool     `json:"accepted"`
	Strengths          string   `json:"strengths"`
	Weaknesses         string   `json:"weaknesses"`
	MatchedExperience  string   `json:"matched_experience"`
	MissingExperience  string   `json:"missing_experience"`
	FillerLanguage     string   `json:"filler_language_assessment"`
	Inconsistencies    string   `json:"inconsistencies"`
	InterviewQuestions []string `json:"interview_questions"`
	SourceFileRef      string   `json:"source_file_ref,omitempty"`
	Text               string   `json:"text"`
}

// NewSummary builds the reviewer summary of a persisted record.
func NewSummary(record evaluation.Record, decision evaluation.Decision, v vacancy.Descriptor) Summary {
	questions := append([]string(nil), record.InterviewQuestions...)
	for len(questions) < ai.MinQuestions {
		questions = append(questions, ai.QuestionPlaceholder)
	}

	s := Summary{
		Ref:                record.ID,
		VacancyID:          record.VacancyID,
		VacancyTitle:       record.VacancyTitle,
		Hashtag:            v.Hashtag(),
		SubmitterID:        record.SubmitterID,
		Rating:             record.Rating,
		Tag:                string(record.Tag),
		Accepted:           decision.Accept,
		Strengths:          orDash(record.Strengths),
		Weaknesses:         orDash(record.Weaknesses),
		MatchedExperience:  orDash(record.MatchedExperience),
		MissingExperience:  evaluation.HumanizeMissing(record.MissingExperience),
		FillerLanguage:     orDash(record.FillerLanguageAssessment),
		Inconsistencies:    orDash(record.Inconsistencies),
		InterviewQuestions: questions[:ai.MinQuestions],
		SourceFileRef:      record.SourceFileRef,
	}
	s.Text = s.render()
	return s
}

func (s Summary) render() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", s.Hashtag)
	fmt.Fprintf(&b, "Candidate fits %d%% (%s)\n\n", s.Rating, s.Tag)
	fmt.Fprintf(&b, "Strengths: %s\n", s.Strengths)
	fmt.Fprintf(&b, "Weaknesses: %s\n", s.Weaknesses)
	fmt.Fprintf(&b, "Relevant experience: %s\n", s.MatchedExperience)
	fmt.Fprintf(&b, "Missing experience: %s\n", s.MissingExperience)
	fmt.Fprintf(&b, "Filler: %s\n", s.FillerLanguage)
	fmt.Fprintf(&b, "Inconsistencies: %s\n\n", s.Inconsistencies)
	b.WriteString("Interview questions:\n")
	for _, q := range s.InterviewQuestions {
		fmt.Fprintf(&b, "• %s\n", q)
	}
	fmt.Fprintf(&b, "\nCandidate: %s", orDash(s.SubmitterID))
	if s.SourceFileRef != "" {
		fmt.Fprintf(&b, "\nFile: %s", s.SourceFileRef)
	}
	return b.String()
}

func orDash(s string) string {
	if s = strings.TrimSpace(s); s == "" {
		return emptyField
	}
	return s
}
