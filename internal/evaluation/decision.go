package evaluation

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"text/template"
)

// DefaultMinRating is the lowest rating that is accepted.
const DefaultMinRating = 40

// MissingPlaceholder stands in for an empty missing_experience field.
const MissingPlaceholder = "key skills"

const missingSentinel = "\x00missing-experience\x00"

// Decision is the candidate-facing outcome of an evaluation.
type Decision struct {
	Accept    bool
	Tag       Tag
	Rating    int
	Message   string
	OfferTips bool
}

const (
	defaultAccept = "Thank you! We will contact you after reviewing your résumé for {{.VacancyTitle}}."
	defaultReject = "Unfortunately your experience is not yet sufficient for {{.VacancyTitle}}: {{.Missing}} would strengthen your application."
)

// Messages holds the accept and reject templates. Templates are executed
// against MessageData.
type Messages struct {
	accept *template.Template
	reject *template.Template
}

// MessageData is what message templates can reference.
type MessageData struct {
	VacancyTitle string
	Rating       int
	Tag          Tag
	Missing      string
}

// ParseMessages validates and compiles the accept and reject templates.
func ParseMessages(accept, reject string) (Messages, error) {
	a, err := template.New("accept").Option("missingkey=error").Parse(accept)
	if err != nil {
		return Messages{}, fmt.Errorf("parse accept message: %w", err)
	}
	r, err := template.New("reject").Option("missingkey=error").Parse(reject)
	if err != nil {
		return Messages{}, fmt.Errorf("parse reject message: %w", err)
	}

	m := Messages{accept: a, reject: r}
	// Catch references to unknown fields before the first submission does.
	sample := MessageData{VacancyTitle: "sample", Missing: missingSentinel}
	if _, err := render(m.accept, sample); err != nil {
		return Messages{}, err
	}
	rejection, err := render(m.reject, sample)
	if err != nil {
		return Messages{}, err
	}
	if !strings.Contains(rejection, missingSentinel) {
		return Messages{}, errors.New("reject message must include the missing experience ({{.Missing}})")
	}
	return m, nil
}

// DefaultMessages returns the built-in candidate messages.
func DefaultMessages() Messages {
	m, err := ParseMessages(defaultAccept, defaultReject)
	if err != nil {
		panic(err)
	}
	return m
}

// Decide computes the decision for record. It has no side effects.
func Decide(record Record, threshold int, messages Messages) (Decision, error) {
	if messages.accept == nil || messages.reject == nil {
		messages = DefaultMessages()
	}

	d := Decision{
		Accept: record.Rating >= threshold,
		Tag:    record.Tag,
		Rating: record.Rating,
	}

	data := MessageData{
		VacancyTitle: record.VacancyTitle,
		Rating:       record.Rating,
		Tag:          record.Tag,
		Missing:      HumanizeMissing(record.MissingExperience),
	}

	tmpl := messages.reject
	if d.Accept {
		tmpl = messages.accept
		d.OfferTips = record.HasTips()
	}

	msg, err := render(tmpl, data)
	if err != nil {
		return Decision{}, err
	}
	d.Message = msg
	return d, nil
}

// HumanizeMissing trims trailing punctuation and substitutes a placeholder
// for an empty value.
func HumanizeMissing(s string) string {
	s = strings.TrimRight(strings.TrimSpace(s), ".;, ")
	if s == "" || s == "—" || s == "-" {
		return MissingPlaceholder
	}
	return s
}

func render(t *template.Template, data MessageData) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s message: %w", t.Name(), err)
	}
	return strings.TrimSpace(buf.String()), nil
}
