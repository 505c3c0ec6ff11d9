package headhunter

import (
	"fmt"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
)

type Vacancy struct {
	ID       string `json:"id,omitempty"`
	Name     string `json:"name,omitempty"`
	Employer struct {
		ID   string `json:"id,omitempty"`
		Name string `json:"name,omitempty"`
	} `json:"employer,omitempty"`
	Experience struct {
		ID   string `json:"id,omitempty"`
		Name string `json:"name,omitempty"`
	} `json:"experience,omitempty"`
	AlternateURL string `json:"alternate_url,omitempty"`
	// Description is HTML.
	Description string `json:"description,omitempty"`
	KeySkills   []struct {
		Name string `json:"name,omitempty"`
	} `json:"key_skills,omitempty"`
	Archived bool `json:"archived,omitempty"`
}

// Skills returns the key skill names.
func (v *Vacancy) Skills() []string {
	skills := make([]string, 0, len(v.KeySkills))
	for _, s := range v.KeySkills {
		if name := strings.TrimSpace(s.Name); name != "" {
			skills = append(skills, name)
		}
	}
	return skills
}

// PlainDescription renders the HTML description as markdown and appends
// the experience requirement and key skills.
func (v *Vacancy) PlainDescription() (string, error) {
	md, err := htmltomarkdown.ConvertString(v.Description)
	if err != nil {
		return "", fmt.Errorf("convert description of vacancy %s: %w", v.ID, err)
	}

	parts := []string{strings.TrimSpace(md)}
	if exp := strings.TrimSpace(v.Experience.Name); exp != "" {
		parts = append(parts, "Experience: "+exp)
	}
	if skills := v.Skills(); len(skills) > 0 {
		parts = append(parts, "Key skills: "+strings.Join(skills, ", "))
	}
	if v.AlternateURL != "" {
		parts = append(parts, "Source: "+v.AlternateURL)
	}

	var out []string
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, "\n\n"), nil
}
