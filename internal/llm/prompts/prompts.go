package prompts

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"regexp"
	"strconv"
	"strings"
	"text/template"
	"unicode/utf8"
)

//go:embed templates/*.txt
var templateFS embed.FS

var (
	studentAnswerRegex      = regexp.MustCompile(`(?i)</?\s*student-answer\b[^>]*>`)
	systemInstructionsRegex = regexp.MustCompile(`(?i)</?\s*system-instructions\b[^>]*>`)
)

const (
	maxAnswerRunes = 10000
	defaultSubject = "General"
)

// PromptVariant represents a grading prompt variant.
type PromptVariant string

const (
	// PromptStrict is a strict grading variant for majors.
	PromptStrict PromptVariant = "strict"
	// PromptStandard is the default grading variant.
	PromptStandard PromptVariant = "standard"
	// PromptLenient is a lenient grading variant for electives.
	PromptLenient PromptVariant = "lenient"
)

var validVariants = map[PromptVariant]bool{
	PromptStrict:   true,
	PromptStandard: true,
	PromptLenient:  true,
}

// IsValidVariant checks if a prompt variant name is valid.
func IsValidVariant(v string) bool {
	return validVariants[PromptVariant(v)]
}

// Prompt is the provider-agnostic request payload sent to a grading backend.
type Prompt struct {
	System string
	User   string
}

// Input holds everything needed to render a grading prompt for one answer.
type Input struct {
	Subject         string
	Question        string
	MaxMarks        float64
	ReferenceAnswer string
	CandidateAnswer string
	Rubric          string
}

type templateData struct {
	Subject         string
	Question        string
	MaxMarks        string
	ReferenceAnswer string
	Answer          string
	Rubric          string
}

// Builder renders grading prompts for a fixed variant.
type Builder struct {
	variant PromptVariant
	system  *template.Template
	user    *template.Template
}

// New parses the embedded templates for the given variant.
func New(variant PromptVariant) (*Builder, error) {
	return NewFromFS(templateFS, variant)
}

// NewFromFS parses templates named templates/system_<variant>.txt and
// templates/user.txt from fsys.
func NewFromFS(fsys fs.FS, variant PromptVariant) (*Builder, error) {
	if !validVariants[variant] {
		return nil, errors.New("invalid prompt variant: " + string(variant))
	}

	systemFile := "templates/system_" + string(variant) + ".txt"
	system, err := parseTemplate(fsys, systemFile)
	if err != nil {
		return nil, err
	}
	user, err := parseTemplate(fsys, "templates/user.txt")
	if err != nil {
		return nil, err
	}

	return &Builder{variant: variant, system: system, user: user}, nil
}

func parseTemplate(fsys fs.FS, name string) (*template.Template, error) {
	content, err := fs.ReadFile(fsys, name)
	if err != nil {
		return nil, fmt.Errorf("read prompt file %s: %w", name, err)
	}
	tmpl, err := template.New(name).Parse(string(content))
	if err != nil {
		return nil, fmt.Errorf("parse prompt template %s: %w", name, err)
	}
	return tmpl, nil
}

// Variant returns the builder's prompt variant.
func (b *Builder) Variant() PromptVariant {
	return b.variant
}

// Build renders the system and user prompts for one answer.
func (b *Builder) Build(in Input) (Prompt, error) {
	subject := strings.TrimSpace(in.Subject)
	if subject == "" {
		subject = defaultSubject
	}

	data := templateData{
		Subject:         subject,
		Question:        in.Question,
		MaxMarks:        FormatMarks(in.MaxMarks),
		ReferenceAnswer: in.ReferenceAnswer,
		Answer:          sanitizeAnswer(in.CandidateAnswer),
		Rubric:          strings.TrimSpace(in.Rubric),
	}

	var sys, usr bytes.Buffer
	if err := b.system.Execute(&sys, data); err != nil {
		return Prompt{}, fmt.Errorf("render system prompt: %w", err)
	}
	if err := b.user.Execute(&usr, data); err != nil {
		return Prompt{}, fmt.Errorf("render user prompt: %w", err)
	}

	return Prompt{System: sys.String(), User: usr.String()}, nil
}

// FormatMarks renders marks without a trailing ".0" for whole numbers.
func FormatMarks(m float64) string {
	return strconv.FormatFloat(m, 'f', -1, 64)
}

func sanitizeAnswer(answer string) string {
	answer = studentAnswerRegex.ReplaceAllString(answer, "")
	answer = systemInstructionsRegex.ReplaceAllString(answer, "")
	answer = strings.TrimSpace(answer)

	if answer == "" {
		return "[No answer provided]"
	}

	if utf8.RuneCountInString(answer) > maxAnswerRunes {
		runes := []rune(answer)
		runes = runes[:maxAnswerRunes]
		answer = string(runes) + "\n\n[Answer truncated due to length]"
	}

	return answer
}
