package parsemux

import (
	"fmt"
	"sort"
	"strings"

	"github.com/goccy/go-json"
)

// Placeholder tokens recognized in prompt templates. A custom template
// containing neither PlaceholderText nor PlaceholderSchema is treated as a
// fully custom instruction: the input text is appended verbatim after a
// separator and no JSON scaffolding is added.
const (
	PlaceholderText   = "{{text}}"
	PlaceholderSchema = "{{schema}}"
	PlaceholderFields = "{{fields}}"
)

// DefaultTemplate is the built-in prompt template.
const DefaultTemplate = `Extract structured information from the text below.

Text:
` + PlaceholderText + `

Return a JSON object following this schema:
` + PlaceholderSchema + ``

// IsFullyCustomTemplate reports whether a template carries its own complete
// instructions instead of being a variant of the structured template.
func IsFullyCustomTemplate(template string) bool {
	return template != "" &&
		!strings.Contains(template, PlaceholderText) &&
		!strings.Contains(template, PlaceholderSchema)
}

// BuildIntegratedPrompt assembles the prompt for one parse call. For
// templated prompts the placeholders are substituted and a constraint block
// naming exactly the allowed fields is appended; partial output is
// permitted.
func BuildIntegratedPrompt(text string, fields []string, template string) string {
	if IsFullyCustomTemplate(template) {
		return template + "\n\n---\n\n" + text
	}
	if template == "" {
		template = DefaultTemplate
	}

	prompt := strings.ReplaceAll(template, PlaceholderText, text)
	prompt = strings.ReplaceAll(prompt, PlaceholderSchema, fieldSchemaJSON(fields))
	prompt = strings.ReplaceAll(prompt, PlaceholderFields, strings.Join(fields, ", "))

	return prompt + fmt.Sprintf(
		"\n\nRespond with valid JSON only. Use only these fields: %s. Fields you cannot fill may be omitted or left empty.",
		strings.Join(fields, ", "),
	)
}

// fieldSchemaJSON renders the field list as a JSON object whose values are
// per-field hints, preserving the caller's field order.
func fieldSchemaJSON(fields []string) string {
	var b strings.Builder
	b.WriteString("{\n")
	for i, f := range fields {
		fmt.Fprintf(&b, "  %q: %q", f, fieldHint(f))
		if i < len(fields)-1 {
			b.WriteString(",")
		}
		b.WriteString("\n")
	}
	b.WriteString("}")
	return b.String()
}

// fieldHint derives a human hint from keywords in the field name.
func fieldHint(name string) string {
	lower := strings.ToLower(name)
	switch {
	case strings.Contains(lower, "meaning"), strings.Contains(lower, "definition"):
		return "the meaning or definition, concise"
	case strings.Contains(lower, "reading"), strings.Contains(lower, "pronunciation"):
		return "the reading or pronunciation"
	case strings.Contains(lower, "example"), strings.Contains(lower, "sentence"):
		return "an example sentence using the term"
	case strings.Contains(lower, "translation"):
		return "the translation"
	case strings.Contains(lower, "word"), strings.Contains(lower, "term"),
		strings.Contains(lower, "expression"), strings.Contains(lower, "front"):
		return "the term itself, exactly as it appears in the text"
	default:
		return fmt.Sprintf("the value for %s", name)
	}
}

// ValidationResult reports how AI output measured up against an expected
// field schema. A JSON parse failure is reported here, not raised.
type ValidationResult struct {
	IsValid       bool
	HasContent    bool
	InvalidFields []string
	Fields        map[string]string
	ParseErr      string
}

// ValidateOutput parses raw as JSON and validates it against the expected
// field list: every returned key must be in expectedFields, and HasContent
// is true when at least one allowed field has a non-empty trimmed value.
func ValidateOutput(raw string, expectedFields []string) *ValidationResult {
	var obj map[string]any
	if err := json.Unmarshal([]byte(stripCodeFence(strings.TrimSpace(raw))), &obj); err != nil {
		return &ValidationResult{ParseErr: err.Error()}
	}
	return ValidateFields(obj, expectedFields)
}

// ValidateFields validates an already-parsed object.
func ValidateFields(obj map[string]any, expectedFields []string) *ValidationResult {
	allowed := make(map[string]bool, len(expectedFields))
	for _, f := range expectedFields {
		allowed[f] = true
	}

	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	res := &ValidationResult{IsValid: true, Fields: make(map[string]string)}
	for _, k := range keys {
		if !allowed[k] {
			res.IsValid = false
			res.InvalidFields = append(res.InvalidFields, k)
			continue
		}
		value := stringifyFieldValue(obj[k])
		res.Fields[k] = value
		if strings.TrimSpace(value) != "" {
			res.HasContent = true
		}
	}
	return res
}

func stringifyFieldValue(v any) string {
	switch value := v.(type) {
	case nil:
		return ""
	case string:
		return value
	default:
		raw, err := json.Marshal(value)
		if err != nil {
			return fmt.Sprint(value)
		}
		return string(raw)
	}
}

// stripCodeFence removes one wrapping Markdown code fence, if present.
func stripCodeFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	idx := strings.IndexByte(s, '\n')
	if idx < 0 {
		return s
	}
	inner := s[idx+1:]
	inner = strings.TrimRight(inner, " \t\n")
	inner = strings.TrimSuffix(inner, "```")
	return strings.TrimSpace(inner)
}
