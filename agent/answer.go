package agent

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/invopop/jsonschema"
	"github.com/tidwall/gjson"

	"github.com/akolk/loki-nexus2/provider"
)

// CodeAnswer is the structured reply of a code turn.
type CodeAnswer struct {
	Code       string   `json:"code" jsonschema_description:"Starlark code that assigns the outcome dict to a variable named result"`
	Disclaimer *string  `json:"disclaimer" jsonschema:"nullable" jsonschema_description:"Caveats about the analysis, in the user's communication style"`
	Followup   []string `json:"followup" jsonschema_description:"Suggested follow-up questions"`
}

// DisclaimerText returns the disclaimer or "None" when the model sent null.
func (a CodeAnswer) DisclaimerText() string {
	if a.Disclaimer == nil {
		return "None"
	}
	return *a.Disclaimer
}

// ReportAnswer is the structured reply of a research turn.
type ReportAnswer struct {
	Summary    string `json:"summary" jsonschema_description:"Short summary of the findings"`
	ReportPath string `json:"report_path" jsonschema_description:"Workspace path the report was written to"`
}

var (
	codeRequired   = []string{"code", "disclaimer", "followup"}
	reportRequired = []string{"summary", "report_path"}
)

// schemaFor renders the JSON schema of v for the system prompt.
func schemaFor(v any) string {
	r := &jsonschema.Reflector{DoNotReference: true, ExpandedStruct: true}
	b, err := json.MarshalIndent(r.Reflect(v), "", "  ")
	if err != nil {
		return "{}"
	}
	return string(b)
}

// extractJSON pulls the answer object out of the model's final text,
// tolerating code fences and surrounding prose.
func extractJSON(text string) string {
	s := strings.TrimSpace(provider.StripCodeFence(text))
	if gjson.Valid(s) {
		return s
	}
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start >= 0 && end > start && gjson.Valid(s[start:end+1]) {
		return s[start : end+1]
	}
	return s
}

// parseAnswer decodes text into out after checking every required key is
// present. A present key may still be null.
func parseAnswer(text string, required []string, out any) error {
	raw := extractJSON(text)
	if !gjson.Valid(raw) || !gjson.Parse(raw).IsObject() {
		return fmt.Errorf("%w: final reply is not a JSON object", ErrSchema)
	}
	var missing []string
	for _, key := range required {
		if !gjson.Get(raw, key).Exists() {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrSchema, strings.Join(missing, ", "))
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return fmt.Errorf("%w: %v", ErrSchema, err)
	}
	return nil
}
