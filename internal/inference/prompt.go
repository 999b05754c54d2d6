package inference

import (
	"fmt"
	"os"
	"strings"
)

// Placeholder is replaced by the captured log text in prompt templates.
const Placeholder = "{{LOG_TEXT}}"

// DefaultTemplate uses the Zephyr-style role tags TinyLlama chat models
// were trained on.
const DefaultTemplate = "<|system|>\n" +
	"You are a CLI log analysis expert. Your job is to explain errors concisely. \n" +
	"Analyze the following log output. Provide a summary of the error and a suggested fix.\n" +
	"Do NOT repeat the full log. Be brief. Use Markdown.</s>\n" +
	"<|user|>\n" +
	Placeholder + "\n" +
	"</s>\n" +
	"<|assistant|>\n"

// BuildPrompt substitutes logText into template, or into DefaultTemplate
// when template is nil. Substitution is literal and single pass, so a
// placeholder inside logText is left alone.
func BuildPrompt(logText string, template *string) string {
	tmpl := DefaultTemplate
	if template != nil {
		tmpl = *template
	}
	return strings.ReplaceAll(tmpl, Placeholder, logText)
}

// LoadTemplate reads a template file. An empty path yields nil.
func LoadTemplate(path string) (*string, error) {
	if strings.TrimSpace(path) == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read prompt template: %w", err)
	}
	tmpl := string(raw)
	return &tmpl, nil
}
