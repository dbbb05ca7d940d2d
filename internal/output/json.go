package output

import (
	"bytes"
	"encoding/json"
	"io"

	"github.com/yairfalse/ilmarinen/pkg/types"
	"gopkg.in/yaml.v3"
)

// JSONFormatter handles JSON output formatting
type JSONFormatter struct{}

func (f *JSONFormatter) FormatOutcome(w io.Writer, outcome types.ReconciliationOutcome) error {
	return writeJSON(w, outcome)
}

func (f *JSONFormatter) FormatCheck(w io.Writer, report *CheckReport) error {
	return writeJSON(w, report)
}

func (f *JSONFormatter) FormatAttempts(w io.Writer, report *AttemptsReport) error {
	return writeJSON(w, report)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// YAMLFormatter handles YAML output formatting. Keys follow the JSON field names.
type YAMLFormatter struct{}

func (f *YAMLFormatter) FormatOutcome(w io.Writer, outcome types.ReconciliationOutcome) error {
	return writeYAML(w, outcome)
}

func (f *YAMLFormatter) FormatCheck(w io.Writer, report *CheckReport) error {
	return writeYAML(w, report)
}

func (f *YAMLFormatter) FormatAttempts(w io.Writer, report *AttemptsReport) error {
	return writeYAML(w, report)
}

// writeYAML goes through JSON so field names and omitempty match the JSON output
func writeYAML(w io.Writer, v any) error {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		return err
	}

	var node yaml.Node
	if err := yaml.Unmarshal(buf.Bytes(), &node); err != nil {
		return err
	}
	blockStyle(&node)

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(&node); err != nil {
		return err
	}
	return enc.Close()
}

// blockStyle drops the flow and quoting styles inherited from the JSON source
func blockStyle(n *yaml.Node) {
	n.Style = 0
	for _, c := range n.Content {
		blockStyle(c)
	}
}
