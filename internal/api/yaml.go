package api

import (
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tuncerburak97/tekrar/internal/model"
)

// yamlRecord is the human-oriented export shape: raw chunks are shown as
// text rather than base64.
type yamlRecord struct {
	RequestID string         `yaml:"request_id,omitempty"`
	Method    string         `yaml:"method"`
	URL       string         `yaml:"url"`
	Timestamp string         `yaml:"timestamp"`
	Headers   []model.Header `yaml:"headers,omitempty"`
	Form      *yaml.Node     `yaml:"form,omitempty"`
	Raw       []string       `yaml:"raw,omitempty"`
}

// EncodeYAML renders records as a YAML sequence.
func EncodeYAML(records []model.RecordedRequest) ([]byte, error) {
	out := make([]yamlRecord, len(records))
	for i, r := range records {
		out[i] = yamlRecord{
			RequestID: r.RequestID,
			Method:    r.Method,
			URL:       r.URL,
			Timestamp: r.Timestamp.UTC().Format(time.RFC3339Nano),
			Headers:   r.Headers,
		}
		if r.Body != nil {
			out[i].Form = formNode(r.Body.FormFields)
			for _, chunk := range r.Body.RawChunks {
				out[i].Raw = append(out[i].Raw, strings.ToValidUTF8(string(chunk), "\uFFFD"))
			}
		}
	}
	return yaml.Marshal(out)
}

// formNode renders form fields as a mapping in capture order.
func formNode(form model.FormData) *yaml.Node {
	if len(form) == 0 {
		return nil
	}
	node := &yaml.Node{Kind: yaml.MappingNode}
	for _, field := range form {
		values := &yaml.Node{Kind: yaml.SequenceNode}
		for _, v := range field.Values {
			values.Content = append(values.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: v})
		}
		node.Content = append(node.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: field.Name}, values)
	}
	return node
}
