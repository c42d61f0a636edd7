package model

import "strings"

// Cookie is a name/value pair visible for a host.
type Cookie struct {
	Name   string `json:"name" yaml:"name"`
	Value  string `json:"value" yaml:"value"`
	Domain string `json:"domain,omitempty" yaml:"domain,omitempty"`
}

// OutboundRequest is a reconstructed request ready for dispatch. Headers keep
// their recorded order; duplicate names are separate entries.
type OutboundRequest struct {
	Method  string
	URL     string
	Headers []Header
	Body    *string
}

// HeaderValues returns every value recorded under name, case-insensitively.
func (r *OutboundRequest) HeaderValues(name string) []string {
	var values []string
	for _, h := range r.Headers {
		if strings.EqualFold(h.Name, name) {
			values = append(values, h.Value)
		}
	}
	return values
}

// ReplayOutcome is the structured result of a replay attempt.
type ReplayOutcome struct {
	Success bool   `json:"success" yaml:"success"`
	Status  int    `json:"status,omitempty" yaml:"status,omitempty"`
	Error   string `json:"error,omitempty" yaml:"error,omitempty"`
	Err     error  `json:"-" yaml:"-"`
}
