package model

import (
	"time"
)

// Resource types reported by the network-event source. The names follow the
// browser webRequest API so that bridge payloads can be forwarded as-is.
const (
	ResourceXHR        = "xmlhttprequest"
	ResourceMainFrame  = "main_frame"
	ResourceSubFrame   = "sub_frame"
	ResourceStylesheet = "stylesheet"
	ResourceScript     = "script"
	ResourceImage      = "image"
	ResourceFont       = "font"
	ResourceOther      = "other"
)

// Header is one request header as observed at send time.
type Header struct {
	Name  string `json:"name" yaml:"name" bson:"name"`
	Value string `json:"value" yaml:"value" bson:"value"`
}

// RequestBody is the body snapshot taken when a request starts. Exactly one
// of FormFields and RawChunks is set.
type RequestBody struct {
	FormFields FormData `json:"formData,omitempty" yaml:"form_data,omitempty" bson:"form_data,omitempty"`
	RawChunks  RawData  `json:"raw,omitempty" yaml:"raw,omitempty" bson:"raw,omitempty"`
}

// RecordedRequest is one observed network call.
type RecordedRequest struct {
	RequestID string       `json:"requestId,omitempty" yaml:"request_id,omitempty" bson:"request_id,omitempty"`
	URL       string       `json:"url" yaml:"url" bson:"url"`
	Method    string       `json:"method" yaml:"method" bson:"method"`
	Timestamp time.Time    `json:"timestamp" yaml:"timestamp" bson:"timestamp"`
	Body      *RequestBody `json:"body,omitempty" yaml:"body,omitempty" bson:"body,omitempty"`
	Headers   []Header     `json:"headers,omitempty" yaml:"headers,omitempty" bson:"headers,omitempty"`
}

// Clone returns a deep copy so callers can never mutate ledger state.
func (r RecordedRequest) Clone() RecordedRequest {
	out := r
	if r.Headers != nil {
		out.Headers = append([]Header(nil), r.Headers...)
	}
	if r.Body != nil {
		out.Body = r.Body.Clone()
	}
	return out
}

// Clone returns a deep copy of the body snapshot.
func (b *RequestBody) Clone() *RequestBody {
	if b == nil {
		return nil
	}
	return &RequestBody{
		FormFields: b.FormFields.Clone(),
		RawChunks:  b.RawChunks.Clone(),
	}
}

// Empty reports whether the snapshot carries neither shape.
func (b *RequestBody) Empty() bool {
	return b == nil || (len(b.FormFields) == 0 && len(b.RawChunks) == 0)
}
