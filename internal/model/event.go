package model

// StartEvent is the first lifecycle signal of a request.
type StartEvent struct {
	RequestID string
	URL       string
	Method    string
	Type      string
	Body      *RequestBody
}

// HeadersEvent carries the outgoing header list of a request.
type HeadersEvent struct {
	RequestID string
	Headers   []Header
}

// ConcludedEvent is fired once per request, on completion or on error.
type ConcludedEvent struct {
	RequestID string
	Error     string
}

// Failed reports whether the request concluded with an error.
func (e ConcludedEvent) Failed() bool {
	return e.Error != ""
}
