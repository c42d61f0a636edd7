package proxy

import (
	"net/http"
	"strings"

	"github.com/tuncerburak97/tekrar/internal/model"
)

// RequestIDHeader carries the capture id to the upstream and back.
const RequestIDHeader = "X-Request-ID"

// hopHeaders are connection-scoped and never forwarded or recorded.
var hopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Proxy-Connection",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// HeaderPolicy decides which headers cross the proxy in each direction.
type HeaderPolicy struct {
	// drop holds lower-cased names removed from outgoing requests.
	drop map[string]struct{}
}

func NewHeaderPolicy() *HeaderPolicy {
	p := &HeaderPolicy{drop: make(map[string]struct{})}
	for _, h := range hopHeaders {
		p.drop[strings.ToLower(h)] = struct{}{}
	}
	// Set by the transport from the target URL and the body.
	p.drop["host"] = struct{}{}
	p.drop["content-length"] = struct{}{}
	return p
}

// FilterRequest returns the client headers that are forwarded and recorded,
// in the order the client sent them. Any client-supplied request id is
// dropped; the proxy's own id goes on the outgoing request only.
func (p *HeaderPolicy) FilterRequest(in []model.Header) []model.Header {
	out := make([]model.Header, 0, len(in))
	for _, h := range in {
		if _, skip := p.drop[strings.ToLower(h.Name)]; skip {
			continue
		}
		if strings.EqualFold(h.Name, RequestIDHeader) {
			continue
		}
		out = append(out, h)
	}
	return out
}

// TransformResponse strips hop-by-hop headers from an upstream response.
func (p *HeaderPolicy) TransformResponse(res *http.Response, requestID string) {
	for _, h := range hopHeaders {
		res.Header.Del(h)
	}
	res.Header.Set(RequestIDHeader, requestID)
}
