package replay

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/tuncerburak97/tekrar/internal/config"
	"github.com/tuncerburak97/tekrar/internal/model"
)

// maxDrain bounds how much of a replay response is read before closing.
const maxDrain = 1 << 20

// HTTPDispatcher sends reconstructed requests with net/http.
type HTTPDispatcher struct {
	client *http.Client
}

func NewHTTPDispatcher(cfg config.TransportConfig) *HTTPDispatcher {
	return &HTTPDispatcher{
		client: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				Proxy:                 http.ProxyFromEnvironment,
				MaxIdleConns:          cfg.MaxIdleConns,
				IdleConnTimeout:       cfg.IdleConnTimeout,
				TLSHandshakeTimeout:   cfg.TLSTimeout,
				ResponseHeaderTimeout: cfg.ResponseHeaderTimeout,
				ExpectContinueTimeout: cfg.ExpectContinueTimeout,
				MaxConnsPerHost:       cfg.MaxConnsPerHost,
			},
		},
	}
}

// NewHTTPDispatcherWithClient is used by tests to point at httptest servers.
func NewHTTPDispatcherWithClient(client *http.Client) *HTTPDispatcher {
	return &HTTPDispatcher{client: client}
}

// Dispatch issues req and returns the response status. Any status counts as
// a response; only transport failures are errors.
func (d *HTTPDispatcher) Dispatch(ctx context.Context, req *model.OutboundRequest) (int, error) {
	var body io.Reader
	if req.Body != nil {
		body = strings.NewReader(*req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		return 0, err
	}
	for _, h := range req.Headers {
		if strings.EqualFold(h.Name, "Host") {
			httpReq.Host = h.Value
			continue
		}
		httpReq.Header.Add(h.Name, h.Value)
	}

	resp, err := d.client.Do(httpReq)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrain))
	return resp.StatusCode, nil
}

func (d *HTTPDispatcher) Close() {
	d.client.CloseIdleConnections()
}
