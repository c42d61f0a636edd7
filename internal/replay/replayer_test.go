package replay

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/tuncerburak97/tekrar/internal/ledger"
	"github.com/tuncerburak97/tekrar/internal/metrics"
	"github.com/tuncerburak97/tekrar/internal/model"
)

type fakeCookies struct {
	cookies map[string][]model.Cookie
	err     error
	hosts   []string
}

func (f *fakeCookies) Cookies(ctx context.Context, host string) ([]model.Cookie, error) {
	f.hosts = append(f.hosts, host)
	if f.err != nil {
		return nil, f.err
	}
	return f.cookies[host], nil
}

type fakeDispatcher struct {
	mu       sync.Mutex
	status   int
	err      error
	requests []*model.OutboundRequest
	during   func()
	panicky  bool
}

func (f *fakeDispatcher) Dispatch(ctx context.Context, req *model.OutboundRequest) (int, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	if f.during != nil {
		f.during()
	}
	if f.panicky {
		panic("boom")
	}
	return f.status, f.err
}

type fakeTransformer struct {
	err error
}

func (f *fakeTransformer) TransformReplay(ctx context.Context, req *model.OutboundRequest) error {
	if f.err != nil {
		return f.err
	}
	req.Headers = append(req.Headers, model.Header{Name: "X-Replayed", Value: "1"})
	return nil
}

func setupTestReplayer(t *testing.T, cookies CookieStore, d Dispatcher) (*Replayer, *ledger.State, *metrics.MetricsCollector) {
	t.Helper()
	state := ledger.NewState(ledger.Options{Recording: true})
	m := metrics.NewMetricsCollector("tekrar_test", "test", prometheus.NewRegistry())
	t.Cleanup(m.Close)
	return New(state, cookies, d, zerolog.Nop(), m), state, m
}

func seed(state *ledger.State, records ...model.RecordedRequest) {
	for i, r := range records {
		id := string(rune('a' + i))
		state.Start(id, r)
		state.Conclude(id)
	}
}

func TestReplayEmptyLedger(t *testing.T) {
	t.Parallel()
	d := &fakeDispatcher{status: 200}
	r, state, m := setupTestReplayer(t, &fakeCookies{}, d)

	out := r.Replay(context.Background())

	if out.Success || !errors.Is(out.Err, ErrNoRecordsAvailable) {
		t.Fatalf("outcome = %+v, want NoRecordsAvailable", out)
	}
	if out.Error != ErrNoRecordsAvailable.Error() {
		t.Errorf("error text = %q", out.Error)
	}
	if state.Replaying() {
		t.Error("replaying left true")
	}
	if len(d.requests) != 0 {
		t.Error("dispatcher called for empty ledger")
	}
	if got := testutil.ToFloat64(m.ReplayCounter.WithLabelValues("test", "no_records")); got != 1 {
		t.Errorf("no_records replays = %v", got)
	}
}

func TestReplayJSONPostWithCookies(t *testing.T) {
	t.Parallel()
	d := &fakeDispatcher{status: 201}
	cookies := &fakeCookies{cookies: map[string][]model.Cookie{
		"api.example.com": {{Name: "sid", Value: "abc"}},
	}}
	r, state, _ := setupTestReplayer(t, cookies, d)
	seed(state, model.RecordedRequest{
		URL:     "https://api.example.com/items",
		Method:  "POST",
		Headers: []model.Header{{Name: "Content-Type", Value: "application/json"}},
		Body:    &model.RequestBody{RawChunks: [][]byte{[]byte(`{"a":1}`)}},
	})

	out := r.Replay(context.Background())

	if !out.Success || out.Status != 201 || out.Err != nil {
		t.Fatalf("outcome = %+v", out)
	}
	if len(d.requests) != 1 {
		t.Fatalf("dispatched %d requests", len(d.requests))
	}
	req := d.requests[0]
	if req.Method != "POST" || req.URL != "https://api.example.com/items" {
		t.Errorf("request line = %s %s", req.Method, req.URL)
	}
	if got := req.HeaderValues("content-type"); len(got) != 1 || got[0] != "application/json" {
		t.Errorf("content-type = %v", got)
	}
	if got := req.HeaderValues("Cookie"); len(got) != 1 || got[0] != "sid=abc" {
		t.Errorf("cookie = %v", got)
	}
	if req.Body == nil || *req.Body != `{"a":1}` {
		t.Errorf("body = %v", req.Body)
	}
	if len(cookies.hosts) != 1 || cookies.hosts[0] != "api.example.com" {
		t.Errorf("cookie lookups = %v", cookies.hosts)
	}
	if state.Replaying() {
		t.Error("replaying left true")
	}
}

func TestReplayFormBody(t *testing.T) {
	t.Parallel()
	d := &fakeDispatcher{status: 200}
	r, state, _ := setupTestReplayer(t, &fakeCookies{}, d)
	seed(state, model.RecordedRequest{
		URL:    "https://api.example.com/form",
		Method: "POST",
		Body:   &model.RequestBody{FormFields: model.FormData{{Name: "a", Values: []string{"1", "2"}}}},
	})

	out := r.Replay(context.Background())
	if !out.Success {
		t.Fatalf("outcome = %+v", out)
	}
	if body := d.requests[0].Body; body == nil || *body != "a=1&a=2" {
		t.Errorf("body = %v, want a=1&a=2", body)
	}
}

func TestReplayAlwaysUsesOldestRecord(t *testing.T) {
	t.Parallel()
	d := &fakeDispatcher{status: 200}
	r, state, _ := setupTestReplayer(t, &fakeCookies{}, d)
	seed(state,
		model.RecordedRequest{URL: "https://api.example.com/first", Method: "GET"},
		model.RecordedRequest{URL: "https://api.example.com/second", Method: "GET"},
	)

	r.Replay(context.Background())
	r.Replay(context.Background())

	if len(d.requests) != 2 {
		t.Fatalf("dispatched %d requests", len(d.requests))
	}
	for _, req := range d.requests {
		if req.URL != "https://api.example.com/first" {
			t.Errorf("replayed %s, want the oldest record", req.URL)
		}
	}
	if _, finalized := state.Sizes(); finalized != 2 {
		t.Errorf("ledger size = %d, replay must not remove records", finalized)
	}
}

func TestReplayInvalidURL(t *testing.T) {
	t.Parallel()
	d := &fakeDispatcher{status: 200}
	r, state, _ := setupTestReplayer(t, &fakeCookies{}, d)
	seed(state, model.RecordedRequest{URL: "relative/path", Method: "GET"})

	out := r.Replay(context.Background())

	if out.Success || !errors.Is(out.Err, ErrInvalidURL) {
		t.Fatalf("outcome = %+v, want InvalidUrl", out)
	}
	if out.Error != ErrInvalidURL.Error() {
		t.Errorf("error text = %q leaks detail", out.Error)
	}
	if state.Replaying() {
		t.Error("replaying left true after invalid url")
	}
}

func TestReplayDispatchFailureHidesDetail(t *testing.T) {
	t.Parallel()
	d := &fakeDispatcher{err: errors.New("dial tcp 10.0.0.7:443: connection refused")}
	r, state, m := setupTestReplayer(t, &fakeCookies{}, d)
	seed(state, model.RecordedRequest{URL: "https://api.example.com/x", Method: "GET"})

	out := r.Replay(context.Background())

	if out.Success || !errors.Is(out.Err, ErrDispatchFailure) {
		t.Fatalf("outcome = %+v, want DispatchFailure", out)
	}
	if out.Error != "replay failed" {
		t.Errorf("error text = %q", out.Error)
	}
	if state.Replaying() {
		t.Error("replaying left true after dispatch failure")
	}
	if got := testutil.ToFloat64(m.ReplayCounter.WithLabelValues("test", "dispatch_failure")); got != 1 {
		t.Errorf("dispatch_failure replays = %v", got)
	}
}

func TestReplayCookieLookupFailureProceeds(t *testing.T) {
	t.Parallel()
	d := &fakeDispatcher{status: 204}
	r, state, _ := setupTestReplayer(t, &fakeCookies{err: errors.New("redis down")}, d)
	seed(state, model.RecordedRequest{
		URL:     "https://api.example.com/x",
		Method:  "GET",
		Headers: []model.Header{{Name: "Cookie", Value: "recorded=1"}},
	})

	out := r.Replay(context.Background())

	if !out.Success || out.Status != 204 {
		t.Fatalf("outcome = %+v", out)
	}
	if got := d.requests[0].HeaderValues("Cookie"); len(got) != 1 || got[0] != "recorded=1" {
		t.Errorf("cookie = %v, want recorded cookie kept", got)
	}
}

func TestReplayPanicIsReported(t *testing.T) {
	t.Parallel()
	d := &fakeDispatcher{panicky: true}
	r, state, _ := setupTestReplayer(t, nil, d)
	seed(state, model.RecordedRequest{URL: "https://api.example.com/x", Method: "GET"})

	out := r.Replay(context.Background())

	if out.Success || !errors.Is(out.Err, ErrDispatchFailure) {
		t.Fatalf("outcome = %+v", out)
	}
	if state.Replaying() {
		t.Error("replaying left true after panic")
	}
}

func TestReplaySetsReplayingDuringDispatch(t *testing.T) {
	t.Parallel()
	d := &fakeDispatcher{status: 200}
	r, state, _ := setupTestReplayer(t, &fakeCookies{}, d)
	seed(state, model.RecordedRequest{URL: "https://api.example.com/x", Method: "GET"})

	var during bool
	d.during = func() { during = state.Replaying() }
	r.Replay(context.Background())

	if !during {
		t.Error("replaying was false while dispatching")
	}
	if state.Replaying() {
		t.Error("replaying left true")
	}
}

func TestConcurrentReplayRejected(t *testing.T) {
	t.Parallel()
	release := make(chan struct{})
	entered := make(chan struct{})
	d := &fakeDispatcher{status: 200}
	d.during = func() {
		close(entered)
		<-release
	}
	r, state, _ := setupTestReplayer(t, &fakeCookies{}, d)
	seed(state, model.RecordedRequest{URL: "https://api.example.com/x", Method: "GET"})

	done := make(chan model.ReplayOutcome)
	go func() { done <- r.Replay(context.Background()) }()
	<-entered

	second := r.Replay(context.Background())
	if second.Success || !errors.Is(second.Err, ErrReplayInProgress) {
		t.Errorf("second outcome = %+v, want ReplayInProgress", second)
	}
	if !state.Replaying() {
		t.Error("rejected replay reset the flag of the running one")
	}

	close(release)
	if first := <-done; !first.Success {
		t.Errorf("first outcome = %+v", first)
	}
	if state.Replaying() {
		t.Error("replaying left true")
	}
}

func TestReplayTransformer(t *testing.T) {
	t.Parallel()

	t.Run("rewrites request", func(t *testing.T) {
		d := &fakeDispatcher{status: 200}
		r, state, _ := setupTestReplayer(t, &fakeCookies{}, d)
		r.WithTransformer(&fakeTransformer{})
		seed(state, model.RecordedRequest{URL: "https://api.example.com/x", Method: "GET"})

		if out := r.Replay(context.Background()); !out.Success {
			t.Fatalf("outcome = %+v", out)
		}
		if got := d.requests[0].HeaderValues("X-Replayed"); len(got) != 1 {
			t.Errorf("transformer header missing: %+v", d.requests[0].Headers)
		}
	})

	t.Run("script failure", func(t *testing.T) {
		d := &fakeDispatcher{status: 200}
		r, state, _ := setupTestReplayer(t, &fakeCookies{}, d)
		r.WithTransformer(&fakeTransformer{err: errors.New("ReferenceError")})
		seed(state, model.RecordedRequest{URL: "https://api.example.com/x", Method: "GET"})

		out := r.Replay(context.Background())
		if out.Success || !errors.Is(out.Err, ErrDispatchFailure) || out.Error != "replay failed" {
			t.Errorf("outcome = %+v", out)
		}
		if len(d.requests) != 0 {
			t.Error("request dispatched after script failure")
		}
	})
}

func TestReplayOverHTTP(t *testing.T) {
	t.Parallel()

	type seen struct {
		method string
		path   string
		cookie string
		ctype  string
		dup    []string
		body   string
	}
	got := make(chan seen, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		body, _ := io.ReadAll(req.Body)
		got <- seen{
			method: req.Method,
			path:   req.URL.Path,
			cookie: req.Header.Get("Cookie"),
			ctype:  req.Header.Get("Content-Type"),
			dup:    req.Header.Values("X-Dup"),
			body:   string(body),
		}
		w.WriteHeader(http.StatusTeapot)
	}))
	defer srv.Close()

	host, err := ParseHost(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	cookies := &fakeCookies{cookies: map[string][]model.Cookie{host: {{Name: "sid", Value: "abc"}}}}
	d := NewHTTPDispatcherWithClient(&http.Client{Timeout: 5 * time.Second})
	r, state, _ := setupTestReplayer(t, cookies, d)
	seed(state, model.RecordedRequest{
		URL:    srv.URL + "/items",
		Method: "PUT",
		Headers: []model.Header{
			{Name: "Content-Type", Value: "application/json"},
			{Name: "X-Dup", Value: "1"},
			{Name: "X-Dup", Value: "2"},
			{Name: "Cookie", Value: "old=1"},
		},
		Body: &model.RequestBody{RawChunks: [][]byte{[]byte(`{"a":1}`)}},
	})

	out := r.Replay(context.Background())
	if !out.Success || out.Status != http.StatusTeapot {
		t.Fatalf("outcome = %+v", out)
	}

	s := <-got
	if s.method != "PUT" || s.path != "/items" {
		t.Errorf("request line = %s %s", s.method, s.path)
	}
	if s.cookie != "sid=abc" {
		t.Errorf("cookie = %q", s.cookie)
	}
	if s.ctype != "application/json" {
		t.Errorf("content-type = %q", s.ctype)
	}
	if len(s.dup) != 2 || s.dup[0] != "1" || s.dup[1] != "2" {
		t.Errorf("X-Dup = %v", s.dup)
	}
	if s.body != `{"a":1}` {
		t.Errorf("body = %q", s.body)
	}
}

func TestHTTPDispatcherTransportError(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	d := NewHTTPDispatcherWithClient(&http.Client{Timeout: time.Second})
	if _, err := d.Dispatch(context.Background(), &model.OutboundRequest{Method: "GET", URL: url}); err == nil {
		t.Error("expected transport error for closed server")
	}
}
