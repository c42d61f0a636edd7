package proxy

import (
	"net/http"
	"testing"

	"github.com/tuncerburak97/tekrar/internal/model"
)

func TestResourceType(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		headers map[string]string
		want    string
	}{
		{"fetch", map[string]string{"Sec-Fetch-Dest": "empty"}, model.ResourceXHR},
		{"navigation", map[string]string{"Sec-Fetch-Dest": "document"}, model.ResourceMainFrame},
		{"iframe", map[string]string{"Sec-Fetch-Dest": "iframe"}, model.ResourceSubFrame},
		{"stylesheet", map[string]string{"Sec-Fetch-Dest": "style"}, model.ResourceStylesheet},
		{"image", map[string]string{"Sec-Fetch-Dest": "image"}, model.ResourceImage},
		{"font", map[string]string{"Sec-Fetch-Dest": "font"}, model.ResourceFont},
		{"audio", map[string]string{"Sec-Fetch-Dest": "audio"}, model.ResourceOther},
		{"jquery", map[string]string{"X-Requested-With": "XMLHttpRequest"}, model.ResourceXHR},
		{"html accept", map[string]string{"Accept": "text/html,application/xhtml+xml"}, model.ResourceMainFrame},
		{"bare client", map[string]string{}, model.ResourceXHR},
	}

	for _, tt := range tests {
		h := http.Header{}
		for k, v := range tt.headers {
			h.Set(k, v)
		}
		if got := ResourceType(h.Get); got != tt.want {
			t.Errorf("%s: ResourceType = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestSnapshotBody(t *testing.T) {
	t.Parallel()

	if got := SnapshotBody("application/json", nil); got != nil {
		t.Errorf("empty body snapshot = %+v", got)
	}

	form := SnapshotBody("application/x-www-form-urlencoded; charset=utf-8", []byte("a=1&a=2"))
	if form == nil || len(form.FormFields.Get("a")) != 2 || form.RawChunks != nil {
		t.Errorf("form snapshot = %+v", form)
	}

	src := []byte(`{"a":1}`)
	raw := SnapshotBody("application/json", src)
	src[0] = 'X'
	if raw == nil || string(raw.RawChunks[0]) != `{"a":1}` {
		t.Errorf("raw snapshot = %+v, must not alias the input", raw)
	}
}

func TestHeaderPolicy(t *testing.T) {
	t.Parallel()
	p := NewHeaderPolicy()

	got := p.FilterRequest([]model.Header{
		{Name: "Host", Value: "proxy.local"},
		{Name: "Accept", Value: "*/*"},
		{Name: "Connection", Value: "keep-alive"},
		{Name: "X-Request-ID", Value: "client-supplied"},
		{Name: "Content-Length", Value: "7"},
		{Name: "X-Dup", Value: "1"},
		{Name: "X-Dup", Value: "2"},
	})

	want := []model.Header{
		{Name: "Accept", Value: "*/*"},
		{Name: "X-Dup", Value: "1"},
		{Name: "X-Dup", Value: "2"},
	}
	if len(got) != len(want) {
		t.Fatalf("headers = %+v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("header %d = %+v, want %+v", i, got[i], want[i])
		}
	}

	res := &http.Response{Header: http.Header{"Connection": {"close"}, "Content-Type": {"text/plain"}}}
	p.TransformResponse(res, "req-9")
	if res.Header.Get("Connection") != "" || res.Header.Get("Content-Type") != "text/plain" || res.Header.Get(RequestIDHeader) != "req-9" {
		t.Errorf("response headers = %v", res.Header)
	}
}
