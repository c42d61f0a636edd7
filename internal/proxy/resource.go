package proxy

import (
	"mime"
	"net/url"
	"strings"

	"github.com/tuncerburak97/tekrar/internal/model"
)

// ResourceType classifies a proxied request the way a browser's webRequest
// API would. Sec-Fetch-Dest wins when present; programmatic clients that send
// no fetch metadata and do not ask for HTML count as script-issued.
func ResourceType(get func(string) string) string {
	switch strings.ToLower(get("Sec-Fetch-Dest")) {
	case "empty":
		return model.ResourceXHR
	case "document":
		return model.ResourceMainFrame
	case "iframe", "frame":
		return model.ResourceSubFrame
	case "style":
		return model.ResourceStylesheet
	case "script", "worker", "sharedworker", "serviceworker":
		return model.ResourceScript
	case "image":
		return model.ResourceImage
	case "font":
		return model.ResourceFont
	case "":
	default:
		return model.ResourceOther
	}

	if strings.EqualFold(get("X-Requested-With"), "XMLHttpRequest") {
		return model.ResourceXHR
	}
	if strings.Contains(strings.ToLower(get("Accept")), "text/html") {
		return model.ResourceMainFrame
	}
	return model.ResourceXHR
}

// SnapshotBody captures body the way webRequest's requestBody does: parsed
// fields for urlencoded forms, a single raw chunk otherwise. It copies body.
func SnapshotBody(contentType string, body []byte) *model.RequestBody {
	if len(body) == 0 {
		return nil
	}

	mediaType, _, _ := mime.ParseMediaType(contentType)
	if mediaType == "application/x-www-form-urlencoded" {
		if form, ok := parseForm(string(body)); ok {
			return &model.RequestBody{FormFields: form}
		}
	}
	return &model.RequestBody{RawChunks: [][]byte{append([]byte(nil), body...)}}
}

// parseForm decodes an urlencoded body keeping fields in the order they
// first appear. ok is false when the body has no fields or a bad escape.
func parseForm(body string) (model.FormData, bool) {
	var form model.FormData
	for _, pair := range strings.Split(body, "&") {
		if pair == "" {
			continue
		}
		name, value, _ := strings.Cut(pair, "=")
		name, err := url.QueryUnescape(name)
		if err != nil {
			return nil, false
		}
		value, err = url.QueryUnescape(value)
		if err != nil {
			return nil, false
		}
		form.Add(name, value)
	}
	return form, len(form) > 0
}
