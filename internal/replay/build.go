package replay

import (
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/tuncerburak97/tekrar/internal/model"
)

// ParseHost returns the hostname of a recorded absolute URL.
func ParseHost(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Scheme == "" || u.Hostname() == "" {
		return "", fmt.Errorf("%w: %q is not absolute", ErrInvalidURL, rawURL)
	}
	return u.Hostname(), nil
}

// CookieHeader joins cookies as "name=value" pairs separated by "; ".
func CookieHeader(cookies []model.Cookie) string {
	pairs := make([]string, 0, len(cookies))
	for _, c := range cookies {
		pairs = append(pairs, c.Name+"="+c.Value)
	}
	return strings.Join(pairs, "; ")
}

// BuildHeaders copies the recorded headers in order, skipping entries with an
// empty name or value. Duplicate names stay separate entries. A non-empty
// cookie value replaces every recorded Cookie header.
func BuildHeaders(recorded []model.Header, cookie string) []model.Header {
	headers := make([]model.Header, 0, len(recorded)+1)
	for _, h := range recorded {
		if h.Name == "" || h.Value == "" {
			continue
		}
		if cookie != "" && strings.EqualFold(h.Name, "Cookie") {
			continue
		}
		headers = append(headers, h)
	}
	if cookie != "" {
		headers = append(headers, model.Header{Name: "Cookie", Value: cookie})
	}
	return headers
}

// EncodeBody rebuilds a text body from the stored snapshot. Form fields become
// an urlencoded string in capture order (field then value); raw chunks yield
// only the first chunk decoded as UTF-8. Both are lossy.
func EncodeBody(body *model.RequestBody) *string {
	if body == nil {
		return nil
	}

	switch {
	case len(body.FormFields) > 0:
		encoded := EncodeForm(body.FormFields)
		return &encoded
	case len(body.RawChunks) > 0:
		text := DecodeUTF8(body.RawChunks[0])
		return &text
	default:
		return nil
	}
}

// EncodeForm serializes fields as application/x-www-form-urlencoded the way
// URLSearchParams does: space becomes '+', and only ALPHA, DIGIT and "*-._"
// stay unescaped.
func EncodeForm(form model.FormData) string {
	var sb strings.Builder
	for _, field := range form {
		for _, v := range field.Values {
			if sb.Len() > 0 {
				sb.WriteByte('&')
			}
			escapeFormComponent(&sb, field.Name)
			sb.WriteByte('=')
			escapeFormComponent(&sb, v)
		}
	}
	return sb.String()
}

const upperHex = "0123456789ABCDEF"

func escapeFormComponent(sb *strings.Builder, s string) {
	s = strings.ToValidUTF8(s, "\uFFFD")
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9',
			c == '*', c == '-', c == '.', c == '_':
			sb.WriteByte(c)
		case c == ' ':
			sb.WriteByte('+')
		default:
			sb.WriteByte('%')
			sb.WriteByte(upperHex[c>>4])
			sb.WriteByte(upperHex[c&0x0f])
		}
	}
}

// DecodeUTF8 decodes b replacing each maximal invalid subpart with one
// U+FFFD, matching the WHATWG UTF-8 decoder.
func DecodeUTF8(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}
	var sb strings.Builder
	sb.Grow(len(b))
	for len(b) > 0 {
		r, size := utf8.DecodeRune(b)
		if r != utf8.RuneError || size > 1 {
			sb.Write(b[:size])
			b = b[size:]
			continue
		}
		sb.WriteRune(utf8.RuneError)
		b = b[invalidPrefixLen(b):]
	}
	return sb.String()
}

// invalidPrefixLen returns the length of the ill-formed sequence at the start
// of b: a lead byte plus the continuation bytes that were still acceptable.
func invalidPrefixLen(b []byte) int {
	lo, hi := byte(0x80), byte(0xBF)
	var need int
	switch c := b[0]; {
	case c >= 0xC2 && c <= 0xDF:
		need = 1
	case c == 0xE0:
		need, lo = 2, 0xA0
	case c == 0xED:
		need, hi = 2, 0x9F
	case c >= 0xE1 && c <= 0xEF:
		need = 2
	case c == 0xF0:
		need, lo = 3, 0x90
	case c == 0xF4:
		need, hi = 3, 0x8F
	case c >= 0xF1 && c <= 0xF3:
		need = 3
	default:
		return 1
	}
	n := 1
	for n <= need && n < len(b) && b[n] >= lo && b[n] <= hi {
		lo, hi = 0x80, 0xBF
		n++
	}
	return n
}

// Build reconstructs the outbound request for record with the given cookies.
func Build(record model.RecordedRequest, cookies []model.Cookie) (*model.OutboundRequest, error) {
	if _, err := ParseHost(record.URL); err != nil {
		return nil, err
	}
	return &model.OutboundRequest{
		Method:  record.Method,
		URL:     record.URL,
		Headers: BuildHeaders(record.Headers, CookieHeader(cookies)),
		Body:    EncodeBody(record.Body),
	}, nil
}
