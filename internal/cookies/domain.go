package cookies

import (
	"net"
	"strings"
)

// NormalizeDomain lower-cases d and strips a leading dot, so ".example.com"
// and "example.com" address the same cookies.
func NormalizeDomain(d string) string {
	return strings.TrimPrefix(strings.ToLower(strings.TrimSpace(d)), ".")
}

// candidateDomains lists the cookie domains visible for host, most specific
// first: the host itself and every parent domain above the top-level label.
func candidateDomains(host string) []string {
	host = NormalizeDomain(host)
	if host == "" {
		return nil
	}
	if net.ParseIP(host) != nil || !strings.Contains(host, ".") {
		return []string{host}
	}

	domains := []string{host}
	rest := host
	for {
		i := strings.IndexByte(rest, '.')
		if i < 0 {
			break
		}
		rest = rest[i+1:]
		if !strings.Contains(rest, ".") {
			break
		}
		domains = append(domains, rest)
	}
	return domains
}
