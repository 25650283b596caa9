package httpx

import (
	"net/url"
	"strings"
)

// SafeRedirect accepts a post-sign-in target that stays on this site: a path starting with a single "/",
// or an absolute URL with the same scheme and host as base. An empty target becomes "/".
func SafeRedirect(raw, base string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "/", true
	}
	if strings.ContainsAny(raw, "\\\r\n") {
		return "", false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", false
	}
	if !u.IsAbs() && u.Host == "" {
		if !strings.HasPrefix(raw, "/") || strings.HasPrefix(raw, "//") {
			return "", false
		}
		return u.RequestURI(), true
	}
	b, err := url.Parse(base)
	if err != nil || b.Host == "" {
		return "", false
	}
	if !strings.EqualFold(u.Scheme, b.Scheme) || !strings.EqualFold(u.Host, b.Host) || u.User != nil {
		return "", false
	}
	return u.String(), true
}
