package reminder_api

import (
	"net/http"
	"net/url"
	"strings"
)

// OriginSet holds the normalized scheme://host origins allowed to trigger reminders.
type OriginSet map[string]struct{}

func NewOriginSet(origins []string) OriginSet {
	set := make(OriginSet, len(origins))
	for _, o := range origins {
		if n := normalizeOrigin(o); n != "" {
			set[n] = struct{}{}
		}
	}
	return set
}

// RequestOrigin prefers the Origin header and falls back to the Referer's origin.
func RequestOrigin(r *http.Request) string {
	if o := r.Header.Get("Origin"); o != "" && o != "null" {
		return normalizeOrigin(o)
	}
	return normalizeOrigin(r.Header.Get("Referer"))
}

func (s OriginSet) Allowed(origin string) bool {
	if origin == "" {
		return false
	}
	_, ok := s[origin]
	return ok
}

func normalizeOrigin(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return strings.ToLower(u.Scheme) + "://" + strings.ToLower(u.Host)
}
