package api

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

func normalizeOrigins(raw []string) (map[string]struct{}, error) {
	origins := make(map[string]struct{}, len(raw))
	for _, o := range raw {
		o = strings.TrimSpace(o)
		if o == "" {
			continue
		}
		origin, ok := originOf(o)
		if !ok {
			return nil, fmt.Errorf("invalid allowed origin %q", o)
		}
		origins[origin] = struct{}{}
	}
	if len(origins) == 0 {
		return nil, fmt.Errorf("no valid allowed origins")
	}
	return origins, nil
}

// originOf reduces a URL to its lower-cased scheme://host[:port]
func originOf(raw string) (string, bool) {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", false
	}
	return strings.ToLower(u.Scheme + "://" + u.Host), true
}

// sameOrigin reports whether the Origin header, or the Referer when Origin
// is absent, is on the allow-list.
func (h *Handler) sameOrigin(r *http.Request) bool {
	source := r.Header.Get("Origin")
	if source == "" || source == "null" {
		source = r.Header.Get("Referer")
	}
	if source == "" {
		return false
	}
	origin, ok := originOf(source)
	if !ok {
		return false
	}
	_, allowed := h.origins[origin]
	return allowed
}
