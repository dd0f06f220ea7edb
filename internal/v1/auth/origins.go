package auth

import (
	"fmt"
	"net/url"
	"strings"
)

// ParseAllowedOrigins splits a comma-separated origin allow-list.
// An empty input yields an empty list, which callers treat as "allow all".
func ParseAllowedOrigins(originsStr string) []string {
	if originsStr == "" {
		return nil
	}
	parts := strings.Split(originsStr, ",")
	origins := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}

// ValidateOrigin checks a request's declared origin against the allow-list.
// An empty allow-list permits every origin. A missing Origin header is
// permitted so non-browser clients can connect.
func ValidateOrigin(origin string, allowedOrigins []string) error {
	if len(allowedOrigins) == 0 {
		return nil
	}
	if origin == "" {
		return nil
	}

	originURL, err := url.Parse(origin)
	if err != nil {
		return fmt.Errorf("invalid origin URL: %w", err)
	}

	for _, allowed := range allowedOrigins {
		allowedURL, err := url.Parse(allowed)
		if err != nil {
			continue
		}
		// Scheme and host must both match
		if originURL.Scheme == allowedURL.Scheme && originURL.Host == allowedURL.Host {
			return nil
		}
	}

	return fmt.Errorf("origin not allowed: %s", origin)
}
