package sheet

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	apperrors "github.com/linkpulse/collector/internal/errors"
)

const analyticsURLFormat = "https://www.linkedin.com/analytics/post-summary/urn:li:activity:%s/"

// The three known post URL shapes carrying the activity identifier, in
// priority order: slug-embedded id, feed-update URN, bare 19-digit token.
var (
	slugActivityPattern = regexp.MustCompile(`activity-(\d{19})`)
	urnActivityPattern  = regexp.MustCompile(`urn:li:activity:(\d{19})`)
	bareActivityPattern = regexp.MustCompile(`(?:^|[^\d])(\d{19})(?:[^\d]|$)`)
)

// IsPostURL reports whether raw looks like a LinkedIn post permalink.
func IsPostURL(raw string) bool {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return false
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return false
	}

	host := strings.ToLower(parsed.Host)
	host = strings.TrimPrefix(host, "www.")
	if host != "linkedin.com" && !strings.HasSuffix(host, ".linkedin.com") {
		return false
	}

	path := parsed.Path
	return strings.HasPrefix(path, "/posts/") ||
		strings.HasPrefix(path, "/feed/update/") ||
		strings.HasPrefix(path, "/pulse/")
}

// ActivityID extracts the 19-digit activity identifier from a post URL,
// trying the known shapes in priority order.
func ActivityID(raw string) (string, error) {
	raw = strings.TrimSpace(raw)

	for _, pattern := range []*regexp.Regexp{slugActivityPattern, urnActivityPattern, bareActivityPattern} {
		if m := pattern.FindStringSubmatch(raw); m != nil {
			return m[1], nil
		}
	}
	return "", apperrors.Extraction(raw)
}

// TransformToAnalyticsURL rewrites a post permalink into its per-post
// analytics page URL. A URL matching none of the known shapes is a hard
// failure for that item; batch callers log it and continue.
func TransformToAnalyticsURL(raw string) (string, error) {
	id, err := ActivityID(raw)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(analyticsURLFormat, id), nil
}
