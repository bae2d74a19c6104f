package source

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

// Date patterns commonly embedded in campus news URLs.
var (
	// /news/2024/05/16/ and generic /2024/05/16/
	reSlashYMD = regexp.MustCompile(`/(\d{4})/(\d{1,2})/(\d{1,2})/`)
	// Emory-style slug suffix: _16-05-2024/story.html
	reStoryDMY = regexp.MustCompile(`_(\d{2})-(\d{2})-(\d{4})/story\.html$`)
)

// DateFromURL extracts a publication date embedded in a URL path.
// Returns nil when no supported pattern matches or the digits don't
// form a real date.
func DateFromURL(rawURL string) *time.Time {
	if m := reSlashYMD.FindStringSubmatch(rawURL); m != nil {
		if t, ok := makeDate(m[1], m[2], m[3]); ok {
			return &t
		}
	}
	if m := reStoryDMY.FindStringSubmatch(rawURL); m != nil {
		if t, ok := makeDate(m[3], m[2], m[1]); ok {
			return &t
		}
	}
	return nil
}

func makeDate(year, month, day string) (time.Time, bool) {
	y, _ := strconv.Atoi(year)
	m, _ := strconv.Atoi(month)
	d, _ := strconv.Atoi(day)
	if y < 1990 || y > 2100 || m < 1 || m > 12 || d < 1 || d > 31 {
		return time.Time{}, false
	}
	t := time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
	// Reject rollovers like Feb 30
	if int(t.Month()) != m || t.Day() != d {
		return time.Time{}, false
	}
	return t, true
}

// ParseLooseDate parses a human-readable date string ("March 4, 2025",
// "2025-03-04", "Tue, 04 Mar 2025") into a UTC date. Returns nil when
// the string carries no parseable date.
func ParseLooseDate(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	t, err := dateparse.ParseAny(s)
	if err != nil {
		return nil
	}
	d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return &d
}

// NormalizeURL canonicalizes a URL for deduplication: lowercased
// scheme/host, default port and fragment dropped, trailing slash
// trimmed, tracking query parameters removed.
func NormalizeURL(rawURL string) string {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return strings.TrimSpace(rawURL)
	}

	parsed.Scheme = strings.ToLower(parsed.Scheme)
	parsed.Host = strings.ToLower(parsed.Host)
	parsed.Host = strings.TrimSuffix(parsed.Host, ":80")
	parsed.Host = strings.TrimSuffix(parsed.Host, ":443")
	parsed.Fragment = ""

	q := parsed.Query()
	for key := range q {
		if strings.HasPrefix(key, "utm_") || key == "fbclid" || key == "gclid" {
			q.Del(key)
		}
	}
	parsed.RawQuery = q.Encode()

	parsed.Path = strings.TrimSuffix(parsed.Path, "/")

	return parsed.String()
}
