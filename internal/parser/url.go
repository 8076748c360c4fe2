package parser

import (
	"net/url"
	"strings"
)

var skipExtensions = []string{
	".pdf", ".jpg", ".jpeg", ".png", ".gif", ".svg",
	".css", ".js", ".zip", ".tar", ".gz",
	".exe", ".dmg", ".iso",
	".mp4", ".avi", ".mov",
	".mp3", ".wav",
}

// Resolve turns href found on base into a normalized absolute http(s) URL.
// Fragment-only, javascript:, mailto: and tel: links and links to binary
// assets are rejected.
func Resolve(base, href string) (string, bool) {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return "", false
	}
	lower := strings.ToLower(href)
	for _, scheme := range []string{"javascript:", "mailto:", "tel:"} {
		if strings.HasPrefix(lower, scheme) {
			return "", false
		}
	}

	baseURL, err := url.Parse(base)
	if err != nil {
		return "", false
	}
	relURL, err := url.Parse(href)
	if err != nil {
		return "", false
	}

	absoluteURL := baseURL.ResolveReference(relURL)
	if absoluteURL.Scheme != "http" && absoluteURL.Scheme != "https" {
		return "", false
	}
	if hasSkippedExtension(absoluteURL.Path) {
		return "", false
	}

	return normalizeURL(absoluteURL), true
}

// Normalize drops the query, fragment, "www." prefix and trailing slash of
// rawURL. Unparsable input is returned unchanged.
func Normalize(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return rawURL
	}
	return normalizeURL(u)
}

func normalizeURL(u *url.URL) string {
	u.RawQuery = ""
	u.ForceQuery = false
	u.Fragment = ""
	u.RawFragment = ""
	u.Host = strings.TrimPrefix(strings.ToLower(u.Host), "www.")

	if u.Path == "/" {
		u.Path = ""
	} else if strings.HasSuffix(u.Path, "/") {
		u.Path = strings.TrimSuffix(u.Path, "/")
	}
	u.RawPath = ""
	return u.String()
}

func hasSkippedExtension(path string) bool {
	path = strings.ToLower(path)
	for _, ext := range skipExtensions {
		if strings.HasSuffix(path, ext) {
			return true
		}
	}
	return false
}

// Domain returns the normalized scheme://host of rawURL, the prefix every
// in-site link starts with.
func Domain(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + strings.TrimPrefix(strings.ToLower(u.Host), "www.")
}

// InDomain reports whether the normalized link belongs to domain.
func InDomain(link, domain string) bool {
	if domain == "" {
		return false
	}
	return link == domain || strings.HasPrefix(link, domain+"/")
}

// Path returns the path of rawURL relative to its site, "/" for the root.
func Path(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Path == "" {
		return "/"
	}
	return u.Path
}

// IsHTML reports whether a Content-Type header value denotes an HTML page.
func IsHTML(contentType string) bool {
	ct := strings.ToLower(contentType)
	return strings.Contains(ct, "text/html") || strings.Contains(ct, "application/xhtml+xml")
}
