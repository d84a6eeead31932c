// Package middleware provides the request-processing stages placed in front
// of a protected handler: path normalization and shared-key authentication.
package middleware

import (
	"net/http"
	"net/url"
	"path"
	"strings"
)

// PathSanitizer decodes and normalizes URL paths before they reach signature
// validation. The canonical resource string is built from the request path,
// so both signer and verifier have to agree on one normalized form; this
// stage also rejects traversal attempts.
type PathSanitizer struct {
	next http.Handler
}

// NewPathSanitizer creates a path normalization stage in front of next.
func NewPathSanitizer(next http.Handler) *PathSanitizer {
	return &PathSanitizer{
		next: next,
	}
}

// ServeHTTP implements http.Handler.
func (p *PathSanitizer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sanitized, err := sanitizePath(r.URL.Path)
	if err != nil {
		http.Error(w, "Invalid path", http.StatusBadRequest)
		return
	}
	r.URL.Path = sanitized
	p.next.ServeHTTP(w, r)
}

// sanitizePath percent-decodes the path and normalizes away empty, "." and
// ".." segments, keeping the result rooted.
func sanitizePath(urlPath string) (string, error) {
	if urlPath == "" || urlPath == "/" {
		return urlPath, nil
	}

	decoded, err := url.PathUnescape(urlPath)
	if err != nil {
		return "", err
	}

	cleaned := path.Clean(decoded)

	// path.Clean resolves ".." against the root, but a result that still
	// points outside the root must not escape it.
	if strings.Contains(decoded, "..") {
		if !strings.HasPrefix(cleaned, "/") || strings.HasPrefix(cleaned, "..") {
			cleaned = "/" + strings.TrimPrefix(cleaned, "..")
		}
	}

	if strings.HasPrefix(urlPath, "/") && !strings.HasPrefix(cleaned, "/") {
		cleaned = "/" + cleaned
	}
	if cleaned == "." {
		cleaned = "/"
	}

	return cleaned, nil
}
