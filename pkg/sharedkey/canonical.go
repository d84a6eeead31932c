package sharedkey

import (
	"net/http"
	"net/url"
	"sort"
	"strings"
)

// Header names that participate in the canonical string.
const (
	// HeaderDate carries the request timestamp. When absent the standard
	// Date header is used instead.
	HeaderDate = "X-Auth-Date"
	// HeaderContentSHA256 optionally carries a hex digest of the request
	// body. Its value is signed verbatim; this package does not hash
	// request bodies itself.
	HeaderContentSHA256 = "X-Auth-Content-Sha256"

	// extensionPrefix selects the caller-supplied headers that are folded
	// into the canonical string.
	extensionPrefix = "x-auth-"
)

// canonicalString builds the byte sequence both sides sign. The timestamp is
// passed in as the raw header value so that formatting differences between
// clients cannot desynchronize signer and verifier.
func canonicalString(r *http.Request, timestamp string) []byte {
	var b strings.Builder
	b.WriteString(r.Method)
	b.WriteByte('\n')
	b.WriteString(r.Header.Get(HeaderContentSHA256))
	b.WriteByte('\n')
	b.WriteString(r.Header.Get("Content-Type"))
	b.WriteByte('\n')
	b.WriteString(timestamp)
	b.WriteByte('\n')
	b.WriteString(canonicalResource(r.URL))
	b.WriteByte('\n')
	b.WriteString(canonicalExtensionHeaders(r.Header))
	return []byte(b.String())
}

// canonicalResource is the escaped request path plus the query parameters
// sorted by key and then by value, each URL-encoded. Storage order of the
// parameters must not influence the result.
func canonicalResource(u *url.URL) string {
	resource := escapePath(u.Path)
	if resource == "" {
		resource = "/"
	}

	query := u.Query()
	if len(query) == 0 {
		return resource
	}

	pairs := make([]string, 0, len(query))
	for key, values := range query {
		for _, value := range values {
			pairs = append(pairs, url.QueryEscape(key)+"="+url.QueryEscape(value))
		}
	}
	sort.Strings(pairs)
	return resource + "?" + strings.Join(pairs, "&")
}

// canonicalExtensionHeaders folds every x-auth-* header into "name:value\n"
// lines sorted by name. The timestamp and content digest headers are carried
// in their own positions of the canonical string and are excluded here.
// Multiple values for one name are trimmed and joined with commas.
func canonicalExtensionHeaders(headers http.Header) string {
	var names []string
	values := make(map[string]string)
	for name, headerValues := range headers {
		lower := strings.ToLower(name)
		if !strings.HasPrefix(lower, extensionPrefix) {
			continue
		}
		if name == HeaderDate || name == HeaderContentSHA256 {
			continue
		}
		trimmed := make([]string, len(headerValues))
		for i, v := range headerValues {
			trimmed[i] = strings.TrimSpace(v)
		}
		names = append(names, lower)
		values[lower] = strings.Join(trimmed, ",")
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		b.WriteString(name)
		b.WriteByte(':')
		b.WriteString(values[name])
		b.WriteByte('\n')
	}
	return b.String()
}

// escapePath escapes each path segment while keeping the separators.
func escapePath(p string) string {
	segments := strings.Split(p, "/")
	for i, segment := range segments {
		if segment == "" {
			continue
		}
		segments[i] = url.QueryEscape(segment)
	}
	return strings.Join(segments, "/")
}
