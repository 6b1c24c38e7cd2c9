package portal

import (
	"bytes"
	"fmt"
	"strings"
)

// Phrases that identify a login page or rejected credentials. Matched
// case-insensitively; the portal has reworded these before, so several
// variants are checked rather than a single string.
var loginPhrases = []string{
	"invalid username or password",
	"invalid login",
	"please log in",
	"sign in to your account",
	"session has expired",
	"logon/login",
}

// Phrases that identify a portal-side error page rather than data.
var portalErrorPhrases = []string{
	"an error has occurred",
	"temporarily unavailable",
	"system maintenance",
	"we're sorry",
}

// URL path markers that indicate a redirect to authentication.
var loginPathMarkers = []string{"login", "logon", "signin", "sign-in", "authenticate"}

// URL path markers that indicate a portal error redirect.
var errorPathMarkers = []string{"errorpage", "error.html", "maintenance", "outage"}

// how much of an HTML payload is scanned for login/error phrases
const contentScanLimit = 8192

// IsLoginURL reports whether a URL looks like the portal's login flow.
func IsLoginURL(u string) bool {
	lower := strings.ToLower(u)
	for _, marker := range loginPathMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// CheckFinalURL is the header/redirect verification pass: it inspects the URL
// the request actually landed on after any redirects, without looking at the
// body. A login URL means the session was silently dropped; an error URL
// means the portal failed upstream.
func CheckFinalURL(finalURL string, statusCode int) error {
	if IsLoginURL(finalURL) {
		return &AuthError{StatusCode: statusCode, Message: fmt.Sprintf("redirected to login page: %s", finalURL)}
	}
	lower := strings.ToLower(finalURL)
	for _, marker := range errorPathMarkers {
		if strings.Contains(lower, marker) {
			return &APIError{StatusCode: statusCode, Message: fmt.Sprintf("redirected to portal error page: %s", finalURL)}
		}
	}
	return nil
}

// IsHTMLDocument reports whether content begins with an HTML document
// signature after leading whitespace is stripped.
func IsHTMLDocument(content []byte) bool {
	trimmed := bytes.TrimLeft(content, " \t\r\n")
	lower := bytes.ToLower(trimmed)
	return bytes.HasPrefix(lower, []byte("<!doctype")) || bytes.HasPrefix(lower, []byte("<html"))
}

// CheckPayload is the content verification pass, applied when a binary file
// was expected. A payload that turns out to be an HTML document is scanned
// (bounded prefix only) for login indicators and portal error phrases.
// Anything else is accepted: the portal has served real data wrapped in an
// HTML table under a spreadsheet content type, and those files must still
// reach the parser.
func CheckPayload(content []byte) error {
	if !IsHTMLDocument(content) {
		return nil
	}

	prefix := content
	if len(prefix) > contentScanLimit {
		prefix = prefix[:contentScanLimit]
	}
	lower := strings.ToLower(string(prefix))

	for _, phrase := range loginPhrases {
		if strings.Contains(lower, phrase) {
			return &AuthError{Message: fmt.Sprintf("response is a login page (matched %q)", phrase)}
		}
	}
	for _, phrase := range portalErrorPhrases {
		if strings.Contains(lower, phrase) {
			return &APIError{Message: fmt.Sprintf("response is a portal error page (matched %q)", phrase)}
		}
	}

	return nil
}
