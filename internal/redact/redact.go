// Package redact strips sensitive material from strings before they reach
// logs or API error responses. Provider errors routinely embed signed
// result URLs, API keys, and connection strings; nothing of that shape may
// leave the process in cleartext.
package redact

import "regexp"

// Redaction placeholders.
const (
	CredentialPlaceholder = "[REDACTED_CREDENTIAL]"
	KeyPlaceholder        = "[REDACTED_KEY]"
	URLQueryPlaceholder   = "?[REDACTED_QUERY]"
	PathPlaceholder       = "[REDACTED_PATH]"
)

var (
	// Postgres and other connection strings with inline credentials.
	connStringRegex = regexp.MustCompile(`(?i)(postgres(ql)?|mysql|redis)://[^@\s]+@`)

	// API keys and bearer secrets in headers, query strings, or error text.
	apiKeyRegex = regexp.MustCompile(
		`(?i)(api[_-]?key|x-api-key|authorization|bearer|token|secret)(['"\s:=]+)[A-Za-z0-9_\-.~+/]{8,}`,
	)

	// HMAC-signed JWTs.
	jwtRegex = regexp.MustCompile(`eyJ[a-zA-Z0-9_-]+\.eyJ[a-zA-Z0-9_-]+\.[a-zA-Z0-9_-]+`)

	// Query strings on result URLs, which carry short-lived signatures.
	urlQueryRegex = regexp.MustCompile(`\?[^\s"']+`)

	// Local filesystem paths from download errors.
	unixPathRegex = regexp.MustCompile(`(/[\w.-]+){2,}`)

	replacements = []struct {
		pattern     *regexp.Regexp
		placeholder string
	}{
		{connStringRegex, CredentialPlaceholder},
		{apiKeyRegex, KeyPlaceholder},
		{jwtRegex, "[REDACTED_JWT]"},
		{urlQueryRegex, URLQueryPlaceholder},
		{unixPathRegex, PathPlaceholder},
	}
)

// String redacts sensitive fragments of the input.
func String(input string) string {
	if input == "" {
		return input
	}

	result := input
	for _, r := range replacements {
		result = r.pattern.ReplaceAllString(result, r.placeholder)
	}
	return result
}

// Error redacts an error's message. Returns the empty string for nil.
func Error(err error) string {
	if err == nil {
		return ""
	}
	return String(err.Error())
}
