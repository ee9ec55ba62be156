package remote

import "strings"

// FormatCredential renders the Authorization header value for the configured credential.
// "token key:secret" is kept, "Bearer x" becomes "token x", a bare "key:secret" gains the
// "token " prefix and anything else is sent verbatim.
func FormatCredential(credential string) string {
	c := strings.TrimSpace(credential)
	lower := strings.ToLower(c)
	switch {
	case strings.HasPrefix(lower, "token "):
		return c
	case strings.HasPrefix(lower, "bearer "):
		return "token " + strings.TrimSpace(c[len("bearer "):])
	case strings.Contains(c, ":") && !strings.ContainsAny(c, " \t"):
		return "token " + c
	default:
		return c
	}
}
