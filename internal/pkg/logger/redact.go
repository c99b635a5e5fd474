package logger

import "strings"

// RedactEmail masks an address down to a two-character hint plus domain:
// "john.doe@example.com" becomes "jo***@example.com". The domain stays
// visible because segment debugging keys on provider, never on identity.
// Local parts of two characters or fewer are masked entirely, and anything
// that is not exactly one local part and one domain collapses to "***@***".
func RedactEmail(email string) string {
	local, domain, ok := strings.Cut(email, "@")
	if !ok || strings.Contains(domain, "@") {
		return "***@***"
	}
	if len(local) <= 2 {
		return "***@" + domain
	}
	return local[:2] + "***@" + domain
}
