// Package redact masks credentials before they reach logs or screens.
package redact

import (
	"net/url"
	"strings"
)

// Placeholder replaces every masked value.
const Placeholder = "[redacted]"

// Values returns a copy of m with every value replaced by the
// placeholder. Keys are preserved. A nil map yields nil.
func Values(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k := range m {
		out[k] = Placeholder
	}
	return out
}

// URLCredentials masks the password segment of the userinfo in raw,
// keeping the username and everything else verbatim. Strings that do
// not parse as URLs, or carry no password, are returned unchanged.
func URLCredentials(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	if _, has := u.User.Password(); !has {
		return raw
	}

	// Splice the original text rather than re-encoding the whole URL,
	// so untouched parts stay byte-identical.
	schemeEnd := strings.Index(raw, "://")
	if schemeEnd < 0 {
		u.User = url.UserPassword(u.User.Username(), Placeholder)
		return u.String()
	}
	rest := raw[schemeEnd+3:]
	at := strings.Index(rest, "@")
	if at < 0 {
		return raw
	}
	colon := strings.Index(rest[:at], ":")
	if colon < 0 {
		return raw
	}
	return raw[:schemeEnd+3] + rest[:colon] + ":" + Placeholder + rest[at:]
}
