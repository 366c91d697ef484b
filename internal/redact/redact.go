// Package redact masks secrets in request context before it leaves the
// process, such as in webhook alerts.
package redact

import (
	"maps"
	"regexp"
	"strings"
)

// Mask replaces a redacted value.
const Mask = "***"

// DefaultSecretKeys are context keys whose values are always masked.
// A key matches when it contains one of these, case-insensitively.
var DefaultSecretKeys = []string{
	"password", "passwd", "secret", "token", "api_key", "apikey",
	"auth", "credential", "private_key", "session",
}

// credKVRe matches key=value or key: value pairs where the key suggests a secret.
var credKVRe = regexp.MustCompile(`(?i)((?:password|passwd|secret|token|api_key|apikey|auth)[ \t]*[=:][ \t]*)(\S+)`)

// Credentials masks the value half of every credential-looking pair in text.
func Credentials(text string) string {
	return credKVRe.ReplaceAllString(text, "${1}"+Mask)
}

// Context returns a copy of ctx with secret-keyed values masked and
// credential pairs inside the remaining values masked. Extra keys extend
// DefaultSecretKeys. A nil map stays nil.
func Context(ctx map[string]string, extraKeys ...string) map[string]string {
	if ctx == nil {
		return nil
	}
	out := maps.Clone(ctx)
	for k, v := range out {
		if secretKey(k, extraKeys) {
			out[k] = Mask
			continue
		}
		out[k] = Credentials(v)
	}
	return out
}

func secretKey(key string, extra []string) bool {
	k := strings.ToLower(key)
	for _, list := range [][]string{DefaultSecretKeys, extra} {
		for _, s := range list {
			if strings.Contains(k, strings.ToLower(s)) {
				return true
			}
		}
	}
	return false
}
