package logger

import (
	"log/slog"
	"net/url"
	"strings"
)

// Attribute keys containing one of these are never logged in clear.
var sensitiveKeyPatterns = []string{"password", "secret", "token", "credential", "auth", "bearer", "header"}

const (
	redactedValue = "***REDACTED***"
	maskedPart    = "xxxxx"
)

// redactSensitive is the handler's ReplaceAttr. URL values lose their
// password and query values; any other string under a sensitive key is
// replaced outright.
func redactSensitive(a slog.Attr) slog.Attr {
	switch a.Value.Kind() {
	case slog.KindString:
		s := a.Value.String()
		if s == "" {
			return a
		}
		if IsSensitiveKey(a.Key) {
			return slog.String(a.Key, redactedValue)
		}
		if masked := RedactURL(s); masked != s {
			return slog.String(a.Key, masked)
		}
	case slog.KindGroup:
		attrs := a.Value.Group()
		out := make([]slog.Attr, len(attrs))
		for i, ga := range attrs {
			out[i] = redactSensitive(ga)
		}
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(out...)}
	}
	return a
}

// RedactURL masks the password and every query value of an absolute URL,
// such as an OTLP endpoint carrying an API key. Anything else comes back
// unchanged.
func RedactURL(s string) string {
	if !strings.Contains(s, "://") {
		return s
	}
	u, err := url.Parse(s)
	if err != nil || u.Host == "" {
		return s
	}

	changed := false
	if u.User != nil {
		if _, ok := u.User.Password(); ok {
			u.User = url.UserPassword(u.User.Username(), maskedPart)
			changed = true
		}
	}
	if u.RawQuery != "" {
		q := u.Query()
		for k := range q {
			q.Set(k, maskedPart)
		}
		u.RawQuery = q.Encode()
		changed = true
	}
	if !changed {
		return s
	}
	return u.String()
}

// IsSensitiveKey reports whether an attribute key names a credential.
func IsSensitiveKey(key string) bool {
	key = strings.ToLower(key)
	for _, p := range sensitiveKeyPatterns {
		if strings.Contains(key, p) {
			return true
		}
	}
	return false
}
