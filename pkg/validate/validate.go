// Package validate provides input validation and sanitizing for hostprobe.
//
// Design: Fail fast with helpful errors. Probe output is untrusted, so
// anything that ends up in a snapshot goes through a sanitizer here first.
package validate

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"
	"unicode"
)

// MaxPathLen is the longest path the probes will ever touch.
const MaxPathLen = 256

// MaxHostnameLen is the longest hostname label kept after sanitizing.
const MaxHostnameLen = 63

var keyPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Path validates a probe path is absolute, short and free of traversal.
func Path(path string) error {
	if path == "" {
		return fmt.Errorf("path is empty")
	}
	if len(path) > MaxPathLen {
		return fmt.Errorf("path too long: %d bytes (max %d)", len(path), MaxPathLen)
	}
	if strings.ContainsRune(path, 0) {
		return fmt.Errorf("path contains NUL byte")
	}
	if !filepath.IsAbs(path) {
		return fmt.Errorf("path must be absolute: %s", path)
	}

	// Check for path traversal attempts in original path
	for _, part := range strings.Split(path, "/") {
		if part == ".." {
			return fmt.Errorf("path traversal not allowed: %s", path)
		}
	}

	return nil
}

// Key validates an OS-release style key name.
func Key(key string) error {
	if !keyPattern.MatchString(key) {
		return fmt.Errorf("invalid key %q (use A-Z, 0-9, _)", key)
	}
	return nil
}

// TTL validates the cache time-to-live.
func TTL(d time.Duration) error {
	if d < time.Second {
		return fmt.Errorf("ttl too low: %v (min 1s)", d)
	}
	if d > 24*time.Hour {
		return fmt.Errorf("ttl seems too high: %v (max 24h)", d)
	}
	return nil
}

// FileSize validates the probe file size ceiling in bytes.
func FileSize(n int64) error {
	if n < 64 {
		return fmt.Errorf("max file size too low: %d (min 64)", n)
	}
	if n > 1<<20 {
		return fmt.Errorf("max file size seems too high: %d (max 1MiB)", n)
	}
	return nil
}

// CommandTimeout validates the per-command timeout.
func CommandTimeout(d time.Duration) error {
	if d < time.Second {
		return fmt.Errorf("command timeout too low: %v (min 1s)", d)
	}
	if d > 5*time.Minute {
		return fmt.Errorf("command timeout seems too high: %v (max 5m)", d)
	}
	return nil
}

// StripControl removes bytes 0x01-0x1F. NUL and DEL are left for callers
// that care; probe text never carries them in practice.
func StripControl(s string) string {
	if strings.IndexFunc(s, isControl) < 0 {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if c := s[i]; c < 0x01 || c > 0x1f {
			b.WriteByte(c)
		}
	}
	return b.String()
}

func isControl(r rune) bool {
	return r >= 0x01 && r <= 0x1f
}

// Hostname sanitizes a hostname candidate: lowercase, whitespace runs become
// "-", anything outside [a-z0-9.-] is dropped, leading/trailing dots are
// trimmed and the result is cut to 63 characters.
func Hostname(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))

	var b strings.Builder
	inSpace := false
	for _, r := range s {
		if unicode.IsSpace(r) {
			if !inSpace {
				b.WriteByte('-')
			}
			inSpace = true
			continue
		}
		inSpace = false
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '.' || r == '-' {
			b.WriteRune(r)
		}
	}

	out := strings.Trim(b.String(), ".")
	if len(out) > MaxHostnameLen {
		out = out[:MaxHostnameLen]
	}
	return out
}

// ValidHostname reports whether a sanitized hostname is usable.
func ValidHostname(s string) bool {
	if s == "" {
		return false
	}
	c := s[0]
	return (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9')
}

// Username sanitizes a username: control characters and surrounding
// whitespace removed.
func Username(s string) string {
	return strings.TrimSpace(StripControl(strings.ReplaceAll(s, "\x7f", "")))
}
