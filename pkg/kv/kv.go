// Package kv pulls single values out of os-release style KEY=value text.
package kv

import (
	"errors"
	"strings"

	"github.com/lajosnagyuk/hostprobe/pkg/validate"
)

// MaxValueLen is the longest value accepted after control characters are
// stripped. Anything longer is treated as absent.
const MaxValueLen = 512

var (
	// ErrNotFound is returned when the key has no usable value.
	ErrNotFound = errors.New("key not found")

	// ErrInvalidKey is returned for keys outside [A-Za-z_][A-Za-z0-9_]*.
	ErrInvalidKey = errors.New("invalid key")
)

// Extract returns the value of key in text.
//
// Lines match only when they start with the key in all upper or all lower
// case followed by '='. The first match wins. One layer of matching quotes
// is removed.
func Extract(text, key string) (string, error) {
	if err := validate.Key(key); err != nil {
		return "", ErrInvalidKey
	}

	upper := strings.ToUpper(key) + "="
	lower := strings.ToLower(key) + "="

	for _, line := range strings.Split(text, "\n") {
		var raw string
		switch {
		case strings.HasPrefix(line, upper):
			raw = line[len(upper):]
		case strings.HasPrefix(line, lower):
			raw = line[len(lower):]
		default:
			continue
		}

		value := validate.StripControl(unquote(strings.TrimRight(raw, "\r")))
		if len(value) > MaxValueLen {
			return "", ErrNotFound
		}
		return value, nil
	}
	return "", ErrNotFound
}

// Lookup is Extract with a fallback value for any failure.
func Lookup(text, key, fallback string) string {
	v, err := Extract(text, key)
	if err != nil || v == "" {
		return fallback
	}
	return v
}

func unquote(s string) string {
	if len(s) >= 2 {
		if q := s[0]; (q == '"' || q == '\'') && s[len(s)-1] == q {
			return s[1 : len(s)-1]
		}
	}
	return s
}
