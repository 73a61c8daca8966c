package kv

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

const osRelease = "ID=ubuntu\nVERSION_ID=\"22.04\"\n"

func TestExtract(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		key     string
		want    string
		wantErr error
	}{
		{"lower key", osRelease, "id", "ubuntu", nil},
		{"quoted", osRelease, "VERSION_ID", "22.04", nil},
		{"missing", osRelease, "missing", "", ErrNotFound},
		{"single quotes", "NAME='Arch Linux'\n", "NAME", "Arch Linux", nil},
		{"one layer only", `X=""quoted""`, "X", `"quoted"`, nil},
		{"mismatched quotes kept", `X="half'`, "X", `"half'`, nil},
		{"first wins", "ID=first\nID=second\n", "ID", "first", nil},
		{"lowercase line", "id=arch\n", "ID", "arch", nil},
		{"mixed case line ignored", "Id=nope\n", "id", "", ErrNotFound},
		{"prefix not confused", "IDENT=x\nID_LIKE=debian\nID=fedora\n", "ID", "fedora", nil},
		{"indented ignored", "  ID=debian\n", "ID", "", ErrNotFound},
		{"crlf", "ID=alpine\r\n", "ID", "alpine", nil},
		{"control stripped", "ID=ub\x01un\x1btu\n", "ID", "ubuntu", nil},
		{"empty value", "ID=\n", "ID", "", nil},
		{"invalid key", osRelease, "1ID", "", ErrInvalidKey},
		{"key with dash", osRelease, "VERSION-ID", "", ErrInvalidKey},
		{"empty key", osRelease, "", "", ErrInvalidKey},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Extract(tt.text, tt.key)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtractOversizedValue(t *testing.T) {
	long := strings.Repeat("a", MaxValueLen+1)
	_, err := Extract("PRETTY_NAME="+long+"\nPRETTY_NAME=short\n", "PRETTY_NAME")
	assert.ErrorIs(t, err, ErrNotFound)

	exact := strings.Repeat("a", MaxValueLen)
	got, err := Extract("X=\""+exact+"\"", "X")
	assert.NoError(t, err)
	assert.Equal(t, exact, got)
}

func TestLookup(t *testing.T) {
	assert.Equal(t, "ubuntu", Lookup(osRelease, "ID", "unknown"))
	assert.Equal(t, "unknown", Lookup(osRelease, "VERSION_CODENAME", "unknown"))
	assert.Equal(t, "unknown", Lookup("ID=\n", "ID", "unknown"))
}
