package cache

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Signature summarizes the environment a snapshot was detected in. Any
// difference between the recorded and the current signature invalidates the
// snapshot.
type Signature struct {
	OSType   string // $OSTYPE
	MachType string // $MACHTYPE
	HostType string // $HOSTTYPE
	EUID     int
	UID      int
	Version  string

	// Live kernel name and machine, read from the kernel when the signature
	// is taken rather than from the environment.
	UnameS string
	UnameM string
}

// String returns the signature as a field-separated string.
func (s Signature) String() string {
	return strings.Join([]string{
		s.OSType,
		s.MachType,
		s.HostType,
		strconv.Itoa(s.EUID),
		strconv.Itoa(s.UID),
		s.Version,
		s.UnameS,
		s.UnameM,
	}, "|")
}

// Sum returns the xxhash64 of String.
func (s Signature) Sum() uint64 {
	return xxhash.Sum64String(s.String())
}

// ID returns the hash in the form stored on snapshots.
func (s Signature) ID() string {
	return fmt.Sprintf("%016x", s.Sum())
}

// ShortID returns a short version suitable for display.
func (s Signature) ShortID() string {
	return fmt.Sprintf("sig-%08x", s.Sum()>>32)
}
