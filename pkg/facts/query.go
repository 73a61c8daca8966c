package facts

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownField is returned by Get for names outside FieldNames.
	ErrUnknownField = errors.New("unknown field")

	// ErrUnknownPredicate is returned by Is for names outside PredicateNames.
	ErrUnknownPredicate = errors.New("unknown predicate")
)

// FieldNames lists the names accepted by Get, in display order.
var FieldNames = []string{
	"platform", "arch", "kernel", "kernel-release", "kernel-version",
	"processor", "hostname", "username", "distro", "distro-version",
	"codename", "build", "signature",
}

// PredicateNames lists the names accepted by Is, in display order.
var PredicateNames = []string{
	"wsl", "container", "vm", "termux", "chroot", "ci", "ssh", "root",
	"interactive", "macos", "linux", "bsd", "unix", "arm", "x86_64",
}

// Get returns a string field by name.
func (s *Snapshot) Get(name string) (string, error) {
	switch name {
	case "platform":
		return string(s.Platform), nil
	case "arch":
		return string(s.Arch), nil
	case "kernel":
		return s.KernelName, nil
	case "kernel-release":
		return s.KernelRelease, nil
	case "kernel-version":
		return s.KernelVersion, nil
	case "processor":
		return s.Processor, nil
	case "hostname":
		return s.Hostname, nil
	case "username":
		return s.Username, nil
	case "distro":
		return s.Distro, nil
	case "distro-version":
		return s.DistroVersion, nil
	case "codename":
		return s.DistroCodename, nil
	case "build":
		return s.DistroBuild, nil
	case "signature":
		return s.Signature, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownField, name)
}

// Is evaluates a boolean fact by name.
func (s *Snapshot) Is(name string) (bool, error) {
	switch name {
	case "wsl":
		return s.IsWSL, nil
	case "container":
		return s.IsContainer, nil
	case "vm":
		return s.IsVM, nil
	case "termux":
		return s.IsTermux, nil
	case "chroot":
		return s.IsChroot, nil
	case "ci":
		return s.IsCI, nil
	case "ssh":
		return s.IsSSH, nil
	case "root":
		return s.IsRoot, nil
	case "interactive":
		return s.IsInteractive, nil
	case "macos":
		return s.IsMacOS, nil
	case "linux":
		return s.IsLinux, nil
	case "bsd":
		return s.IsBSD, nil
	case "unix":
		return s.IsUnix, nil
	case "arm":
		return s.IsARM, nil
	case "x86_64":
		return s.IsX86_64, nil
	}
	return false, fmt.Errorf("%w: %q", ErrUnknownPredicate, name)
}
