package fileread

import (
	"path"
	"strings"
)

// deniedExact are single files that are never read.
var deniedExact = map[string]string{
	"/proc/kcore":                     "kernel memory image",
	"/proc/kmsg":                      "kernel log stream",
	"/proc/sysrq-trigger":             "sysrq trigger",
	"/dev/random":                     "kernel rng",
	"/dev/urandom":                    "kernel rng",
	"/dev/hwrng":                      "hardware rng",
	"/proc/sys/kernel/random/uuid":    "kernel rng",
	"/proc/sys/kernel/random/boot_id": "kernel rng",
}

// deniedPrefixes are whole trees that are never read.
var deniedPrefixes = []struct {
	prefix string
	reason string
}{
	{"/dev/", "device node"},
	{"/sys/kernel/debug/", "debugfs"},
	{"/sys/kernel/tracing/", "tracefs"},
}

// deniedProcSubdirs are per-process directories under /proc/<pid>/.
var deniedProcSubdirs = map[string]string{
	"fd":     "process file descriptor",
	"fdinfo": "process file descriptor",
	"task":   "process task tree",
	"mem":    "process memory",
}

// checkDenylist returns a reason when p falls in a denied class, or "".
// p must be absolute and clean.
func checkDenylist(p string) string {
	p = path.Clean(p)
	if reason, ok := deniedExact[p]; ok {
		return reason
	}
	if p == "/dev" || p == "/sys/kernel/debug" {
		return "special directory"
	}
	for _, d := range deniedPrefixes {
		if strings.HasPrefix(p, d.prefix) {
			return d.reason
		}
	}

	// /proc/<anything>/fd/..., /proc/self/task/... and friends.
	parts := strings.Split(strings.TrimPrefix(p, "/"), "/")
	if len(parts) >= 3 && parts[0] == "proc" {
		if reason, ok := deniedProcSubdirs[parts[2]]; ok {
			return reason
		}
	}
	return ""
}
