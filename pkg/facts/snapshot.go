// Package facts defines the detection snapshot and the normalization tables
// that produce its platform and architecture values.
package facts

import (
	"sort"
	"time"
)

// Snapshot is one complete detection result. A Snapshot is built privately
// and then published whole; published snapshots are never modified.
type Snapshot struct {
	Platform Platform `json:"platform" yaml:"platform" toml:"platform"`
	Arch     Arch     `json:"arch" yaml:"arch" toml:"arch"`

	KernelName    string `json:"kernel_name" yaml:"kernel_name" toml:"kernel_name"`
	KernelRelease string `json:"kernel_release" yaml:"kernel_release" toml:"kernel_release"`
	KernelVersion string `json:"kernel_version" yaml:"kernel_version" toml:"kernel_version"`
	Processor     string `json:"processor" yaml:"processor" toml:"processor"`

	Hostname string `json:"hostname" yaml:"hostname" toml:"hostname"`
	Username string `json:"username" yaml:"username" toml:"username"`

	Distro         string `json:"distro" yaml:"distro" toml:"distro"`
	DistroVersion  string `json:"distro_version" yaml:"distro_version" toml:"distro_version"`
	DistroCodename string `json:"distro_codename" yaml:"distro_codename" toml:"distro_codename"`
	DistroBuild    string `json:"distro_build,omitempty" yaml:"distro_build,omitempty" toml:"distro_build,omitempty"`

	IsWSL         bool `json:"is_wsl" yaml:"is_wsl" toml:"is_wsl"`
	IsContainer   bool `json:"is_container" yaml:"is_container" toml:"is_container"`
	IsVM          bool `json:"is_vm" yaml:"is_vm" toml:"is_vm"`
	IsTermux      bool `json:"is_termux" yaml:"is_termux" toml:"is_termux"`
	IsChroot      bool `json:"is_chroot" yaml:"is_chroot" toml:"is_chroot"`
	IsCI          bool `json:"is_ci" yaml:"is_ci" toml:"is_ci"`
	IsSSH         bool `json:"is_ssh" yaml:"is_ssh" toml:"is_ssh"`
	IsRoot        bool `json:"is_root" yaml:"is_root" toml:"is_root"`
	IsInteractive bool `json:"is_interactive" yaml:"is_interactive" toml:"is_interactive"`

	// Derived from Platform and Arch by Finalize.
	IsMacOS  bool `json:"is_macos" yaml:"is_macos" toml:"is_macos"`
	IsLinux  bool `json:"is_linux" yaml:"is_linux" toml:"is_linux"`
	IsBSD    bool `json:"is_bsd" yaml:"is_bsd" toml:"is_bsd"`
	IsUnix   bool `json:"is_unix" yaml:"is_unix" toml:"is_unix"`
	IsARM    bool `json:"is_arm" yaml:"is_arm" toml:"is_arm"`
	IsX86_64 bool `json:"is_x86_64" yaml:"is_x86_64" toml:"is_x86_64"`

	// Undetermined names boolean facts that were reported false only
	// because no probe could decide them.
	Undetermined []string `json:"undetermined,omitempty" yaml:"undetermined,omitempty" toml:"undetermined,omitempty"`

	DetectedAt time.Time     `json:"detected_at" yaml:"detected_at" toml:"detected_at"`
	Duration   time.Duration `json:"duration_ns" yaml:"duration_ns" toml:"duration_ns"`
	Signature  string        `json:"signature" yaml:"signature" toml:"signature"`
	Version    string        `json:"version" yaml:"version" toml:"version"`
}

// New returns a snapshot with every string field set to Unknown.
func New() *Snapshot {
	return &Snapshot{
		Platform:       PlatformUnknown,
		Arch:           ArchUnknown,
		KernelName:     Unknown,
		KernelRelease:  Unknown,
		KernelVersion:  Unknown,
		Processor:      Unknown,
		Hostname:       "localhost",
		Username:       Unknown,
		Distro:         Unknown,
		DistroVersion:  Unknown,
		DistroCodename: Unknown,
	}
}

// Finalize fills the derived booleans and normalizes empty strings to
// Unknown. It must be called once, before the snapshot is published.
func (s *Snapshot) Finalize() {
	for _, f := range []*string{
		&s.KernelName, &s.KernelRelease, &s.KernelVersion, &s.Processor,
		&s.Username, &s.Distro, &s.DistroVersion, &s.DistroCodename,
	} {
		if *f == "" {
			*f = Unknown
		}
	}
	if s.Platform == "" {
		s.Platform = PlatformUnknown
	}
	if s.Arch == "" {
		s.Arch = ArchUnknown
	}
	if s.Hostname == "" {
		s.Hostname = "localhost"
	}

	s.IsMacOS = s.Platform == Darwin
	s.IsLinux = s.Platform == Linux
	s.IsBSD = s.Platform.IsBSD()
	s.IsUnix = s.Platform.IsUnix()
	s.IsARM = s.Arch == AArch64 || s.Arch == ARM
	s.IsX86_64 = s.Arch == X86_64

	sort.Strings(s.Undetermined)
}

// Clone returns a deep copy.
func (s *Snapshot) Clone() *Snapshot {
	if s == nil {
		return nil
	}
	c := *s
	c.Undetermined = append([]string(nil), s.Undetermined...)
	return &c
}

// MarkUndetermined records that fact could not be decided.
func (s *Snapshot) MarkUndetermined(fact string) {
	for _, f := range s.Undetermined {
		if f == fact {
			return
		}
	}
	s.Undetermined = append(s.Undetermined, fact)
}
