package facts

import (
	"sort"
	"strings"
)

// Unknown is the explicit value for anything that could not be determined.
const Unknown = "unknown"

// Platform is a normalized operating system family.
type Platform string

// Supported platforms.
const (
	Darwin          Platform = "darwin"
	Linux           Platform = "linux"
	FreeBSD         Platform = "freebsd"
	OpenBSD         Platform = "openbsd"
	NetBSD          Platform = "netbsd"
	DragonFly       Platform = "dragonfly"
	Solaris         Platform = "solaris"
	Windows         Platform = "windows"
	AIX             Platform = "aix"
	HPUX            Platform = "hpux"
	Haiku           Platform = "haiku"
	QNX             Platform = "qnx"
	Minix           Platform = "minix"
	PlatformUnknown Platform = Unknown
)

// Arch is a normalized CPU architecture.
type Arch string

// Supported architectures.
const (
	X86_64      Arch = "x86_64"
	I386        Arch = "i386"
	AArch64     Arch = "aarch64"
	ARM         Arch = "arm"
	PowerPC     Arch = "powerpc"
	PowerPC64   Arch = "powerpc64"
	MIPS        Arch = "mips"
	MIPS64      Arch = "mips64"
	RISCV       Arch = "riscv"
	RISCV64     Arch = "riscv64"
	S390        Arch = "s390"
	S390X       Arch = "s390x"
	LoongArch   Arch = "loongarch"
	SPARC       Arch = "sparc"
	Alpha       Arch = "alpha"
	IA64        Arch = "ia64"
	ArchUnknown Arch = Unknown
)

// Platforms lists every platform value, unknown last.
var Platforms = []Platform{
	Darwin, Linux, FreeBSD, OpenBSD, NetBSD, DragonFly, Solaris, Windows,
	AIX, HPUX, Haiku, QNX, Minix, PlatformUnknown,
}

// Arches lists every architecture value, unknown last.
var Arches = []Arch{
	X86_64, I386, AArch64, ARM, PowerPC, PowerPC64, MIPS, MIPS64, RISCV,
	RISCV64, S390, S390X, LoongArch, SPARC, Alpha, IA64, ArchUnknown,
}

// rule maps a lowercase input prefix to a canonical value.
type rule[T any] struct {
	prefix string
	value  T
}

// table matches the longest rule prefix.
type table[T any] struct {
	rules    []rule[T]
	fallback T
}

func newTable[T any](fallback T, rules ...rule[T]) table[T] {
	sort.SliceStable(rules, func(i, j int) bool {
		return len(rules[i].prefix) > len(rules[j].prefix)
	})
	return table[T]{rules: rules, fallback: fallback}
}

func (t table[T]) lookup(s string) T {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return t.fallback
	}
	for _, r := range t.rules {
		if strings.HasPrefix(s, r.prefix) {
			return r.value
		}
	}
	return t.fallback
}

// Inputs come from OSTYPE (linux-gnu, darwin23, freebsd14.0, msys) and from
// uname -s (Linux, Darwin, SunOS, MINGW64_NT-10.0, HP-UX).
var platformTable = newTable(PlatformUnknown,
	rule[Platform]{"darwin", Darwin},
	rule[Platform]{"macos", Darwin},
	rule[Platform]{"linux", Linux},
	rule[Platform]{"android", Linux},
	rule[Platform]{"freebsd", FreeBSD},
	rule[Platform]{"gnu/kfreebsd", FreeBSD},
	rule[Platform]{"openbsd", OpenBSD},
	rule[Platform]{"netbsd", NetBSD},
	rule[Platform]{"dragonfly", DragonFly},
	rule[Platform]{"solaris", Solaris},
	rule[Platform]{"sunos", Solaris},
	rule[Platform]{"illumos", Solaris},
	rule[Platform]{"windows", Windows},
	rule[Platform]{"win32", Windows},
	rule[Platform]{"msys", Windows},
	rule[Platform]{"mingw", Windows},
	rule[Platform]{"cygwin", Windows},
	rule[Platform]{"aix", AIX},
	rule[Platform]{"hp-ux", HPUX},
	rule[Platform]{"hpux", HPUX},
	rule[Platform]{"haiku", Haiku},
	rule[Platform]{"qnx", QNX},
	rule[Platform]{"nto-qnx", QNX},
	rule[Platform]{"minix", Minix},
)

var archTable = newTable(ArchUnknown,
	rule[Arch]{"x86_64", X86_64},
	rule[Arch]{"x86-64", X86_64},
	rule[Arch]{"amd64", X86_64},
	rule[Arch]{"x64", X86_64},
	rule[Arch]{"x86", I386},
	rule[Arch]{"i386", I386},
	rule[Arch]{"386", I386},
	rule[Arch]{"i486", I386},
	rule[Arch]{"i586", I386},
	rule[Arch]{"i686", I386},
	rule[Arch]{"i86pc", I386},
	rule[Arch]{"aarch64", AArch64},
	rule[Arch]{"arm64", AArch64},
	rule[Arch]{"arm", ARM},
	rule[Arch]{"ppc64", PowerPC64},
	rule[Arch]{"powerpc64", PowerPC64},
	rule[Arch]{"ppc", PowerPC},
	rule[Arch]{"powerpc", PowerPC},
	rule[Arch]{"mips64", MIPS64},
	rule[Arch]{"mips", MIPS},
	rule[Arch]{"riscv64", RISCV64},
	rule[Arch]{"riscv", RISCV},
	rule[Arch]{"s390x", S390X},
	rule[Arch]{"s390", S390},
	rule[Arch]{"loongarch", LoongArch},
	rule[Arch]{"loong64", LoongArch},
	rule[Arch]{"sparc", SPARC},
	rule[Arch]{"sun4", SPARC},
	rule[Arch]{"alpha", Alpha},
	rule[Arch]{"ia64", IA64},
)

// NormalizePlatform maps an OS type or kernel name to a Platform.
func NormalizePlatform(s string) Platform {
	return platformTable.lookup(s)
}

// NormalizeArch maps a machine or host type to an Arch.
func NormalizeArch(s string) Arch {
	return archTable.lookup(s)
}

// IsBSD reports whether p is one of the BSD family.
func (p Platform) IsBSD() bool {
	switch p {
	case FreeBSD, OpenBSD, NetBSD, DragonFly:
		return true
	}
	return false
}

// IsUnix reports whether p is a Unix-like platform.
func (p Platform) IsUnix() bool {
	return p != Windows && p != PlatformUnknown && p != ""
}

// Known reports whether p is a recognized platform.
func (p Platform) Known() bool {
	return p != PlatformUnknown && p != ""
}

// Known reports whether a is a recognized architecture.
func (a Arch) Known() bool {
	return a != ArchUnknown && a != ""
}
