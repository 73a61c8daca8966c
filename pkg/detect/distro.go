package detect

import (
	"context"
	"regexp"
	"strings"

	"github.com/lajosnagyuk/hostprobe/pkg/executor"
	"github.com/lajosnagyuk/hostprobe/pkg/facts"
	"github.com/lajosnagyuk/hostprobe/pkg/kv"
)

// distroFacts is the distribution identity.
type distroFacts struct {
	id       string
	version  string
	codename string
	build    string
}

func unknownDistro() distroFacts {
	return distroFacts{id: facts.Unknown, version: facts.Unknown, codename: facts.Unknown}
}

func (f distroFacts) known() bool {
	return f.id != "" && f.id != facts.Unknown
}

var osReleaseFiles = []string{"/etc/os-release", "/usr/lib/os-release"}

// legacyMarker is a per-distribution release file predating os-release.
type legacyMarker struct {
	path string
	id   string
}

// legacyMarkers is ordered so that derivatives come before the files they
// also ship (a Fedora host has /etc/redhat-release too).
var legacyMarkers = []legacyMarker{
	{"/etc/alpine-release", "alpine"},
	{"/etc/arch-release", "arch"},
	{"/etc/gentoo-release", "gentoo"},
	{"/etc/fedora-release", "fedora"},
	{"/etc/rocky-release", "rocky"},
	{"/etc/almalinux-release", "almalinux"},
	{"/etc/centos-release", "centos"},
	{"/etc/oracle-release", "ol"},
	{"/etc/redhat-release", "rhel"},
	{"/etc/SuSE-release", "suse"},
	{"/etc/slackware-version", "slackware"},
	{"/etc/mandriva-release", "mandriva"},
	{"/etc/void-release", "void"},
	{"/etc/debian_version", "debian"},
}

var (
	versionRe  = regexp.MustCompile(`[0-9]+(\.[0-9]+)*`)
	codenameRe = regexp.MustCompile(`\(([^)]+)\)`)
)

// distroAliases folds vendor spellings into canonical family names.
var distroAliases = map[string]string{
	"opensuse":               "opensuse",
	"opensuse-leap":          "opensuse",
	"opensuse-tumbleweed":    "opensuse",
	"opensuse-microos":       "opensuse",
	"opensuseproject":        "opensuse",
	"suse":                   "sles",
	"sles":                   "sles",
	"sled":                   "sles",
	"sles_sap":               "sles",
	"suselinux":              "sles",
	"redhatenterpriseserver": "rhel",
	"redhatenterprise":       "rhel",
	"redhat":                 "rhel",
	"archlinux":              "arch",
	"manjarolinux":           "manjaro",
	"linuxmint":              "linuxmint",
	"mint":                   "linuxmint",
	"amazon":                 "amzn",
	"amazonlinux":            "amzn",
	"oracleserver":           "ol",
	"oraclelinux":            "ol",
	"rockylinux":             "rocky",
	"almalinux":              "almalinux",
	"centosstream":           "centos",
	"pop":                    "pop",
	"elementaryos":           "elementary",
}

// canonicalDistro lowercases id, drops spaces and applies the alias table.
func canonicalDistro(id string) string {
	id = strings.ToLower(strings.TrimSpace(id))
	if id == "" || id == "n/a" {
		return facts.Unknown
	}
	id = strings.NewReplacer(" ", "", "\"", "", "'", "").Replace(id)
	if alias, ok := distroAliases[id]; ok {
		return alias
	}
	return id
}

// cleanField maps the placeholders tools print for missing values to Unknown.
func cleanField(s string) string {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "", "n/a", "none", "unknown":
		return facts.Unknown
	}
	return s
}

func (d *Detector) detectDistro(ctx context.Context, platform facts.Platform, k kernel) distroFacts {
	var f distroFacts
	switch {
	case platform == facts.Linux:
		f = d.detectLinuxDistro(ctx)
	case platform == facts.Darwin:
		f = d.detectMacOS(ctx)
	case platform.IsBSD():
		f = bsdDistro(platform, k.release)
	default:
		f = unknownDistro()
	}
	if f.known() {
		d.logger.Debug("distro %s %s (%s)", f.id, f.version, f.codename)
	}
	return f
}

// linuxDistroSources are tried in order until one yields an identifier.
func (d *Detector) linuxDistroSources(ctx context.Context) []source[distroFacts] {
	return []source[distroFacts]{
		{"lsb_release", func() distroFacts { return d.fromLSBRelease(ctx) }},
		{"os-release", func() distroFacts { return d.fromOSRelease(ctx) }},
		{"/etc/lsb-release", func() distroFacts { return d.fromLSBReleaseFile(ctx) }},
		{"legacy markers", func() distroFacts { return d.fromLegacyMarkers(ctx) }},
	}
}

func (d *Detector) detectLinuxDistro(ctx context.Context) distroFacts {
	f, from, ok := first(d.linuxDistroSources(ctx), distroFacts.known)
	if !ok {
		return unknownDistro()
	}
	d.logger.Debug("distro from %s", from)
	f.id = canonicalDistro(f.id)
	return f
}

func (d *Detector) fromLSBRelease(ctx context.Context) distroFacts {
	id := d.cmd(ctx, executor.CmdLSBRelease, "-si")
	if cleanField(id) == facts.Unknown {
		return unknownDistro()
	}
	return distroFacts{
		id:       id,
		version:  cleanField(d.cmd(ctx, executor.CmdLSBRelease, "-sr")),
		codename: cleanField(d.cmd(ctx, executor.CmdLSBRelease, "-sc")),
	}
}

func (d *Detector) fromOSRelease(ctx context.Context) distroFacts {
	for _, path := range osReleaseFiles {
		text := d.read(ctx, path)
		if text == "" {
			continue
		}
		codename := kv.Lookup(text, "VERSION_CODENAME", "")
		if codename == "" {
			codename = kv.Lookup(text, "UBUNTU_CODENAME", facts.Unknown)
		}
		return distroFacts{
			id:       cleanField(kv.Lookup(text, "ID", facts.Unknown)),
			version:  cleanField(kv.Lookup(text, "VERSION_ID", facts.Unknown)),
			codename: cleanField(codename),
		}
	}
	return unknownDistro()
}

func (d *Detector) fromLSBReleaseFile(ctx context.Context) distroFacts {
	text := d.read(ctx, "/etc/lsb-release")
	if text == "" {
		return unknownDistro()
	}
	return distroFacts{
		id:       cleanField(kv.Lookup(text, "DISTRIB_ID", facts.Unknown)),
		version:  cleanField(kv.Lookup(text, "DISTRIB_RELEASE", facts.Unknown)),
		codename: cleanField(kv.Lookup(text, "DISTRIB_CODENAME", facts.Unknown)),
	}
}

func (d *Detector) fromLegacyMarkers(ctx context.Context) distroFacts {
	for _, m := range legacyMarkers {
		text := d.read(ctx, m.path)
		if text == "" {
			continue
		}
		return parseLegacyMarker(m.id, text)
	}
	return unknownDistro()
}

// parseLegacyMarker takes the version number and the parenthesized codename
// from the first line of a release file, e.g. "CentOS release 6.10 (Final)".
func parseLegacyMarker(id, text string) distroFacts {
	line := firstLine(text)
	f := distroFacts{id: id, version: facts.Unknown, codename: facts.Unknown}
	if v := versionRe.FindString(line); v != "" {
		f.version = v
	}
	if m := codenameRe.FindStringSubmatch(line); m != nil {
		f.codename = cleanField(m[1])
	}
	return f
}

// bsdDistro names the distribution after the platform and takes the
// version from the kernel release ("14.0-RELEASE-p3" gives "14.0").
func bsdDistro(platform facts.Platform, release string) distroFacts {
	f := distroFacts{id: string(platform), version: facts.Unknown, codename: facts.Unknown}
	if v := versionRe.FindString(release); v != "" && strings.HasPrefix(release, v) {
		f.version = v
	}
	return f
}
