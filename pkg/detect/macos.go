package detect

import (
	"context"
	"strings"

	"github.com/lajosnagyuk/hostprobe/pkg/executor"
	"github.com/lajosnagyuk/hostprobe/pkg/facts"
)

const systemVersionPlist = "/System/Library/CoreServices/SystemVersion.plist"

// genericMacCodename is used for versions missing from the tables.
const genericMacCodename = "macos"

// macCodenames maps the major version of macOS 11 and later.
var macCodenames = map[string]string{
	"26": "tahoe",
	"15": "sequoia",
	"14": "sonoma",
	"13": "ventura",
	"12": "monterey",
	"11": "bigsur",
}

// macLegacyCodenames maps 10.x releases by major.minor.
var macLegacyCodenames = map[string]string{
	"10.16": "bigsur",
	"10.15": "catalina",
	"10.14": "mojave",
	"10.13": "highsierra",
	"10.12": "sierra",
	"10.11": "elcapitan",
	"10.10": "yosemite",
	"10.9":  "mavericks",
	"10.8":  "mountainlion",
	"10.7":  "lion",
	"10.6":  "snowleopard",
	"10.5":  "leopard",
	"10.4":  "tiger",
}

func (d *Detector) detectMacOS(ctx context.Context) distroFacts {
	f := distroFacts{
		id:      "macos",
		version: cleanField(d.cmd(ctx, executor.CmdSwVers, "-productVersion")),
		build:   strings.TrimSpace(d.cmd(ctx, executor.CmdSwVers, "-buildVersion")),
	}

	if f.version == facts.Unknown && d.plistReadable(ctx) {
		f.version = cleanField(d.plistValue(ctx, "ProductVersion"))
		if f.build == "" {
			f.build = strings.TrimSpace(d.plistValue(ctx, "ProductBuildVersion"))
		}
	}

	f.codename = macCodename(f.version)
	return f
}

// plistReadable reports whether the bounded reader accepts the version
// plist. The content itself is decoded by plutil.
func (d *Detector) plistReadable(ctx context.Context) bool {
	return d.read(ctx, systemVersionPlist) != ""
}

func (d *Detector) plistValue(ctx context.Context, key string) string {
	return d.cmd(ctx, executor.CmdPlutil, "-extract", key, "raw", "-o", "-", systemVersionPlist)
}

// macCodename maps a product version to its marketing name.
func macCodename(version string) string {
	if version == "" || version == facts.Unknown {
		return facts.Unknown
	}
	parts := strings.Split(version, ".")
	if parts[0] == "10" && len(parts) >= 2 {
		if name, ok := macLegacyCodenames[parts[0]+"."+parts[1]]; ok {
			return name
		}
		return genericMacCodename
	}
	if name, ok := macCodenames[parts[0]]; ok {
		return name
	}
	return genericMacCodename
}
