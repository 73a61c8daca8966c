package detect

import (
	"context"
	"strings"

	"github.com/lajosnagyuk/hostprobe/pkg/executor"
	"github.com/lajosnagyuk/hostprobe/pkg/facts"
	"github.com/lajosnagyuk/hostprobe/pkg/validate"
)

// hostnameFiles are read in order after every command has failed.
var hostnameFiles = []string{
	"/etc/hostname",
	"/proc/sys/kernel/hostname",
	"/etc/nodename",
	"/etc/myname",
}

// hostnameSources lists every hostname source in the order they are tried.
// Each yields an already sanitized candidate.
func (d *Detector) hostnameSources(ctx context.Context, k kernel) []source[string] {
	sources := []source[string]{
		{"$HOST", func() string { return validate.Hostname(d.env("HOST")) }},
		{"$HOSTNAME", func() string { return validate.Hostname(d.env("HOSTNAME")) }},
		{"$COMPUTERNAME", func() string { return validate.Hostname(d.env("COMPUTERNAME")) }},
		{"hostname -s", func() string { return validate.Hostname(d.cmd(ctx, executor.CmdHostname, "-s")) }},
		{"hostname", func() string { return validate.Hostname(d.cmd(ctx, executor.CmdHostname)) }},
		{"uname -n", func() string { return validate.Hostname(k.node) }},
	}
	for _, path := range hostnameFiles {
		sources = append(sources, source[string]{path, func() string {
			return validate.Hostname(firstLine(d.read(ctx, path)))
		}})
	}
	return sources
}

func (d *Detector) detectHostname(ctx context.Context, k kernel) string {
	name, from, ok := first(d.hostnameSources(ctx, k), validate.ValidHostname)
	if !ok {
		d.logger.Debug("hostname: no source, using localhost")
		return "localhost"
	}
	d.logger.Debug("hostname %s from %s", name, from)
	return name
}

func (d *Detector) usernameSources(ctx context.Context) []source[string] {
	return []source[string]{
		{"$USER", func() string { return validate.Username(d.env("USER")) }},
		{"$LOGNAME", func() string { return validate.Username(d.env("LOGNAME")) }},
		{"id -un", func() string { return validate.Username(d.cmd(ctx, executor.CmdID, "-un")) }},
	}
}

func (d *Detector) detectUsername(ctx context.Context) string {
	name, _, ok := first(d.usernameSources(ctx), nonEmpty)
	if !ok {
		return facts.Unknown
	}
	return name
}

// firstLine returns the first line of s, trimmed.
func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return strings.TrimSpace(line)
}
