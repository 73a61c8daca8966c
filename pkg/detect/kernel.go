package detect

import (
	"context"
	"runtime"
	"strings"

	"github.com/lajosnagyuk/hostprobe/pkg/executor"
	"github.com/lajosnagyuk/hostprobe/pkg/facts"
)

// The platform the binary was built for, used when nothing else is known.
var (
	buildGOOS   = runtime.GOOS
	buildGOARCH = runtime.GOARCH
)

// kernel is the raw kernel identity.
type kernel struct {
	name      string // uname -s
	machine   string // uname -m
	release   string // uname -r
	version   string // uname -v
	node      string // uname -n
	processor string // uname -p
}

// probeKernel runs uname once per field. Outside strict mode, fields the
// sandboxed probes could not provide are taken from the uname syscall.
func (d *Detector) probeKernel(ctx context.Context) kernel {
	var k kernel
	d.runAll(ctx,
		func(ctx context.Context) { k.name = d.cmd(ctx, executor.CmdUname, "-s") },
		func(ctx context.Context) { k.machine = d.cmd(ctx, executor.CmdUname, "-m") },
		func(ctx context.Context) { k.release = d.cmd(ctx, executor.CmdUname, "-r") },
		func(ctx context.Context) { k.version = d.cmd(ctx, executor.CmdUname, "-v") },
		func(ctx context.Context) { k.node = d.cmd(ctx, executor.CmdUname, "-n") },
		func(ctx context.Context) { k.processor = d.cmd(ctx, executor.CmdUname, "-p") },
	)

	if d.cfg.Strict || (k.name != "" && k.machine != "" && k.release != "" && k.version != "" && k.node != "") {
		return k
	}
	u, err := d.sys.Uname()
	if err != nil {
		d.logger.Skip("uname syscall: %v", err)
		return k
	}
	d.logger.Debug("filling kernel identity from uname syscall")
	fill(&k.name, u.Sysname)
	fill(&k.machine, u.Machine)
	fill(&k.release, u.Release)
	fill(&k.version, u.Version)
	fill(&k.node, u.Nodename)
	return k
}

func fill(dst *string, v string) {
	if *dst == "" {
		*dst = strings.TrimSpace(v)
	}
}

func (d *Detector) platformSources(k kernel) []source[facts.Platform] {
	return []source[facts.Platform]{
		{"OSTYPE", func() facts.Platform { return facts.NormalizePlatform(d.env("OSTYPE")) }},
		{"uname -s", func() facts.Platform { return facts.NormalizePlatform(k.name) }},
		{"build", func() facts.Platform { return facts.NormalizePlatform(buildGOOS) }},
	}
}

func (d *Detector) detectPlatform(k kernel) facts.Platform {
	p, from, ok := first(d.platformSources(k), facts.Platform.Known)
	if !ok {
		return facts.PlatformUnknown
	}
	d.logger.Debug("platform %s from %s", p, from)
	return p
}

func (d *Detector) archSources(k kernel) []source[facts.Arch] {
	return []source[facts.Arch]{
		{"uname -m", func() facts.Arch { return facts.NormalizeArch(k.machine) }},
		{"HOSTTYPE", func() facts.Arch { return facts.NormalizeArch(d.env("HOSTTYPE")) }},
		{"MACHTYPE", func() facts.Arch {
			mt, _, _ := strings.Cut(d.env("MACHTYPE"), "-")
			return facts.NormalizeArch(mt)
		}},
		{"CPUTYPE", func() facts.Arch { return facts.NormalizeArch(d.env("CPUTYPE")) }},
		{"build", func() facts.Arch { return facts.NormalizeArch(buildGOARCH) }},
	}
}

func (d *Detector) detectArch(k kernel) facts.Arch {
	a, from, ok := first(d.archSources(k), facts.Arch.Known)
	if !ok {
		return facts.ArchUnknown
	}
	d.logger.Debug("arch %s from %s", a, from)
	return a
}
