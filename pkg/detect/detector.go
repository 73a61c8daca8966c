// Package detect implements the detection orchestrator.
//
// A Detector owns one cache entry. Detect serves it while it is usable and
// otherwise runs every probe, builds a fresh snapshot privately and commits
// it in one step. Probe failures never surface as errors: a missing tool,
// a denied file or a timeout only means that source is skipped and the next
// one in the chain is tried. The only error Detect returns is ErrStructural.
package detect

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lajosnagyuk/hostprobe/pkg/cache"
	"github.com/lajosnagyuk/hostprobe/pkg/config"
	"github.com/lajosnagyuk/hostprobe/pkg/executor"
	"github.com/lajosnagyuk/hostprobe/pkg/facts"
	"github.com/lajosnagyuk/hostprobe/pkg/fileread"
	"github.com/lajosnagyuk/hostprobe/pkg/log"
	"github.com/lajosnagyuk/hostprobe/pkg/validate"
)

// SchemaVersion changes whenever the snapshot layout or detection rules
// change in a way that makes older snapshots untrustworthy.
const SchemaVersion = "hostprobe/1"

// Runner runs whitelisted probes.
type Runner interface {
	Run(ctx context.Context, req executor.Request) executor.Result
}

// FileReader performs bounded, policy-checked reads.
type FileReader interface {
	ReadPrefix(ctx context.Context, path string, maxBytes int64) (string, error)
}

// Detector detects host facts and caches the result.
type Detector struct {
	mu sync.Mutex

	cfg      *config.Config
	runner   Runner
	reader   FileReader
	sys      System
	resolver *executor.Resolver
	cache    *cache.Cache
	version  string
	now      func() time.Time
	logger   *log.Logger

	detections atomic.Int64
}

// Option configures a Detector.
type Option func(*Detector)

// WithConfig sets the configuration. It is clamped into range.
func WithConfig(cfg *config.Config) Option {
	return func(d *Detector) { d.cfg = cfg }
}

// WithRunner replaces the command runner.
func WithRunner(r Runner) Option {
	return func(d *Detector) { d.runner = r }
}

// WithReader replaces the file reader.
func WithReader(r FileReader) Option {
	return func(d *Detector) { d.reader = r }
}

// WithSystem replaces the system interface.
func WithSystem(s System) Option {
	return func(d *Detector) { d.sys = s }
}

// WithResolver sets the resolver that Cleanup resets. When no runner is
// given it also backs the default executor.
func WithResolver(r *executor.Resolver) Option {
	return func(d *Detector) { d.resolver = r }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(d *Detector) { d.now = now }
}

// WithVersion overrides the schema version recorded with snapshots.
func WithVersion(v string) Option {
	return func(d *Detector) { d.version = v }
}

// New creates a Detector. Without options it probes the real host using
// the default whitelist and configuration.
func New(opts ...Option) *Detector {
	d := &Detector{
		version: SchemaVersion,
		now:     time.Now,
		logger:  log.WithPrefix("detect"),
	}
	for _, opt := range opts {
		opt(d)
	}

	if d.cfg == nil {
		d.cfg = config.Default()
	}
	d.cfg.Clamp()

	if d.resolver == nil {
		d.resolver = executor.NewResolver(nil)
	}
	if d.runner == nil {
		d.runner = executor.New(d.resolver,
			executor.WithDefaultTimeout(d.cfg.CommandTimeout.Duration),
			executor.WithMaxOutput(max(64*1024, d.cfg.MaxFileSize)),
		)
	}
	if d.reader == nil {
		d.reader = fileread.New(
			fileread.WithLimit(d.cfg.MaxFileSize),
			fileread.WithRunner(d.runner),
			fileread.WithTimeout(d.cfg.CommandTimeout.Duration),
			fileread.WithSanitizeEnv(d.cfg.SanitizeEnv),
			fileread.WithStrategies(d.cfg.ReadStrategies...),
			fileread.WithSizeProbes(d.cfg.SizeProbes...),
		)
	}
	if d.sys == nil {
		d.sys = hostSystem{}
	}
	d.cache = cache.New(d.cfg.TTL.Duration, d.version)
	return d
}

// Config returns the effective configuration.
func (d *Detector) Config() *config.Config {
	return d.cfg
}

// Runner returns the command runner probes go through.
func (d *Detector) Runner() Runner {
	return d.runner
}

// Reader returns the file reader probes go through.
func (d *Detector) Reader() FileReader {
	return d.reader
}

// Resolver returns the resolver reset by Cleanup.
func (d *Detector) Resolver() *executor.Resolver {
	return d.resolver
}

// Detect returns the cached snapshot when it is still usable, and detects
// and commits a new one otherwise. The returned snapshot must not be
// modified.
func (d *Detector) Detect(ctx context.Context) (*facts.Snapshot, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	sig := d.signature()
	snap, err := d.cache.Lookup(sig, d.now())
	if err == nil {
		return snap, nil
	}
	d.logger.Debug("cache miss: %v", err)

	return d.detectAndCommit(ctx, sig)
}

// Refresh discards the cached snapshot and detects again.
func (d *Detector) Refresh(ctx context.Context) (*facts.Snapshot, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.cache.Invalidate()
	return d.detectAndCommit(ctx, d.signature())
}

// Snapshot returns a copy of the last committed snapshot, usable or not.
func (d *Detector) Snapshot() (*facts.Snapshot, error) {
	e, ok := d.cache.Current()
	if !ok {
		return nil, ErrNotDetected
	}
	return e.Snapshot.Clone(), nil
}

// Available reports whether a snapshot has been committed.
func (d *Detector) Available() bool {
	return d.cache.State() == cache.Valid
}

// Cleanup drops the snapshot and every memoized command path.
func (d *Detector) Cleanup() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.cache.Invalidate()
	d.resolver.Reset()
}

// Detections returns how many full detections have run.
func (d *Detector) Detections() int64 {
	return d.detections.Load()
}

// Signature returns the environment signature as it is now.
func (d *Detector) Signature() cache.Signature {
	return d.signature()
}

// CacheEntry returns the committed entry, if any.
func (d *Detector) CacheEntry() (cache.Entry, bool) {
	return d.cache.Current()
}

func (d *Detector) signature() cache.Signature {
	u, err := d.sys.Uname()
	if err != nil {
		u = Uname{}
	}
	return cache.Signature{
		OSType:   d.sys.Getenv("OSTYPE"),
		MachType: d.sys.Getenv("MACHTYPE"),
		HostType: d.sys.Getenv("HOSTTYPE"),
		EUID:     d.sys.Geteuid(),
		UID:      d.sys.Getuid(),
		Version:  d.version,
		UnameS:   u.Sysname,
		UnameM:   u.Machine,
	}
}

func (d *Detector) detectAndCommit(ctx context.Context, sig cache.Signature) (*facts.Snapshot, error) {
	start := d.now()
	snap, err := d.detect(ctx)
	// Probes cut short by cancellation report missing facts, not real ones.
	if ctxErr := ctx.Err(); ctxErr != nil {
		d.logger.Debug("detection cancelled, nothing committed: %v", ctxErr)
		return nil, ctxErr
	}
	if err != nil {
		log.Fail("detection aborted: %v", err)
		return nil, err
	}
	d.detections.Add(1)

	snap.DetectedAt = start
	snap.Duration = d.now().Sub(start)
	snap.Signature = sig.ID()
	snap.Version = d.version

	d.cache.Commit(snap, sig, start)
	d.logger.Debug("committed %s/%s %s in %s", snap.Platform, snap.Arch, sig.ShortID(), log.FormatDuration(snap.Duration))
	return snap, nil
}

// detect runs every probe and returns a finalized, checked snapshot. It
// never touches the cache.
func (d *Detector) detect(ctx context.Context) (*facts.Snapshot, error) {
	snap := facts.New()

	k := d.probeKernel(ctx)
	snap.KernelName = k.name
	snap.KernelRelease = k.release
	snap.KernelVersion = k.version
	snap.Processor = k.processor

	snap.Platform = d.detectPlatform(k)
	snap.Arch = d.detectArch(k)

	// Each task writes only its own result; they are merged after all finish.
	var (
		hostname string
		username string
		session  sessionFacts
		virt     virtFacts
		distro   distroFacts
	)
	d.runAll(ctx,
		func(ctx context.Context) { hostname = d.detectHostname(ctx, k) },
		func(ctx context.Context) { username = d.detectUsername(ctx) },
		func(ctx context.Context) { session = d.detectSession(ctx, snap.Platform, k) },
		func(ctx context.Context) { virt = d.detectVirtualization(ctx, snap.Platform) },
		func(ctx context.Context) { distro = d.detectDistro(ctx, snap.Platform, k) },
	)

	snap.Hostname = hostname
	snap.Username = username

	snap.IsWSL = session.wsl
	snap.IsTermux = session.termux
	snap.IsCI = session.ci
	snap.IsSSH = session.ssh
	snap.IsRoot = session.root
	snap.IsInteractive = session.interactive

	snap.IsContainer = virt.container
	snap.IsChroot = virt.chroot
	snap.IsVM = virt.vm
	for _, f := range virt.undetermined {
		snap.MarkUndetermined(f)
	}

	snap.Distro = distro.id
	snap.DistroVersion = distro.version
	snap.DistroCodename = distro.codename
	snap.DistroBuild = distro.build

	snap.Finalize()
	if err := checkSnapshot(snap); err != nil {
		return nil, err
	}
	return snap, nil
}

// runAll runs tasks concurrently when configured to, sequentially otherwise.
// Tasks absorb their own failures.
func (d *Detector) runAll(ctx context.Context, tasks ...func(context.Context)) {
	if !d.cfg.Parallel {
		for _, task := range tasks {
			task(ctx)
		}
		return
	}
	g, gctx := errgroup.WithContext(ctx)
	for _, task := range tasks {
		g.Go(func() error {
			task(gctx)
			return nil
		})
	}
	_ = g.Wait()
}

// cmd runs a probe and returns its trimmed output, or "" on any failure.
func (d *Detector) cmd(ctx context.Context, name string, args ...string) string {
	res := d.runner.Run(ctx, executor.Request{
		Name:        name,
		Args:        args,
		Timeout:     d.cfg.CommandTimeout.Duration,
		SanitizeEnv: d.cfg.SanitizeEnv,
	})
	return validate.StripControl(res.Output())
}

// read returns up to the configured ceiling of path, or "" on any failure.
func (d *Detector) read(ctx context.Context, path string) string {
	content, err := d.reader.ReadPrefix(ctx, path, d.cfg.MaxFileSize)
	if err != nil {
		return ""
	}
	return content
}

func (d *Detector) env(key string) string {
	return d.sys.Getenv(key)
}

// checkSnapshot verifies the invariants every committed snapshot holds.
func checkSnapshot(s *facts.Snapshot) error {
	if !validPlatform(s.Platform) {
		return fmt.Errorf("%w: platform %q", ErrStructural, s.Platform)
	}
	if !validArch(s.Arch) {
		return fmt.Errorf("%w: arch %q", ErrStructural, s.Arch)
	}
	if !validate.ValidHostname(s.Hostname) || len(s.Hostname) > validate.MaxHostnameLen {
		return fmt.Errorf("%w: hostname %q", ErrStructural, s.Hostname)
	}
	if validate.StripControl(s.Username) != s.Username {
		return fmt.Errorf("%w: username contains control characters", ErrStructural)
	}
	for name, v := range map[string]string{
		"kernel name":     s.KernelName,
		"distro":          s.Distro,
		"distro version":  s.DistroVersion,
		"distro codename": s.DistroCodename,
	} {
		if v == "" {
			return fmt.Errorf("%w: empty %s", ErrStructural, name)
		}
	}
	if s.IsMacOS != (s.Platform == facts.Darwin) || s.IsLinux != (s.Platform == facts.Linux) {
		return fmt.Errorf("%w: derived facts disagree with platform", ErrStructural)
	}
	return nil
}

func validPlatform(p facts.Platform) bool {
	for _, v := range facts.Platforms {
		if p == v {
			return true
		}
	}
	return false
}

func validArch(a facts.Arch) bool {
	for _, v := range facts.Arches {
		if a == v {
			return true
		}
	}
	return false
}
