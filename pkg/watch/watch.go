// Package watch keeps a detector's snapshot current for long-running callers.
//
// Three things trigger a new detection: a change to one of the identity
// files (through fsnotify on their parent directories), a cron schedule,
// and a poll that lets TTL expiry and signature changes take effect. File
// events are debounced and every forced refresh passes a rate limiter, so
// a package upgrade rewriting /etc in a loop costs a handful of detections.
package watch

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"reflect"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/robfig/cron/v3"
	"golang.org/x/time/rate"

	"github.com/lajosnagyuk/hostprobe/pkg/facts"
	"github.com/lajosnagyuk/hostprobe/pkg/log"
)

// DefaultPaths are the files whose content feeds the snapshot.
var DefaultPaths = []string{
	"/etc/os-release",
	"/usr/lib/os-release",
	"/etc/lsb-release",
	"/etc/hostname",
	"/etc/debian_version",
	"/etc/redhat-release",
	"/etc/alpine-release",
	"/System/Library/CoreServices/SystemVersion.plist",
}

// Defaults.
const (
	DefaultDebounce  = 300 * time.Millisecond
	DefaultRateEvery = 5 * time.Second
	DefaultRateBurst = 2
)

// Detector is the part of detect.Detector the watcher drives.
type Detector interface {
	Detect(ctx context.Context) (*facts.Snapshot, error)
	Refresh(ctx context.Context) (*facts.Snapshot, error)
}

// Reason says what triggered a snapshot.
type Reason string

const (
	ReasonInitial  Reason = "initial"
	ReasonFile     Reason = "file"
	ReasonSchedule Reason = "schedule"
	ReasonPoll     Reason = "poll"
)

// OnChange receives every snapshot whose facts differ from the last one
// delivered. The first snapshot is always delivered.
type OnChange func(snap *facts.Snapshot, reason Reason)

// Watcher re-runs detection when the host may have changed.
type Watcher struct {
	det      Detector
	paths    []string
	schedule cron.Schedule
	poll     time.Duration
	debounce time.Duration
	limiter  *rate.Limiter
	logger   *log.Logger

	err error
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithPaths replaces the watched files.
func WithPaths(paths ...string) Option {
	return func(w *Watcher) { w.paths = paths }
}

// WithSchedule forces a refresh on a standard five-field cron spec or a
// descriptor such as "@hourly" or "@every 10m".
func WithSchedule(spec string) Option {
	return func(w *Watcher) {
		s, err := ParseSchedule(spec)
		if err != nil {
			w.err = err
			return
		}
		w.schedule = s
	}
}

// WithCronSchedule uses an already parsed schedule.
func WithCronSchedule(s cron.Schedule) Option {
	return func(w *Watcher) { w.schedule = s }
}

// WithPoll calls Detect every d. Detect is cheap while the cache is usable,
// so this only costs a full detection after TTL expiry or a signature change.
func WithPoll(d time.Duration) Option {
	return func(w *Watcher) { w.poll = d }
}

// WithDebounce sets how long file events must be quiet before a refresh.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) { w.debounce = d }
}

// WithRateLimit allows burst forced refreshes, refilled one per every.
func WithRateLimit(every time.Duration, burst int) Option {
	return func(w *Watcher) { w.limiter = rate.NewLimiter(rate.Every(every), burst) }
}

// ParseSchedule parses a cron spec.
func ParseSchedule(spec string) (cron.Schedule, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	s, err := parser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	return s, nil
}

// New creates a Watcher around det.
func New(det Detector, opts ...Option) (*Watcher, error) {
	w := &Watcher{
		det:      det,
		paths:    DefaultPaths,
		debounce: DefaultDebounce,
		limiter:  rate.NewLimiter(rate.Every(DefaultRateEvery), DefaultRateBurst),
		logger:   log.WithPrefix("watch"),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.err != nil {
		return nil, w.err
	}
	if det == nil {
		return nil, errors.New("watch: nil detector")
	}
	return w, nil
}

// Run delivers the current snapshot and then every change until ctx is
// done. Detection errors are logged and do not stop the loop.
func (w *Watcher) Run(ctx context.Context, onChange OnChange) error {
	var last *facts.Snapshot
	deliver := func(snap *facts.Snapshot, err error, reason Reason) {
		if err != nil {
			log.Fail("detection failed (%s): %v", reason, err)
			return
		}
		if last != nil && sameFacts(last, snap) {
			w.logger.Debug("%s: no change", reason)
			return
		}
		last = snap
		onChange(snap, reason)
	}

	snap, err := w.det.Detect(ctx)
	deliver(snap, err, ReasonInitial)

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer fw.Close()

	watched := w.addDirs(fw)
	log.Start("watching %d files", len(watched))

	var (
		debounce  = stoppedTimer()
		scheduled = stoppedTimer()
		pollC     <-chan time.Time
	)
	defer debounce.Stop()
	defer scheduled.Stop()

	if w.schedule != nil {
		scheduled.Reset(time.Until(w.schedule.Next(time.Now())))
	}
	if w.poll > 0 {
		ticker := time.NewTicker(w.poll)
		defer ticker.Stop()
		pollC = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			if !watched[filepath.Clean(event.Name)] {
				continue
			}
			w.logger.Debug("%s %s", event.Op, event.Name)
			debounce.Reset(w.debounce)

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error: %v", err)

		case <-debounce.C:
			if err := w.throttle(ctx, ReasonFile); err != nil {
				return nil
			}
			snap, err := w.det.Refresh(ctx)
			deliver(snap, err, ReasonFile)

		case <-scheduled.C:
			if err := w.throttle(ctx, ReasonSchedule); err != nil {
				return nil
			}
			snap, err := w.det.Refresh(ctx)
			deliver(snap, err, ReasonSchedule)
			scheduled.Reset(time.Until(w.schedule.Next(time.Now())))

		case <-pollC:
			snap, err := w.det.Detect(ctx)
			deliver(snap, err, ReasonPoll)
		}
	}
}

// throttle blocks until the rate limiter admits another forced refresh.
func (w *Watcher) throttle(ctx context.Context, reason Reason) error {
	if w.limiter.Allow() {
		return nil
	}
	log.Wait("%s refresh held back by rate limit", reason)
	return w.limiter.Wait(ctx)
}

// addDirs watches the parent directory of every path, since editors and
// package managers replace files by rename. It returns the set of paths
// whose events matter.
func (w *Watcher) addDirs(fw *fsnotify.Watcher) map[string]bool {
	watched := make(map[string]bool, len(w.paths))
	dirs := make(map[string]bool)
	for _, p := range w.paths {
		p = filepath.Clean(p)
		dir := filepath.Dir(p)
		if !dirs[dir] {
			if err := fw.Add(dir); err != nil {
				w.logger.Skip("cannot watch %s: %v", dir, err)
				continue
			}
			dirs[dir] = true
		}
		watched[p] = true
	}
	return watched
}

// sameFacts compares two snapshots ignoring when and how long detection ran.
func sameFacts(a, b *facts.Snapshot) bool {
	x, y := a.Clone(), b.Clone()
	x.DetectedAt, y.DetectedAt = time.Time{}, time.Time{}
	x.Duration, y.Duration = 0, 0
	return reflect.DeepEqual(x, y)
}

func stoppedTimer() *time.Timer {
	t := time.NewTimer(time.Hour)
	t.Stop()
	return t
}
