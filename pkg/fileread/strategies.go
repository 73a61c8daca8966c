package fileread

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/lajosnagyuk/hostprobe/pkg/executor"
)

// Strategy names, as used in the configuration file.
const (
	StrategyNative = "native"
	StrategyHead   = "head"
	StrategyDD     = "dd"
	ProbeNative    = "native"
	ProbeStat      = "stat"
)

// errToolMissing marks a strategy whose tool cannot run on this host.
var errToolMissing = errors.New("tool missing")

// strategy is one way of reading at most n bytes of a file.
type strategy struct {
	name string
	tool string // "" for in-process
	read func(ctx context.Context, r *Reader, path string, n int64) (string, error)

	// missing is set once the tool is known to be absent, so the lookup
	// happens once per process.
	missing atomic.Bool
}

// sizeProbe is one way of asking how big a file is.
type sizeProbe struct {
	name    string
	tool    string
	size    func(ctx context.Context, r *Reader, path string) (int64, error)
	missing atomic.Bool
}

func newStrategy(name string) *strategy {
	switch name {
	case StrategyNative:
		return &strategy{name: name, read: readNative}
	case StrategyHead:
		return &strategy{name: name, tool: executor.CmdHead, read: readHead}
	case StrategyDD:
		return &strategy{name: name, tool: executor.CmdDD, read: readDD}
	}
	return nil
}

func newSizeProbe(name string) *sizeProbe {
	switch name {
	case ProbeNative:
		return &sizeProbe{name: name, size: sizeNative}
	case ProbeStat:
		return &sizeProbe{name: name, tool: executor.CmdStat, size: sizeStat}
	}
	return nil
}

// readNative is the in-process last resort. It cannot return more than n
// bytes regardless of what the file does while being read.
func readNative(_ context.Context, _ *Reader, path string, n int64) (string, error) {
	f, err := os.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		return "", unavailable(path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", unavailable(path, err)
	}
	if !info.Mode().IsRegular() {
		return "", denied(path, "not a regular file")
	}

	data, err := io.ReadAll(io.LimitReader(f, n))
	if err != nil {
		return "", unavailable(path, err)
	}
	return string(data), nil
}

func readHead(ctx context.Context, r *Reader, path string, n int64) (string, error) {
	return r.runTool(ctx, executor.CmdHead, "-c", strconv.FormatInt(n, 10), path)
}

func readDD(ctx context.Context, r *Reader, path string, n int64) (string, error) {
	return r.runTool(ctx, executor.CmdDD, "if="+path, "bs=1", "count="+strconv.FormatInt(n, 10))
}

func sizeNative(_ context.Context, _ *Reader, path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, unavailable(path, err)
	}
	return info.Size(), nil
}

// sizeStat tries the GNU flag set first, then the BSD one.
func sizeStat(ctx context.Context, r *Reader, path string) (int64, error) {
	out, err := r.runTool(ctx, executor.CmdStat, "-L", "-c", "%s", path)
	if errors.Is(err, errToolMissing) {
		return 0, err
	}
	if err != nil {
		out, err = r.runTool(ctx, executor.CmdStat, "-L", "-f", "%z", path)
		if err != nil {
			return 0, err
		}
	}
	size, err := strconv.ParseInt(strings.TrimSpace(out), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("stat %s: unexpected output %q", path, out)
	}
	return size, nil
}

// runTool runs a whitelisted tool and returns its raw stdout.
func (r *Reader) runTool(ctx context.Context, name string, args ...string) (string, error) {
	if r.runner == nil {
		return "", errToolMissing
	}
	res := r.runner.Run(ctx, executor.Request{
		Name:        name,
		Args:        args,
		Timeout:     r.timeout,
		SanitizeEnv: r.sanitize,
	})
	if errors.Is(res.Err, executor.ErrNotFound) || errors.Is(res.Err, executor.ErrNotWhitelisted) {
		return "", errToolMissing
	}
	if !res.OK() {
		if res.Err != nil {
			return "", res.Err
		}
		return "", fmt.Errorf("%s exited %d", name, res.ExitCode)
	}
	return res.Stdout, nil
}
