package executor

import (
	"context"
	"runtime"
	"strings"
	"sync"
	"time"
)

// Capabilities describes how the executor enforces its guarantees on this host.
type Capabilities struct {
	// Platform is the Go platform the binary was built for
	Platform string `json:"platform"`

	// TimeoutTool is the timeout(1) binary probes are wrapped with, if any
	TimeoutTool string `json:"timeout_tool,omitempty"`

	// Supervisor names the strategy enforcing time budgets
	Supervisor string `json:"supervisor"`
}

// Supervisor strategy names.
const (
	SupervisorTool      = "timeout-tool"
	SupervisorInProcess = "in-process"
)

// capabilityProbe memoizes the timeout strategy for the process lifetime.
type capabilityProbe struct {
	toolAllowed bool
	once        sync.Once
	tool        string
}

// Capabilities returns what this executor uses to enforce budgets.
func (e *Executor) Capabilities() Capabilities {
	caps := Capabilities{
		Platform:   runtime.GOOS,
		Supervisor: SupervisorInProcess,
	}
	if tool := e.timeoutTool(context.Background()); tool != "" {
		caps.TimeoutTool = tool
		caps.Supervisor = SupervisorTool
	}
	return caps
}

// timeoutTool returns a GNU-compatible timeout(1) path, or "" when budgets
// must be enforced in-process. Busybox and BSD variants lack the -k flag we
// rely on, so only coreutils is accepted.
func (e *Executor) timeoutTool(ctx context.Context) string {
	e.caps.once.Do(func() {
		if !e.caps.toolAllowed || !e.resolver.Whitelisted(CmdTimeout) {
			return
		}
		res := e.run(ctx, Request{
			Name:        CmdTimeout,
			Args:        []string{"--version"},
			Timeout:     2 * time.Second,
			SanitizeEnv: true,
		})
		if strings.Contains(res.Output(), "coreutils") {
			e.caps.tool = res.Path
		}
	})
	return e.caps.tool
}
