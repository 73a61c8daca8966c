package detect

import (
	"context"
	"strings"

	"github.com/lajosnagyuk/hostprobe/pkg/facts"
)

// sessionFacts are the facts about where and how this process runs that need
// at most a file read or an existence check.
type sessionFacts struct {
	wsl         bool
	termux      bool
	ci          bool
	ssh         bool
	root        bool
	interactive bool
}

var (
	wslEnvVars = []string{"WSL_DISTRO_NAME", "WSL_INTEROP", "WSLENV"}

	// wslInterop are special files only a WSL kernel provides.
	wslInterop = []string{
		"/proc/sys/fs/binfmt_misc/WSLInterop",
		"/proc/sys/fs/binfmt_misc/WSLInterop-late",
		"/run/WSL",
	}

	// wslDriveMarkers are Windows system directories on automounted drives.
	wslDriveMarkers = []string{
		"/mnt/c/Windows/System32",
		"/mnt/d/Windows/System32",
	}

	termuxDataDir = "/data/data/com.termux/files/usr"

	ciEnvVars = []string{
		"CI",
		"CONTINUOUS_INTEGRATION",
		"BUILD_NUMBER",
		"RUN_ID",
		"GITHUB_ACTIONS",
		"GITLAB_CI",
		"CIRCLECI",
		"TRAVIS",
		"JENKINS_URL",
		"BUILDKITE",
		"DRONE",
		"TEAMCITY_VERSION",
		"TF_BUILD",
		"BITBUCKET_BUILD_NUMBER",
		"APPVEYOR",
		"CODEBUILD_BUILD_ID",
		"SEMAPHORE",
		"WOODPECKER",
	}

	sshEnvVars = []string{"SSH_CLIENT", "SSH_CONNECTION", "SSH_TTY"}
)

func (d *Detector) detectSession(ctx context.Context, platform facts.Platform, k kernel) sessionFacts {
	return sessionFacts{
		wsl:         platform == facts.Linux && d.detectWSL(ctx, k),
		termux:      d.detectTermux(),
		ci:          d.anyEnv(ciEnvVars),
		ssh:         d.anyEnv(sshEnvVars),
		root:        d.sys.Geteuid() == 0,
		interactive: d.sys.Interactive(),
	}
}

func (d *Detector) detectWSL(ctx context.Context, k kernel) bool {
	if d.anyEnv(wslEnvVars) {
		return true
	}
	if mentionsWSL(k.release) || mentionsWSL(d.read(ctx, "/proc/version")) {
		return true
	}
	for _, path := range wslInterop {
		if d.sys.Exists(path) {
			return true
		}
	}
	for _, path := range wslDriveMarkers {
		if d.sys.Exists(path) {
			return true
		}
	}
	return false
}

func mentionsWSL(s string) bool {
	s = strings.ToLower(s)
	return strings.Contains(s, "microsoft") || strings.Contains(s, "wsl")
}

func (d *Detector) detectTermux() bool {
	return d.env("TERMUX_VERSION") != "" || d.sys.DirPopulated(termuxDataDir)
}

func (d *Detector) anyEnv(keys []string) bool {
	for _, k := range keys {
		if d.env(k) != "" {
			return true
		}
	}
	return false
}
