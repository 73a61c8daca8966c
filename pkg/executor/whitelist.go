package executor

// Logical command names the detector is allowed to run.
const (
	CmdUname             = "uname"
	CmdHostname          = "hostname"
	CmdID                = "id"
	CmdLSBRelease        = "lsb_release"
	CmdSwVers            = "sw_vers"
	CmdPlutil            = "plutil"
	CmdSystemProfiler    = "system_profiler"
	CmdSysctl            = "sysctl"
	CmdSystemdDetectVirt = "systemd-detect-virt"
	CmdStat              = "stat"
	CmdHead              = "head"
	CmdDD                = "dd"
	CmdTimeout           = "timeout"
)

// termuxPrefix is where Termux installs its userland.
const (
	termuxPrefix = "/data/data/com.termux/files/usr/bin"
	termuxBin    = termuxPrefix + "/"
)

// DefaultWhitelist maps every command name to the absolute paths it may be
// loaded from, in preference order. Paths are used verbatim; there is no
// PATH search.
var DefaultWhitelist = map[string][]string{
	CmdUname:             {"/usr/bin/uname", "/bin/uname", termuxBin + "uname"},
	CmdHostname:          {"/bin/hostname", "/usr/bin/hostname", termuxBin + "hostname"},
	CmdID:                {"/usr/bin/id", "/bin/id", termuxBin + "id"},
	CmdLSBRelease:        {"/usr/bin/lsb_release", "/bin/lsb_release"},
	CmdSwVers:            {"/usr/bin/sw_vers"},
	CmdPlutil:            {"/usr/bin/plutil"},
	CmdSystemProfiler:    {"/usr/sbin/system_profiler"},
	CmdSysctl:            {"/usr/sbin/sysctl", "/sbin/sysctl", "/usr/bin/sysctl"},
	CmdSystemdDetectVirt: {"/usr/bin/systemd-detect-virt", "/bin/systemd-detect-virt"},
	CmdStat:              {"/usr/bin/stat", "/bin/stat", termuxBin + "stat"},
	CmdHead:              {"/usr/bin/head", "/bin/head", termuxBin + "head"},
	CmdDD:                {"/bin/dd", "/usr/bin/dd", termuxBin + "dd"},
	CmdTimeout: {
		"/usr/bin/timeout",
		"/bin/timeout",
		"/opt/homebrew/bin/gtimeout",
		"/usr/local/bin/gtimeout",
		termuxBin + "timeout",
	},
}

// SafePath is the PATH handed to sanitized children. It covers the system
// prefixes plus the common package-manager install locations.
const SafePath = "/usr/local/sbin:/usr/local/bin:/usr/sbin:/usr/bin:/sbin:/bin:" +
	"/opt/homebrew/bin:/opt/local/bin:/usr/pkg/bin:/snap/bin:" + termuxPrefix
