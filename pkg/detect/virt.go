package detect

import (
	"context"
	"strconv"
	"strings"

	"github.com/lajosnagyuk/hostprobe/pkg/executor"
	"github.com/lajosnagyuk/hostprobe/pkg/facts"
)

// virtFacts covers container, chroot and virtual machine detection.
type virtFacts struct {
	container    bool
	chroot       bool
	vm           bool
	undetermined []string
}

var (
	containerMarkers = []string{"/.dockerenv", "/run/.containerenv", "/.containerenv"}

	containerEnvVars = []string{"container", "DOCKER_CONTAINER", "KUBERNETES_SERVICE_HOST", "REMOTE_CONTAINERS"}

	// cgroupRuntimes appear in /proc/1/cgroup paths inside containers.
	cgroupRuntimes = []string{
		"docker", "kubepods", "containerd", "libpod", "podman", "crio",
		"lxc", "garden", "buildkit", "actions_job",
	}

	// overlayFilesystems back the root mount of most container images.
	overlayFilesystems = []string{"overlay", "fuse-overlayfs", "aufs"}

	dmiFiles = []string{
		"/sys/class/dmi/id/sys_vendor",
		"/sys/class/dmi/id/product_name",
		"/sys/class/dmi/id/product_version",
		"/sys/class/dmi/id/board_vendor",
		"/sys/class/dmi/id/bios_vendor",
		"/sys/class/dmi/id/chassis_vendor",
	}

	hypervisorVendors = []string{
		"vmware", "virtualbox", "innotek", "qemu", "kvm", "xen", "bochs",
		"parallels", "bhyve", "hyper-v", "virtual machine", "amazon ec2",
		"google compute engine", "openstack", "cloud hypervisor", "firecracker",
	}

	cpuinfoVendors = []string{"qemu virtual cpu", "common kvm processor", "kvm64", "qemu64"}

	macHypervisors = []string{"vmware", "virtualbox", "parallels", "qemu", "virtual machine"}
)

// rootIDs compares / with the root of pid 1.
type rootIDs struct {
	root, initRoot FileID
	ok             bool
}

func (d *Detector) detectVirtualization(ctx context.Context, platform facts.Platform) virtFacts {
	var v virtFacts

	var ids rootIDs
	if platform == facts.Linux {
		ids = d.rootIDs(ctx)
	}

	container, decided := d.detectContainer(ctx, platform, ids)
	v.container = container
	if !decided {
		v.undetermined = append(v.undetermined, "container")
	}

	if platform == facts.Linux && !v.container {
		if ids.ok {
			v.chroot = ids.root.Ino != ids.initRoot.Ino
		} else {
			v.undetermined = append(v.undetermined, "chroot")
		}
	}

	vmDecided := true
	switch platform {
	case facts.Linux:
		v.vm, vmDecided = d.detectLinuxVM(ctx)
	case facts.Darwin:
		v.vm, vmDecided = d.detectDarwinVM(ctx)
	}
	if !vmDecided {
		v.undetermined = append(v.undetermined, "vm")
	}
	return v
}

// detectContainer returns the verdict and whether any source could actually
// be consulted.
func (d *Detector) detectContainer(ctx context.Context, platform facts.Platform, ids rootIDs) (bool, bool) {
	for _, path := range containerMarkers {
		if d.sys.Exists(path) {
			return true, true
		}
	}
	if d.anyEnv(containerEnvVars) {
		return true, true
	}
	if strings.TrimSpace(d.read(ctx, "/run/systemd/container")) != "" {
		return true, true
	}
	if platform != facts.Linux {
		return false, true
	}

	decided := false
	if cgroup := d.read(ctx, "/proc/1/cgroup"); cgroup != "" {
		decided = true
		if containsAny(strings.ToLower(cgroup), cgroupRuntimes) {
			return true, true
		}
	}
	if mountinfo := d.read(ctx, "/proc/self/mountinfo"); mountinfo != "" {
		decided = true
		if overlayRoot(mountinfo) {
			return true, true
		}
	}
	if ids.ok {
		return ids.root.Dev != ids.initRoot.Dev, true
	}
	return false, decided
}

// overlayRoot reports whether the mount at / uses an overlay filesystem.
// mountinfo lines are "id parent major:minor root mountpoint opts ... - fstype source superopts".
func overlayRoot(mountinfo string) bool {
	for _, line := range strings.Split(mountinfo, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 5 || fields[4] != "/" {
			continue
		}
		for i, f := range fields {
			if f == "-" && i+1 < len(fields) {
				for _, fs := range overlayFilesystems {
					if fields[i+1] == fs {
						return true
					}
				}
			}
		}
	}
	return false
}

func (d *Detector) rootIDs(ctx context.Context) rootIDs {
	root, ok1 := d.statID(ctx, "/")
	initRoot, ok2 := d.statID(ctx, "/proc/1/root")
	return rootIDs{root: root, initRoot: initRoot, ok: ok1 && ok2}
}

// statID asks the kernel first and the stat tool second.
func (d *Detector) statID(ctx context.Context, path string) (FileID, bool) {
	if id, err := d.sys.StatID(path); err == nil {
		return id, true
	}
	for _, args := range [][]string{
		{"-L", "-c", "%d %i", path},
		{"-L", "-f", "%d %i", path},
	} {
		if id, ok := parseFileID(d.cmd(ctx, executor.CmdStat, args...)); ok {
			return id, true
		}
	}
	return FileID{}, false
}

func parseFileID(s string) (FileID, bool) {
	fields := strings.Fields(s)
	if len(fields) != 2 {
		return FileID{}, false
	}
	dev, err1 := strconv.ParseUint(fields[0], 10, 64)
	ino, err2 := strconv.ParseUint(fields[1], 10, 64)
	if err1 != nil || err2 != nil {
		return FileID{}, false
	}
	return FileID{Dev: dev, Ino: ino}, true
}

func (d *Detector) detectLinuxVM(ctx context.Context) (bool, bool) {
	decided := false

	for _, path := range dmiFiles {
		content := d.read(ctx, path)
		if content == "" {
			continue
		}
		decided = true
		if containsAny(strings.ToLower(content), hypervisorVendors) {
			return true, true
		}
	}

	if cpuinfo := d.read(ctx, "/proc/cpuinfo"); cpuinfo != "" {
		decided = true
		lower := strings.ToLower(cpuinfo)
		if hasCPUFlag(lower, "hypervisor") || containsAny(lower, cpuinfoVendors) {
			return true, true
		}
	}

	res := d.runner.Run(ctx, executor.Request{
		Name:        executor.CmdSystemdDetectVirt,
		Args:        []string{"--vm"},
		Timeout:     d.cfg.CommandTimeout.Duration,
		SanitizeEnv: d.cfg.SanitizeEnv,
	})
	if res.Err == nil && !res.TimedOut {
		decided = true
		if out := strings.TrimSpace(res.Stdout); res.ExitCode == 0 && out != "" && out != "none" {
			return true, true
		}
	}

	if d.sys.Exists("/proc/xen") || strings.TrimSpace(d.read(ctx, "/sys/hypervisor/type")) != "" {
		return true, true
	}
	if d.sys.Exists("/proc/vz") && !d.sys.Exists("/proc/bc") {
		return true, true
	}
	return false, decided
}

func (d *Detector) detectDarwinVM(ctx context.Context) (bool, bool) {
	decided := false
	switch d.cmd(ctx, executor.CmdSysctl, "-n", "kern.hv_vmm_present") {
	case "1":
		return true, true
	case "0":
		decided = true
	}
	if hw := d.cmd(ctx, executor.CmdSystemProfiler, "SPHardwareDataType"); hw != "" {
		decided = true
		if containsAny(strings.ToLower(hw), macHypervisors) {
			return true, true
		}
	}
	return false, decided
}

// hasCPUFlag looks for flag as a whole word on a cpuinfo flags line.
func hasCPUFlag(cpuinfo, flag string) bool {
	for _, line := range strings.Split(cpuinfo, "\n") {
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		if k := strings.TrimSpace(key); k != "flags" && k != "features" {
			continue
		}
		for _, f := range strings.Fields(value) {
			if f == flag {
				return true
			}
		}
	}
	return false
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}
