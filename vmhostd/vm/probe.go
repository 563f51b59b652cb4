package vm

import (
	"fmt"
	"log/slog"
	"os"
	"regexp"

	"github.com/hashicorp/go-version"
	"golang.org/x/sys/unix"

	"vmhost/vmhostd/config"
	"vmhost/vmhostd/util"
)

// MainVersion is set at build time.
var MainVersion = "unknown"

var versionRe = regexp.MustCompile(`version (\d+\.\d+(\.\d+)?)`)

var minQemuVersion = version.Must(version.NewVersion("6.2"))

var runCmdFunc = util.RunCmd

// GetVersion reports the daemon version and, when the backing binary answers, its version.
func GetVersion() string {
	qemuVersion, err := BackingVersion()
	if err != nil {
		return MainVersion
	}

	return MainVersion + " (qemu " + qemuVersion.String() + ")"
}

// BackingVersion runs the backing binary with --version and parses the result.
func BackingVersion() (*version.Version, error) {
	arch := config.Config.Qemu.Arch
	if arch == "" {
		arch = "aarch64"
	}

	stdOutBytes, _, _, err := runCmdFunc(binaryFor(arch), []string{"--version"})
	if err != nil {
		return nil, fmt.Errorf("error getting qemu version: %w", err)
	}

	return parseQemuVersion(string(stdOutBytes))
}

func parseQemuVersion(output string) (*version.Version, error) {
	matches := versionRe.FindStringSubmatch(output)
	if len(matches) < 2 {
		return nil, fmt.Errorf("%w: unparseable version output %q", ErrIOFailure, output)
	}

	ver, err := version.NewVersion(matches[1])
	if err != nil {
		return nil, fmt.Errorf("error parsing qemu version: %w", err)
	}

	return ver, nil
}

// CheckBackingVersion logs a warning when the backing binary is older than we have tested with.
func CheckBackingVersion() {
	ver, err := BackingVersion()
	if err != nil {
		slog.Warn("unable to determine qemu version", "err", err)

		return
	}

	if ver.LessThan(minQemuVersion) {
		slog.Warn("qemu version older than supported", "version", ver, "minimum", minQemuVersion)
	}
}

// IsKvmSupported reports whether /dev/kvm can be opened for use.
func IsKvmSupported() bool {
	kvmDev, err := os.OpenFile("/dev/kvm", os.O_RDWR, 0)
	if err != nil {
		return false
	}

	_ = kvmDev.Close()

	return true
}

// IsJitSupported reports whether this process may map executable anonymous memory.
func IsJitSupported() bool {
	mem, err := unix.Mmap(-1, 0, os.Getpagesize(),
		unix.PROT_READ|unix.PROT_WRITE|unix.PROT_EXEC, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return false
	}

	_ = unix.Munmap(mem)

	return true
}
