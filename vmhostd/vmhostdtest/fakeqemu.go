package vmhostdtest

import (
	"os"
	"path/filepath"
	"testing"
)

// FakeQemuScript behaves enough like the backing binary for the supervisor: it prints a banner,
// answers --version and exits cleanly on SIGINT or SIGTERM.
const FakeQemuScript = `#!/bin/sh
if [ "$1" = "--version" ]; then
	echo "QEMU emulator version 8.2.1 (fake)"
	exit 0
fi
trap 'echo "fake qemu: interrupted"; exit 0' INT TERM
echo "fake qemu booting"
echo "fake qemu warning" >&2
while true; do
	sleep 0.1
done
`

// StubbornQemuScript ignores graceful stop signals and has to be killed.
const StubbornQemuScript = `#!/bin/sh
trap '' INT TERM
echo "stubborn qemu booting"
while true; do
	sleep 0.1
done
`

// CrashingQemuScript exits on its own with a failure status.
const CrashingQemuScript = `#!/bin/sh
echo "crashing qemu booting"
sleep 0.3
exit 3
`

// ChattyQemuScript prints two lines while it keeps running and exits cleanly when stopped.
const ChattyQemuScript = `#!/bin/sh
trap 'exit 0' INT TERM
echo "line one"
echo "line two"
while true; do
	sleep 0.1
done
`

// FailingStopQemuScript exits with a failure status when asked to stop.
const FailingStopQemuScript = `#!/bin/sh
trap 'echo "failing qemu: shutdown error" >&2; exit 7' INT TERM
echo "failing qemu booting"
while true; do
	sleep 0.1
done
`

// WriteFakeQemu writes script as an executable into a temp dir and returns its path.
func WriteFakeQemu(t *testing.T, script string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "qemu-system-fake")

	err := os.WriteFile(path, []byte(script), 0o755) //nolint:gosec
	if err != nil {
		t.Fatalf("failed writing fake qemu: %v", err)
	}

	return path
}
