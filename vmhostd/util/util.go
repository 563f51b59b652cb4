package util

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"

	exec "golang.org/x/sys/execabs"
)

var errInvalidPid = errors.New("invalid pid")

func PathExists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}

	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}

	return false, fmt.Errorf("error checking path exists: %w", err)
}

// EnsureDir creates path and any missing parents. An existing directory is not an error.
func EnsureDir(path string) error {
	err := os.MkdirAll(path, 0o755)
	if err != nil {
		return fmt.Errorf("error creating directory %s: %w", path, err)
	}

	return nil
}

// EnsureParentDir creates the directory holding the file at path.
func EnsureParentDir(path string) error {
	return EnsureDir(filepath.Dir(path))
}

func PidExists(pid int) (bool, error) {
	if pid <= 0 {
		return false, fmt.Errorf("%w %v", errInvalidPid, pid)
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		return false, fmt.Errorf("error finding process: %w", err)
	}

	err = proc.Signal(syscall.Signal(0))
	if err == nil {
		return true, nil
	}

	if errors.Is(err, os.ErrProcessDone) {
		return false, nil
	}

	var errno syscall.Errno
	if !errors.As(err, &errno) {
		return false, fmt.Errorf("error signaling process: %w", err)
	}

	switch {
	case errors.Is(errno, syscall.ESRCH):
		return false, nil
	case errors.Is(errno, syscall.EPERM):
		return true, nil
	}

	return false, fmt.Errorf("error signaling process: %w", err)
}

// RunCmd runs cmdName with args and returns its output and exit code.
func RunCmd(cmdName string, args []string) ([]byte, []byte, int, error) {
	var outBytes bytes.Buffer

	var errBytes bytes.Buffer

	cmd := exec.Command(cmdName, args...)
	cmd.Stdout = &outBytes
	cmd.Stderr = &errBytes

	err := cmd.Run()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return outBytes.Bytes(), errBytes.Bytes(), exitErr.ExitCode(), fmt.Errorf("error running %s: %w", cmdName, err)
		}

		return outBytes.Bytes(), errBytes.Bytes(), -1, fmt.Errorf("error running %s: %w", cmdName, err)
	}

	return outBytes.Bytes(), errBytes.Bytes(), 0, nil
}
