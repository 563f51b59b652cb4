package vm

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

type configFile struct {
	Name         string     `json:"name"`
	IsoPath      string     `json:"isoPath"`
	DiskSizeGB   uint64     `json:"diskSizeGB"`
	MemoryMB     uint32     `json:"memoryMB"`
	CPUCount     uint16     `json:"cpuCount"`
	Arch         string     `json:"arch"`
	DiskPath     string     `json:"diskPath"`
	LogPath      string     `json:"logPath"`
	Status       StatusType `json:"status"`
	Created      string     `json:"created"`
	LastModified string     `json:"lastModified"`
}

type statusFile struct {
	Status    StatusType `json:"status"`
	Timestamp string     `json:"timestamp"`
	Pid       *int       `json:"pid"`
}

var nowFunc = time.Now

func writeJSONFile(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("error encoding %s: %w", filepath.Base(path), err)
	}

	tmpPath := path + ".tmp"

	err = os.WriteFile(tmpPath, data, 0o644) //nolint:gosec
	if err != nil {
		return fmt.Errorf("%w: writing %s: %w", ErrIOFailure, path, err)
	}

	err = os.Rename(tmpPath, path)
	if err != nil {
		return fmt.Errorf("%w: renaming %s: %w", ErrIOFailure, path, err)
	}

	return nil
}

func (i *Instance) writeConfigFile(status StatusType) error {
	created := i.Created.UTC().Format(time.RFC3339)

	return writeJSONFile(i.Paths.Config, configFile{
		Name:         i.Config.Name,
		IsoPath:      i.Config.IsoPath,
		DiskSizeGB:   i.Config.DiskSize / (1024 * 1024 * 1024),
		MemoryMB:     i.Config.Mem,
		CPUCount:     i.Config.CPU,
		Arch:         i.Config.Arch,
		DiskPath:     i.Paths.Disk,
		LogPath:      i.Paths.Log,
		Status:       status,
		Created:      created,
		LastModified: nowFunc().UTC().Format(time.RFC3339),
	})
}

// writeStatusFile records status; pid is written as null unless the VM is running.
func (i *Instance) writeStatusFile(status StatusType, pid int) {
	record := statusFile{
		Status:    status,
		Timestamp: nowFunc().UTC().Format(time.RFC3339),
	}

	if pid > 0 && status.ownsPid() {
		record.Pid = &pid
	}

	err := writeJSONFile(i.Paths.Status, record)
	if err != nil {
		i.log.Debug("failed writing status file", "err", err)
	}
}
