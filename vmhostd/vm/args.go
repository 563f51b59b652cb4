package vm

import (
	"log/slog"
	"strconv"

	"github.com/rxwycdh/rxhash"

	"vmhost/vmhostd/config"
)

type archDefault struct {
	machine string
	cpu     string
}

var archDefaults = map[string]archDefault{
	"x86_64":  {machine: "pc", cpu: "qemu64"},
	"i386":    {machine: "pc", cpu: "qemu32"},
	"aarch64": {machine: "virt,gic-version=3,virtualization=on", cpu: "max"},
}

// swapped in tests
var kvmAvailableFunc = IsKvmSupported

type MacHashData struct {
	VMID   string
	VMName string
	NicID  string
}

func binaryFor(arch string) string {
	if config.Config.Qemu.Binary != "" {
		return config.Config.Qemu.Binary
	}

	return "qemu-system-" + arch
}

func (i *Instance) getNameArg() []string {
	return []string{"-name", i.Config.Name}
}

func (i *Instance) getMachineArg() []string {
	defaults := archDefaults[i.Config.Arch]

	return []string{"-machine", defaults.machine, "-cpu", defaults.cpu}
}

func (i *Instance) getCPUArg() []string {
	return []string{"-smp", strconv.FormatUint(uint64(i.Config.CPU), 10)}
}

func (i *Instance) getMemArg() []string {
	return []string{"-m", strconv.FormatUint(uint64(i.Config.Mem), 10)}
}

func (i *Instance) getAccelArg() []string {
	switch i.Config.Accel {
	case "kvm":
		if kvmAvailableFunc() {
			return []string{"-accel", "kvm"}
		}

		slog.Warn("kvm requested but unavailable, falling back to tcg", "vm", i.Config.Name)
	case "hvf":
		return []string{"-accel", "hvf"}
	}

	return []string{"-accel", "tcg,thread=multi"}
}

func (i *Instance) getFirmwareArg() []string {
	if i.Config.EfiFirmware == "" {
		return []string{}
	}

	return []string{"-bios", i.Config.EfiFirmware}
}

func (i *Instance) getDiskArg() []string {
	if i.Paths.Disk == "" {
		return []string{}
	}

	return []string{"-drive", "file=" + i.Paths.Disk + ",if=virtio,format=" + i.Config.DiskFormat}
}

func (i *Instance) getCDArg() []string {
	if i.Config.IsoPath == "" {
		return []string{}
	}

	return []string{"-cdrom", i.Config.IsoPath}
}

func (i *Instance) getNetArg() []string {
	netdev := "user,id=net0" +
		",hostfwd=tcp::" + strconv.FormatUint(uint64(i.Config.RDPPort), 10) + "-:3389" +
		",hostfwd=tcp::2222-:22"

	device := "virtio-net-pci,netdev=net0"

	mac := i.getMac()
	if mac != "" {
		device += ",mac=" + mac
	}

	return []string{"-netdev", netdev, "-device", device}
}

// getMac derives a stable locally administered MAC from the VM identity.
func (i *Instance) getMac() string {
	nicHash, err := rxhash.HashStruct(MacHashData{
		VMID:   i.ID,
		VMName: i.Config.Name,
		NicID:  "net0",
	})
	if err != nil || len(nicHash) < 6 {
		slog.Error("error generating mac", "vm", i.Config.Name, "err", err)

		return ""
	}

	return "52:54:00:" +
		nicHash[0:2] + ":" +
		nicHash[2:4] + ":" +
		nicHash[4:6]
}

func (i *Instance) getMonitorArg() []string {
	return []string{"-qmp", "unix:" + i.Paths.QMP + ",server,nowait", "-monitor", "none"}
}

// serial goes to stdout, where the monitor picks it up and hands it to the log sink
func (i *Instance) getSerialArg() []string {
	return []string{"-nographic", "-serial", "stdio"}
}

func (i *Instance) getSharedDirArg() []string {
	if i.Config.SharedDir == "" {
		return []string{}
	}

	return []string{
		"-virtfs",
		"local,path=" + i.Config.SharedDir + ",mount_tag=hostshare,security_model=mapped-xattr,id=hostshare",
	}
}

func (i *Instance) getDebugLogArg() []string {
	return []string{"-D", i.Paths.QemuLog}
}

// generateCommandLine returns the backing binary and its argument vector.
func (i *Instance) generateCommandLine() (string, []string) {
	var args []string

	args = append(args, i.getNameArg()...)
	args = append(args, i.getMachineArg()...)
	args = append(args, i.getCPUArg()...)
	args = append(args, i.getMemArg()...)
	args = append(args, i.getAccelArg()...)
	args = append(args, i.getFirmwareArg()...)
	args = append(args, i.getDiskArg()...)
	args = append(args, i.getCDArg()...)
	args = append(args, i.getNetArg()...)
	args = append(args, i.getMonitorArg()...)
	args = append(args, i.getSerialArg()...)
	args = append(args, i.getSharedDirArg()...)
	args = append(args, i.getDebugLogArg()...)

	return binaryFor(i.Config.Arch), args
}
