package vm

import (
	"fmt"
	"path/filepath"
	"regexp"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/cast"

	"vmhost/vmhostd/config"
	"vmhost/vmhostd/disk"
)

const (
	defaultMem      = 4096
	maxMem          = 16384
	defaultCPU      = 4
	maxCPU          = 8
	defaultDiskSize = 20 // GiB
	defaultRDPPort  = 3390
)

var validName = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,63}$`)

// Options is the loosely typed start request. Numbers may arrive as JSON numbers or strings.
type Options struct {
	Name        string      `mapstructure:"name"`
	IsoPath     string      `mapstructure:"isoPath"`
	DiskSize    interface{} `mapstructure:"diskSizeGB"`
	DiskFormat  string      `mapstructure:"diskFormat"`
	Mem         interface{} `mapstructure:"memoryMB"`
	CPU         interface{} `mapstructure:"cpuCount"`
	Arch        string      `mapstructure:"arch"`
	Accel       string      `mapstructure:"accel"`
	EfiFirmware string      `mapstructure:"efiFirmware"`
	SharedDir   string      `mapstructure:"sharedDir"`
	RDPPort     interface{} `mapstructure:"rdpPort"`
}

// DecodeOptions turns a decoded JSON object into a validated Config with defaults applied.
func DecodeOptions(input map[string]interface{}) (Config, error) {
	var opts Options

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &opts,
	})
	if err != nil {
		return Config{}, fmt.Errorf("error creating options decoder: %w", err)
	}

	err = decoder.Decode(input)
	if err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	return opts.Config()
}

func (o Options) Config() (Config, error) {
	var err error

	newConfig := Config{
		Name:        o.Name,
		IsoPath:     o.IsoPath,
		DiskFormat:  o.DiskFormat,
		Arch:        o.Arch,
		Accel:       o.Accel,
		EfiFirmware: o.EfiFirmware,
		SharedDir:   o.SharedDir,
	}

	newConfig.DiskSize, err = parseDiskSize(o.DiskSize)
	if err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	if o.Mem != nil {
		newConfig.Mem, err = cast.ToUint32E(o.Mem)
		if err != nil {
			return Config{}, fmt.Errorf("%w: memoryMB: %w", ErrInvalidConfig, err)
		}
	}

	if o.CPU != nil {
		newConfig.CPU, err = cast.ToUint16E(o.CPU)
		if err != nil {
			return Config{}, fmt.Errorf("%w: cpuCount: %w", ErrInvalidConfig, err)
		}
	}

	if o.RDPPort != nil {
		newConfig.RDPPort, err = cast.ToUint16E(o.RDPPort)
		if err != nil {
			return Config{}, fmt.Errorf("%w: rdpPort: %w", ErrInvalidConfig, err)
		}
	}

	newConfig.applyDefaults()

	err = newConfig.Validate()
	if err != nil {
		return Config{}, err
	}

	return newConfig, nil
}

func parseDiskSize(size interface{}) (uint64, error) {
	switch typed := size.(type) {
	case nil:
		return 0, nil
	case string:
		if typed == "" {
			return 0, nil
		}

		parsed, err := disk.ParseSize(typed)
		if err != nil {
			return 0, fmt.Errorf("diskSizeGB: %w", err)
		}

		return parsed, nil
	default:
		gigs, err := cast.ToUint64E(typed)
		if err != nil {
			return 0, fmt.Errorf("diskSizeGB: %w", err)
		}

		return gigs * 1024 * 1024 * 1024, nil
	}
}

func (c *Config) applyDefaults() {
	if c.Mem == 0 {
		c.Mem = defaultMem
	}

	c.Mem = min(c.Mem, maxMem)

	if c.CPU == 0 {
		c.CPU = defaultCPU
	}

	c.CPU = min(c.CPU, maxCPU)

	if c.DiskSize == 0 {
		c.DiskSize = defaultDiskSize * 1024 * 1024 * 1024
	}

	if c.DiskFormat == "" {
		c.DiskFormat = config.Config.Disk.Default.Format
	}

	if c.DiskFormat == "" {
		c.DiskFormat = disk.FormatRaw
	}

	if c.Arch == "" {
		c.Arch = config.Config.Qemu.Arch
	}

	if c.Arch == "" {
		c.Arch = "aarch64"
	}

	if c.Accel == "" {
		c.Accel = config.Config.Qemu.Accel
	}

	if c.Accel == "" {
		c.Accel = "tcg"
	}

	if c.RDPPort == 0 {
		c.RDPPort = config.Config.Qemu.RDPPort
	}

	if c.RDPPort == 0 {
		c.RDPPort = defaultRDPPort
	}
}

// Validate checks the fields a VM cannot start without.
func (c Config) Validate() error {
	if c.Name == "" || !validName.MatchString(c.Name) {
		return fmt.Errorf("%w: %w: %q", ErrInvalidConfig, errVMInvalidName, c.Name)
	}

	if c.IsoPath == "" {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errVMNoImage)
	}

	if _, ok := archDefaults[c.Arch]; !ok {
		return fmt.Errorf("%w: %w: %s", ErrInvalidConfig, errVMInvalidArch, c.Arch)
	}

	switch c.Accel {
	case "tcg", "kvm", "hvf":
	default:
		return fmt.Errorf("%w: %w: %s", ErrInvalidConfig, errVMInvalidAccel, c.Accel)
	}

	if c.DiskFormat != disk.FormatRaw && c.DiskFormat != disk.FormatQcow2 {
		return fmt.Errorf("%w: disk format %s", ErrInvalidConfig, c.DiskFormat)
	}

	return nil
}

// PathsFor derives every on-disk location for the named VM below stateDir. The log lives
// wherever the log sink keeps it.
func PathsFor(stateDir string, logPath string, name string) Paths {
	vmDir := filepath.Join(stateDir, name)

	return Paths{
		Dir:     vmDir,
		Disk:    filepath.Join(vmDir, "disk.img"),
		Config:  filepath.Join(vmDir, "config.json"),
		Status:  filepath.Join(vmDir, "status.json"),
		Log:     logPath,
		QMP:     filepath.Join(vmDir, "qmp.sock"),
		QemuLog: filepath.Join(vmDir, "qemu.log"),
	}
}
