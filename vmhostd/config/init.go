package config

import (
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/spf13/viper"
)

var errInvalidLogLevel = errors.New("invalid log level")
var errInvalidArch = errors.New("invalid qemu arch")
var errInvalidAccel = errors.New("invalid qemu accel")
var errInvalidFormat = errors.New("invalid default disk format")
var errMissingPath = errors.New("required path not set")

func SetDefaults(v *viper.Viper) {
	v.SetDefault("sys.pidfilepath", "/var/run/vmhostd.pid")
	v.SetDefault("db.path", "/var/db/vmhostd/vmhost.sqlite")
	v.SetDefault("disk.vm.path.state", "/var/db/vmhostd/state")
	v.SetDefault("disk.vm.path.log", "/var/log/vmhostd/vms")
	v.SetDefault("disk.default.format", "raw")
	v.SetDefault("log.path", "/var/log/vmhostd/vmhostd.log")
	v.SetDefault("log.level", "info")
	v.SetDefault("qemu.binary", "")
	v.SetDefault("qemu.arch", "aarch64")
	v.SetDefault("qemu.accel", "tcg")
	v.SetDefault("qemu.maxwait", 120)
	v.SetDefault("qemu.rdpport", 3390)
	v.SetDefault("network.api.ip", "127.0.0.1")
	v.SetDefault("network.api.port", 50052)
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.host", "127.0.0.1")
	v.SetDefault("metrics.port", 2223)
	v.SetDefault("rdp.connecttimeout", 5000)
	v.SetDefault("rdp.negotiationtimeout", 3000)
	v.SetDefault("rdp.idletimeout", 30)
}

// Load reads the config file (if any) and environment into Config.
func Load(v *viper.Viper, cfgFile string) error {
	SetDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("vmhostd")
		v.SetConfigType("yaml")
		v.AddConfigPath("/usr/local/etc")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("VMHOSTD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	err := v.ReadInConfig()
	if err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config: %w", err)
		}
	}

	var loaded Info

	err = v.Unmarshal(&loaded)
	if err != nil {
		return fmt.Errorf("error decoding config: %w", err)
	}

	err = Validate(loaded)
	if err != nil {
		return err
	}

	Config = loaded

	return nil
}

func Validate(info Info) error {
	switch strings.ToLower(info.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: %s", errInvalidLogLevel, info.Log.Level)
	}

	switch info.Qemu.Arch {
	case "x86_64", "i386", "aarch64":
	default:
		return fmt.Errorf("%w: %s", errInvalidArch, info.Qemu.Arch)
	}

	switch info.Qemu.Accel {
	case "tcg", "kvm", "hvf":
	default:
		return fmt.Errorf("%w: %s", errInvalidAccel, info.Qemu.Accel)
	}

	switch info.Disk.Default.Format {
	case "raw", "qcow2":
	default:
		return fmt.Errorf("%w: %s", errInvalidFormat, info.Disk.Default.Format)
	}

	if info.Disk.VM.Path.State == "" || info.Disk.VM.Path.Log == "" {
		return errMissingPath
	}

	if info.Network.API.IP != "" && net.ParseIP(info.Network.API.IP) == nil && info.Network.API.IP != "localhost" {
		return fmt.Errorf("invalid api ip %q", info.Network.API.IP)
	}

	return nil
}
