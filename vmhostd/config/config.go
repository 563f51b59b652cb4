package config

type Info struct {
	Sys struct {
		PidFilePath string `mapstructure:"pidfilepath"`
	} `mapstructure:"sys"`
	DB struct {
		Path string `mapstructure:"path"`
	} `mapstructure:"db"`
	Disk struct {
		VM struct {
			Path struct {
				State string `mapstructure:"state"`
				Log   string `mapstructure:"log"`
			} `mapstructure:"path"`
		} `mapstructure:"vm"`
		Default struct {
			Format string `mapstructure:"format"`
		} `mapstructure:"default"`
	} `mapstructure:"disk"`
	Log struct {
		Path  string `mapstructure:"path"`
		Level string `mapstructure:"level"`
	} `mapstructure:"log"`
	Qemu struct {
		Binary  string `mapstructure:"binary"`
		Arch    string `mapstructure:"arch"`
		Accel   string `mapstructure:"accel"`
		MaxWait uint32 `mapstructure:"maxwait"` // in seconds
		RDPPort uint16 `mapstructure:"rdpport"`
	} `mapstructure:"qemu"`
	Network struct {
		API struct {
			IP   string `mapstructure:"ip"`
			Port uint16 `mapstructure:"port"`
		} `mapstructure:"api"`
	} `mapstructure:"network"`
	Metrics struct {
		Enabled bool   `mapstructure:"enabled"`
		Host    string `mapstructure:"host"`
		Port    uint16 `mapstructure:"port"`
	} `mapstructure:"metrics"`
	Rdp struct {
		ConnectTimeout     uint32 `mapstructure:"connecttimeout"`     // in milliseconds
		NegotiationTimeout uint32 `mapstructure:"negotiationtimeout"` // in milliseconds
		IdleTimeout        uint32 `mapstructure:"idletimeout"`        // in seconds
	} `mapstructure:"rdp"`
}

var Config Info
