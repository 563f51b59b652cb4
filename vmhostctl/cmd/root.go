package cmd

import (
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"vmhost/vmhostctl/client"
)

var myTableStyle = table.Style{
	Name: "vmhostStyle",
	Box: table.BoxStyle{
		MiddleHorizontal: "-", // go-pretty panics if this is empty
		PaddingRight:     "  ",
	},
	Format: table.FormatOptions{
		Footer: text.FormatUpper,
		Header: text.FormatUpper,
		Row:    text.FormatDefault,
	},
	Options: table.Options{
		DrawBorder:      false,
		SeparateColumns: false,
		SeparateFooter:  false,
		SeparateHeader:  false,
		SeparateRows:    false,
	},
}

var cfgFile string

var (
	defaultHost    = "localhost"
	defaultPort    = 50052
	defaultTimeout = 10
)

var mainVersion = "unknown"

var rootCmd = &cobra.Command{
	Use:          "vmhostctl",
	Short:        "Control a vmhostd daemon",
	Version:      mainVersion,
	SilenceUsage: true,
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".vmhostctl")
	}

	viper.SetEnvPrefix("VMHOSTCTL")
	viper.AutomaticEnv()
	_ = viper.ReadInConfig()

	if !term.IsTerminal(int(os.Stdout.Fd())) {
		color.NoColor = true
	}
}

// newClient is replaced in tests to point at an httptest server.
var newClient = func() *client.Client {
	return client.New(
		viper.GetString("server"),
		viper.GetUint16("port"),
		time.Duration(viper.GetUint64("timeout"))*time.Second,
	)
}
