//go:build !test

package cmd

import "github.com/spf13/cobra"

func addRdpIDArg(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&RdpID, "id", "i", RdpID, "ID of RDP client")

	err := cmd.MarkFlagRequired("id")
	if err != nil {
		panic(err)
	}
}

func setupRdpConnectCmd() {
	flags := RdpConnectCmd.Flags()
	flags.StringVar(&RdpConfig.Host, "host", RdpConfig.Host, "Host to connect to")
	flags.IntVar(&RdpConfig.Port, "rdp-port", RdpConfig.Port, "RDP port")
	flags.StringVarP(&RdpConfig.Username, "user", "u", RdpConfig.Username, "User name")
	flags.StringVarP(&RdpConfig.Password, "password", "p", RdpConfig.Password, "Password")
	flags.StringVarP(&RdpConfig.Domain, "domain", "d", RdpConfig.Domain, "Domain")
	flags.IntVar(&RdpConfig.Width, "width", RdpConfig.Width, "Screen width")
	flags.IntVar(&RdpConfig.Height, "height", RdpConfig.Height, "Screen height")
	flags.IntVar(&RdpConfig.ColorDepth, "color-depth", RdpConfig.ColorDepth, "Color depth (8, 15, 16, 24, 32)")
	flags.BoolVar(&RdpConfig.EnableAudio, "audio", RdpConfig.EnableAudio, "Enable audio")
	flags.BoolVar(&RdpConfig.EnableClipboard, "clipboard", RdpConfig.EnableClipboard, "Enable clipboard sharing")
	flags.BoolVar(&RdpConfig.EnableFileSharing, "file-sharing", RdpConfig.EnableFileSharing, "Enable file sharing")
	flags.StringVar(&RdpConfig.SharedFolder, "shared-folder", RdpConfig.SharedFolder, "Folder to share")

	err := RdpConnectCmd.MarkFlagRequired("host")
	if err != nil {
		panic(err)
	}
}

func init() {
	disableFlagSorting(RdpCmd)

	disableFlagSorting(RdpConnectCmd)
	setupRdpConnectCmd()

	disableFlagSorting(RdpListCmd)
	addFormatArg(RdpListCmd)

	disableFlagSorting(RdpGetCmd)
	addRdpIDArg(RdpGetCmd)
	addFormatArg(RdpGetCmd)

	disableFlagSorting(RdpDisconnectCmd)
	addRdpIDArg(RdpDisconnectCmd)

	RdpCmd.AddCommand(RdpConnectCmd)
	RdpCmd.AddCommand(RdpListCmd)
	RdpCmd.AddCommand(RdpGetCmd)
	RdpCmd.AddCommand(RdpDisconnectCmd)
	RdpCmd.AddCommand(RdpCloseCmd)
}
