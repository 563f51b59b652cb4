package cmd

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"vmhost/vmhostctl/client"
)

var (
	RdpID     string
	RdpConfig = client.RdpConfig{Port: 3389, Width: 1024, Height: 768, ColorDepth: 32, EnableClipboard: true}
)

var RdpCmd = &cobra.Command{
	Use:   "rdp",
	Short: "Manage RDP client connections",
}

var RdpConnectCmd = &cobra.Command{
	Use:   "connect",
	Short: "Open an RDP connection",
	Long:  "Resolve the host, connect and run the X.224 negotiation. The client is kept even if this fails.",
	RunE:  rdpConnect,
}

var RdpListCmd = &cobra.Command{
	Use:   "list",
	Short: "List RDP clients",
	RunE:  rdpList,
}

var RdpGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Show an RDP client",
	RunE:  rdpGet,
}

var RdpDisconnectCmd = &cobra.Command{
	Use:   "disconnect",
	Short: "Disconnect an RDP client",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if RdpID == "" {
			return errRdpEmptyID
		}

		err := newClient().RdpDisconnect(cmd.Context(), RdpID)
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "RDP client %s disconnected\n", RdpID)

		return nil
	},
}

var RdpCloseCmd = &cobra.Command{
	Use:   "close",
	Short: "Disconnect every RDP client",
	RunE: func(cmd *cobra.Command, _ []string) error {
		err := newClient().RdpCloseAll(cmd.Context())
		if err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), "all RDP clients disconnected")

		return nil
	},
}

func rdpConnect(cmd *cobra.Command, _ []string) error {
	if RdpConfig.Host == "" {
		return errRdpEmptyHost
	}

	snapshot, err := newClient().RdpConnect(cmd.Context(), RdpConfig)
	if snapshot.ID != "" {
		printRdpClient(cmd.OutOrStdout(), snapshot)
	}

	return err
}

func rdpList(cmd *cobra.Command, _ []string) error {
	clients, err := newClient().RdpList(cmd.Context())
	if err != nil {
		return err
	}

	return render(cmd.OutOrStdout(), outputFormatString, clients, func(out io.Writer) {
		t := newTable(out, table.Row{"ID", "HOST", "PORT", "STATE", "LAST ERROR"})

		for _, snapshot := range clients {
			t.AppendRow(table.Row{
				snapshot.ID, snapshot.Config.Host, snapshot.Config.Port,
				colorRdpState(snapshot.State), snapshot.LastError,
			})
		}

		t.SetColumnConfigs(rightAlign(3))
		t.Render()
	})
}

func rdpGet(cmd *cobra.Command, _ []string) error {
	if RdpID == "" {
		return errRdpEmptyID
	}

	snapshot, err := newClient().RdpGet(cmd.Context(), RdpID)
	if err != nil {
		return err
	}

	return render(cmd.OutOrStdout(), outputFormatString, snapshot, func(out io.Writer) {
		printRdpClient(out, snapshot)
	})
}

func printRdpClient(out io.Writer, snapshot client.RdpClient) {
	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.SetStyle(myTableStyle)
	t.AppendRow(table.Row{"ID", snapshot.ID})
	t.AppendRow(table.Row{"STATE", colorRdpState(snapshot.State)})
	t.AppendRow(table.Row{"HOST", snapshot.Config.Host})
	t.AppendRow(table.Row{"PORT", snapshot.Config.Port})

	if snapshot.Config.Username != "" {
		t.AppendRow(table.Row{"USER", snapshot.Config.Username})
	}

	t.AppendRow(table.Row{"SCREEN", fmt.Sprintf("%dx%d@%d", snapshot.Config.Width, snapshot.Config.Height,
		snapshot.Config.ColorDepth)})
	t.AppendRow(table.Row{"AUDIO", fmt.Sprintf("%s (%d%%)", yesNo(snapshot.Config.EnableAudio), snapshot.AudioVolume)})
	t.AppendRow(table.Row{"CLIPBOARD", yesNo(snapshot.Config.EnableClipboard)})
	t.AppendRow(table.Row{"FILE SHARING", yesNo(snapshot.Config.EnableFileSharing)})

	if snapshot.LastError != "" {
		t.AppendRow(table.Row{"LAST ERROR", snapshot.LastError})
	}

	t.Render()
}
