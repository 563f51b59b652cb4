package cmd

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var HostCmd = &cobra.Command{
	Use:   "host",
	Short: "Show what the daemon's host supports",
	RunE:  hostInfo,
}

var HostVersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the daemon and qemu version",
	RunE: func(cmd *cobra.Command, _ []string) error {
		version, err := newClient().Version(cmd.Context())
		if err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), version)

		return nil
	},
}

func hostInfo(cmd *cobra.Command, _ []string) error {
	hostClient := newClient()

	version, err := hostClient.Version(cmd.Context())
	if err != nil {
		return err
	}

	kvm, err := hostClient.KvmSupported(cmd.Context())
	if err != nil {
		return err
	}

	jit, err := hostClient.JitSupported(cmd.Context())
	if err != nil {
		return err
	}

	t := table.NewWriter()
	t.SetOutputMirror(cmd.OutOrStdout())
	t.SetStyle(myTableStyle)
	t.AppendRow(table.Row{"VERSION", version})
	t.AppendRow(table.Row{"KVM", yesNo(kvm)})
	t.AppendRow(table.Row{"JIT", yesNo(jit)})
	t.Render()

	return nil
}
