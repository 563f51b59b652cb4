package cmd

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"vmhost/vmhostctl/client"
)

var (
	VMName        string
	IsoPath       string
	DiskSize      string
	DiskFormat    string
	MemoryMB      uint32
	CPUCount      uint16
	Arch          string
	Accel         string
	EfiFirmware   string
	SharedDir     string
	VMRdpPort     uint16
	LogsFrom      int
	LogsFollow    bool
	Humanize      = true
	ShowIDs       bool
)

var VMCmd = &cobra.Command{
	Use:   "vm",
	Short: "Start, stop and inspect VMs",
}

var VMStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start a VM",
	Long:  "Create the VM's disk if needed and launch qemu for it",
	RunE:  vmStart,
}

var VMStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop a VM",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return vmAction(cmd, (*client.Client).StopVM, "stopped")
	},
}

var VMPauseCmd = &cobra.Command{
	Use:   "pause",
	Short: "Pause a running VM",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return vmAction(cmd, (*client.Client).PauseVM, "paused")
	},
}

var VMResumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Resume a paused VM",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return vmAction(cmd, (*client.Client).ResumeVM, "resumed")
	},
}

var VMDestroyCmd = &cobra.Command{
	Use:   "destroy",
	Short: "Stop a VM and forget it",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return vmAction(cmd, (*client.Client).DestroyVM, "destroyed")
	},
}

var VMGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Show a VM's details",
	RunE:  vmGet,
}

var VMStateCmd = &cobra.Command{
	Use:   "state",
	Short: "Show a VM's status",
	RunE:  vmState,
}

var VMListCmd = &cobra.Command{
	Use:   "list",
	Short: "List VMs",
	Long:  "List all VMs the daemon knows about and their status",
	RunE:  vmList,
}

var VMLogsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Print a VM's buffered log lines",
	RunE:  vmLogs,
}

var VMClearLogsCmd = &cobra.Command{
	Use:   "clear-logs",
	Short: "Drop a VM's buffered log lines",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return vmAction(cmd, (*client.Client).ClearLogs, "logs cleared")
	},
}

var RecordsCmd = &cobra.Command{
	Use:   "records",
	Short: "List the daemon's VM history",
	RunE:  listRecords,
}

func startOptions(cmd *cobra.Command) map[string]interface{} {
	options := map[string]interface{}{
		"name":    VMName,
		"isoPath": IsoPath,
	}

	flags := cmd.Flags()
	if flags.Changed("disk-size") {
		options["diskSizeGB"] = DiskSize
	}

	if flags.Changed("disk-format") {
		options["diskFormat"] = DiskFormat
	}

	if flags.Changed("mem") {
		options["memoryMB"] = MemoryMB
	}

	if flags.Changed("cpus") {
		options["cpuCount"] = CPUCount
	}

	if flags.Changed("arch") {
		options["arch"] = Arch
	}

	if flags.Changed("accel") {
		options["accel"] = Accel
	}

	if flags.Changed("efi") {
		options["efiFirmware"] = EfiFirmware
	}

	if flags.Changed("shared-dir") {
		options["sharedDir"] = SharedDir
	}

	if flags.Changed("rdp-port") {
		options["rdpPort"] = VMRdpPort
	}

	return options
}

func vmStart(cmd *cobra.Command, _ []string) error {
	if VMName == "" {
		return errVMEmptyName
	}

	if IsoPath == "" {
		return errVMNoImage
	}

	info, err := newClient().StartVM(cmd.Context(), startOptions(cmd))
	if err != nil {
		if info.Name != "" {
			printVMInfo(cmd.OutOrStdout(), info)
		}

		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "VM %s started, pid %d\n", info.Name, info.Pid)

	return nil
}

func vmAction(cmd *cobra.Command, action func(*client.Client, context.Context, string) error, done string) error {
	if VMName == "" {
		return errVMEmptyName
	}

	err := action(newClient(), cmd.Context(), VMName)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "VM %s %s\n", VMName, done)

	return nil
}

func vmGet(cmd *cobra.Command, _ []string) error {
	if VMName == "" {
		return errVMEmptyName
	}

	info, err := newClient().GetVM(cmd.Context(), VMName)
	if err != nil {
		return err
	}

	return render(cmd.OutOrStdout(), outputFormatString, info, func(out io.Writer) {
		printVMInfo(out, info)
	})
}

func vmState(cmd *cobra.Command, _ []string) error {
	if VMName == "" {
		return errVMEmptyName
	}

	info, err := newClient().GetVM(cmd.Context(), VMName)
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), colorVMStatus(info.Status))

	return nil
}

func formatMem(mem uint32) string {
	if Humanize {
		return humanize.IBytes(uint64(mem) * 1024 * 1024)
	}

	return strconv.FormatUint(uint64(mem), 10)
}

func printVMInfo(out io.Writer, info client.VMInfo) {
	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.SetStyle(myTableStyle)
	t.AppendRow(table.Row{"NAME", info.Name})
	t.AppendRow(table.Row{"ID", info.ID})
	t.AppendRow(table.Row{"STATUS", colorVMStatus(info.Status)})

	if info.Pid != 0 {
		t.AppendRow(table.Row{"PID", info.Pid})
	}

	t.AppendRow(table.Row{"CPUS", info.CPU})
	t.AppendRow(table.Row{"MEMORY", formatMem(info.Mem)})
	t.AppendRow(table.Row{"DISK", info.DiskPath})
	t.AppendRow(table.Row{"LOG", info.LogPath})
	t.AppendRow(table.Row{"QMP", info.QMPPath})

	if info.LastError != "" {
		t.AppendRow(table.Row{"LAST ERROR", info.LastError})
	}

	t.Render()
}

func vmList(cmd *cobra.Command, _ []string) error {
	vms, err := newClient().ListVMs(cmd.Context())
	if err != nil {
		return err
	}

	return render(cmd.OutOrStdout(), outputFormatString, vms, func(out io.Writer) {
		header := table.Row{"NAME", "STATUS", "PID", "CPUS", "MEMORY"}
		if ShowIDs {
			header = table.Row{"NAME", "ID", "STATUS", "PID", "CPUS", "MEMORY"}
		}

		t := newTable(out, header)

		for _, info := range vms {
			pid := ""
			if info.Pid != 0 {
				pid = strconv.Itoa(info.Pid)
			}

			if ShowIDs {
				t.AppendRow(table.Row{info.Name, info.ID, colorVMStatus(info.Status), pid, info.CPU, formatMem(info.Mem)})
			} else {
				t.AppendRow(table.Row{info.Name, colorVMStatus(info.Status), pid, info.CPU, formatMem(info.Mem)})
			}
		}

		if ShowIDs {
			t.SetColumnConfigs(rightAlign(4, 5, 6))
		} else {
			t.SetColumnConfigs(rightAlign(3, 4, 5))
		}

		t.Render()
	})
}

func vmLogs(cmd *cobra.Command, _ []string) error {
	if VMName == "" {
		return errVMEmptyName
	}

	out := cmd.OutOrStdout()
	vmClient := newClient()

	if LogsFollow {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		return vmClient.FollowLogs(ctx, VMName, LogsFrom, func(line string) {
			fmt.Fprintln(out, line)
		})
	}

	lines, _, err := vmClient.GetLogs(cmd.Context(), VMName, LogsFrom)
	if err != nil {
		return err
	}

	for _, line := range lines {
		fmt.Fprintln(out, line)
	}

	return nil
}

func listRecords(cmd *cobra.Command, _ []string) error {
	records, err := newClient().Records(cmd.Context())
	if err != nil {
		return err
	}

	return render(cmd.OutOrStdout(), outputFormatString, records, func(out io.Writer) {
		t := newTable(out, table.Row{"NAME", "ID", "STATUS", "PID", "DISK SIZE", "MEMORY", "CPUS", "UPDATED"})

		for _, record := range records {
			size := strconv.FormatUint(record.DiskSize, 10)
			if Humanize {
				size = humanize.IBytes(record.DiskSize)
			}

			t.AppendRow(table.Row{
				record.Name, record.ID, colorVMStatus(record.Status), record.Pid, size,
				formatMem(record.Mem), record.CPU, humanize.Time(record.UpdatedAt),
			})
		}

		t.SetColumnConfigs(rightAlign(5, 6, 7))
		t.Render()
	})
}
