//go:build !test

package cmd

import "github.com/spf13/cobra"

func addNameArg(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&VMName, "name", "n", VMName, "Name of VM")

	err := cmd.MarkFlagRequired("name")
	if err != nil {
		panic(err)
	}
}

func addFormatArg(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&outputFormatString, "format", "f", outputFormatString,
		"Output format (txt, json, yaml)",
	)
}

func setupVMStartCmd() {
	addNameArg(VMStartCmd)
	VMStartCmd.Flags().StringVar(&IsoPath, "iso", IsoPath, "Path of the ISO image to boot")
	VMStartCmd.Flags().StringVar(&DiskSize, "disk-size", DiskSize, "Disk size, in GiB or with a unit (20G, 512M)")
	VMStartCmd.Flags().StringVar(&DiskFormat, "disk-format", DiskFormat, "Disk format (raw, qcow2)")
	VMStartCmd.Flags().Uint32Var(&MemoryMB, "mem", MemoryMB, "Memory in MB")
	VMStartCmd.Flags().Uint16Var(&CPUCount, "cpus", CPUCount, "Number of virtual CPUs")
	VMStartCmd.Flags().StringVar(&Arch, "arch", Arch, "Guest architecture (aarch64, x86_64)")
	VMStartCmd.Flags().StringVar(&Accel, "accel", Accel, "Accelerator (tcg, kvm, hvf)")
	VMStartCmd.Flags().StringVar(&EfiFirmware, "efi", EfiFirmware, "Path of the EFI firmware")
	VMStartCmd.Flags().StringVar(&SharedDir, "shared-dir", SharedDir, "Host directory to share with the guest")
	VMStartCmd.Flags().Uint16Var(&VMRdpPort, "rdp-port", VMRdpPort, "Host port forwarded to the guest's RDP port")

	err := VMStartCmd.MarkFlagRequired("iso")
	if err != nil {
		panic(err)
	}
}

func setupVMListCmd() {
	addFormatArg(VMListCmd)
	VMListCmd.Flags().BoolVarP(&Humanize, "human", "H", Humanize, "Print sizes in human readable form")
	VMListCmd.Flags().BoolVarP(&ShowIDs, "uuid", "u", ShowIDs, "Show IDs")
}

func setupVMLogsCmd() {
	addNameArg(VMLogsCmd)
	VMLogsCmd.Flags().IntVar(&LogsFrom, "from", LogsFrom, "First buffered line to print")
	VMLogsCmd.Flags().BoolVarP(&LogsFollow, "follow", "F", LogsFollow, "Keep printing new lines")
}

func init() {
	disableFlagSorting(VMCmd)

	for _, cmd := range []*cobra.Command{VMStopCmd, VMPauseCmd, VMResumeCmd, VMDestroyCmd, VMStateCmd, VMClearLogsCmd} {
		disableFlagSorting(cmd)
		addNameArg(cmd)
	}

	disableFlagSorting(VMStartCmd)
	setupVMStartCmd()

	disableFlagSorting(VMGetCmd)
	addNameArg(VMGetCmd)
	addFormatArg(VMGetCmd)

	disableFlagSorting(VMListCmd)
	setupVMListCmd()

	disableFlagSorting(VMLogsCmd)
	setupVMLogsCmd()

	disableFlagSorting(RecordsCmd)
	addFormatArg(RecordsCmd)
	RecordsCmd.Flags().BoolVarP(&Humanize, "human", "H", Humanize, "Print sizes in human readable form")

	VMCmd.AddCommand(VMListCmd)
	VMCmd.AddCommand(VMStartCmd)
	VMCmd.AddCommand(VMStopCmd)
	VMCmd.AddCommand(VMPauseCmd)
	VMCmd.AddCommand(VMResumeCmd)
	VMCmd.AddCommand(VMStateCmd)
	VMCmd.AddCommand(VMGetCmd)
	VMCmd.AddCommand(VMLogsCmd)
	VMCmd.AddCommand(VMClearLogsCmd)
	VMCmd.AddCommand(VMDestroyCmd)
}
