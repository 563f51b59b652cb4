//go:build !test

package cmd

func init() {
	disableFlagSorting(HostCmd)
	HostCmd.AddCommand(HostVersionCmd)
}
