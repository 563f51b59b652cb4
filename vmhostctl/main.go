package main

import "vmhost/vmhostctl/cmd"

func main() {
	cmd.Execute()
}
