package cmd

import "errors"

var (
	errVMEmptyName     = errors.New("empty VM name")
	errVMNoImage       = errors.New("no ISO image given")
	errVMUnknownFormat = errors.New("unknown output format")
)

var (
	errRdpEmptyID   = errors.New("empty RDP client ID")
	errRdpEmptyHost = errors.New("empty RDP host")
)
