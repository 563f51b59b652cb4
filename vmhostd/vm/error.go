package vm

import "errors"

var ErrInvalidConfig = errors.New("invalid vm config")
var ErrAlreadyRunning = errors.New("vm already running")
var ErrInvalidStateTransition = errors.New("invalid state transition")
var ErrIOFailure = errors.New("vm io failure")
var ErrNotFound = errors.New("vm not found")

var errVMInvalidName = errors.New("invalid name")
var errVMNoImage = errors.New("source image path not set")
var errVMInvalidArch = errors.New("unsupported arch")
var errVMInvalidAccel = errors.New("unsupported accel")
var errVMBinaryNotFound = errors.New("backing binary not found")
var errVMNotStarted = errors.New("vm process has not started yet")
var errVMStopTimeout = errors.New("vm did not exit after forced termination")
var errQMPNoReturn = errors.New("qmp response missing return")
