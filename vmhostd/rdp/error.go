package rdp

import "errors"

var (
	ErrInvalidConfig      = errors.New("invalid rdp config")
	ErrAlreadyConnected   = errors.New("already connected")
	ErrConnectInProgress  = errors.New("connect already in progress")
	ErrResolutionFailure  = errors.New("failed resolving host")
	ErrConnectFailure     = errors.New("failed connecting")
	ErrNegotiationFailure = errors.New("rdp negotiation failed")
	ErrNotConnected       = errors.New("not connected")
)

var errClientNotFound = errors.New("rdp client not found")
var errAttemptAbandoned = errors.New("connection attempt abandoned")
