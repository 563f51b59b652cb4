package rdp

import (
	"context"
	"fmt"
	"net"
	"time"
)

// negotiationRequest is a TPKT header (version 3, length 19) wrapping an X.224 connection
// request and an RDP negotiation request advertising TLS and CredSSP.
var negotiationRequest = []byte{
	0x03, 0x00, 0x00, 0x13,
	0x0E, 0xE0, 0x00, 0x00, 0x00, 0x00, 0x00,
	0x01, 0x00, 0x08, 0x00, 0x03, 0x00, 0x00, 0x00,
}

const (
	tpktVersion        = 0x03
	minResponseLen     = 11
	connectionConfirm  = 0xD0
	responseReadBuffer = 1024
)

// negotiate sends the negotiation request and validates the server's connection confirm.
// Cancelling ctx unblocks a pending read or write by expiring the connection deadline.
func negotiate(ctx context.Context, conn net.Conn, timeout time.Duration) error {
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Unix(1, 0))
	})
	defer stop()

	err := conn.SetDeadline(time.Now().Add(timeout))
	if err != nil {
		return fmt.Errorf("%w: failed setting deadline: %w", ErrNegotiationFailure, err)
	}

	_, err = conn.Write(negotiationRequest)
	if err != nil {
		return fmt.Errorf("%w: failed sending request: %w", ErrNegotiationFailure, err)
	}

	resp := make([]byte, responseReadBuffer)

	n, err := conn.Read(resp)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%w: cancelled: %w", ErrNegotiationFailure, ctx.Err())
		}

		return fmt.Errorf("%w: no response: %w", ErrNegotiationFailure, err)
	}

	err = checkResponse(resp[:n])
	if err != nil {
		return err
	}

	_ = conn.SetDeadline(time.Time{})

	return nil
}

func checkResponse(resp []byte) error {
	if len(resp) < minResponseLen {
		return fmt.Errorf("%w: Invalid RDP response: %d bytes", ErrNegotiationFailure, len(resp))
	}

	if resp[0] != tpktVersion {
		return fmt.Errorf("%w: Invalid RDP response: tpkt version %d", ErrNegotiationFailure, resp[0])
	}

	if resp[5]&0xF0 != connectionConfirm {
		return fmt.Errorf("%w: connection refused by server: code 0x%02X", ErrNegotiationFailure, resp[5])
	}

	return nil
}
