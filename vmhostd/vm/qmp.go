package vm

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"time"
)

const qmpTimeout = 5 * time.Second

type qmpCommand struct {
	Execute string `json:"execute"`
}

type qmpResponse struct {
	Return json.RawMessage   `json:"return"`
	Error  *qmpResponseError `json:"error"`
	Event  string            `json:"event"`
}

type qmpResponseError struct {
	Class string `json:"class"`
	Desc  string `json:"desc"`
}

// qmpExecute opens the QMP socket, negotiates capabilities and runs a single command.
func qmpExecute(ctx context.Context, socketPath string, command string) error {
	ctx, cancel := context.WithTimeout(ctx, qmpTimeout)
	defer cancel()

	var dialer net.Dialer

	conn, err := dialer.DialContext(ctx, "unix", socketPath)
	if err != nil {
		return fmt.Errorf("error connecting to qmp: %w", err)
	}
	defer conn.Close()

	deadline, _ := ctx.Deadline()
	_ = conn.SetDeadline(deadline)

	reader := bufio.NewReader(conn)

	// greeting
	_, err = reader.ReadBytes('\n')
	if err != nil {
		return fmt.Errorf("error reading qmp greeting: %w", err)
	}

	for _, cmd := range []string{"qmp_capabilities", command} {
		err = qmpRoundTrip(conn, reader, cmd)
		if err != nil {
			return err
		}
	}

	return nil
}

func qmpRoundTrip(conn net.Conn, reader *bufio.Reader, command string) error {
	payload, err := json.Marshal(qmpCommand{Execute: command})
	if err != nil {
		return fmt.Errorf("error encoding qmp command: %w", err)
	}

	_, err = conn.Write(append(payload, '\n'))
	if err != nil {
		return fmt.Errorf("error sending qmp command %s: %w", command, err)
	}

	for {
		line, err := reader.ReadBytes('\n')
		if err != nil {
			return fmt.Errorf("error reading qmp response to %s: %w", command, err)
		}

		var resp qmpResponse

		err = json.Unmarshal(line, &resp)
		if err != nil {
			return fmt.Errorf("invalid qmp response: %w", err)
		}

		// async events can arrive before the reply
		if resp.Event != "" {
			continue
		}

		if resp.Error != nil {
			return fmt.Errorf("qmp %s failed: %s: %s", command, resp.Error.Class, resp.Error.Desc)
		}

		if resp.Return == nil {
			return fmt.Errorf("%w: %s", errQMPNoReturn, command)
		}

		return nil
	}
}
