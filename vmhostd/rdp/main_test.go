package rdp

import (
	"context"
	"net"
	"sync"
	"testing"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeServer accepts connections on loopback and hands each one to handle.
type fakeServer struct {
	listener net.Listener
	wg       sync.WaitGroup
}

func newFakeServer(t *testing.T, handle func(conn net.Conn)) *fakeServer {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	server := &fakeServer{listener: listener}
	server.wg.Add(1)

	go func() {
		defer server.wg.Done()

		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}

			server.wg.Add(1)

			go func() {
				defer server.wg.Done()
				defer conn.Close()

				handle(conn)
			}()
		}
	}()

	t.Cleanup(func() {
		_ = listener.Close()
		server.wg.Wait()
	})

	return server
}

func (s *fakeServer) config() Config {
	addr := s.listener.Addr().(*net.TCPAddr)

	return Config{Host: "127.0.0.1", Port: addr.Port, Width: 1280, Height: 800, ColorDepth: 32}
}

// connectionConfirmReply is a server reply accepting the negotiation with TLS.
var connectionConfirmReply = []byte{
	0x03, 0x00, 0x00, 0x13,
	0x0E, 0xD0, 0x00, 0x00, 0x12, 0x34, 0x00,
	0x02, 0x00, 0x08, 0x00, 0x01, 0x00, 0x00, 0x00,
}

// replyWith reads the request and answers with reply, then waits for the client to hang up.
func replyWith(reply []byte) func(conn net.Conn) {
	return func(conn net.Conn) {
		buf := make([]byte, len(negotiationRequest))

		_, err := readFull(conn, buf)
		if err != nil {
			return
		}

		_, _ = conn.Write(reply)

		// drain until the client closes
		_, _ = conn.Read(make([]byte, 1))
	}
}

func readFull(conn net.Conn, buf []byte) (int, error) {
	read := 0

	for read < len(buf) {
		n, err := conn.Read(buf[read:])
		read += n

		if err != nil {
			return read, err
		}
	}

	return read, nil
}

type fakeResolver struct {
	addrs []net.IPAddr
	err   error
	block bool
}

func (f fakeResolver) LookupIPAddr(ctx context.Context, _ string) ([]net.IPAddr, error) {
	if f.block {
		<-ctx.Done()

		return nil, ctx.Err()
	}

	return f.addrs, f.err
}

func testClient(t *testing.T, timeouts Timeouts) *Client {
	t.Helper()

	c := NewClient(Options{Timeouts: timeouts})

	t.Cleanup(func() { _ = c.Disconnect() })

	return c
}

// connectedClient returns a client negotiated with a local fake server.
func connectedClient(t *testing.T) *Client {
	t.Helper()

	server := newFakeServer(t, replyWith(connectionConfirmReply))
	c := testClient(t, Timeouts{})

	err := c.Connect(context.Background(), server.config())
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	return c
}
