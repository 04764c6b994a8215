package server

import (
	"bufio"
	"io"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hexagondb/internal/config"
	"hexagondb/internal/metrics"
)

// startTestServer boots a Server on loopback with an OS-assigned port and
// returns a dialer for it plus the Server; shutdown is registered with
// t.Cleanup.
func startTestServer(t *testing.T, mutate func(*config.Config)) (dial func() net.Conn, srv *Server) {
	t.Helper()
	cfg := config.Default()
	cfg.Server.BindAddress = "127.0.0.1"
	cfg.Server.Port = 0
	cfg.Server.MaxConnections = 8
	if mutate != nil {
		mutate(cfg)
	}

	s := New(cfg, metrics.NewMemorySink())

	// Run binds the listener synchronously inside Run before the accept
	// loop starts, but Run itself blocks; start it in a goroutine and poll
	// for the listener to appear.
	go func() { _ = s.Run() }()

	var addr string
	require.Eventually(t, func() bool {
		s.mu.Lock()
		ln := s.listener
		s.mu.Unlock()
		if ln == nil {
			return false
		}
		addr = ln.Addr().String()
		return true
	}, 2*time.Second, 5*time.Millisecond)

	t.Cleanup(func() {
		_ = s.Shutdown(2 * time.Second)
	})

	return func() net.Conn {
		conn, err := net.Dial("tcp", addr)
		require.NoError(t, err)
		return conn
	}, s
}

func sendCommand(t *testing.T, conn net.Conn, parts ...string) string {
	t.Helper()
	req := "*" + itoa(len(parts)) + "\r\n"
	for _, p := range parts {
		req += "$" + itoa(len(p)) + "\r\n" + p + "\r\n"
	}
	_, err := conn.Write([]byte(req))
	require.NoError(t, err)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	r := bufio.NewReader(conn)
	line, err := r.ReadString('\n')
	require.NoError(t, err)
	return line
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

func TestPingPong(t *testing.T) {
	dial, _ := startTestServer(t, nil)
	conn := dial()
	defer conn.Close()

	line := sendCommand(t, conn, "PING")
	assert.Equal(t, "+PONG\r\n", line)
}

func TestSetGetRoundTrip(t *testing.T) {
	dial, _ := startTestServer(t, nil)
	conn := dial()
	defer conn.Close()

	assert.Equal(t, "+OK\r\n", sendCommand(t, conn, "SET", "foo", "bar"))

	req := "*2\r\n$3\r\nGET\r\n$3\r\nfoo\r\n"
	_, err := conn.Write([]byte(req))
	require.NoError(t, err)
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	r := bufio.NewReader(conn)
	header, err := r.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "$3\r\n", header)
	body := make([]byte, 5)
	_, err = io.ReadFull(r, body)
	require.NoError(t, err)
	assert.Equal(t, "bar\r\n", string(body))
}

func TestNoAuthGatingOverTheWire(t *testing.T) {
	dial, _ := startTestServer(t, func(c *config.Config) {
		c.Security.Password = "s3cret"
	})
	conn := dial()
	defer conn.Close()

	line := sendCommand(t, conn, "SET", "foo", "bar")
	assert.Equal(t, "-NOAUTH Authentication required\r\n", line)

	line = sendCommand(t, conn, "AUTH", "wrong")
	assert.Contains(t, line, "WRONGPASS")

	line = sendCommand(t, conn, "AUTH", "s3cret")
	assert.Equal(t, "+OK\r\n", line)

	line = sendCommand(t, conn, "SET", "foo", "bar")
	assert.Equal(t, "+OK\r\n", line)
}

func TestMaxConnectionsRejectsExcessConnections(t *testing.T) {
	dial, _ := startTestServer(t, func(c *config.Config) {
		c.Server.MaxConnections = 1
	})

	first := dial()
	defer first.Close()
	// Hold the slot open by not closing; a second connection should be
	// accepted at the TCP level (backlog) but closed immediately by the
	// server without ever answering a command.
	second := dial()
	defer second.Close()

	second.SetReadDeadline(time.Now().Add(500 * time.Millisecond))
	buf := make([]byte, 16)
	_, err := second.Read(buf)
	assert.Error(t, err) // connection closed (EOF) rather than serving a reply
}

func TestSetsOverTheWireGrowKeyspaceSize(t *testing.T) {
	dial, s := startTestServer(t, nil)
	conn := dial()
	defer conn.Close()

	sendCommand(t, conn, "SET", "a", "1")
	sendCommand(t, conn, "SET", "b", "2")
	assert.Equal(t, 2, s.KS.DBSize())
}

func TestSaveWritesRDBFile(t *testing.T) {
	rdbPath := filepath.Join(t.TempDir(), "test.rdb")
	dial, s := startTestServer(t, func(c *config.Config) {
		c.Persistence.RdbEnabled = true
		c.Persistence.RdbPath = rdbPath
	})
	conn := dial()
	defer conn.Close()

	sendCommand(t, conn, "SET", "persisted", "value")
	line := sendCommand(t, conn, "SAVE")
	assert.Equal(t, "+OK\r\n", line)
	assert.FileExists(t, rdbPath)
	_ = s
}
