package ipc

import (
	"bufio"
	"encoding/json"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ezemtsov/ewm/internal/event"
)

func startTestServer(t *testing.T) (*Server, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ewm-test.sock")
	s := NewServer(path)
	require.NoError(t, s.Start())
	t.Cleanup(s.Stop)
	return s, path
}

func dial(t *testing.T, path string) net.Conn {
	t.Helper()
	var conn net.Conn
	var err error
	for i := 0; i < 50; i++ {
		conn, err = net.Dial("unix", path)
		if err == nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestCommandsArriveOnChannel(t *testing.T) {
	s, path := startTestServer(t)
	conn := dial(t, path)

	_, err := conn.Write([]byte(`{"cmd":"focus","id":7}` + "\n"))
	require.NoError(t, err)

	select {
	case cmd := <-s.Commands():
		assert.Equal(t, &Focus{ID: 7}, cmd)
	case <-time.After(2 * time.Second):
		t.Fatal("command did not arrive")
	}
}

func TestMalformedLineKeepsSocketOpen(t *testing.T) {
	s, path := startTestServer(t)
	conn := dial(t, path)

	_, err := conn.Write([]byte("not json\n" + `{"cmd":"hide","id":1}` + "\n"))
	require.NoError(t, err)

	select {
	case cmd := <-s.Commands():
		assert.Equal(t, &Hide{ID: 1}, cmd, "the bad line is skipped, the good one delivered")
	case <-time.After(2 * time.Second):
		t.Fatal("command did not arrive after malformed line")
	}
}

func TestEventsReachController(t *testing.T) {
	s, path := startTestServer(t)
	conn := dial(t, path)

	// Let the accept loop register the connection before sending.
	deadline := time.Now().Add(2 * time.Second)
	for {
		s.SendEvent(event.Focus{ID: 3})
		conn.SetReadDeadline(time.Now().Add(50 * time.Millisecond))
		line, err := bufio.NewReader(conn).ReadBytes('\n')
		if err == nil {
			var m map[string]any
			require.NoError(t, json.Unmarshal(line, &m))
			assert.Equal(t, "focus", m["event"])
			assert.Equal(t, float64(3), m["id"])
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("event never reached the controller")
		}
	}
}

func TestEventBeforeConnectIsDropped(t *testing.T) {
	s, _ := startTestServer(t)
	// Nothing connected: must not panic or block.
	s.SendEvent(event.Ready{})
}
