// ABOUTME: Tests for the announcement broadcaster
// ABOUTME: Captures outgoing datagrams through a fake socket
package announcer

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Salaam-Protocol/salaam-go/pkg/protocol"
)

// sinkConn records every datagram written to it.
type sinkConn struct {
	mu     sync.Mutex
	writes [][]byte
}

func (c *sinkConn) WriteTo(p []byte, addr net.Addr) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	buf := make([]byte, len(p))
	copy(buf, p)
	c.writes = append(c.writes, buf)
	return len(p), nil
}

func (c *sinkConn) datagrams() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.writes))
	copy(out, c.writes)
	return out
}

func (c *sinkConn) waitForWrites(t *testing.T, n int) [][]byte {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if got := c.datagrams(); len(got) >= n {
			return got
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d datagrams, got %d", n, len(c.datagrams()))
	return nil
}

func (c *sinkConn) ReadFrom(p []byte) (int, net.Addr, error) { return 0, nil, net.ErrClosed }
func (c *sinkConn) Close() error                             { return nil }
func (c *sinkConn) LocalAddr() net.Addr                      { return &net.UDPAddr{} }
func (c *sinkConn) SetDeadline(t time.Time) error            { return nil }
func (c *sinkConn) SetReadDeadline(t time.Time) error        { return nil }
func (c *sinkConn) SetWriteDeadline(t time.Time) error       { return nil }

func newTestAnnouncer(t *testing.T, config Config) (*Announcer, *sinkConn) {
	t.Helper()
	if config.HostName == "" {
		config.HostName = "testhost"
	}
	a, err := New(config)
	require.NoError(t, err)

	sink := &sinkConn{}
	a.dial = func(string) (net.PacketConn, net.Addr, error) {
		return sink, &net.UDPAddr{IP: net.IPv4bcast, Port: protocol.DefaultPort}, nil
	}
	return a, sink
}

func decode(t *testing.T, data []byte) *protocol.Announcement {
	t.Helper()
	ann, ok := protocol.Decode(data, &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 1})
	require.True(t, ok, "announcer produced an undecodable datagram")
	return ann
}

func TestStartBroadcastsImmediately(t *testing.T) {
	a, sink := newTestAnnouncer(t, Config{
		ServiceType: "print",
		Name:        "Printer1",
		Port:        9100,
		Message:     "ready",
		Interval:    time.Hour, // only the immediate broadcast should fire
	})
	require.NoError(t, a.Start())
	defer a.Stop()

	writes := sink.waitForWrites(t, 1)
	ann := decode(t, writes[0])
	assert.Equal(t, "testhost", ann.HostName)
	assert.Equal(t, "print", ann.ServiceType)
	assert.Equal(t, "Printer1", ann.Name)
	assert.Equal(t, 9100, ann.Port)
	assert.Equal(t, "ready", ann.Message)
	assert.Equal(t, "", ann.Code)
}

func TestBroadcastRepeatsOnInterval(t *testing.T) {
	a, sink := newTestAnnouncer(t, Config{
		ServiceType: "print",
		Name:        "Printer1",
		Interval:    20 * time.Millisecond,
	})
	require.NoError(t, a.Start())
	defer a.Stop()

	writes := sink.waitForWrites(t, 3)
	for _, data := range writes[:3] {
		assert.Equal(t, "", decode(t, data).Code)
	}
}

func TestStopBroadcastsEndOfService(t *testing.T) {
	a, sink := newTestAnnouncer(t, Config{
		ServiceType: "print",
		Name:        "Printer1",
		Interval:    time.Hour,
	})
	require.NoError(t, a.Start())
	sink.waitForWrites(t, 1)

	a.Stop()

	writes := sink.waitForWrites(t, 2)
	last := decode(t, writes[len(writes)-1])
	assert.Equal(t, protocol.CodeEndOfService, last.Code)

	// Idempotent: a second Stop sends nothing more.
	a.Stop()
	assert.Len(t, sink.datagrams(), len(writes))
}

func TestSetMessageTakesEffectOnNextBroadcast(t *testing.T) {
	a, sink := newTestAnnouncer(t, Config{
		ServiceType: "print",
		Name:        "Printer1",
		Message:     "ready",
		Interval:    20 * time.Millisecond,
	})
	require.NoError(t, a.Start())
	defer a.Stop()

	sink.waitForWrites(t, 1)
	a.SetMessage("busy")
	assert.Equal(t, "busy", a.Message())

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		writes := sink.datagrams()
		if decode(t, writes[len(writes)-1]).Message == "busy" {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("updated message never broadcast")
}

func TestNewRejectsServiceTypeWithSeparator(t *testing.T) {
	_, err := New(Config{ServiceType: "pri;nt"})
	assert.Error(t, err)
}

func TestNewDefaultsInstanceName(t *testing.T) {
	a, err := New(Config{HostName: "testhost", ServiceType: "print"})
	require.NoError(t, err)

	assert.Contains(t, a.config.Name, "testhost-")
	assert.Greater(t, len(a.config.Name), len("testhost-"))

	b, err := New(Config{HostName: "testhost", ServiceType: "print"})
	require.NoError(t, err)
	assert.NotEqual(t, a.config.Name, b.config.Name, "generated names must be unique")
}
