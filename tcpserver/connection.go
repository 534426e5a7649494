package tcpserver

import (
	"bufio"
	"net"
	"net/netip"
	"sync/atomic"
	"time"
)

// Connection states. Transitions are Open -> Closing -> Closed, driven by
// compare-and-swap so exactly one goroutine wins the right to tear a
// connection down. Closed connections are no longer in the table.
const (
	stateOpen int32 = iota
	stateClosing
	stateClosed
)

// Connection is the per-client state tracked in the connection table. The
// server starts one read goroutine per connection at accept time; that
// goroutine is the only frame reader for the connection, so reads need no
// further serialization.
type Connection struct {
	id     uint32
	conn   net.Conn
	reader *bufio.Reader
	peer   netip.AddrPort

	lastKeepAlive atomic.Int64 // unix nanoseconds
	state         atomic.Int32
}

// newConnection wraps an accepted conn. The liveness clock starts at now.
func newConnection(id uint32, conn net.Conn, peer netip.AddrPort) *Connection {
	c := &Connection{
		id:     id,
		conn:   conn,
		reader: bufio.NewReader(conn),
		peer:   peer,
	}
	c.lastKeepAlive.Store(time.Now().UnixNano())
	return c
}

// ID returns the connection's table handle.
func (c *Connection) ID() uint32 {
	return c.id
}

// Peer returns the remote address captured at accept time.
func (c *Connection) Peer() netip.AddrPort {
	return c.peer
}

// touchKeepAlive refreshes the liveness timestamp. Only the connection's
// read goroutine calls this, so the timestamp is monotonically
// non-decreasing.
func (c *Connection) touchKeepAlive() {
	now := time.Now().UnixNano()
	if now > c.lastKeepAlive.Load() {
		c.lastKeepAlive.Store(now)
	}
}

// lastSeen returns the time of the most recent KEEP_ALIVE (or accept).
func (c *Connection) lastSeen() time.Time {
	return time.Unix(0, c.lastKeepAlive.Load())
}

// isOpen reports whether the connection has not begun teardown.
func (c *Connection) isOpen() bool {
	return c.state.Load() == stateOpen
}

// beginClose attempts the Open -> Closing transition and reports whether
// this caller won it. Losers must not touch the connection further.
func (c *Connection) beginClose() bool {
	return c.state.CompareAndSwap(stateOpen, stateClosing)
}

// finishClose completes teardown: marks the connection Closed and closes
// the socket, unblocking the read goroutine if it is mid-read. Only the
// beginClose winner calls this, after removing the connection from the
// table.
func (c *Connection) finishClose() {
	c.state.Store(stateClosed)
	_ = c.conn.Close()
}
