// Package tcpserver implements a TCP ingest server: it accepts client
// connections, frames each byte stream into brace-balanced JSON objects,
// decodes them, and delivers everything through a single ingress queue the
// application drains with ReadMessage. Clients prove liveness with
// periodic KEEP_ALIVE messages; a background sweeper reports peers that
// fall silent.
package tcpserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/cyberinferno/jsonwire/idgenerator"
	"github.com/cyberinferno/jsonwire/ingress"
	"github.com/cyberinferno/jsonwire/logger"
	"github.com/cyberinferno/jsonwire/message"
	"github.com/cyberinferno/jsonwire/safemap"
	"github.com/cyberinferno/jsonwire/timer"
)

// Synthetic software-error reasons delivered through the ingress queue.
const (
	reasonDecodeFailed = "Could not decode message"
	reasonConnClosed   = "Connection closed"
	reasonConnTimeout  = "Connection timeout"
)

// Server accepts TCP connections and feeds decoded messages into its
// ingress queue. Create with New, run with Start, and drain with
// ReadMessage; Stop tears down every connection and frees the queue. A
// stopped server may be started again and holds no state from the
// previous run.
type Server struct {
	cfg    Config
	logger logger.Logger
	ids    *idgenerator.IdGenerator

	listener    net.Listener
	connections *safemap.SafeMap[uint32, *Connection]
	queue       *ingress.Queue
	sweeper     *timer.Timer
	recent      *cache.Cache

	running atomic.Bool
	wg      sync.WaitGroup
}

// New creates a Server for the given config. Zero-valued config fields are
// filled from DefaultConfig.
//
// Parameters:
//   - cfg: Server configuration (see DefaultConfig)
//
// Returns:
//   - A new, not-yet-started Server
func New(cfg Config) *Server {
	cfg = cfg.normalized()

	return &Server{
		cfg:    cfg,
		logger: cfg.Logger.With(logger.Field{Key: "server", Value: cfg.Name}),
		ids:    idgenerator.NewIdGenerator(0),
	}
}

// Start binds an IPv4 listener on the configured address, initializes a
// fresh connection table, ingress queue, and recent-disconnect cache, and
// begins the accept loop and liveness sweeper. It is safe to call only
// when the server is not running.
//
// Returns:
//   - An error if the server is already running or if listening fails
func (s *Server) Start() error {
	if s.running.Load() {
		s.logger.Error("server already running")
		return fmt.Errorf("server %s already running", s.cfg.Name)
	}

	ln, err := net.Listen("tcp4", s.cfg.Addr)
	if err != nil {
		s.logger.Error("server failed to start", logger.Field{Key: "error", Value: err})
		return fmt.Errorf("server %s failed to start: %w", s.cfg.Name, err)
	}

	s.listener = ln
	s.connections = safemap.NewSafeMap[uint32, *Connection]()
	s.queue = ingress.NewQueue()
	s.recent = cache.New(s.cfg.RecentDisconnectTTL, 2*s.cfg.RecentDisconnectTTL)
	s.sweeper = timer.New(s.sweepKeepAlives, s.cfg.sweepInterval())

	s.running.Store(true)
	s.sweeper.Start()

	s.logger.Info("server started", logger.Field{Key: "addr", Value: ln.Addr().String()})

	s.wg.Add(1)
	go s.acceptLoop()

	return nil
}

// Stop shuts the server down: it stops the sweeper, closes the listener,
// destroys every live connection, waits for all connection goroutines to
// exit, and closes the ingress queue. After Stop returns nothing more is
// enqueued. Safe to call when the server is not running.
func (s *Server) Stop() {
	if !s.running.CompareAndSwap(true, false) {
		s.logger.Info("server not running")
		return
	}

	s.sweeper.Stop()
	_ = s.listener.Close()

	s.connections.Range(func(_ uint32, c *Connection) bool {
		s.destroyConnection(c)
		return true
	})

	s.wg.Wait()
	s.queue.Close()

	s.logger.Info("server stopped")
}

// Addr returns the listener's bound address, useful when the config asked
// for an ephemeral port. Empty when the server is not running.
func (s *Server) Addr() string {
	if !s.running.Load() || s.listener == nil {
		return ""
	}

	return s.listener.Addr().String()
}

// ReadMessage pops the head of the ingress queue: the oldest decoded
// message or synthetic error report. It never blocks waiting for data.
//
// Returns:
//   - The next item, or nil if the queue is empty or the server never started
func (s *Server) ReadMessage() *ingress.Item {
	queue := s.queue
	if queue == nil {
		return nil
	}

	return queue.Pop()
}

// ConnectedPeers returns a snapshot of the IPv4 addresses of all live
// connections. Order is undefined.
func (s *Server) ConnectedPeers() []netip.Addr {
	peers := make([]netip.Addr, 0)

	connections := s.connections
	if connections == nil {
		return peers
	}

	connections.Range(func(_ uint32, c *Connection) bool {
		peers = append(peers, c.peer.Addr())
		return true
	})

	return peers
}

// ConnectionCount returns the number of live connections.
func (s *Server) ConnectionCount() int {
	connections := s.connections
	if connections == nil {
		return 0
	}

	return connections.Len()
}

// acceptLoop runs in a goroutine and accepts incoming connections until
// the server stops. Accept failures while running are logged and retried;
// spurious wakeups happen under load.
func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for s.running.Load() {
		conn, err := s.listener.Accept()
		if err != nil {
			if !s.running.Load() {
				return
			}

			s.logger.Error("accept error", logger.Field{Key: "error", Value: err})
			continue
		}

		s.register(conn)
	}
}

// register places an accepted connection into the table under a fresh
// handle and starts its read goroutine. The insert happens before the
// first read so the connection is tracked from the moment it can produce
// messages.
func (s *Server) register(conn net.Conn) {
	tcpAddr, ok := conn.RemoteAddr().(*net.TCPAddr)
	if !ok {
		_ = conn.Close()
		return
	}

	addrPort := tcpAddr.AddrPort()
	peer := netip.AddrPortFrom(addrPort.Addr().Unmap(), addrPort.Port())
	if !peer.Addr().Is4() {
		_ = conn.Close()
		return
	}

	id := s.ids.Next()
	c := newConnection(id, conn, peer)

	if _, dup := s.connections.LoadOrStore(id, c); dup {
		// Handles are never reused while a connection lives; a duplicate
		// means the table is corrupt.
		panic(fmt.Sprintf("duplicate entry %d in connections table", id))
	}

	// A concurrent Stop may have swept the table between the accept and the
	// insert; tear the straggler down ourselves so Stop never waits on a
	// connection it cannot see.
	if !s.running.Load() {
		s.destroyConnection(c)
		return
	}

	s.logger.Info("connect",
		logger.Field{Key: "peer", Value: peer.String()},
		logger.Field{Key: "handle", Value: id})

	s.wg.Add(1)
	go s.readLoop(c)
}

// readLoop is the connection's only frame reader. It reads frames until
// the peer goes away or misbehaves, then destroys the connection. A remote
// close (clean or mid-frame) is reported through the queue after every
// frame that preceded it; protocol misuse destroys silently.
func (s *Server) readLoop(c *Connection) {
	defer s.wg.Done()

	connLogger := s.logger.With(logger.Field{Key: "peer", Value: c.peer.String()})

	for {
		frame, err := readJSONObject(c.reader)
		if err == nil {
			s.handleFrame(c, frame, connLogger)
			continue
		}

		switch {
		case errors.Is(err, errConnClosed) || errors.Is(err, errPartialFrame) ||
			errors.Is(err, syscall.ECONNRESET):
			s.reportClose(c)
		case errors.Is(err, errBadLeadByte):
			connLogger.Warn("framing error", logger.Field{Key: "error", Value: err})
		default:
			// Local teardown surfaces here as a closed-network error; only
			// log while the connection still belongs to us.
			if c.isOpen() {
				connLogger.Warn("read error", logger.Field{Key: "error", Value: err})
			}
		}

		s.destroyConnection(c)
		return
	}
}

// handleFrame decodes one frame and routes it: KEEP_ALIVE refreshes the
// liveness clock and is discarded, everything else is enqueued. A frame
// that fails to decode becomes a synthetic error item; the connection
// stays open.
func (s *Server) handleFrame(c *Connection, frame []byte, connLogger logger.Logger) {
	msg, err := message.Decode(frame)
	if err != nil {
		connLogger.Warn("decode error", logger.Field{Key: "frame", Value: string(frame)})
		s.enqueue(c, message.SoftwareError(reasonDecodeFailed))
		return
	}

	if msg.IsKeepAlive() {
		c.touchKeepAlive()
		return
	}

	s.enqueue(c, msg)
}

// enqueue appends a message for c to the ingress queue and mirrors it to
// the configured sink, if any. Mirror failures are logged and dropped.
func (s *Server) enqueue(c *Connection, msg message.Message) {
	item := &ingress.Item{
		Message:    msg,
		Peer:       c.peer.Addr(),
		ReceivedAt: time.Now(),
	}

	if !s.queue.Push(item) {
		return
	}

	if s.cfg.Mirror != nil {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.MirrorTimeout)
		defer cancel()

		if err := s.cfg.Mirror.Publish(ctx, item); err != nil {
			s.logger.Debug("mirror publish failed", logger.Field{Key: "error", Value: err})
		}
	}
}

// reportClose enqueues the "Connection closed" report for c. Skipped when
// teardown already started elsewhere (server stop), so a stopping server
// does not manufacture close reports.
func (s *Server) reportClose(c *Connection) {
	if !c.isOpen() {
		return
	}

	s.enqueue(c, message.SoftwareError(reasonConnClosed))
}

// destroyConnection tears c down: exactly one caller wins the state
// transition, removes c from the table before the socket closes (so no
// later dispatch can observe the handle), and records the disconnect.
func (s *Server) destroyConnection(c *Connection) {
	if !c.beginClose() {
		return
	}

	s.connections.Delete(c.id)
	c.finishClose()
	s.recordDisconnect(c.peer)

	s.logger.Info("disconnect",
		logger.Field{Key: "peer", Value: c.peer.String()},
		logger.Field{Key: "handle", Value: c.id})
}

// sweepKeepAlives runs on the sweep timer. Connections whose last
// KEEP_ALIVE is older than the timeout get a "Connection timeout" report;
// the push is non-blocking and a dropped report is re-emitted next sweep.
// The sweeper never destroys connections: the peer may recover, and a dead
// socket fails the read path on its own.
func (s *Server) sweepKeepAlives() {
	now := time.Now()

	s.connections.Range(func(_ uint32, c *Connection) bool {
		idle := now.Sub(c.lastSeen())
		if idle <= s.cfg.KeepAliveTimeout {
			return true
		}

		s.logger.Warn("no keep-alive from peer",
			logger.Field{Key: "peer", Value: c.peer.String()},
			logger.Field{Key: "idle", Value: idle.String()})

		item := &ingress.Item{
			Message:    message.SoftwareError(reasonConnTimeout),
			Peer:       c.peer.Addr(),
			ReceivedAt: now,
		}
		if !s.queue.TryPush(item) {
			s.logger.Debug("timeout report dropped, queue contended",
				logger.Field{Key: "peer", Value: c.peer.String()})
		}

		return true
	})
}
