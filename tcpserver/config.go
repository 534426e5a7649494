package tcpserver

import (
	"time"

	"github.com/cyberinferno/jsonwire/logger"
	"github.com/cyberinferno/jsonwire/mirror"
)

// Config holds configuration for the TCP ingest server.
type Config struct {
	// Name identifies the server in log entries and errors.
	Name string
	// Addr is the "host:port" to listen on (IPv4 only).
	Addr string
	// KeepAliveInterval is the pulse period clients are expected to honor.
	KeepAliveInterval time.Duration
	// KeepAliveCheckPeriod multiplies KeepAliveInterval to give the sweep cadence.
	KeepAliveCheckPeriod int
	// KeepAliveTimeout is how long a connection may go without a KEEP_ALIVE
	// before a timeout report is emitted.
	KeepAliveTimeout time.Duration
	// RecentDisconnectTTL bounds how long closed peers stay visible through
	// RecentDisconnects.
	RecentDisconnectTTL time.Duration
	// MirrorTimeout bounds each publish to Mirror; 0 means the default.
	MirrorTimeout time.Duration
	// Logger receives the server's structured log output; nil means silent.
	Logger logger.Logger
	// Mirror, when non-nil, receives a best-effort copy of every item enqueued
	// by a connection's read loop; sweeper timeout reports are not mirrored.
	Mirror mirror.Sink
}

// DefaultConfig returns a Config with default values for the given listen
// address. Override fields as needed before passing to New.
//
// Parameters:
//   - addr: The "host:port" to listen on
//
// Returns:
//   - A Config with defaults: KeepAliveInterval 10s, KeepAliveCheckPeriod 3,
//     KeepAliveTimeout 30s, RecentDisconnectTTL 5m, MirrorTimeout 2s.
func DefaultConfig(addr string) Config {
	return Config{
		Name:                 "jsonwire",
		Addr:                 addr,
		KeepAliveInterval:    10 * time.Second,
		KeepAliveCheckPeriod: 3,
		KeepAliveTimeout:     30 * time.Second,
		RecentDisconnectTTL:  5 * time.Minute,
		MirrorTimeout:        2 * time.Second,
	}
}

// normalized fills zero-valued fields from DefaultConfig so a partially
// populated Config still yields a working server.
func (c Config) normalized() Config {
	def := DefaultConfig(c.Addr)

	if c.Name == "" {
		c.Name = def.Name
	}
	if c.KeepAliveInterval <= 0 {
		c.KeepAliveInterval = def.KeepAliveInterval
	}
	if c.KeepAliveCheckPeriod <= 0 {
		c.KeepAliveCheckPeriod = def.KeepAliveCheckPeriod
	}
	if c.KeepAliveTimeout <= 0 {
		c.KeepAliveTimeout = def.KeepAliveTimeout
	}
	if c.RecentDisconnectTTL <= 0 {
		c.RecentDisconnectTTL = def.RecentDisconnectTTL
	}
	if c.MirrorTimeout <= 0 {
		c.MirrorTimeout = def.MirrorTimeout
	}
	if c.Logger == nil {
		c.Logger = logger.NewNopLogger()
	}

	return c
}

// sweepInterval returns how often the liveness sweeper runs.
func (c Config) sweepInterval() time.Duration {
	return c.KeepAliveInterval * time.Duration(c.KeepAliveCheckPeriod)
}
