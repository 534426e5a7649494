package tcpserver

import (
	"net/netip"
	"time"
)

// Disconnect records a peer whose connection closed recently.
type Disconnect struct {
	Peer netip.Addr
	At   time.Time
}

// recordDisconnect notes the peer in the TTL-bounded recent-disconnect
// cache. Repeated disconnects from the same peer keep the newest entry.
func (s *Server) recordDisconnect(peer netip.AddrPort) {
	recent := s.recent
	if recent == nil {
		return
	}

	recent.SetDefault(peer.Addr().String(), time.Now())
}

// RecentDisconnects returns the peers whose connections closed within the
// configured RecentDisconnectTTL, so the application can correlate timeout
// and close reports with peers that are already gone. Order is undefined.
//
// Returns:
//   - One Disconnect per recently closed peer address
func (s *Server) RecentDisconnects() []Disconnect {
	out := make([]Disconnect, 0)

	recent := s.recent
	if recent == nil {
		return out
	}

	for key, entry := range recent.Items() {
		addr, err := netip.ParseAddr(key)
		if err != nil {
			continue
		}

		at, ok := entry.Object.(time.Time)
		if !ok {
			continue
		}

		out = append(out, Disconnect{Peer: addr, At: at})
	}

	return out
}
