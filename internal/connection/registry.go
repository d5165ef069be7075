// Package connection tracks the station's associations and carries
// neighbor report requests to the associated AP.
package connection

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/aiforce-discovery-agent/collectors/rrm-engine/internal/rrm"
	"github.com/aiforce-discovery-agent/collectors/rrm-engine/internal/wlan"
)

// ErrUnknownPeer is returned when no connection exists for a BSSID.
var ErrUnknownPeer = errors.New("no connection for peer")

// Connection is one association.
type Connection struct {
	ID rrm.ConnectionID `json:"id"`
	// Peer is the BSSID measurement requests arrive from.
	Peer wlan.BSSID `json:"peer_bssid"`
	// Connected is the BSS the station is associated with. It differs from
	// Peer when the association is to a non-transmitted multi-BSSID profile.
	Connected     wlan.BSSID `json:"connected_bssid"`
	Interface     string     `json:"interface,omitempty"`
	EstablishedAt time.Time  `json:"established_at"`
}

// Transmitter sends a neighbor report request frame on a connection.
type Transmitter interface {
	TransmitNeighborRequest(ctx context.Context, conn Connection, ssid string) error
}

// Registry implements rrm.ConnectionManager over an in-memory table.
type Registry struct {
	mu     sync.RWMutex
	next   rrm.ConnectionID
	byPeer map[wlan.BSSID]*Connection
	byID   map[rrm.ConnectionID]*Connection
	tx     Transmitter
	logger *zap.SugaredLogger
}

// NewRegistry creates an empty registry. A nil tx only logs neighbor
// requests.
func NewRegistry(tx Transmitter, logger *zap.SugaredLogger) *Registry {
	return &Registry{
		byPeer: make(map[wlan.BSSID]*Connection),
		byID:   make(map[rrm.ConnectionID]*Connection),
		tx:     tx,
		logger: logger,
	}
}

// Register records an association with peer. Re-registering a peer keeps
// its connection id and updates the rest.
func (r *Registry) Register(peer, connected wlan.BSSID, iface string) (Connection, error) {
	if peer.IsZero() || peer == wlan.Broadcast {
		return Connection{}, fmt.Errorf("invalid peer bssid %s", peer)
	}
	if connected.IsZero() {
		connected = peer
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.byPeer[peer]; ok {
		c.Connected = connected
		c.Interface = iface
		r.logger.Infow("Connection updated", "connection_id", c.ID, "peer", peer, "connected", connected)
		return *c, nil
	}

	r.next++
	c := &Connection{
		ID:            r.next,
		Peer:          peer,
		Connected:     connected,
		Interface:     iface,
		EstablishedAt: time.Now().UTC(),
	}
	r.byPeer[peer] = c
	r.byID[c.ID] = c
	r.logger.Infow("Connection registered", "connection_id", c.ID, "peer", peer, "connected", connected)
	return *c, nil
}

// Remove forgets the connection with peer.
func (r *Registry) Remove(peer wlan.BSSID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.byPeer[peer]
	if !ok {
		return false
	}
	delete(r.byPeer, peer)
	delete(r.byID, c.ID)
	r.logger.Infow("Connection removed", "connection_id", c.ID, "peer", peer)
	return true
}

// List returns every connection ordered by id.
func (r *Registry) List() []Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Connection, 0, len(r.byID))
	for _, c := range r.byID {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *Registry) ResolveSession(bssid wlan.BSSID) (rrm.ConnectionID, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.byPeer[bssid]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownPeer, bssid)
	}
	return c.ID, nil
}

func (r *Registry) ConnectedBSSID(id rrm.ConnectionID) (wlan.BSSID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.byID[id]
	if !ok {
		return wlan.BSSID{}, false
	}
	return c.Connected, true
}

// SendNeighborRequest transmits a neighbor report request on connection id.
func (r *Registry) SendNeighborRequest(ctx context.Context, id rrm.ConnectionID, ssid string) error {
	r.mu.RLock()
	c, ok := r.byID[id]
	var conn Connection
	if ok {
		conn = *c
	}
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: connection %d", ErrUnknownPeer, id)
	}

	r.logger.Infow("Sending neighbor report request",
		"connection_id", id,
		"peer", conn.Peer,
		"ssid", ssid,
	)
	if r.tx == nil {
		return nil
	}
	if err := r.tx.TransmitNeighborRequest(ctx, conn, ssid); err != nil {
		return fmt.Errorf("transmit on connection %d: %w", id, err)
	}
	return nil
}
