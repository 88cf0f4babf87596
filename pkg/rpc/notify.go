package rpc

import (
	"context"
	"sync"

	"github.com/creachadair/jrpc2"
	"github.com/rs/zerolog"
)

// Notifier maintains the set of connected jrpc2 WebSocket servers and
// broadcasts push notifications to all of them
type Notifier struct {
	mu      sync.RWMutex
	servers map[*jrpc2.Server]struct{}
	log     zerolog.Logger
}

// NewNotifier creates an empty notifier
func NewNotifier(logger zerolog.Logger) *Notifier {
	return &Notifier{
		servers: make(map[*jrpc2.Server]struct{}),
		log:     logger,
	}
}

// Register adds a server to the broadcast set
func (n *Notifier) Register(srv *jrpc2.Server) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.servers[srv] = struct{}{}
}

// Unregister removes a server from the broadcast set
func (n *Notifier) Unregister(srv *jrpc2.Server) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.servers, srv)
}

// Broadcast sends a push notification to every registered server.
// Servers that fail to receive it are unregistered.
func (n *Notifier) Broadcast(method string, params any) {
	n.mu.RLock()
	servers := make([]*jrpc2.Server, 0, len(n.servers))
	for srv := range n.servers {
		servers = append(servers, srv)
	}
	n.mu.RUnlock()

	var failed []*jrpc2.Server
	for _, srv := range servers {
		if err := srv.Notify(context.Background(), method, params); err != nil {
			n.log.Debug().Err(err).Str("method", method).Msg("RPC push failed")
			failed = append(failed, srv)
		}
	}

	if len(failed) > 0 {
		n.mu.Lock()
		for _, srv := range failed {
			delete(n.servers, srv)
		}
		n.mu.Unlock()
	}
}

// Count returns the number of connected clients
func (n *Notifier) Count() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.servers)
}
