package rpc

import (
	"context"
	"net/http"

	"github.com/coder/websocket"
	"github.com/creachadair/jrpc2"
)

// wsChannel adapts a websocket.Conn to the jrpc2 channel.Channel interface
type wsChannel struct {
	conn *websocket.Conn
	ctx  context.Context
}

func (c *wsChannel) Send(data []byte) error {
	return c.conn.Write(c.ctx, websocket.MessageText, data)
}

func (c *wsChannel) Recv() ([]byte, error) {
	_, data, err := c.conn.Read(c.ctx)
	return data, err
}

func (c *wsChannel) Close() error {
	return c.conn.Close(websocket.StatusNormalClosure, "")
}

// handleWS upgrades to a WebSocket and serves one jrpc2 server on it. The
// connection receives every push event until it disconnects.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.log.Debug().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	srv := jrpc2.NewServer(s.methods, &jrpc2.ServerOptions{AllowPush: true})
	srv.Start(&wsChannel{conn: conn, ctx: ctx})

	s.notifier.Register(srv)
	defer s.notifier.Unregister(srv)

	s.log.Debug().Str("remote", r.RemoteAddr).Msg("Event client connected")
	if err := srv.Wait(); err != nil {
		s.log.Debug().Err(err).Msg("Event client disconnected")
	}
}
