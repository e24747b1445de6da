package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"deepbook-sandbox/internal/domain"
)

const (
	streamWriteTimeout = 10 * time.Second
	streamPingInterval = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// The sandbox serves local tooling, not browsers with credentials.
	CheckOrigin: func(*http.Request) bool { return true },
}

// handleStream pushes every published book snapshot to the client. An
// optional market query parameter narrows the stream to one market.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	marketID := r.URL.Query().Get("market")
	if marketID != "" {
		if _, ok := s.markets.Market(marketID); !ok {
			writeJSON(w, http.StatusNotFound, errorBody("unknown market "+marketID))
			return
		}
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.opts.Logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	snapshots, cancel := s.markets.Subscribe()
	defer cancel()

	// Drain client frames so close handshakes are noticed.
	clientGone := make(chan struct{})
	go func() {
		defer close(clientGone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	// Send the current snapshot up front so subscribers start with state.
	if marketID != "" {
		if book, ok := s.markets.Book(marketID); ok {
			if err := writeSnapshot(conn, book); err != nil {
				return
			}
		}
	}

	ticker := time.NewTicker(streamPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-clientGone:
			return
		case <-r.Context().Done():
			return
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case snap := <-snapshots:
			if marketID != "" && snap.MarketID != marketID {
				continue
			}
			if err := writeSnapshot(conn, snap); err != nil {
				s.opts.Logger.Debug("stream write failed", zap.Error(err))
				return
			}
		}
	}
}

func writeSnapshot(conn *websocket.Conn, snap *domain.BookSnapshot) error {
	conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
	return conn.WriteJSON(snap)
}
