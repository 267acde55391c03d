package handler

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/0xReLogic/Ember/internal/logging"
)

const (
	statusPushInterval = time.Second
	wsWriteTimeout     = 5 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The stream is read-only status data; any dashboard may subscribe.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleStatusStream upgrades the connection and pushes the load status on a
// fixed interval until the client disconnects.
func (a *API) handleStatusStream(w http.ResponseWriter, r *http.Request) {
	logger := logging.WithContext(r.Context())

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied with an HTTP error.
		logger.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	logger.Info().Str("remote", conn.RemoteAddr().String()).Msg("status stream opened")

	// Drain incoming frames so close handshakes and pings are processed;
	// a read error means the client is gone.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(statusPushInterval)
	defer ticker.Stop()

	// First frame immediately so subscribers don't wait a full interval.
	if err := a.writeStatusFrame(conn); err != nil {
		return
	}

	for {
		select {
		case <-done:
			logger.Info().Msg("status stream closed by client")
			return
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if err := a.writeStatusFrame(conn); err != nil {
				logger.Debug().Err(err).Msg("status stream write failed")
				return
			}
		}
	}
}

func (a *API) writeStatusFrame(conn *websocket.Conn) error {
	if err := conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout)); err != nil {
		return err
	}
	return conn.WriteJSON(a.statusPayload())
}
