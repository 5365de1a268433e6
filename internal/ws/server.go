// Package ws pushes certificate and session events to console clients over
// Socket.IO.
package ws

import (
	"net/http"

	socketio "github.com/googollee/go-socket.io"
	"github.com/googollee/go-socket.io/engineio"
	"github.com/googollee/go-socket.io/engineio/transport"
	"github.com/googollee/go-socket.io/engineio/transport/polling"
	"github.com/googollee/go-socket.io/engineio/transport/websocket"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// broadcaster is the part of *socketio.Server used for publishing
type broadcaster interface {
	BroadcastToNamespace(namespace string, event string, args ...interface{}) bool
}

// Hub owns the Socket.IO server and the event log
type Hub struct {
	db          *gorm.DB
	server      *socketio.Server
	broadcaster broadcaster
	logger      *logrus.Entry
}

// NewHub creates the Socket.IO server. allowOrigin decides cross-origin
// handshakes; nil allows every origin.
func NewHub(db *gorm.DB, logger *logrus.Entry, allowOrigin func(origin string) bool) *Hub {
	checkOrigin := func(r *http.Request) bool {
		if allowOrigin == nil {
			return true
		}
		return allowOrigin(r.Header.Get("Origin"))
	}

	server := socketio.NewServer(&engineio.Options{
		Transports: []transport.Transport{
			&polling.Transport{CheckOrigin: checkOrigin},
			&websocket.Transport{CheckOrigin: checkOrigin},
		},
	})

	h := &Hub{
		db:          db,
		server:      server,
		broadcaster: server,
		logger:      logger.WithField("component", "ws"),
	}

	server.OnConnect("/", func(s socketio.Conn) error {
		// handshake was authenticated by Handler
		h.logger.WithField("conn", s.ID()).Debug("client connected")
		s.Emit("connected", map[string]interface{}{"ok": true})
		return nil
	})
	server.OnDisconnect("/", func(s socketio.Conn, reason string) {
		h.logger.WithFields(logrus.Fields{"conn": s.ID(), "reason": reason}).Debug("client disconnected")
	})
	server.OnError("/", func(s socketio.Conn, e error) {
		if s == nil {
			h.logger.WithError(e).Warn("socket.io error")
			return
		}
		h.logger.WithError(e).WithField("conn", s.ID()).Warn("socket.io error")
	})
	server.OnEvent("/", "request:events", h.handleRequestEvents)

	return h
}

// Serve runs the Socket.IO event loop in the background
func (h *Hub) Serve() {
	go func() {
		if err := h.server.Serve(); err != nil {
			h.logger.WithError(err).Error("socket.io server stopped")
		}
	}()
	h.logger.Info("Socket.IO server initialized")
}

// Close shuts the Socket.IO server down
func (h *Hub) Close() error {
	return h.server.Close()
}
