package services

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/kimtwitch/object-sync-for-salesforce/internal/metrics"
	"github.com/kimtwitch/object-sync-for-salesforce/internal/models"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// Admin surface already sits behind the IP whitelist and JWT.
		return true
	},
}

// feedConnection is one admin session subscribed to the activity feed.
type feedConnection struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

// feedMessage is the envelope broadcast to all sessions.
type feedMessage struct {
	Type      string      `json:"type"`
	Timestamp string      `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// ActivityFeedService broadcasts sync events to connected admin sessions
// over WebSocket. Delivery is best effort; slow sessions are dropped.
type ActivityFeedService struct {
	connections map[string]*feedConnection
	hub         chan feedMessage
	register    chan *feedConnection
	unregister  chan *feedConnection
	mutex       sync.RWMutex
	logger      *logrus.Logger
}

// NewActivityFeedService creates the feed and starts its broadcast loop.
func NewActivityFeedService(logger *logrus.Logger) *ActivityFeedService {
	if logger == nil {
		logger = logrus.New()
	}
	service := &ActivityFeedService{
		connections: make(map[string]*feedConnection),
		hub:         make(chan feedMessage, 256),
		register:    make(chan *feedConnection),
		unregister:  make(chan *feedConnection),
		logger:      logger,
	}

	go service.run()
	return service
}

func (s *ActivityFeedService) run() {
	for {
		select {
		case conn := <-s.register:
			s.mutex.Lock()
			s.connections[conn.id] = conn
			s.mutex.Unlock()
			metrics.ActivityFeedSessions.Set(float64(s.ActiveSessions()))
			s.logger.WithField("conn_id", conn.id).Info("Activity feed session connected")

		case conn := <-s.unregister:
			s.mutex.Lock()
			if _, ok := s.connections[conn.id]; ok {
				delete(s.connections, conn.id)
				close(conn.send)
			}
			s.mutex.Unlock()
			metrics.ActivityFeedSessions.Set(float64(s.ActiveSessions()))
			s.logger.WithField("conn_id", conn.id).Info("Activity feed session disconnected")

		case message := <-s.hub:
			s.broadcast(message)
		}
	}
}

func (s *ActivityFeedService) broadcast(message feedMessage) {
	data, err := json.Marshal(message)
	if err != nil {
		s.logger.WithError(err).Error("Failed to marshal feed message")
		return
	}

	s.mutex.RLock()
	defer s.mutex.RUnlock()
	for _, conn := range s.connections {
		select {
		case conn.send <- data:
		default:
			// Channel full: the session has stalled, reader will clean up.
			s.logger.WithField("conn_id", conn.id).Warn("Dropping feed message for stalled session")
		}
	}
}

// BroadcastSyncEvent queues a sync event for delivery to all sessions.
func (s *ActivityFeedService) BroadcastSyncEvent(event *models.SyncEvent) {
	s.hub <- feedMessage{
		Type:      "sync_event",
		Timestamp: time.Now().Format(time.RFC3339),
		Data:      event,
	}
}

// ActiveSessions returns the number of connected sessions.
func (s *ActivityFeedService) ActiveSessions() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return len(s.connections)
}

// HandleWebSocket upgrades the request and pumps feed messages until the
// session closes.
func (s *ActivityFeedService) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.WithError(err).Error("WebSocket upgrade failed")
		return
	}

	connection := &feedConnection{
		id:   fmt.Sprintf("feed_%d", time.Now().UnixNano()),
		conn: conn,
		send: make(chan []byte, 64),
	}

	s.register <- connection

	go s.writePump(connection)
	go s.readPump(connection)
}

func (s *ActivityFeedService) writePump(conn *feedConnection) {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		conn.conn.Close()
	}()

	for {
		select {
		case message, ok := <-conn.send:
			conn.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				conn.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			conn.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *ActivityFeedService) readPump(conn *feedConnection) {
	defer func() {
		s.unregister <- conn
		conn.conn.Close()
	}()

	conn.conn.SetReadLimit(512)
	conn.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.conn.SetPongHandler(func(string) error {
		conn.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		if _, _, err := conn.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.logger.WithError(err).Debug("Activity feed read error")
			}
			break
		}
	}
}
