// Package sse provides Server-Sent Events support for the live call dashboard.
package sse

import (
	"encoding/json"
	"net/http"
	"sync"

	"callintake_backend/platform/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// EventType represents different types of SSE events.
type EventType string

const (
	EventCallStarted       EventType = "call-started"
	EventCallUpdated       EventType = "call-updated"
	EventCallEnded         EventType = "call-ended"
	EventEmergencyDetected EventType = "emergency-detected"
	EventDurationTick      EventType = "duration-tick"
)

// Event represents an SSE event payload.
type Event struct {
	Type   EventType   `json:"type"`
	CallID string      `json:"callId,omitempty"`
	Data   interface{} `json:"data,omitempty"`
}

// client represents a connected dashboard. Its mutex serializes sends
// against close so a publish racing a disconnect cannot hit a closed channel.
type client struct {
	companyID uuid.UUID

	mu     sync.Mutex
	closed bool
	events chan Event
}

// send delivers the event unless the client is closed or its buffer is full.
// It reports whether the event was dropped for a full buffer.
func (c *client) send(event Event) (dropped bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}
	select {
	case c.events <- event:
		return false
	default:
		return true
	}
}

// close is idempotent; a service Close racing a handler's deferred
// removeClient must not close the channel twice.
func (c *client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	close(c.events)
}

// Service manages SSE connections and event broadcasting per company.
type Service struct {
	mu      sync.RWMutex
	clients map[uuid.UUID][]*client // companyID -> clients
	log     *logger.Logger
}

// New creates a new SSE service.
func New(log *logger.Logger) *Service {
	return &Service{
		clients: make(map[uuid.UUID][]*client),
		log:     log,
	}
}

func (s *Service) addClient(c *client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[c.companyID] = append(s.clients[c.companyID], c)
}

func (s *Service) removeClient(c *client) {
	s.mu.Lock()
	defer s.mu.Unlock()

	clients := s.clients[c.companyID]
	for i, cl := range clients {
		if cl == c {
			s.clients[c.companyID] = append(clients[:i], clients[i+1:]...)
			break
		}
	}
	if len(s.clients[c.companyID]) == 0 {
		delete(s.clients, c.companyID)
	}

	c.close()
}

// Publish broadcasts an event to every dashboard watching the company.
// Slow consumers drop events rather than block the publisher.
func (s *Service) Publish(companyID uuid.UUID, event Event) {
	s.mu.RLock()
	clients := s.clients[companyID]
	s.mu.RUnlock()

	for _, c := range clients {
		if c.send(event) {
			s.log.Warn("sse event buffer full, dropping", "company_id", companyID, "event", string(event.Type))
		}
	}
}

// SubscriberCount reports how many dashboards watch the company.
func (s *Service) SubscriberCount(companyID uuid.UUID) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients[companyID])
}

// Handler returns a Gin handler for SSE connections. The client is registered
// before the snapshot is produced, so no event between snapshot and stream is
// lost; at-least-once duplicates are acceptable for the dashboard.
func (s *Service) Handler(getCompanyID func(*gin.Context) (uuid.UUID, bool), snapshot func(companyID uuid.UUID) interface{}) gin.HandlerFunc {
	return func(c *gin.Context) {
		companyID, ok := getCompanyID(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		c.Writer.Header().Set("Content-Type", "text/event-stream")
		c.Writer.Header().Set("Cache-Control", "no-cache")
		c.Writer.Header().Set("Connection", "keep-alive")
		c.Writer.Header().Set("X-Accel-Buffering", "no")

		cl := &client{
			companyID: companyID,
			events:    make(chan Event, 64),
		}
		s.addClient(cl)
		defer s.removeClient(cl)

		c.SSEvent("snapshot", snapshot(companyID))
		c.Writer.Flush()

		s.log.Debug("sse client connected", "company_id", companyID)

		clientGone := c.Request.Context().Done()
		for {
			select {
			case <-clientGone:
				s.log.Debug("sse client disconnected", "company_id", companyID)
				return
			case event, ok := <-cl.events:
				if !ok {
					return
				}
				data, _ := json.Marshal(event)
				c.SSEvent(string(event.Type), string(data))
				c.Writer.Flush()
			}
		}
	}
}

// Close shuts down the SSE service.
func (s *Service) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, clients := range s.clients {
		for _, c := range clients {
			c.close()
		}
	}
	s.clients = make(map[uuid.UUID][]*client)
}
