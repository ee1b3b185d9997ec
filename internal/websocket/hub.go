// Package websocket pushes dataset-update events to open dashboard
// tabs so they re-fetch their charts after a simulation run or upload.
package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"epipulse/pkg/contracts/domain"
)

// Message types sent to dashboard clients
const (
	TypeConnection    = "connection"
	TypeDatasetUpdate = "dataset_update"
)

// Message is the envelope for every event pushed to clients
type Message struct {
	Type      string      `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload,omitempty"`
}

// DatasetUpdatePayload announces a replaced working dataset
type DatasetUpdatePayload struct {
	DatasetID string               `json:"dataset_id"`
	Source    domain.DatasetSource `json:"source"`
	Name      string               `json:"name"`
	Records   int                  `json:"records"`
}

// Hub maintains the set of active clients and routes events to them.
// Dataset updates go only to clients of the owning session.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]bool

	register   chan *Client
	unregister chan *Client
	events     chan targetedEvent

	logger  *slog.Logger
	quit    chan struct{}
	running bool
}

type targetedEvent struct {
	sessionID string // "" broadcasts to every client
	data      []byte
}

// NewHub creates a new hub
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		events:     make(chan targetedEvent, 64),
		logger:     logger.With(slog.String("component", "websocket.hub")),
		quit:       make(chan struct{}),
	}
}

// Run processes registrations and events until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) error {
	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		return nil
	}
	h.running = true
	h.mu.Unlock()

	h.logger.Info("websocket hub started")

	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			count := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug("client registered",
				slog.String("client_id", client.id),
				slog.Int("clients", count))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			count := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug("client unregistered",
				slog.String("client_id", client.id),
				slog.Int("clients", count))

		case event := <-h.events:
			h.deliver(event)

		case <-ctx.Done():
			h.shutdown()
			return ctx.Err()

		case <-h.quit:
			h.shutdown()
			return nil
		}
	}
}

// Stop closes the hub and disconnects all clients
func (h *Hub) Stop() {
	close(h.quit)
}

// NotifyDatasetUpdate implements services.DatasetNotifier. The event
// reaches only the clients belonging to the given session.
func (h *Hub) NotifyDatasetUpdate(sessionID string, dataset *domain.Dataset) {
	data, err := json.Marshal(Message{
		Type:      TypeDatasetUpdate,
		Timestamp: time.Now().UTC(),
		Payload: DatasetUpdatePayload{
			DatasetID: dataset.ID,
			Source:    dataset.Source,
			Name:      dataset.Name,
			Records:   len(dataset.Records),
		},
	})
	if err != nil {
		h.logger.Error("failed to marshal dataset update", slog.String("error", err.Error()))
		return
	}

	select {
	case h.events <- targetedEvent{sessionID: sessionID, data: data}:
	default:
		h.logger.Warn("event queue full, dropping dataset update",
			slog.String("session_id", sessionID))
	}
}

func (h *Hub) deliver(event targetedEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients {
		if event.sessionID != "" && client.sessionID != event.sessionID {
			continue
		}
		select {
		case client.send <- event.data:
		default:
			// Slow consumer; drop the event rather than block the hub.
			h.logger.Warn("client send buffer full",
				slog.String("client_id", client.id))
		}
	}
}

func (h *Hub) shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		close(client.send)
		delete(h.clients, client)
	}
	h.running = false
	h.logger.Info("websocket hub stopped")
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
