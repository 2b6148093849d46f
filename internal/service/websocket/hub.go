package websocket

import (
	"context"
	"encoding/json"
	"sync"

	"sras/internal/dto"
	"sras/internal/logger"
	"sras/internal/metrics"
	"sras/internal/model"

	"github.com/gorilla/websocket"
)

const broadcastBuffer = 16

// HubService fans violation events out to every connected subscriber.
type HubService struct {
	clients    map[*websocket.Conn]bool
	broadcast  chan []byte
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	done       chan struct{}
	mutex      sync.RWMutex
	logger     *logger.Logger
	metrics    *metrics.Metrics
}

func NewHubService(logger *logger.Logger, m *metrics.Metrics) *HubService {
	return &HubService{
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan []byte, broadcastBuffer),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		done:       make(chan struct{}),
		logger:     logger,
		metrics:    m,
	}
}

// Run serves register, unregister and broadcast requests until ctx is done,
// then closes every client.
func (h *HubService) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mutex.Lock()
			for client := range h.clients {
				client.Close()
				delete(h.clients, client)
			}
			h.mutex.Unlock()
			h.metrics.EventClients.Store(0)
			return

		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client] = true
			count := len(h.clients)
			h.mutex.Unlock()
			h.metrics.EventClients.Store(int64(count))
			h.logger.Info("Event subscriber connected. Total: %d", count)

		case client := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.Close()
			}
			count := len(h.clients)
			h.mutex.Unlock()
			h.metrics.EventClients.Store(int64(count))
			h.logger.Info("Event subscriber disconnected. Total: %d", count)

		case message := <-h.broadcast:
			h.mutex.Lock()
			for client := range h.clients {
				if err := client.WriteMessage(websocket.TextMessage, message); err != nil {
					h.logger.Error("Error sending event: %v", err)
					delete(h.clients, client)
					client.Close()
				}
			}
			count := len(h.clients)
			h.mutex.Unlock()
			h.metrics.EventClients.Store(int64(count))
		}
	}
}

func (h *HubService) Register(client *websocket.Conn) {
	select {
	case h.register <- client:
	case <-h.done:
		client.Close()
	}
}

func (h *HubService) Unregister(client *websocket.Conn) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Broadcast queues message for every subscriber. It never blocks the
// caller; when the hub is behind the message is dropped.
func (h *HubService) Broadcast(message []byte) bool {
	select {
	case h.broadcast <- message:
		return true
	default:
		h.logger.Warning("Event hub busy, dropping message")
		return false
	}
}

// Notify publishes a stored violation as a ViolationEvent.
func (h *HubService) Notify(camera string, v *model.Violation) {
	message, err := json.Marshal(dto.ViolationEvent{
		ID:        v.ID,
		Ref:       v.Ref,
		Camera:    camera,
		Plate:     v.PlateNumber,
		SpeedKPH:  v.SpeedKPH,
		HasPlate:  len(v.PlateImage) > 0,
		Timestamp: v.Timestamp,
	})
	if err != nil {
		h.logger.Error("Failed to encode violation event: %v", err)
		return
	}
	h.Broadcast(message)
}

func (h *HubService) GetClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}
