package tracking

import (
	"sync"

	"github.com/google/uuid"
	"github.com/sealtrack/sealtrack-backend/pkg/metrics"
)

// Hub keys admin subscribers by task so a location update only fans out to
// connections watching that task. All state is in-process; agents never join
// rooms, they only produce.
type Hub struct {
	mu      sync.RWMutex
	rooms   map[uuid.UUID]map[*Client]struct{}
	metrics *metrics.Tracking
}

// NewHub builds an empty room registry.
func NewHub(m *metrics.Tracking) *Hub {
	return &Hub{
		rooms:   make(map[uuid.UUID]map[*Client]struct{}),
		metrics: m,
	}
}

// Subscribe joins the client to the task's room. Joining twice is a no-op.
func (h *Hub) Subscribe(taskID uuid.UUID, client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	room, ok := h.rooms[taskID]
	if !ok {
		room = make(map[*Client]struct{})
		h.rooms[taskID] = room
	}
	if _, joined := room[client]; joined {
		return
	}
	room[client] = struct{}{}
	if h.metrics != nil {
		h.metrics.Subscriptions.Inc()
	}
}

// Unsubscribe removes the client from the task's room. Idempotent.
func (h *Hub) Unsubscribe(taskID uuid.UUID, client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leave(taskID, client)
}

// Drop removes the client from every room it joined. Called on disconnect.
func (h *Hub) Drop(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for taskID := range h.rooms {
		h.leave(taskID, client)
	}
}

func (h *Hub) leave(taskID uuid.UUID, client *Client) {
	room, ok := h.rooms[taskID]
	if !ok {
		return
	}
	if _, joined := room[client]; !joined {
		return
	}
	delete(room, client)
	if len(room) == 0 {
		delete(h.rooms, taskID)
	}
	if h.metrics != nil {
		h.metrics.Subscriptions.Dec()
	}
}

// Broadcast queues the frame on every subscriber of the task's room and
// returns how many connections received it. Slow consumers whose buffers are
// full miss the frame rather than stalling the sender.
func (h *Hub) Broadcast(taskID uuid.UUID, frame Frame) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for client := range h.rooms[taskID] {
		if client.trySend(frame) {
			delivered++
		}
	}
	if h.metrics != nil && delivered > 0 {
		h.metrics.FanoutTotal.Add(float64(delivered))
	}
	return delivered
}

// RoomSize reports the subscriber count for a task.
func (h *Hub) RoomSize(taskID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[taskID])
}
