package tracking

import (
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sealtrack/sealtrack-backend/pkg/enums"
	"github.com/sealtrack/sealtrack-backend/pkg/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newHubClient(buffer int) *Client {
	return newClient(nil, uuid.New(), enums.RoleAdmin, "", buffer)
}

func TestHubSubscribeAndBroadcast(t *testing.T) {
	hub := NewHub(metrics.NewTracking(prometheus.NewRegistry()))
	taskID := uuid.New()
	other := uuid.New()

	watcher := newHubClient(4)
	bystander := newHubClient(4)

	hub.Subscribe(taskID, watcher)
	hub.Subscribe(other, bystander)

	frame, err := marshalFrame(TypeLocationUpdate, LocationUpdate{TaskID: taskID})
	require.NoError(t, err)

	delivered := hub.Broadcast(taskID, frame)
	assert.Equal(t, 1, delivered)

	select {
	case got := <-watcher.send:
		assert.Equal(t, TypeLocationUpdate, got.Type)
	default:
		t.Fatal("watcher did not receive the broadcast")
	}

	select {
	case <-bystander.send:
		t.Fatal("bystander received a frame for a room it never joined")
	default:
	}
}

func TestHubSubscribeIsIdempotent(t *testing.T) {
	hub := NewHub(nil)
	taskID := uuid.New()
	watcher := newHubClient(4)

	hub.Subscribe(taskID, watcher)
	hub.Subscribe(taskID, watcher)
	assert.Equal(t, 1, hub.RoomSize(taskID))

	frame, err := marshalFrame(TypeLocationUpdate, LocationUpdate{TaskID: taskID})
	require.NoError(t, err)
	assert.Equal(t, 1, hub.Broadcast(taskID, frame))
}

func TestHubUnsubscribeIsIdempotent(t *testing.T) {
	hub := NewHub(nil)
	taskID := uuid.New()
	watcher := newHubClient(4)

	hub.Subscribe(taskID, watcher)
	hub.Unsubscribe(taskID, watcher)
	hub.Unsubscribe(taskID, watcher)
	assert.Zero(t, hub.RoomSize(taskID))

	// Unsubscribing from a room never joined is also fine.
	hub.Unsubscribe(uuid.New(), watcher)
}

func TestHubDropLeavesEveryRoom(t *testing.T) {
	hub := NewHub(nil)
	taskA := uuid.New()
	taskB := uuid.New()
	watcher := newHubClient(4)
	stays := newHubClient(4)

	hub.Subscribe(taskA, watcher)
	hub.Subscribe(taskB, watcher)
	hub.Subscribe(taskA, stays)

	hub.Drop(watcher)
	assert.Equal(t, 1, hub.RoomSize(taskA))
	assert.Zero(t, hub.RoomSize(taskB))
}

func TestHubBroadcastSkipsFullBuffers(t *testing.T) {
	hub := NewHub(nil)
	taskID := uuid.New()
	slow := newHubClient(1)
	hub.Subscribe(taskID, slow)

	frame, err := marshalFrame(TypeLocationUpdate, LocationUpdate{TaskID: taskID})
	require.NoError(t, err)

	assert.Equal(t, 1, hub.Broadcast(taskID, frame))
	// Buffer is now full; the slow consumer misses the next frame instead of
	// blocking the broadcaster.
	assert.Equal(t, 0, hub.Broadcast(taskID, frame))
}
