package event

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/cuotas/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEvent struct {
	shared.BaseDomainEvent
}

func newTestEvent(eventType string) *testEvent {
	return &testEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(eventType, "Test", uuid.New()),
	}
}

type recordingHandler struct {
	mu     sync.Mutex
	types  []string
	events []shared.DomainEvent
	err    error
	panics bool
}

func (h *recordingHandler) EventTypes() []string { return h.types }

func (h *recordingHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	if h.panics {
		panic("handler exploded")
	}
	h.mu.Lock()
	h.events = append(h.events, event)
	h.mu.Unlock()
	return h.err
}

func (h *recordingHandler) seen() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.events)
}

func TestInMemoryEventBusDeliversToSubscribers(t *testing.T) {
	bus := NewInMemoryEventBus(nil)
	handler := &recordingHandler{types: []string{"test.created"}}
	bus.Subscribe(handler)

	require.NoError(t, bus.Publish(context.Background(), newTestEvent("test.created")))

	assert.Equal(t, 1, handler.seen())
}

func TestInMemoryEventBusIgnoresOtherTypes(t *testing.T) {
	bus := NewInMemoryEventBus(nil)
	handler := &recordingHandler{types: []string{"test.created"}}
	bus.Subscribe(handler)

	require.NoError(t, bus.Publish(context.Background(), newTestEvent("test.deleted")))

	assert.Equal(t, 0, handler.seen())
}

func TestInMemoryEventBusExplicitTypesOverrideHandler(t *testing.T) {
	bus := NewInMemoryEventBus(nil)
	handler := &recordingHandler{types: []string{"test.created"}}
	bus.Subscribe(handler, "test.updated")

	require.NoError(t, bus.Publish(context.Background(), newTestEvent("test.updated")))
	require.NoError(t, bus.Publish(context.Background(), newTestEvent("test.created")))

	assert.Equal(t, 1, handler.seen())
}

func TestInMemoryEventBusHandlerErrorDoesNotFailPublish(t *testing.T) {
	bus := NewInMemoryEventBus(nil)
	failing := &recordingHandler{types: []string{"test.created"}, err: errors.New("boom")}
	healthy := &recordingHandler{types: []string{"test.created"}}
	bus.Subscribe(failing)
	bus.Subscribe(healthy)

	require.NoError(t, bus.Publish(context.Background(), newTestEvent("test.created")))

	assert.Equal(t, 1, healthy.seen())
}

func TestInMemoryEventBusRecoversFromHandlerPanic(t *testing.T) {
	bus := NewInMemoryEventBus(nil)
	panicking := &recordingHandler{types: []string{"test.created"}, panics: true}
	healthy := &recordingHandler{types: []string{"test.created"}}
	bus.Subscribe(panicking)
	bus.Subscribe(healthy)

	require.NoError(t, bus.Publish(context.Background(), newTestEvent("test.created")))

	assert.Equal(t, 1, healthy.seen())
}

func TestInMemoryEventBusConcurrentPublish(t *testing.T) {
	bus := NewInMemoryEventBus(nil)
	handler := &recordingHandler{types: []string{"test.created"}}
	bus.Subscribe(handler)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = bus.Publish(context.Background(), newTestEvent("test.created"))
		}()
	}
	wg.Wait()

	assert.Equal(t, 20, handler.seen())
}
