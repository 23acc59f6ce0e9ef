package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// TestRegistryDispatchOrder verifies listeners run in registration order and
// all see the same event.
func TestRegistryDispatchOrder(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(zap.NewNop())
	var order []string

	reg.AddListener(ListenerFunc(func(evt Event) {
		order = append(order, "first:"+string(evt.Type))
	}))
	reg.AddListener(ListenerFunc(func(evt Event) {
		order = append(order, "second:"+string(evt.Type))
	}))

	reg.Emit(Event{Type: CacheSet, Key: "match:123", At: time.Now().UTC()})

	require.Equal(t, []string{"first:SET", "second:SET"}, order)
}

// TestRegistryRemoveListener checks removed listeners stop receiving events
// and unknown tokens are ignored.
func TestRegistryRemoveListener(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(zap.NewNop())
	var got int

	token := reg.AddListener(ListenerFunc(func(Event) { got++ }))
	reg.Emit(Event{Type: CacheHit})
	require.Equal(t, 1, got)

	reg.RemoveListener(token)
	reg.RemoveListener(9999)
	reg.Emit(Event{Type: CacheHit})
	require.Equal(t, 1, got)
	require.Equal(t, 0, reg.Len())
}

// TestRegistryListenerPanicIsolated ensures a panicking listener does not
// break the emitter or the listeners registered after it.
func TestRegistryListenerPanicIsolated(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(zap.NewNop())
	var survived bool

	reg.AddListener(ListenerFunc(func(Event) { panic("listener bug") }))
	reg.AddListener(ListenerFunc(func(Event) { survived = true }))

	require.NotPanics(t, func() {
		reg.Emit(Event{Type: PageCreated, PageID: "page-1"})
	})
	require.True(t, survived)
}

// TestRegistryListenerCanMutateRegistrations verifies a listener may remove
// itself while handling an event.
func TestRegistryListenerCanMutateRegistrations(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(zap.NewNop())
	var calls int
	var token int
	token = reg.AddListener(ListenerFunc(func(Event) {
		calls++
		reg.RemoveListener(token)
	}))

	reg.Emit(Event{Type: PageRemoved, PageID: "page-2"})
	reg.Emit(Event{Type: PageRemoved, PageID: "page-2"})

	require.Equal(t, 1, calls)
}
