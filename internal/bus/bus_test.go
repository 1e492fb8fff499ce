package bus

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDispatcher_PublishReachesSubscribers(t *testing.T) {
	d := NewDispatcher()

	var got []Event
	d.Subscribe(TopicOrderCreated, func(e Event) { got = append(got, e) })
	d.Subscribe(TopicOrderCreated, func(e Event) { got = append(got, e) })

	ev := OrderCreated{Table: 2, Status: TokenCreated, OrderID: "ord_0001"}
	d.Publish(ev)

	assert.Len(t, got, 2, "every registered handler sees the event")
	assert.Equal(t, ev, got[0])
}

func TestDispatcher_TopicIsolation(t *testing.T) {
	d := NewDispatcher()

	created, updated := 0, 0
	d.Subscribe(TopicOrderCreated, func(Event) { created++ })
	d.Subscribe(TopicOrderUpdated, func(Event) { updated++ })

	d.Publish(OrderUpdated{Table: 1, Status: TokenPreparing})

	assert.Zero(t, created)
	assert.Equal(t, 1, updated)
}

func TestDispatcher_NoSubscribersIsFine(t *testing.T) {
	d := NewDispatcher()
	assert.NotPanics(t, func() {
		d.Publish(OrderCompleted{Table: 3, OrderID: "ord_0001"})
	})
}

func TestDispatcher_PanickingHandlerIsIsolated(t *testing.T) {
	d := NewDispatcher()

	reached := false
	d.Subscribe(TopicOrderCreated, func(Event) { panic("boom") })
	d.Subscribe(TopicOrderCreated, func(Event) { reached = true })

	d.Publish(OrderCreated{Table: 1})

	assert.True(t, reached, "handlers after a panicking one still run")
}

func TestDispatcher_ClosedDropsEverything(t *testing.T) {
	d := NewDispatcher()

	calls := 0
	d.Subscribe(TopicOrderCreated, func(Event) { calls++ })
	d.Close()

	d.Publish(OrderCreated{Table: 1})
	d.Subscribe(TopicOrderCreated, func(Event) { calls++ })
	d.Publish(OrderCreated{Table: 1})

	assert.Zero(t, calls, "publish and subscribe after Close are no-ops")
}

func TestEvent_Topics(t *testing.T) {
	assert.Equal(t, TopicOrderCreated, OrderCreated{}.Topic())
	assert.Equal(t, TopicOrderUpdated, OrderUpdated{}.Topic())
	assert.Equal(t, TopicOrderCompleted, OrderCompleted{}.Topic())
	assert.Equal(t, TopicStoreChanged, StoreChanged{}.Topic())
}
