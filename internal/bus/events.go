package bus

// Topics carried on the dispatcher. The payload shapes are part of the
// in-process contract between the order engine, the table reconciler, and
// the analytics recorder.
const (
	TopicOrderCreated   = "order.created"
	TopicOrderUpdated   = "order.updated"
	TopicOrderCompleted = "order.completed"
	TopicStoreChanged   = "store.changed"
)

// Status tokens carried by order events. These are the event vocabulary,
// not the order state machine: "paid" has no corresponding order status and
// is published by the payment collaborator.
const (
	TokenCreated   = "created"
	TokenPreparing = "preparing"
	TokenReady     = "ready"
	TokenServed    = "served"
	TokenBilling   = "billing"
	TokenPaid      = "paid"
	TokenFinished  = "finished"
)

// Event is a message deliverable on the dispatcher.
type Event interface {
	Topic() string
}

// OrderCreated announces a freshly placed order.
//
// Customers and Revenue are optional: a nil field means the publisher does
// not know the value, and consumers must not treat nil as zero.
type OrderCreated struct {
	Table     int
	Status    string // always TokenCreated
	OrderID   string
	Customers *int
	Revenue   *float64
}

// Topic implements Event.
func (OrderCreated) Topic() string { return TopicOrderCreated }

// OrderUpdated announces a status transition on an existing order.
// Same optional-field rules as OrderCreated.
type OrderUpdated struct {
	Table     int
	Status    string
	OrderID   string
	Customers *int
	Revenue   *float64
}

// Topic implements Event.
func (OrderUpdated) Topic() string { return TopicOrderUpdated }

// OrderCompleted announces that an order reached a terminal state
// (FINISHED or CANCELLED).
type OrderCompleted struct {
	Table   int
	OrderID string
}

// Topic implements Event.
func (OrderCompleted) Topic() string { return TopicOrderCompleted }

// StoreChanged is the storage-change channel: a hint that the record under
// Key was mutated. Consumers re-read from the store; the event itself
// carries no data.
type StoreChanged struct {
	Key string
}

// Topic implements Event.
func (StoreChanged) Topic() string { return TopicStoreChanged }
