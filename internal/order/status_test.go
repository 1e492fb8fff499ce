package order

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition_ForwardChain(t *testing.T) {
	chain := []Status{StatusOrdered, StatusPreparing, StatusReady, StatusServed, StatusBillRequested, StatusFinished}
	for i := 0; i < len(chain)-1; i++ {
		assert.True(t, CanTransition(chain[i], chain[i+1]),
			"%s -> %s should be legal", chain[i], chain[i+1])
	}
}

func TestCanTransition_CancellationWindow(t *testing.T) {
	assert.True(t, CanTransition(StatusOrdered, StatusCancelled))
	assert.True(t, CanTransition(StatusPreparing, StatusCancelled))

	// Once the kitchen is done, cancellation is no longer a transition.
	assert.False(t, CanTransition(StatusReady, StatusCancelled))
	assert.False(t, CanTransition(StatusServed, StatusCancelled))
	assert.False(t, CanTransition(StatusBillRequested, StatusCancelled))
}

func TestCanTransition_NoSkippingOrRewinding(t *testing.T) {
	assert.False(t, CanTransition(StatusOrdered, StatusReady), "skipping PREPARING")
	assert.False(t, CanTransition(StatusOrdered, StatusFinished), "skipping to terminal")
	assert.False(t, CanTransition(StatusServed, StatusPreparing), "rewinding")
	assert.False(t, CanTransition(StatusOrdered, StatusOrdered), "self-transition")
}

func TestCanTransition_TerminalStatesAreFinal(t *testing.T) {
	for _, from := range []Status{StatusFinished, StatusCancelled} {
		for _, to := range []Status{StatusOrdered, StatusPreparing, StatusReady, StatusServed, StatusBillRequested, StatusFinished, StatusCancelled} {
			assert.False(t, CanTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestStatus_Terminal(t *testing.T) {
	assert.True(t, StatusFinished.Terminal())
	assert.True(t, StatusCancelled.Terminal())
	assert.False(t, StatusOrdered.Terminal())
	assert.False(t, StatusServed.Terminal())
	assert.False(t, StatusBillRequested.Terminal())
}

func TestStatus_Valid(t *testing.T) {
	assert.True(t, StatusBillRequested.Valid())
	assert.False(t, Status("PAID").Valid())
	assert.False(t, Status("").Valid())
}

func TestStatus_Token(t *testing.T) {
	tests := []struct {
		status Status
		token  string
	}{
		{StatusOrdered, "created"},
		{StatusPreparing, "preparing"},
		{StatusReady, "ready"},
		{StatusServed, "served"},
		{StatusBillRequested, "billing"},
		{StatusFinished, "finished"},
		{StatusCancelled, "cancelled"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.token, tt.status.Token())
	}
}

func TestOrder_CustomerCount(t *testing.T) {
	o := Order{Items: []Item{{Quantity: 1}, {Quantity: 3}}}
	assert.Equal(t, 4, o.CustomerCount())

	empty := Order{}
	assert.Zero(t, empty.CustomerCount())
}
