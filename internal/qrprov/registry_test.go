package qrprov

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nbekov/dinesync/internal/clock"
	"github.com/nbekov/dinesync/internal/record"
)

func testRegistry(t *testing.T) (*Registry, *clock.Fake) {
	t.Helper()
	fake := clock.NewFake(time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC))
	return NewRegistryWithClock(record.NewMemory(), fake), fake
}

func TestRegistry_ProvisionWritesDocument(t *testing.T) {
	r, _ := testRegistry(t)
	ctx := context.Background()

	doc, err := r.Provision(ctx, "brasserie-7", "https://order.local", []int{2, 1})
	require.NoError(t, err)

	require.Len(t, doc.QRCodes, 2)
	assert.Equal(t, 1, doc.QRCodes[0].TableNumber, "entries sorted by table")
	assert.Equal(t, "https://order.local/order?restaurant=brasserie-7&table=1", doc.QRCodes[0].URL)
	assert.Equal(t, "brasserie-7", doc.RestaurantID)
}

func TestRegistry_ProvisionMergesIdempotently(t *testing.T) {
	r, fake := testRegistry(t)
	ctx := context.Background()

	first, err := r.Provision(ctx, "brasserie-7", "https://order.local", []int{1, 2})
	require.NoError(t, err)

	fake.Advance(time.Hour)
	doc, err := r.Provision(ctx, "brasserie-7", "https://order.local", []int{2, 3})
	require.NoError(t, err)

	require.Len(t, doc.QRCodes, 3)
	assert.Equal(t, first.QRCodes[1].GeneratedAt, doc.QRCodes[1].GeneratedAt,
		"re-provisioning keeps the original entry for table 2")
}

func TestRegistry_TableNumbers(t *testing.T) {
	r, _ := testRegistry(t)
	ctx := context.Background()

	numbers, err := r.TableNumbers(ctx, "brasserie-7")
	require.NoError(t, err)
	assert.Nil(t, numbers, "unprovisioned restaurant has no tables")

	_, err = r.Provision(ctx, "brasserie-7", "https://order.local", []int{5, 1, 3})
	require.NoError(t, err)

	numbers, err = r.TableNumbers(ctx, "brasserie-7")
	require.NoError(t, err)
	assert.Equal(t, []int{1, 3, 5}, numbers)
}

func TestRegistry_DocumentAbsent(t *testing.T) {
	r, _ := testRegistry(t)

	_, ok, err := r.Document(context.Background(), "nowhere")
	require.NoError(t, err)
	assert.False(t, ok)
}
