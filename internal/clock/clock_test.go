package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFake_Now(t *testing.T) {
	base := time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)
	f := NewFake(base)

	assert.Equal(t, base, f.Now())
	assert.Equal(t, base, f.Now(), "Now should not advance by itself")
}

func TestFake_Advance(t *testing.T) {
	base := time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)
	f := NewFake(base)

	f.Advance(90 * time.Second)
	assert.Equal(t, base.Add(90*time.Second), f.Now())

	f.Advance(time.Hour)
	assert.Equal(t, base.Add(90*time.Second+time.Hour), f.Now())
}

func TestFake_Set(t *testing.T) {
	f := NewFake(time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC))
	later := time.Date(2025, 3, 15, 9, 30, 0, 0, time.UTC)

	f.Set(later)
	assert.Equal(t, later, f.Now())
}

func TestSystem_NowIsUTC(t *testing.T) {
	now := System{}.Now()
	assert.Equal(t, time.UTC, now.Location())
}
