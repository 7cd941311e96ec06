package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFreshnessPolicy(t *testing.T) {
	store := newTestStore(t)
	now := time.Date(2024, 5, 2, 12, 0, 0, 0, time.UTC)
	open := false

	policy := NewFreshnessPolicy(store, DefaultFreshnessConfig()).
		WithClock(func() time.Time { return now }, func(time.Time) bool { return open })

	f := policy.Check(SyncTypeEarnings, "XYZ")
	assert.False(t, f.IsFresh)
	assert.True(t, f.LastUpdated.IsZero())

	require.NoError(t, policy.MarkSynced(SyncTypeEarnings, "xyz"))
	require.NoError(t, policy.MarkSynced(SyncTypePrices, "XYZ"))

	now = now.Add(2 * time.Hour)
	assert.True(t, policy.IsFresh("XYZ"))
	assert.Equal(t, 2*time.Hour, policy.Check(SyncTypePrices, "XYZ").Age)

	// prices go stale quickly while the session is open
	open = true
	assert.Equal(t, 15*time.Minute, policy.Threshold(SyncTypePrices))
	assert.Equal(t, 24*time.Hour, policy.Threshold(SyncTypeEarnings))
	assert.False(t, policy.IsFresh("XYZ"))
	assert.True(t, policy.Check(SyncTypeEarnings, "XYZ").IsFresh)

	open = false
	now = now.Add(23 * time.Hour)
	f = policy.Check(SyncTypeEarnings, "XYZ")
	assert.False(t, f.IsFresh)
	assert.Equal(t, 25*time.Hour, f.Age)
}

func TestFreshnessDefaultThreshold(t *testing.T) {
	policy := NewFreshnessPolicy(newTestStore(t), FreshnessConfig{}).
		WithClock(time.Now, func(time.Time) bool { return true })
	assert.Equal(t, 24*time.Hour, policy.Threshold(SyncTypeEarnings))
	assert.Equal(t, 24*time.Hour, policy.Threshold(SyncTypePrices))
}
