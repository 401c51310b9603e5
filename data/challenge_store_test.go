package data

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halyardhq/walletgate/proto"
)

func newTestStore(t *testing.T, requireDurable bool) *ChallengeStore {
	t.Helper()
	return NewChallengeStore(nil, requireDurable, zerolog.Nop())
}

func TestChallengeConsumedAtMostOnce(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, false)

	id, err := store.Issue(ctx, &proto.ChallengeData{
		Kind:      proto.ChallengeKind_Verify,
		Method:    proto.Method_Wallet,
		Provider:  proto.ProviderWallet,
		Challenge: "prove-it",
	}, time.Minute)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	data, err := store.Consume(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "prove-it", data.Challenge)
	assert.Equal(t, proto.Method_Wallet, data.Method)
	assert.False(t, data.CreatedAt.IsZero())

	_, err = store.Consume(ctx, id)
	assert.ErrorIs(t, err, proto.ErrChallengeExpired)
}

func TestChallengeExpiry(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, false)

	id, err := store.Issue(ctx, &proto.ChallengeData{
		Kind:      proto.ChallengeKind_Verify,
		Method:    proto.Method_Social,
		Provider:  "google",
		Challenge: "stale",
	}, -time.Second)
	require.NoError(t, err)

	// The id still exists in the map, but its age exceeds the TTL.
	require.Equal(t, 1, store.fallback.Len())
	_, err = store.Consume(ctx, id)
	assert.ErrorIs(t, err, proto.ErrChallengeExpired)
}

func TestChallengeUnknownID(t *testing.T) {
	store := newTestStore(t, false)
	_, err := store.Consume(context.Background(), "no-such-id")
	assert.ErrorIs(t, err, proto.ErrChallengeExpired)

	_, err = store.Consume(context.Background(), "")
	assert.ErrorIs(t, err, proto.ErrChallengeExpired)
}

func TestChallengeConcurrentConsume(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, false)

	for i := 0; i < 50; i++ {
		id, err := store.Issue(ctx, &proto.ChallengeData{
			Kind:      proto.ChallengeKind_Verify,
			Method:    proto.Method_Wallet,
			Provider:  proto.ProviderWallet,
			Challenge: "race",
		}, time.Minute)
		require.NoError(t, err)

		var wg sync.WaitGroup
		results := make([]error, 2)
		for j := 0; j < 2; j++ {
			wg.Add(1)
			go func(j int) {
				defer wg.Done()
				_, results[j] = store.Consume(ctx, id)
			}(j)
		}
		wg.Wait()

		var hits, misses int
		for _, err := range results {
			switch {
			case err == nil:
				hits++
			case errors.Is(err, proto.ErrChallengeExpired):
				misses++
			default:
				t.Fatalf("unexpected error: %v", err)
			}
		}
		assert.Equal(t, 1, hits, "exactly one consumer wins")
		assert.Equal(t, 1, misses)
	}
}

func TestDurableRequiredFailsClosed(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, true)

	_, err := store.Issue(ctx, &proto.ChallengeData{
		Kind:      proto.ChallengeKind_Verify,
		Method:    proto.Method_Wallet,
		Provider:  proto.ProviderWallet,
		Challenge: "x",
	}, time.Minute)
	assert.ErrorIs(t, err, proto.ErrDurableStoreRequired)

	_, err = store.Consume(ctx, "anything")
	assert.ErrorIs(t, err, proto.ErrDurableStoreRequired)
}

func TestMemoryPrune(t *testing.T) {
	ctx := context.Background()
	table := NewMemoryChallengeTable()

	require.NoError(t, table.Put(ctx, &Challenge{
		ID:        "live",
		ExpiresAt: time.Now().Add(time.Minute),
		Data:      proto.ChallengeData{ID: "live"},
	}))
	require.NoError(t, table.Put(ctx, &Challenge{
		ID:        "dead",
		ExpiresAt: time.Now().Add(-time.Minute),
		Data:      proto.ChallengeData{ID: "dead"},
	}))

	table.Prune()
	assert.Equal(t, 1, table.Len())

	_, found, err := table.Consume(ctx, "live")
	require.NoError(t, err)
	assert.True(t, found)
}

func TestNewChallengeText(t *testing.T) {
	a, err := NewChallengeText()
	require.NoError(t, err)
	b, err := NewChallengeText()
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
	assert.GreaterOrEqual(t, len(a), 40)
}
