package data

import (
	"context"
	"sync"
	"time"

	"github.com/halyardhq/walletgate/proto"
)

// MemoryChallengeTable is the in-process fallback backend. It is safe within a
// single process only: a challenge issued on one instance is unknown to every
// other. Multi-instance deployments must set auth.require_durable_challenges
// and run against the DynamoDB table instead.
type MemoryChallengeTable struct {
	mu      sync.Mutex
	records map[string]memoryChallenge
}

type memoryChallenge struct {
	data      proto.ChallengeData
	expiresAt time.Time
}

func NewMemoryChallengeTable() *MemoryChallengeTable {
	return &MemoryChallengeTable{
		records: make(map[string]memoryChallenge),
	}
}

func (t *MemoryChallengeTable) Put(_ context.Context, challenge *Challenge) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.records[challenge.ID] = memoryChallenge{
		data:      challenge.Data,
		expiresAt: challenge.ExpiresAt,
	}
	return nil
}

// Consume removes and returns the record under one lock acquisition, so two
// racing consumers of the same id see at most one hit. Expired records are
// pruned lazily here by comparing against now.
func (t *MemoryChallengeTable) Consume(_ context.Context, id string) (*proto.ChallengeData, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.records[id]
	if !ok {
		return nil, false, nil
	}
	delete(t.records, id)

	if time.Now().After(rec.expiresAt) {
		return nil, false, nil
	}
	data := rec.data
	return &data, true, nil
}

// Prune drops expired records. Consume already ignores them; this just keeps
// a long-lived process from accumulating abandoned challenges.
func (t *MemoryChallengeTable) Prune() {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	for id, rec := range t.records {
		if now.After(rec.expiresAt) {
			delete(t.records, id)
		}
	}
}

func (t *MemoryChallengeTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.records)
}
