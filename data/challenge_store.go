package data

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/halyardhq/walletgate/proto"
)

// ChallengeBackend is the single-use record store contract: Put persists a
// record until its expiry, Consume is an atomic read-and-delete.
type ChallengeBackend interface {
	Put(ctx context.Context, challenge *Challenge) error
	Consume(ctx context.Context, id string) (*proto.ChallengeData, bool, error)
}

// ChallengeStore fronts the durable backend with the in-process fallback.
// With RequireDurable set and no durable backend available it fails closed
// instead of silently degrading to node-local state.
type ChallengeStore struct {
	durable        ChallengeBackend
	fallback       *MemoryChallengeTable
	requireDurable bool
	log            zerolog.Logger
}

func NewChallengeStore(durable ChallengeBackend, requireDurable bool, log zerolog.Logger) *ChallengeStore {
	return &ChallengeStore{
		durable:        durable,
		fallback:       NewMemoryChallengeTable(),
		requireDurable: requireDurable,
		log:            log,
	}
}

func (s *ChallengeStore) backend() (ChallengeBackend, error) {
	if s.durable != nil {
		return s.durable, nil
	}
	if s.requireDurable {
		return nil, proto.ErrDurableStoreRequired
	}
	return s.fallback, nil
}

// Issue assigns an unguessable random id, stamps CreatedAt and persists the
// record for ttl. It returns the id.
func (s *ChallengeStore) Issue(ctx context.Context, data *proto.ChallengeData, ttl time.Duration) (string, error) {
	backend, err := s.backend()
	if err != nil {
		return "", err
	}

	data.ID = uuid.NewString()
	data.CreatedAt = time.Now()

	rec := &Challenge{
		ID:        data.ID,
		ExpiresAt: data.ExpiresAt(ttl),
		Data:      *data,
	}
	if err := backend.Put(ctx, rec); err != nil {
		s.log.Error().Err(err).Str("kind", string(data.Kind)).Msg("challenge store: put failed")
		return "", proto.ErrDatabaseError.WithCausef("put challenge: %w", err)
	}
	return data.ID, nil
}

// Consume removes the record and returns it. Unknown, already consumed and
// expired ids all come back as ErrChallengeExpired; callers cannot tell them
// apart.
func (s *ChallengeStore) Consume(ctx context.Context, id string) (*proto.ChallengeData, error) {
	backend, err := s.backend()
	if err != nil {
		return nil, err
	}
	if id == "" {
		return nil, proto.ErrChallengeExpired
	}

	data, found, err := backend.Consume(ctx, id)
	if err != nil {
		s.log.Error().Err(err).Msg("challenge store: consume failed")
		return nil, proto.ErrDatabaseError.WithCausef("consume challenge: %w", err)
	}
	if !found {
		return nil, proto.ErrChallengeExpired
	}
	return data, nil
}

// GC prunes abandoned records from the in-process fallback until ctx is done.
// The durable backend relies on DynamoDB TTL instead.
func (s *ChallengeStore) GC(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.fallback.Prune()
		}
	}
}

// NewChallengeText produces the random text the client proves control over.
func NewChallengeText() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
