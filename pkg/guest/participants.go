package guest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/fableworks/collab/pkg/capability"
)

// participantTTL bounds how long a joined guest holds a seat without the
// registry hearing from them again. Sessions are interactive; a day is
// generous.
const participantTTL = 24 * time.Hour

// ParticipantRegistry tracks who currently occupies a session's seats.
// The cap lives here, at admission, not in token validation: an owner
// shrinking max_participants below the current headcount does not kick
// anyone out, it only blocks new joins.
type ParticipantRegistry interface {
	// Join admits a guest, enforcing the cap when one is set. Joining
	// again under the same name is a no-op, not a second seat.
	Join(ctx context.Context, sessionID int64, guestName string, maxParticipants *int) error
	Leave(ctx context.Context, sessionID int64, guestName string) error
	Count(ctx context.Context, sessionID int64) (int, error)
}

// RedisRegistry implements ParticipantRegistry on a Redis set per
// session, shared across service instances.
type RedisRegistry struct {
	client *redis.Client
	prefix string
}

// NewRedisRegistry creates a Redis-backed participant registry.
func NewRedisRegistry(client *redis.Client) *RedisRegistry {
	return &RedisRegistry{
		client: client,
		prefix: "collab:participants",
	}
}

func (r *RedisRegistry) key(sessionID int64) string {
	return fmt.Sprintf("%s:%d", r.prefix, sessionID)
}

// Join adds the guest to the session's set, enforcing the cap.
func (r *RedisRegistry) Join(ctx context.Context, sessionID int64, guestName string, maxParticipants *int) error {
	key := r.key(sessionID)

	if maxParticipants != nil {
		// Rejoin under a held name never counts against the cap.
		member, err := r.client.SIsMember(ctx, key, guestName).Result()
		if err != nil {
			return fmt.Errorf("participant registry: %w", err)
		}
		if !member {
			count, err := r.client.SCard(ctx, key).Result()
			if err != nil {
				return fmt.Errorf("participant registry: %w", err)
			}
			if count >= int64(*maxParticipants) {
				return capability.Errorf(capability.KindForbidden, "session is full")
			}
		}
	}

	pipe := r.client.Pipeline()
	pipe.SAdd(ctx, key, guestName)
	pipe.Expire(ctx, key, participantTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("participant registry: %w", err)
	}
	return nil
}

// Leave releases the guest's seat.
func (r *RedisRegistry) Leave(ctx context.Context, sessionID int64, guestName string) error {
	if err := r.client.SRem(ctx, r.key(sessionID), guestName).Err(); err != nil {
		return fmt.Errorf("participant registry: %w", err)
	}
	return nil
}

// Count returns the current headcount.
func (r *RedisRegistry) Count(ctx context.Context, sessionID int64) (int, error) {
	count, err := r.client.SCard(ctx, r.key(sessionID)).Result()
	if err != nil {
		return 0, fmt.Errorf("participant registry: %w", err)
	}
	return int(count), nil
}

// MemoryRegistry implements ParticipantRegistry in process memory. Used
// when Redis is not configured and in tests; seats are lost on restart.
type MemoryRegistry struct {
	mu       sync.Mutex
	sessions map[int64]map[string]struct{}
}

// NewMemoryRegistry creates an in-memory participant registry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{sessions: make(map[int64]map[string]struct{})}
}

func (r *MemoryRegistry) Join(_ context.Context, sessionID int64, guestName string, maxParticipants *int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	seats, ok := r.sessions[sessionID]
	if !ok {
		seats = make(map[string]struct{})
		r.sessions[sessionID] = seats
	}

	if _, held := seats[guestName]; held {
		return nil
	}
	if maxParticipants != nil && len(seats) >= *maxParticipants {
		return capability.Errorf(capability.KindForbidden, "session is full")
	}

	seats[guestName] = struct{}{}
	return nil
}

func (r *MemoryRegistry) Leave(_ context.Context, sessionID int64, guestName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if seats, ok := r.sessions[sessionID]; ok {
		delete(seats, guestName)
	}
	return nil
}

func (r *MemoryRegistry) Count(_ context.Context, sessionID int64) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions[sessionID]), nil
}
