package callflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
)

var sessionStoreTracer = otel.Tracer("coverage.internal.callflow.session_store")

// ErrSessionNotFound means the call has no live session (expired or never
// started).
var ErrSessionNotFound = errors.New("callflow: session not found")

// sessionTTL bounds how long an idle session survives between events.
const sessionTTL = time.Hour

// SessionStore persists call sessions between webhook events.
type SessionStore interface {
	Get(ctx context.Context, callID string) (*Session, error)
	Put(ctx context.Context, session *Session) error
	Delete(ctx context.Context, callID string) error
}

// RedisSessionStore keeps sessions in Redis with a sliding TTL, so webhook
// events for one call can land on any API instance.
type RedisSessionStore struct {
	redis *redis.Client
}

// NewRedisSessionStore creates a store on the provided client.
func NewRedisSessionStore(client *redis.Client) *RedisSessionStore {
	if client == nil {
		panic("callflow: redis client required")
	}
	return &RedisSessionStore{redis: client}
}

func sessionKey(callID string) string {
	return "callflow:session:" + callID
}

func (s *RedisSessionStore) Get(ctx context.Context, callID string) (*Session, error) {
	ctx, span := sessionStoreTracer.Start(ctx, "callflow.session.get")
	defer span.End()

	raw, err := s.redis.Get(ctx, sessionKey(callID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("callflow: get session: %w", err)
	}
	var session Session
	if err := json.Unmarshal([]byte(raw), &session); err != nil {
		return nil, fmt.Errorf("callflow: decode session: %w", err)
	}
	return &session, nil
}

func (s *RedisSessionStore) Put(ctx context.Context, session *Session) error {
	ctx, span := sessionStoreTracer.Start(ctx, "callflow.session.put")
	defer span.End()

	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("callflow: encode session: %w", err)
	}
	if err := s.redis.Set(ctx, sessionKey(session.ID), data, sessionTTL).Err(); err != nil {
		return fmt.Errorf("callflow: put session: %w", err)
	}
	return nil
}

func (s *RedisSessionStore) Delete(ctx context.Context, callID string) error {
	if err := s.redis.Del(ctx, sessionKey(callID)).Err(); err != nil {
		return fmt.Errorf("callflow: delete session: %w", err)
	}
	return nil
}

// MemorySessionStore is the in-process store used by tests and local runs.
type MemorySessionStore struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

// NewMemorySessionStore creates an empty in-memory store.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{sessions: make(map[string]*Session)}
}

func (s *MemorySessionStore) Get(_ context.Context, callID string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[callID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	copied := *session
	return &copied, nil
}

func (s *MemorySessionStore) Put(_ context.Context, session *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *session
	s.sessions[session.ID] = &copied
	return nil
}

func (s *MemorySessionStore) Delete(_ context.Context, callID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, callID)
	return nil
}
