package history

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/deepgram/wayfinder/internal/infrastructure/redis"
	"github.com/deepgram/wayfinder/internal/protocol"
	"github.com/deepgram/wayfinder/pkg/logger"
	"github.com/rs/zerolog"
)

const (
	keyPrefix  = "wayfinder:history:"
	historyTTL = 24 * time.Hour
	// maxRecords bounds what is replayed to a model as context.
	maxRecords = 50
)

// Store keeps completed turns per session, oldest first.
type Store interface {
	Append(ctx context.Context, record protocol.HistoryRecord) error
	List(ctx context.Context, sessionID string) ([]protocol.HistoryRecord, error)
	Clear(ctx context.Context, sessionID string) error
}

type RedisStore struct {
	redisService *redis.Service
}

type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string][]protocol.HistoryRecord
}

type Service struct {
	store   Store
	backend string
	log     zerolog.Logger
}

// NewService uses Redis when it answers a ping and memory otherwise.
func NewService(redisService *redis.Service) *Service {
	l := logger.For(logger.SERVICE)

	if redisService != nil {
		if err := redisService.Ping(context.Background()); err == nil {
			l.Info().Msg("History store using Redis")
			return &Service{store: &RedisStore{redisService: redisService}, backend: "redis", log: l}
		}
	}

	l.Info().Msg("History store using memory")
	return &Service{store: NewMemoryStore(), backend: "memory", log: l}
}

// NewServiceWithStore wraps an arbitrary store.
func NewServiceWithStore(store Store, backend string) *Service {
	return &Service{store: store, backend: backend, log: logger.For(logger.SERVICE)}
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string][]protocol.HistoryRecord),
	}
}

// Backend names the active store.
func (s *Service) Backend() string {
	return s.backend
}

func (s *Service) Append(ctx context.Context, record protocol.HistoryRecord) error {
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now().UTC()
	}
	if err := s.store.Append(ctx, record); err != nil {
		s.log.Error().Err(err).Str("session_id", record.SessionID).Msg("Failed to append history")
		return err
	}
	return nil
}

func (s *Service) List(ctx context.Context, sessionID string) ([]protocol.HistoryRecord, error) {
	records, err := s.store.List(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if records == nil {
		records = []protocol.HistoryRecord{}
	}
	return records, nil
}

// Recent returns at most the last maxRecords turns.
func (s *Service) Recent(ctx context.Context, sessionID string) ([]protocol.HistoryRecord, error) {
	records, err := s.List(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if len(records) > maxRecords {
		records = records[len(records)-maxRecords:]
	}
	return records, nil
}

func (s *Service) Clear(ctx context.Context, sessionID string) error {
	return s.store.Clear(ctx, sessionID)
}

// Redis Store implementation
func (rs *RedisStore) Append(ctx context.Context, record protocol.HistoryRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return err
	}

	return rs.redisService.Append(ctx, keyPrefix+record.SessionID, string(data), historyTTL)
}

func (rs *RedisStore) List(ctx context.Context, sessionID string) ([]protocol.HistoryRecord, error) {
	vals, err := rs.redisService.Range(ctx, keyPrefix+sessionID)
	if err != nil {
		return nil, err
	}

	records := make([]protocol.HistoryRecord, 0, len(vals))
	for _, v := range vals {
		var record protocol.HistoryRecord
		if err := json.Unmarshal([]byte(v), &record); err != nil {
			return nil, err
		}
		records = append(records, record)
	}

	return records, nil
}

func (rs *RedisStore) Clear(ctx context.Context, sessionID string) error {
	return rs.redisService.Delete(ctx, keyPrefix+sessionID)
}

// Memory Store implementation
func (ms *MemoryStore) Append(ctx context.Context, record protocol.HistoryRecord) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.sessions[record.SessionID] = append(ms.sessions[record.SessionID], record)
	return nil
}

func (ms *MemoryStore) List(ctx context.Context, sessionID string) ([]protocol.HistoryRecord, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	records := ms.sessions[sessionID]
	out := make([]protocol.HistoryRecord, len(records))
	copy(out, records)
	return out, nil
}

func (ms *MemoryStore) Clear(ctx context.Context, sessionID string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	delete(ms.sessions, sessionID)
	return nil
}
