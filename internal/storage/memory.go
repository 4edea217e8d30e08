package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/rustamli/aitrader/internal/bot"
	"github.com/rustamli/aitrader/internal/signal"
)

// MemoryStore keeps bot records and signals in memory. Used in tests and
// for running the control plane without a database.
type MemoryStore struct {
	mu      sync.RWMutex
	bots    map[string]*bot.Record
	signals []*signal.Event
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		bots: make(map[string]*bot.Record),
	}
}

func (s *MemoryStore) CreateBot(_ context.Context, record *bot.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := *record
	s.bots[record.ID] = &clone
	return nil
}

func (s *MemoryStore) GetBot(_ context.Context, id string) (*bot.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if record, ok := s.bots[id]; ok {
		clone := *record
		return &clone, nil
	}
	return nil, &bot.NotFoundError{ID: id}
}

func (s *MemoryStore) GetBotByName(_ context.Context, name string) (*bot.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, record := range s.bots {
		if record.Name == name {
			clone := *record
			return &clone, nil
		}
	}
	return nil, &bot.NotFoundError{ID: name}
}

func (s *MemoryStore) ListBots(_ context.Context) ([]*bot.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make([]*bot.Record, 0, len(s.bots))
	for _, record := range s.bots {
		clone := *record
		records = append(records, &clone)
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt.Before(records[j].CreatedAt)
	})
	return records, nil
}

func (s *MemoryStore) UpdateBot(_ context.Context, record *bot.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.bots[record.ID]; !ok {
		return &bot.NotFoundError{ID: record.ID}
	}
	clone := *record
	s.bots[record.ID] = &clone
	return nil
}

func (s *MemoryStore) DeleteBot(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.bots[id]; !ok {
		return &bot.NotFoundError{ID: id}
	}
	delete(s.bots, id)
	return nil
}

func (s *MemoryStore) SaveSignal(_ context.Context, event *signal.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := *event
	s.signals = append(s.signals, &clone)
	return nil
}

func (s *MemoryStore) ListSignals(_ context.Context, botID string, limit int) ([]*signal.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	events := make([]*signal.Event, 0, limit)
	for i := len(s.signals) - 1; i >= 0 && len(events) < limit; i-- {
		if s.signals[i].BotID == botID {
			clone := *s.signals[i]
			events = append(events, &clone)
		}
	}
	return events, nil
}

func (s *MemoryStore) RunMigrations() error { return nil }

func (s *MemoryStore) Close() error { return nil }
