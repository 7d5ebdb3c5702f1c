package services

import (
	"context"
	"fmt"
	"sync"

	"spendwise/internal/amqp"
	"spendwise/internal/cache"
	"spendwise/internal/core"
	"spendwise/internal/ledger"
	applog "spendwise/internal/log"
	"spendwise/internal/stats"
)

// StatsService serves dashboard summaries, caching them per user until the
// next ledger change.
type StatsService struct {
	reader ledger.ExpenseReader
	cache  cache.Cache[core.DashboardStats]
	logger *applog.Logger

	// generations counts invalidations per user. A summary computed before
	// the latest invalidation is never cached.
	mu          sync.Mutex
	generations map[string]uint64
}

// NewStatsService wires the service. A nil cache disables caching.
func NewStatsService(reader ledger.ExpenseReader, c cache.Cache[core.DashboardStats]) *StatsService {
	return &StatsService{
		reader:      reader,
		cache:       c,
		logger:      applog.FromContext(context.Background()).WithComponent(applog.ComponentStats),
		generations: make(map[string]uint64),
	}
}

// Dashboard computes (or returns the cached) summary of the user's full ledger.
func (s *StatsService) Dashboard(ctx context.Context, userID string) (core.DashboardStats, error) {
	if s.cache != nil {
		if st, ok := s.cache.Get(userID); ok {
			return st, nil
		}
	}

	gen := s.generation(userID)
	expenses, err := s.reader.GetExpenses(ctx, userID)
	if err != nil {
		return core.DashboardStats{}, fmt.Errorf("load ledger: %w", err)
	}

	st := stats.Compute(expenses)
	s.store(ctx, userID, gen, st)
	s.logger.DebugContext(ctx, "Dashboard stats computed",
		applog.FieldUserID, userID,
		"expenses", len(expenses),
		"insights", len(st.Insights))
	return st, nil
}

// Invalidate drops the cached summary for userID and prevents in-flight
// computations from caching what they read before the change.
func (s *StatsService) Invalidate(userID string) {
	if s.cache == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generations[userID]++
	s.cache.Delete(userID)
}

func (s *StatsService) generation(userID string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generations[userID]
}

func (s *StatsService) store(ctx context.Context, userID string, gen uint64, st core.DashboardStats) {
	if s.cache == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generations[userID] != gen {
		s.logger.DebugContext(ctx, "Ledger changed during computation, not caching stats",
			applog.FieldUserID, userID)
		return
	}
	s.cache.Set(userID, st)
}

// HandleLedgerChanged invalidates on events published by any instance.
func (s *StatsService) HandleLedgerChanged(ctx context.Context, msg *amqp.LedgerChangedMessage) error {
	s.Invalidate(msg.UserID)
	s.logger.DebugContext(ctx, "Stats cache invalidated by ledger event",
		applog.FieldUserID, msg.UserID,
		applog.FieldMessageID, msg.MessageID)
	return nil
}
