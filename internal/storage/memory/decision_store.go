package memory

import (
	"context"
	"sort"
	"sync"

	"solana-launch-gate/internal/domain"
	"solana-launch-gate/internal/storage"
)

// DecisionStore is an in-memory implementation of storage.DecisionStore.
type DecisionStore struct {
	mu   sync.RWMutex
	data map[string]*domain.DecisionRecord // keyed by decision_id
}

// NewDecisionStore creates a new in-memory decision store.
func NewDecisionStore() *DecisionStore {
	return &DecisionStore{
		data: make(map[string]*domain.DecisionRecord),
	}
}

// Insert adds a new decision. Returns ErrDuplicateKey if decision_id exists.
func (s *DecisionStore) Insert(_ context.Context, d *domain.DecisionRecord) error {
	if d == nil || d.DecisionID == "" || d.Mint == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[d.DecisionID]; exists {
		return storage.ErrDuplicateKey
	}

	s.data[d.DecisionID] = copyDecision(d)
	return nil
}

// GetByID retrieves a decision by its ID. Returns ErrNotFound if not exists.
func (s *DecisionStore) GetByID(_ context.Context, decisionID string) (*domain.DecisionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, exists := s.data[decisionID]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return copyDecision(d), nil
}

// GetByMint retrieves all decisions for a mint, ordered by decided_at ASC.
func (s *DecisionStore) GetByMint(_ context.Context, mint string) ([]*domain.DecisionRecord, error) {
	return s.filter(func(d *domain.DecisionRecord) bool { return d.Mint == mint }), nil
}

// GetByTimeRange retrieves decisions made within [start, end] (inclusive).
func (s *DecisionStore) GetByTimeRange(_ context.Context, start, end int64) ([]*domain.DecisionRecord, error) {
	return s.filter(func(d *domain.DecisionRecord) bool {
		return d.DecidedAt >= start && d.DecidedAt <= end
	}), nil
}

func (s *DecisionStore) filter(keep func(*domain.DecisionRecord) bool) []*domain.DecisionRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.DecisionRecord
	for _, d := range s.data {
		if keep(d) {
			result = append(result, copyDecision(d))
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].DecidedAt != result[j].DecidedAt {
			return result[i].DecidedAt < result[j].DecidedAt
		}
		return result[i].DecisionID < result[j].DecisionID
	})
	return result
}

// copyDecision returns a deep copy so callers cannot mutate stored records.
func copyDecision(d *domain.DecisionRecord) *domain.DecisionRecord {
	c := *d
	if d.RiskScore != nil {
		v := *d.RiskScore
		c.RiskScore = &v
	}
	if d.FinalScore != nil {
		v := *d.FinalScore
		c.FinalScore = &v
	}
	if d.Priority != nil {
		v := *d.Priority
		c.Priority = &v
	}
	c.Flags = append([]domain.RiskFlag(nil), d.Flags...)
	return &c
}

// Verify interface compliance at compile time.
var _ storage.DecisionStore = (*DecisionStore)(nil)
