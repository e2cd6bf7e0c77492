package memory

import (
	"context"
	"sort"
	"strconv"
	"sync"

	"solana-launch-gate/internal/domain"
	"solana-launch-gate/internal/storage"
)

// ReportStore is an in-memory implementation of storage.ReportStore.
type ReportStore struct {
	mu   sync.RWMutex
	data map[string]*domain.SecurityReport // keyed by mint|analyzed_at
}

// NewReportStore creates a new in-memory report store.
func NewReportStore() *ReportStore {
	return &ReportStore{
		data: make(map[string]*domain.SecurityReport),
	}
}

func reportKey(mint string, analyzedAt int64) string {
	return mint + "|" + strconv.FormatInt(analyzedAt, 10)
}

// Insert adds a new report. Returns ErrDuplicateKey if (mint, analyzed_at) exists.
func (s *ReportStore) Insert(_ context.Context, r *domain.SecurityReport) error {
	if r == nil || r.Asset.Mint == "" {
		return storage.ErrInvalidInput
	}

	key := reportKey(r.Asset.Mint, r.AnalyzedAt)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[key]; exists {
		return storage.ErrDuplicateKey
	}
	s.data[key] = copyReport(r)
	return nil
}

// GetByMint retrieves all reports for a mint, ordered by analyzed_at ASC.
func (s *ReportStore) GetByMint(_ context.Context, mint string) ([]*domain.SecurityReport, error) {
	return s.filter(func(r *domain.SecurityReport) bool { return r.Asset.Mint == mint }), nil
}

// GetByTimeRange retrieves reports analyzed within [start, end] (inclusive).
func (s *ReportStore) GetByTimeRange(_ context.Context, start, end int64) ([]*domain.SecurityReport, error) {
	return s.filter(func(r *domain.SecurityReport) bool {
		return r.AnalyzedAt >= start && r.AnalyzedAt <= end
	}), nil
}

func (s *ReportStore) filter(keep func(*domain.SecurityReport) bool) []*domain.SecurityReport {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.SecurityReport
	for _, r := range s.data {
		if keep(r) {
			result = append(result, copyReport(r))
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].AnalyzedAt != result[j].AnalyzedAt {
			return result[i].AnalyzedAt < result[j].AnalyzedAt
		}
		return result[i].Asset.Mint < result[j].Asset.Mint
	})
	return result
}

func copyReport(r *domain.SecurityReport) *domain.SecurityReport {
	c := *r
	c.Flags = append([]domain.RiskFlag(nil), r.Flags...)
	c.Checks = append([]domain.RiskCheckResult(nil), r.Checks...)
	return &c
}

// Verify interface compliance at compile time.
var _ storage.ReportStore = (*ReportStore)(nil)
