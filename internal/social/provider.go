// Package social supplies optional off-chain sentiment for a mint.
package social

import (
	"context"
	"math"
	"sync"

	"solana-launch-gate/internal/domain"
)

// DefaultMaxBonus caps the score bonus a signal can add.
const DefaultMaxBonus = 5.0

// Provider returns the social signal for a mint. A nil signal without error
// means nothing is known.
type Provider interface {
	Signal(ctx context.Context, mint string) (*domain.SocialSignal, error)
}

// NoopProvider never has a signal.
type NoopProvider struct{}

// Signal returns nil.
func (NoopProvider) Signal(context.Context, string) (*domain.SocialSignal, error) {
	return nil, nil
}

// StaticProvider serves signals from memory. Safe for concurrent use.
type StaticProvider struct {
	mu      sync.RWMutex
	signals map[string]domain.SocialSignal
}

// NewStaticProvider creates a provider with the given signals.
func NewStaticProvider(signals map[string]domain.SocialSignal) *StaticProvider {
	p := &StaticProvider{signals: make(map[string]domain.SocialSignal, len(signals))}
	for k, v := range signals {
		p.signals[k] = v
	}
	return p
}

// Set stores the signal for mint.
func (p *StaticProvider) Set(mint string, s domain.SocialSignal) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.signals[mint] = s
}

// Signal returns the stored signal for mint, if any.
func (p *StaticProvider) Signal(_ context.Context, mint string) (*domain.SocialSignal, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	s, ok := p.signals[mint]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

// Bonus converts a signal into score points:
// min(maxBonus, trust*0.05 + max(0, sentiment)*2.5). A nil signal adds 0.
func Bonus(s *domain.SocialSignal, maxBonus float64) float64 {
	if s == nil || maxBonus <= 0 {
		return 0
	}
	trust := math.Max(0, math.Min(100, s.TrustScore))
	sentiment := math.Max(0, math.Min(1, s.Sentiment))
	return math.Min(maxBonus, trust*0.05+sentiment*2.5)
}
