package ingestion

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"solana-launch-gate/internal/solana"
	"solana-launch-gate/internal/storage"
)

// Polling defaults.
const (
	DefaultPollInterval = 2 * time.Second
	DefaultPollLimit    = 1000
)

// PollingLogSource discovers program transactions through getSignaturesForAddress.
// It is the fallback for endpoints without WebSocket support. Signatures do
// not carry logs, so notifications are marked Unfiltered.
type PollingLogSource struct {
	rpc      solana.RPCClient
	program  string
	interval time.Duration
	limit    int
	log      *zap.Logger
	store    storage.CursorStore

	// cursor is the newest signature already delivered.
	cursor    string
	connected bool

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewPollingLogSource creates a polling source. Non-positive interval and
// limit use the defaults.
func NewPollingLogSource(rpc solana.RPCClient, program string, interval time.Duration, limit int, logger *zap.Logger) *PollingLogSource {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if limit <= 0 {
		limit = DefaultPollLimit
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PollingLogSource{
		rpc:      rpc,
		program:  program,
		interval: interval,
		limit:    limit,
		log:      logger.Named("poll"),
		done:     make(chan struct{}),
	}
}

// WithCursorStore makes the source resume from and record its position in store.
func (s *PollingLogSource) WithCursorStore(store storage.CursorStore) *PollingLogSource {
	s.store = store
	return s
}

// Subscribe starts polling. Without a stored cursor the first successful
// poll only anchors the cursor; history before the start is not replayed.
func (s *PollingLogSource) Subscribe(ctx context.Context, onState func(StateChange)) (<-chan Notification, error) {
	if onState == nil {
		onState = func(StateChange) {}
	}
	if s.store != nil {
		c, err := s.store.GetCursor(ctx, s.program)
		switch {
		case err == nil:
			s.cursor = c.Signature
			s.log.Info("resuming from stored cursor",
				zap.String("program", s.program),
				zap.String("signature", c.Signature),
				zap.Uint64("slot", c.Slot))
		case errors.Is(err, storage.ErrNotFound):
		default:
			return nil, fmt.Errorf("load cursor: %w", err)
		}
	}
	out := make(chan Notification)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(out)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			if !s.poll(ctx, out, onState) {
				return
			}
			select {
			case <-ctx.Done():
				return
			case <-s.done:
				return
			case <-ticker.C:
			}
		}
	}()

	return out, nil
}

// poll runs one round. It returns false when the source must stop.
func (s *PollingLogSource) poll(ctx context.Context, out chan<- Notification, onState func(StateChange)) bool {
	sigs, err := s.rpc.GetSignaturesForAddress(ctx, s.program, &solana.SignaturesOpts{
		Until: s.cursor,
		Limit: s.limit,
	})
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		if s.connected {
			s.connected = false
			onState(StateChange{Connected: false, Err: err})
		}
		s.log.Warn("poll signatures failed", zap.String("program", s.program), zap.Error(err))
		return true
	}
	if !s.connected {
		s.connected = true
		onState(StateChange{Connected: true})
	}

	if len(sigs) == 0 {
		return true
	}
	if s.cursor == "" {
		s.advance(ctx, sigs[0])
		return true
	}
	if len(sigs) == s.limit {
		s.log.Warn("poll page full, older signatures may be missed",
			zap.String("program", s.program), zap.Int("limit", s.limit))
	}

	// Signatures arrive newest first; deliver oldest first.
	for i := len(sigs) - 1; i >= 0; i-- {
		n := Notification{
			Signature:  sigs[i].Signature,
			Slot:       sigs[i].Slot,
			Failed:     sigs[i].Err != nil,
			Unfiltered: true,
		}
		select {
		case out <- n:
		case <-ctx.Done():
			return false
		case <-s.done:
			return false
		}
	}
	s.advance(ctx, sigs[0])
	return true
}

func (s *PollingLogSource) advance(ctx context.Context, newest solana.SignatureInfo) {
	s.cursor = newest.Signature
	if s.store == nil {
		return
	}
	err := s.store.SetCursor(ctx, s.program, &storage.Cursor{
		Slot:      uint64(newest.Slot),
		Signature: newest.Signature,
	})
	if err != nil {
		s.log.Warn("save cursor failed", zap.String("program", s.program), zap.Error(err))
	}
}

// Close stops polling and waits for the poller to exit.
func (s *PollingLogSource) Close() error {
	s.closeOnce.Do(func() { close(s.done) })
	s.wg.Wait()
	return nil
}
