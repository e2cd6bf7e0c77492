package ingestion

import (
	"context"
	"fmt"
	"sync"

	"solana-launch-gate/internal/solana"
)

// DialFunc opens a WebSocket subscription client.
type DialFunc func(ctx context.Context, endpoint string, config *solana.WSClientConfig) (solana.WSClient, error)

// DialWS is the default DialFunc backed by solana.NewWSClient.
func DialWS(ctx context.Context, endpoint string, config *solana.WSClientConfig) (solana.WSClient, error) {
	return solana.NewWSClient(ctx, endpoint, config)
}

// WSLogSource streams program logs over logsSubscribe, one subscription per program.
// Reconnects and resubscription are handled by the WebSocket client.
type WSLogSource struct {
	endpoint string
	programs []string
	config   solana.WSClientConfig
	dial     DialFunc

	mu     sync.Mutex
	client solana.WSClient
}

// NewWSLogSource creates a source for programs at endpoint.
func NewWSLogSource(endpoint string, programs []string, config solana.WSClientConfig, dial DialFunc) *WSLogSource {
	if dial == nil {
		dial = DialWS
	}
	return &WSLogSource{
		endpoint: endpoint,
		programs: programs,
		config:   config,
		dial:     dial,
	}
}

// Subscribe connects and merges every program subscription into one channel.
func (s *WSLogSource) Subscribe(ctx context.Context, onState func(StateChange)) (<-chan Notification, error) {
	cfg := s.config
	if onState != nil {
		cfg.OnConnect = func() { onState(StateChange{Connected: true}) }
		cfg.OnDisconnect = func(err error) { onState(StateChange{Connected: false, Err: err}) }
	}

	client, err := s.dial(ctx, s.endpoint, &cfg)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", s.endpoint, err)
	}

	var subs []<-chan solana.LogNotification
	for _, program := range s.programs {
		ch, err := client.SubscribeLogs(ctx, solana.LogsFilter{Mentions: []string{program}})
		if err != nil {
			client.Close()
			return nil, fmt.Errorf("subscribe to %s: %w", program, err)
		}
		subs = append(subs, ch)
	}

	s.mu.Lock()
	s.client = client
	s.mu.Unlock()

	out := make(chan Notification)
	var wg sync.WaitGroup
	for _, sub := range subs {
		wg.Add(1)
		go func(sub <-chan solana.LogNotification) {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case n, ok := <-sub:
					if !ok {
						return
					}
					select {
					case out <- Notification{
						Signature: n.Signature,
						Slot:      n.Slot,
						Logs:      n.Logs,
						Failed:    n.Failed(),
					}:
					case <-ctx.Done():
						return
					}
				}
			}
		}(sub)
	}

	go func() {
		wg.Wait()
		close(out)
	}()

	return out, nil
}

// Close closes the WebSocket client.
func (s *WSLogSource) Close() error {
	s.mu.Lock()
	client := s.client
	s.client = nil
	s.mu.Unlock()

	if client == nil {
		return nil
	}
	return client.Close()
}
