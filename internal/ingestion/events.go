package ingestion

import "solana-launch-gate/internal/domain"

// EventKind identifies an ingestor event.
type EventKind string

const (
	KindNewMarket    EventKind = "new_market"
	KindFastCheck    EventKind = "fast_check"
	KindConnected    EventKind = "connected"
	KindDisconnected EventKind = "disconnected"
	KindError        EventKind = "ingest_error"
)

// Event is published on the ingestor bus.
// Market is set for KindNewMarket and KindFastCheck; Err for KindDisconnected and KindError.
type Event struct {
	Kind   EventKind
	Market *domain.MarketOpenEvent
	Err    error
	At     int64 // Unix timestamp in milliseconds
}
