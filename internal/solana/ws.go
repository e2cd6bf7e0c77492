package solana

import "context"

// WSClient streams logsSubscribe notifications.
type WSClient interface {
	// SubscribeLogs returns a channel of notifications for logs mentioning the
	// filter's accounts. The channel is closed by Close.
	SubscribeLogs(ctx context.Context, filter LogsFilter) (<-chan LogNotification, error)
	Close() error
}

// LogsFilter selects logs by mentioned account. Empty Mentions subscribes to all logs.
type LogsFilter struct {
	Mentions []string
}

// LogNotification is one logsNotification.
type LogNotification struct {
	Signature string
	Slot      int64
	Logs      []string
	Err       any // transaction error, nil on success
}

// Failed reports whether the transaction failed.
func (n LogNotification) Failed() bool {
	return n.Err != nil
}
