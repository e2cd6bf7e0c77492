package discovery

import (
	"context"
	"time"

	"solana-launch-gate/internal/solana"
)

// DefaultMetadataTimeout bounds a metadata lookup.
const DefaultMetadataTimeout = 3 * time.Second

// MetadataResolver fetches token name and symbol from the Metaplex metadata account.
type MetadataResolver struct {
	rpc     solana.RPCClient
	timeout time.Duration
}

// NewMetadataResolver creates a resolver. Non-positive timeout uses the default.
func NewMetadataResolver(rpc solana.RPCClient, timeout time.Duration) *MetadataResolver {
	if timeout <= 0 {
		timeout = DefaultMetadataTimeout
	}
	return &MetadataResolver{rpc: rpc, timeout: timeout}
}

// Resolve returns name and symbol for mint. Lookup is best effort: any
// failure yields nil values and the error for logging.
func (r *MetadataResolver) Resolve(ctx context.Context, mint string) (name, symbol *string, err error) {
	pda, err := solana.FindMetadataAddress(mint)
	if err != nil {
		return nil, nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	info, err := r.rpc.GetAccountInfo(ctx, pda)
	if err != nil || info == nil {
		return nil, nil, err
	}
	data, err := info.Bytes()
	if err != nil {
		return nil, nil, err
	}
	md, err := solana.ParseMetadata(data)
	if err != nil {
		return nil, nil, err
	}

	if md.Name != "" {
		name = &md.Name
	}
	if md.Symbol != "" {
		symbol = &md.Symbol
	}
	return name, symbol, nil
}
