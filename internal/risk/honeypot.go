package risk

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"solana-launch-gate/internal/domain"
	"solana-launch-gate/internal/jupiter"
	"solana-launch-gate/internal/solana"
)

// denialMarkers are log fragments of a swap blocked by the token program
// or a transfer hook.
var denialMarkers = []string{
	"account is frozen",
	"accountfrozen",
	"transfer is not allowed",
	"transfer not allowed",
	"blacklist",
	"denied",
}

var errNoQuoteClient = errors.New("no quote client configured")

// checkHoneypot tries a small SOL to asset buy and the matching sell. A
// missing route or zero output in either direction marks a honeypot. With a
// simulation wallet the buy is also simulated on chain.
func (a *Analyzer) checkHoneypot(ctx context.Context, asset domain.AssetIdentity) outcome {
	honeypot, reason, err := a.trialSwap(ctx, asset.Mint)
	if err != nil {
		o := honeypotOutcome(reason)
		o.result = degraded(domain.CheckHoneypot, PenaltyHoneypot, err)
		return o
	}
	if honeypot {
		return honeypotOutcome(reason)
	}
	return outcome{
		result: domain.RiskCheckResult{Check: domain.CheckHoneypot, Passed: true},
		apply: func(d *domain.SecurityDetails) {
			d.Honeypot = false
		},
	}
}

func honeypotOutcome(reason string) outcome {
	return outcome{
		result: domain.RiskCheckResult{Check: domain.CheckHoneypot, Penalty: PenaltyHoneypot},
		flags:  []domain.RiskFlag{domain.FlagHoneypot},
		apply: func(d *domain.SecurityDetails) {
			d.Honeypot = true
			d.HoneypotReason = reason
		},
	}
}

// trialSwap returns whether the asset behaves like a honeypot. An error means
// the trial could not complete.
func (a *Analyzer) trialSwap(ctx context.Context, mint string) (bool, string, error) {
	if a.quotes == nil {
		return true, "unverified", errNoQuoteClient
	}

	lamports := uint64(a.cfg.TrialAmountSOL * solana.LamportsPerSOL)
	buy, err := a.quotes.Quote(ctx, jupiter.QuoteRequest{
		InputMint:   solana.NativeMint,
		OutputMint:  mint,
		Amount:      lamports,
		SlippageBps: a.cfg.SlippageBps,
	})
	if errors.Is(err, jupiter.ErrNoRoute) {
		return true, "no buy route", nil
	}
	if err != nil {
		return true, "buy quote failed", fmt.Errorf("buy quote: %w", err)
	}
	if buy.OutAmount == 0 {
		return true, "zero buy output", nil
	}

	sell, err := a.quotes.Quote(ctx, jupiter.QuoteRequest{
		InputMint:   mint,
		OutputMint:  solana.NativeMint,
		Amount:      buy.OutAmount,
		SlippageBps: a.cfg.SlippageBps,
	})
	if errors.Is(err, jupiter.ErrNoRoute) {
		return true, "no sell route", nil
	}
	if err != nil {
		return true, "sell quote failed", fmt.Errorf("sell quote: %w", err)
	}
	if sell.OutAmount == 0 {
		return true, "zero sell output", nil
	}

	if a.cfg.SimulationWallet == "" {
		return false, "", nil
	}

	tx, err := a.quotes.SwapTransaction(ctx, buy, a.cfg.SimulationWallet)
	if err != nil {
		return true, "swap build failed", fmt.Errorf("build swap: %w", err)
	}
	sim, err := a.rpc.SimulateTransaction(ctx, tx)
	if err != nil {
		return true, "simulation failed", fmt.Errorf("simulate: %w", err)
	}
	if sim.Err != nil {
		return true, fmt.Sprintf("simulation error: %v", sim.Err), nil
	}
	for _, l := range sim.Logs {
		lower := strings.ToLower(l)
		for _, m := range denialMarkers {
			if strings.Contains(lower, m) {
				return true, "transfer denied: " + l, nil
			}
		}
	}
	return false, "", nil
}
