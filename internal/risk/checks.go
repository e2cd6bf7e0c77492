package risk

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sort"

	"github.com/mr-tron/base58"
	"github.com/shopspring/decimal"

	"solana-launch-gate/internal/discovery"
	"solana-launch-gate/internal/domain"
	"solana-launch-gate/internal/solana"
)

// topHolders is the number of largest holders in the concentration share.
const topHolders = 10

// checkAuthority reads the mint account. An active freeze authority is
// penalized; an active mint authority is only flagged.
func (a *Analyzer) checkAuthority(ctx context.Context, asset domain.AssetIdentity) outcome {
	notRevoked := outcome{
		flags: []domain.RiskFlag{domain.FlagAuthorityNotRevoked},
		apply: func(d *domain.SecurityDetails) {
			d.MintAuthorityRevoked = false
			d.FreezeAuthorityRevoked = false
		},
	}

	mint, err := a.fetchMint(ctx, asset.Mint)
	if err != nil {
		notRevoked.result = degraded(domain.CheckAuthority, PenaltyFreezeAuthority, err)
		return notRevoked
	}

	mintRevoked := mint.MintAuthority == nil
	freezeRevoked := mint.FreezeAuthority == nil

	o := outcome{
		result: domain.RiskCheckResult{
			Check:  domain.CheckAuthority,
			Passed: mintRevoked && freezeRevoked,
		},
		apply: func(d *domain.SecurityDetails) {
			d.MintAuthorityRevoked = mintRevoked
			d.FreezeAuthorityRevoked = freezeRevoked
		},
	}
	if !freezeRevoked {
		o.result.Penalty = PenaltyFreezeAuthority
	}
	if !mintRevoked || !freezeRevoked {
		o.flags = []domain.RiskFlag{domain.FlagAuthorityNotRevoked}
	}
	return o
}

func (a *Analyzer) fetchMint(ctx context.Context, mint string) (*solana.MintAccount, error) {
	info, err := a.rpc.GetAccountInfo(ctx, mint)
	if err != nil {
		return nil, fmt.Errorf("get mint %s: %w", mint, err)
	}
	if info == nil {
		return nil, fmt.Errorf("mint %s not found", mint)
	}
	data, err := info.Bytes()
	if err != nil {
		return nil, err
	}
	return solana.ParseMint(data)
}

// checkHolders computes the share of supply held by the ten largest token
// accounts. Excluded owners are left out of the ranking but still count toward
// supply.
func (a *Analyzer) checkHolders(ctx context.Context, asset domain.AssetIdentity) outcome {
	if _, err := solana.DecodePubkey(asset.Mint); err != nil {
		return outcome{result: degraded(domain.CheckHolders, 0, err)}
	}

	accounts, err := a.rpc.GetProgramAccounts(ctx, solana.TokenProgramID, &solana.ProgramAccountsOpts{
		DataSize: solana.TokenAccountSize,
		Memcmp: []solana.Memcmp{{
			Offset: solana.TokenAccountMintOffset,
			Bytes:  asset.Mint,
		}},
		DataSlice: &solana.DataSlice{
			Offset: solana.TokenAccountOwnerOffset,
			Length: 40, // owner + amount
		},
	})
	if err != nil {
		return outcome{result: degraded(domain.CheckHolders, 0, fmt.Errorf("list holders: %w", err))}
	}

	excluded := make(map[string]struct{}, len(a.cfg.ExcludedHolders))
	for _, o := range a.cfg.ExcludedHolders {
		excluded[o] = struct{}{}
	}

	var amounts []decimal.Decimal
	total := decimal.Zero
	for _, acct := range accounts {
		data, err := acct.Account.Bytes()
		if err != nil || len(data) < 40 {
			continue
		}
		amount := discovery.RawAmount(binary.LittleEndian.Uint64(data[32:40]))
		if !amount.IsPositive() {
			continue
		}
		total = total.Add(amount)
		if _, skip := excluded[base58.Encode(data[:32])]; skip {
			continue
		}
		amounts = append(amounts, amount)
	}

	sort.Slice(amounts, func(i, j int) bool { return amounts[i].GreaterThan(amounts[j]) })
	top := decimal.Zero
	for i := 0; i < len(amounts) && i < topHolders; i++ {
		top = top.Add(amounts[i])
	}

	pct := 0.0
	if total.IsPositive() {
		pct = top.Div(total).Mul(decimal.NewFromInt(100)).InexactFloat64()
	}

	o := outcome{
		result: domain.RiskCheckResult{Check: domain.CheckHolders, Passed: pct <= a.cfg.ConcentrationPct},
		apply: func(d *domain.SecurityDetails) {
			d.Top10HolderPct = pct
			d.HolderCount = len(amounts)
		},
	}
	if pct > a.cfg.ConcentrationPct {
		o.result.Penalty = PenaltyHighConcentration
		o.flags = []domain.RiskFlag{domain.FlagHighConcentration}
	}
	return o
}

// poolInfo is the deepest SOL pool found for a mint.
type poolInfo struct {
	ID           string
	State        *discovery.PoolState
	LiquiditySOL float64
	VaultRead    bool // false when the SOL vault could not be read
}

var errNoPool = errors.New("no pool")

// findPool looks up AMM pools pairing mint with wrapped SOL in either
// orientation and returns the one with the largest SOL vault.
func (a *Analyzer) findPool(ctx context.Context, mint string) (*poolInfo, error) {
	orientations := [][2]string{
		{mint, solana.NativeMint},
		{solana.NativeMint, mint},
	}

	var pools []solana.KeyedAccount
	for _, o := range orientations {
		found, err := a.rpc.GetProgramAccounts(ctx, a.cfg.AMMProgramID, &solana.ProgramAccountsOpts{
			DataSize: discovery.PoolStateSize,
			Memcmp: []solana.Memcmp{
				{Offset: discovery.PoolBaseMintOffset, Bytes: o[0]},
				{Offset: discovery.PoolQuoteMintOffset, Bytes: o[1]},
			},
		})
		if err != nil {
			return nil, fmt.Errorf("list pools: %w", err)
		}
		pools = append(pools, found...)
	}
	if len(pools) == 0 {
		return nil, errNoPool
	}

	var (
		states []*discovery.PoolState
		ids    []string
		vaults []string
	)
	for _, p := range pools {
		data, err := p.Account.Bytes()
		if err != nil {
			continue
		}
		state, err := discovery.ParsePoolState(data)
		if err != nil {
			continue
		}
		vault, ok := state.NativeVault(solana.NativeMint)
		if !ok {
			continue
		}
		states = append(states, state)
		ids = append(ids, p.Pubkey)
		vaults = append(vaults, vault)
	}
	if len(states) == 0 {
		return nil, errNoPool
	}

	infos, err := a.rpc.GetMultipleAccounts(ctx, vaults)
	if err != nil {
		return nil, fmt.Errorf("get vaults: %w", err)
	}

	var best *poolInfo
	for i, info := range infos {
		if i >= len(states) {
			break
		}
		p := &poolInfo{ID: ids[i], State: states[i]}
		if info != nil {
			if data, err := info.Bytes(); err == nil {
				if acct, err := solana.ParseTokenAccount(data); err == nil {
					p.LiquiditySOL = discovery.RawAmount(acct.Amount).Shift(-9).InexactFloat64()
					p.VaultRead = true
				}
			}
		}
		switch {
		case best == nil,
			p.VaultRead && !best.VaultRead,
			p.VaultRead == best.VaultRead && p.LiquiditySOL > best.LiquiditySOL:
			best = p
		}
	}
	return best, nil
}

// checkLiquidity penalizes a missing or shallow SOL pool. A pool whose vault
// cannot be read counts as missing; an empty vault is shallow.
func (a *Analyzer) checkLiquidity(pool func() (*poolInfo, error)) outcome {
	noPool := outcome{
		result: domain.RiskCheckResult{Check: domain.CheckLiquidity, Penalty: PenaltyNoPool},
		flags:  []domain.RiskFlag{domain.FlagNoLiquidity},
		apply: func(d *domain.SecurityDetails) {
			d.HasLiquidity = false
		},
	}

	p, err := pool()
	if errors.Is(err, errNoPool) {
		return noPool
	}
	if err != nil {
		noPool.result = degraded(domain.CheckLiquidity, PenaltyNoPool, err)
		return noPool
	}
	if !p.VaultRead {
		noPool.apply = func(d *domain.SecurityDetails) {
			d.PoolID = p.ID
		}
		return noPool
	}

	o := outcome{
		result: domain.RiskCheckResult{Check: domain.CheckLiquidity, Passed: true},
		apply: func(d *domain.SecurityDetails) {
			d.HasLiquidity = true
			d.PoolID = p.ID
			d.PoolLiquiditySOL = p.LiquiditySOL
		},
	}
	if p.LiquiditySOL < a.cfg.LowLiquiditySOL {
		o.result.Passed = false
		o.result.Penalty = PenaltyLowLiquidity
		o.flags = []domain.RiskFlag{domain.FlagLowLiquidity}
	}
	return o
}

// checkLPBurn measures the share of LP tokens that were burned or sent to a
// burn sink. It is informational and never penalized.
func (a *Analyzer) checkLPBurn(ctx context.Context, pool func() (*poolInfo, error)) outcome {
	p, err := pool()
	if errors.Is(err, errNoPool) {
		return outcome{result: domain.RiskCheckResult{Check: domain.CheckLPBurn}}
	}
	if err != nil {
		return outcome{result: degraded(domain.CheckLPBurn, 0, err)}
	}
	lpMint := p.State.LPMint

	mint, err := a.fetchMint(ctx, lpMint)
	if err != nil {
		return outcome{result: degraded(domain.CheckLPBurn, 0, err)}
	}

	supply := discovery.RawAmount(mint.Supply)
	minted := discovery.RawAmount(p.State.LPReserve)
	if minted.LessThan(supply) {
		minted = supply
	}
	if !minted.IsPositive() {
		return outcome{result: degraded(domain.CheckLPBurn, 0, errors.New("lp supply is zero"))}
	}

	burned := minted.Sub(supply)

	var sinks []string
	for _, owner := range a.cfg.BurnSinks {
		ata, err := solana.FindAssociatedTokenAddress(owner, lpMint)
		if err != nil {
			continue
		}
		sinks = append(sinks, ata)
	}
	if len(sinks) > 0 {
		infos, err := a.rpc.GetMultipleAccounts(ctx, sinks)
		if err != nil {
			return outcome{result: degraded(domain.CheckLPBurn, 0, fmt.Errorf("get burn sinks: %w", err))}
		}
		for _, info := range infos {
			if info == nil {
				continue
			}
			data, err := info.Bytes()
			if err != nil {
				continue
			}
			if acct, err := solana.ParseTokenAccount(data); err == nil && acct.Mint == lpMint {
				burned = burned.Add(discovery.RawAmount(acct.Amount))
			}
		}
	}

	pct := burned.Div(minted).Mul(decimal.NewFromInt(100)).InexactFloat64()
	if pct > 100 {
		pct = 100
	}

	return outcome{
		result: domain.RiskCheckResult{Check: domain.CheckLPBurn, Passed: pct > 50},
		apply: func(d *domain.SecurityDetails) {
			d.LPBurnPct = pct
		},
	}
}
