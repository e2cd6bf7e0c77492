package domain

import "sort"

// CheckName identifies one of the risk checks.
type CheckName string

const (
	CheckAuthority CheckName = "authority"
	CheckHolders   CheckName = "holders"
	CheckHoneypot  CheckName = "honeypot"
	CheckLiquidity CheckName = "liquidity"
	CheckLPBurn    CheckName = "lp_burn"
)

// RiskFlag is a human-readable risk marker attached to a report.
type RiskFlag string

const (
	FlagAuthorityNotRevoked RiskFlag = "authority-not-revoked"
	FlagHighConcentration   RiskFlag = "high-concentration"
	FlagHoneypot            RiskFlag = "honeypot-detected"
	FlagNoLiquidity         RiskFlag = "no-liquidity"
	FlagLowLiquidity        RiskFlag = "low-liquidity"
)

// RiskCheckResult is the outcome of a single check.
type RiskCheckResult struct {
	Check    CheckName
	Passed   bool
	Penalty  int
	Degraded bool   // check failed and its conservative default was used
	Err      string // failure cause when Degraded
}

// SecurityDetails holds the raw findings behind a risk score.
type SecurityDetails struct {
	MintAuthorityRevoked   bool
	FreezeAuthorityRevoked bool
	Top10HolderPct         float64 // 0..100
	HolderCount            int
	LPBurnPct              float64 // 0..100
	Honeypot               bool
	HoneypotReason         string
	HasLiquidity           bool
	PoolID                 string
	PoolLiquiditySOL       float64
}

// AuthoritiesRevoked reports whether both mint and freeze authority are revoked.
func (d SecurityDetails) AuthoritiesRevoked() bool {
	return d.MintAuthorityRevoked && d.FreezeAuthorityRevoked
}

// SecurityReport is the result of analyzing one asset.
type SecurityReport struct {
	Asset      AssetIdentity
	IsSafe     bool
	RiskScore  int // 0..100
	Flags      []RiskFlag
	Details    SecurityDetails
	Checks     []RiskCheckResult
	AnalyzedAt int64 // Unix timestamp in milliseconds
	DurationMs int64
}

// HasFlag reports whether f is set.
func (r SecurityReport) HasFlag(f RiskFlag) bool {
	for _, x := range r.Flags {
		if x == f {
			return true
		}
	}
	return false
}

// NormalizeFlags returns flags sorted and without duplicates.
func NormalizeFlags(flags []RiskFlag) []RiskFlag {
	if len(flags) == 0 {
		return nil
	}
	seen := make(map[RiskFlag]struct{}, len(flags))
	out := make([]RiskFlag, 0, len(flags))
	for _, f := range flags {
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
