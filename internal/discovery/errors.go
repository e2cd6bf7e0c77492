package discovery

import "errors"

// Decode errors.
var (
	// ErrNoInstruction is returned when a transaction has no pool-creation instruction.
	ErrNoInstruction = errors.New("no initialize2 instruction")

	// ErrLayout is returned when an instruction or account does not match the
	// known layout. Decoding fails closed on this error.
	ErrLayout = errors.New("layout mismatch")
)
