package ledger

import (
	"context"
	"errors"
)

// TxRef identifies a confirmed transfer on the underlying ledger.
type TxRef string

// Transfer failure taxonomy. A declined signature and an empty wallet are
// not the same conversation to have with the player.
var (
	ErrAuthorizationDeclined = errors.New("transfer authorization was declined")
	ErrInsufficientFunds     = errors.New("insufficient funds for transfer")
	ErrNetworkFailure        = errors.New("ledger network failure")
	ErrConfirmationTimeout   = errors.New("transfer confirmation timed out")
)

// Client is the value-transfer capability the payout flow depends on. An
// implementation is expected to build, sign, broadcast and confirm the
// transfer; none of that is this package's business. Transfer blocks until
// the ledger confirms or the context expires, which may be a long time when
// a human has to approve the signature.
type Client interface {
	Transfer(ctx context.Context, fromIdentity, toIdentity string, amount float64) (TxRef, error)
}

// Reason maps a transfer error to the short code stored in the session's
// payout_reason field, so both players see why restitution did not happen.
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrAuthorizationDeclined):
		return "authorization_declined"
	case errors.Is(err, ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, ErrConfirmationTimeout):
		return "confirmation_timeout"
	default:
		return "network_failure"
	}
}
