package invite

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invite token is invalid")
	ErrMissingClaim = errors.New("invite token is missing a claim")
)

// Invite is what the host hands the prospective joiner out-of-band. Signing
// it binds session id, host identity and stake together, so a tampered link
// can't join the joiner into a different wager than the one offered.
type Invite struct {
	SessionID    string
	HostIdentity string
	Stake        float64
}

type claims struct {
	HostIdentity string  `json:"host"`
	Stake        float64 `json:"stake"`
	jwt.RegisteredClaims
}

// Sign produces a compact token carrying the invite.
func Sign(inv Invite, secret string) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		HostIdentity: inv.HostIdentity,
		Stake:        inv.Stake,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  inv.SessionID,
			IssuedAt: jwt.NewNumericDate(time.Now()),
		},
	})

	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("failed to sign invite: %w", err)
	}

	return signed, nil
}

// Parse verifies the signature and extracts the invite.
func Parse(tokenString, secret string) (Invite, error) {
	var parsed claims

	token, err := jwt.ParseWithClaims(tokenString, &parsed, func(_ *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return Invite{}, fmt.Errorf("%w: %s", ErrInvalidToken, err)
	}

	if !token.Valid {
		return Invite{}, ErrInvalidToken
	}

	if parsed.Subject == "" || parsed.HostIdentity == "" {
		return Invite{}, ErrMissingClaim
	}

	return Invite{
		SessionID:    parsed.Subject,
		HostIdentity: parsed.HostIdentity,
		Stake:        parsed.Stake,
	}, nil
}
