package invite

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignAndParse(t *testing.T) {
	t.Run("Round-trips an invite", func(t *testing.T) {
		// Given: a signed invite
		token, err := Sign(Invite{
			SessionID:    "42",
			HostIdentity: "host-wallet",
			Stake:        1.5,
		}, "shared-secret")
		require.NoError(t, err)

		// When: the joiner parses it with the same secret
		parsed, err := Parse(token, "shared-secret")

		// Then: the invite comes back intact
		require.NoError(t, err)
		assert.Equal(t, "42", parsed.SessionID)
		assert.Equal(t, "host-wallet", parsed.HostIdentity)
		assert.Equal(t, 1.5, parsed.Stake)
	})

	t.Run("Rejects a token signed with a different secret", func(t *testing.T) {
		token, err := Sign(Invite{SessionID: "42", HostIdentity: "host-wallet", Stake: 1}, "secret-a")
		require.NoError(t, err)

		_, err = Parse(token, "secret-b")
		require.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("Rejects a tampered token", func(t *testing.T) {
		token, err := Sign(Invite{SessionID: "42", HostIdentity: "host-wallet", Stake: 1}, "shared-secret")
		require.NoError(t, err)

		// flip a character in the payload segment
		parts := strings.Split(token, ".")
		require.Len(t, parts, 3)
		payload := []byte(parts[1])
		if payload[0] == 'A' {
			payload[0] = 'B'
		} else {
			payload[0] = 'A'
		}
		tampered := parts[0] + "." + string(payload) + "." + parts[2]

		_, err = Parse(tampered, "shared-secret")
		require.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("Rejects garbage", func(t *testing.T) {
		_, err := Parse("not-a-token", "shared-secret")
		require.ErrorIs(t, err, ErrInvalidToken)
	})
}
