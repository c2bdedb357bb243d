package service

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prsweeeet/tictactoe-pvp/internal/apperror"
	"github.com/prsweeeet/tictactoe-pvp/internal/entity"
	"github.com/prsweeeet/tictactoe-pvp/internal/invite"
)

const (
	hostWallet   = "host-wallet"
	joinerWallet = "joiner-wallet"
	inviteSecret = "shared-secret"
	minStake     = 0.2
)

type memorySessionRepo struct {
	sessions map[string]*entity.Session
}

func newMemorySessionRepo() *memorySessionRepo {
	return &memorySessionRepo{sessions: make(map[string]*entity.Session)}
}

func (that *memorySessionRepo) Save(_ context.Context, session *entity.Session) error {
	that.sessions[session.ID] = session.Clone()
	return nil
}

func (that *memorySessionRepo) GetByID(_ context.Context, id string) (*entity.Session, error) {
	session, ok := that.sessions[id]
	if !ok {
		return nil, apperror.ErrSessionNotFound
	}
	return session.Clone(), nil
}

func (that *memorySessionRepo) DeleteByID(_ context.Context, id string) error {
	delete(that.sessions, id)
	return nil
}

func (that *memorySessionRepo) Watch(_ context.Context, _ string) (<-chan *entity.Session, func() error, error) {
	updates := make(chan *entity.Session)
	return updates, func() error { return nil }, nil
}

func newService(t *testing.T) (SessionService, *memorySessionRepo) {
	t.Helper()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	repo := newMemorySessionRepo()
	return NewSessionService(logger, repo, minStake, inviteSecret), repo
}

func TestSessionService_CreateSession(t *testing.T) {
	t.Run("Creates a session and a verifiable invite", func(t *testing.T) {
		// Given: a host and a valid stake
		sessions, repo := newService(t)

		// When: the session is created
		session, token, err := sessions.CreateSession(context.Background(), hostWallet, 1.5)

		// Then: the store holds it and the invite binds id, host and stake
		require.NoError(t, err)
		assert.Equal(t, entity.StatusAwaitingJoiner, session.Status)
		assert.Contains(t, repo.sessions, session.ID)

		inv, err := invite.Parse(token, inviteSecret)
		require.NoError(t, err)
		assert.Equal(t, session.ID, inv.SessionID)
		assert.Equal(t, hostWallet, inv.HostIdentity)
		assert.Equal(t, 1.5, inv.Stake)
	})

	t.Run("Rejects a stake below the minimum", func(t *testing.T) {
		// Given: a stake under the sanity floor
		sessions, repo := newService(t)

		// When/Then: creation fails before anything is stored
		_, _, err := sessions.CreateSession(context.Background(), hostWallet, 0.05)
		require.ErrorIs(t, err, apperror.ErrStakeTooSmall)
		assert.Empty(t, repo.sessions)
	})
}

func TestSessionService_JoinSession(t *testing.T) {
	createSession := func(t *testing.T) (SessionService, string) {
		t.Helper()
		sessions, _ := newService(t)
		_, token, err := sessions.CreateSession(context.Background(), hostWallet, 1.5)
		require.NoError(t, err)
		return sessions, token
	}

	t.Run("Attaches the joiner and readies the session", func(t *testing.T) {
		sessions, token := createSession(t)

		// When: the joiner follows the invite
		session, err := sessions.JoinSession(context.Background(), token, joinerWallet)

		// Then: the identity is recorded and the session is ready
		require.NoError(t, err)
		assert.Equal(t, joinerWallet, session.JoinerIdentity)
		assert.Equal(t, entity.StatusReady, session.Status)
	})

	t.Run("Joining again with the same identity is idempotent", func(t *testing.T) {
		sessions, token := createSession(t)

		_, err := sessions.JoinSession(context.Background(), token, joinerWallet)
		require.NoError(t, err)

		session, err := sessions.JoinSession(context.Background(), token, joinerWallet)
		require.NoError(t, err)
		assert.Equal(t, joinerWallet, session.JoinerIdentity)
	})

	t.Run("Rejects the host wallet joining its own session", func(t *testing.T) {
		sessions, token := createSession(t)

		_, err := sessions.JoinSession(context.Background(), token, hostWallet)
		require.ErrorIs(t, err, apperror.ErrAlreadyJoined)
	})

	t.Run("Rejects a third identity once the joiner is set", func(t *testing.T) {
		sessions, token := createSession(t)

		_, err := sessions.JoinSession(context.Background(), token, joinerWallet)
		require.NoError(t, err)

		_, err = sessions.JoinSession(context.Background(), token, "somebody-else")
		require.ErrorIs(t, err, apperror.ErrSessionFull)
	})

	t.Run("Rejects an invite that does not match the session record", func(t *testing.T) {
		sessions, repo := newService(t)
		session, token, err := sessions.CreateSession(context.Background(), hostWallet, 1.5)
		require.NoError(t, err)

		// the stake in the store changed behind the invite's back
		repo.sessions[session.ID].Stake = 9

		_, err = sessions.JoinSession(context.Background(), token, joinerWallet)
		require.ErrorIs(t, err, invite.ErrInvalidToken)
	})

	t.Run("Rejects an invite signed with another secret", func(t *testing.T) {
		sessions, _ := newService(t)

		forged, err := invite.Sign(invite.Invite{SessionID: "42", HostIdentity: hostWallet, Stake: 1}, "wrong-secret")
		require.NoError(t, err)

		_, err = sessions.JoinSession(context.Background(), forged, joinerWallet)
		require.ErrorIs(t, err, invite.ErrInvalidToken)
	})
}

func TestSessionService_StartSession(t *testing.T) {
	t.Run("Starts a ready session with X to move", func(t *testing.T) {
		sessions, _ := newService(t)
		created, token, err := sessions.CreateSession(context.Background(), hostWallet, 1.5)
		require.NoError(t, err)
		_, err = sessions.JoinSession(context.Background(), token, joinerWallet)
		require.NoError(t, err)

		// When: the host starts the game
		session, err := sessions.StartSession(context.Background(), created.ID)

		// Then: play begins with X
		require.NoError(t, err)
		assert.Equal(t, entity.StatusInProgress, session.Status)
		assert.Equal(t, entity.PlayerX, session.Turn)
	})

	t.Run("Refuses to start before the joiner attached", func(t *testing.T) {
		sessions, _ := newService(t)
		created, _, err := sessions.CreateSession(context.Background(), hostWallet, 1.5)
		require.NoError(t, err)

		_, err = sessions.StartSession(context.Background(), created.ID)
		require.ErrorIs(t, err, apperror.ErrSessionNotReady)
	})
}

func TestSessionService_ResolveMark(t *testing.T) {
	sessions, _ := newService(t)
	created, token, err := sessions.CreateSession(context.Background(), hostWallet, 1.5)
	require.NoError(t, err)
	_, err = sessions.JoinSession(context.Background(), token, joinerWallet)
	require.NoError(t, err)

	t.Run("Host resolves to X, joiner to O", func(t *testing.T) {
		mark, err := sessions.ResolveMark(context.Background(), created.ID, hostWallet)
		require.NoError(t, err)
		assert.Equal(t, entity.PlayerX, mark)

		mark, err = sessions.ResolveMark(context.Background(), created.ID, joinerWallet)
		require.NoError(t, err)
		assert.Equal(t, entity.PlayerO, mark)
	})

	t.Run("A wallet outside the session is rejected", func(t *testing.T) {
		_, err := sessions.ResolveMark(context.Background(), created.ID, "somebody-else")
		require.ErrorIs(t, err, apperror.ErrWrongIdentity)
	})
}
