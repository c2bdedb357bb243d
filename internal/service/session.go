package service

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/prsweeeet/tictactoe-pvp/internal/apperror"
	"github.com/prsweeeet/tictactoe-pvp/internal/entity"
	"github.com/prsweeeet/tictactoe-pvp/internal/invite"
	"github.com/prsweeeet/tictactoe-pvp/internal/repository"
)

type SessionService interface {
	CreateSession(ctx context.Context, hostIdentity string, stake float64) (*entity.Session, string, error)
	JoinSession(ctx context.Context, inviteToken, joinerIdentity string) (*entity.Session, error)
	StartSession(ctx context.Context, id string) (*entity.Session, error)
	ResolveMark(ctx context.Context, id, identity string) (string, error)
}

type sessionService struct {
	logger *slog.Logger

	sessions     repository.SessionRepository
	minStake     float64
	inviteSecret string
}

func NewSessionService(logger *slog.Logger, sessions repository.SessionRepository, minStake float64, inviteSecret string) SessionService {
	return &sessionService{
		logger:       logger.With("component", "session-service"),
		sessions:     sessions,
		minStake:     minStake,
		inviteSecret: inviteSecret,
	}
}

// CreateSession establishes a new session in the store and returns the
// signed invite token the host shares with the prospective joiner. The
// stake is fixed here; it cannot change mid-game.
func (that *sessionService) CreateSession(ctx context.Context, hostIdentity string, stake float64) (*entity.Session, string, error) {
	if stake < that.minStake {
		return nil, "", fmt.Errorf("%w: %g < %g", apperror.ErrStakeTooSmall, stake, that.minStake)
	}

	session := entity.NewSession(generateSessionID(), hostIdentity, stake)

	if err := that.sessions.Save(ctx, session); err != nil {
		return nil, "", fmt.Errorf("failed to save session: %w", err)
	}

	token, err := invite.Sign(invite.Invite{
		SessionID:    session.ID,
		HostIdentity: hostIdentity,
		Stake:        stake,
	}, that.inviteSecret)
	if err != nil {
		return nil, "", fmt.Errorf("failed to sign invite: %w", err)
	}

	that.logger.Info("session created", "session", session.ID, "host", hostIdentity, "stake", stake)

	return session, token, nil
}

// JoinSession attaches the second participant. The joiner identity is set
// exactly once; joining again with the same identity is idempotent, any
// third identity is rejected.
func (that *sessionService) JoinSession(ctx context.Context, inviteToken, joinerIdentity string) (*entity.Session, error) {
	inv, err := invite.Parse(inviteToken, that.inviteSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to parse invite: %w", err)
	}

	session, err := that.sessions.GetByID(ctx, inv.SessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get session by id: %w", err)
	}

	if session.HostIdentity != inv.HostIdentity || session.Stake != inv.Stake {
		return nil, fmt.Errorf("%w: invite does not match session record", invite.ErrInvalidToken)
	}

	if joinerIdentity == session.HostIdentity {
		return nil, fmt.Errorf("%w: cannot join with the host wallet", apperror.ErrAlreadyJoined)
	}

	if session.JoinerIdentity != "" {
		if session.JoinerIdentity == joinerIdentity {
			return session, nil
		}
		return nil, fmt.Errorf("%w: session id %s", apperror.ErrSessionFull, session.ID)
	}

	session.JoinerIdentity = joinerIdentity
	session.Status = entity.StatusReady

	if err = that.sessions.Save(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to update session: %w", err)
	}

	that.logger.Info("joiner attached", "session", session.ID, "joiner", joinerIdentity)

	return session, nil
}

func (that *sessionService) StartSession(ctx context.Context, id string) (*entity.Session, error) {
	session, err := that.sessions.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get session by id: %w", err)
	}

	if !session.IsReady() {
		return nil, fmt.Errorf("%w: status %s", apperror.ErrSessionNotReady, session.Status)
	}

	session.Status = entity.StatusInProgress
	session.Turn = entity.PlayerX

	if err = that.sessions.Save(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to update session: %w", err)
	}

	return session, nil
}

// ResolveMark binds the local wallet identity to its role at connect time.
// Every later move re-validates identity in the engine; this is the early
// rejection for a wallet that is not part of the session at all.
func (that *sessionService) ResolveMark(ctx context.Context, id, identity string) (string, error) {
	session, err := that.sessions.GetByID(ctx, id)
	if err != nil {
		return "", fmt.Errorf("failed to get session by id: %w", err)
	}

	mark, ok := session.MarkOf(identity)
	if !ok {
		return "", fmt.Errorf("%w: %s", apperror.ErrWrongIdentity, identity)
	}

	return mark, nil
}

// generateSessionID - generates a unique identifier for the session.
func generateSessionID() string {
	n, err := rand.Int(rand.Reader, big.NewInt(99999999))
	if err != nil {
		return ""
	}
	return n.String()
}
