package payout

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prsweeeet/tictactoe-pvp/internal/apperror"
	"github.com/prsweeeet/tictactoe-pvp/internal/entity"
	"github.com/prsweeeet/tictactoe-pvp/internal/ledger"
)

type sessionView interface {
	Session() *entity.Session
	PublishUpdate(ctx context.Context, mutate func(*entity.Session) error) error
}

// Orchestrator drives the post-game transfer of the stake from loser to
// winner. It runs on both clients but only the losing side initiates; the
// payout lifecycle is tracked in the shared session record so both players
// can see whether restitution happened. A stalled or refused payment never
// touches the agreed-upon game result.
type Orchestrator struct {
	logger   *slog.Logger
	ledger   ledger.Client
	sessions sessionView

	localIdentity   string
	transferTimeout time.Duration

	mu        sync.Mutex
	attempted bool
}

func New(logger *slog.Logger, ledgerClient ledger.Client, sessions sessionView, localIdentity string, transferTimeout time.Duration) *Orchestrator {
	return &Orchestrator{
		logger:          logger.With("component", "payout"),
		ledger:          ledgerClient,
		sessions:        sessions,
		localIdentity:   localIdentity,
		transferTimeout: transferTimeout,
	}
}

// Observe inspects an accepted session snapshot and, on the losing side of
// a freshly won game, starts the single transfer attempt. Duplicate
// terminal-state notifications are no-ops: the payout state guard and the
// in-process attempt flag together keep the transfer exactly-once.
func (that *Orchestrator) Observe(ctx context.Context, session *entity.Session) error {
	if session.Status != entity.StatusWon {
		return nil
	}

	if session.LoserIdentity() != that.localIdentity {
		return nil
	}

	if session.PayoutState != entity.PayoutNone {
		return nil
	}

	that.mu.Lock()
	if that.attempted {
		that.mu.Unlock()
		return nil
	}
	that.attempted = true
	that.mu.Unlock()

	return that.run(ctx, session, entity.PayoutNone)
}

// Retry re-attempts a failed payout. It is an explicit action, never
// automatic, and is only valid from the failed state so a duplicate retry
// cannot double-send.
func (that *Orchestrator) Retry(ctx context.Context) error {
	session := that.sessions.Session()

	if session.Status != entity.StatusWon || session.LoserIdentity() != that.localIdentity {
		return apperror.ErrPayoutNotFailed
	}

	if session.PayoutState != entity.PayoutFailed {
		return apperror.ErrPayoutNotFailed
	}

	that.mu.Lock()
	that.attempted = true
	that.mu.Unlock()

	return that.run(ctx, session, entity.PayoutFailed)
}

func (that *Orchestrator) run(ctx context.Context, session *entity.Session, fromState string) error {
	log := that.logger.With("session", session.ID)

	winner := session.WinnerIdentity()
	loser := session.LoserIdentity()

	if err := that.markPending(ctx, fromState); err != nil {
		// nothing was sent, a later notification may try again
		that.mu.Lock()
		that.attempted = false
		that.mu.Unlock()

		return fmt.Errorf("failed to mark payout pending: %w", err)
	}

	log.Info("payout pending, requesting transfer", "from", loser, "to", winner, "stake", session.Stake)

	transferCtx, cancel := context.WithTimeout(ctx, that.transferTimeout)
	defer cancel()

	ref, err := that.ledger.Transfer(transferCtx, loser, winner, session.Stake)
	if err != nil {
		reason := ledger.Reason(err)
		log.Error("transfer failed", "reason", reason, "error", err)

		if pubErr := that.markFailed(ctx, reason); pubErr != nil {
			log.Error("failed to publish failed payout state", "error", pubErr)
		}

		return fmt.Errorf("transfer failed: %w", err)
	}

	log.Info("transfer confirmed", "tx_ref", string(ref))

	if pubErr := that.markSent(ctx, ref); pubErr != nil {
		log.Error("failed to publish sent payout state", "error", pubErr)
		return fmt.Errorf("transfer sent but state not published: %w", pubErr)
	}

	return nil
}

func (that *Orchestrator) markPending(ctx context.Context, fromState string) error {
	return that.sessions.PublishUpdate(ctx, func(session *entity.Session) error {
		if session.PayoutState != fromState {
			return apperror.ErrPayoutAlreadyRan
		}
		session.PayoutState = entity.PayoutPending
		session.PayoutReason = ""
		return nil
	})
}

func (that *Orchestrator) markSent(ctx context.Context, ref ledger.TxRef) error {
	return that.sessions.PublishUpdate(ctx, func(session *entity.Session) error {
		session.PayoutState = entity.PayoutSent
		session.PayoutRef = string(ref)
		session.PayoutReason = ""
		return nil
	})
}

func (that *Orchestrator) markFailed(ctx context.Context, reason string) error {
	return that.sessions.PublishUpdate(ctx, func(session *entity.Session) error {
		session.PayoutState = entity.PayoutFailed
		session.PayoutReason = reason
		return nil
	})
}
