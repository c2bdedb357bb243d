package gamesync

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prsweeeet/tictactoe-pvp/internal/apperror"
	"github.com/prsweeeet/tictactoe-pvp/internal/entity"
	"github.com/prsweeeet/tictactoe-pvp/internal/tictactoe"
)

type EventKind string

const (
	// EventStateChanged carries a newly accepted session snapshot for the
	// renderer. The renderer is a read-only subscriber; it never mutates
	// the session it receives.
	EventStateChanged EventKind = "state_changed"
	// EventMoveReverted reports that an optimistic local move was rolled
	// back because the store never acknowledged it.
	EventMoveReverted EventKind = "move_reverted"
	// EventSyncWarning reports an incoming update that failed validation
	// and forced a re-fetch of authoritative state.
	EventSyncWarning EventKind = "sync_warning"
)

type Event struct {
	Kind    EventKind
	Session *entity.Session
	Err     error
}

type sessionStore interface {
	Save(ctx context.Context, session *entity.Session) error
	GetByID(ctx context.Context, id string) (*entity.Session, error)
	Watch(ctx context.Context, id string) (<-chan *entity.Session, func() error, error)
}

// Synchronizer reconciles one client's view of a session with the shared
// store under two writers and no locking. Moves are applied optimistically
// and published tagged with their MoveSeq; incoming updates are accepted
// only when their MoveSeq is not behind the local one. There is no
// wall-clock tiebreak anywhere, only the logical clock.
type Synchronizer struct {
	logger *slog.Logger
	store  sessionStore

	publishTimeout time.Duration

	mu       sync.Mutex
	local    *entity.Session // provisional view, may run ahead of acked
	acked    *entity.Session // last snapshot the store acknowledged
	inflight bool

	events chan Event
}

func New(logger *slog.Logger, store sessionStore, session *entity.Session, publishTimeout time.Duration) *Synchronizer {
	return &Synchronizer{
		logger:         logger.With("component", "gamesync"),
		store:          store,
		publishTimeout: publishTimeout,
		local:          session.Clone(),
		acked:          session.Clone(),
		events:         make(chan Event, 16),
	}
}

// Session returns a copy of the current local view.
func (that *Synchronizer) Session() *entity.Session {
	that.mu.Lock()
	defer that.mu.Unlock()

	return that.local.Clone()
}

// Events is the stream the renderer consumes.
func (that *Synchronizer) Events() <-chan Event {
	return that.events
}

// Run consumes the store's change stream until the context ends. It
// subscribes once for the lifetime of the session and unsubscribes on
// teardown.
func (that *Synchronizer) Run(ctx context.Context) error {
	updates, stop, err := that.store.Watch(ctx, that.sessionID())
	if err != nil {
		return fmt.Errorf("failed to watch session: %w", err)
	}

	defer func() {
		if stopErr := stop(); stopErr != nil {
			that.logger.Error("failed to unsubscribe from session", "error", stopErr)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case incoming, ok := <-updates:
			if !ok {
				return nil
			}
			that.OnRemoteUpdate(ctx, incoming)
		}
	}
}

// SubmitMove validates and applies a local move optimistically, then
// publishes it. Only one move may be in flight at a time; if the store
// rejects the publish or never acknowledges it within the bounded timeout,
// the optimistic move is reverted so the local view cannot silently
// diverge.
func (that *Synchronizer) SubmitMove(ctx context.Context, cell int, identity string) error {
	that.mu.Lock()

	if that.inflight {
		that.mu.Unlock()
		return apperror.ErrMoveInFlight
	}

	candidate := that.local.Clone()
	if err := tictactoe.ApplyMove(candidate, cell, identity); err != nil {
		that.mu.Unlock()
		return err
	}

	that.local = candidate
	that.inflight = true
	that.mu.Unlock()

	err := that.publish(ctx, candidate)

	that.mu.Lock()
	defer that.mu.Unlock()

	that.inflight = false

	if err != nil {
		that.local = that.acked.Clone()
		reverted := fmt.Errorf("%w: %s", apperror.ErrPublishRejected, err)
		that.emit(Event{Kind: EventMoveReverted, Session: that.local.Clone(), Err: reverted})

		return reverted
	}

	that.acked = candidate.Clone()
	that.emit(Event{Kind: EventStateChanged, Session: candidate.Clone()})

	return nil
}

// PublishUpdate applies a mutation that does not consume a turn (joiner
// attaching, game starting, payout state advancing) and publishes it under
// the same bounded-timeout policy.
func (that *Synchronizer) PublishUpdate(ctx context.Context, mutate func(*entity.Session) error) error {
	that.mu.Lock()
	defer that.mu.Unlock()

	candidate := that.local.Clone()
	if err := mutate(candidate); err != nil {
		return err
	}

	if err := that.publish(ctx, candidate); err != nil {
		return fmt.Errorf("%w: %s", apperror.ErrPublishRejected, err)
	}

	that.local = candidate
	that.acked = candidate.Clone()
	that.emit(Event{Kind: EventStateChanged, Session: candidate.Clone()})

	return nil
}

// OnRemoteUpdate reconciles an incoming snapshot against the local view.
// The rule is last-writer-wins on the move counter: strictly newer replaces
// the local state wholesale, equal is merged field-forward or dropped as a
// duplicate delivery, older is never accepted.
func (that *Synchronizer) OnRemoteUpdate(ctx context.Context, incoming *entity.Session) {
	that.mu.Lock()
	defer that.mu.Unlock()

	switch {
	case incoming.MoveSeq < that.local.MoveSeq:
		that.logger.Debug("dropping stale update",
			"session", incoming.ID, "incoming_seq", incoming.MoveSeq, "local_seq", that.local.MoveSeq)

	case incoming.MoveSeq == that.local.MoveSeq:
		merged := that.local.Clone()
		if !mergeForward(merged, incoming) {
			// duplicate delivery, nothing new
			return
		}

		that.local = merged
		that.acked = merged.Clone()
		that.emit(Event{Kind: EventStateChanged, Session: merged.Clone()})

	default:
		if incoming.MoveSeq == that.local.MoveSeq+1 && that.local.IsInProgress() {
			if err := tictactoe.ReplayMove(that.local, incoming); err != nil {
				that.emit(Event{Kind: EventSyncWarning, Session: that.local.Clone(), Err: err})
				that.refetchLocked(ctx)
				return
			}
		}

		that.local = incoming.Clone()
		that.acked = incoming.Clone()
		that.emit(Event{Kind: EventStateChanged, Session: incoming.Clone()})
	}
}

func (that *Synchronizer) publish(ctx context.Context, session *entity.Session) error {
	publishCtx, cancel := context.WithTimeout(ctx, that.publishTimeout)
	defer cancel()

	return that.store.Save(publishCtx, session)
}

// refetchLocked pulls authoritative state after a suspect notification.
// Caller holds the mutex.
func (that *Synchronizer) refetchLocked(ctx context.Context) {
	authoritative, err := that.store.GetByID(ctx, that.local.ID)
	if err != nil {
		that.logger.Error("failed to re-fetch session", "session", that.local.ID, "error", err)
		return
	}

	if authoritative.MoveSeq < that.local.MoveSeq {
		return
	}

	that.local = authoritative.Clone()
	that.acked = authoritative.Clone()
	that.emit(Event{Kind: EventStateChanged, Session: authoritative.Clone()})
}

func (that *Synchronizer) emit(event Event) {
	select {
	case that.events <- event:
	default:
		that.logger.Warn("event subscriber is not keeping up, dropping event", "kind", event.Kind)
	}
}

func (that *Synchronizer) sessionID() string {
	that.mu.Lock()
	defer that.mu.Unlock()

	return that.local.ID
}

// mergeForward folds lifecycle fields that legally change without a move:
// the joiner identity (set once), the status (forward only) and the payout
// state (forward only). Returns false when the incoming snapshot adds
// nothing, which is exactly the duplicate-delivery case.
func mergeForward(local, incoming *entity.Session) bool {
	changed := false

	if local.JoinerIdentity == "" && incoming.JoinerIdentity != "" {
		local.JoinerIdentity = incoming.JoinerIdentity
		changed = true
	}

	if entity.StatusRank(incoming.Status) > entity.StatusRank(local.Status) {
		local.Status = incoming.Status
		local.Winner = incoming.Winner
		local.WinLine = append([]int(nil), incoming.WinLine...)
		local.Turn = incoming.Turn
		changed = true
	}

	if entity.PayoutRank(incoming.PayoutState) > entity.PayoutRank(local.PayoutState) {
		local.PayoutState = incoming.PayoutState
		local.PayoutRef = incoming.PayoutRef
		local.PayoutReason = incoming.PayoutReason
		changed = true
	}

	return changed
}
