package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/prsweeeet/tictactoe-pvp/internal/apperror"
	"github.com/prsweeeet/tictactoe-pvp/internal/entity"
)

// SessionRepository is the shared session store: a redis hash per session
// plus a pub/sub channel that fans every write out to the other client.
// Delivery on the channel is at-least-once and may be reordered; the
// synchronizer's move-counter rule is what makes that safe.
type SessionRepository interface {
	Save(ctx context.Context, session *entity.Session) error
	GetByID(ctx context.Context, id string) (*entity.Session, error)
	DeleteByID(ctx context.Context, id string) error
	Watch(ctx context.Context, id string) (<-chan *entity.Session, func() error, error)
}

type dbSession struct {
	client *redis.Client
}

func NewSessionRepository(client *redis.Client) SessionRepository {
	return &dbSession{
		client: client,
	}
}

func sessionKey(id string) string     { return "session:" + id }
func sessionChannel(id string) string { return "session:" + id + ":events" }

// Save writes the whole session record as one HSET, so a notification never
// observes a half-applied field set, then broadcasts the snapshot.
func (that *dbSession) Save(ctx context.Context, session *entity.Session) error {
	fields, err := sessionFields(session)
	if err != nil {
		return fmt.Errorf("could not encode session: %w", err)
	}

	if err = that.client.HSet(ctx, sessionKey(session.ID), fields).Err(); err != nil {
		return fmt.Errorf("failed to set session: %w", err)
	}

	snapshot, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("could not marshal session snapshot: %w", err)
	}

	if err = that.client.Publish(ctx, sessionChannel(session.ID), snapshot).Err(); err != nil {
		return fmt.Errorf("failed to broadcast session update: %w", err)
	}

	return nil
}

func (that *dbSession) GetByID(ctx context.Context, id string) (*entity.Session, error) {
	fields, err := that.client.HGetAll(ctx, sessionKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get session by id: %w", err)
	}

	if len(fields) == 0 {
		return nil, apperror.ErrSessionNotFound
	}

	session, err := sessionFromFields(fields)
	if err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}

	return session, nil
}

func (that *dbSession) DeleteByID(ctx context.Context, id string) error {
	if err := that.client.Del(ctx, sessionKey(id)).Err(); err != nil {
		return fmt.Errorf("failed to delete session by ID: %w", err)
	}

	return nil
}

// Watch subscribes to the session's change stream for the lifetime of the
// context. The returned stop function unsubscribes; the snapshot channel is
// closed once the subscription ends.
func (that *dbSession) Watch(ctx context.Context, id string) (<-chan *entity.Session, func() error, error) {
	pubsub := that.client.Subscribe(ctx, sessionChannel(id))

	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, nil, fmt.Errorf("failed to subscribe to session channel: %w", err)
	}

	updates := make(chan *entity.Session, 8)

	go func() {
		defer close(updates)

		for msg := range pubsub.Channel() {
			var session entity.Session
			if err := json.Unmarshal([]byte(msg.Payload), &session); err != nil {
				continue
			}

			select {
			case updates <- &session:
			case <-ctx.Done():
				return
			}
		}
	}()

	return updates, pubsub.Close, nil
}

func sessionFields(session *entity.Session) (map[string]any, error) {
	board, err := json.Marshal(session.Board)
	if err != nil {
		return nil, fmt.Errorf("could not marshal board: %w", err)
	}

	winLine, err := json.Marshal(session.WinLine)
	if err != nil {
		return nil, fmt.Errorf("could not marshal win line: %w", err)
	}

	return map[string]any{
		"id":              session.ID,
		"host_identity":   session.HostIdentity,
		"joiner_identity": session.JoinerIdentity,
		"board":           string(board),
		"turn":            session.Turn,
		"status":          session.Status,
		"winner":          session.Winner,
		"win_line":        string(winLine),
		"move_seq":        session.MoveSeq,
		"stake":           session.Stake,
		"payout_state":    session.PayoutState,
		"payout_ref":      session.PayoutRef,
		"payout_reason":   session.PayoutReason,
	}, nil
}

// sessionFromFields tolerates a subset of fields: anything absent keeps its
// zero value, with the payout state defaulting to none.
func sessionFromFields(fields map[string]string) (*entity.Session, error) {
	session := &entity.Session{
		ID:             fields["id"],
		HostIdentity:   fields["host_identity"],
		JoinerIdentity: fields["joiner_identity"],
		Turn:           fields["turn"],
		Status:         fields["status"],
		Winner:         fields["winner"],
		PayoutState:    fields["payout_state"],
		PayoutRef:      fields["payout_ref"],
		PayoutReason:   fields["payout_reason"],
	}

	if session.PayoutState == "" {
		session.PayoutState = entity.PayoutNone
	}

	if raw, ok := fields["board"]; ok && raw != "" {
		if err := json.Unmarshal([]byte(raw), &session.Board); err != nil {
			return nil, fmt.Errorf("failed to unmarshal board: %w", err)
		}
	}

	if raw, ok := fields["win_line"]; ok && raw != "" && raw != "null" {
		if err := json.Unmarshal([]byte(raw), &session.WinLine); err != nil {
			return nil, fmt.Errorf("failed to unmarshal win line: %w", err)
		}
	}

	if raw, ok := fields["move_seq"]; ok && raw != "" {
		seq, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("failed to parse move_seq: %w", err)
		}
		session.MoveSeq = seq
	}

	if raw, ok := fields["stake"]; ok && raw != "" {
		stake, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("failed to parse stake: %w", err)
		}
		session.Stake = stake
	}

	return session, nil
}
