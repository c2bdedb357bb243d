package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/prsweeeet/tictactoe-pvp/internal/entity"
)

// MatchRecord is one finished game as remembered locally: the result plus
// whether the stake actually moved. The shared store forgets; this doesn't.
type MatchRecord struct {
	SessionID      string
	HostIdentity   string
	JoinerIdentity string
	Status         string
	Winner         string
	Stake          float64
	PayoutState    string
	PayoutRef      string
	FinishedAt     time.Time
}

type ArchiveRepository interface {
	Init(ctx context.Context) error
	RecordResult(ctx context.Context, session *entity.Session) error
	ListResults(ctx context.Context) ([]MatchRecord, error)
}

type dbArchive struct {
	conn *sql.DB
}

func NewArchiveRepository(conn *sql.DB) ArchiveRepository {
	return &dbArchive{
		conn: conn,
	}
}

func (that *dbArchive) Init(ctx context.Context) error {
	query := `CREATE TABLE IF NOT EXISTS matches (
		session_id TEXT PRIMARY KEY,
		host_identity TEXT NOT NULL,
		joiner_identity TEXT NOT NULL,
		status TEXT NOT NULL,
		winner TEXT NOT NULL,
		stake REAL NOT NULL,
		payout_state TEXT NOT NULL,
		payout_ref TEXT NOT NULL,
		finished_at TIMESTAMP NOT NULL
	)`

	if _, err := that.conn.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("can't create matches table: %w", err)
	}

	return nil
}

// RecordResult upserts, so re-recording the same session after a payout
// retry just refreshes the payout columns.
func (that *dbArchive) RecordResult(ctx context.Context, session *entity.Session) error {
	query := `INSERT INTO matches
		(session_id, host_identity, joiner_identity, status, winner, stake, payout_state, payout_ref, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			status = excluded.status,
			winner = excluded.winner,
			payout_state = excluded.payout_state,
			payout_ref = excluded.payout_ref,
			finished_at = excluded.finished_at`

	_, err := that.conn.ExecContext(ctx, query,
		session.ID,
		session.HostIdentity,
		session.JoinerIdentity,
		session.Status,
		session.Winner,
		session.Stake,
		session.PayoutState,
		session.PayoutRef,
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("can't record match result: %w", err)
	}

	return nil
}

func (that *dbArchive) ListResults(ctx context.Context) ([]MatchRecord, error) {
	query := `SELECT session_id, host_identity, joiner_identity, status, winner, stake, payout_state, payout_ref, finished_at
		FROM matches ORDER BY finished_at DESC`

	rows, err := that.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("can't list match results: %w", err)
	}
	defer rows.Close()

	var records []MatchRecord
	for rows.Next() {
		var record MatchRecord
		if err = rows.Scan(
			&record.SessionID,
			&record.HostIdentity,
			&record.JoinerIdentity,
			&record.Status,
			&record.Winner,
			&record.Stake,
			&record.PayoutState,
			&record.PayoutRef,
			&record.FinishedAt,
		); err != nil {
			return nil, fmt.Errorf("can't scan match record: %w", err)
		}
		records = append(records, record)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("can't iterate match records: %w", err)
	}

	return records, nil
}
