package repository

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prsweeeet/tictactoe-pvp/internal/entity"
	"github.com/prsweeeet/tictactoe-pvp/internal/repository/storage/sqlite"
)

func newArchive(t *testing.T) (context.Context, ArchiveRepository) {
	t.Helper()

	storage, err := sqlite.New(filepath.Join(t.TempDir(), "matches.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, storage.Close())
	})

	ctx := context.Background()

	archive := NewArchiveRepository(storage.Connection)
	require.NoError(t, archive.Init(ctx))

	return ctx, archive
}

func finishedSession() *entity.Session {
	session := entity.NewSession("123", "host-wallet", 1.5)
	session.JoinerIdentity = "joiner-wallet"
	session.Status = entity.StatusWon
	session.Winner = entity.PlayerX
	session.MoveSeq = 5
	session.PayoutState = entity.PayoutFailed
	session.PayoutReason = "insufficient_funds"
	return session
}

func TestArchiveRepository_RecordAndList(t *testing.T) {
	ctx, archive := newArchive(t)

	// Given: a finished session
	session := finishedSession()

	// When: it is recorded
	require.NoError(t, archive.RecordResult(ctx, session))

	// Then: it shows up in the local history
	records, err := archive.ListResults(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "123", records[0].SessionID)
	assert.Equal(t, "host-wallet", records[0].HostIdentity)
	assert.Equal(t, entity.StatusWon, records[0].Status)
	assert.Equal(t, entity.PlayerX, records[0].Winner)
	assert.Equal(t, 1.5, records[0].Stake)
	assert.Equal(t, entity.PayoutFailed, records[0].PayoutState)
}

func TestArchiveRepository_RecordResultUpserts(t *testing.T) {
	ctx, archive := newArchive(t)

	// Given: a recorded failed payout
	session := finishedSession()
	require.NoError(t, archive.RecordResult(ctx, session))

	// When: the payout is retried successfully and recorded again
	session.PayoutState = entity.PayoutSent
	session.PayoutRef = "tx-retry"
	require.NoError(t, archive.RecordResult(ctx, session))

	// Then: the history holds one row with the settled payout
	records, err := archive.ListResults(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, entity.PayoutSent, records[0].PayoutState)
	assert.Equal(t, "tx-retry", records[0].PayoutRef)
}
