package apperror

import "errors"

// Move errors are handled locally: the move is rejected, state is unchanged
// and the player is notified. They are never fatal for the session.
var (
	ErrGameNotInProgress = errors.New("game is not in progress")
	ErrNotYourTurn       = errors.New("it's not your turn")
	ErrCellOccupied      = errors.New("cell is already occupied")
	ErrInvalidCell       = errors.New("invalid cell index")
	ErrWrongIdentity     = errors.New("identity does not belong to this session")
)

// Sync errors trigger a re-fetch of authoritative state from the store.
var (
	ErrPublishRejected = errors.New("publish was rejected or never acknowledged")
	ErrStaleUpdate     = errors.New("update is older than local state")
	ErrMoveInFlight    = errors.New("previous move is still being published")
)

// Session lifecycle errors.
var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionFull     = errors.New("session already has two players")
	ErrAlreadyJoined   = errors.New("identity is already part of this session")
	ErrStakeTooSmall   = errors.New("stake is below the allowed minimum")
	ErrSessionNotReady = errors.New("session is not ready to start")
)

// Payout lifecycle errors.
var (
	ErrPayoutAlreadyRan = errors.New("payout was already attempted")
	ErrPayoutNotFailed  = errors.New("payout is not in a failed state")
)
