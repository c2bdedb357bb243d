package entity

const (
	StatusAwaitingJoiner = "awaiting_joiner"
	StatusReady          = "ready"
	StatusInProgress     = "in_progress"
	StatusWon            = "won"
	StatusDraw           = "draw"

	PlayerX = "X"
	PlayerO = "O"

	EmptyCell = ""
)

const (
	PayoutNone    = "none"
	PayoutPending = "pending"
	PayoutSent    = "sent"
	PayoutFailed  = "failed"
)

// Session is the shared authoritative record of one game instance. Both
// clients hold a provisional local copy that is reconciled against the
// store's broadcast; MoveSeq is the logical clock that orders and
// de-duplicates the two writers' updates.
type Session struct {
	ID             string    `json:"id"`
	HostIdentity   string    `json:"host_identity"`
	JoinerIdentity string    `json:"joiner_identity,omitempty"`
	Board          [9]string `json:"board"`
	Turn           string    `json:"turn,omitempty"`
	Status         string    `json:"status"`
	Winner         string    `json:"winner,omitempty"`
	WinLine        []int     `json:"win_line,omitempty"`
	MoveSeq        int64     `json:"move_seq"`
	Stake          float64   `json:"stake"`
	PayoutState    string    `json:"payout_state"`
	PayoutRef      string    `json:"payout_ref,omitempty"`
	PayoutReason   string    `json:"payout_reason,omitempty"`
}

func NewSession(id, hostIdentity string, stake float64) *Session {
	return &Session{
		ID:           id,
		HostIdentity: hostIdentity,
		Turn:         PlayerX,
		Status:       StatusAwaitingJoiner,
		Stake:        stake,
		PayoutState:  PayoutNone,
	}
}

func (that *Session) IsAwaitingJoiner() bool {
	return that.Status == StatusAwaitingJoiner
}

func (that *Session) IsReady() bool {
	return that.Status == StatusReady
}

func (that *Session) IsInProgress() bool {
	return that.Status == StatusInProgress
}

// IsTerminal reports whether the session reached a final result. Terminal
// status is a one-way transition; no board mutation is valid after it.
func (that *Session) IsTerminal() bool {
	return that.Status == StatusWon || that.Status == StatusDraw
}

// MarkOf maps a wallet identity to its mark. The host always plays X, the
// joiner always plays O. Returns false for any other identity.
func (that *Session) MarkOf(identity string) (string, bool) {
	switch {
	case identity != "" && identity == that.HostIdentity:
		return PlayerX, true
	case identity != "" && identity == that.JoinerIdentity:
		return PlayerO, true
	default:
		return "", false
	}
}

// IdentityOf is the inverse of MarkOf.
func (that *Session) IdentityOf(mark string) string {
	switch mark {
	case PlayerX:
		return that.HostIdentity
	case PlayerO:
		return that.JoinerIdentity
	default:
		return ""
	}
}

// WinnerIdentity returns the winning wallet address, or "" when the session
// is not won.
func (that *Session) WinnerIdentity() string {
	if that.Status != StatusWon {
		return ""
	}
	return that.IdentityOf(that.Winner)
}

// LoserIdentity returns the wallet address that owes the stake, or "" when
// the session is not won.
func (that *Session) LoserIdentity() string {
	if that.Status != StatusWon {
		return ""
	}
	if that.Winner == PlayerX {
		return that.JoinerIdentity
	}
	return that.HostIdentity
}

func (that *Session) Clone() *Session {
	clone := *that
	if that.WinLine != nil {
		clone.WinLine = append([]int(nil), that.WinLine...)
	}
	return &clone
}

// StatusRank orders the session lifecycle so that reconciliation can tell a
// forward transition from a stale one when two updates share a MoveSeq.
func StatusRank(status string) int {
	switch status {
	case StatusAwaitingJoiner:
		return 0
	case StatusReady:
		return 1
	case StatusInProgress:
		return 2
	case StatusWon, StatusDraw:
		return 3
	default:
		return -1
	}
}

// PayoutRank orders the payout lifecycle; payout state only moves forward.
// A sent payout outranks a failed one so the receipt of a successful retry
// wins over the failure it recovered from.
func PayoutRank(state string) int {
	switch state {
	case PayoutNone:
		return 0
	case PayoutPending:
		return 1
	case PayoutFailed:
		return 2
	case PayoutSent:
		return 3
	default:
		return -1
	}
}
