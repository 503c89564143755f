// Package room holds the per-match state machine: two player slots, a viewer
// set, the board, and the turn marker. All methods run on the dispatch
// goroutine; Room needs no locking.
package room

import (
	"errors"
	"time"

	"github.com/sjlee-dev/tictacd/internal/board"
	"github.com/sjlee-dev/tictacd/internal/session"
)

var (
	ErrRoomFull      = errors.New("room already has two players")
	ErrGameFinished  = errors.New("game already finished")
	ErrNotAPlayer    = errors.New("not a player in this room")
	ErrNotYourTurn   = errors.New("not this player's turn")
	ErrNotInProgress = errors.New("game not in progress")
	ErrInvalidCell   = errors.New("invalid cell")
)

// Phase is the room lifecycle state.
type Phase uint8

const (
	PhaseWaiting Phase = iota
	PhaseInProgress
	PhaseFinished
)

func (p Phase) String() string {
	switch p {
	case PhaseInProgress:
		return "IN_PROGRESS"
	case PhaseFinished:
		return "FINISHED"
	default:
		return "WAITING"
	}
}

// Outcome describes how a finished match ended.
type Outcome uint8

const (
	OutcomeNone Outcome = iota
	OutcomeWin
	OutcomeDraw
	OutcomeForfeit
)

func (o Outcome) String() string {
	switch o {
	case OutcomeWin:
		return "WIN"
	case OutcomeDraw:
		return "DRAW"
	case OutcomeForfeit:
		return "FORFEIT"
	default:
		return "NONE"
	}
}

// MoveResult reports the effect of an accepted move.
type MoveResult struct {
	Slot     int
	Row, Col int
	Finished bool
	Outcome  Outcome // OutcomeWin or OutcomeDraw when Finished
	Winner   int     // winning slot, -1 for draw
	NextTurn int     // valid only when !Finished
}

// LeaveKind tells the dispatcher what a Leave amounted to.
type LeaveKind uint8

const (
	LeaveViewerRemoved LeaveKind = iota
	LeaveRoomAbandoned           // a player left before the match started
	LeaveForfeit                 // a player left mid-match
)

// Room owns its board and turn marker exclusively. Sessions keep only the
// room name as a back-reference; the room keeps the session handles it needs
// for broadcast fan-out.
type Room struct {
	Name string

	phase   Phase
	slots   [2]*session.Session
	viewers map[*session.Session]struct{}
	board   board.Board
	turn    int
	outcome Outcome
	winner  int

	createdAt time.Time
	startedAt time.Time
}

// New creates a room in WaitingForPlayer with the creator seated at slot 0.
func New(name string, creator *session.Session) *Room {
	r := &Room{
		Name:      name,
		phase:     PhaseWaiting,
		viewers:   make(map[*session.Session]struct{}),
		winner:    -1,
		createdAt: time.Now(),
	}
	r.slots[0] = creator
	creator.Room = name
	creator.Role = session.RolePlayer
	return r
}

func (r *Room) Phase() Phase         { return r.phase }
func (r *Room) Turn() int            { return r.turn }
func (r *Room) Outcome() Outcome     { return r.outcome }
func (r *Room) Winner() int          { return r.winner }
func (r *Room) CreatedAt() time.Time { return r.createdAt }
func (r *Room) StartedAt() time.Time { return r.startedAt }
func (r *Room) Snapshot() string     { return r.board.Encode() }
func (r *Room) Moves() int           { return r.board.Marks() }

// PlayerName returns the username seated at slot, or "" when vacant.
func (r *Room) PlayerName(slot int) string {
	if slot < 0 || slot > 1 || r.slots[slot] == nil {
		return ""
	}
	return r.slots[slot].Username
}

func (r *Room) PlayerCount() int {
	n := 0
	for _, s := range r.slots {
		if s != nil {
			n++
		}
	}
	return n
}

func (r *Room) ViewerCount() int { return len(r.viewers) }

// Participants returns players then viewers, the broadcast target set.
func (r *Room) Participants() []*session.Session {
	out := make([]*session.Session, 0, 2+len(r.viewers))
	for _, s := range r.slots {
		if s != nil {
			out = append(out, s)
		}
	}
	for v := range r.viewers {
		out = append(out, v)
	}
	return out
}

func (r *Room) slotOf(s *session.Session) int {
	for i, p := range r.slots {
		if p == s {
			return i
		}
	}
	return -1
}

// JoinPlayer seats s in the vacant slot. Filling the second slot starts the
// match with slot 0 to move.
func (r *Room) JoinPlayer(s *session.Session) (int, error) {
	switch r.phase {
	case PhaseFinished:
		return -1, ErrGameFinished
	case PhaseInProgress:
		return -1, ErrRoomFull
	}
	slot := -1
	for i, p := range r.slots {
		if p == nil {
			slot = i
			break
		}
	}
	if slot < 0 {
		return -1, ErrRoomFull
	}
	r.slots[slot] = s
	s.Room = r.Name
	s.Role = session.RolePlayer
	if r.PlayerCount() == 2 {
		r.phase = PhaseInProgress
		r.turn = 0
		r.startedAt = time.Now()
	}
	return slot, nil
}

// JoinViewer attaches s with read-only visibility.
func (r *Room) JoinViewer(s *session.Session) error {
	if r.phase == PhaseFinished {
		return ErrGameFinished
	}
	r.viewers[s] = struct{}{}
	s.Room = r.Name
	s.Role = session.RoleViewer
	return nil
}

// SubmitMove validates phase, turn, and cell, then applies the move. A board
// verdict finishes the room; otherwise the turn passes to the other slot.
// Rejected moves never mutate state and are never queued.
func (r *Room) SubmitMove(s *session.Session, row, col int) (MoveResult, error) {
	if r.phase != PhaseInProgress {
		return MoveResult{}, ErrNotInProgress
	}
	slot := r.slotOf(s)
	if slot < 0 {
		return MoveResult{}, ErrNotAPlayer
	}
	if slot != r.turn {
		return MoveResult{}, ErrNotYourTurn
	}
	if err := r.board.Apply(slot, row, col); err != nil {
		return MoveResult{}, ErrInvalidCell
	}

	res := MoveResult{Slot: slot, Row: row, Col: col, Winner: -1}
	switch verdict, winner := r.board.Evaluate(); verdict {
	case board.Win:
		r.finish(OutcomeWin, winner)
		res.Finished, res.Outcome, res.Winner = true, OutcomeWin, winner
	case board.Draw:
		r.finish(OutcomeDraw, -1)
		res.Finished, res.Outcome = true, OutcomeDraw
	default:
		r.turn = 1 - slot
		res.NextTurn = r.turn
	}
	return res, nil
}

// Forfeit ends an in-progress match with the opponent as winner and returns
// the winning slot.
func (r *Room) Forfeit(s *session.Session) (int, error) {
	if r.phase != PhaseInProgress {
		return -1, ErrNotInProgress
	}
	slot := r.slotOf(s)
	if slot < 0 {
		return -1, ErrNotAPlayer
	}
	winner := 1 - slot
	r.finish(OutcomeForfeit, winner)
	return winner, nil
}

// Leave removes s from the room and reports what that implies: viewers are
// dropped silently, a waiting player abandons the room, an in-progress
// player forfeits (winner carries the opposing slot).
func (r *Room) Leave(s *session.Session) (LeaveKind, int) {
	if _, ok := r.viewers[s]; ok {
		delete(r.viewers, s)
		s.Detach()
		return LeaveViewerRemoved, -1
	}
	slot := r.slotOf(s)
	if slot < 0 {
		return LeaveViewerRemoved, -1
	}
	if r.phase == PhaseInProgress {
		winner, _ := r.Forfeit(s)
		return LeaveForfeit, winner
	}
	r.slots[slot] = nil
	s.Detach()
	return LeaveRoomAbandoned, -1
}

// DetachAll clears room membership from every remaining participant; called
// during teardown after outcome delivery.
func (r *Room) DetachAll() {
	for _, p := range r.Participants() {
		p.Detach()
	}
	r.slots[0], r.slots[1] = nil, nil
	r.viewers = make(map[*session.Session]struct{})
}

func (r *Room) finish(outcome Outcome, winner int) {
	r.phase = PhaseFinished
	r.outcome = outcome
	r.winner = winner
}
