// Package session models one client connection as seen by the dispatch
// layer: its identity, authentication state, room membership, and the
// outbound line queue drained by the connection's write pump.
package session

import "github.com/google/uuid"

// Role is the session's position within its current room.
type Role uint8

const (
	RoleNone Role = iota
	RolePlayer
	RoleViewer
)

func (r Role) String() string {
	switch r {
	case RolePlayer:
		return "PLAYER"
	case RoleViewer:
		return "VIEWER"
	default:
		return "NONE"
	}
}

// outboundDepth bounds the per-session reply queue. A client that stops
// reading long enough to fill it is force-disconnected instead of stalling
// the dispatch loop.
const outboundDepth = 64

// Session is created on accept and destroyed on disconnect. All fields are
// owned by the dispatch goroutine; only the write pump reads from Out.
type Session struct {
	ID       string
	Username string // empty until LOGIN succeeds
	Room     string // room-name key, empty when not in a room
	Role     Role

	Out    chan string
	closed bool
}

// New returns a fresh unauthenticated session.
func New() *Session {
	return &Session{
		ID:  uuid.NewString(),
		Out: make(chan string, outboundDepth),
	}
}

// Authenticated reports whether LOGIN has completed.
func (s *Session) Authenticated() bool { return s.Username != "" }

// InRoom reports whether the session currently holds a room role.
func (s *Session) InRoom() bool { return s.Room != "" }

// Enqueue appends one reply line to the outbound queue. It returns false
// when the queue is full or already closed; the caller then drops the
// connection.
func (s *Session) Enqueue(line string) bool {
	if s.closed {
		return false
	}
	select {
	case s.Out <- line:
		return true
	default:
		return false
	}
}

// CloseOut seals the outbound queue after any already-enqueued lines; the
// write pump flushes the remainder and closes the socket. Safe to call more
// than once from the dispatch goroutine.
func (s *Session) CloseOut() {
	if s.closed {
		return
	}
	s.closed = true
	close(s.Out)
}

// Detach clears room membership after a leave, forfeit, or room teardown.
func (s *Session) Detach() {
	s.Room = ""
	s.Role = RoleNone
}
