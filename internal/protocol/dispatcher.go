// Package protocol parses client command lines, validates them against
// session and room state, applies registry/room operations, and produces
// reply lines. Dispatch and Disconnect run only on the server's event-loop
// goroutine; all replies and broadcasts for one line are enqueued before the
// next line from any connection is processed.
package protocol

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sjlee-dev/tictacd/internal/history"
	"github.com/sjlee-dev/tictacd/internal/obslog"
	"github.com/sjlee-dev/tictacd/internal/registry"
	"github.com/sjlee-dev/tictacd/internal/room"
	"github.com/sjlee-dev/tictacd/internal/session"
	"github.com/sjlee-dev/tictacd/internal/userstore"
)

// Dispatcher owns the registry and, through it, every room. It is the only
// code that mutates them.
type Dispatcher struct {
	users    userstore.Store
	rooms    *registry.Registry
	recorder *history.Recorder // optional
}

func New(users userstore.Store, rooms *registry.Registry, recorder *history.Recorder) *Dispatcher {
	return &Dispatcher{users: users, rooms: rooms, recorder: recorder}
}

// Dispatch handles one complete line. The return value tells the multiplexer
// to close the connection once queued replies have flushed.
func (d *Dispatcher) Dispatch(ctx context.Context, sess *session.Session, line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}
	cmd, args := strings.ToUpper(fields[0]), fields[1:]

	switch cmd {
	case "REGISTER":
		d.handleRegister(ctx, sess, args)
	case "LOGIN":
		d.handleLogin(ctx, sess, args)
	case "ROOMLIST":
		if d.requireAuth(sess) {
			d.handleRoomlist(sess, args)
		}
	case "CREATE":
		if d.requireAuth(sess) {
			d.handleCreate(sess, args)
		}
	case "JOIN":
		if d.requireAuth(sess) {
			d.handleJoin(sess, args)
		}
	case "PLACE":
		if d.requireAuth(sess) {
			d.handlePlace(sess, args)
		}
	case "FORFEIT":
		if d.requireAuth(sess) {
			d.handleForfeit(sess)
		}
	case "QUIT":
		if sess.InRoom() {
			d.leaveRoom(sess)
		}
		d.send(sess, "BYE")
		return true
	default:
		d.sendErr(sess, CodeUnknownCommand)
	}
	return false
}

// Disconnect detaches a session whose transport died: a mid-match player
// forfeits, a waiting creator abandons the room, a viewer is dropped
// silently. Idempotent.
func (d *Dispatcher) Disconnect(sess *session.Session) {
	if sess.InRoom() {
		d.leaveRoom(sess)
	}
	obslog.L().Info("session_closed",
		zap.String("session_id", sess.ID),
		zap.String("username", sess.Username),
	)
}

func (d *Dispatcher) handleRegister(ctx context.Context, sess *session.Session, args []string) {
	if sess.Authenticated() {
		d.sendErr(sess, CodeWrongPhase)
		return
	}
	if len(args) != 2 {
		d.sendErr(sess, CodeBadCommand)
		return
	}
	if err := d.users.Register(ctx, args[0], args[1]); err != nil {
		d.sendErr(sess, errCode(err))
		return
	}
	obslog.L().Info("user_register", zap.String("username", args[0]))
	d.send(sess, "OK REGISTERED")
}

func (d *Dispatcher) handleLogin(ctx context.Context, sess *session.Session, args []string) {
	if sess.Authenticated() {
		d.sendErr(sess, CodeWrongPhase)
		return
	}
	if len(args) != 2 {
		d.sendErr(sess, CodeBadCommand)
		return
	}
	if err := d.users.Authenticate(ctx, args[0], args[1]); err != nil {
		d.sendErr(sess, errCode(err))
		return
	}
	sess.Username = args[0]
	obslog.L().Info("user_login",
		zap.String("session_id", sess.ID),
		zap.String("username", sess.Username),
	)
	d.send(sess, "OK LOGGED_IN")
}

func (d *Dispatcher) handleRoomlist(sess *session.Session, args []string) {
	filter := registry.ListAll
	switch {
	case len(args) == 0:
	case len(args) == 1 && strings.EqualFold(args[0], "PLAYER"):
		filter = registry.ListWaitingOnly
	case len(args) == 1 && strings.EqualFold(args[0], "VIEWER"):
	default:
		d.sendErr(sess, CodeBadCommand)
		return
	}
	entries := d.rooms.List(filter)
	parts := make([]string, 0, len(entries))
	for _, e := range entries {
		parts = append(parts, fmt.Sprintf("%s,%s,%d,%d", e.Name, e.Phase, e.Players, e.Viewers))
	}
	reply := "ROOM_LIST"
	if len(parts) > 0 {
		reply += " " + strings.Join(parts, ";")
	}
	d.send(sess, reply)
}

func (d *Dispatcher) handleCreate(sess *session.Session, args []string) {
	if sess.InRoom() {
		d.sendErr(sess, CodeAlreadyInRoom)
		return
	}
	if len(args) == 0 {
		d.sendErr(sess, CodeBadCommand)
		return
	}
	name := strings.Join(args, " ")
	r, err := d.rooms.Create(name, sess)
	if err != nil {
		d.sendErr(sess, errCode(err))
		return
	}
	obslog.L().Info("room_create",
		zap.String("room", r.Name),
		zap.String("creator", sess.Username),
	)
	d.send(sess, "ROOM_CREATED "+r.Name)
}

func (d *Dispatcher) handleJoin(sess *session.Session, args []string) {
	if sess.InRoom() {
		d.sendErr(sess, CodeAlreadyInRoom)
		return
	}
	if len(args) < 2 {
		d.sendErr(sess, CodeBadCommand)
		return
	}
	role := strings.ToUpper(args[len(args)-1])
	name := strings.Join(args[:len(args)-1], " ")
	r, err := d.rooms.Get(name)
	if err != nil {
		d.sendErr(sess, errCode(err))
		return
	}

	switch role {
	case "PLAYER":
		slot, err := r.JoinPlayer(sess)
		if err != nil {
			d.sendErr(sess, errCode(err))
			return
		}
		d.send(sess, fmt.Sprintf("JOINED %s AS PLAYER SLOT %d", r.Name, slot))
		if r.Phase() == room.PhaseInProgress {
			obslog.L().Info("match_start",
				zap.String("room", r.Name),
				zap.String("player_x", r.PlayerName(0)),
				zap.String("player_o", r.PlayerName(1)),
			)
			d.broadcast(r,
				fmt.Sprintf("BEGIN %s %s %s", r.Name, r.PlayerName(0), r.PlayerName(1)),
				fmt.Sprintf("TURN %s %d", r.Name, r.Turn()),
			)
		}
	case "VIEWER":
		if err := r.JoinViewer(sess); err != nil {
			d.sendErr(sess, errCode(err))
			return
		}
		d.send(sess, fmt.Sprintf("JOINED %s AS VIEWER SLOT -", r.Name))
		d.send(sess, fmt.Sprintf("BOARD %s %s", r.Name, r.Snapshot()))
		if r.Phase() == room.PhaseInProgress {
			d.send(sess, fmt.Sprintf("TURN %s %d", r.Name, r.Turn()))
		}
	default:
		d.sendErr(sess, CodeBadCommand)
	}
}

func (d *Dispatcher) handlePlace(sess *session.Session, args []string) {
	r, ok := d.currentRoom(sess)
	if !ok {
		return
	}
	if len(args) != 2 {
		d.sendErr(sess, CodeBadCommand)
		return
	}
	row, err1 := strconv.Atoi(args[0])
	col, err2 := strconv.Atoi(args[1])
	if err1 != nil || err2 != nil {
		d.sendErr(sess, CodeBadCommand)
		return
	}
	res, err := r.SubmitMove(sess, row, col)
	if err != nil {
		d.sendErr(sess, errCode(err))
		return
	}

	d.broadcast(r, fmt.Sprintf("MOVE %s %d %d %d", r.Name, res.Slot, res.Row, res.Col))
	if !res.Finished {
		d.broadcast(r, fmt.Sprintf("TURN %s %d", r.Name, res.NextTurn))
		return
	}
	if res.Outcome == room.OutcomeWin {
		d.broadcast(r, fmt.Sprintf("RESULT %s WIN %d", r.Name, res.Winner))
	} else {
		d.broadcast(r, fmt.Sprintf("RESULT %s DRAW", r.Name))
	}
	obslog.L().Info("match_end",
		zap.String("room", r.Name),
		zap.String("outcome", strings.ToLower(res.Outcome.String())),
		zap.Int("winner_slot", res.Winner),
	)
	d.finishRoom(r)
}

func (d *Dispatcher) handleForfeit(sess *session.Session) {
	r, ok := d.currentRoom(sess)
	if !ok {
		return
	}
	winner, err := r.Forfeit(sess)
	if err != nil {
		d.sendErr(sess, errCode(err))
		return
	}
	obslog.L().Info("match_forfeit",
		zap.String("room", r.Name),
		zap.String("forfeiter", sess.Username),
		zap.Int("winner_slot", winner),
	)
	d.broadcast(r, fmt.Sprintf("RESULT %s FORFEIT %d", r.Name, winner))
	d.finishRoom(r)
}

// leaveRoom applies the room-side consequences of a QUIT or disconnect.
func (d *Dispatcher) leaveRoom(sess *session.Session) {
	r, err := d.rooms.Get(sess.Room)
	if err != nil {
		sess.Detach()
		return
	}
	kind, winner := r.Leave(sess)
	switch kind {
	case room.LeaveViewerRemoved:
		// No broadcast for a departing viewer.
	case room.LeaveRoomAbandoned:
		obslog.L().Info("room_abandoned", zap.String("room", r.Name))
		d.broadcast(r, "ROOM_CLOSED "+r.Name)
		r.DetachAll()
		d.rooms.Remove(r.Name)
	case room.LeaveForfeit:
		obslog.L().Info("match_forfeit",
			zap.String("room", r.Name),
			zap.String("forfeiter", sess.Username),
			zap.Int("winner_slot", winner),
		)
		d.broadcast(r, fmt.Sprintf("RESULT %s FORFEIT %d", r.Name, winner))
		d.finishRoom(r)
	}
}

// finishRoom records the outcome, detaches every participant, and removes
// the room from the registry. Only called once the room is Finished and all
// result lines are enqueued.
func (d *Dispatcher) finishRoom(r *room.Room) {
	if d.recorder != nil {
		d.recorder.Record(&history.MatchResult{
			MatchID:    uuid.NewString(),
			RoomName:   r.Name,
			PlayerX:    r.PlayerName(0),
			PlayerO:    r.PlayerName(1),
			Outcome:    strings.ToLower(r.Outcome().String()),
			WinnerSlot: r.Winner(),
			Moves:      r.Moves(),
			FinalBoard: r.Snapshot(),
			StartedAt:  r.StartedAt(),
			EndedAt:    time.Now(),
		})
	}
	r.DetachAll()
	d.rooms.Remove(r.Name)
}

// currentRoom resolves the session's room for in-room commands; outside a
// room those commands are a phase violation.
func (d *Dispatcher) currentRoom(sess *session.Session) (*room.Room, bool) {
	if !sess.InRoom() {
		d.sendErr(sess, CodeWrongPhase)
		return nil, false
	}
	r, err := d.rooms.Get(sess.Room)
	if err != nil {
		sess.Detach()
		d.sendErr(sess, CodeWrongPhase)
		return nil, false
	}
	return r, true
}

func (d *Dispatcher) requireAuth(sess *session.Session) bool {
	if !sess.Authenticated() {
		d.sendErr(sess, CodeWrongPhase)
		return false
	}
	return true
}

func (d *Dispatcher) send(s *session.Session, line string) {
	if !s.Enqueue(line) {
		obslog.L().Warn("session_slow_consumer", zap.String("session_id", s.ID))
		s.CloseOut()
	}
}

func (d *Dispatcher) sendErr(s *session.Session, code string) {
	d.send(s, "ERR "+code)
}

// broadcast enqueues lines to every current participant within the same
// dispatch step, so no other command can interleave with a half-delivered
// broadcast.
func (d *Dispatcher) broadcast(r *room.Room, lines ...string) {
	for _, p := range r.Participants() {
		for _, line := range lines {
			d.send(p, line)
		}
	}
}
