// Package history persists finished match results to Postgres. Writes go
// through a single-worker queue so the dispatch loop never blocks on the
// database; a full queue drops the record with a log line rather than stall
// live games.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/sjlee-dev/tictacd/internal/obslog"
)

// MatchResult is the final state of one match.
type MatchResult struct {
	MatchID    string
	RoomName   string
	PlayerX    string
	PlayerO    string
	Outcome    string // win | draw | forfeit
	WinnerSlot int    // -1 on draw
	Moves      int
	FinalBoard string
	StartedAt  time.Time
	EndedAt    time.Time
}

const queueDepth = 128

type Recorder struct {
	db    *sql.DB
	queue chan *MatchResult
	done  chan struct{}
}

// NewRecorder opens the database, verifies connectivity, and starts the
// write worker.
func NewRecorder(databaseURL string) (*Recorder, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("database URL is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(30 * time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	r := &Recorder{
		db:    db,
		queue: make(chan *MatchResult, queueDepth),
		done:  make(chan struct{}),
	}
	go r.run()
	return r, nil
}

// Record enqueues a finished match for persistence. Never blocks.
func (r *Recorder) Record(res *MatchResult) {
	if r == nil || res == nil {
		return
	}
	select {
	case r.queue <- res:
	default:
		obslog.L().Warn("history_queue_full", zap.String("match_id", res.MatchID))
	}
}

// Close stops accepting records, drains the queue, and closes the database.
func (r *Recorder) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	close(r.queue)
	<-r.done
	return r.db.Close()
}

func (r *Recorder) run() {
	defer close(r.done)
	for res := range r.queue {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := r.saveResult(ctx, res); err != nil {
			obslog.L().Error("history_persist_error",
				zap.String("match_id", res.MatchID),
				zap.String("room", res.RoomName),
				zap.Error(err),
			)
		} else {
			obslog.L().Info("history_persist",
				zap.String("match_id", res.MatchID),
				zap.String("room", res.RoomName),
				zap.String("outcome", res.Outcome),
			)
		}
		cancel()
	}
}

// saveResult upserts one row keyed by match_id.
func (r *Recorder) saveResult(ctx context.Context, res *MatchResult) error {
	winner := ""
	switch res.WinnerSlot {
	case 0:
		winner = res.PlayerX
	case 1:
		winner = res.PlayerO
	}
	duration := res.EndedAt.Sub(res.StartedAt).Milliseconds()
	if duration < 0 {
		duration = 0
	}

	const q = `INSERT INTO ttt_matches (
	    match_id, room_name, player_x, player_o,
	    outcome, winner, moves, final_board,
	    started_at, ended_at, duration_ms
	  ) VALUES (
	    $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11
	  ) ON CONFLICT (match_id) DO UPDATE SET
	    room_name=EXCLUDED.room_name,
	    player_x=EXCLUDED.player_x,
	    player_o=EXCLUDED.player_o,
	    outcome=EXCLUDED.outcome,
	    winner=EXCLUDED.winner,
	    moves=EXCLUDED.moves,
	    final_board=EXCLUDED.final_board,
	    started_at=EXCLUDED.started_at,
	    ended_at=EXCLUDED.ended_at,
	    duration_ms=EXCLUDED.duration_ms`

	_, err := r.db.ExecContext(ctx, q,
		res.MatchID, res.RoomName, res.PlayerX, res.PlayerO,
		strings.TrimSpace(res.Outcome), winner, res.Moves, res.FinalBoard,
		res.StartedAt, res.EndedAt, duration,
	)
	return err
}
