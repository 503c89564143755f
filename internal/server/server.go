// Package server is the connection multiplexer: it accepts TCP connections,
// frames newline-terminated commands, and feeds them through a single
// event-loop goroutine that owns every session, the registry, and all rooms.
// Per-connection read and write pumps only move bytes; they never touch
// shared state. That single control flow is what stands in for locks: one
// command's full effect, broadcasts included, is applied before the next
// line from any connection is looked at.
package server

import (
	"bufio"
	"context"
	"errors"
	"net"
	"time"

	"go.uber.org/zap"

	"github.com/sjlee-dev/tictacd/internal/config"
	"github.com/sjlee-dev/tictacd/internal/obslog"
	"github.com/sjlee-dev/tictacd/internal/protocol"
	"github.com/sjlee-dev/tictacd/internal/session"
)

const writeTimeout = 10 * time.Second

type eventKind uint8

const (
	evAccept eventKind = iota
	evLine
	evTooLong
	evClosed
)

type event struct {
	kind eventKind
	conn net.Conn // evAccept only
	sess *session.Session
	line string // evLine only
}

// Server runs one listener and one dispatch loop.
type Server struct {
	cfg        *config.ServerConfig
	dispatcher *protocol.Dispatcher
	ln         net.Listener
	events     chan event
}

func New(cfg *config.ServerConfig, d *protocol.Dispatcher) *Server {
	return &Server{
		cfg:        cfg,
		dispatcher: d,
		events:     make(chan event, 256),
	}
}

// Listen binds the configured address. Split from Run so callers can learn
// the bound address (tests listen on port 0) before serving.
func (s *Server) Listen() error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return err
	}
	s.ln = ln
	obslog.L().Info("server_listen", zap.String("addr", ln.Addr().String()))
	return nil
}

// Addr returns the bound listener address; valid after Listen.
func (s *Server) Addr() net.Addr { return s.ln.Addr() }

// Run serves until ctx is cancelled. It owns the sessions table and is the
// only goroutine that calls into the dispatcher.
func (s *Server) Run(ctx context.Context) error {
	if s.ln == nil {
		if err := s.Listen(); err != nil {
			return err
		}
	}
	go s.acceptLoop()

	conns := make(map[*session.Session]net.Conn)
	for {
		select {
		case <-ctx.Done():
			_ = s.ln.Close()
			for sess, conn := range conns {
				s.dispatcher.Disconnect(sess)
				sess.CloseOut()
				_ = conn.Close()
			}
			obslog.L().Info("server_shutdown", zap.Int("open_sessions", len(conns)))
			return nil

		case ev := <-s.events:
			switch ev.kind {
			case evAccept:
				sess := session.New()
				conns[sess] = ev.conn
				obslog.L().Info("session_accept",
					zap.String("session_id", sess.ID),
					zap.String("remote", ev.conn.RemoteAddr().String()),
				)
				go s.readPump(ev.conn, sess)
				go s.writePump(ev.conn, sess)

			case evLine:
				if _, ok := conns[ev.sess]; !ok {
					continue
				}
				if closeReq := s.dispatcher.Dispatch(ctx, ev.sess, ev.line); closeReq {
					ev.sess.CloseOut()
				}

			case evTooLong:
				if _, ok := conns[ev.sess]; !ok {
					continue
				}
				obslog.L().Warn("session_line_too_long", zap.String("session_id", ev.sess.ID))
				ev.sess.Enqueue("ERR " + protocol.CodeLineTooLong)
				ev.sess.CloseOut()
				s.dispatcher.Disconnect(ev.sess)
				delete(conns, ev.sess)

			case evClosed:
				conn, ok := conns[ev.sess]
				if !ok {
					continue
				}
				s.dispatcher.Disconnect(ev.sess)
				ev.sess.CloseOut()
				_ = conn.Close()
				delete(conns, ev.sess)
			}
		}
	}
}

func (s *Server) acceptLoop() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			obslog.L().Warn("accept_error", zap.Error(err))
			continue
		}
		s.events <- event{kind: evAccept, conn: conn}
	}
}

// readPump reassembles newline-terminated commands and forwards them to the
// dispatch loop. Any read failure, including an over-length line, ends the
// session; a partially read line is simply discarded.
func (s *Server) readPump(conn net.Conn, sess *session.Session) {
	sc := bufio.NewScanner(conn)
	sc.Buffer(make([]byte, 0, 64), s.cfg.MaxLineBytes)
	for sc.Scan() {
		s.events <- event{kind: evLine, sess: sess, line: sc.Text()}
	}
	if errors.Is(sc.Err(), bufio.ErrTooLong) {
		s.events <- event{kind: evTooLong, sess: sess}
		return
	}
	s.events <- event{kind: evClosed, sess: sess}
}

// writePump drains the session's outbound queue onto the socket and closes
// the connection once the queue is sealed or a write fails.
func (s *Server) writePump(conn net.Conn, sess *session.Session) {
	defer conn.Close()
	for line := range sess.Out {
		_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if _, err := conn.Write([]byte(line + "\n")); err != nil {
			return
		}
	}
}
