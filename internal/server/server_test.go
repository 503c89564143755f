package server

import (
	"bufio"
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/sjlee-dev/tictacd/internal/config"
	"github.com/sjlee-dev/tictacd/internal/protocol"
	"github.com/sjlee-dev/tictacd/internal/registry"
	"github.com/sjlee-dev/tictacd/internal/userstore"
)

func startServer(t *testing.T) string {
	t.Helper()
	cfg := &config.ServerConfig{
		ListenAddr:   "127.0.0.1:0",
		MaxRooms:     16,
		MaxLineBytes: 256,
	}
	d := protocol.New(userstore.NewMemoryStore(), registry.New(cfg.MaxRooms), nil)
	srv := New(cfg, d)
	if err := srv.Listen(); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = srv.Run(ctx) }()
	return srv.Addr().String()
}

type client struct {
	t    *testing.T
	conn net.Conn
	sc   *bufio.Scanner
}

func dialClient(t *testing.T, addr string) *client {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return &client{t: t, conn: conn, sc: bufio.NewScanner(conn)}
}

func (c *client) send(line string) {
	c.t.Helper()
	if _, err := c.conn.Write([]byte(line + "\n")); err != nil {
		c.t.Fatalf("write %q: %v", line, err)
	}
}

func (c *client) readLine() string {
	c.t.Helper()
	_ = c.conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if !c.sc.Scan() {
		c.t.Fatalf("read line: %v", c.sc.Err())
	}
	return c.sc.Text()
}

func (c *client) expect(want string) {
	c.t.Helper()
	if got := c.readLine(); got != want {
		c.t.Fatalf("got %q, want %q", got, want)
	}
}

// expectClosed waits for the server to drop the connection.
func (c *client) expectClosed() {
	c.t.Helper()
	_ = c.conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if c.sc.Scan() {
		c.t.Fatalf("expected EOF, got %q", c.sc.Text())
	}
}

func login(t *testing.T, addr, name string) *client {
	t.Helper()
	c := dialClient(t, addr)
	c.send("REGISTER " + name + " pw")
	c.expect("OK REGISTERED")
	c.send("LOGIN " + name + " pw")
	c.expect("OK LOGGED_IN")
	return c
}

func TestFullMatchOverTCP(t *testing.T) {
	addr := startServer(t)
	a := login(t, addr, "alice")
	b := login(t, addr, "bob")

	a.send("CREATE room1")
	a.expect("ROOM_CREATED room1")

	b.send("ROOMLIST PLAYER")
	b.expect("ROOM_LIST room1,WAITING,1,0")

	b.send("JOIN room1 PLAYER")
	b.expect("JOINED room1 AS PLAYER SLOT 1")
	b.expect("BEGIN room1 alice bob")
	b.expect("TURN room1 0")
	a.expect("BEGIN room1 alice bob")
	a.expect("TURN room1 0")

	// Out-of-turn move is rejected at the wire.
	b.send("PLACE 1 1")
	b.expect("ERR NOT_YOUR_TURN")

	moves := []struct {
		c          *client
		place      string
		move, next string
	}{
		{a, "PLACE 0 0", "MOVE room1 0 0 0", "TURN room1 1"},
		{b, "PLACE 1 1", "MOVE room1 1 1 1", "TURN room1 0"},
		{a, "PLACE 0 1", "MOVE room1 0 0 1", "TURN room1 1"},
		{b, "PLACE 2 2", "MOVE room1 1 2 2", "TURN room1 0"},
	}
	for _, m := range moves {
		m.c.send(m.place)
		a.expect(m.move)
		a.expect(m.next)
		b.expect(m.move)
		b.expect(m.next)
	}

	a.send("PLACE 0 2")
	a.expect("MOVE room1 0 0 2")
	a.expect("RESULT room1 WIN 0")
	b.expect("MOVE room1 0 0 2")
	b.expect("RESULT room1 WIN 0")

	a.send("ROOMLIST")
	a.expect("ROOM_LIST")
}

func TestDisconnectForfeitsOverTCP(t *testing.T) {
	addr := startServer(t)
	a := login(t, addr, "alice")
	b := login(t, addr, "bob")

	a.send("CREATE room1")
	a.expect("ROOM_CREATED room1")
	b.send("JOIN room1 PLAYER")
	b.expect("JOINED room1 AS PLAYER SLOT 1")
	b.expect("BEGIN room1 alice bob")
	b.expect("TURN room1 0")

	_ = a.conn.Close()

	b.expect("RESULT room1 FORFEIT 1")
	b.send("ROOMLIST")
	b.expect("ROOM_LIST")
}

func TestQuitOverTCP(t *testing.T) {
	addr := startServer(t)
	a := login(t, addr, "alice")
	a.send("QUIT")
	a.expect("BYE")
	a.expectClosed()
}

func TestLineTooLong(t *testing.T) {
	addr := startServer(t)
	c := dialClient(t, addr)
	c.send("REGISTER " + strings.Repeat("x", 400) + " pw")
	c.expect("ERR LINE_TOO_LONG")
	c.expectClosed()
}

func TestPartialLinesReassembled(t *testing.T) {
	addr := startServer(t)
	c := dialClient(t, addr)
	for _, chunk := range []string{"REGIS", "TER alice", " pw\nLOG", "IN alice pw\n"} {
		if _, err := c.conn.Write([]byte(chunk)); err != nil {
			t.Fatalf("write chunk: %v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}
	c.expect("OK REGISTERED")
	c.expect("OK LOGGED_IN")
}

func TestErrorIsolationBetweenSessions(t *testing.T) {
	addr := startServer(t)
	a := login(t, addr, "alice")
	junk := dialClient(t, addr)

	junk.send("GARBAGE NONSENSE")
	junk.expect("ERR UNKNOWN_COMMAND")

	// The misbehaving session does not disturb a healthy one.
	a.send("CREATE room1")
	a.expect("ROOM_CREATED room1")
}
