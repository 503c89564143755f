// Package registry maps room names to rooms, preserving creation order so
// room listings stay stable between calls.
package registry

import (
	"errors"
	"regexp"

	"github.com/sjlee-dev/tictacd/internal/room"
	"github.com/sjlee-dev/tictacd/internal/session"
)

var (
	ErrNameTaken   = errors.New("room name already taken")
	ErrInvalidName = errors.New("invalid room name")
	ErrMaxRooms    = errors.New("room capacity reached")
	ErrNoSuchRoom  = errors.New("no such room")
)

// Room names: alphanumerics, spaces, dashes, underscores, 1-20 chars.
var roomNameRe = regexp.MustCompile(`^[a-zA-Z0-9 _-]{1,20}$`)

// ListFilter selects which rooms a listing includes.
type ListFilter uint8

const (
	ListAll ListFilter = iota
	ListWaitingOnly
)

// Entry is one row of a room listing.
type Entry struct {
	Name    string
	Phase   room.Phase
	Players int
	Viewers int
}

// Registry is mutated only by the dispatch goroutine.
type Registry struct {
	rooms    map[string]*room.Room
	order    []string // creation order
	maxRooms int
}

func New(maxRooms int) *Registry {
	return &Registry{
		rooms:    make(map[string]*room.Room),
		maxRooms: maxRooms,
	}
}

// Create validates the name, enforces uniqueness and capacity, and returns a
// new room with the creator seated at slot 0.
func (g *Registry) Create(name string, creator *session.Session) (*room.Room, error) {
	if !roomNameRe.MatchString(name) {
		return nil, ErrInvalidName
	}
	if _, exists := g.rooms[name]; exists {
		return nil, ErrNameTaken
	}
	if len(g.rooms) >= g.maxRooms {
		return nil, ErrMaxRooms
	}
	r := room.New(name, creator)
	g.rooms[name] = r
	g.order = append(g.order, name)
	return r, nil
}

// Get returns the named room.
func (g *Registry) Get(name string) (*room.Room, error) {
	r, ok := g.rooms[name]
	if !ok {
		return nil, ErrNoSuchRoom
	}
	return r, nil
}

// List returns entries in creation order. ListWaitingOnly keeps only rooms a
// player could still join.
func (g *Registry) List(filter ListFilter) []Entry {
	out := make([]Entry, 0, len(g.rooms))
	for _, name := range g.order {
		r, ok := g.rooms[name]
		if !ok {
			continue
		}
		if filter == ListWaitingOnly && r.Phase() != room.PhaseWaiting {
			continue
		}
		out = append(out, Entry{
			Name:    name,
			Phase:   r.Phase(),
			Players: r.PlayerCount(),
			Viewers: r.ViewerCount(),
		})
	}
	return out
}

// Remove drops the named room from the table; subsequent listings exclude it
// and its name becomes reusable.
func (g *Registry) Remove(name string) {
	if _, ok := g.rooms[name]; !ok {
		return
	}
	delete(g.rooms, name)
	for i, n := range g.order {
		if n == name {
			g.order = append(g.order[:i], g.order[i+1:]...)
			break
		}
	}
}

// Len reports the number of live rooms.
func (g *Registry) Len() int { return len(g.rooms) }
