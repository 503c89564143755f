package protocol

import (
	"errors"

	"github.com/sjlee-dev/tictacd/internal/registry"
	"github.com/sjlee-dev/tictacd/internal/room"
	"github.com/sjlee-dev/tictacd/internal/userstore"
)

// ERR reply codes. One line per error, leading ERR tag, machine-parseable.
const (
	CodeBadCommand         = "BAD_COMMAND"
	CodeUnknownCommand     = "UNKNOWN_COMMAND"
	CodeWrongPhase         = "WRONG_PHASE"
	CodeAlreadyExists      = "ALREADY_EXISTS"
	CodeInvalidCredentials = "INVALID_CREDENTIALS"
	CodeInvalidRoomName    = "INVALID_ROOM_NAME"
	CodeNameTaken          = "NAME_TAKEN"
	CodeMaxRooms           = "MAX_ROOMS"
	CodeNoSuchRoom         = "NO_SUCH_ROOM"
	CodeRoomFull           = "ROOM_FULL"
	CodeGameFinished       = "GAME_FINISHED"
	CodeAlreadyInRoom      = "ALREADY_IN_ROOM"
	CodeNotAPlayer         = "NOT_A_PLAYER"
	CodeNotYourTurn        = "NOT_YOUR_TURN"
	CodeNotInProgress      = "GAME_NOT_IN_PROGRESS"
	CodeInvalidCell        = "INVALID_CELL"
	CodeLineTooLong        = "LINE_TOO_LONG"
	CodeInternal           = "INTERNAL"
)

// errCode maps sentinel errors from the room, registry, and user store onto
// wire codes. Unrecognized errors (store outages and the like) surface as
// INTERNAL without touching game state.
func errCode(err error) string {
	switch {
	case errors.Is(err, registry.ErrInvalidName):
		return CodeInvalidRoomName
	case errors.Is(err, registry.ErrNameTaken):
		return CodeNameTaken
	case errors.Is(err, registry.ErrMaxRooms):
		return CodeMaxRooms
	case errors.Is(err, registry.ErrNoSuchRoom):
		return CodeNoSuchRoom
	case errors.Is(err, room.ErrRoomFull):
		return CodeRoomFull
	case errors.Is(err, room.ErrGameFinished):
		return CodeGameFinished
	case errors.Is(err, room.ErrNotAPlayer):
		return CodeNotAPlayer
	case errors.Is(err, room.ErrNotYourTurn):
		return CodeNotYourTurn
	case errors.Is(err, room.ErrNotInProgress):
		return CodeNotInProgress
	case errors.Is(err, room.ErrInvalidCell):
		return CodeInvalidCell
	case errors.Is(err, userstore.ErrAlreadyExists):
		return CodeAlreadyExists
	case errors.Is(err, userstore.ErrInvalidCredentials):
		return CodeInvalidCredentials
	default:
		return CodeInternal
	}
}
