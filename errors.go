package redislot

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotInitialized is returned when the command table is needed to
	// resolve the keys of a command but Initialize has not completed yet.
	ErrNotInitialized = errors.New("redislot: command table not initialized")

	// ErrUnknownCommand is returned when the command is not in the command
	// table, even after splitting a multi-word command name.
	ErrUnknownCommand = errors.New("redislot: command doesn't exist in redis commands")

	// ErrInvalidArgs is returned for a malformed scripting command, e.g. an
	// EVAL without its script and number of keys.
	ErrInvalidArgs = errors.New("redislot: invalid args in command")

	// ErrMovableKeys is returned when the keys of the command can only be
	// determined by the server. GetMovableKeys must be used instead.
	ErrMovableKeys = errors.New("redislot: command has movable keys")

	// ErrCrossSlot is returned when the keys of a command do not all map
	// to the same hash slot.
	ErrCrossSlot = errors.New("redislot: all keys must map to the same key slot")

	// ErrNoRoutableKey is returned when no key was found in a command that
	// cannot run on an arbitrary node. Such commands must be sent to an
	// explicit target node.
	ErrNoRoutableKey = errors.New("redislot: missing key, no way to dispatch command to redis cluster")

	// ErrInvalidValue is returned when a key or argument is of an unsupported
	// type, or cannot be encoded with the configured encoding.
	ErrInvalidValue = errors.New("redislot: invalid value")
)

// CommandError adds the command and its arguments to an error returned
// while resolving the keys or slot of a command.
type CommandError struct {
	Command string
	Args    []interface{}
	Err     error
}

func newCommandError(err error, command string, args []interface{}) *CommandError {
	return &CommandError{Command: command, Args: args, Err: err}
}

// Error returns the error message, including the command.
func (e *CommandError) Error() string {
	var buf strings.Builder
	buf.WriteString(e.Command)
	for _, arg := range e.Args {
		fmt.Fprintf(&buf, " %v", printable(arg))
	}
	return fmt.Sprintf("%s: (%s)", e.Err, buf.String())
}

// Unwrap returns the underlying error.
func (e *CommandError) Unwrap() error {
	return e.Err
}

func printable(v interface{}) interface{} {
	if b, ok := v.([]byte); ok {
		return fmt.Sprintf("%q", b)
	}
	return v
}

// IsCrossSlot returns true if the error is caused by keys that do not
// belong to the same slot.
func IsCrossSlot(err error) bool {
	return errors.Is(err, ErrCrossSlot)
}

// IsMovableKeys returns true if the error indicates that the keys of the
// command must be requested from the server with GetMovableKeys.
func IsMovableKeys(err error) bool {
	return errors.Is(err, ErrMovableKeys)
}
