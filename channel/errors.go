package channel

import "fmt"

// ErrNoListener is returned when nothing at all is registered on the
// router, the equivalent of a message sent with no receiving end.
type ErrNoListener struct {
	Action string
}

func (e *ErrNoListener) Error() string {
	return fmt.Sprintf("channel: no listener for %q", e.Action)
}

// ErrUnknownAction is returned when listeners exist but none handles the
// action, or the message carries no action.
type ErrUnknownAction struct {
	Action string
}

func (e *ErrUnknownAction) Error() string {
	if e.Action == "" {
		return "channel: message has no action"
	}
	return fmt.Sprintf("channel: unknown action %q", e.Action)
}

// ErrPanic wraps a recovered handler panic.
type ErrPanic struct {
	Action string
	Value  any
}

func (e *ErrPanic) Error() string {
	return fmt.Sprintf("channel: handler for %q panicked: %v", e.Action, e.Value)
}
