package wetalk

import "errors"

// Validation errors surfaced before any request is made.
var (
	ErrEmptyMessage        = errors.New("wetalk: message content is empty")
	ErrUnknownConversation = errors.New("wetalk: conversation not found")
	ErrNoParticipants      = errors.New("wetalk: at least one participant is required")
	ErrGroupNameRequired   = errors.New("wetalk: group conversations require a name")
	ErrNotConnected        = errors.New("wetalk: channel not connected")
)

// FetchError reports a failed conversation list or detail load. The Store's
// state is left at last-known-good when one is returned.
type FetchError struct {
	cause error
}

func (e *FetchError) Error() string { return "fetch conversations: " + e.cause.Error() }
func (e *FetchError) Unwrap() error { return e.cause }

// CreateError reports a failed conversation creation. No entry was added,
// so there is nothing to roll back.
type CreateError struct {
	cause error
}

func (e *CreateError) Error() string { return "create conversation: " + e.cause.Error() }
func (e *CreateError) Unwrap() error { return e.cause }

// SendError reports a failed message send. The Store adds no optimistic
// entry, so a failed send leaves the conversation unchanged; retrying is
// the caller's decision.
type SendError struct {
	cause error
}

func (e *SendError) Error() string { return "send message: " + e.cause.Error() }
func (e *SendError) Unwrap() error { return e.cause }
