package failure

import (
	"errors"
	"fmt"
)

// Kind classifies engine failures. None of them is fatal to the process.
type Kind string

const (
	KindNetwork       Kind = "network_failure"
	KindStorage       Kind = "storage_failure"
	KindMalformedPush Kind = "malformed_push_payload"
	KindReplay        Kind = "replay_failure"
)

type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, op string, err error) error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func Network(op string, err error) error { return New(KindNetwork, op, err) }

func Storage(op string, err error) error { return New(KindStorage, op, err) }

func Replay(op string, err error) error { return New(KindReplay, op, err) }

// Is reports whether any error in err's chain is a failure of kind.
func Is(err error, kind Kind) bool {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind == kind
	}
	return false
}
