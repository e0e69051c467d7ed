package gateway

import (
	"errors"
	"fmt"
)

// Kind classifies a remote failure.
type Kind int

const (
	// KindNetwork means the request never reached the service or no response
	// came back.
	KindNetwork Kind = iota
	// KindService means the service answered with a non-2xx status.
	KindService
)

func (k Kind) String() string {
	if k == KindService {
		return "service"
	}
	return "network"
}

// RemoteError is returned by every Client method on failure.
type RemoteError struct {
	Op     string // gateway operation, e.g. "ask"
	Kind   Kind
	Status int    // HTTP status; zero for network errors
	Detail string // optional server-supplied message
	Err    error
}

func (e *RemoteError) Error() string {
	switch {
	case e.Kind == KindService && e.Detail != "":
		return fmt.Sprintf("%s: service returned %d: %s", e.Op, e.Status, e.Detail)
	case e.Kind == KindService:
		return fmt.Sprintf("%s: service returned %d", e.Op, e.Status)
	default:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
}

func (e *RemoteError) Unwrap() error { return e.Err }

// Message returns the most useful human-readable description of the error:
// the server detail when present, the transport error otherwise.
func (e *RemoteError) Message() string {
	if e.Detail != "" {
		return e.Detail
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("status %d", e.Status)
}

// IsNetwork reports whether err is a transport failure.
func IsNetwork(err error) bool {
	var re *RemoteError
	return errors.As(err, &re) && re.Kind == KindNetwork
}

// IsService reports whether err is a non-2xx service response.
func IsService(err error) bool {
	var re *RemoteError
	return errors.As(err, &re) && re.Kind == KindService
}

// StatusOf returns the HTTP status carried by err, or zero.
func StatusOf(err error) int {
	var re *RemoteError
	if errors.As(err, &re) {
		return re.Status
	}
	return 0
}

// DetailOf returns a human-readable message for err, preferring the server
// detail of a RemoteError.
func DetailOf(err error) string {
	var re *RemoteError
	if errors.As(err, &re) {
		return re.Message()
	}
	if err != nil {
		return err.Error()
	}
	return ""
}
