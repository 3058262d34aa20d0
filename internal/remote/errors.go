package remote

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a failed remote call.
type Kind int

const (
	// KindNetwork means the service was unreachable or the call timed out.
	KindNetwork Kind = iota + 1
	// KindServer means the service answered with a failure status or an
	// unusable body.
	KindServer
)

func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindServer:
		return "server"
	default:
		return "unknown"
	}
}

var (
	ErrNetwork = errors.New("remote unreachable")
	ErrServer  = errors.New("remote rejected request")
)

// Error is returned by every adapter for a failed call.
type Error struct {
	Op         string
	Kind       Kind
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: %s error (status %d): %v", e.Op, e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %s error: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches ErrNetwork and ErrServer by kind.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrNetwork:
		return e.Kind == KindNetwork
	case ErrServer:
		return e.Kind == KindServer
	}
	return false
}

// NetworkError wraps a transport failure.
func NetworkError(op string, err error) error {
	return &Error{Op: op, Kind: KindNetwork, Err: err}
}

// ServerError wraps a failure reported by the service.
func ServerError(op string, status int, err error) error {
	if err == nil {
		err = errors.New(http.StatusText(status))
	}
	return &Error{Op: op, Kind: KindServer, StatusCode: status, Err: err}
}

// IsNotFound reports whether err is a server error with status 404.
func IsNotFound(err error) bool {
	var re *Error
	return errors.As(err, &re) && re.Kind == KindServer && re.StatusCode == http.StatusNotFound
}
