package clierr

import (
	"errors"

	"github.com/habedi/tenantctl/client"
)

// Type categorizes a CLI-facing error for consistent messaging & exit codes.
type Type string

const (
	Validation Type = "validation"
	NotFound   Type = "not_found"
	Auth       Type = "auth"
	Forbidden  Type = "forbidden"
	Network    Type = "network"
	Server     Type = "server"
	Internal   Type = "internal"
)

// Error is a structured user-facing error.
type Error struct {
	Type    Type
	Message string
	Err     error // optional underlying error
}

func (e *Error) Error() string { return e.Message }
func (e *Error) Unwrap() error { return e.Err }

// New constructs a new CLI Error.
func New(t Type, msg string, err error) *Error { return &Error{Type: t, Message: msg, Err: err} }

// FromError turns any error into a CLI error. API errors keep their message
// and map their kind; anything else becomes Internal.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var cliErr *Error
	if errors.As(err, &cliErr) {
		return cliErr
	}
	var apiErr *client.APIError
	if !errors.As(err, &apiErr) {
		return New(Internal, err.Error(), err)
	}

	msg := apiErr.Message
	switch apiErr.Kind {
	case client.KindValidation:
		return New(Validation, msg, err)
	case client.KindNotFound:
		return New(NotFound, msg, err)
	case client.KindAuthExpired:
		return New(Auth, msg, err)
	case client.KindForbidden:
		return New(Forbidden, msg, err)
	case client.KindNetwork, client.KindTimeout:
		return New(Network, msg, err)
	case client.KindServerError, client.KindRateLimited:
		return New(Server, msg, err)
	default:
		return New(Internal, msg, err)
	}
}

// ExitCode maps an error to a process exit status. nil is 0.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	switch FromError(err).Type {
	case Validation:
		return 2
	case Auth, Forbidden:
		return 3
	case NotFound:
		return 4
	case Network:
		return 5
	case Server:
		return 6
	default:
		return 1
	}
}
