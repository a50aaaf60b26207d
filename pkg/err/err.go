package errprocess

import (
	"errors"
	"net/http"

	"quickchat/pkg/logger"
)

// Kind classify an error for the caller
type Kind string

const (
	// KindValidation bad input, e.g. empty message
	KindValidation Kind = "validation"
	// KindAuthorization caller is not allowed, e.g. delete by non-sender
	KindAuthorization Kind = "authorization"
	// KindNotFound message or user id does not exist
	KindNotFound Kind = "not_found"
	// KindAuth missing, invalid or expired session token
	KindAuth Kind = "auth"
	// KindTransport store or network failure
	KindTransport Kind = "transport"
)

// Error carry a Kind with a caller facing message
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Err != nil && e.Msg == "":
		return e.Err.Error()
	case e.Err != nil:
		return e.Msg + ": " + e.Err.Error()
	case e.Msg == "":
		return string(e.Kind)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is match on Kind so errors.Is(err, errprocess.ErrNotFound) works for any message
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Msg == "" && t.Err == nil && t.Kind == e.Kind
}

// sentinel values for errors.Is
var (
	ErrValidation    = &Error{Kind: KindValidation}
	ErrAuthorization = &Error{Kind: KindAuthorization}
	ErrNotFound      = &Error{Kind: KindNotFound}
	ErrAuth          = &Error{Kind: KindAuth}
	ErrTransport     = &Error{Kind: KindTransport}
)

// New create an error of kind
func New(kind Kind, msg string) error {
	return &Error{Kind: kind, Msg: msg}
}

// Wrap attach kind and message to err, nil stays nil
func Wrap(kind Kind, err error, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// Validation shortcut
func Validation(msg string) error { return New(KindValidation, msg) }

// Authorization shortcut
func Authorization(msg string) error { return New(KindAuthorization, msg) }

// NotFound shortcut
func NotFound(msg string) error { return New(KindNotFound, msg) }

// Auth shortcut
func Auth(msg string) error { return New(KindAuth, msg) }

// Transport wrap a store / network failure
func Transport(err error, msg string) error { return Wrap(KindTransport, err, msg) }

// KindOf return the kind of err, unknown errors are transport failures
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindTransport
}

// Message return the caller facing message; transport details are not exposed
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		if e.Kind == KindTransport {
			if e.Msg != "" {
				return e.Msg
			}
			return "internal server error"
		}
		if e.Msg != "" {
			return e.Msg
		}
		return string(e.Kind)
	}
	return "internal server error"
}

// HTTPStatus map err to a response code
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindAuth:
		return http.StatusUnauthorized
	case KindAuthorization:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// FromStatus rebuild a kinded error from a response code, used by http clients
func FromStatus(code int, msg string) error {
	switch code {
	case http.StatusBadRequest:
		return Validation(msg)
	case http.StatusUnauthorized:
		return Auth(msg)
	case http.StatusForbidden:
		return Authorization(msg)
	case http.StatusNotFound:
		return NotFound(msg)
	default:
		return &Error{Kind: KindTransport, Msg: msg}
	}
}

// Set set err info
func Set(errMsg string) error {
	logger.Log.Error(errMsg)
	return errors.New(errMsg)
}
