package errors

import (
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Kind is the closed set of failures a session operation can report.
type Kind string

const (
	KindHotJoin               Kind = "hot_join"
	KindNoGameInProgress      Kind = "no_game_in_progress"
	KindGameAlreadyInProgress Kind = "game_already_in_progress"
	KindOutOfOrder            Kind = "out_of_order"
	KindLoading               Kind = "loading"
	KindNoPlayer              Kind = "no_player"

	KindInvalidArgument Kind = "invalid_argument"
	KindNotFound        Kind = "not_found"
	KindInternal        Kind = "internal"
)

var kind2grpc = map[Kind]codes.Code{
	KindHotJoin:               codes.FailedPrecondition,
	KindNoGameInProgress:      codes.FailedPrecondition,
	KindGameAlreadyInProgress: codes.AlreadyExists,
	KindOutOfOrder:            codes.Aborted,
	KindLoading:               codes.Unavailable,
	KindNoPlayer:              codes.FailedPrecondition,
	KindInvalidArgument:       codes.InvalidArgument,
	KindNotFound:              codes.NotFound,
	KindInternal:              codes.Internal,
}

var kind2http = map[Kind]int{
	KindHotJoin:               http.StatusConflict,
	KindNoGameInProgress:      http.StatusConflict,
	KindGameAlreadyInProgress: http.StatusConflict,
	KindOutOfOrder:            http.StatusConflict,
	KindLoading:               http.StatusServiceUnavailable,
	KindNoPlayer:              http.StatusUnprocessableEntity,
	KindInvalidArgument:       http.StatusBadRequest,
	KindNotFound:              http.StatusNotFound,
	KindInternal:              http.StatusInternalServerError,
}

var defaultMessages = map[Kind]string{
	KindHotJoin:               "cannot join a game that is not accepting players",
	KindNoGameInProgress:      "no game in progress",
	KindGameAlreadyInProgress: "game already in progress",
	KindOutOfOrder:            "action out of order",
	KindLoading:               "question is still loading",
	KindNoPlayer:              "at least 2 players are required",
	KindInvalidArgument:       "invalid argument",
	KindNotFound:              "not found",
	KindInternal:              "internal error",
}

// Sentinels for errors.Is. Any *Error of the same kind matches.
var (
	ErrHotJoin               = New(KindHotJoin)
	ErrNoGameInProgress      = New(KindNoGameInProgress)
	ErrGameAlreadyInProgress = New(KindGameAlreadyInProgress)
	ErrOutOfOrder            = New(KindOutOfOrder)
	ErrLoading               = New(KindLoading)
	ErrNoPlayer              = New(KindNoPlayer)
)

type Error struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
	err     error
}

func New(kind Kind, opts ...Option) *Error {
	e := &Error{
		Kind:    kind,
		Message: defaultMessages[kind],
	}

	for _, opt := range opts {
		opt.apply(e)
	}

	return e
}

func (e *Error) Error() string {
	s := fmt.Sprintf("kind: %s, message: %s", e.Kind, e.Message)
	if e.err != nil {
		s += fmt.Sprintf(", err: %s", e.err)
	}

	return s
}

func (e *Error) Unwrap() error {
	return e.err
}

// Is reports whether target is an *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}

	return t.Kind == e.Kind
}

func (e *Error) GRPCStatus() *status.Status {
	c, ok := kind2grpc[e.Kind]
	if !ok {
		c = codes.Internal
	}

	return status.New(c, e.Message)
}

func (e *Error) HTTPStatusCode() int {
	if c, ok := kind2http[e.Kind]; ok {
		return c
	}

	return http.StatusInternalServerError
}

func Convert(err error) *Error {
	var e *Error
	if !errors.As(err, &e) {
		return Internal(err)
	}

	return e
}

func Internal(err error) *Error {
	return New(KindInternal, WithCause(err))
}

func InvalidArgument(format string, args ...any) *Error {
	return New(KindInvalidArgument, WithMessagef(format, args...))
}

type Option interface {
	apply(*Error)
}

type optionFunc func(*Error)

func (f optionFunc) apply(e *Error) {
	f(e)
}

func WithCause(err error) Option {
	return optionFunc(func(e *Error) {
		e.err = err
	})
}

func WithMessagef(format string, args ...any) Option {
	return optionFunc(func(e *Error) {
		e.Message = fmt.Sprintf(format, args...)
	})
}
