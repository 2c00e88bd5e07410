package errx

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"

	"github.com/redis/go-redis/v9"
)

// Kind classifies a system failure so callers can branch without inspecting messages.
type Kind string

const (
	KindUnknown     Kind = "unknown"
	KindUpstream    Kind = "upstream"
	KindDecision    Kind = "decision"
	KindDelivery    Kind = "delivery"
	KindPersistence Kind = "persistence"
)

const (
	// SystemErrorMessage is the user-facing fallback when internal errors occur.
	SystemErrorMessage = "Dạ hệ thống đang gặp sự cố, anh/chị vui lòng thử lại sau ít phút ạ."
	// RedisErrorMessage describes Redis related failures.
	RedisErrorMessage = "redis operation failed"
	// RedisNotFoundMessage describes a missing Redis key.
	RedisNotFoundMessage = "redis key not found"
	// DBErrorMessage describes database failures.
	DBErrorMessage = "database operation failed"
	// DBNotFoundMessage describes a missing database row.
	DBNotFoundMessage = "database row not found"
)

// AppError wraps an underlying error with a kind, an HTTP status and a safe message.
type AppError struct {
	Err     error
	Kind    Kind
	Status  int
	Message string
}

func (e *AppError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Is reports whether the target matches the underlying error.
func (e *AppError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// As allows casting to AppError or the wrapped error in a chain.
func (e *AppError) As(target any) bool {
	if errors.As(e.Err, target) {
		return true
	}
	if t, ok := target.(**AppError); ok {
		*t = e
		return true
	}
	return false
}

func New(err error, kind Kind, status int, message string) *AppError {
	return &AppError{
		Err:     err,
		Kind:    kind,
		Status:  status,
		Message: message,
	}
}

func Upstream(err error, message string) error {
	if err == nil {
		return nil
	}
	return New(err, KindUpstream, http.StatusBadGateway, message)
}

func Decision(err error) error {
	if err == nil {
		return nil
	}
	return New(err, KindDecision, http.StatusBadGateway, "routing decision failed")
}

func Delivery(err error, message string) error {
	if err == nil {
		return nil
	}
	return New(err, KindDelivery, http.StatusBadGateway, message)
}

func Persistence(err error, message string) error {
	if err == nil {
		return nil
	}
	return New(err, KindPersistence, http.StatusServiceUnavailable, message)
}

// WrapRedis maps Redis errors to AppError. redis.Nil becomes a not-found error.
func WrapRedis(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, redis.Nil) {
		return New(err, KindPersistence, http.StatusNotFound, RedisNotFoundMessage)
	}
	return New(err, KindPersistence, http.StatusServiceUnavailable, RedisErrorMessage)
}

// WrapDB maps database errors to AppError. sql.ErrNoRows becomes a not-found error.
func WrapDB(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return New(err, KindUpstream, http.StatusNotFound, DBNotFoundMessage)
	}
	return New(err, KindUpstream, http.StatusBadGateway, DBErrorMessage)
}

func KindOf(err error) Kind {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindUnknown
}

func StatusOf(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Status != 0 {
		return appErr.Status
	}
	return http.StatusInternalServerError
}

func IsNotFound(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Status == http.StatusNotFound
}

// PublicMessage returns text that is safe to show to the end user.
func PublicMessage(err error) string {
	if err == nil {
		return ""
	}
	return SystemErrorMessage
}
