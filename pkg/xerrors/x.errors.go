package xerrors

import "errors"
import "github.com/jackc/pgx/v5/pgconn"

func ParsePGErrorCode(err error) string {
	if pgErr, ok := err.(*pgconn.PgError); ok {
		return pgErr.Code // e.g. 23505 for unique_violation
	}
	return "unknown"
}

// Generic
var (
	ErrInvalidRequest = errors.New("invalid request")
	ErrInternalServer = errors.New("internal server error")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrNotFound       = errors.New("not found")
	ErrInvalidInput   = errors.New("invalid input provided")
)

// Delivery
var (
	ErrEmailDisabled  = errors.New("email notifications disabled for user")
	ErrNoEmailAddress = errors.New("user has no destination email address")
	ErrQueueClosed    = errors.New("delivery queue closed")
	ErrJobNotFound    = errors.New("delivery job not found")
)

// Templates
var (
	ErrTemplateNotFound        = errors.New("template key not registered")
	ErrTemplateVersionNotFound = errors.New("template version not registered")
	ErrMissingTemplateVar      = errors.New("missing required template variable")
)
