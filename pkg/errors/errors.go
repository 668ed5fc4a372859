package errors

import (
	stderrors "errors"
	"net/http"

	"github.com/fuegoaustral/ticketera-sub000/pkg/status"
)

// AppError is the error value every layer returns across a package
// boundary. Message is safe to show to the end user.
type AppError struct {
	HTTPStatusCode int
	Status         string
	Message        string
}

func (e *AppError) Error() string {
	return e.Message
}

func New(httpStatusCode int, status string, message string) error {
	return &AppError{
		HTTPStatusCode: httpStatusCode,
		Status:         status,
		Message:        message,
	}
}

// Destruct unwraps err into an AppError. Anything that is not an AppError
// becomes an internal server error with a generic message.
func Destruct(err error) *AppError {
	var ae *AppError
	if stderrors.As(err, &ae) {
		return ae
	}

	return &AppError{
		HTTPStatusCode: http.StatusInternalServerError,
		Status:         status.INTERNAL_SERVER_ERROR,
		Message:        "internal server error",
	}
}

// Is reports whether err is an AppError carrying the given status code.
func Is(err error, status string) bool {
	var ae *AppError
	if !stderrors.As(err, &ae) {
		return false
	}

	return ae.Status == status
}
