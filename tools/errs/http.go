package errs

import (
	"errors"
	"net/http"
)

// HTTPStatus maps err onto the status the request surface answers with.
// Anything that is not a CodeError is an internal fault.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrArgs):
		return http.StatusBadRequest
	case errors.Is(err, ErrRecordNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrNoPermission):
		return http.StatusForbidden
	case errors.Is(err, ErrDuplicateKey):
		return http.StatusConflict
	case errors.Is(err, ErrTokenInvalid):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// Public returns the body that may leave the process. Internal faults lose
// their detail.
func Public(err error) *CodeError {
	if HTTPStatus(err) == http.StatusInternalServerError {
		return ErrInternalServer
	}
	codeErr, ok := CodeOf(err)
	if !ok {
		return ErrInternalServer
	}
	return codeErr
}
