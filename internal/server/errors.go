package server

import (
	"errors"
	"net/http"

	"github.com/jonathan/lastseen/internal/job"
	"github.com/jonathan/lastseen/internal/store"
)

// HTTPStatus returns the appropriate HTTP status code for an error
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, job.ErrRunInProgress):
		return http.StatusConflict
	case store.IsAuthError(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
