package api

import (
	"errors"

	"SignalTrack/internal/domain/models"
	xhttp "SignalTrack/pkg/http"
)

// toAppError maps domain errors onto HTTP statuses.
func toAppError(err error) *xhttp.AppError {
	var (
		verr *models.ValidationError
		dup  *models.DuplicateSignalError
		terr *models.InvalidTransitionError
	)
	switch {
	case errors.As(err, &verr):
		e := xhttp.NewAppError("ERR_INVALID_SIGNAL", "", verr.Error(), 400).WithError(err)
		return e.WithParam("problems", verr.Problems)
	case errors.As(err, &dup):
		return xhttp.ConflictError(dup.Error()).WithError(err).WithParam("id", dup.ID)
	case errors.As(err, &terr):
		return xhttp.ConflictError(terr.Error()).WithError(err).WithParam("state", string(terr.Current))
	case errors.Is(err, models.ErrNotFound):
		return xhttp.NotFoundError(err.Error()).WithError(err)
	case errors.Is(err, models.ErrDataUnavailable):
		return xhttp.UnavailableError(err.Error()).WithError(err)
	}
	var appErr *xhttp.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return xhttp.InternalError("internal error").WithError(err)
}
