package handlers

import (
	"errors"

	"github.com/danielgtaylor/huma/v2"
	"github.com/jackc/pgx/v5"
	"github.com/yat0i811/CompShare/internal/core/service"
)

// mapServiceError translates the service layer's submission and share errors
// into API responses. Anything unmatched becomes an opaque 500.
func mapServiceError(err error) error {
	var verr *service.ValidationError
	var qerr *service.QuotaError
	switch {
	case errors.As(err, &verr):
		return huma.Error422UnprocessableEntity(verr.Error())
	case errors.As(err, &qerr):
		return huma.Error413RequestEntityTooLarge(qerr.Error())
	case errors.Is(err, service.ErrRateLimited):
		return huma.Error429TooManyRequests(err.Error())
	case errors.Is(err, service.ErrUnauthorized):
		return huma.Error403Forbidden(err.Error())
	case errors.Is(err, service.ErrJobNotDone):
		return huma.Error409Conflict(err.Error())
	case errors.Is(err, service.ErrOutputMissing):
		return huma.Error410Gone(err.Error())
	case errors.Is(err, pgx.ErrNoRows):
		return huma.Error404NotFound("not found")
	default:
		return huma.Error500InternalServerError("internal error")
	}
}
