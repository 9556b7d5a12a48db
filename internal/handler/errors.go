package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"rigshop-api/internal/middleware"
	"rigshop-api/internal/model"
	"rigshop-api/internal/service"
	"rigshop-api/pkg/apierror"
	"rigshop-api/pkg/response"
)

// writeServiceError maps a service error to its API error and writes it.
func writeServiceError(w http.ResponseWriter, r *http.Request, logger *zap.Logger, err error) {
	var stockErr *service.InsufficientStockError
	switch {
	case errors.As(err, &stockErr):
		response.Error(w, apierror.InsufficientStock(stockErr.Error()).WithFields(map[string]interface{}{
			"component":     stockErr.ComponentID,
			"componentName": stockErr.ComponentName,
			"required":      stockErr.Required,
			"available":     stockErr.Available,
			"message":       stockErr.Error(),
		}))
	case errors.Is(err, service.ErrInvalidRequest):
		response.Error(w, apierror.BadRequest(err.Error()))
	case errors.Is(err, service.ErrEmptyComposition):
		response.Error(w, apierror.NotOrderable(err.Error()))
	case errors.Is(err, service.ErrConfigNotFound),
		errors.Is(err, service.ErrOrderNotFound):
		response.Error(w, apierror.NotFound(err.Error()))
	case errors.Is(err, service.ErrComponentNotFound):
		if r.Method == http.MethodPost {
			// A create referencing an unknown component is a bad payload, not a missing resource.
			response.Error(w, apierror.BadRequest(err.Error()))
			return
		}
		response.Error(w, apierror.NotFound(err.Error()))
	case errors.Is(err, service.ErrAlreadyExists):
		response.Error(w, apierror.Conflict(err.Error()))
	case errors.Is(err, service.ErrForbidden):
		response.Error(w, apierror.Forbidden(""))
	default:
		middleware.LoggerFrom(r.Context(), logger).Error("request failed",
			zap.String("path", r.URL.Path),
			zap.Error(err))
		response.Error(w, apierror.InternalError(""))
	}
}

// principal returns the authenticated caller, writing a 401 when there is none.
func principal(w http.ResponseWriter, r *http.Request) (model.Principal, bool) {
	p, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		response.Error(w, apierror.Unauthorized(""))
	}
	return p, ok
}

// decodeJSON decodes the request body into v, writing a 400 on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		response.Error(w, apierror.BadRequest("invalid request body"))
		return false
	}
	return true
}
