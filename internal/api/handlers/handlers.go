// Package handlers contains the HTTP handler implementations for the
// PomoLink API. Each handler declares the narrow service interfaces it
// depends on and registers its own routes via core.RouteRegistrar.
package handlers

import (
	"errors"
	"net/http"

	"pomolink/internal/core"
	"pomolink/internal/types"
)

// respondError writes an error response, counting quota denials in metrics
// before delegating to the shared renderer.
func respondError(w http.ResponseWriter, r *http.Request, metrics types.MetricsCollector, err error) {
	var limitErr *types.LimitError
	if errors.As(err, &limitErr) && metrics != nil {
		metrics.RecordDenial(limitErr.Denial.Code)
	}
	core.Error(w, r, err)
}

// requireActor pulls the authenticated actor from the request context.
// Routes mounted behind the auth middleware always have one; the error path
// guards against misconfigured route registration.
func requireActor(w http.ResponseWriter, r *http.Request) (types.Actor, bool) {
	actor, ok := types.GetActor(r.Context())
	if !ok {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthTokenMissing,
			"no authenticated user on request", nil))
		return types.Actor{}, false
	}
	return actor, true
}
