// Package httpapi assembles the HTTP surface: the metered analysis
// endpoint behind the governance gate, the referral and admin routes,
// and the operational endpoints.
package httpapi

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"teagate/internal/governance/handler"
	govmiddleware "teagate/internal/governance/middleware"
	"teagate/pkg/platform/httputil"
	auth "teagate/pkg/platform/middleware/auth"
	metadata "teagate/pkg/platform/middleware/metadata"
	request "teagate/pkg/platform/middleware/request"
	"teagate/pkg/requestcontext"
)

// Deps carries everything the router needs wired in.
type Deps struct {
	Logger       *slog.Logger
	Governance   *govmiddleware.Middleware
	Handler      *handler.Handler
	JWTValidator auth.JWTValidator
}

// NewRouter builds the full route tree. The analysis endpoint accepts
// anonymous traffic (governed by client IP); the referral routes require
// a bearer token; the admin routes require the operator token.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.Recoverer)
	r.Use(request.Middleware)
	r.Use(metadata.ClientMetadata)

	r.Get("/healthz", handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(auth.OptionalAuth(deps.JWTValidator, deps.Logger))
		r.Use(deps.Governance.Govern())
		r.Post("/analysis", handleAnalysis)
	})

	deps.Handler.Register(r)

	return r
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleAnalysis is the metered demo endpoint. Reaching it at all means
// every governance gate passed and the request was already paid for.
func handleAnalysis(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	httputil.WriteJSON(w, http.StatusOK, map[string]string{
		"analysis_id": uuid.NewString(),
		"status":      "accepted",
		"received_at": requestcontext.Now(ctx).UTC().Format(time.RFC3339),
	})
}
