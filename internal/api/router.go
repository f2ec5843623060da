package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/autodesk-tandem/tandem-sample-rest/internal/catalogservice"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
// events, if non-nil, is told about catalogs imported or deleted through
// the API.
func NewRouter(svc *catalogservice.Service, authEnabled bool, token string, sseHandler http.Handler, events EventPublisher) chi.Router {
	h := NewHandler(svc, events)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	r.Get("/models", h.ListModels)
	r.Route("/models/{modelID}", func(r chi.Router) {
		r.Get("/", h.GetModel)

		r.Get("/catalog", h.GetCatalog)
		r.Put("/catalog", h.PutCatalog)
		r.Delete("/catalog", h.DeleteCatalog)

		r.Get("/attributes", h.ListAttributes)
		r.Get("/attributes/{id}", h.GetAttribute)
		r.Get("/applicable", h.Applicable)

		r.Post("/rows/format", h.FormatRows)
		r.Post("/mutations", h.BuildMutation)
	})

	r.Post("/catalogs", h.UploadCatalog)

	r.Get("/hashes", h.MatchHash)
	r.Get("/names", h.MatchName)
	r.Get("/index", h.ListIndex)
	r.Get("/search", h.Search)

	r.Post("/keys/qualify", h.QualifyKeys)
	r.Post("/keys/decode", h.DecodeKeys)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
