// Package api exposes the sync engine over HTTP.
package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/sells-group/leadsync/internal/model"
	"github.com/sells-group/leadsync/internal/store"
	"github.com/sells-group/leadsync/internal/welcome"
)

// maxBodyBytes caps inbound request bodies.
const maxBodyBytes = 1 << 20

// Syncer runs one submission through the CRM.
type Syncer interface {
	Sync(ctx context.Context, sub model.Submission) (*model.SyncResult, error)
}

// SchemaCache exposes the cached custom-field schema.
type SchemaCache interface {
	Resolve(ctx context.Context) (*model.FieldSchema, error)
	Reset()
}

// Welcomer sends the post-submission welcome message.
type Welcomer interface {
	Send(ctx context.Context, req welcome.Request) (*welcome.Result, error)
}

// Journal lists recorded syncs.
type Journal interface {
	ListSyncs(ctx context.Context, filter store.SyncFilter) ([]model.SyncRecord, error)
}

// Deps are the services behind the routes. Welcome and Journal may be nil.
type Deps struct {
	Syncer         Syncer
	Schema         SchemaCache
	Welcome        Welcomer
	Journal        Journal
	AllowedOrigins []string
}

// NewRouter builds the HTTP handler.
func NewRouter(d Deps) http.Handler {
	h := &handlers{deps: d}

	origins := d.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "not found", Kind: "not_found"})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorBody{Error: "method not allowed", Kind: "method_not_allowed"})
	})

	r.Get("/health", h.health)
	r.Route("/api", func(r chi.Router) {
		r.Post("/bitrix-lead", h.bitrixLead)
		r.Post("/send-welcome", h.sendWelcome)
		r.Get("/schema", h.schema)
		r.Get("/syncs", h.syncs)
	})

	return r
}
