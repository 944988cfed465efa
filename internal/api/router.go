package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/branchcanvas/engine/internal/api/handlers"
	"github.com/branchcanvas/engine/internal/api/middleware"
	"github.com/branchcanvas/engine/internal/api/ws"
	"github.com/branchcanvas/engine/internal/engine"
	"github.com/branchcanvas/engine/internal/repository"
)

type RouterDeps struct {
	Users     repository.UserRepository
	Convs     repository.ConversationRepository
	Snapshots repository.SnapshotRepository
	Manager   *engine.Manager
	Hub       *ws.Hub
	JWTSecret []byte
}

// NewRouter assembles the HTTP surface: health probes, auth, the canvas
// intent endpoints, and the websocket push channel.
func NewRouter(deps RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery)
	r.Use(middleware.Logging)
	r.Use(middleware.CORS)
	r.Use(middleware.RateLimit(10, 20))

	health := handlers.NewHealthHandler()
	r.Get("/healthz", health.Liveness)
	r.Get("/readyz", health.Readiness)

	auth := handlers.NewAuthHandler(deps.Users, deps.JWTSecret)
	convs := handlers.NewConversationsHandler(deps.Convs)
	canvas := handlers.NewCanvasHandler(deps.Manager, deps.Snapshots)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/register", auth.Register)
		r.Post("/auth/login", auth.Login)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(deps.JWTSecret))

			r.Post("/auth/refresh", auth.Refresh)
			r.Post("/auth/logout", auth.Logout)

			r.Route("/conversations", func(r chi.Router) {
				r.Get("/", convs.List)
				r.Get("/{id}", convs.Get)
				r.Delete("/{id}", convs.Delete)
			})

			r.Route("/canvas", func(r chi.Router) {
				r.Get("/", canvas.Get)
				r.Post("/layout", canvas.Layout)
				r.Get("/export", canvas.Export)
				r.Put("/selectable", canvas.SetSelectable)

				r.Post("/nodes", canvas.AddNode)
				r.Delete("/nodes", canvas.DeleteAll)
				r.Post("/nodes/{id}/submit", canvas.SubmitQuestion)
				r.Post("/nodes/{id}/edit", canvas.EditNode)
				r.Post("/nodes/{id}/refresh", canvas.RefreshNode)
				r.Put("/nodes/{id}/selected", canvas.SetSelected)
				r.Delete("/nodes/{id}", canvas.DeleteNode)

				r.Post("/snapshots", canvas.SaveSnapshot)
				r.Get("/snapshots", canvas.ListSnapshots)
				r.Get("/snapshots/current", canvas.CurrentSnapshot)
			})
		})
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.Auth(deps.JWTSecret))
		r.Get("/ws", handlers.Websocket(deps.Hub))
	})

	return r
}
