package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"Cloud_Animator/internal/task"
	"Cloud_Animator/pkg/database"
	"Cloud_Animator/pkg/metrics"
)

// RegisterRoutes 注册所有API路由
func RegisterRoutes(tm *task.Manager, db database.Store, m *metrics.Metrics) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	handlers := NewAPIHandlers(tm, db)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/tasks/render", handlers.HandleStartRenderTask)
		r.Get("/tasks/{taskId}", handlers.HandleGetTaskStatus)
		r.Get("/reports", handlers.HandleListReports)
		r.Get("/reports/{product}/{year}", handlers.HandleGetReport)
		r.Get("/reports/{product}/{year}/frames", handlers.HandleListFrames)
		r.Get("/config", handlers.HandleGetConfig)
	})

	if m != nil {
		r.Handle("/metrics", m.Handler())
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	return r
}
