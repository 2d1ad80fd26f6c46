package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/zhouzirui/emopulse/backend/internal/handler/chat"
	"github.com/zhouzirui/emopulse/backend/internal/handler/emotion"
	middlewarePkg "github.com/zhouzirui/emopulse/backend/internal/middleware"
	chatService "github.com/zhouzirui/emopulse/backend/internal/service/chat"
	"github.com/zhouzirui/emopulse/backend/internal/service/orchestrator"
	"github.com/zhouzirui/emopulse/backend/pkg/utils"
)

// Options carries router settings that are not services.
type Options struct {
	UploadMaxBytes  int64
	StoreBackend    string
	GenerationReady bool
}

// NewRouter wires HTTP routes to core services.
func NewRouter(pipeline *orchestrator.Service, store chatService.Store, opts Options, log logrus.FieldLogger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middlewarePkg.RequestLogger(log))
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	emotionHandler := emotion.New(pipeline, opts.UploadMaxBytes, log)
	chatHandler := chat.New(store, log)

	r.Route("/api", func(api chi.Router) {
		api.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
			utils.RespondJSON(w, http.StatusOK, map[string]any{
				"status":      "ok",
				"generation":  opts.GenerationReady,
				"store":       opts.StoreBackend,
				"classifiers": pipeline.Capabilities(),
			})
		})

		emotionHandler.RegisterRoutes(api)
		chatHandler.RegisterRoutes(api)
	})

	return r
}
