package handlers

import (
	"net/http"
	"time"

	"memo/internal/metrics"
	"memo/internal/middleware"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type RouterConfig struct {
	Tasks         TaskHandler
	Auth          AuthHandler
	Notifications NotificationHandler
	Tokens        middleware.TokenParser
	Metrics       *metrics.Metrics

	CORSAllowedOrigins []string
	RateLimitRPM       int
	RequestTimeout     time.Duration
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logging)
	if cfg.Metrics != nil {
		r.Use(middleware.Metrics(cfg.Metrics))
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	r.Use(middleware.RateLimit(cfg.RateLimitRPM))
	if cfg.RequestTimeout > 0 {
		r.Use(chimw.Timeout(cfg.RequestTimeout))
	}

	tasks, auth, notifications := cfg.Tasks, cfg.Auth, cfg.Notifications

	r.Get("/health", tasks.HealthCheck)
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics.Handler())
	}

	r.Route("/auth", func(r chi.Router) {
		r.Post("/signup", auth.SignUp)             // POST /auth/signup
		r.Post("/signin", auth.SignIn)             // POST /auth/signin
		r.Post("/federated", auth.SignInFederated) // POST /auth/federated
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.Auth(cfg.Tokens))

		r.Get("/me", auth.Me)                    // GET /me
		r.Put("/me/telegram", auth.LinkTelegram) // PUT /me/telegram

		r.Route("/tasks", func(r chi.Router) {
			r.Get("/", tasks.ListTasks) // GET /tasks
			r.Post("/", tasks.PostTask) // POST /tasks

			r.Get("/categories", tasks.ListCategories) // GET /tasks/categories
			r.Get("/tags", tasks.ListTags)             // GET /tasks/tags

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", tasks.GetTaskByID)       // GET /tasks/{id}
				r.Patch("/", tasks.PatchTask)       // PATCH /tasks/{id}
				r.Delete("/", tasks.DeleteTaskByID) // DELETE /tasks/{id}

				r.Post("/complete", tasks.CompleteTask) // POST /tasks/{id}/complete
				r.Post("/reopen", tasks.ReopenTask)     // POST /tasks/{id}/reopen

				r.Post("/attachments", tasks.UploadAttachment)           // POST /tasks/{id}/attachments
				r.Get("/attachments/{attID}", tasks.DownloadAttachment)  // GET /tasks/{id}/attachments/{attID}
				r.Delete("/attachments/{attID}", tasks.DeleteAttachment) // DELETE /tasks/{id}/attachments/{attID}
			})
		})

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", notifications.List) // GET /notifications

			r.Route("/{taskID}", func(r chi.Router) {
				r.Post("/done", notifications.Done)     // POST /notifications/{taskID}/done
				r.Post("/snooze", notifications.Snooze) // POST /notifications/{taskID}/snooze
				r.Delete("/", notifications.Dismiss)    // DELETE /notifications/{taskID}
			})
		})

		r.Post("/reminders/sync", notifications.SyncNow) // POST /reminders/sync
	})

	return otelhttp.NewHandler(r, "memo")
}
