package http

import (
	"net/http"

	"bookmail/internal/config"
	"bookmail/internal/http/handler"
	mw "bookmail/internal/http/middleware"
	"bookmail/internal/schedule"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"gorm.io/gorm"
)

func NewRouter(cfg config.Config, db *gorm.DB, runner *schedule.Runner, retrier *schedule.Retrier) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(mw.CORS(cfg.CORSAllowedOrigins, cfg.CORSAllowCredentials))
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	sh := &handler.SchedulerHandler{Runner: runner, DB: db, CronSecret: cfg.CronSecret}
	r.Route("/scheduler", func(r chi.Router) {
		r.Post("/run", sh.Run)
		r.Post("/simulate", sh.Simulate)
		r.Get("/runs", sh.Runs)
		r.Get("/status", sh.Status)
	})

	lh := &handler.LogsHandler{DB: db, Retrier: retrier, Store: runner.Store}
	r.Route("/logs", func(r chi.Router) {
		r.Get("/recent", lh.Recent)
		r.Get("/stats", lh.Stats)
		r.Get("/upcoming", lh.Upcoming)
		r.Post("/retry", lh.Retry)
	})

	uh := &handler.UsersHandler{DB: db}
	r.Route("/users", func(r chi.Router) {
		r.Post("/", uh.Create)
		r.Get("/", uh.List)
		r.Get("/{id}", uh.Get)
		r.Patch("/{id}", uh.Update)
		r.Delete("/{id}", uh.Delete)
		r.Post("/{id}/books", uh.AssignBook)
	})
	r.Put("/assignments/{assignmentID}/delivery-times", uh.SetDeliveryTimes)
	r.Put("/assignments/{assignmentID}/order", uh.SetOrder)

	bh := &handler.BooksHandler{DB: db}
	r.Route("/books", func(r chi.Router) {
		r.Post("/", bh.Create)
		r.Get("/", bh.List)
		r.Get("/{id}", bh.Get)
		r.Post("/{id}/lessons", bh.CreateLesson)
		r.Get("/{id}/lessons", bh.Lessons)
	})

	eh := &handler.EmailHandler{DB: db, Mail: runner.Mail}
	r.Post("/email/test", eh.TestSend)

	return r
}
