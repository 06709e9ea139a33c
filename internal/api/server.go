package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	json "github.com/goccy/go-json"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/yangwenmai/coursegen/internal/logger"
	"github.com/yangwenmai/coursegen/internal/model"
)

// maxRequestBody is the maximum allowed request body size (1 MB).
const maxRequestBody int64 = 1 << 20

// CourseService is the course pipeline as seen by the HTTP layer.
type CourseService interface {
	Assemble(ctx context.Context, topic, owner string) (string, bool, error)
	EnsureHydrated(ctx context.Context, lessonID string) (*model.Lesson, error)
	GetCourse(ctx context.Context, id string) (*model.CourseTree, error)
	ListCourses(ctx context.Context, owner string) ([]model.Course, error)
	UpdateCourse(ctx context.Context, id, requester string, u model.CourseUpdate) (*model.Course, error)
	UpdateLesson(ctx context.Context, id, requester string, u model.LessonUpdate) (*model.Lesson, error)
	DeleteCourse(ctx context.Context, courseID, requester string) error
	DeleteLesson(ctx context.Context, lessonID, requester string) error
	UpsertUser(ctx context.Context, sub, email, name string) (*model.User, error)
}

// Options configures the HTTP surface.
type Options struct {
	JWTSecret   string
	CORSOrigins []string
	// CreateRateLimit is the number of course creations allowed per client IP
	// per minute. Zero disables the limit.
	CreateRateLimit int
}

// Server holds the HTTP handlers and dependencies.
type Server struct {
	courses  CourseService
	log      *logger.Logger
	opts     Options
	validate *validator.Validate
	router   chi.Router
}

// New creates a new API server.
func New(courses CourseService, log *logger.Logger, opts Options) *Server {
	srv := &Server{
		courses:  courses,
		log:      log,
		opts:     opts,
		validate: validator.New(),
		router:   chi.NewRouter(),
	}
	srv.routes()
	return srv
}

// Handler returns the root http.Handler with middleware applied.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() {
	r := s.router
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(s.logRequests)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.opts.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(limitBody)

		r.Get("/courses/{id}", s.handleGetCourse)

		r.Group(func(r chi.Router) {
			r.Use(s.requireAuth)

			r.Get("/auth/profile", s.handleProfile)

			r.With(s.createLimiter()).Post("/courses", s.handleCreateCourse)
			r.Get("/courses/my-courses", s.handleListCourses)
			r.Put("/courses/{id}", s.handleUpdateCourse)
			r.Delete("/courses/{id}", s.handleDeleteCourse)

			r.Get("/lessons/{id}", s.handleGetLesson)
			r.Put("/lessons/{id}", s.handleUpdateLesson)
			r.Delete("/lessons/{id}", s.handleDeleteLesson)
		})
	})
}

// ---------------------------------------------------------------------------
// Middleware
// ---------------------------------------------------------------------------

// createLimiter bounds course creation per client IP.
func (s *Server) createLimiter() func(http.Handler) http.Handler {
	if s.opts.CreateRateLimit <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return httprate.Limit(
		s.opts.CreateRateLimit,
		time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, _ *http.Request) {
			writeError(w, http.StatusTooManyRequests, "too many course requests, slow down")
		}),
	)
}

// limitBody restricts the request body to maxRequestBody bytes.
func limitBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start).String(),
			"request_id", chimiddleware.GetReqID(r.Context()),
		)
	})
}

// ---------------------------------------------------------------------------
// Response helpers
// ---------------------------------------------------------------------------

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// decodeBody decodes a JSON request body into v and validates it.
func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	if err := s.validate.Struct(v); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return false
	}
	return true
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return fmt.Sprintf("%s is invalid (%s)", strings.ToLower(fe.Field()), fe.Tag())
	}
	return "invalid request"
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
