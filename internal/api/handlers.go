package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/yangwenmai/coursegen/internal/course"
	"github.com/yangwenmai/coursegen/internal/model"
)

// ---------------------------------------------------------------------------
// Error mapping
// ---------------------------------------------------------------------------

// writeServiceError maps service errors to HTTP responses. providerStatus is
// used for *model.ProviderError, whose meaning depends on the endpoint.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error, providerStatus int, providerMsg string) {
	var pe *model.ProviderError
	switch {
	case errors.Is(err, model.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, model.ErrUnauthorized):
		if requester(r) == "" {
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		writeError(w, http.StatusForbidden, "not authorized")
	case errors.Is(err, model.ErrConflict):
		writeError(w, http.StatusConflict, "already exists")
	case errors.Is(err, course.ErrEmptyTopic), errors.Is(err, course.ErrMissingEmail):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &pe):
		s.log.Warn("provider error", "path", r.URL.Path, "op", pe.Op, "error", err)
		if pe.Retryable {
			w.Header().Set("Retry-After", "5")
		}
		writeError(w, providerStatus, providerMsg)
	default:
		s.log.Error("request failed", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// ---------------------------------------------------------------------------
// POST /api/courses
// ---------------------------------------------------------------------------

type createCourseRequest struct {
	Topic string `json:"topic" validate:"required,max=200"`
}

// handleCreateCourse answers 201 for a new course and 200 when the owner
// already had one for the topic.
func (s *Server) handleCreateCourse(w http.ResponseWriter, r *http.Request) {
	var req createCourseRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	id, created, err := s.courses.Assemble(r.Context(), req.Topic, requester(r))
	if err != nil {
		s.writeServiceError(w, r, err, http.StatusBadGateway, "course generation failed, try again")
		return
	}

	tree, err := s.courses.GetCourse(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err, http.StatusInternalServerError, "internal error")
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, tree)
}

// ---------------------------------------------------------------------------
// GET /api/courses/my-courses
// ---------------------------------------------------------------------------

func (s *Server) handleListCourses(w http.ResponseWriter, r *http.Request) {
	courses, err := s.courses.ListCourses(r.Context(), requester(r))
	if err != nil {
		s.writeServiceError(w, r, err, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, courses)
}

// ---------------------------------------------------------------------------
// GET/PUT/DELETE /api/courses/{id}
// ---------------------------------------------------------------------------

func (s *Server) handleGetCourse(w http.ResponseWriter, r *http.Request) {
	tree, err := s.courses.GetCourse(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeServiceError(w, r, err, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, tree)
}

type updateCourseRequest struct {
	Title       string   `json:"title" validate:"max=200"`
	Description string   `json:"description" validate:"max=2000"`
	Tags        []string `json:"tags" validate:"max=20,dive,max=50"`
}

func (s *Server) handleUpdateCourse(w http.ResponseWriter, r *http.Request) {
	var req updateCourseRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	c, err := s.courses.UpdateCourse(r.Context(), chi.URLParam(r, "id"), requester(r), model.CourseUpdate{
		Title:       req.Title,
		Description: req.Description,
		Tags:        req.Tags,
	})
	if err != nil {
		s.writeServiceError(w, r, err, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleDeleteCourse(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.courses.DeleteCourse(r.Context(), id, requester(r)); err != nil {
		s.writeServiceError(w, r, err, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id, "status": "deleted"})
}

// ---------------------------------------------------------------------------
// GET/PUT/DELETE /api/lessons/{id}
// ---------------------------------------------------------------------------

// handleGetLesson returns the lesson, generating its content first if it is
// still pending.
func (s *Server) handleGetLesson(w http.ResponseWriter, r *http.Request) {
	l, err := s.courses.EnsureHydrated(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeServiceError(w, r, err, http.StatusServiceUnavailable, "content may be generating, retry shortly")
		return
	}
	writeJSON(w, http.StatusOK, l)
}

type updateLessonRequest struct {
	Title       string               `json:"title" validate:"max=200"`
	Content     []model.ContentBlock `json:"content"`
	IsCompleted *bool                `json:"is_completed"`
}

func (s *Server) handleUpdateLesson(w http.ResponseWriter, r *http.Request) {
	var req updateLessonRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	l, err := s.courses.UpdateLesson(r.Context(), chi.URLParam(r, "id"), requester(r), model.LessonUpdate{
		Title:       req.Title,
		Content:     req.Content,
		IsCompleted: req.IsCompleted,
	})
	if err != nil {
		s.writeServiceError(w, r, err, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, l)
}

func (s *Server) handleDeleteLesson(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.courses.DeleteLesson(r.Context(), id, requester(r)); err != nil {
		s.writeServiceError(w, r, err, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id, "status": "deleted"})
}

// ---------------------------------------------------------------------------
// GET /api/auth/profile
// ---------------------------------------------------------------------------

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	c := claimsFrom(r.Context())
	u, err := s.courses.UpsertUser(r.Context(), c.Subject, c.Email, c.Name)
	if err != nil {
		s.writeServiceError(w, r, err, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, u)
}
