// Package course assembles generated courses, hydrates their lessons on
// demand and enforces ownership on edits and deletes.
package course

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/yangwenmai/coursegen/internal/engine"
	"github.com/yangwenmai/coursegen/internal/logger"
	"github.com/yangwenmai/coursegen/internal/metrics"
	"github.com/yangwenmai/coursegen/internal/model"
	"github.com/yangwenmai/coursegen/internal/store"
)

var (
	// ErrEmptyTopic is returned by Assemble for a blank topic.
	ErrEmptyTopic = errors.New("topic is required")
	// ErrMissingEmail is returned by UpsertUser when the identity has no email.
	ErrMissingEmail = errors.New("email is required")
)

// DefaultConcurrency is the lesson fan-out width when none is configured.
const DefaultConcurrency = 4

// Service orchestrates course assembly, lazy hydration and cascade deletion.
type Service struct {
	store       store.Repository
	outline     engine.OutlineGenerator
	content     engine.ContentGenerator
	videos      engine.VideoFinder
	log         *logger.Logger
	concurrency int
}

// NewService wires a Service. concurrency bounds how many lessons are
// generated at once; values below 1 fall back to DefaultConcurrency.
func NewService(
	st store.Repository,
	og engine.OutlineGenerator,
	cg engine.ContentGenerator,
	vf engine.VideoFinder,
	log *logger.Logger,
	concurrency int,
) *Service {
	if concurrency < 1 {
		concurrency = DefaultConcurrency
	}
	if vf == nil {
		vf = engine.NoopFinder{}
	}
	return &Service{
		store:       st,
		outline:     og,
		content:     cg,
		videos:      vf,
		log:         log,
		concurrency: concurrency,
	}
}

// ---------------------------------------------------------------------------
// Assembly
// ---------------------------------------------------------------------------

// lessonResult is the outcome of generating one lesson.
type lessonResult struct {
	content []model.ContentBlock
	videoID string
	err     error
}

// Assemble returns the id of a course for topic owned by owner and whether
// it was newly created. If owner already has a course matching the topic,
// its id is returned with created false and no provider call is made.
// Otherwise a new course is generated and persisted.
//
// An outline failure aborts with a *model.ProviderError and nothing is
// stored. A content failure for a single lesson only leaves that lesson
// empty; it is filled in later by EnsureHydrated.
func (s *Service) Assemble(ctx context.Context, topic, owner string) (string, bool, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return "", false, ErrEmptyTopic
	}
	if owner == "" {
		return "", false, model.ErrUnauthorized
	}

	key := topicKey(topic)
	existing, err := s.store.FindCourseForTopic(ctx, owner, key, normalize(topic), topic)
	if err != nil {
		return "", false, fmt.Errorf("lookup existing course: %w", err)
	}
	if existing != nil {
		metrics.CoursesAssembled.WithLabelValues("existing").Inc()
		s.log.Info("course already exists for topic", "topic", topic, "course_id", existing.ID, "owner", owner)
		return existing.ID, false, nil
	}

	outline, err := s.outline.GenerateOutline(ctx, topic)
	if err != nil {
		metrics.CoursesAssembled.WithLabelValues("failed").Inc()
		return "", false, fmt.Errorf("generate outline for %q: %w", topic, err)
	}

	c, err := s.createShell(ctx, owner, key, outline)
	if err != nil {
		metrics.CoursesAssembled.WithLabelValues("failed").Inc()
		return "", false, err
	}
	log := s.log.With("course_id", c.ID, "slug", c.Slug)
	log.Info("course shell created", "modules", len(outline.Modules), "lessons", outline.LessonCount())

	results := s.generateLessons(ctx, outline)

	// The course row already exists, so finish writing the tree even if the
	// caller went away; empty lessons are hydrated later.
	persistCtx := context.WithoutCancel(ctx)
	pending := 0
	for mi, om := range outline.Modules {
		m := model.NewModule(uuid.NewString(), c.ID, om.Title, mi)
		lessons := make([]model.Lesson, len(om.Lessons))
		for li, entry := range om.Lessons {
			r := results[mi][li]
			if r.err != nil {
				pending++
				log.Warn("lesson content failed, leaving it for hydration", "lesson", entry.Title, "error", r.err)
			}
			lessons[li] = model.NewLesson(uuid.NewString(), m.ID, c.ID, entry.Title, li, r.content, r.videoID)
		}
		if err := s.store.CreateModuleWithLessons(persistCtx, m, lessons); err != nil {
			metrics.CoursesAssembled.WithLabelValues("failed").Inc()
			return "", false, fmt.Errorf("persist module %q: %w", om.Title, err)
		}
	}
	if err := s.store.TouchCourse(persistCtx, c.ID); err != nil {
		return "", false, fmt.Errorf("finalize course: %w", err)
	}

	total := outline.LessonCount()
	metrics.LessonsGenerated.WithLabelValues("ready").Add(float64(total - pending))
	metrics.LessonsGenerated.WithLabelValues("pending").Add(float64(pending))
	metrics.CoursesAssembled.WithLabelValues("created").Inc()
	log.Info("course assembled", "lessons", total, "pending", pending)
	return c.ID, true, nil
}

// createShell allocates a slug and inserts the course row. A unique
// violation from a concurrent assembly triggers one more slug search; a second
// conflict is returned as model.ErrConflict.
func (s *Service) createShell(ctx context.Context, owner, key string, o *engine.Outline) (*model.Course, error) {
	base := Slugify(o.Title)
	for attempt := 0; ; attempt++ {
		slug, err := allocateSlug(ctx, s.store, owner, base)
		if err != nil {
			return nil, err
		}
		c := model.NewCourse(uuid.NewString(), o.Title, o.Description, o.Tags, owner, slug, key)
		err = s.store.CreateCourse(ctx, c)
		if err == nil {
			return &c, nil
		}
		if !errors.Is(err, model.ErrConflict) || attempt > 0 {
			return nil, fmt.Errorf("create course: %w", err)
		}
		s.log.Warn("slug taken concurrently, searching again", "slug", slug, "owner", owner)
	}
}

// generateLessons fans out content and video generation over every lesson of
// the outline. Results are indexed [module][lesson] in declaration order.
// Individual failures are recorded in the slot, never returned.
func (s *Service) generateLessons(ctx context.Context, o *engine.Outline) [][]lessonResult {
	results := make([][]lessonResult, len(o.Modules))
	for mi, m := range o.Modules {
		results[mi] = make([]lessonResult, len(m.Lessons))
	}

	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for mi, m := range o.Modules {
		for li, entry := range m.Lessons {
			mi, li, entry := mi, li, entry
			g.Go(func() error {
				results[mi][li] = s.generateLesson(ctx, entry.Title, "")
				return nil
			})
		}
	}
	g.Wait()
	return results
}

// generateLesson runs content generation and the video search for one lesson
// concurrently. The search is skipped when knownVideo is already set.
func (s *Service) generateLesson(ctx context.Context, title, knownVideo string) lessonResult {
	r := lessonResult{videoID: knownVideo}

	var g errgroup.Group
	if knownVideo == "" {
		g.Go(func() error {
			r.videoID = s.videos.FindVideo(ctx, title)
			return nil
		})
	}
	g.Go(func() error {
		r.content, r.err = s.content.GenerateContent(ctx, title)
		return nil
	})
	g.Wait()

	if r.err != nil {
		r.content = nil
		var pe *model.ProviderError
		if !errors.As(r.err, &pe) {
			r.err = &model.ProviderError{Op: "content", Err: r.err, Retryable: true}
		}
	}
	return r
}

// ---------------------------------------------------------------------------
// Hydration
// ---------------------------------------------------------------------------

// EnsureHydrated returns the lesson with content. A lesson that already has
// content is returned as stored without calling any provider. A pending
// lesson gets content and, if missing, a video generated and persisted.
// Concurrent hydrations of the same lesson are not coordinated; the last
// write wins.
func (s *Service) EnsureHydrated(ctx context.Context, lessonID string) (*model.Lesson, error) {
	l, err := s.store.GetLesson(ctx, lessonID)
	if err != nil {
		return nil, err
	}
	if !l.Pending() {
		return l, nil
	}

	r := s.generateLesson(ctx, l.Title, l.VideoID)
	if r.err != nil {
		metrics.Hydrations.WithLabelValues("failed").Inc()
		s.log.Warn("lesson hydration failed", "lesson_id", l.ID, "error", r.err)
		if err := s.store.RecordHydrationFailure(context.WithoutCancel(ctx), l.ID); err != nil {
			s.log.Warn("record hydration failure", "lesson_id", l.ID, "error", err)
		}
		return nil, fmt.Errorf("hydrate lesson %s: %w", l.ID, r.err)
	}

	if err := s.store.UpdateLessonContent(ctx, l.ID, r.content, r.videoID); err != nil {
		metrics.Hydrations.WithLabelValues("failed").Inc()
		return nil, fmt.Errorf("save hydrated lesson %s: %w", l.ID, err)
	}
	metrics.Hydrations.WithLabelValues("ok").Inc()
	s.log.Info("lesson hydrated", "lesson_id", l.ID, "blocks", len(r.content), "has_video", r.videoID != "")

	l.Content = r.content
	if r.videoID != "" {
		l.VideoID = r.videoID
	}
	return l, nil
}

// ---------------------------------------------------------------------------
// Reads and edits
// ---------------------------------------------------------------------------

// GetCourse returns the full course tree.
func (s *Service) GetCourse(ctx context.Context, id string) (*model.CourseTree, error) {
	return s.store.GetCourseTree(ctx, id)
}

// ListCourses returns the owner's courses, newest first.
func (s *Service) ListCourses(ctx context.Context, owner string) ([]model.Course, error) {
	if owner == "" {
		return nil, model.ErrUnauthorized
	}
	courses, err := s.store.ListCoursesByOwner(ctx, owner)
	if err != nil {
		return nil, err
	}
	if courses == nil {
		courses = []model.Course{}
	}
	return courses, nil
}

// UpdateCourse applies u to a course owned by requester. The slug never
// changes.
func (s *Service) UpdateCourse(ctx context.Context, id, requester string, u model.CourseUpdate) (*model.Course, error) {
	c, err := s.ownedCourse(ctx, id, requester)
	if err != nil {
		return nil, err
	}
	c.Apply(u)
	if err := s.store.UpdateCourse(ctx, *c); err != nil {
		return nil, fmt.Errorf("update course %s: %w", id, err)
	}
	return s.store.GetCourse(ctx, id)
}

// UpdateLesson applies u to a lesson whose course is owned by requester.
func (s *Service) UpdateLesson(ctx context.Context, id, requester string, u model.LessonUpdate) (*model.Lesson, error) {
	l, err := s.store.GetLesson(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := s.ownedCourse(ctx, l.CourseID, requester); err != nil {
		return nil, err
	}
	u.Content = model.CleanBlocks(u.Content)
	l.Apply(u)
	if err := s.store.UpdateLesson(ctx, *l); err != nil {
		return nil, fmt.Errorf("update lesson %s: %w", id, err)
	}
	return s.store.GetLesson(ctx, id)
}

// UpsertUser records the identity behind a token and returns the stored user.
// An identity without an email is rejected with ErrMissingEmail.
func (s *Service) UpsertUser(ctx context.Context, sub, email, name string) (*model.User, error) {
	if sub == "" {
		return nil, model.ErrUnauthorized
	}
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, ErrMissingEmail
	}
	if err := s.store.UpsertUser(ctx, model.NewUser(sub, email, name)); err != nil {
		return nil, fmt.Errorf("upsert user: %w", err)
	}
	return s.store.GetUser(ctx, sub)
}

// ---------------------------------------------------------------------------
// Deletion
// ---------------------------------------------------------------------------

// DeleteCourse removes a course with all its modules and lessons. Nothing is
// removed unless requester owns the course and every delete succeeds.
func (s *Service) DeleteCourse(ctx context.Context, courseID, requester string) error {
	if _, err := s.ownedCourse(ctx, courseID, requester); err != nil {
		return err
	}
	if err := s.store.DeleteCourseCascade(ctx, courseID); err != nil {
		return fmt.Errorf("delete course %s: %w", courseID, err)
	}
	s.log.Info("course deleted", "course_id", courseID, "owner", requester)
	return nil
}

// DeleteLesson removes a lesson from its module's ordering and deletes it,
// atomically. requester must own the parent course.
func (s *Service) DeleteLesson(ctx context.Context, lessonID, requester string) error {
	l, err := s.store.GetLesson(ctx, lessonID)
	if err != nil {
		return err
	}
	if _, err := s.ownedCourse(ctx, l.CourseID, requester); err != nil {
		return err
	}
	if err := s.store.DeleteLessonAndDetach(ctx, lessonID); err != nil {
		return fmt.Errorf("delete lesson %s: %w", lessonID, err)
	}
	s.log.Info("lesson deleted", "lesson_id", lessonID, "course_id", l.CourseID)
	return nil
}

// ownedCourse loads a course and checks that requester owns it.
func (s *Service) ownedCourse(ctx context.Context, id, requester string) (*model.Course, error) {
	c, err := s.store.GetCourse(ctx, id)
	if err != nil {
		return nil, err
	}
	if requester == "" || c.Owner != requester {
		return nil, model.ErrUnauthorized
	}
	return c, nil
}
