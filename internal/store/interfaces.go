package store

import (
	"context"

	"github.com/yangwenmai/coursegen/internal/model"
)

// CourseReader provides read access to courses.
type CourseReader interface {
	GetCourse(ctx context.Context, id string) (*model.Course, error)
	GetCourseTree(ctx context.Context, id string) (*model.CourseTree, error)
	ListCoursesByOwner(ctx context.Context, owner string) ([]model.Course, error)
	FindCourseForTopic(ctx context.Context, owner, key, slug, title string) (*model.Course, error)
	SlugExists(ctx context.Context, owner, slug string) (bool, error)
}

// CourseWriter provides write access to courses and their module trees.
type CourseWriter interface {
	CreateCourse(ctx context.Context, c model.Course) error
	UpdateCourse(ctx context.Context, c model.Course) error
	TouchCourse(ctx context.Context, id string) error
	CreateModuleWithLessons(ctx context.Context, m model.Module, lessons []model.Lesson) error
	DeleteCourseCascade(ctx context.Context, id string) error
}

// LessonStore provides access to lessons.
type LessonStore interface {
	GetLesson(ctx context.Context, id string) (*model.Lesson, error)
	UpdateLesson(ctx context.Context, l model.Lesson) error
	UpdateLessonContent(ctx context.Context, id string, content []model.ContentBlock, videoID string) error
	DeleteLessonAndDetach(ctx context.Context, id string) error
	RecordHydrationFailure(ctx context.Context, id string) error
	ListPendingLessons(ctx context.Context, limit int) ([]model.Lesson, error)
}

// UserStore provides access to user records.
type UserStore interface {
	UpsertUser(ctx context.Context, u model.User) error
	GetUser(ctx context.Context, sub string) (*model.User, error)
}

// Repository combines all persistence operations.
type Repository interface {
	CourseReader
	CourseWriter
	LessonStore
	UserStore
}
