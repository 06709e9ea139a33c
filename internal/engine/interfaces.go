package engine

import (
	"context"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/yangwenmai/coursegen/internal/model"
)

// ModelClient abstracts LLM calls. Implementations can wrap OpenAI, local models, etc.
type ModelClient interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// OutlineGenerator turns a topic into a course outline.
type OutlineGenerator interface {
	GenerateOutline(ctx context.Context, topic string) (*Outline, error)
}

// ContentGenerator produces the body of a lesson from its title.
type ContentGenerator interface {
	GenerateContent(ctx context.Context, lessonTitle string) ([]model.ContentBlock, error)
}

// VideoFinder looks up a short video for a lesson. It never fails: any
// internal error resolves to "" (no video).
type VideoFinder interface {
	FindVideo(ctx context.Context, lessonTitle string) string
}

// Outline is the generated skeleton of a course.
type Outline struct {
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Tags        []string        `json:"tags"`
	Modules     []OutlineModule `json:"modules"`
}

// OutlineModule is one module of an outline.
type OutlineModule struct {
	Title   string        `json:"title"`
	Lessons []LessonEntry `json:"lessons"`
}

// LessonEntry is a lesson title inside an outline. Providers return either a
// bare string or an object with a "title" field; both decode here.
type LessonEntry struct {
	Title string `json:"title"`
}

func (e *LessonEntry) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		e.Title = strings.TrimSpace(s)
		return nil
	}
	var obj struct {
		Title string `json:"title"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	e.Title = strings.TrimSpace(obj.Title)
	return nil
}

// LessonCount returns the number of lessons across all modules.
func (o *Outline) LessonCount() int {
	n := 0
	for _, m := range o.Modules {
		n += len(m.Lessons)
	}
	return n
}
