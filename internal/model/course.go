package model

import "time"

// Course is a generated course owned by a single external identity.
type Course struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
	Owner       string   `json:"owner"`
	Slug        string   `json:"slug"`
	TopicKey    string   `json:"-"`
	CreatedAt   string   `json:"created_at"`
	UpdatedAt   string   `json:"updated_at"`
}

// Module groups lessons inside a course. Position is the declaration order
// produced by the outline.
type Module struct {
	ID        string `json:"id"`
	CourseID  string `json:"course_id"`
	Title     string `json:"title"`
	Position  int    `json:"position"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

// ModuleWithLessons is a Module together with its ordered lessons.
type ModuleWithLessons struct {
	Module
	Lessons []Lesson `json:"lessons"`
}

// CourseTree is a Course with its full module/lesson hierarchy.
type CourseTree struct {
	Course
	Modules []ModuleWithLessons `json:"modules"`
}

// CourseUpdate carries optional edits; empty fields keep existing values.
type CourseUpdate struct {
	Title       string
	Description string
	Tags        []string
}

// NewCourse creates a Course shell with timestamps set. topicKey is the
// case-folded topic the course was generated for.
func NewCourse(id, title, description string, tags []string, owner, slug, topicKey string) Course {
	now := time.Now().UTC().Format(time.RFC3339)
	if tags == nil {
		tags = []string{}
	}
	return Course{
		ID:          id,
		Title:       title,
		Description: description,
		Tags:        tags,
		Owner:       owner,
		Slug:        slug,
		TopicKey:    topicKey,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// NewModule creates a Module at the given position.
func NewModule(id, courseID, title string, position int) Module {
	now := time.Now().UTC().Format(time.RFC3339)
	return Module{
		ID:        id,
		CourseID:  courseID,
		Title:     title,
		Position:  position,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Apply merges non-empty fields of u into c.
func (c *Course) Apply(u CourseUpdate) {
	if u.Title != "" {
		c.Title = u.Title
	}
	if u.Description != "" {
		c.Description = u.Description
	}
	if len(u.Tags) > 0 {
		c.Tags = u.Tags
	}
}
