package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/yangwenmai/coursegen/internal/model"
)

// LLMOutlineGenerator implements OutlineGenerator on top of a ModelClient.
type LLMOutlineGenerator struct {
	model ModelClient
}

// NewOutlineGenerator creates an outline generator backed by mc.
func NewOutlineGenerator(mc ModelClient) *LLMOutlineGenerator {
	return &LLMOutlineGenerator{model: mc}
}

// GenerateOutline asks the model for an outline and validates its shape.
// Every failure is a *model.ProviderError with Op "outline".
func (g *LLMOutlineGenerator) GenerateOutline(ctx context.Context, topic string) (*Outline, error) {
	raw, err := g.model.Complete(ctx, buildOutlinePrompt(topic))
	if err != nil {
		return nil, &model.ProviderError{Op: "outline", Err: err, Retryable: true}
	}

	var o Outline
	if err := json.Unmarshal([]byte(extractJSON(raw)), &o); err != nil {
		return nil, &model.ProviderError{Op: "outline", Err: fmt.Errorf("parse: %w", err), Retryable: true}
	}
	if err := o.normalize(); err != nil {
		return nil, &model.ProviderError{Op: "outline", Err: err, Retryable: true}
	}
	return &o, nil
}

// normalize trims names and drops empty modules and lessons.
func (o *Outline) normalize() error {
	o.Title = strings.TrimSpace(o.Title)
	o.Description = strings.TrimSpace(o.Description)
	if o.Title == "" {
		return errors.New("outline has no title")
	}

	tags := make([]string, 0, len(o.Tags))
	for _, t := range o.Tags {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	o.Tags = tags

	modules := make([]OutlineModule, 0, len(o.Modules))
	for _, m := range o.Modules {
		m.Title = strings.TrimSpace(m.Title)
		lessons := make([]LessonEntry, 0, len(m.Lessons))
		for _, l := range m.Lessons {
			if l.Title != "" {
				lessons = append(lessons, l)
			}
		}
		if m.Title == "" || len(lessons) == 0 {
			continue
		}
		m.Lessons = lessons
		modules = append(modules, m)
	}
	if len(modules) == 0 {
		return errors.New("outline has no modules with lessons")
	}
	o.Modules = modules
	return nil
}

// LLMContentGenerator implements ContentGenerator on top of a ModelClient.
type LLMContentGenerator struct {
	model ModelClient
}

// NewContentGenerator creates a lesson content generator backed by mc.
func NewContentGenerator(mc ModelClient) *LLMContentGenerator {
	return &LLMContentGenerator{model: mc}
}

// GenerateContent asks the model for lesson blocks. The result is never
// empty on success; a response with no usable blocks is a ProviderError.
func (g *LLMContentGenerator) GenerateContent(ctx context.Context, lessonTitle string) ([]model.ContentBlock, error) {
	raw, err := g.model.Complete(ctx, buildLessonPrompt(lessonTitle))
	if err != nil {
		return nil, &model.ProviderError{Op: "content", Err: err, Retryable: true}
	}

	blocks, err := parseBlocks(extractJSON(raw))
	if err != nil {
		return nil, &model.ProviderError{Op: "content", Err: fmt.Errorf("parse: %w", err), Retryable: true}
	}
	blocks = model.CleanBlocks(blocks)
	if len(blocks) == 0 {
		return nil, &model.ProviderError{Op: "content", Err: errors.New("no usable content blocks"), Retryable: true}
	}
	return blocks, nil
}

// parseBlocks accepts a bare array of blocks or an object holding the array
// under "content", "blocks", or any other single array field.
func parseBlocks(s string) ([]model.ContentBlock, error) {
	if strings.HasPrefix(s, "[") {
		var blocks []model.ContentBlock
		err := json.Unmarshal([]byte(s), &blocks)
		return blocks, err
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(s), &obj); err != nil {
		return nil, err
	}
	for _, key := range []string{"content", "blocks", "lesson"} {
		if raw, ok := obj[key]; ok {
			var blocks []model.ContentBlock
			if err := json.Unmarshal(raw, &blocks); err == nil {
				return blocks, nil
			}
		}
	}
	for _, raw := range obj {
		var blocks []model.ContentBlock
		if err := json.Unmarshal(raw, &blocks); err == nil && len(blocks) > 0 {
			return blocks, nil
		}
	}
	return nil, errors.New("no block array in response")
}

// extractJSON strips markdown code fences and any prose around the outermost
// JSON value.
func extractJSON(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		if nl := strings.IndexByte(s, '\n'); nl >= 0 && !strings.ContainsAny(s[:nl], "{[") {
			s = s[nl+1:]
		}
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
		s = strings.TrimSpace(s)
	}
	if strings.HasPrefix(s, "{") || strings.HasPrefix(s, "[") {
		return s
	}
	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return s
	}
	closer := byte('}')
	if s[start] == '[' {
		closer = ']'
	}
	if end := strings.LastIndexByte(s, closer); end > start {
		return s[start : end+1]
	}
	return s[start:]
}
