package engine

import (
	"context"
	"regexp"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/yangwenmai/coursegen/internal/model"
)

var (
	stubTopicRe  = regexp.MustCompile(`Topic: "([^"]*)"`)
	stubLessonRe = regexp.MustCompile(`Lesson title: "([^"]*)"`)
)

// StubModelClient returns canned LLM responses (for development/testing).
// It answers outline and lesson prompts with deterministic JSON derived from
// the topic or lesson title found in the prompt.
type StubModelClient struct{}

func (m *StubModelClient) Complete(_ context.Context, prompt string) (string, error) {
	if match := stubTopicRe.FindStringSubmatch(prompt); match != nil {
		topic := strings.TrimSpace(match[1])
		o := Outline{
			Title:       topic + " Fundamentals",
			Description: "A short, practical introduction to " + topic + ".",
			Tags:        []string{"stub", "intro", "fundamentals"},
			Modules: []OutlineModule{
				{Title: "Getting Started", Lessons: []LessonEntry{{Title: "What is " + topic}, {Title: "Why " + topic + " matters"}}},
				{Title: "Core Ideas", Lessons: []LessonEntry{{Title: "Key concepts of " + topic}, {Title: "Common mistakes"}}},
				{Title: "Next Steps", Lessons: []LessonEntry{{Title: "Practice plan"}}},
			},
		}
		b, _ := json.Marshal(o)
		return string(b), nil
	}

	if match := stubLessonRe.FindStringSubmatch(prompt); match != nil {
		title := match[1]
		content := map[string][]model.ContentBlock{
			"content": {
				{Type: model.KindHeading2, Text: title},
				{Type: model.KindParagraph, Text: "[Stub] This lesson explains " + title + " step by step."},
				{Type: model.KindUnorderedList, Items: []string{"Understand the idea", "See an example", "Try it yourself"}},
				{Type: model.KindHeading3, Text: "Summary"},
				{Type: model.KindParagraph, Text: "[Stub] You now know the basics of " + title + "."},
			},
		}
		b, _ := json.Marshal(content)
		return string(b), nil
	}

	return "{}", nil
}

// StubFinder returns a fixed video id for every lesson.
type StubFinder struct {
	VideoID string
}

func (f StubFinder) FindVideo(context.Context, string) string { return f.VideoID }
