package engine

import "fmt"

func buildOutlinePrompt(topic string) string {
	return fmt.Sprintf(`You are an expert instructional designer. Create a structured course outline.

Topic: "%s"

Output ONLY a single valid JSON object with this exact structure (no markdown, no explanation):
{
  "title": "A compelling course title",
  "description": "A brief, one-sentence course description",
  "tags": ["tag1", "tag2", "tag3", "tag4", "tag5"],
  "modules": [
    {"title": "Title of Module 1", "lessons": ["Title of Lesson 1.1", "Title of Lesson 1.2"]}
  ]
}

Rules:
- 3 to 5 modules, each with 2 to 5 lesson titles
- Lesson titles must be specific enough to teach on their own
- Exactly 5 short lowercase tags`, topic)
}

func buildLessonPrompt(lessonTitle string) string {
	return fmt.Sprintf(`You are an expert educator. Write the content of a single lesson.

Lesson title: "%s"

Output ONLY a single valid JSON object with this exact structure (no markdown, no explanation):
{
  "content": [
    {"type": "h2", "content": "Introduction to the topic"},
    {"type": "p", "content": "A detailed paragraph..."},
    {"type": "ul", "items": ["point one", "point two"]},
    {"type": "code", "content": "fmt.Println(\"hello\")"}
  ]
}

Rules:
- Supported types: "h2", "h3", "p", "code", "ul", "ol"
- "ul" and "ol" use "items" (a list of strings); every other type uses "content" (a string)
- 5 to 10 blocks, starting with an "h2"
- Only use "code" when the subject is technical`, lessonTitle)
}
