package model

import (
	"strings"
	"time"

	json "github.com/goccy/go-json"
)

// BlockKind tags how a content block is rendered.
type BlockKind string

// Content block kinds
const (
	KindHeading2      BlockKind = "h2"
	KindHeading3      BlockKind = "h3"
	KindParagraph     BlockKind = "p"
	KindCode          BlockKind = "code"
	KindUnorderedList BlockKind = "ul"
	KindOrderedList   BlockKind = "ol"
)

var kindAliases = map[string]BlockKind{
	"h2":              KindHeading2,
	"heading-level-2": KindHeading2,
	"heading2":        KindHeading2,
	"h3":              KindHeading3,
	"heading-level-3": KindHeading3,
	"heading3":        KindHeading3,
	"p":               KindParagraph,
	"paragraph":       KindParagraph,
	"text":            KindParagraph,
	"code":            KindCode,
	"ul":              KindUnorderedList,
	"unordered-list":  KindUnorderedList,
	"list":            KindUnorderedList,
	"ol":              KindOrderedList,
	"ordered-list":    KindOrderedList,
}

// ParseBlockKind maps a provider or client supplied kind name to a BlockKind.
func ParseBlockKind(s string) (BlockKind, bool) {
	k, ok := kindAliases[strings.ToLower(strings.TrimSpace(s))]
	return k, ok
}

// IsList reports whether the kind carries an items payload.
func (k BlockKind) IsList() bool {
	return k == KindUnorderedList || k == KindOrderedList
}

// ContentBlock is one unit of lesson body. Text is used by headings,
// paragraphs and code; Items by lists.
type ContentBlock struct {
	Type  BlockKind `json:"type"`
	Text  string    `json:"content,omitempty"`
	Items []string  `json:"items,omitempty"`
}

// UnmarshalJSON accepts kind aliases and a "content" field given either as a
// string or as a list of strings.
func (b *ContentBlock) UnmarshalJSON(data []byte) error {
	var raw struct {
		Type    string          `json:"type"`
		Content json.RawMessage `json:"content"`
		Text    string          `json:"text"`
		Items   []string        `json:"items"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	kind, ok := ParseBlockKind(raw.Type)
	if !ok {
		kind = BlockKind(raw.Type)
	}
	*b = ContentBlock{Type: kind, Text: raw.Text, Items: raw.Items}

	if len(raw.Content) > 0 && string(raw.Content) != "null" {
		var s string
		if err := json.Unmarshal(raw.Content, &s); err == nil {
			b.Text = s
		} else {
			var items []string
			if err := json.Unmarshal(raw.Content, &items); err != nil {
				return err
			}
			b.Items = items
		}
	}

	if kind.IsList() && len(b.Items) == 0 && b.Text != "" {
		for _, line := range strings.Split(b.Text, "\n") {
			if line = strings.TrimSpace(line); line != "" {
				b.Items = append(b.Items, line)
			}
		}
		b.Text = ""
	}
	return nil
}

// Valid reports whether the block has a known kind and a payload of the
// shape that kind requires.
func (b ContentBlock) Valid() bool {
	switch b.Type {
	case KindHeading2, KindHeading3, KindParagraph, KindCode:
		return strings.TrimSpace(b.Text) != ""
	case KindUnorderedList, KindOrderedList:
		return len(b.Items) > 0
	default:
		return false
	}
}

// CleanBlocks returns the valid blocks of in, preserving order.
func CleanBlocks(in []ContentBlock) []ContentBlock {
	out := make([]ContentBlock, 0, len(in))
	for _, b := range in {
		if b.Valid() {
			out = append(out, b)
		}
	}
	return out
}

// Lesson is a single lesson. Empty Content means the lesson is still pending
// hydration.
type Lesson struct {
	ID          string         `json:"id"`
	ModuleID    string         `json:"module_id"`
	CourseID    string         `json:"course_id"`
	Title       string         `json:"title"`
	Position    int            `json:"position"`
	Content     []ContentBlock `json:"content"`
	VideoID     string         `json:"video_id,omitempty"`
	IsCompleted bool           `json:"is_completed"`
	CreatedAt   string         `json:"created_at"`
	UpdatedAt   string         `json:"updated_at"`
}

// LessonUpdate carries optional lesson edits. Nil fields are left unchanged.
type LessonUpdate struct {
	Title       string
	Content     []ContentBlock
	IsCompleted *bool
}

// NewLesson creates a Lesson at the given position inside a module.
func NewLesson(id, moduleID, courseID, title string, position int, content []ContentBlock, videoID string) Lesson {
	now := time.Now().UTC().Format(time.RFC3339)
	if content == nil {
		content = []ContentBlock{}
	}
	return Lesson{
		ID:        id,
		ModuleID:  moduleID,
		CourseID:  courseID,
		Title:     title,
		Position:  position,
		Content:   content,
		VideoID:   videoID,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Pending reports whether the lesson still needs content generated.
func (l *Lesson) Pending() bool {
	return len(l.Content) == 0
}

// Apply merges u into l.
func (l *Lesson) Apply(u LessonUpdate) {
	if u.Title != "" {
		l.Title = u.Title
	}
	if len(u.Content) > 0 {
		l.Content = u.Content
	}
	if u.IsCompleted != nil {
		l.IsCompleted = *u.IsCompleted
	}
}
