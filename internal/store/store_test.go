package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/yangwenmai/coursegen/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := OpenSQLite(dbPath)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	s, err := New(db)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return s
}

// seedCourse creates a course with the given number of modules, each with
// lessonsPer lessons. Lesson IDs are "<courseID>-m<i>-l<j>".
func seedCourse(t *testing.T, s *Store, id, owner, slug string, modules, lessonsPer int) {
	t.Helper()
	ctx := context.Background()
	c := model.NewCourse(id, "Course "+id, "desc", []string{"a", "b"}, owner, slug, slug)
	if err := s.CreateCourse(ctx, c); err != nil {
		t.Fatalf("CreateCourse: %v", err)
	}
	for i := 0; i < modules; i++ {
		m := model.NewModule(fmt.Sprintf("%s-m%d", id, i), id, fmt.Sprintf("Module %d", i), i)
		var lessons []model.Lesson
		for j := 0; j < lessonsPer; j++ {
			lessons = append(lessons, model.NewLesson(
				fmt.Sprintf("%s-m%d-l%d", id, i, j), m.ID, id, fmt.Sprintf("Lesson %d.%d", i, j), j,
				[]model.ContentBlock{{Type: model.KindParagraph, Text: "body"}}, ""))
		}
		if err := s.CreateModuleWithLessons(ctx, m, lessons); err != nil {
			t.Fatalf("CreateModuleWithLessons: %v", err)
		}
	}
}

func countRows(t *testing.T, s *Store, table, courseID string) int {
	t.Helper()
	col := "course_id"
	if table == "courses" {
		col = "id"
	}
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(1) FROM `+table+` WHERE `+col+` = ?`, courseID).Scan(&n); err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return n
}

func TestMigrate_Idempotent(t *testing.T) {
	s := newTestStore(t)
	if err := s.migrate(); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
	var version int
	if err := s.db.QueryRow(`SELECT version FROM schema_version`).Scan(&version); err != nil {
		t.Fatal(err)
	}
	if version != 3 {
		t.Errorf("schema version = %d, want 3", version)
	}
}

func TestCreateAndGetCourseTree(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedCourse(t, s, "c1", "u1", "go-basics", 2, 3)

	tree, err := s.GetCourseTree(ctx, "c1")
	if err != nil {
		t.Fatalf("GetCourseTree: %v", err)
	}
	if tree.Owner != "u1" || tree.Slug != "go-basics" {
		t.Errorf("course = %+v", tree.Course)
	}
	if len(tree.Tags) != 2 || tree.Tags[0] != "a" {
		t.Errorf("Tags = %v, want [a b]", tree.Tags)
	}
	if len(tree.Modules) != 2 {
		t.Fatalf("modules = %d, want 2", len(tree.Modules))
	}
	for i, m := range tree.Modules {
		if m.Position != i {
			t.Errorf("module %d position = %d", i, m.Position)
		}
		if len(m.Lessons) != 3 {
			t.Fatalf("module %d lessons = %d, want 3", i, len(m.Lessons))
		}
		for j, l := range m.Lessons {
			want := fmt.Sprintf("c1-m%d-l%d", i, j)
			if l.ID != want {
				t.Errorf("lesson order: got %q, want %q", l.ID, want)
			}
		}
	}
}

func TestGetCourse_NotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetCourse(context.Background(), "nope")
	if !errors.Is(err, model.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestCreateCourse_SlugConflict(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.CreateCourse(ctx, model.NewCourse("c1", "Intro to Go", "d", nil, "u1", "intro-to-go", "")); err != nil {
		t.Fatalf("first CreateCourse: %v", err)
	}
	err := s.CreateCourse(ctx, model.NewCourse("c2", "Intro to Go", "d", nil, "u1", "intro-to-go", ""))
	if !errors.Is(err, model.ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict", err)
	}

	// Same slug for another owner is fine.
	if err := s.CreateCourse(ctx, model.NewCourse("c3", "Intro to Go", "d", nil, "u2", "intro-to-go", "")); err != nil {
		t.Errorf("other owner CreateCourse: %v", err)
	}
}

func TestFindCourseForTopic(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	for _, c := range []model.Course{
		model.NewCourse("c1", "Photosynthesis Basics", "d", nil, "u1", "photosynthesis-basics", "photosynthesis"),
		model.NewCourse("c2", "Machine Learning Basics", "d", nil, "u1", "machine-learning-basics", "机器学习"),
		model.NewCourse("c3", "C++ Programming", "d", nil, "u1", "c-programming", "c++"),
	} {
		if err := s.CreateCourse(ctx, c); err != nil {
			t.Fatal(err)
		}
	}

	tests := []struct {
		name   string
		owner  string
		key    string
		slug   string
		title  string
		wantID string
	}{
		{"by topic key", "u1", "photosynthesis", "photosynthesis", "Photosynthesis", "c1"},
		{"by slug", "u1", "whatever", "photosynthesis-basics", "whatever", "c1"},
		{"by title ignoring case", "u1", "", "", "photosynthesis BASICS", "c1"},
		{"non-latin topic key", "u1", "机器学习", "", "机器学习", "c2"},
		{"same slug form, different topic", "u1", "c#", "c", "C#", ""},
		{"exact symbol topic", "u1", "c++", "c", "C++", "c3"},
		{"other owner", "u2", "photosynthesis", "photosynthesis", "Photosynthesis", ""},
		{"no match", "u1", "chemistry", "chemistry", "Chemistry", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.FindCourseForTopic(ctx, tt.owner, tt.key, tt.slug, tt.title)
			if err != nil {
				t.Fatalf("FindCourseForTopic: %v", err)
			}
			gotID := ""
			if got != nil {
				gotID = got.ID
			}
			if gotID != tt.wantID {
				t.Errorf("match = %q, want %q", gotID, tt.wantID)
			}
		})
	}
}

func TestSlugExists(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedCourse(t, s, "c1", "u1", "go", 0, 0)

	if ok, err := s.SlugExists(ctx, "u1", "go"); err != nil || !ok {
		t.Errorf("SlugExists(u1, go) = %v, %v", ok, err)
	}
	if ok, _ := s.SlugExists(ctx, "u2", "go"); ok {
		t.Error("slug should be scoped per owner")
	}
}

func TestListCoursesByOwner(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedCourse(t, s, "c1", "u1", "one", 0, 0)
	seedCourse(t, s, "c2", "u1", "two", 0, 0)
	seedCourse(t, s, "c3", "u2", "three", 0, 0)

	got, err := s.ListCoursesByOwner(ctx, "u1")
	if err != nil {
		t.Fatalf("ListCoursesByOwner: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].ID != "c2" {
		t.Errorf("newest first: got %q first", got[0].ID)
	}
}

func TestUpdateCourse(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedCourse(t, s, "c1", "u1", "go", 0, 0)

	c, _ := s.GetCourse(ctx, "c1")
	c.Apply(model.CourseUpdate{Title: "Renamed", Tags: []string{"x"}})
	if err := s.UpdateCourse(ctx, *c); err != nil {
		t.Fatalf("UpdateCourse: %v", err)
	}
	got, _ := s.GetCourse(ctx, "c1")
	if got.Title != "Renamed" || len(got.Tags) != 1 || got.Slug != "go" {
		t.Errorf("after update = %+v", got)
	}

	missing := model.NewCourse("ghost", "t", "d", nil, "u1", "ghost", "")
	if err := s.UpdateCourse(ctx, missing); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("update missing err = %v, want ErrNotFound", err)
	}
}

func TestDeleteCourseCascade(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedCourse(t, s, "c1", "u1", "doomed", 2, 2)
	seedCourse(t, s, "c2", "u1", "kept", 1, 1)

	if err := s.DeleteCourseCascade(ctx, "c1"); err != nil {
		t.Fatalf("DeleteCourseCascade: %v", err)
	}
	for _, table := range []string{"courses", "modules", "lessons"} {
		if n := countRows(t, s, table, "c1"); n != 0 {
			t.Errorf("%s rows for c1 = %d, want 0", table, n)
		}
	}
	if n := countRows(t, s, "lessons", "c2"); n != 1 {
		t.Errorf("sibling course lessons = %d, want 1", n)
	}
}

func TestDeleteCourseCascade_RollsBackOnFailure(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedCourse(t, s, "c1", "u1", "sticky", 2, 2)

	// Fail the last statement of the cascade after lessons and modules are gone.
	if _, err := s.db.Exec(`CREATE TRIGGER fail_course_delete BEFORE DELETE ON courses
		BEGIN SELECT RAISE(ABORT, 'simulated failure'); END;`); err != nil {
		t.Fatalf("create trigger: %v", err)
	}

	if err := s.DeleteCourseCascade(ctx, "c1"); err == nil {
		t.Fatal("expected error from simulated failure")
	}

	want := map[string]int{"courses": 1, "modules": 2, "lessons": 4}
	for table, n := range want {
		if got := countRows(t, s, table, "c1"); got != n {
			t.Errorf("%s rows = %d, want %d (transaction should roll back)", table, got, n)
		}
	}
}

func TestDeleteCourseCascade_NotFound(t *testing.T) {
	s := newTestStore(t)
	if err := s.DeleteCourseCascade(context.Background(), "nope"); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestDeleteLessonAndDetach(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedCourse(t, s, "c1", "u1", "go", 1, 3)

	if err := s.DeleteLessonAndDetach(ctx, "c1-m0-l0"); err != nil {
		t.Fatalf("DeleteLessonAndDetach: %v", err)
	}

	tree, _ := s.GetCourseTree(ctx, "c1")
	lessons := tree.Modules[0].Lessons
	if len(lessons) != 2 {
		t.Fatalf("lessons = %d, want 2", len(lessons))
	}
	for i, l := range lessons {
		if l.Position != i {
			t.Errorf("lesson %q position = %d, want %d", l.ID, l.Position, i)
		}
	}
	if lessons[0].ID != "c1-m0-l1" {
		t.Errorf("first lesson = %q, want c1-m0-l1", lessons[0].ID)
	}

	if err := s.DeleteLessonAndDetach(ctx, "c1-m0-l0"); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("second delete err = %v, want ErrNotFound", err)
	}
}

func TestDeleteLessonAndDetach_RollsBackOnFailure(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedCourse(t, s, "c1", "u1", "go", 1, 3)

	// Fail the module touch after the lesson is gone and siblings are shifted.
	if _, err := s.db.Exec(`CREATE TRIGGER fail_module_touch BEFORE UPDATE ON modules
		BEGIN SELECT RAISE(ABORT, 'simulated failure'); END;`); err != nil {
		t.Fatalf("create trigger: %v", err)
	}

	if err := s.DeleteLessonAndDetach(ctx, "c1-m0-l0"); err == nil {
		t.Fatal("expected error from simulated failure")
	}

	if _, err := s.GetLesson(ctx, "c1-m0-l0"); err != nil {
		t.Errorf("deleted lesson should be restored: %v", err)
	}
	tree, err := s.GetCourseTree(ctx, "c1")
	if err != nil {
		t.Fatal(err)
	}
	lessons := tree.Modules[0].Lessons
	if len(lessons) != 3 {
		t.Fatalf("lessons = %d, want 3", len(lessons))
	}
	for i, l := range lessons {
		if want := fmt.Sprintf("c1-m0-l%d", i); l.ID != want || l.Position != i {
			t.Errorf("lesson %d = %s@%d, want %s@%d", i, l.ID, l.Position, want, i)
		}
	}
}

func TestListPendingLessons_FailedLessonsLast(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if err := s.CreateCourse(ctx, model.NewCourse("c1", "t", "d", nil, "u1", "t", "t")); err != nil {
		t.Fatal(err)
	}
	m := model.NewModule("m1", "c1", "M", 0)
	var lessons []model.Lesson
	for i := 0; i < 3; i++ {
		lessons = append(lessons, model.NewLesson(fmt.Sprintf("l%d", i), "m1", "c1", "Pending", i, nil, ""))
	}
	if err := s.CreateModuleWithLessons(ctx, m, lessons); err != nil {
		t.Fatal(err)
	}

	if err := s.RecordHydrationFailure(ctx, "l0"); err != nil {
		t.Fatalf("RecordHydrationFailure: %v", err)
	}

	ids := func(limit int) string {
		list, err := s.ListPendingLessons(ctx, limit)
		if err != nil {
			t.Fatalf("ListPendingLessons: %v", err)
		}
		var out []string
		for _, l := range list {
			out = append(out, l.ID)
		}
		return fmt.Sprint(out)
	}
	if got := ids(2); got != "[l1 l2]" {
		t.Errorf("first batch = %s, want [l1 l2]", got)
	}
	if got := ids(10); got != "[l1 l2 l0]" {
		t.Errorf("all pending = %s, want [l1 l2 l0]", got)
	}

	if err := s.RecordHydrationFailure(ctx, "ghost"); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("missing lesson err = %v, want ErrNotFound", err)
	}
}

func TestUpdateLessonContent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if err := s.CreateCourse(ctx, model.NewCourse("c1", "t", "d", nil, "u1", "t", "")); err != nil {
		t.Fatal(err)
	}
	m := model.NewModule("m1", "c1", "M", 0)
	pending := model.NewLesson("l1", "m1", "c1", "Pending", 0, nil, "vid-old")
	if err := s.CreateModuleWithLessons(ctx, m, []model.Lesson{pending}); err != nil {
		t.Fatal(err)
	}

	list, err := s.ListPendingLessons(ctx, 10)
	if err != nil {
		t.Fatalf("ListPendingLessons: %v", err)
	}
	if len(list) != 1 || list[0].ID != "l1" {
		t.Fatalf("pending = %+v, want [l1]", list)
	}

	blocks := []model.ContentBlock{
		{Type: model.KindHeading2, Text: "Intro"},
		{Type: model.KindUnorderedList, Items: []string{"a", "b"}},
	}
	if err := s.UpdateLessonContent(ctx, "l1", blocks, ""); err != nil {
		t.Fatalf("UpdateLessonContent: %v", err)
	}

	got, err := s.GetLesson(ctx, "l1")
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Content) != 2 || got.Content[1].Items[1] != "b" {
		t.Errorf("Content = %+v", got.Content)
	}
	if got.VideoID != "vid-old" {
		t.Errorf("VideoID = %q, empty update should keep existing", got.VideoID)
	}

	if list, _ := s.ListPendingLessons(ctx, 10); len(list) != 0 {
		t.Errorf("pending after hydrate = %d, want 0", len(list))
	}
	if err := s.UpdateLessonContent(ctx, "ghost", blocks, ""); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("missing lesson err = %v, want ErrNotFound", err)
	}
}

func TestUpdateLesson(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedCourse(t, s, "c1", "u1", "go", 1, 1)

	l, _ := s.GetLesson(ctx, "c1-m0-l0")
	done := true
	l.Apply(model.LessonUpdate{Title: "Edited", IsCompleted: &done})
	if err := s.UpdateLesson(ctx, *l); err != nil {
		t.Fatalf("UpdateLesson: %v", err)
	}
	got, _ := s.GetLesson(ctx, "c1-m0-l0")
	if got.Title != "Edited" || !got.IsCompleted {
		t.Errorf("after update = %+v", got)
	}
}

func TestUpsertUser(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.UpsertUser(ctx, model.NewUser("sub-1", "a@example.com", "Ada")); err != nil {
		t.Fatalf("UpsertUser: %v", err)
	}
	if err := s.UpsertUser(ctx, model.NewUser("sub-1", "a@example.com", "Ada L.")); err != nil {
		t.Fatalf("UpsertUser update: %v", err)
	}
	u, err := s.GetUser(ctx, "sub-1")
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if u.Name != "Ada L." {
		t.Errorf("Name = %q, want %q", u.Name, "Ada L.")
	}

	err = s.UpsertUser(ctx, model.NewUser("sub-2", "a@example.com", "Other"))
	if !errors.Is(err, model.ErrConflict) {
		t.Errorf("duplicate email err = %v, want ErrConflict", err)
	}
	if _, err := s.GetUser(ctx, "nobody"); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("GetUser missing err = %v, want ErrNotFound", err)
	}
}

func TestUpsertUser_BlankEmailsDoNotCollide(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, sub := range []string{"alice", "bob"} {
		if err := s.UpsertUser(ctx, model.NewUser(sub, "", sub)); err != nil {
			t.Fatalf("UpsertUser(%s): %v", sub, err)
		}
	}
	if _, err := s.GetUser(ctx, "bob"); err != nil {
		t.Errorf("GetUser bob: %v", err)
	}
}
