package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/yangwenmai/coursegen/internal/model"
)

// Verify at compile time that Store implements all interfaces.
var (
	_ CourseReader = (*Store)(nil)
	_ CourseWriter = (*Store)(nil)
	_ LessonStore  = (*Store)(nil)
	_ UserStore    = (*Store)(nil)
)

// Store provides data access to the SQLite database.
type Store struct {
	db *sql.DB
}

// New creates a new Store and initialises the schema.
func New(db *sql.DB) (*Store, error) {
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`); err != nil {
		return fmt.Errorf("create schema_version table: %w", err)
	}

	var version int
	err := s.db.QueryRow(`SELECT version FROM schema_version LIMIT 1`).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		if _, err := s.db.Exec(`INSERT INTO schema_version (version) VALUES (0)`); err != nil {
			return fmt.Errorf("init schema version: %w", err)
		}
		version = 0
	} else if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	// Index 0 = migration from v0 to v1, etc.
	migrations := []func() error{
		s.migrateV1, // v0 → v1: courses, modules, lessons
		s.migrateV2, // v1 → v2: users
		s.migrateV3, // v2 → v3: topic keys, hydration attempts, optional email
	}

	for i := version; i < len(migrations); i++ {
		if err := migrations[i](); err != nil {
			return fmt.Errorf("migration v%d→v%d: %w", i, i+1, err)
		}
		if _, err := s.db.Exec(`UPDATE schema_version SET version = ?`, i+1); err != nil {
			return fmt.Errorf("update schema version to %d: %w", i+1, err)
		}
	}
	return nil
}

func (s *Store) migrateV1() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS courses (
		id          TEXT PRIMARY KEY,
		title       TEXT NOT NULL,
		description TEXT NOT NULL,
		tags        TEXT NOT NULL DEFAULT '[]',
		owner       TEXT NOT NULL,
		slug        TEXT NOT NULL,
		topic_slug  TEXT NOT NULL DEFAULT '',
		created_at  TEXT NOT NULL,
		updated_at  TEXT NOT NULL
	);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_courses_owner_slug ON courses(owner, slug);
	CREATE INDEX IF NOT EXISTS idx_courses_owner_topic ON courses(owner, topic_slug);

	CREATE TABLE IF NOT EXISTS modules (
		id         TEXT PRIMARY KEY,
		course_id  TEXT NOT NULL REFERENCES courses(id),
		title      TEXT NOT NULL,
		position   INTEGER NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_modules_course ON modules(course_id, position);

	CREATE TABLE IF NOT EXISTS lessons (
		id           TEXT PRIMARY KEY,
		module_id    TEXT NOT NULL REFERENCES modules(id),
		course_id    TEXT NOT NULL REFERENCES courses(id),
		title        TEXT NOT NULL,
		position     INTEGER NOT NULL,
		content      TEXT NOT NULL DEFAULT '[]',
		video_id     TEXT,
		is_completed INTEGER NOT NULL DEFAULT 0,
		created_at   TEXT NOT NULL,
		updated_at   TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_lessons_module ON lessons(module_id, position);
	CREATE INDEX IF NOT EXISTS idx_lessons_course ON lessons(course_id);
	`)
	return err
}

func (s *Store) migrateV2() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS users (
		sub        TEXT PRIMARY KEY,
		email      TEXT NOT NULL,
		name       TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_users_email ON users(email);
	`)
	return err
}

// migrateV3 replaces the lossy topic_slug lookup with the case-folded topic,
// counts failed hydrations per lesson and lets several users have no email.
func (s *Store) migrateV3() error {
	_, err := s.db.Exec(`
	ALTER TABLE courses ADD COLUMN topic_key TEXT NOT NULL DEFAULT '';
	DROP INDEX IF EXISTS idx_courses_owner_topic;
	ALTER TABLE courses DROP COLUMN topic_slug;
	CREATE INDEX IF NOT EXISTS idx_courses_owner_topic_key ON courses(owner, topic_key);

	ALTER TABLE lessons ADD COLUMN hydrate_attempts INTEGER NOT NULL DEFAULT 0;
	CREATE INDEX IF NOT EXISTS idx_lessons_pending ON lessons(hydrate_attempts, created_at) WHERE content = '[]';

	DROP INDEX IF EXISTS idx_users_email;
	CREATE UNIQUE INDEX IF NOT EXISTS idx_users_email ON users(email) WHERE email <> '';
	`)
	return err
}

// ---------------------------------------------------------------------------
// Courses
// ---------------------------------------------------------------------------

const courseColumns = `id, title, description, tags, owner, slug, topic_key, created_at, updated_at`

// CreateCourse inserts a course shell. A duplicate (owner, slug) pair
// returns model.ErrConflict.
func (s *Store) CreateCourse(ctx context.Context, c model.Course) error {
	tags, err := json.Marshal(c.Tags)
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO courses (`+courseColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Title, c.Description, string(tags), c.Owner, c.Slug, c.TopicKey, c.CreatedAt, c.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("course %q for owner: %w", c.Slug, model.ErrConflict)
	}
	return err
}

// GetCourse returns a single course row.
func (s *Store) GetCourse(ctx context.Context, id string) (*model.Course, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+courseColumns+` FROM courses WHERE id = ?`, id)
	return scanCourse(row)
}

// GetCourseTree returns a course with its modules and lessons in order.
func (s *Store) GetCourseTree(ctx context.Context, id string) (*model.CourseTree, error) {
	c, err := s.GetCourse(ctx, id)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, course_id, title, position, created_at, updated_at FROM modules WHERE course_id = ? ORDER BY position ASC`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tree := &model.CourseTree{Course: *c, Modules: []model.ModuleWithLessons{}}
	index := map[string]int{}
	for rows.Next() {
		var m model.Module
		if err := rows.Scan(&m.ID, &m.CourseID, &m.Title, &m.Position, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, err
		}
		index[m.ID] = len(tree.Modules)
		tree.Modules = append(tree.Modules, model.ModuleWithLessons{Module: m, Lessons: []model.Lesson{}})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	lrows, err := s.db.QueryContext(ctx,
		`SELECT `+lessonColumns+` FROM lessons WHERE course_id = ? ORDER BY position ASC`, id)
	if err != nil {
		return nil, err
	}
	defer lrows.Close()
	for lrows.Next() {
		l, err := scanLesson(lrows)
		if err != nil {
			return nil, err
		}
		if i, ok := index[l.ModuleID]; ok {
			tree.Modules[i].Lessons = append(tree.Modules[i].Lessons, *l)
		}
	}
	return tree, lrows.Err()
}

// ListCoursesByOwner returns the owner's courses, newest first.
func (s *Store) ListCoursesByOwner(ctx context.Context, owner string) ([]model.Course, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+courseColumns+` FROM courses WHERE owner = ? ORDER BY created_at DESC, rowid DESC`, owner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var courses []model.Course
	for rows.Next() {
		c, err := scanCourse(rows)
		if err != nil {
			return nil, err
		}
		courses = append(courses, *c)
	}
	return courses, rows.Err()
}

// FindCourseForTopic returns the oldest course of owner that matches a
// submitted topic: by recorded topic key equal to key, by slug equal to slug,
// or by title equal to title ignoring case. An empty key or slug is not
// matched. Returns nil if none matches.
func (s *Store) FindCourseForTopic(ctx context.Context, owner, key, slug, title string) (*model.Course, error) {
	query := `SELECT ` + courseColumns + ` FROM courses WHERE owner = ? AND (title = ? COLLATE NOCASE`
	args := []interface{}{owner, strings.TrimSpace(title)}
	if key != "" {
		query += ` OR topic_key = ?`
		args = append(args, key)
	}
	if slug != "" {
		query += ` OR slug = ?`
		args = append(args, slug)
	}
	query += `) ORDER BY created_at ASC, rowid ASC LIMIT 1`

	c, err := scanCourse(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, model.ErrNotFound) {
		return nil, nil
	}
	return c, err
}

// SlugExists reports whether owner already has a course with slug.
func (s *Store) SlugExists(ctx context.Context, owner, slug string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM courses WHERE owner = ? AND slug = ?`, owner, slug).Scan(&n)
	return n > 0, err
}

// UpdateCourse persists title, description and tags.
func (s *Store) UpdateCourse(ctx context.Context, c model.Course) error {
	tags, err := json.Marshal(c.Tags)
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}
	now := time.Now().UTC().Format(time.RFC3339)
	res, err := s.db.ExecContext(ctx,
		`UPDATE courses SET title = ?, description = ?, tags = ?, updated_at = ? WHERE id = ?`,
		c.Title, c.Description, string(tags), now, c.ID)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

// TouchCourse bumps updated_at once the module list is complete.
func (s *Store) TouchCourse(ctx context.Context, id string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	res, err := s.db.ExecContext(ctx, `UPDATE courses SET updated_at = ? WHERE id = ?`, now, id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

// CreateModuleWithLessons inserts a module and its lessons in one
// transaction, so a module is never visible with a partial lesson list.
func (s *Store) CreateModuleWithLessons(ctx context.Context, m model.Module, lessons []model.Lesson) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO modules (id, course_id, title, position, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		m.ID, m.CourseID, m.Title, m.Position, m.CreatedAt, m.UpdatedAt); err != nil {
		return fmt.Errorf("insert module: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO lessons (`+lessonColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare lesson insert: %w", err)
	}
	defer stmt.Close()

	for _, l := range lessons {
		content, err := marshalContent(l.Content)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx,
			l.ID, l.ModuleID, l.CourseID, l.Title, l.Position, content, nullString(l.VideoID),
			l.IsCompleted, l.CreatedAt, l.UpdatedAt); err != nil {
			return fmt.Errorf("insert lesson %q: %w", l.Title, err)
		}
	}
	return tx.Commit()
}

// DeleteCourseCascade removes a course with all of its lessons and modules.
// Either all three deletes take effect or none do.
func (s *Store) DeleteCourseCascade(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM lessons WHERE course_id = ?`, id); err != nil {
		return fmt.Errorf("delete lessons: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM modules WHERE course_id = ?`, id); err != nil {
		return fmt.Errorf("delete modules: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM courses WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete course: %w", err)
	}
	if err := requireAffected(res); err != nil {
		return err
	}
	return tx.Commit()
}

// ---------------------------------------------------------------------------
// Lessons
// ---------------------------------------------------------------------------

const lessonColumns = `id, module_id, course_id, title, position, content, video_id, is_completed, created_at, updated_at`

// GetLesson returns a single lesson.
func (s *Store) GetLesson(ctx context.Context, id string) (*model.Lesson, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+lessonColumns+` FROM lessons WHERE id = ?`, id)
	return scanLesson(row)
}

// UpdateLesson persists title, content and the completion flag.
func (s *Store) UpdateLesson(ctx context.Context, l model.Lesson) error {
	content, err := marshalContent(l.Content)
	if err != nil {
		return err
	}
	now := time.Now().UTC().Format(time.RFC3339)
	res, err := s.db.ExecContext(ctx,
		`UPDATE lessons SET title = ?, content = ?, is_completed = ?, updated_at = ? WHERE id = ?`,
		l.Title, content, l.IsCompleted, now, l.ID)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

// UpdateLessonContent stores generated content. An empty videoID keeps the
// existing one. Concurrent writers race last-write-wins.
func (s *Store) UpdateLessonContent(ctx context.Context, id string, content []model.ContentBlock, videoID string) error {
	payload, err := marshalContent(content)
	if err != nil {
		return err
	}
	now := time.Now().UTC().Format(time.RFC3339)
	res, err := s.db.ExecContext(ctx,
		`UPDATE lessons SET content = ?, video_id = COALESCE(?, video_id), updated_at = ? WHERE id = ?`,
		payload, nullString(videoID), now, id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

// DeleteLessonAndDetach deletes a lesson and closes the gap it leaves in its
// module's ordering, as one transaction.
func (s *Store) DeleteLessonAndDetach(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var moduleID string
	var position int
	err = tx.QueryRowContext(ctx, `SELECT module_id, position FROM lessons WHERE id = ?`, id).Scan(&moduleID, &position)
	if errors.Is(err, sql.ErrNoRows) {
		return model.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("read lesson: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM lessons WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete lesson: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE lessons SET position = position - 1 WHERE module_id = ? AND position > ?`, moduleID, position); err != nil {
		return fmt.Errorf("reorder lessons: %w", err)
	}
	now := time.Now().UTC().Format(time.RFC3339)
	res, err := tx.ExecContext(ctx, `UPDATE modules SET updated_at = ? WHERE id = ?`, now, moduleID)
	if err != nil {
		return fmt.Errorf("touch module: %w", err)
	}
	if err := requireAffected(res); err != nil {
		return fmt.Errorf("parent module: %w", err)
	}
	return tx.Commit()
}

// RecordHydrationFailure counts a failed hydration attempt for a lesson so
// it sorts behind lessons that have failed less often.
func (s *Store) RecordHydrationFailure(ctx context.Context, id string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	res, err := s.db.ExecContext(ctx,
		`UPDATE lessons SET hydrate_attempts = hydrate_attempts + 1, updated_at = ? WHERE id = ?`, now, id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

// ListPendingLessons returns up to limit lessons still awaiting content.
// Lessons with fewer failed attempts come first, then oldest first.
func (s *Store) ListPendingLessons(ctx context.Context, limit int) ([]model.Lesson, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+lessonColumns+` FROM lessons WHERE content = '[]'
		ORDER BY hydrate_attempts ASC, created_at ASC, rowid ASC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lessons []model.Lesson
	for rows.Next() {
		l, err := scanLesson(rows)
		if err != nil {
			return nil, err
		}
		lessons = append(lessons, *l)
	}
	return lessons, rows.Err()
}

// ---------------------------------------------------------------------------
// Users
// ---------------------------------------------------------------------------

// UpsertUser inserts a user or refreshes email and name of an existing one.
func (s *Store) UpsertUser(ctx context.Context, u model.User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (sub, email, name, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(sub) DO UPDATE SET
			email = excluded.email,
			name = excluded.name,
			updated_at = excluded.updated_at`,
		u.Sub, u.Email, u.Name, u.CreatedAt, u.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("email %q: %w", u.Email, model.ErrConflict)
	}
	return err
}

// GetUser returns the user with the given identity.
func (s *Store) GetUser(ctx context.Context, sub string) (*model.User, error) {
	var u model.User
	err := s.db.QueryRowContext(ctx,
		`SELECT sub, email, name, created_at, updated_at FROM users WHERE sub = ?`, sub,
	).Scan(&u.Sub, &u.Email, &u.Name, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanCourse(row scanner) (*model.Course, error) {
	var c model.Course
	var tags string
	err := row.Scan(&c.ID, &c.Title, &c.Description, &tags, &c.Owner, &c.Slug, &c.TopicKey, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(tags), &c.Tags); err != nil {
		return nil, fmt.Errorf("decode tags: %w", err)
	}
	if c.Tags == nil {
		c.Tags = []string{}
	}
	return &c, nil
}

func scanLesson(row scanner) (*model.Lesson, error) {
	var l model.Lesson
	var content string
	var videoID sql.NullString
	err := row.Scan(&l.ID, &l.ModuleID, &l.CourseID, &l.Title, &l.Position, &content, &videoID, &l.IsCompleted, &l.CreatedAt, &l.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(content), &l.Content); err != nil {
		return nil, fmt.Errorf("decode content: %w", err)
	}
	if l.Content == nil {
		l.Content = []model.ContentBlock{}
	}
	l.VideoID = videoID.String
	return &l, nil
}

func marshalContent(blocks []model.ContentBlock) (string, error) {
	if blocks == nil {
		blocks = []model.ContentBlock{}
	}
	b, err := json.Marshal(blocks)
	if err != nil {
		return "", fmt.Errorf("marshal content: %w", err)
	}
	return string(b), nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return model.ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var se *sqlite.Error
	if errors.As(err, &se) {
		return se.Code()&0xff == sqlite3.SQLITE_CONSTRAINT && strings.Contains(se.Error(), "UNIQUE")
	}
	return false
}
