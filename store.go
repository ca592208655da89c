package authorflow

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/authorflow/authorflow/reconcile"
)

const (
	driverSQLite   = "sqlite"
	driverPostgres = "postgres"

	// UTC RFC 3339 strings sort chronologically, which the due-soon range relies on.
	storeTimeLayout = "2006-01-02T15:04:05Z"
)

// Store is the content store: posts live in SQLite by default or Postgres
// when configured.
type Store struct {
	db     *sql.DB
	driver string
	now    func() time.Time
}

var _ reconcile.ContentStore = (*Store)(nil)

// NewStore opens (or creates) the database described by cfg and runs schema
// migrations. For SQLite the data directory is created if missing.
func NewStore(cfg DatabaseConfig) (*Store, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = driverSQLite
	}
	if driver != driverSQLite && driver != driverPostgres {
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
	if driver == driverSQLite {
		if err := os.MkdirAll(filepath.Dir(cfg.DSN), 0o755); err != nil {
			return nil, err
		}
	}
	dsn := cfg.DSN
	if driver == driverSQLite {
		dsn = sqliteDSN(dsn)
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, err
	}
	if driver == driverSQLite {
		// WAL lets the import goroutines write while the calendar reads;
		// busy_timeout makes concurrent writers wait instead of failing.
		if _, err := db.Exec(`
			PRAGMA journal_mode=WAL;
			PRAGMA busy_timeout=5000;
			PRAGMA synchronous=NORMAL;
		`); err != nil {
			db.Close()
			return nil, err
		}
		db.SetMaxOpenConns(4)
		db.SetMaxIdleConns(4)
	} else {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
		db.SetConnMaxLifetime(time.Hour)
	}
	s := &Store{db: db, driver: driver, now: time.Now}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return s, nil
}

// sqliteDSN adds a busy timeout to every pooled connection; the PRAGMA
// statement in NewStore only reaches the first one.
func sqliteDSN(path string) string {
	if strings.Contains(path, "_pragma=busy_timeout") {
		return path
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_pragma=busy_timeout(5000)"
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) ensureSchema() error {
	_, err := s.db.Exec(`
CREATE TABLE IF NOT EXISTS posts (
    id TEXT PRIMARY KEY,
    owner TEXT NOT NULL,
    project_id TEXT NOT NULL DEFAULT '',
    platform TEXT NOT NULL,
    scheduled_at TEXT NOT NULL,
    title TEXT NOT NULL DEFAULT '',
    description TEXT NOT NULL DEFAULT '',
    content_type TEXT NOT NULL DEFAULT '',
    published INTEGER NOT NULL DEFAULT 0,
    views BIGINT,
    likes BIGINT,
    comments BIGINT,
    shares BIGINT,
    performance_updated_at TEXT
)`)
	if err != nil {
		return err
	}
	if _, err := s.db.Exec(`CREATE INDEX IF NOT EXISTS idx_posts_owner_scheduled ON posts(owner, scheduled_at)`); err != nil {
		return err
	}
	if _, err := s.db.Exec(`ALTER TABLE posts ADD COLUMN image TEXT NOT NULL DEFAULT ''`); err != nil {
		msg := strings.ToLower(err.Error())
		if strings.Contains(msg, "duplicate column") || strings.Contains(msg, "already exists") {
			return nil
		}
		return err
	}
	return nil
}

// rebind rewrites ? placeholders into $n for Postgres.
func (s *Store) rebind(query string) string {
	if s.driver != driverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

const postColumns = `id, owner, project_id, platform, scheduled_at, title, description, content_type, published, image, views, likes, comments, shares, performance_updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPost(r rowScanner) (Post, error) {
	var p Post
	var scheduled string
	var published int
	var views, likes, comments, shares sql.NullInt64
	var perfUpdated sql.NullString
	if err := r.Scan(&p.ID, &p.Owner, &p.ProjectID, &p.Platform, &scheduled, &p.Title, &p.Description,
		&p.ContentType, &published, &p.Image, &views, &likes, &comments, &shares, &perfUpdated); err != nil {
		return Post{}, err
	}
	t, err := time.Parse(storeTimeLayout, scheduled)
	if err != nil {
		return Post{}, fmt.Errorf("post %s: scheduled_at: %w", p.ID, err)
	}
	p.ScheduledAt = t
	p.Published = published == 1
	if views.Valid {
		p.Performance = &Performance{
			Views:    views.Int64,
			Likes:    likes.Int64,
			Comments: comments.Int64,
			Shares:   shares.Int64,
		}
	}
	if perfUpdated.Valid {
		u, err := time.Parse(storeTimeLayout, perfUpdated.String)
		if err != nil {
			return Post{}, fmt.Errorf("post %s: performance_updated_at: %w", p.ID, err)
		}
		p.PerformanceUpdatedAt = u
	}
	return p, nil
}

func (s *Store) queryPosts(ctx context.Context, query string, args ...any) ([]Post, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var posts []Post
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, p)
	}
	return posts, rows.Err()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(storeTimeLayout)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// ListPosts returns every post of owner ordered by scheduled time.
func (s *Store) ListPosts(ctx context.Context, owner string) ([]Post, error) {
	return s.queryPosts(ctx, `SELECT `+postColumns+` FROM posts WHERE owner = ? ORDER BY scheduled_at, id`, owner)
}

// GetPost returns a single post by id.
func (s *Store) GetPost(ctx context.Context, id string) (Post, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`SELECT `+postColumns+` FROM posts WHERE id = ?`), id)
	return scanPost(row)
}

// SavePost inserts p or updates its descriptive fields. Performance counters
// are never written here; imports own them. A missing id is assigned.
func (s *Store) SavePost(ctx context.Context, p Post) (Post, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx, s.rebind(`
INSERT INTO posts (id, owner, project_id, platform, scheduled_at, title, description, content_type, published, image)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
    project_id = excluded.project_id,
    platform = excluded.platform,
    scheduled_at = excluded.scheduled_at,
    title = excluded.title,
    description = excluded.description,
    content_type = excluded.content_type,
    published = excluded.published,
    image = excluded.image
WHERE posts.owner = excluded.owner`),
		p.ID, p.Owner, p.ProjectID, p.Platform, formatTime(p.ScheduledAt), p.Title, p.Description,
		p.ContentType, boolInt(p.Published), p.Image)
	if err != nil {
		return Post{}, err
	}
	return p, nil
}

// CreatePost inserts a post seeded from an analytics row and returns its id.
func (s *Store) CreatePost(ctx context.Context, np reconcile.NewPost) (string, error) {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx, s.rebind(`
INSERT INTO posts (id, owner, platform, scheduled_at, title, description, content_type, published,
    views, likes, comments, shares, performance_updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		id, np.Owner, np.Platform, formatTime(np.ScheduledAt), np.Title, np.Description, np.ContentType,
		boolInt(np.Published), np.Performance.Views, np.Performance.Likes, np.Performance.Comments,
		np.Performance.Shares, formatTime(s.now()))
	if err != nil {
		return "", fmt.Errorf("create post: %w", err)
	}
	return id, nil
}

// UpdatePerformance replaces the performance counters of post id. No other
// column is touched. ErrNotFound is returned for an unknown id.
func (s *Store) UpdatePerformance(ctx context.Context, id string, p reconcile.Performance) error {
	res, err := s.db.ExecContext(ctx, s.rebind(`
UPDATE posts SET views = ?, likes = ?, comments = ?, shares = ?, performance_updated_at = ?
WHERE id = ?`),
		p.Views, p.Likes, p.Comments, p.Shares, formatTime(s.now()), id)
	if err != nil {
		return fmt.Errorf("update performance %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetPostImage stores the public path of a post's image.
func (s *Store) SetPostImage(ctx context.Context, id, path string) error {
	_, err := s.db.ExecContext(ctx, s.rebind(`UPDATE posts SET image = ? WHERE id = ?`), path, id)
	return err
}

// DeletePost removes a post of owner by id.
func (s *Store) DeletePost(ctx context.Context, owner, id string) error {
	res, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM posts WHERE id = ? AND owner = ?`), id, owner)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete post %s: %w", id, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListDueSoon returns unpublished posts scheduled in [from, from+window).
// An empty owner selects posts of every owner; the notification job groups
// them itself.
func (s *Store) ListDueSoon(ctx context.Context, owner string, from time.Time, window time.Duration) ([]Post, error) {
	query := `SELECT ` + postColumns + ` FROM posts WHERE published = 0 AND scheduled_at >= ? AND scheduled_at < ?`
	args := []any{formatTime(from), formatTime(from.Add(window))}
	if owner != "" {
		query += ` AND owner = ?`
		args = append(args, owner)
	}
	return s.queryPosts(ctx, query+` ORDER BY scheduled_at, id`, args...)
}
