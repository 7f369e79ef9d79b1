// Package store persists capture sessions and their artifacts to SQLite so
// the HTTP surface can serve results after the fact and operators can audit
// past runs.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hazyhaar/longshot/dbopen"
)

// Schema for the capture tables. Applied by Init.
const Schema = `
CREATE TABLE IF NOT EXISTS capture_sessions (
	id TEXT PRIMARY KEY,
	url TEXT NOT NULL,
	origin TEXT NOT NULL,
	status TEXT NOT NULL,
	error TEXT NOT NULL DEFAULT '',
	tile_count INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL,
	completed_at INTEGER
);
CREATE INDEX IF NOT EXISTS idx_capture_sessions_created ON capture_sessions(created_at);

CREATE TABLE IF NOT EXISTS capture_artifacts (
	id TEXT PRIMARY KEY,
	session_id TEXT NOT NULL REFERENCES capture_sessions(id),
	part INTEGER NOT NULL,
	filename TEXT NOT NULL,
	mime TEXT NOT NULL,
	width INTEGER NOT NULL,
	height INTEGER NOT NULL,
	oversized INTEGER NOT NULL DEFAULT 0,
	bytes BLOB NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_capture_artifacts_session ON capture_artifacts(session_id);
`

// Session statuses.
const (
	StatusRunning  = "running"
	StatusComplete = "complete"
	StatusFailed   = "failed"
)

// ErrNotFound is returned when a session or artifact does not exist.
var ErrNotFound = errors.New("store: not found")

// Session is one capture run's record.
type Session struct {
	ID          string
	URL         string
	Origin      string
	Status      string
	Error       string
	TileCount   int
	CreatedAt   time.Time
	CompletedAt time.Time
}

// Artifact is one stored output, bytes included.
type Artifact struct {
	ID        string
	SessionID string
	Part      int
	Filename  string
	MIME      string
	Width     int
	Height    int
	Oversized bool
	Bytes     []byte
	CreatedAt time.Time
}

// Store persists sessions and artifacts.
type Store struct {
	db *sql.DB
}

// New creates a Store backed by the given database connection.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Init creates the tables if they don't exist.
func (s *Store) Init() error {
	_, err := s.db.Exec(Schema)
	return err
}

// CreateSession records a new running session.
func (s *Store) CreateSession(ctx context.Context, id, url, origin string) error {
	_, err := dbopen.Exec(ctx, s.db, `
		INSERT INTO capture_sessions (id, url, origin, status, created_at)
		VALUES (?,?,?,?,?)`,
		id, url, origin, StatusRunning, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("store: create session: %w", err)
	}
	return nil
}

// CompleteSession marks a session finished with its tile count.
func (s *Store) CompleteSession(ctx context.Context, id string, tiles int) error {
	return s.finish(ctx, id, StatusComplete, "", tiles)
}

// FailSession marks a session failed with its error message.
func (s *Store) FailSession(ctx context.Context, id, msg string) error {
	return s.finish(ctx, id, StatusFailed, msg, 0)
}

func (s *Store) finish(ctx context.Context, id, status, msg string, tiles int) error {
	res, err := dbopen.Exec(ctx, s.db, `
		UPDATE capture_sessions
		SET status = ?, error = ?, tile_count = ?, completed_at = ?
		WHERE id = ?`,
		status, msg, tiles, time.Now().UnixMilli(), id)
	if err != nil {
		return fmt.Errorf("store: finish session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SaveArtifact stores one artifact's bytes and metadata.
func (s *Store) SaveArtifact(ctx context.Context, a *Artifact) error {
	_, err := dbopen.Exec(ctx, s.db, insertArtifactSQL,
		a.ID, a.SessionID, a.Part, a.Filename, a.MIME, a.Width, a.Height,
		boolInt(a.Oversized), a.Bytes, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("store: save artifact: %w", err)
	}
	return nil
}

// SaveArtifacts stores a session's artifacts in a single transaction, so a
// multi-part capture is either fully persisted or not at all.
func (s *Store) SaveArtifacts(ctx context.Context, arts []*Artifact) error {
	err := dbopen.RunTx(ctx, s.db, func(tx *sql.Tx) error {
		now := time.Now().UnixMilli()
		for _, a := range arts {
			if _, err := tx.ExecContext(ctx, insertArtifactSQL,
				a.ID, a.SessionID, a.Part, a.Filename, a.MIME, a.Width, a.Height,
				boolInt(a.Oversized), a.Bytes, now); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("store: save artifacts: %w", err)
	}
	return nil
}

const insertArtifactSQL = `
	INSERT INTO capture_artifacts
		(id, session_id, part, filename, mime, width, height, oversized, bytes, created_at)
	VALUES (?,?,?,?,?,?,?,?,?,?)`

// GetSession fetches one session.
func (s *Store) GetSession(ctx context.Context, id string) (*Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, url, origin, status, error, tile_count, created_at,
		       COALESCE(completed_at, 0)
		FROM capture_sessions WHERE id = ?`, id)

	var sess Session
	var created, completed int64
	err := row.Scan(&sess.ID, &sess.URL, &sess.Origin, &sess.Status,
		&sess.Error, &sess.TileCount, &created, &completed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get session: %w", err)
	}
	sess.CreatedAt = time.UnixMilli(created)
	if completed > 0 {
		sess.CompletedAt = time.UnixMilli(completed)
	}
	return &sess, nil
}

// GetArtifact fetches one artifact with bytes.
func (s *Store) GetArtifact(ctx context.Context, id string) (*Artifact, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, session_id, part, filename, mime, width, height, oversized, bytes, created_at
		FROM capture_artifacts WHERE id = ?`, id)
	return scanArtifact(row)
}

// ListArtifacts returns a session's artifacts in part order, without bytes.
func (s *Store) ListArtifacts(ctx context.Context, sessionID string) ([]*Artifact, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, part, filename, mime, width, height, oversized, created_at
		FROM capture_artifacts WHERE session_id = ? ORDER BY part`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("store: list artifacts: %w", err)
	}
	defer rows.Close()

	var out []*Artifact
	for rows.Next() {
		var a Artifact
		var oversized int
		var created int64
		if err := rows.Scan(&a.ID, &a.SessionID, &a.Part, &a.Filename, &a.MIME,
			&a.Width, &a.Height, &oversized, &created); err != nil {
			return nil, fmt.Errorf("store: scan artifact: %w", err)
		}
		a.Oversized = oversized != 0
		a.CreatedAt = time.UnixMilli(created)
		out = append(out, &a)
	}
	return out, rows.Err()
}

func scanArtifact(row *sql.Row) (*Artifact, error) {
	var a Artifact
	var oversized int
	var created int64
	err := row.Scan(&a.ID, &a.SessionID, &a.Part, &a.Filename, &a.MIME,
		&a.Width, &a.Height, &oversized, &a.Bytes, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get artifact: %w", err)
	}
	a.Oversized = oversized != 0
	a.CreatedAt = time.UnixMilli(created)
	return &a, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
