package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/dipolehq/dipole/internal/models"
)

// SQLiteStore persists projects and sessions in a local SQLite database.
// Timestamps are stored as RFC 3339 text in UTC.
type SQLiteStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// Open opens (creating it if needed) the database at path, applies the
// connection pragmas, and runs pending migrations.
func Open(path string, logger *zap.Logger) (*SQLiteStore, error) {
	dsn := fmt.Sprintf("file:%s?cache=shared&_busy_timeout=5000", path)
	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	store, err := NewSQLiteStore(sqlDB, logger)
	if err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	if err := RunMigrations(sqlDB, ""); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return store, nil
}

// NewSQLiteStore wraps an open database handle. Foreign keys are enforced,
// WAL keeps readers unblocked during writes.
func NewSQLiteStore(db *sql.DB, logger *zap.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	}
	for _, stmt := range pragmas {
		if _, err := db.Exec(stmt); err != nil {
			return nil, fmt.Errorf("apply sqlite pragma %q: %w", stmt, err)
		}
	}
	return &SQLiteStore{db: db, logger: logger}, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

// UpsertProject writes the project row and replaces its item set. Item
// position encodes configuration order.
func (s *SQLiteStore) UpsertProject(project *models.Project) error {
	if project == nil || project.ID == "" {
		return fmt.Errorf("project id is required")
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin upsert project: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.Exec(`INSERT INTO projects (id, name, mode, scale_points, counterbalance)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			mode = excluded.mode,
			scale_points = excluded.scale_points,
			counterbalance = excluded.counterbalance`,
		project.ID, project.Name, string(project.Mode), project.ScalePoints, project.Counterbalance)
	if err != nil {
		return fmt.Errorf("upsert project %s: %w", project.ID, err)
	}
	if _, err := tx.Exec(`DELETE FROM scale_items WHERE project_id = ?`, project.ID); err != nil {
		return fmt.Errorf("clear scale items for %s: %w", project.ID, err)
	}
	for i, item := range project.Items {
		_, err := tx.Exec(`INSERT INTO scale_items (project_id, position, id, pole_low, pole_high, category)
			VALUES (?, ?, ?, ?, ?, ?)`,
			project.ID, i, item.ID, item.PoleLow, item.PoleHigh, item.Category)
		if err != nil {
			return fmt.Errorf("insert scale item %s: %w", item.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit upsert project: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetProject(id string) (*models.Project, error) {
	row := s.db.QueryRow(`SELECT id, name, mode, scale_points, counterbalance
		FROM projects WHERE id = ?`, id)
	var (
		p    models.Project
		mode string
	)
	if err := row.Scan(&p.ID, &p.Name, &mode, &p.ScalePoints, &p.Counterbalance); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get project %s: %w", id, err)
	}
	p.Mode = models.ScaleMode(mode)
	items, err := s.projectItems(id)
	if err != nil {
		return nil, err
	}
	p.Items = items
	return &p, nil
}

func (s *SQLiteStore) ListProjects() ([]*models.Project, error) {
	rows, err := s.db.Query(`SELECT id FROM projects ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer func() { s.logErr("close project rows", rows.Close()) }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan project id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate projects: %w", err)
	}

	out := make([]*models.Project, 0, len(ids))
	for _, id := range ids {
		p, err := s.GetProject(id)
		if err != nil {
			return nil, err
		}
		if p != nil {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *SQLiteStore) projectItems(projectID string) ([]models.ScaleItem, error) {
	rows, err := s.db.Query(`SELECT id, pole_low, pole_high, category FROM scale_items
		WHERE project_id = ? ORDER BY position`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list scale items for %s: %w", projectID, err)
	}
	defer func() { s.logErr("close scale item rows", rows.Close()) }()

	var items []models.ScaleItem
	for rows.Next() {
		var item models.ScaleItem
		if err := rows.Scan(&item.ID, &item.PoleLow, &item.PoleHigh, &item.Category); err != nil {
			return nil, fmt.Errorf("scan scale item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate scale items: %w", err)
	}
	return items, nil
}

func (s *SQLiteStore) AddSession(sess *models.Session) error {
	if sess == nil || sess.ID == "" {
		return fmt.Errorf("session id is required")
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin add session: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.Exec(`INSERT INTO sessions (id, project_id, group_key, group_label, status, created_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.ProjectID, sess.GroupKey, sess.GroupLabel, string(sess.Status),
		formatTime(sess.CreatedAt), nullableTime(sess.CompletedAt))
	if err != nil {
		return fmt.Errorf("insert session %s: %w", sess.ID, err)
	}
	if err := insertResponses(tx, sess.ID, sess.Responses); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit add session: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetSession(projectID, sessionID string) (*models.Session, error) {
	row := s.db.QueryRow(`SELECT id, project_id, group_key, group_label, status, created_at, completed_at
		FROM sessions WHERE project_id = ? AND id = ?`, projectID, sessionID)
	sess, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get session %s: %w", sessionID, err)
	}
	responses, err := s.sessionResponses(sessionID)
	if err != nil {
		return nil, err
	}
	sess.Responses = responses
	return sess, nil
}

// UpdateSession rewrites the session row and replaces its responses. The
// session carries its full response set, so replace-all keeps the row and
// the record in lockstep.
func (s *SQLiteStore) UpdateSession(sess *models.Session) error {
	if sess == nil || sess.ID == "" {
		return fmt.Errorf("session id is required")
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin update session: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.Exec(`UPDATE sessions SET group_key = ?, group_label = ?, status = ?, completed_at = ?
		WHERE project_id = ? AND id = ?`,
		sess.GroupKey, sess.GroupLabel, string(sess.Status), nullableTime(sess.CompletedAt),
		sess.ProjectID, sess.ID)
	if err != nil {
		return fmt.Errorf("update session %s: %w", sess.ID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update session %s: %w", sess.ID, err)
	}
	if affected == 0 {
		return fmt.Errorf("session %s not found", sess.ID)
	}
	if _, err := tx.Exec(`DELETE FROM responses WHERE session_id = ?`, sess.ID); err != nil {
		return fmt.Errorf("clear responses for %s: %w", sess.ID, err)
	}
	if err := insertResponses(tx, sess.ID, sess.Responses); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit update session: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListSessions(projectID string) ([]*models.Session, error) {
	rows, err := s.db.Query(`SELECT id, project_id, group_key, group_label, status, created_at, completed_at
		FROM sessions WHERE project_id = ? ORDER BY rowid`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list sessions for %s: %w", projectID, err)
	}
	defer func() { s.logErr("close session rows", rows.Close()) }()

	var out []*models.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		out = append(out, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}

	for _, sess := range out {
		responses, err := s.sessionResponses(sess.ID)
		if err != nil {
			return nil, err
		}
		sess.Responses = responses
	}
	return out, nil
}

// DeleteSessionsByProject removes every session for the project. Responses
// go with them through the foreign key cascade.
func (s *SQLiteStore) DeleteSessionsByProject(projectID string) error {
	if _, err := s.db.Exec(`DELETE FROM sessions WHERE project_id = ?`, projectID); err != nil {
		return fmt.Errorf("delete sessions for %s: %w", projectID, err)
	}
	return nil
}

func (s *SQLiteStore) sessionResponses(sessionID string) ([]models.ResponseRecord, error) {
	rows, err := s.db.Query(`SELECT item_id, raw_value, flipped, normalized, submitted_at
		FROM responses WHERE session_id = ? ORDER BY rowid`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list responses for %s: %w", sessionID, err)
	}
	defer func() { s.logErr("close response rows", rows.Close()) }()

	var out []models.ResponseRecord
	for rows.Next() {
		var (
			rec       models.ResponseRecord
			submitted string
		)
		if err := rows.Scan(&rec.ItemID, &rec.RawValue, &rec.Flipped, &rec.Normalized, &submitted); err != nil {
			return nil, fmt.Errorf("scan response: %w", err)
		}
		t, err := parseTime(submitted)
		if err != nil {
			return nil, fmt.Errorf("parse submitted_at: %w", err)
		}
		rec.SubmittedAt = t
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate responses: %w", err)
	}
	return out, nil
}

func insertResponses(tx *sql.Tx, sessionID string, responses []models.ResponseRecord) error {
	for _, r := range responses {
		_, err := tx.Exec(`INSERT INTO responses (session_id, item_id, raw_value, flipped, normalized, submitted_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			sessionID, r.ItemID, r.RawValue, r.Flipped, r.Normalized, formatTime(r.SubmittedAt))
		if err != nil {
			return fmt.Errorf("insert response %s/%s: %w", sessionID, r.ItemID, err)
		}
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*models.Session, error) {
	var (
		sess      models.Session
		status    string
		createdAt string
		completed sql.NullString
	)
	if err := row.Scan(&sess.ID, &sess.ProjectID, &sess.GroupKey, &sess.GroupLabel,
		&status, &createdAt, &completed); err != nil {
		return nil, err
	}
	sess.Status = models.SessionStatus(status)
	created, err := parseTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	sess.CreatedAt = created
	if completed.Valid {
		t, err := parseTime(completed.String)
		if err != nil {
			return nil, fmt.Errorf("parse completed_at: %w", err)
		}
		sess.CompletedAt = t
	}
	return &sess, nil
}

func (s *SQLiteStore) logErr(op string, err error) {
	if err != nil {
		s.logger.Warn("sqlite store", zap.String("op", op), zap.Error(err))
	}
}

func formatTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func parseTime(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, value)
}

func nullableTime(t time.Time) sql.NullString {
	if t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(t), Valid: true}
}
