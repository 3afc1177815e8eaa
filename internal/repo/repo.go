package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"reelline/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (r Repo) q(tx *sql.Tx) execer {
	if tx != nil {
		return tx
	}
	return r.DB
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil || *v == "" {
		return nil
	}
	return *v
}

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func timeText(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func nullableTime(t *time.Time) any {
	if t == nil || t.IsZero() {
		return nil
	}
	return timeText(*t)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	return t.UTC(), nil
}

func parseNullTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	t, err := parseTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func stringPtr(s sql.NullString) *string {
	if !s.Valid || s.String == "" {
		return nil
	}
	v := s.String
	return &v
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

const projectColumns = `id,client_id,title,requested_videos,deadline,priority,created_at,updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProject(row rowScanner) (domain.Project, error) {
	var p domain.Project
	var deadline sql.NullString
	var created, updated string
	if err := row.Scan(&p.ID, &p.ClientID, &p.Title, &p.RequestedVideos, &deadline, &p.Priority, &created, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return p, ErrNotFound
		}
		return p, err
	}
	var err error
	if p.Deadline, err = parseNullTime(deadline); err != nil {
		return p, err
	}
	if p.CreatedAt, err = parseTime(created); err != nil {
		return p, err
	}
	p.UpdatedAt, err = parseTime(updated)
	return p, err
}

func (r Repo) InsertProject(ctx context.Context, tx *sql.Tx, p domain.Project) error {
	if p.Priority == "" {
		p.Priority = "normal"
	}
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO projects(`+projectColumns+`) VALUES (?,?,?,?,?,?,?,?)
ON CONFLICT(id) DO UPDATE SET client_id=excluded.client_id, title=excluded.title, requested_videos=excluded.requested_videos,
deadline=excluded.deadline, priority=excluded.priority, updated_at=excluded.updated_at`,
		p.ID, p.ClientID, p.Title, p.RequestedVideos, nullableTime(p.Deadline), p.Priority, timeText(p.CreatedAt), timeText(p.UpdatedAt))
	return err
}

func (r Repo) GetProject(ctx context.Context, id string) (domain.Project, error) {
	return scanProject(r.DB.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE id=?`, id))
}

func (r Repo) ListProjects(ctx context.Context) ([]domain.Project, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+projectColumns+` FROM projects ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

const videoColumns = `id,project_id,title,assignee_id,status,started_at,allowed_duration_minutes,deadline,validated,revision_count,completed_at,created_at,updated_at`

func scanVideo(row rowScanner) (domain.Video, error) {
	var v domain.Video
	var assignee, started, deadline, completed sql.NullString
	var validated int
	var created, updated string
	err := row.Scan(&v.ID, &v.ProjectID, &v.Title, &assignee, &v.Status, &started, &v.AllowedDurationMinutes, &deadline,
		&validated, &v.RevisionCount, &completed, &created, &updated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return v, ErrNotFound
		}
		return v, err
	}
	v.AssigneeID = stringPtr(assignee)
	v.Validated = validated != 0
	if v.StartedAt, err = parseNullTime(started); err != nil {
		return v, err
	}
	if v.Deadline, err = parseNullTime(deadline); err != nil {
		return v, err
	}
	if v.CompletedAt, err = parseNullTime(completed); err != nil {
		return v, err
	}
	if v.CreatedAt, err = parseTime(created); err != nil {
		return v, err
	}
	v.UpdatedAt, err = parseTime(updated)
	return v, err
}

func (r Repo) InsertVideo(ctx context.Context, tx *sql.Tx, v domain.Video) error {
	if v.Status == "" {
		v.Status = "new"
	}
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO videos(`+videoColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)
ON CONFLICT(id) DO UPDATE SET project_id=excluded.project_id, title=excluded.title, assignee_id=excluded.assignee_id,
status=excluded.status, started_at=excluded.started_at, allowed_duration_minutes=excluded.allowed_duration_minutes,
deadline=excluded.deadline, validated=excluded.validated, revision_count=excluded.revision_count,
completed_at=excluded.completed_at, updated_at=excluded.updated_at`,
		v.ID, v.ProjectID, v.Title, nullableStringPtr(v.AssigneeID), v.Status, nullableTime(v.StartedAt), v.AllowedDurationMinutes,
		nullableTime(v.Deadline), boolInt(v.Validated), v.RevisionCount, nullableTime(v.CompletedAt), timeText(v.CreatedAt), timeText(v.UpdatedAt))
	return err
}

// UpdateVideo writes the mutable lifecycle fields of v.
func (r Repo) UpdateVideo(ctx context.Context, tx *sql.Tx, v domain.Video) error {
	res, err := r.q(tx).ExecContext(ctx, `UPDATE videos SET assignee_id=?, status=?, started_at=?, allowed_duration_minutes=?, deadline=?,
validated=?, revision_count=?, completed_at=?, updated_at=? WHERE id=?`,
		nullableStringPtr(v.AssigneeID), v.Status, nullableTime(v.StartedAt), v.AllowedDurationMinutes, nullableTime(v.Deadline),
		boolInt(v.Validated), v.RevisionCount, nullableTime(v.CompletedAt), timeText(v.UpdatedAt), v.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkVideoLate moves an active video to late. Rows already late, or moved on
// by someone else since the snapshot was read, are left alone. It reports
// whether this call changed the row.
func (r Repo) MarkVideoLate(ctx context.Context, tx *sql.Tx, videoID string, at time.Time) (bool, error) {
	res, err := r.q(tx).ExecContext(ctx, `UPDATE videos SET status='late', updated_at=? WHERE id=? AND lower(trim(status)) IN ('active','in_progress')`, timeText(at), videoID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (r Repo) GetVideo(ctx context.Context, id string) (domain.Video, error) {
	return scanVideo(r.DB.QueryRowContext(ctx, `SELECT `+videoColumns+` FROM videos WHERE id=?`, id))
}

func (r Repo) GetVideoTx(ctx context.Context, tx *sql.Tx, id string) (domain.Video, error) {
	return scanVideo(tx.QueryRowContext(ctx, `SELECT `+videoColumns+` FROM videos WHERE id=?`, id))
}

type VideoFilters struct {
	ProjectID  string
	AssigneeID string
	Status     string
}

func (r Repo) ListVideos(ctx context.Context, f VideoFilters) ([]domain.Video, error) {
	var clauses []string
	var args []any
	if f.ProjectID != "" {
		clauses = append(clauses, "project_id=?")
		args = append(args, f.ProjectID)
	}
	if f.AssigneeID != "" {
		clauses = append(clauses, "assignee_id=?")
		args = append(args, f.AssigneeID)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT `+videoColumns+` FROM videos `+where+` ORDER BY id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Video
	for rows.Next() {
		v, err := scanVideo(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, v)
	}
	return res, rows.Err()
}
