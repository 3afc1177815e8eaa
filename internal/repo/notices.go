package repo

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"reelline/internal/domain"
)

// InsertLateNotice records a detected late transition once per key. It
// reports whether the row is new.
func (r Repo) InsertLateNotice(ctx context.Context, tx *sql.Tx, n domain.LateNotice) (bool, error) {
	res, err := r.q(tx).ExecContext(ctx, `INSERT OR IGNORE INTO late_notices(key,video_id,due_at,detected_at) VALUES (?,?,?,?)`,
		n.Key, n.VideoID, timeText(n.DueAt), timeText(n.DetectedAt))
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	return affected > 0, err
}

// ClaimLateNotice takes the right to deliver an unsent notice. Only one caller
// wins; a claim older than staleBefore is treated as abandoned.
func (r Repo) ClaimLateNotice(ctx context.Context, key string, at, staleBefore time.Time) (bool, error) {
	res, err := r.DB.ExecContext(ctx, `UPDATE late_notices SET claimed_at=? WHERE key=? AND notified_at IS NULL AND (claimed_at IS NULL OR claimed_at < ?)`,
		timeText(at), key, timeText(staleBefore))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func (r Repo) MarkNoticeSent(ctx context.Context, key string, at time.Time) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE late_notices SET notified_at=?, last_error=NULL, attempts=attempts+1 WHERE key=?`, timeText(at), key)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) MarkNoticeFailed(ctx context.Context, key string, cause error) error {
	msg := "unknown error"
	if cause != nil {
		msg = cause.Error()
	}
	_, err := r.DB.ExecContext(ctx, `UPDATE late_notices SET last_error=?, claimed_at=NULL, attempts=attempts+1 WHERE key=?`, msg, key)
	return err
}

const noticeColumns = `key,video_id,due_at,detected_at,notified_at,COALESCE(last_error,'')`

func scanNotice(row rowScanner) (domain.LateNotice, error) {
	var n domain.LateNotice
	var due, detected string
	var notified sql.NullString
	if err := row.Scan(&n.Key, &n.VideoID, &due, &detected, &notified, &n.LastError); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return n, ErrNotFound
		}
		return n, err
	}
	var err error
	if n.DueAt, err = parseTime(due); err != nil {
		return n, err
	}
	if n.DetectedAt, err = parseTime(detected); err != nil {
		return n, err
	}
	n.NotifiedAt, err = parseNullTime(notified)
	return n, err
}

func (r Repo) GetLateNotice(ctx context.Context, key string) (domain.LateNotice, error) {
	return scanNotice(r.DB.QueryRowContext(ctx, `SELECT `+noticeColumns+` FROM late_notices WHERE key=?`, key))
}

// PendingLateNotices returns notices that have not been delivered yet, oldest first.
func (r Repo) PendingLateNotices(ctx context.Context, limit int) ([]domain.LateNotice, error) {
	if limit <= 0 {
		limit = 100
	}
	return r.listNotices(ctx, `WHERE notified_at IS NULL ORDER BY detected_at, key LIMIT ?`, limit)
}

func (r Repo) ListLateNotices(ctx context.Context, videoID string) ([]domain.LateNotice, error) {
	if videoID == "" {
		return r.listNotices(ctx, `ORDER BY detected_at, key`)
	}
	return r.listNotices(ctx, `WHERE video_id=? ORDER BY detected_at, key`, videoID)
}

func (r Repo) listNotices(ctx context.Context, tail string, args ...any) ([]domain.LateNotice, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+noticeColumns+` FROM late_notices `+tail, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.LateNotice
	for rows.Next() {
		n, err := scanNotice(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, n)
	}
	return res, rows.Err()
}
