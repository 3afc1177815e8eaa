package repo

import (
	"context"
	"database/sql"

	"reelline/internal/domain"
)

func (r Repo) UpsertEditorStat(ctx context.Context, tx *sql.Tx, s domain.EditorStat) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO editor_stats(editor_id,total_delivered,total_on_time,total_late,consecutive_late,day_streak,xp,level,rank,avg_quality)
VALUES (?,?,?,?,?,?,?,?,?,?)
ON CONFLICT(editor_id) DO UPDATE SET total_delivered=excluded.total_delivered, total_on_time=excluded.total_on_time,
total_late=excluded.total_late, consecutive_late=excluded.consecutive_late, day_streak=excluded.day_streak, xp=excluded.xp,
level=excluded.level, rank=excluded.rank, avg_quality=excluded.avg_quality`,
		s.EditorID, s.TotalDelivered, s.TotalOnTime, s.TotalLate, s.ConsecutiveLate, s.DayStreak, s.XP, max(s.Level, 1), s.Rank, s.AvgQuality)
	return err
}

func (r Repo) ListEditorStats(ctx context.Context) ([]domain.EditorStat, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT editor_id,total_delivered,total_on_time,total_late,consecutive_late,day_streak,xp,level,rank,avg_quality FROM editor_stats ORDER BY editor_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.EditorStat
	for rows.Next() {
		var s domain.EditorStat
		if err := rows.Scan(&s.EditorID, &s.TotalDelivered, &s.TotalOnTime, &s.TotalLate, &s.ConsecutiveLate, &s.DayStreak, &s.XP, &s.Level, &s.Rank, &s.AvgQuality); err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

func (r Repo) InsertQuestion(ctx context.Context, tx *sql.Tx, q domain.Question) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT OR REPLACE INTO questions(id,project_id,video_id,author_id,body,answered,created_at) VALUES (?,?,?,?,?,?,?)`,
		q.ID, q.ProjectID, nullable(q.VideoID), q.AuthorID, q.Body, boolInt(q.Answered), timeText(q.CreatedAt))
	return err
}

func (r Repo) ListQuestions(ctx context.Context) ([]domain.Question, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,project_id,COALESCE(video_id,''),author_id,body,answered,created_at FROM questions ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Question
	for rows.Next() {
		var q domain.Question
		var answered int
		var created string
		if err := rows.Scan(&q.ID, &q.ProjectID, &q.VideoID, &q.AuthorID, &q.Body, &answered, &created); err != nil {
			return nil, err
		}
		q.Answered = answered != 0
		if q.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		res = append(res, q)
	}
	return res, rows.Err()
}
