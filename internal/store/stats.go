package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/starford/checktick/internal/apperr"
	"github.com/starford/checktick/internal/models"
)

// DefaultPomodoroMinutes is used when a session is started without a length.
const DefaultPomodoroMinutes = 25

// streakHorizon bounds how far back a streak is searched.
const streakHorizon = 365

// StartPomodoro opens a focus session.
func (db *DB) StartPomodoro(ctx context.Context, taskID string, minutes int) (models.PomodoroSession, error) {
	if minutes <= 0 {
		minutes = DefaultPomodoroMinutes
	}
	s := models.PomodoroSession{ID: newID("pomo"), TaskID: taskID, Duration: minutes, CreatedAt: db.now()}
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO pomodoro_sessions (session_id, task_id, duration, completed, created_at) VALUES (?, ?, ?, 0, ?)`,
		s.ID, s.TaskID, s.Duration, s.CreatedAt)
	if err != nil {
		return s, fmt.Errorf("store: insert pomodoro: %w", err)
	}
	return s, nil
}

// CompletePomodoro marks a session completed.
func (db *DB) CompletePomodoro(ctx context.Context, id string) (models.PomodoroSession, error) {
	res, err := db.conn.ExecContext(ctx, `UPDATE pomodoro_sessions SET completed = 1 WHERE session_id = ?`, id)
	if err != nil {
		return models.PomodoroSession{}, fmt.Errorf("store: complete pomodoro: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.PomodoroSession{}, fmt.Errorf("store: pomodoro %s: %w", id, apperr.ErrNotFound)
	}
	var s models.PomodoroSession
	err = db.conn.QueryRowContext(ctx,
		`SELECT session_id, task_id, duration, completed, created_at FROM pomodoro_sessions WHERE session_id = ?`, id).
		Scan(&s.ID, &s.TaskID, &s.Duration, &s.Completed, &s.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return s, fmt.Errorf("store: pomodoro %s: %w", id, apperr.ErrNotFound)
	}
	return s, err
}

func (db *DB) count(ctx context.Context, query string, args ...any) (int, error) {
	var n int
	if err := db.conn.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("store: count: %w", err)
	}
	return n, nil
}

// Stats computes the dashboard counters as of now (UTC).
func (db *DB) Stats(ctx context.Context) (models.Stats, error) {
	now := db.now()
	today := now.Format(models.DateLayout)
	var (
		st  models.Stats
		err error
	)
	counts := []struct {
		dst   *int
		query string
		args  []any
	}{
		{&st.Total, `SELECT count(*) FROM tasks`, nil},
		{&st.Completed, `SELECT count(*) FROM tasks WHERE completed = 1`, nil},
		{&st.TodayTasks, `SELECT count(*) FROM tasks WHERE due_date = ?`, []any{today}},
		{&st.TodayCompleted, `SELECT count(*) FROM tasks WHERE due_date = ? AND completed = 1`, []any{today}},
		{&st.PomodoroSessions, `SELECT count(*) FROM pomodoro_sessions WHERE completed = 1`, nil},
	}
	for _, c := range counts {
		if *c.dst, err = db.count(ctx, c.query, c.args...); err != nil {
			return st, err
		}
	}
	st.Pending = st.Total - st.Completed
	if st.Total > 0 {
		st.CompletionRate = math.Round(float64(st.Completed)/float64(st.Total)*1000) / 10
	}

	if st.Streak, err = db.streak(ctx, now); err != nil {
		return st, err
	}

	day := truncateDay(now)
	thisWeek := day.AddDate(0, 0, -mondayOffset(day))
	if st.ThisWeekData, err = db.weekData(ctx, thisWeek); err != nil {
		return st, err
	}
	if st.LastWeekData, err = db.weekData(ctx, thisWeek.AddDate(0, 0, -7)); err != nil {
		return st, err
	}
	return st, nil
}

// streak counts consecutive days with at least one completion, ending at
// the most recent such day within the horizon.
func (db *DB) streak(ctx context.Context, now time.Time) (int, error) {
	since := truncateDay(now).AddDate(0, 0, -streakHorizon)
	rows, err := db.conn.QueryContext(ctx,
		`SELECT created_at FROM activity_log WHERE action = 'completed' AND created_at >= ?`, since)
	if err != nil {
		return 0, fmt.Errorf("store: streak: %w", err)
	}
	defer rows.Close()
	days := make(map[string]bool)
	for rows.Next() {
		var at time.Time
		if err := rows.Scan(&at); err != nil {
			return 0, err
		}
		days[at.UTC().Format(models.DateLayout)] = true
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}

	streak := 0
	d := truncateDay(now)
	for i := 0; i <= streakHorizon; i++ {
		if days[d.Format(models.DateLayout)] {
			streak++
		} else if streak > 0 {
			break
		}
		d = d.AddDate(0, 0, -1)
	}
	return streak, nil
}

func (db *DB) weekData(ctx context.Context, monday time.Time) ([]models.DayCount, error) {
	out := make([]models.DayCount, 0, 7)
	for i := 0; i < 7; i++ {
		start := monday.AddDate(0, 0, i)
		n, err := db.count(ctx,
			`SELECT count(*) FROM tasks WHERE completed = 1 AND completed_at >= ? AND completed_at < ?`,
			start, start.AddDate(0, 0, 1))
		if err != nil {
			return nil, err
		}
		out = append(out, models.DayCount{Day: start.Format("Mon"), Completed: n})
	}
	return out, nil
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// mondayOffset is the number of days since the last Monday.
func mondayOffset(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}
