package models

import "time"

// PomodoroSession is one focus interval, optionally tied to a task.
type PomodoroSession struct {
	ID        string    `json:"session_id"`
	TaskID    string    `json:"task_id,omitempty"`
	Duration  int       `json:"duration"`
	Completed bool      `json:"completed"`
	CreatedAt time.Time `json:"created_at"`
}

// DayCount is the number of tasks completed on one weekday.
type DayCount struct {
	Day       string `json:"day"`
	Completed int    `json:"completed"`
}

// Stats is the dashboard summary computed by the store.
type Stats struct {
	Total            int        `json:"total"`
	Completed        int        `json:"completed"`
	Pending          int        `json:"pending"`
	TodayTasks       int        `json:"today_tasks"`
	TodayCompleted   int        `json:"today_completed"`
	Streak           int        `json:"streak"`
	CompletionRate   float64    `json:"completion_rate"`
	PomodoroSessions int        `json:"pomodoro_sessions"`
	ThisWeekData     []DayCount `json:"this_week_data"`
	LastWeekData     []DayCount `json:"last_week_data"`
}
