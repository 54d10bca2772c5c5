// Package models defines the domain types exchanged with the remote store.
package models

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Task priorities.
const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
)

// Task categories.
const (
	CategoryPersonal = "personal"
	CategoryWork     = "work"
	CategoryStudy    = "study"
	CategoryHealth   = "health"
)

// Recurrence rules.
const (
	RecurDaily   = "daily"
	RecurWeekly  = "weekly"
	RecurMonthly = "monthly"
)

// DateLayout is the wire format of due dates.
const DateLayout = "2006-01-02"

// Task is a to-do item. Order is dense and defines the display sequence.
type Task struct {
	ID          string     `json:"task_id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Priority    string     `json:"priority"`
	Category    string     `json:"category"`
	DueDate     string     `json:"due_date,omitempty"`
	Completed   bool       `json:"completed"`
	Order       int        `json:"order"`
	Recurring   string     `json:"recurring,omitempty"`
	Subtasks    []Subtask  `json:"subtasks"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Subtask is a checklist entry stored inline on its task.
type Subtask struct {
	Title     string `json:"title"`
	Completed bool   `json:"completed"`
}

// Key returns the task id.
func (t Task) Key() string { return t.ID }

// WithKey returns a copy carrying id.
func (t Task) WithKey(id string) Task {
	t.ID = id
	return t
}

// WithOrder returns a copy at position order.
func (t Task) WithOrder(order int) Task {
	t.Order = order
	return t
}

// Position returns the task's order value.
func (t Task) Position() int { return t.Order }

// WithDefaults fills the fields the store would default.
func (t Task) WithDefaults() Task {
	if t.Priority == "" {
		t.Priority = PriorityMedium
	}
	if t.Category == "" {
		t.Category = CategoryPersonal
	}
	if t.Subtasks == nil {
		t.Subtasks = []Subtask{}
	}
	return t
}

// Validate checks the task's user-editable fields.
func (t Task) Validate() error {
	return validationError(validation.ValidateStruct(&t,
		validation.Field(&t.Title, validation.Required, validation.Length(1, 500)),
		validation.Field(&t.Priority, validation.In(PriorityLow, PriorityMedium, PriorityHigh)),
		validation.Field(&t.Category, validation.Length(0, 64)),
		validation.Field(&t.DueDate, validation.Date(DateLayout)),
		validation.Field(&t.Recurring, validation.In(RecurDaily, RecurWeekly, RecurMonthly)),
	))
}

// OrderItem is one entry of a batched reorder request.
type OrderItem struct {
	ID    string `json:"task_id"`
	Order int    `json:"order"`
}

// NextDue returns the due date of the next occurrence of a recurring task.
// ok is false when the task does not recur.
func (t Task) NextDue(now time.Time) (string, bool) {
	base := now
	if t.DueDate != "" {
		if d, err := time.Parse(DateLayout, t.DueDate); err == nil {
			base = d
		}
	}
	switch t.Recurring {
	case RecurDaily:
		return base.AddDate(0, 0, 1).Format(DateLayout), true
	case RecurWeekly:
		return base.AddDate(0, 0, 7).Format(DateLayout), true
	case RecurMonthly:
		return base.AddDate(0, 1, 0).Format(DateLayout), true
	}
	return "", false
}
