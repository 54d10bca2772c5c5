// Package view projects a task list for display. Every function is pure and
// returns a new slice; the input order (the cache order) is never modified.
package view

import (
	"sort"
	"strings"

	"github.com/starford/checktick/internal/models"
)

// All is the wildcard value for Category, Priority and Status.
const All = "all"

// Status values.
const (
	StatusCompleted = "completed"
	StatusPending   = "pending"
)

// Sort keys.
const (
	SortOrder    = "order"
	SortDueDate  = "due_date"
	SortPriority = "priority"
)

// Filter selects the tasks shown in one view. Empty fields match everything.
type Filter struct {
	Search   string `json:"search,omitempty"`
	Category string `json:"category,omitempty"`
	Priority string `json:"priority,omitempty"`
	Status   string `json:"status,omitempty"`
}

func wildcard(s string) bool { return s == "" || s == All }

// Match reports whether t passes the filter.
func (f Filter) Match(t models.Task) bool {
	if q := strings.TrimSpace(f.Search); q != "" {
		q = strings.ToLower(q)
		if !strings.Contains(strings.ToLower(t.Title), q) &&
			!strings.Contains(strings.ToLower(t.Description), q) {
			return false
		}
	}
	if !wildcard(f.Category) && !strings.EqualFold(t.Category, f.Category) {
		return false
	}
	if !wildcard(f.Priority) && t.Priority != f.Priority {
		return false
	}
	switch f.Status {
	case StatusCompleted:
		return t.Completed
	case StatusPending:
		return !t.Completed
	}
	return true
}

// Apply returns the matching tasks in input order.
func (f Filter) Apply(tasks []models.Task) []models.Task {
	out := make([]models.Task, 0, len(tasks))
	for _, t := range tasks {
		if f.Match(t) {
			out = append(out, t)
		}
	}
	return out
}

var priorityRank = map[string]int{
	models.PriorityHigh:   0,
	models.PriorityMedium: 1,
	models.PriorityLow:    2,
}

// Sort returns tasks ordered by key. Ties keep input order; tasks without a
// due date sort last under SortDueDate. Unknown keys sort by order.
func Sort(tasks []models.Task, key string) []models.Task {
	out := append([]models.Task(nil), tasks...)
	var less func(a, b models.Task) bool
	switch key {
	case SortDueDate:
		less = func(a, b models.Task) bool {
			switch {
			case a.DueDate == b.DueDate:
				return false
			case a.DueDate == "":
				return false
			case b.DueDate == "":
				return true
			}
			// DateLayout sorts lexically.
			return a.DueDate < b.DueDate
		}
	case SortPriority:
		less = func(a, b models.Task) bool {
			return rank(a.Priority) < rank(b.Priority)
		}
	default:
		less = func(a, b models.Task) bool { return a.Order < b.Order }
	}
	sort.SliceStable(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}

func rank(p string) int {
	if r, ok := priorityRank[p]; ok {
		return r
	}
	return len(priorityRank)
}

// Project filters then sorts.
func Project(tasks []models.Task, f Filter, key string) []models.Task {
	return Sort(f.Apply(tasks), key)
}

// IDs returns the ids of tasks in order.
func IDs(tasks []models.Task) []string {
	out := make([]string, len(tasks))
	for i, t := range tasks {
		out[i] = t.ID
	}
	return out
}
