package syncer

import (
	"fmt"
	"log/slog"

	"github.com/starford/checktick/internal/apperr"
	"github.com/starford/checktick/internal/models"
)

// Level classifies a notification for the UI.
type Level int

const (
	LevelSuccess Level = iota
	LevelError
	// LevelAuthExpired asks the caller to re-authenticate instead of showing
	// a generic error.
	LevelAuthExpired
)

func (l Level) String() string {
	switch l {
	case LevelSuccess:
		return "success"
	case LevelError:
		return "error"
	case LevelAuthExpired:
		return "auth_expired"
	}
	return fmt.Sprintf("level(%d)", int(l))
}

// OpKind names a mutating operation.
type OpKind string

const (
	OpCreate  OpKind = "create"
	OpUpdate  OpKind = "update"
	OpToggle  OpKind = "toggle"
	OpDelete  OpKind = "delete"
	OpReorder OpKind = "reorder"
)

var pastTense = map[OpKind]string{
	OpCreate:  "created",
	OpUpdate:  "saved",
	OpToggle:  "updated",
	OpDelete:  "deleted",
	OpReorder: "reordered",
}

// Notification is the single user-visible outcome of one operation or one
// debounced flush.
type Notification struct {
	Level  Level
	Kind   OpKind
	Entity string
	ID     string
	Patch  models.Patch
	Err    error
}

// Message renders the notification as a short toast text.
func (n Notification) Message() string {
	switch n.Level {
	case LevelSuccess:
		return fmt.Sprintf("%s %s", n.Entity, pastTense[n.Kind])
	case LevelAuthExpired:
		return "session expired, please sign in again"
	}
	return fmt.Sprintf("failed to %s %s: %v", n.Kind, n.Entity, n.Err)
}

// Notifier receives operation outcomes.
type Notifier interface {
	Notify(Notification)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Notification)

func (f NotifierFunc) Notify(n Notification) { f(n) }

// Discard drops every notification.
var Discard Notifier = NotifierFunc(func(Notification) {})

// LogNotifier writes notifications to a structured logger.
func LogNotifier(logger *slog.Logger) Notifier {
	return NotifierFunc(func(n Notification) {
		attrs := []any{
			slog.String("entity", n.Entity),
			slog.String("op", string(n.Kind)),
			slog.String("id", n.ID),
		}
		switch n.Level {
		case LevelSuccess:
			logger.Info(n.Message(), attrs...)
		case LevelAuthExpired:
			logger.Warn(n.Message(), append(attrs, slog.String("error", n.Err.Error()))...)
		default:
			logger.Error(n.Message(), append(attrs, slog.String("error", n.Err.Error()))...)
		}
	})
}

func outcome(entity string, kind OpKind, id string, patch models.Patch, err error) Notification {
	n := Notification{Level: LevelSuccess, Kind: kind, Entity: entity, ID: id, Patch: patch, Err: err}
	switch {
	case err == nil:
	case apperr.IsAuthExpired(err):
		n.Level = LevelAuthExpired
	default:
		n.Level = LevelError
	}
	return n
}
