package models

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Note colors.
const (
	ColorYellow = "yellow"
	ColorCyan   = "cyan"
	ColorGreen  = "green"
	ColorPink   = "pink"
	ColorPurple = "purple"
)

// Note is a sticky note on the board canvas.
type Note struct {
	ID         string    `json:"note_id"`
	Content    string    `json:"content"`
	Color      string    `json:"color"`
	X          int       `json:"x_position"`
	Y          int       `json:"y_position"`
	ZIndex     int       `json:"z_index"`
	IsExpanded bool      `json:"is_expanded"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (n Note) Key() string { return n.ID }

func (n Note) WithKey(id string) Note {
	n.ID = id
	return n
}

// WithDefaults fills the fields the store would default.
func (n Note) WithDefaults() Note {
	if n.Color == "" {
		n.Color = ColorYellow
	}
	if n.ZIndex == 0 {
		n.ZIndex = 1
	}
	return n
}

func (n Note) Validate() error {
	return validationError(validation.ValidateStruct(&n,
		validation.Field(&n.Color, validation.In(ColorYellow, ColorCyan, ColorGreen, ColorPink, ColorPurple)),
		validation.Field(&n.Content, validation.Length(0, 10000)),
	))
}

// Edge connects two notes on the board.
type Edge struct {
	ID     string `json:"edge_id"`
	Source string `json:"source"`
	Target string `json:"target"`
}

func (e Edge) Key() string { return e.ID }

func (e Edge) WithKey(id string) Edge {
	e.ID = id
	return e
}

// Touches reports whether the edge has noteID as an endpoint.
func (e Edge) Touches(noteID string) bool {
	return e.Source == noteID || e.Target == noteID
}

func (e Edge) Validate() error {
	return validationError(validation.ValidateStruct(&e,
		validation.Field(&e.Source, validation.Required),
		validation.Field(&e.Target, validation.Required, validation.NotIn(e.Source).Error("must differ from source")),
	))
}
