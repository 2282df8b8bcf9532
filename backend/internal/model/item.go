package model

import (
	"slices"
	"time"
)

type Kind string

const (
	KindColumn Kind = "column"
	KindCard   Kind = "card"
)

// Item is a column (parent = board) or a card (parent = column).
type Item struct {
	ID          string     `json:"id"`
	Kind        Kind       `json:"kind"`
	BoardID     string     `json:"boardId"`
	ParentID    string     `json:"parentId"`
	Order       float64    `json:"order"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	AssigneeID  string     `json:"assignedTo,omitempty"`
	Labels      []string   `json:"labels,omitempty"`
	DueDate     *time.Time `json:"dueDate,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// Clone returns a deep copy; Labels and DueDate are not shared with the receiver.
func (it Item) Clone() Item {
	out := it
	if it.Labels != nil {
		out.Labels = slices.Clone(it.Labels)
	}
	if it.DueDate != nil {
		d := *it.DueDate
		out.DueDate = &d
	}
	return out
}

// Fields is a partial update of an item's mutable fields. Nil means untouched.
type Fields struct {
	Title       *string    `json:"title,omitempty"`
	Description *string    `json:"description,omitempty"`
	AssigneeID  *string    `json:"assignedTo,omitempty"`
	Labels      *[]string  `json:"labels,omitempty"`
	DueDate     *time.Time `json:"dueDate,omitempty"`
}

func (f Fields) Empty() bool {
	return f.Title == nil && f.Description == nil && f.AssigneeID == nil && f.Labels == nil && f.DueDate == nil
}

// ApplyTo writes the non-nil fields into it.
func (f Fields) ApplyTo(it *Item) {
	if f.Title != nil {
		it.Title = *f.Title
	}
	if f.Description != nil {
		it.Description = *f.Description
	}
	if f.AssigneeID != nil {
		it.AssigneeID = *f.AssigneeID
	}
	if f.Labels != nil {
		it.Labels = slices.Clone(*f.Labels)
	}
	if f.DueDate != nil {
		d := *f.DueDate
		it.DueDate = &d
	}
}

type Board struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	OwnerID     string    `json:"ownerId,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// BoardSnapshot is a board with its columns and cards, each list sorted by order.
type BoardSnapshot struct {
	Board   Board  `json:"board"`
	Columns []Item `json:"columns"`
	Cards   []Item `json:"cards"`
}
