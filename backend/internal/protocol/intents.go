package protocol

import (
	"fmt"
	"strings"

	"kanbanServer/backend/internal/model"
	"kanbanServer/backend/internal/order"
)

// Intent is a client → server request.
type Intent interface {
	IntentName() string
	Validate() error
}

type Join struct {
	BoardID string `json:"boardId"`
}

type Leave struct {
	BoardID string `json:"boardId"`
}

type Lock struct {
	ItemID string `json:"itemId"`
}

type Unlock struct {
	ItemID string `json:"itemId"`
}

type Move struct {
	ItemID         string  `json:"itemId"`
	TargetParentID string  `json:"targetParentId"`
	TargetOrder    float64 `json:"targetOrder"`
}

// Create adds a column (parent is a board) or a card (parent is a column).
// Order is optional; the server appends after the last sibling when absent.
// ClientRef is echoed back on item:created so the issuer can swap its temporary item.
type Create struct {
	ParentID  string       `json:"parentId"`
	Fields    model.Fields `json:"fields"`
	Order     *float64     `json:"order,omitempty"`
	ClientRef string       `json:"clientRef,omitempty"`
}

type Update struct {
	ItemID string       `json:"itemId"`
	Fields model.Fields `json:"fields"`
}

type Delete struct {
	ItemID string `json:"itemId"`
}

func (Join) IntentName() string   { return BoardJoin }
func (Leave) IntentName() string  { return BoardLeave }
func (Lock) IntentName() string   { return ItemLock }
func (Unlock) IntentName() string { return ItemUnlock }
func (Move) IntentName() string   { return ItemMove }
func (Create) IntentName() string { return ItemCreate }
func (Update) IntentName() string { return ItemUpdate }
func (Delete) IntentName() string { return ItemDelete }

func required(name, v string) error {
	if strings.TrimSpace(v) == "" {
		return fmt.Errorf("%w: %s is required", ErrMalformed, name)
	}
	return nil
}

func (j Join) Validate() error   { return required("boardId", j.BoardID) }
func (l Leave) Validate() error  { return required("boardId", l.BoardID) }
func (l Lock) Validate() error   { return required("itemId", l.ItemID) }
func (u Unlock) Validate() error { return required("itemId", u.ItemID) }
func (d Delete) Validate() error { return required("itemId", d.ItemID) }

func (m Move) Validate() error {
	if err := required("itemId", m.ItemID); err != nil {
		return err
	}
	if err := required("targetParentId", m.TargetParentID); err != nil {
		return err
	}
	if !order.Valid(m.TargetOrder) {
		return fmt.Errorf("%w: targetOrder must be a finite number", ErrMalformed)
	}
	return nil
}

func (c Create) Validate() error {
	if err := required("parentId", c.ParentID); err != nil {
		return err
	}
	if c.Fields.Title == nil || strings.TrimSpace(*c.Fields.Title) == "" {
		return fmt.Errorf("%w: fields.title is required", ErrMalformed)
	}
	if c.Order != nil && !order.Valid(*c.Order) {
		return fmt.Errorf("%w: order must be a finite number", ErrMalformed)
	}
	return nil
}

func (u Update) Validate() error {
	if err := required("itemId", u.ItemID); err != nil {
		return err
	}
	if u.Fields.Empty() {
		return fmt.Errorf("%w: fields must change at least one value", ErrMalformed)
	}
	if u.Fields.Title != nil && strings.TrimSpace(*u.Fields.Title) == "" {
		return fmt.Errorf("%w: fields.title cannot be blank", ErrMalformed)
	}
	return nil
}
