package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"kanbanServer/backend/internal/model"
)

var (
	ErrMalformed    = errors.New("malformed payload")
	ErrUnknownEvent = fmt.Errorf("%w: unknown event", ErrMalformed)
)

// Envelope is one frame on the wire.
//
//	{"event":"item:move","ref":"<update id>","data":{"itemId":"...","targetParentId":"...","targetOrder":1500}}
type Envelope struct {
	Event string          `json:"event"`
	Ref   string          `json:"ref,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// legacy card/column event names from the first client generation
const (
	cardLock     = "card:lock"
	cardUnlock   = "card:unlock"
	cardMove     = "card:move"
	cardCreate   = "card:create"
	cardUpdate   = "card:update"
	cardDelete   = "card:delete"
	columnCreate = "column:create"
	columnUpdate = "column:update"
	columnDelete = "column:delete"
)

type cardRef struct {
	CardID string `json:"cardId"`
}

// movePayload keeps targetOrder as a pointer so an absent key is told apart from 0.
type movePayload struct {
	ItemID         string   `json:"itemId"`
	TargetParentID string   `json:"targetParentId"`
	TargetOrder    *float64 `json:"targetOrder"`
}

type cardMovePayload struct {
	CardID         string   `json:"cardId"`
	TargetColumnID string   `json:"targetColumnId"`
	TargetOrder    *float64 `json:"targetOrder"`
}

func targetOrder(v *float64) (float64, error) {
	if v == nil {
		return 0, fmt.Errorf("%w: targetOrder is required", ErrMalformed)
	}
	return *v, nil
}

type cardCreatePayload struct {
	ColumnID    string     `json:"columnId"`
	Title       *string    `json:"title"`
	Description *string    `json:"description,omitempty"`
	Order       *float64   `json:"order,omitempty"`
	AssignedTo  *string    `json:"assignedTo,omitempty"`
	Labels      *[]string  `json:"labels,omitempty"`
	DueDate     *time.Time `json:"dueDate,omitempty"`
	ClientRef   string     `json:"clientRef,omitempty"`
}

type cardUpdatePayload struct {
	CardID string       `json:"cardId"`
	Data   model.Fields `json:"data"`
}

type columnCreatePayload struct {
	BoardID   string   `json:"boardId"`
	Title     *string  `json:"title"`
	Order     *float64 `json:"order,omitempty"`
	ClientRef string   `json:"clientRef,omitempty"`
}

type columnRef struct {
	ColumnID string `json:"columnId"`
}

type columnUpdatePayload struct {
	ColumnID string       `json:"columnId"`
	Data     model.Fields `json:"data"`
}

func strict(data json.RawMessage, v any) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return fmt.Errorf("%w: missing data", ErrMalformed)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return nil
}

// DecodeIntent turns an envelope into a validated intent. Unknown event names
// and payloads that do not match the event's shape are rejected with ErrMalformed.
func DecodeIntent(env Envelope) (Intent, error) {
	var in Intent
	switch env.Event {
	case BoardJoin:
		var p Join
		if err := strict(env.Data, &p); err != nil {
			return nil, err
		}
		in = p
	case BoardLeave:
		var p Leave
		if err := strict(env.Data, &p); err != nil {
			return nil, err
		}
		in = p
	case ItemLock:
		var p Lock
		if err := strict(env.Data, &p); err != nil {
			return nil, err
		}
		in = p
	case ItemUnlock:
		var p Unlock
		if err := strict(env.Data, &p); err != nil {
			return nil, err
		}
		in = p
	case ItemMove:
		var p movePayload
		if err := strict(env.Data, &p); err != nil {
			return nil, err
		}
		ord, err := targetOrder(p.TargetOrder)
		if err != nil {
			return nil, err
		}
		in = Move{ItemID: p.ItemID, TargetParentID: p.TargetParentID, TargetOrder: ord}
	case ItemCreate:
		var p Create
		if err := strict(env.Data, &p); err != nil {
			return nil, err
		}
		in = p
	case ItemUpdate:
		var p Update
		if err := strict(env.Data, &p); err != nil {
			return nil, err
		}
		in = p
	case ItemDelete:
		var p Delete
		if err := strict(env.Data, &p); err != nil {
			return nil, err
		}
		in = p
	default:
		legacy, err := decodeLegacy(env)
		if err != nil {
			return nil, err
		}
		in = legacy
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}
	return in, nil
}

func decodeLegacy(env Envelope) (Intent, error) {
	switch env.Event {
	case cardLock, cardUnlock, cardDelete:
		var p cardRef
		if err := strict(env.Data, &p); err != nil {
			return nil, err
		}
		switch env.Event {
		case cardLock:
			return Lock{ItemID: p.CardID}, nil
		case cardUnlock:
			return Unlock{ItemID: p.CardID}, nil
		}
		return Delete{ItemID: p.CardID}, nil
	case cardMove:
		var p cardMovePayload
		if err := strict(env.Data, &p); err != nil {
			return nil, err
		}
		ord, err := targetOrder(p.TargetOrder)
		if err != nil {
			return nil, err
		}
		return Move{ItemID: p.CardID, TargetParentID: p.TargetColumnID, TargetOrder: ord}, nil
	case cardCreate:
		var p cardCreatePayload
		if err := strict(env.Data, &p); err != nil {
			return nil, err
		}
		return Create{
			ParentID: p.ColumnID,
			Order:    p.Order,
			Fields: model.Fields{
				Title:       p.Title,
				Description: p.Description,
				AssigneeID:  p.AssignedTo,
				Labels:      p.Labels,
				DueDate:     p.DueDate,
			},
			ClientRef: p.ClientRef,
		}, nil
	case cardUpdate:
		var p cardUpdatePayload
		if err := strict(env.Data, &p); err != nil {
			return nil, err
		}
		return Update{ItemID: p.CardID, Fields: p.Data}, nil
	case columnCreate:
		var p columnCreatePayload
		if err := strict(env.Data, &p); err != nil {
			return nil, err
		}
		return Create{ParentID: p.BoardID, Order: p.Order, Fields: model.Fields{Title: p.Title}, ClientRef: p.ClientRef}, nil
	case columnUpdate:
		var p columnUpdatePayload
		if err := strict(env.Data, &p); err != nil {
			return nil, err
		}
		return Update{ItemID: p.ColumnID, Fields: p.Data}, nil
	case columnDelete:
		var p columnRef
		if err := strict(env.Data, &p); err != nil {
			return nil, err
		}
		return Delete{ItemID: p.ColumnID}, nil
	}
	return nil, fmt.Errorf("%w %q", ErrUnknownEvent, env.Event)
}

// EncodeIntent wraps an intent for sending; ref correlates the server's reply.
func EncodeIntent(ref string, in Intent) (Envelope, error) {
	data, err := json.Marshal(in)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Event: in.IntentName(), Ref: ref, Data: data}, nil
}

func EncodeEvent(evt Event) (Envelope, error) {
	data, err := json.Marshal(evt)
	if err != nil {
		return Envelope{}, err
	}
	env := Envelope{Event: evt.EventName(), Data: data}
	if e, ok := evt.(Error); ok {
		env.Ref = e.Ref
	}
	return env, nil
}

// DecodeEvent is the client-side counterpart of DecodeIntent. Unknown fields
// are tolerated so newer servers can extend payloads.
func DecodeEvent(env Envelope) (Event, error) {
	var (
		evt Event
		err error
	)
	switch env.Event {
	case SessionWelcome:
		evt, err = decodeInto[Welcome](env.Data)
	case UserJoinedName:
		evt, err = decodeInto[UserJoined](env.Data)
	case UserLeftName:
		evt, err = decodeInto[UserLeft](env.Data)
	case UsersOnline:
		evt, err = decodeInto[OnlineUsers](env.Data)
	case ItemLockedName:
		evt, err = decodeInto[Locked](env.Data)
	case ItemUnlocked:
		evt, err = decodeInto[Unlocked](env.Data)
	case ItemMoved:
		evt, err = decodeInto[Moved](env.Data)
	case ItemCreated:
		evt, err = decodeInto[Created](env.Data)
	case ItemUpdated:
		evt, err = decodeInto[Updated](env.Data)
	case ItemDeleted:
		evt, err = decodeInto[Deleted](env.Data)
	case ErrorName:
		var e Error
		e, err = decodeInto[Error](env.Data)
		if err == nil && e.Ref == "" {
			e.Ref = env.Ref
		}
		evt = e
	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownEvent, env.Event)
	}
	if err != nil {
		return nil, err
	}
	return evt, nil
}

func decodeInto[T any](data json.RawMessage) (T, error) {
	var v T
	if len(bytes.TrimSpace(data)) == 0 {
		return v, fmt.Errorf("%w: missing data", ErrMalformed)
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return v, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return v, nil
}
