// Package protocol defines the real-time wire format shared by the board server
// and the Go client: one JSON envelope per WebSocket text frame, with a typed
// payload per event name.
package protocol

import (
	"kanbanServer/backend/internal/model"
)

// Client → server.
const (
	BoardJoin  = "board:join"
	BoardLeave = "board:leave"
	ItemLock   = "item:lock"
	ItemUnlock = "item:unlock"
	ItemMove   = "item:move"
	ItemCreate = "item:create"
	ItemUpdate = "item:update"
	ItemDelete = "item:delete"
)

// Server → client.
const (
	SessionWelcome = "session:welcome"
	UserJoinedName = "user:joined"
	UserLeftName   = "user:left"
	UsersOnline    = "users:online"
	ItemLockedName = "item:locked"
	ItemUnlocked   = "item:unlocked"
	ItemMoved      = "item:moved"
	ItemCreated    = "item:created"
	ItemUpdated    = "item:updated"
	ItemDeleted    = "item:deleted"
	ErrorName      = "error"
)

// Event is a server → client message.
type Event interface {
	EventName() string
}

type Welcome struct {
	SessionID string         `json:"sessionId"`
	User      model.Identity `json:"user"`
}

type UserJoined struct {
	Presence model.Presence `json:"presence"`
}

type UserLeft struct {
	UserID    string `json:"userId"`
	SessionID string `json:"sessionId"`
}

type OnlineUsers struct {
	BoardID string           `json:"boardId"`
	Users   []model.Presence `json:"users"`
}

type Locked struct {
	ItemID    string         `json:"itemId"`
	UserID    string         `json:"userId"`
	SessionID string         `json:"sessionId"`
	User      model.Identity `json:"user"`
}

type Unlocked struct {
	ItemID string `json:"itemId"`
}

type Moved struct {
	Item         model.Item `json:"item"`
	FromParentID string     `json:"fromParentId"`
	ToParentID   string     `json:"toParentId"`
}

type Created struct {
	Item      model.Item `json:"item"`
	ClientRef string     `json:"clientRef,omitempty"`
}

type Updated struct {
	Item model.Item `json:"item"`
}

type Deleted struct {
	ItemID   string `json:"itemId"`
	ParentID string `json:"parentId"`
}

// Error is scoped to one session. Ref echoes the correlation id of the intent
// that failed, when there was one.
type Error struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
	Ref     string `json:"ref,omitempty"`
}

func (Welcome) EventName() string     { return SessionWelcome }
func (UserJoined) EventName() string  { return UserJoinedName }
func (UserLeft) EventName() string    { return UserLeftName }
func (OnlineUsers) EventName() string { return UsersOnline }
func (Locked) EventName() string      { return ItemLockedName }
func (Unlocked) EventName() string    { return ItemUnlocked }
func (Moved) EventName() string       { return ItemMoved }
func (Created) EventName() string     { return ItemCreated }
func (Updated) EventName() string     { return ItemUpdated }
func (Deleted) EventName() string     { return ItemDeleted }
func (Error) EventName() string       { return ErrorName }
