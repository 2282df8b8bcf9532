package model

import (
	"errors"
	"time"
)

var ErrIncompleteIdentity = errors.New("identity is not fully resolved")

// Identity is a verified user as returned by the auth service.
type Identity struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Validate rejects identities with any unresolved field. Presence entries are
// never built from partial or placeholder identities.
func (i Identity) Validate() error {
	if i.ID == "" || i.Name == "" || i.Email == "" {
		return ErrIncompleteIdentity
	}
	return nil
}

type Presence struct {
	SessionID string    `json:"sessionId"`
	BoardID   string    `json:"boardId"`
	UserID    string    `json:"userId"`
	User      Identity  `json:"user"`
	JoinedAt  time.Time `json:"joinedAt"`
}

type Lock struct {
	ItemID     string    `json:"itemId"`
	SessionID  string    `json:"sessionId"`
	BoardID    string    `json:"boardId"`
	Holder     Identity  `json:"user"`
	AcquiredAt time.Time `json:"acquiredAt"`
}
