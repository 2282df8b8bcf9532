package realtime

import (
	"context"
	"errors"
	"fmt"

	"kanbanServer/backend/internal/model"
	"kanbanServer/backend/internal/protocol"
	"kanbanServer/backend/internal/store"
)

var (
	ErrLockConflict           = errors.New("LOCK_CONFLICT")
	ErrNotAuthenticated       = errors.New("NOT_AUTHENTICATED")
	ErrNotFound               = errors.New("NOT_FOUND")
	ErrValidation             = errors.New("VALIDATION_ERROR")
	ErrPersistenceUnavailable = errors.New("PERSISTENCE_UNAVAILABLE")
)

// Code returns the wire code for err, or "" when err is nil.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrLockConflict):
		return ErrLockConflict.Error()
	case errors.Is(err, ErrNotAuthenticated), errors.Is(err, model.ErrIncompleteIdentity):
		return ErrNotAuthenticated.Error()
	case errors.Is(err, ErrNotFound), errors.Is(err, store.ErrNotFound):
		return ErrNotFound.Error()
	case errors.Is(err, ErrValidation), errors.Is(err, protocol.ErrMalformed), errors.Is(err, store.ErrInvalid):
		return ErrValidation.Error()
	default:
		return ErrPersistenceUnavailable.Error()
	}
}

// storeErr maps a persistence failure onto the realtime taxonomy.
func storeErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrNotFound):
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	case errors.Is(err, store.ErrInvalid):
		return fmt.Errorf("%w: %v", ErrValidation, err)
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: timed out", ErrPersistenceUnavailable)
	default:
		return fmt.Errorf("%w: %v", ErrPersistenceUnavailable, err)
	}
}

func errorEvent(ref string, err error) protocol.Error {
	return protocol.Error{Message: err.Error(), Code: Code(err), Ref: ref}
}
