package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrStaleState        = errors.New("reservation state changed concurrently")
	ErrSlotUnavailable   = errors.New("slot unavailable")
	ErrInvalidTransition = errors.New("invalid status transition")
)

// SlotConflict reports the active reservation that already holds a slot.
type SlotConflict struct {
	Key        SlotKey
	ConflictID string
}

func (e *SlotConflict) Error() string {
	return fmt.Sprintf("slot %s is held by reservation %s", e.Key, e.ConflictID)
}

func (e *SlotConflict) Unwrap() error { return ErrSlotUnavailable }
