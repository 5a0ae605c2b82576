package board

import (
	"errors"
	"fmt"
)

// Store errors.
var (
	// ErrConflict means the store's revision moved past the one the edit
	// was based on. The caller must re-fetch before retrying; the store
	// performs no merge of its own.
	ErrConflict = errors.New("dataset revision conflict")

	// ErrStoreUnavailable covers transport and auth failures against the
	// backing repository.
	ErrStoreUnavailable = errors.New("status store unavailable")
)

// ParseError describes the first structural violation found in persisted
// status content. Malformed content is surfaced, never silently repaired.
type ParseError struct {
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse status data: %s", e.Reason)
}
