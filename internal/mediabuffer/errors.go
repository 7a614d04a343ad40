package mediabuffer

import (
	"errors"
	"fmt"
)

var (
	// ErrCancelled rejects operations flushed by Abort or Dispose.
	ErrCancelled = errors.New("operation cancelled")

	// ErrDisposed is returned for work submitted after the engine or handle
	// was disposed. It matches ErrCancelled under errors.Is.
	ErrDisposed = fmt.Errorf("buffer engine disposed: %w", ErrCancelled)

	// ErrUnsupportedStore is returned by New when no store is available.
	ErrUnsupportedStore = errors.New("no usable media store implementation")

	// ErrStoreClosed is returned by AddMember while the store is closed.
	ErrStoreClosed = errors.New("media store is closed")

	// ErrMemberExists is returned by AddMember for an already registered kind.
	ErrMemberExists = errors.New("member already exists for media kind")

	// ErrRegistryInUse is returned by New when the registry already belongs
	// to another engine.
	ErrRegistryInUse = errors.New("registry already bound to an engine")
)

// QuotaExceeded is the store error name treated as recoverable.
const QuotaExceeded = "QuotaExceededError"

// MutationError is the failure of one append or evict against the store.
type MutationError struct {
	Name        string
	Message     string
	Recoverable bool
}

func (e *MutationError) Error() string {
	if e.Message == "" {
		return "media buffer " + e.Name
	}
	return fmt.Sprintf("media buffer %s: %s", e.Name, e.Message)
}

func newMutationError(name, message string) *MutationError {
	if name == "" {
		name = "Error"
	}
	return &MutationError{
		Name:        name,
		Message:     message,
		Recoverable: name == QuotaExceeded,
	}
}

// IsRecoverable reports whether err is a MutationError the caller may
// recover from, typically by evicting data and pushing the payload again.
func IsRecoverable(err error) bool {
	var me *MutationError
	return errors.As(err, &me) && me.Recoverable
}
