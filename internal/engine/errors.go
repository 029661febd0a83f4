package engine

import (
	"errors"
	"fmt"

	"profilehub-api/internal/model"
)

// ErrProfileNotFound indicates the referenced profile document does not
// exist for the given account and profile kind. Nothing was loaded, so no
// partial mutation is possible.
var ErrProfileNotFound = errors.New("profile not found")

// ItemNotFoundError indicates a command referenced an item instance absent
// from the loaded profile. The in-memory mutated copy is discarded and
// nothing is written.
type ItemNotFoundError struct {
	ItemID string
}

func (e *ItemNotFoundError) Error() string {
	return fmt.Sprintf("item %s not found in profile", e.ItemID)
}

// ProfileRef identifies a touched profile in error reports.
type ProfileRef struct {
	AccountID string
	ProfileID model.ProfileID
}

func (r ProfileRef) String() string {
	return r.AccountID + "/" + string(r.ProfileID)
}

// PersistenceError indicates a save failed before anything became durable.
// Fully recoverable: the command simply did not happen.
type PersistenceError struct {
	Profile ProfileRef
	Err     error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("failed to persist profile %s: %v", e.Profile, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// PartialFailureError indicates a multi-profile command failed after one or
// more profiles were already saved. The committed profiles are durable and
// are not rolled back; callers must not retry blindly, since a retry could
// duplicate grants. Committed lists the profiles whose saves succeeded,
// Failed names the one whose save did not.
type PartialFailureError struct {
	Committed []ProfileRef
	Failed    ProfileRef
	Err       error
}

func (e *PartialFailureError) Error() string {
	return fmt.Sprintf("partial update failure: profile %s not persisted after %d profile(s) committed: %v",
		e.Failed, len(e.Committed), e.Err)
}

func (e *PartialFailureError) Unwrap() error { return e.Err }
