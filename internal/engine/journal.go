package engine

import "profilehub-api/internal/model"

// Journal accumulates the change records produced by a command while it
// mutates one profile in memory. Records keep strict call order end to end;
// clients apply them in sequence, so no deduplication or coalescing is
// performed here. If a handler records the same stat twice, both records go
// out and the last one wins on the client.
type Journal struct {
	changes []model.ChangeRecord
}

// Record appends a change in call order.
func (j *Journal) Record(change model.ChangeRecord) {
	j.changes = append(j.changes, change)
}

// Len returns the number of recorded changes.
func (j *Journal) Len() int {
	return len(j.changes)
}

// Changes returns the recorded sequence. The slice is never nil so it
// marshals as an empty array rather than null.
func (j *Journal) Changes() []model.ChangeRecord {
	if j.changes == nil {
		return []model.ChangeRecord{}
	}
	out := make([]model.ChangeRecord, len(j.changes))
	copy(out, j.changes)
	return out
}
