package models

import (
	"encoding/json"
	"time"
)

// PendingMutation is one client-side change submitted for reconciliation.
// Exactly one of ID (update of an existing record) and TempID (offline
// creation) is set.
//
// Malformed lists fields the transport could not decode, keyed by JSON name.
// Such a mutation is rejected as invalid without being applied.
type PendingMutation struct {
	EntityType       EntityType
	ID               string
	TempID           string
	TeamID           string
	Payload          json.RawMessage
	ClientMutationID string
	ClientTimestamp  time.Time
	Malformed        map[string]string
}

// IsCreate reports whether the mutation creates a record minted offline.
func (m *PendingMutation) IsCreate() bool {
	return m.TempID != ""
}

// Ref is the identifier the client knows the record by.
func (m *PendingMutation) Ref() string {
	if m.IsCreate() {
		return m.TempID
	}
	return m.ID
}
