// Package models defines the server-side sync data model persisted in the
// record store.
package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// EntityType names one of the synchronized record collections.
type EntityType string

const (
	EntityTeam   EntityType = "team"
	EntityPlayer EntityType = "player"
	EntityMember EntityType = "member"
	EntityEvent  EntityType = "event"
	EntityMatch  EntityType = "match"
)

// EntityTypes lists every synchronized collection in delta response order.
var EntityTypes = []EntityType{EntityTeam, EntityPlayer, EntityMember, EntityEvent, EntityMatch}

// ParseEntityType validates a collection name coming from a client.
func ParseEntityType(s string) (EntityType, error) {
	for _, e := range EntityTypes {
		if string(e) == s {
			return e, nil
		}
	}
	return "", fmt.Errorf("unknown entity type %q", s)
}

// Record is the authoritative copy of one synchronized entity.
//
// UpdatedAt is the last-writer-wins version: the client timestamp of the last
// accepted mutation. SyncedAt is the server clock reading when the row last
// changed and drives retention. ChangeSeq is the store-wide change sequence
// number assigned in the writing transaction; delta queries page on it.
type Record struct {
	EntityType EntityType
	ID         string
	TeamID     string
	OwnerID    string
	Payload    json.RawMessage
	UpdatedAt  time.Time
	SyncedAt   time.Time
	ChangeSeq  int64
	Deleted    bool
}

// Tombstone marks a soft-deleted record until the retention window passes.
type Tombstone struct {
	EntityType EntityType
	ID         string
	TeamID     string
	OwnerID    string
	DeletedAt  time.Time
	SyncedAt   time.Time
	ChangeSeq  int64
}

// IDMapping binds a client-minted temporary id to the server id assigned on
// first sync. Mappings are never modified once written.
type IDMapping struct {
	OwnerID    string
	TempID     string
	EntityType EntityType
	ServerID   string
	CreatedAt  time.Time
}

// AppliedMutation is the ledger row that makes client mutations idempotent.
type AppliedMutation struct {
	OwnerID          string
	ClientMutationID string
	EntityType       EntityType
	RecordID         string
	UpdatedAt        time.Time
	AppliedAt        time.Time
}
