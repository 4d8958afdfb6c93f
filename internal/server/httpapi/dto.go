package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/teamsync/internal/server/models"
	"github.com/dmitrijs2005/teamsync/internal/server/services"
	"github.com/dmitrijs2005/teamsync/internal/timex"
)

type recordDTO struct {
	Entity    models.EntityType `json:"entity"`
	ID        string            `json:"id"`
	TeamID    string            `json:"teamId,omitempty"`
	OwnerID   string            `json:"ownerId,omitempty"`
	Data      json.RawMessage   `json:"data"`
	UpdatedAt time.Time         `json:"updatedAt"`
	SyncedAt  time.Time         `json:"syncedAt"`
	Deleted   bool              `json:"deleted,omitempty"`
}

func newRecordDTO(r *models.Record) *recordDTO {
	if r == nil {
		return nil
	}
	return &recordDTO{
		Entity:    r.EntityType,
		ID:        r.ID,
		TeamID:    r.TeamID,
		OwnerID:   r.OwnerID,
		Data:      r.Payload,
		UpdatedAt: r.UpdatedAt,
		SyncedAt:  r.SyncedAt,
		Deleted:   r.Deleted,
	}
}

type tombstoneDTO struct {
	Entity    models.EntityType `json:"entity"`
	ID        string            `json:"id"`
	TeamID    string            `json:"teamId,omitempty"`
	DeletedAt time.Time         `json:"deletedAt"`
	SyncedAt  time.Time         `json:"syncedAt"`
}

func newTombstoneDTO(t *models.Tombstone) *tombstoneDTO {
	return &tombstoneDTO{
		Entity:    t.EntityType,
		ID:        t.ID,
		TeamID:    t.TeamID,
		DeletedAt: t.DeletedAt,
		SyncedAt:  t.SyncedAt,
	}
}

type deltaResponse struct {
	Updates   map[models.EntityType][]*recordDTO    `json:"updates"`
	Deletions map[models.EntityType][]*tombstoneDTO `json:"deletions"`
	SyncTime  string                                `json:"syncTime"`
	ServerNow time.Time                             `json:"serverTime"`
}

func newDeltaResponse(res *services.DeltaResult) *deltaResponse {
	out := &deltaResponse{
		Updates:   make(map[models.EntityType][]*recordDTO, len(res.Updates)),
		Deletions: make(map[models.EntityType][]*tombstoneDTO, len(res.Deletions)),
		SyncTime:  res.SyncTime,
		ServerNow: res.SyncedAt,
	}
	for et, recs := range res.Updates {
		list := make([]*recordDTO, 0, len(recs))
		for _, r := range recs {
			list = append(list, newRecordDTO(r))
		}
		out.Updates[et] = list
	}
	for et, ts := range res.Deletions {
		list := make([]*tombstoneDTO, 0, len(ts))
		for _, t := range ts {
			list = append(list, newTombstoneDTO(t))
		}
		out.Deletions[et] = list
	}
	return out
}

type updateRequest struct {
	Entity           string          `json:"entity"`
	ID               string          `json:"id"`
	TeamID           string          `json:"teamId"`
	Data             json.RawMessage `json:"data"`
	ClientTimestamp  timex.Timestamp `json:"clientTimestamp"`
	ClientMutationID string          `json:"clientMutationId"`
}

type createRequest struct {
	Entity           string          `json:"entity"`
	TempID           string          `json:"tempId"`
	TeamID           string          `json:"teamId"`
	Data             json.RawMessage `json:"data"`
	ClientTimestamp  timex.Timestamp `json:"clientTimestamp"`
	ClientMutationID string          `json:"clientMutationId"`
}

type createdDTO struct {
	recordDTO
	ServerID string `json:"serverId"`
	TempID   string `json:"tempId"`
}

type deletionItem struct {
	Entity    string          `json:"entity"`
	ID        string          `json:"id"`
	Timestamp timex.Timestamp `json:"timestamp"`
}

type deletionsRequest struct {
	Deletions []deletionItem `json:"deletions"`
}

type deletionResult struct {
	Entity        string        `json:"entity"`
	ID            string        `json:"id"`
	Status        string        `json:"status"`
	Detail        string        `json:"detail,omitempty"`
	Tombstone     *tombstoneDTO `json:"tombstone,omitempty"`
	ServerVersion *recordDTO    `json:"serverVersion,omitempty"`
}

type batchItem struct {
	ID               string          `json:"id"`
	TempID           string          `json:"tempId"`
	TeamID           string          `json:"teamId"`
	Data             json.RawMessage `json:"data"`
	ClientMutationID string          `json:"clientMutationId"`
	ClientTimestamp  json.RawMessage `json:"clientTimestamp"`

	// set when the item itself could not be decoded
	decodeErr string
}

type batchGroup struct {
	Entity string
	Items  []batchItem
}

// batchRequest is the body of POST /sync/batch: an object keyed by entity
// type. Clients order keys so that dependent creations come later, so the
// key order of the document is kept.
//
// Only the outer shape is strict. An item that does not decode is reported
// back as invalid on its own and the rest of the batch still applies.
type batchRequest struct {
	Groups []batchGroup
}

func (b *batchRequest) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return errors.New("batch must be an object keyed by entity type")
	}

	b.Groups = b.Groups[:0]
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, _ := tok.(string)

		var raw []json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("%s: items must be an array: %w", key, err)
		}
		items := make([]batchItem, len(raw))
		for i, r := range raw {
			if err := json.Unmarshal(r, &items[i]); err != nil {
				items[i] = batchItem{decodeErr: "is not a valid mutation object"}
			}
		}
		b.Groups = append(b.Groups, batchGroup{Entity: key, Items: items})
	}

	_, err = dec.Token()
	return err
}

// Mutations flattens the groups in document order.
func (b *batchRequest) Mutations() []*models.PendingMutation {
	var out []*models.PendingMutation
	for _, g := range b.Groups {
		for _, it := range g.Items {
			m := &models.PendingMutation{
				EntityType:       models.EntityType(g.Entity),
				ID:               it.ID,
				TempID:           it.TempID,
				TeamID:           it.TeamID,
				Payload:          it.Data,
				ClientMutationID: it.ClientMutationID,
			}
			if it.decodeErr != "" {
				m.Malformed = map[string]string{"item": it.decodeErr}
			} else if len(it.ClientTimestamp) > 0 {
				var ts timex.Timestamp
				if err := ts.UnmarshalJSON(it.ClientTimestamp); err != nil {
					m.Malformed = map[string]string{"clientTimestamp": "must be an RFC 3339 string or unix milliseconds"}
				} else {
					m.ClientTimestamp = ts.Time
				}
			}
			out = append(out, m)
		}
	}
	return out
}

type itemRefDTO struct {
	Index            int    `json:"index"`
	Entity           string `json:"entity"`
	ID               string `json:"id,omitempty"`
	TempID           string `json:"tempId,omitempty"`
	ClientMutationID string `json:"clientMutationId,omitempty"`
}

type itemResultDTO struct {
	ItemRef       itemRefDTO        `json:"itemRef"`
	Status        string            `json:"status"`
	ServerID      string            `json:"serverId,omitempty"`
	Detail        string            `json:"detail,omitempty"`
	Fields        map[string]string `json:"fields,omitempty"`
	ServerVersion *recordDTO        `json:"serverVersion,omitempty"`
	Data          *recordDTO        `json:"data,omitempty"`
}

type idMappingDTO struct {
	Entity   models.EntityType `json:"entity"`
	TempID   string            `json:"tempId"`
	ServerID string            `json:"serverId"`
}

type batchResponse struct {
	Success    bool            `json:"success"`
	Results    []itemResultDTO `json:"results"`
	IDMappings []idMappingDTO  `json:"idMappings"`
	Summary    map[string]int  `json:"summary"`
}

func newBatchResponse(res *services.BatchResult) *batchResponse {
	out := &batchResponse{
		Success:    true,
		Results:    make([]itemResultDTO, 0, len(res.Results)),
		IDMappings: make([]idMappingDTO, 0, len(res.IDMappings)),
		Summary:    make(map[string]int),
	}
	for _, r := range res.Results {
		if r.Status != services.StatusApplied {
			out.Success = false
		}
		out.Summary[string(r.Status)]++
		out.Results = append(out.Results, itemResultDTO{
			ItemRef: itemRefDTO{
				Index:            r.Ref.Index,
				Entity:           string(r.Ref.Entity),
				ID:               r.Ref.ID,
				TempID:           r.Ref.TempID,
				ClientMutationID: r.Ref.ClientMutationID,
			},
			Status:        string(r.Status),
			ServerID:      r.ServerID,
			Detail:        r.Detail,
			Fields:        r.Fields,
			ServerVersion: newRecordDTO(r.ServerVersion),
			Data:          newRecordDTO(r.Record),
		})
	}
	for _, m := range res.IDMappings {
		out.IDMappings = append(out.IDMappings, idMappingDTO{Entity: m.EntityType, TempID: m.TempID, ServerID: m.ServerID})
	}
	return out
}
