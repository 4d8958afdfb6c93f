package httpapi

import (
	"encoding/json"
	"testing"

	"github.com/dmitrijs2005/teamsync/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBatchRequest_KeepsDocumentOrder(t *testing.T) {
	var req batchRequest
	err := json.Unmarshal([]byte(`{
		"match":  [{"tempId":"m1","data":{}}],
		"team":   [{"tempId":"t1","data":{}}],
		"player": [{"id":"p1","data":{},"clientTimestamp":1767225600000}, {"tempId":"p2","data":{}}]
	}`), &req)
	require.NoError(t, err)

	muts := req.Mutations()
	require.Len(t, muts, 4)
	assert.Equal(t, models.EntityMatch, muts[0].EntityType)
	assert.Equal(t, models.EntityTeam, muts[1].EntityType)
	assert.Equal(t, "p1", muts[2].ID)
	assert.Equal(t, int64(1767225600000), muts[2].ClientTimestamp.UnixMilli())
	assert.Equal(t, "p2", muts[3].TempID)
}

func TestBatchRequest_RejectsBadShape(t *testing.T) {
	for _, in := range []string{`[]`, `{"team": {"id":"x"}}`, `{"team": "x"}`, `{"team": [1] `} {
		var req batchRequest
		assert.Error(t, json.Unmarshal([]byte(in), &req), in)
	}
}

func TestBatchRequest_BadItemsAreMarkedNotFatal(t *testing.T) {
	var req batchRequest
	err := json.Unmarshal([]byte(`{"player": [
		{"id":"p1","data":{},"clientTimestamp":"2026-01-01T00:00:00Z","bogus":1},
		{"id":"p2","data":{},"clientTimestamp":"yesterday"},
		{"id":"p3","data":{},"clientTimestamp":null},
		{"id":7},
		"not an item"
	]}`), &req)
	require.NoError(t, err)

	muts := req.Mutations()
	require.Len(t, muts, 5)

	assert.Empty(t, muts[0].Malformed)
	assert.Equal(t, 2026, muts[0].ClientTimestamp.Year())

	assert.Contains(t, muts[1].Malformed, "clientTimestamp")
	assert.Equal(t, "p2", muts[1].ID)

	assert.Empty(t, muts[2].Malformed)
	assert.True(t, muts[2].ClientTimestamp.IsZero())

	assert.Contains(t, muts[3].Malformed, "item")
	assert.Contains(t, muts[4].Malformed, "item")
	assert.Equal(t, models.EntityPlayer, muts[4].EntityType)
}
