package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/teamsync/internal/logging"
	"github.com/dmitrijs2005/teamsync/internal/server/checkpoint"
	"github.com/dmitrijs2005/teamsync/internal/server/models"
	"github.com/dmitrijs2005/teamsync/internal/server/repositories/repomanager"
	"github.com/stretchr/testify/require"
)

const testRetention = 30 * 24 * time.Hour

var testEpoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// stepClock advances by one millisecond on every reading so consecutive
// writes never share a sync stamp.
type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Millisecond)
	return c.now
}

func (c *stepClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testEnv struct {
	db       *sql.DB
	rm       *repomanager.SQLRepositoryManager
	clock    *stepClock
	codec    *checkpoint.Codec
	delta    *DeltaEngine
	resolver *ConflictResolver
	mapper   *IDMapper
	deleter  *DeletionPropagator
	batch    *BatchReconciler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, rm, err := repomanager.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, rm.RunMigrations(context.Background(), db))

	clock := &stepClock{now: testEpoch}
	codec := checkpoint.NewCodec("test-checkpoint-key")
	v := NewPayloadValidator()

	env := &testEnv{
		db:       db,
		rm:       rm,
		clock:    clock,
		codec:    codec,
		delta:    NewDeltaEngine(db, rm, codec, testRetention, clock.Now),
		resolver: NewConflictResolver(db, rm, v, clock.Now),
		mapper:   NewIDMapper(db, rm, v, clock.Now),
		deleter:  NewDeletionPropagator(db, rm, clock.Now),
	}
	env.batch = NewBatchReconciler(env.resolver, env.mapper, logging.Nop())
	return env
}

var sysadmin = models.Scope{UserID: "root", Role: models.RoleSysAdmin}

func coachOf(teamID string) models.Scope {
	return models.Scope{UserID: "coach-" + teamID, Role: models.RoleTeamAdmin, Teams: []string{teamID}}
}

func memberOf(userID, teamID string) models.Scope {
	return models.Scope{UserID: userID, Role: models.RoleMember, Teams: []string{teamID}}
}

func (e *testEnv) createTeam(t *testing.T, name string) string {
	t.Helper()
	applied, err := e.mapper.Create(context.Background(), sysadmin, &models.PendingMutation{
		EntityType: models.EntityTeam,
		TempID:     "tmp-team-" + name,
		Payload:    json.RawMessage(`{"name":"` + name + `"}`),
	})
	require.NoError(t, err)
	return applied.Record.ID
}

func (e *testEnv) createPlayer(t *testing.T, scope models.Scope, teamID, tempID, phone string) *models.Record {
	t.Helper()
	applied, err := e.mapper.Create(context.Background(), scope, &models.PendingMutation{
		EntityType: models.EntityPlayer,
		TempID:     tempID,
		TeamID:     teamID,
		Payload:    json.RawMessage(`{"name":"P ` + tempID + `","phone":"` + phone + `"}`),
	})
	require.NoError(t, err)
	return applied.Record
}

func (e *testEnv) count(t *testing.T, query string, args ...any) int {
	t.Helper()
	var n int
	require.NoError(t, e.db.QueryRow(query, args...).Scan(&n))
	return n
}

func phoneOf(t *testing.T, rec *models.Record) string {
	t.Helper()
	var p struct {
		Phone string `json:"phone"`
	}
	require.NoError(t, json.Unmarshal(rec.Payload, &p))
	return p.Phone
}

func playerUpdate(id, phone string, ts time.Time) *models.PendingMutation {
	return &models.PendingMutation{
		EntityType:      models.EntityPlayer,
		ID:              id,
		Payload:         json.RawMessage(`{"name":"Pat","phone":"` + phone + `"}`),
		ClientTimestamp: ts,
	}
}
