package services

import (
	"context"
	"testing"
	"time"

	"github.com/dmitrijs2005/teamsync/internal/common"
	"github.com/dmitrijs2005/teamsync/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDelete_WritesTombstoneOnce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	team := env.createTeam(t, "Lions")
	p := env.createPlayer(t, sysadmin, team, "tmp-1", "111")

	clientTs := p.UpdatedAt.Add(time.Minute)
	ts, err := env.deleter.Delete(ctx, coachOf(team), models.EntityPlayer, p.ID, clientTs)
	require.NoError(t, err)
	assert.True(t, ts.DeletedAt.Equal(clientTs))
	assert.False(t, ts.DeletedAt.Before(p.UpdatedAt))
	assert.Equal(t, team, ts.TeamID)

	again, err := env.deleter.Delete(ctx, coachOf(team), models.EntityPlayer, p.ID, clientTs.Add(time.Minute))
	require.NoError(t, err)
	assert.True(t, again.SyncedAt.Equal(ts.SyncedAt))
	assert.Equal(t, 1, env.count(t, `SELECT COUNT(*) FROM tombstones`))

	rec, err := env.rm.Records(env.db).Get(ctx, models.EntityPlayer, p.ID)
	require.NoError(t, err)
	assert.True(t, rec.Deleted)
}

func TestDelete_DeletedAtNeverPrecedesVersion(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	team := env.createTeam(t, "Lions")
	p := env.createPlayer(t, sysadmin, team, "tmp-1", "111")

	// a client clock far ahead pushes updatedAt past the server clock
	future := testEpoch.Add(24 * time.Hour)
	_, err := env.resolver.Resolve(ctx, sysadmin, playerUpdate(p.ID, "222", future))
	require.NoError(t, err)

	ts, err := env.deleter.Delete(ctx, sysadmin, models.EntityPlayer, p.ID, time.Time{})
	require.NoError(t, err)
	assert.True(t, ts.DeletedAt.Equal(future))
}

func TestDelete_Rejections(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	lions := env.createTeam(t, "Lions")
	tigers := env.createTeam(t, "Tigers")
	p := env.createPlayer(t, sysadmin, lions, "tmp-1", "111")

	_, err := env.deleter.Delete(ctx, sysadmin, models.EntityPlayer, "missing", time.Time{})
	assert.ErrorIs(t, err, common.ErrorNotFound)

	_, err = env.deleter.Delete(ctx, coachOf(tigers), models.EntityPlayer, p.ID, time.Time{})
	assert.ErrorIs(t, err, common.ErrForbidden)

	_, err = env.deleter.Delete(ctx, sysadmin, models.EntityPlayer, p.ID, p.UpdatedAt)
	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, p.ID, conflict.Current.ID)

	assert.Equal(t, 0, env.count(t, `SELECT COUNT(*) FROM tombstones`))
}

func TestPurge_RemovesOnlyExpired(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	team := env.createTeam(t, "Lions")
	old := env.createPlayer(t, sysadmin, team, "tmp-1", "111")
	fresh := env.createPlayer(t, sysadmin, team, "tmp-2", "222")

	_, err := env.deleter.Delete(ctx, sysadmin, models.EntityPlayer, old.ID, time.Time{})
	require.NoError(t, err)
	env.clock.Advance(time.Hour)
	cutoff := env.clock.Now()
	_, err = env.deleter.Delete(ctx, sysadmin, models.EntityPlayer, fresh.ID, time.Time{})
	require.NoError(t, err)

	stats, err := env.deleter.Purge(ctx, cutoff)
	require.NoError(t, err)
	assert.Equal(t, PurgeStats{Records: 1, Tombstones: 1}, stats)

	_, err = env.rm.Records(env.db).Get(ctx, models.EntityPlayer, old.ID)
	assert.ErrorIs(t, err, common.ErrorNotFound)
	_, err = env.rm.Tombstones(env.db).Get(ctx, models.EntityPlayer, fresh.ID)
	assert.NoError(t, err)
	assert.Equal(t, 2, env.count(t, `SELECT COUNT(*) FROM records`))
}
