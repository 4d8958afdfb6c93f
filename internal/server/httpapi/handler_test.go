package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/teamsync/internal/common"
	"github.com/dmitrijs2005/teamsync/internal/logging"
	"github.com/dmitrijs2005/teamsync/internal/server/auth"
	"github.com/dmitrijs2005/teamsync/internal/server/checkpoint"
	"github.com/dmitrijs2005/teamsync/internal/server/media"
	"github.com/dmitrijs2005/teamsync/internal/server/metrics"
	"github.com/dmitrijs2005/teamsync/internal/server/models"
	"github.com/dmitrijs2005/teamsync/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/teamsync/internal/server/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "jwt-test-secret"

type tickClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *tickClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Millisecond)
	return c.now
}

type memStore struct {
	objects map[string]string
	types   map[string]string
}

func (m *memStore) Head(ctx context.Context, key string) (*media.ObjectInfo, error) {
	body, ok := m.objects[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", common.ErrorNotFound, key)
	}
	return &media.ObjectInfo{Key: key, ContentType: m.types[key], ContentLength: int64(len(body))}, nil
}

func (m *memStore) Get(ctx context.Context, key string) (io.ReadCloser, *media.ObjectInfo, error) {
	info, err := m.Head(ctx, key)
	if err != nil {
		return nil, nil, err
	}
	return io.NopCloser(strings.NewReader(m.objects[key])), info, nil
}

func (m *memStore) PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error) {
	return "https://objects.local/" + key, nil
}

type testAPI struct {
	srv   *httptest.Server
	clock *tickClock
	codec *checkpoint.Codec
}

func newTestAPI(t *testing.T, corsOrigins ...string) *testAPI {
	t.Helper()

	db, rm, err := repomanager.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, rm.RunMigrations(context.Background(), db))

	clock := &tickClock{now: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)}
	codec := checkpoint.NewCodec("cp")
	v := services.NewPayloadValidator()
	resolver := services.NewConflictResolver(db, rm, v, clock.Now)
	mapper := services.NewIDMapper(db, rm, v, clock.Now)
	store := &memStore{
		objects: map[string]string{"media/crest": "png-original", "media/crest/small": "png-small", "media/rules": "%PDF"},
		types:   map[string]string{"media/crest": "image/png", "media/crest/small": "image/png", "media/rules": "application/pdf"},
	}

	h := NewHandler(Services{
		Delta:    services.NewDeltaEngine(db, rm, codec, 24*time.Hour, clock.Now),
		Resolver: resolver,
		Mapper:   mapper,
		Deleter:  services.NewDeletionPropagator(db, rm, clock.Now),
		Batch:    services.NewBatchReconciler(resolver, mapper, logging.Nop()),
		Media:    media.NewGateway(store, time.Minute, logging.Nop()),
	}, metrics.New(), logging.Nop(), testSecret, corsOrigins)

	srv := httptest.NewServer(h.Routes())
	t.Cleanup(srv.Close)
	return &testAPI{srv: srv, clock: clock, codec: codec}
}

func tokenFor(t *testing.T, scope models.Scope) string {
	t.Helper()
	tok, err := auth.GenerateToken(scope, []byte(testSecret), time.Hour)
	require.NoError(t, err)
	return tok
}

var admin = models.Scope{UserID: "root", Role: models.RoleSysAdmin}

func (a *testAPI) do(t *testing.T, method, path string, scope *models.Scope, body any, headers ...string) (*http.Response, []byte) {
	t.Helper()

	var rdr io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rdr = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		rdr = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, a.srv.URL+path, rdr)
	require.NoError(t, err)
	if scope != nil {
		req.Header.Set("Authorization", "Bearer "+tokenFor(t, *scope))
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	client := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }}
	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	out, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, out
}

type createdBody struct {
	Data struct {
		ID        string          `json:"id"`
		ServerID  string          `json:"serverId"`
		TempID    string          `json:"tempId"`
		TeamID    string          `json:"teamId"`
		Data      json.RawMessage `json:"data"`
		UpdatedAt time.Time       `json:"updatedAt"`
	} `json:"data"`
}

func (a *testAPI) create(t *testing.T, scope models.Scope, entity, tempID, teamID, data string) createdBody {
	t.Helper()
	resp, body := a.do(t, http.MethodPost, "/sync/create", &scope, map[string]any{
		"entity": entity, "tempId": tempID, "teamId": teamID, "data": json.RawMessage(data),
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	var out createdBody
	require.NoError(t, json.Unmarshal(body, &out))
	return out
}

func TestHealthzIsPublic(t *testing.T) {
	api := newTestAPI(t)
	resp, body := api.do(t, http.MethodGet, "/healthz", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"status":"ok"`)
}

func TestAuthRequired(t *testing.T) {
	api := newTestAPI(t)

	resp, _ := api.do(t, http.MethodGet, "/sync/delta", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, body := api.do(t, http.MethodGet, "/sync/delta", nil, nil, "Authorization", "Bearer garbage")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Contains(t, string(body), `"code":"unauthorized"`)
}

func TestCreateIsIdempotent(t *testing.T) {
	api := newTestAPI(t)
	team := api.create(t, admin, "team", "tmp-team", "", `{"name":"Lions"}`)
	assert.Equal(t, team.Data.ID, team.Data.TeamID)
	assert.Equal(t, team.Data.ID, team.Data.ServerID)

	req := map[string]any{"entity": "player", "tempId": "tmp-p", "teamId": team.Data.ID, "data": json.RawMessage(`{"name":"Ana"}`)}
	resp, body := api.do(t, http.MethodPost, "/sync/create", &admin, req)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	var first createdBody
	require.NoError(t, json.Unmarshal(body, &first))
	assert.Equal(t, "tmp-p", first.Data.TempID)

	resp, body = api.do(t, http.MethodPost, "/sync/create", &admin, req)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var second createdBody
	require.NoError(t, json.Unmarshal(body, &second))
	assert.Equal(t, first.Data.ServerID, second.Data.ServerID)
}

func TestCreateValidation(t *testing.T) {
	api := newTestAPI(t)

	resp, body := api.do(t, http.MethodPost, "/sync/create", &admin, map[string]any{
		"entity": "team", "tempId": "t", "data": json.RawMessage(`{"sport":"x"}`),
	})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Contains(t, string(body), `"name":"is required"`)

	resp, _ = api.do(t, http.MethodPost, "/sync/create", &admin, `{"entity":"team"`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = api.do(t, http.MethodPost, "/sync/create", &admin, map[string]any{
		"entity": "coach", "tempId": "t", "data": json.RawMessage(`{}`),
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUpdateConflictReturnsServerVersion(t *testing.T) {
	api := newTestAPI(t)
	team := api.create(t, admin, "team", "tmp-team", "", `{"name":"Lions"}`)
	p := api.create(t, admin, "player", "tmp-p", team.Data.ID, `{"name":"Ana","phone":"111"}`)

	t1 := p.Data.UpdatedAt.Add(10 * time.Second)
	resp, body := api.do(t, http.MethodPost, "/sync/records", &admin, map[string]any{
		"entity": "player", "id": p.Data.ID, "data": json.RawMessage(`{"name":"Ana","phone":"222"}`),
		"clientTimestamp": t1.Format(time.RFC3339Nano),
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	// unix milliseconds are accepted too
	resp, body = api.do(t, http.MethodPost, "/sync/records", &admin, map[string]any{
		"entity": "player", "id": p.Data.ID, "data": json.RawMessage(`{"name":"Ana","phone":"333"}`),
		"clientTimestamp": p.Data.UpdatedAt.Add(5 * time.Second).UnixMilli(),
	})
	require.Equal(t, http.StatusConflict, resp.StatusCode, string(body))

	var conflict struct {
		Code          string `json:"code"`
		ServerVersion struct {
			Data struct {
				Phone string `json:"phone"`
			} `json:"data"`
			UpdatedAt time.Time `json:"updatedAt"`
		} `json:"serverVersion"`
	}
	require.NoError(t, json.Unmarshal(body, &conflict))
	assert.Equal(t, "conflict", conflict.Code)
	assert.Equal(t, "222", conflict.ServerVersion.Data.Phone)
	assert.True(t, conflict.ServerVersion.UpdatedAt.Equal(t1))
}

func TestUpdateForbiddenAcrossTeams(t *testing.T) {
	api := newTestAPI(t)
	lions := api.create(t, admin, "team", "tmp-1", "", `{"name":"Lions"}`)
	tigers := api.create(t, admin, "team", "tmp-2", "", `{"name":"Tigers"}`)
	p := api.create(t, admin, "player", "tmp-p", lions.Data.ID, `{"name":"Ana"}`)

	coach := models.Scope{UserID: "c", Role: models.RoleTeamAdmin, Teams: []string{tigers.Data.ID}}
	resp, _ := api.do(t, http.MethodPost, "/sync/records", &coach, map[string]any{
		"entity": "player", "id": p.Data.ID, "data": json.RawMessage(`{"name":"Bo"}`),
		"clientTimestamp": time.Now().Add(time.Hour).Format(time.RFC3339),
	})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestBatchPreservesKeyOrder(t *testing.T) {
	api := newTestAPI(t)
	team := api.create(t, admin, "team", "tmp-team", "", `{"name":"Lions"}`)

	body := `{
		"player": [
			{"tempId":"tmp-p1","teamId":"` + team.Data.ID + `","data":{"name":"A"},"clientMutationId":"m1"},
			{"tempId":"tmp-p2","teamId":"` + team.Data.ID + `","data":{"name":"B","phone":"??"},"clientMutationId":"m2"}
		],
		"match": [
			{"tempId":"tmp-m","teamId":"` + team.Data.ID + `","data":{"opponent":"Tigers"},"clientMutationId":"m3"}
		]
	}`
	resp, raw := api.do(t, http.MethodPost, "/sync/batch", &admin, body)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(raw))

	var out struct {
		Success bool `json:"success"`
		Results []struct {
			ItemRef struct {
				Index  int    `json:"index"`
				Entity string `json:"entity"`
				TempID string `json:"tempId"`
			} `json:"itemRef"`
			Status   string `json:"status"`
			ServerID string `json:"serverId"`
		} `json:"results"`
		IDMappings []struct {
			TempID   string `json:"tempId"`
			ServerID string `json:"serverId"`
		} `json:"idMappings"`
	}
	require.NoError(t, json.Unmarshal(raw, &out))

	assert.False(t, out.Success)
	require.Len(t, out.Results, 3)
	assert.Equal(t, "player", out.Results[0].ItemRef.Entity)
	assert.Equal(t, "tmp-p2", out.Results[1].ItemRef.TempID)
	assert.Equal(t, "match", out.Results[2].ItemRef.Entity)
	assert.Equal(t, 2, out.Results[2].ItemRef.Index)
	assert.Equal(t, []string{"applied", "invalid", "applied"},
		[]string{out.Results[0].Status, out.Results[1].Status, out.Results[2].Status})
	require.Len(t, out.IDMappings, 2)
	assert.Equal(t, out.Results[0].ServerID, out.IDMappings[0].ServerID)
}

func TestBatchMalformed(t *testing.T) {
	api := newTestAPI(t)
	for _, body := range []string{`[]`, `{"player": {}}`, `not json`} {
		resp, _ := api.do(t, http.MethodPost, "/sync/batch", &admin, body)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, body)
	}
}

func TestBatchBadItemDoesNotFailOthers(t *testing.T) {
	api := newTestAPI(t)
	team := api.create(t, admin, "team", "tmp-team", "", `{"name":"Lions"}`)

	body := `{"player": [
		{"tempId":"tmp-p1","teamId":"` + team.Data.ID + `","data":{"name":"A"},"clientTimestamp":"2026-05-01T09:00:00Z"},
		{"tempId":"tmp-p2","teamId":"` + team.Data.ID + `","data":{"name":"B"},"clientTimestamp":"yesterday"},
		{"tempId":"tmp-p3","teamId":"` + team.Data.ID + `","data":{"name":"C"},"deviceId":"ios-17"}
	]}`
	resp, raw := api.do(t, http.MethodPost, "/sync/batch", &admin, body)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(raw))

	var out struct {
		Results []struct {
			Status string            `json:"status"`
			Fields map[string]string `json:"fields"`
		} `json:"results"`
		IDMappings []struct {
			TempID string `json:"tempId"`
		} `json:"idMappings"`
	}
	require.NoError(t, json.Unmarshal(raw, &out))
	require.Len(t, out.Results, 3)
	assert.Equal(t, "applied", out.Results[0].Status)
	assert.Equal(t, "invalid", out.Results[1].Status)
	assert.Contains(t, out.Results[1].Fields, "clientTimestamp")
	assert.Equal(t, "applied", out.Results[2].Status)
	require.Len(t, out.IDMappings, 2)
	assert.Equal(t, "tmp-p1", out.IDMappings[0].TempID)
	assert.Equal(t, "tmp-p3", out.IDMappings[1].TempID)
}

func TestDeletionsFlowIntoDelta(t *testing.T) {
	api := newTestAPI(t)
	team := api.create(t, admin, "team", "tmp-team", "", `{"name":"Lions"}`)
	p := api.create(t, admin, "player", "tmp-p", team.Data.ID, `{"name":"Ana"}`)

	resp, raw := api.do(t, http.MethodGet, "/sync/delta", &admin, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(raw))
	checkpointToken := resp.Header.Get(common.CheckpointHeaderName)
	require.NotEmpty(t, checkpointToken)

	resp, raw = api.do(t, http.MethodPost, "/sync/deletions", &admin, map[string]any{
		"deletions": []map[string]any{
			{"entity": "player", "id": p.Data.ID, "timestamp": p.Data.UpdatedAt.Add(time.Minute).Format(time.RFC3339Nano)},
			{"entity": "player", "id": "ghost"},
			{"entity": "coach", "id": "x"},
		},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(raw))
	var del struct {
		Success bool `json:"success"`
		Results []struct {
			Status string `json:"status"`
		} `json:"results"`
	}
	require.NoError(t, json.Unmarshal(raw, &del))
	assert.False(t, del.Success)
	require.Len(t, del.Results, 3)
	assert.Equal(t, "applied", del.Results[0].Status)
	assert.Equal(t, "not_found", del.Results[1].Status)
	assert.Equal(t, "invalid", del.Results[2].Status)

	resp, raw = api.do(t, http.MethodGet, "/sync/delta?entities=player", &admin, nil,
		common.CheckpointHeaderName, checkpointToken)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(raw))
	var delta struct {
		Updates   map[string][]json.RawMessage `json:"updates"`
		Deletions map[string][]struct {
			ID string `json:"id"`
		} `json:"deletions"`
		SyncTime string `json:"syncTime"`
	}
	require.NoError(t, json.Unmarshal(raw, &delta))
	assert.Empty(t, delta.Updates["player"])
	require.Len(t, delta.Deletions["player"], 1)
	assert.Equal(t, p.Data.ID, delta.Deletions["player"][0].ID)
	assert.NotContains(t, delta.Updates, "team")

	resp, raw = api.do(t, http.MethodGet, "/sync/delta", &admin, nil, common.CheckpointHeaderName, delta.SyncTime)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotContains(t, string(raw), p.Data.ID)
}

func TestDeltaCheckpointErrors(t *testing.T) {
	api := newTestAPI(t)

	stale := api.codec.Encode(checkpoint.Position{Time: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), Seq: 1})
	resp, raw := api.do(t, http.MethodGet, "/sync/delta", &admin, nil, common.CheckpointHeaderName, stale)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, string(raw), `"code":"resync_required"`)

	forged := checkpoint.NewCodec("other-key").Encode(checkpoint.Position{Time: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC), Seq: 1})
	resp, raw = api.do(t, http.MethodGet, "/sync/delta", &admin, nil, common.CheckpointHeaderName, forged)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, string(raw), `"code":"bad_request"`)

	resp, _ = api.do(t, http.MethodGet, "/sync/delta?entities=player,coach", &admin, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestMedia(t *testing.T) {
	api := newTestAPI(t)

	resp, body := api.do(t, http.MethodGet, "/media/crest", &admin, nil, common.DeviceWidthHeaderName, "320")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "png-small", string(body))
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
	assert.Equal(t, "small", resp.Header.Get("X-Media-Variant"))

	resp, body = api.do(t, http.MethodGet, "/media/crest", &admin, nil, common.DeviceProfileHeaderName, "large")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "png-original", string(body))

	resp, _ = api.do(t, http.MethodGet, "/media/rules", &admin, nil)
	assert.Equal(t, http.StatusTemporaryRedirect, resp.StatusCode)
	assert.Equal(t, "https://objects.local/media/rules", resp.Header.Get("Location"))

	resp, _ = api.do(t, http.MethodGet, "/media/nope", &admin, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestMetricsAndCORS(t *testing.T) {
	api := newTestAPI(t, "https://app.example.com")
	api.do(t, http.MethodGet, "/healthz", nil, nil)

	resp, body := api.do(t, http.MethodGet, "/metrics", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `teamsync_http_request_duration_seconds_count{code="200",route="GET /healthz"}`)

	resp, _ = api.do(t, http.MethodOptions, "/sync/delta", nil, nil,
		"Origin", "https://app.example.com",
		"Access-Control-Request-Method", "GET",
		"Access-Control-Request-Headers", "authorization")
	assert.Equal(t, "https://app.example.com", resp.Header.Get("Access-Control-Allow-Origin"))
}
