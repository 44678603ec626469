package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memohai/leadflow/internal/auth"
	"github.com/memohai/leadflow/internal/interactions"
	"github.com/memohai/leadflow/internal/queue"
)

const adminSecret = "admin-secret"

type adminFixture struct {
	echo   *echo.Echo
	broker *queue.MemoryBroker
	turns  *fakeTurns
	cache  *fakeTenantCache
	token  string
}

type fakeTenantCache struct {
	mu          sync.Mutex
	invalidated []int64
}

func (f *fakeTenantCache) Invalidate(id int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invalidated = append(f.invalidated, id)
}

func newAdminFixture(t *testing.T) *adminFixture {
	t.Helper()
	f := &adminFixture{
		echo:   echo.New(),
		broker: queue.NewMemoryBroker(1, 10*time.Millisecond),
		turns:  &fakeTurns{},
		cache:  &fakeTenantCache{},
	}
	NewAdminHandler(nil, adminSecret, f.broker, f.turns, f.cache).Register(f.echo)
	token, _, err := auth.GenerateToken("ops", adminSecret, time.Minute)
	require.NoError(t, err)
	f.token = token
	return f
}

func (f *adminFixture) do(method, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+f.token)
	rec := httptest.NewRecorder()
	f.echo.ServeHTTP(rec, req)
	return rec
}

func (f *adminFixture) bury(t *testing.T, key string) queue.Task {
	t.Helper()
	ctx := context.Background()
	task, err := queue.NewTask(queue.KindSendReply, key, map[string]string{})
	require.NoError(t, err)
	require.NoError(t, f.broker.Publish(ctx, task))
	d, err := f.broker.Consume(ctx, 0)
	require.NoError(t, err)
	require.NotNil(t, d)
	require.NoError(t, f.broker.Bury(ctx, d, errors.New("invalid token")))
	return task
}

func TestAdminRequiresToken(t *testing.T) {
	t.Parallel()
	f := newAdminFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/admin/dead-letters", nil)
	rec := httptest.NewRecorder()
	f.echo.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdminDisabledWithoutSecret(t *testing.T) {
	t.Parallel()
	e := echo.New()
	NewAdminHandler(nil, "", queue.NewMemoryBroker(1, time.Millisecond), &fakeTurns{}, &fakeTenantCache{}).Register(e)

	req := httptest.NewRequest(http.MethodGet, "/admin/dead-letters", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdminListAndRequeueDeadLetters(t *testing.T) {
	t.Parallel()
	f := newAdminFixture(t)
	buried := f.bury(t, "7:a")

	rec := f.do(http.MethodGet, "/admin/dead-letters?limit=10")
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Items []deadLetterView `json:"items"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Items, 1)
	assert.Equal(t, buried.ID, list.Items[0].ID)
	assert.Equal(t, "invalid token", list.Items[0].LastError)

	rec = f.do(http.MethodPost, "/admin/dead-letters/"+buried.ID+"/requeue")
	require.Equal(t, http.StatusOK, rec.Code)

	depth, err := f.broker.Depth(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), depth.Dead)
	assert.Equal(t, int64(1), depth.Ready)

	rec = f.do(http.MethodPost, "/admin/dead-letters/"+buried.ID+"/requeue")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdminRejectsBadLimit(t *testing.T) {
	t.Parallel()
	f := newAdminFixture(t)

	rec := f.do(http.MethodGet, "/admin/dead-letters?limit=-1")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminListTurns(t *testing.T) {
	t.Parallel()
	f := newAdminFixture(t)
	_, _, err := f.turns.AppendTurn(context.Background(), interactions.AppendInput{
		TenantID:     testTenantID,
		RemoteUserID: testSender,
		Channel:      interactions.ChannelDirect,
		Message:      "Salom",
		Reply:        "Assalomu alaykum!",
	})
	require.NoError(t, err)

	from := time.Now().Add(-time.Hour).UTC().Format(time.RFC3339)
	to := time.Now().Add(time.Hour).UTC().Format(time.RFC3339)
	rec := f.do(http.MethodGet, "/admin/tenants/7/turns?from="+from+"&to="+to)
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Items []interactions.Turn `json:"items"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Items, 1)
	assert.Equal(t, "Assalomu alaykum!", list.Items[0].Reply)

	rec = f.do(http.MethodGet, "/admin/tenants/8/turns")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"items":[]}`, rec.Body.String())
}

func TestAdminListTurnsValidatesInput(t *testing.T) {
	t.Parallel()
	f := newAdminFixture(t)

	for _, target := range []string{
		"/admin/tenants/abc/turns",
		"/admin/tenants/7/turns?from=yesterday",
		"/admin/tenants/7/turns?from=2026-01-02T00:00:00Z&to=2026-01-01T00:00:00Z",
	} {
		rec := f.do(http.MethodGet, target)
		assert.Equal(t, http.StatusBadRequest, rec.Code, target)
	}
}

func TestAdminInvalidateTenant(t *testing.T) {
	t.Parallel()
	f := newAdminFixture(t)

	rec := f.do(http.MethodPost, "/admin/tenants/7/invalidate")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"invalidated","id":7}`, rec.Body.String())
	assert.Equal(t, []int64{7}, f.cache.invalidated)

	rec = f.do(http.MethodPost, "/admin/tenants/zero/invalidate")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Len(t, f.cache.invalidated, 1)
}
