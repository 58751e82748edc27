package handler_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	"accesslog-backend/internal/domains/accesslog/handler"
	"accesslog-backend/internal/domains/accesslog/model"
	"accesslog-backend/internal/domains/accesslog/service"
	"accesslog-backend/internal/infrastructure/database"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	Meta *struct {
		Limit  int `json:"limit"`
		Offset int `json:"offset"`
		Total  int `json:"total"`
	} `json:"meta"`
}

func newTestRouter(t *testing.T) (*gin.Engine, *service.Service) {
	t.Helper()

	sqldb, err := sql.Open(sqliteshim.ShimName, ":memory:")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	ctx := context.Background()

	_, err = db.ExecContext(ctx, "PRAGMA foreign_keys = ON")
	require.NoError(t, err)
	require.NoError(t, database.CreateSchema(ctx, db))

	t.Cleanup(func() { _ = db.Close() })

	svc := service.New(db, db)

	router := gin.New()
	handler.NewHandler(svc).RegisterRoutes(router.Group("/api/v1"))
	return router, svc
}

func seedLog(t *testing.T, svc *service.Service, mutate func(*model.CollectedRequest)) *model.AccessLog {
	t.Helper()

	req := model.CollectedRequest{
		RequestID:  "req-seed",
		IPAddress:  "203.0.113.7",
		Method:     "GET",
		Path:       "/page",
		UserAgent:  "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		StatusCode: 200,
		OccurredAt: time.Now().UTC(),
	}
	if mutate != nil {
		mutate(&req)
	}

	saved, err := svc.Ingest(context.Background(), req)
	require.NoError(t, err)
	return saved
}

func do(t *testing.T, router *gin.Engine, method, path string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()

	req := httptest.NewRequest(method, path, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return w, env
}

func TestListEnvelope(t *testing.T) {
	router, svc := newTestRouter(t)
	for i := 0; i < 3; i++ {
		seedLog(t, svc, func(r *model.CollectedRequest) {
			r.RequestID = fmt.Sprintf("req-%d", i)
		})
	}

	w, env := do(t, router, http.MethodGet, "/api/v1/access-logs")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, env.Success)
	require.NotNil(t, env.Meta)
	assert.Equal(t, 50, env.Meta.Limit)
	assert.Equal(t, 3, env.Meta.Total)

	var items []model.AccessLog
	require.NoError(t, json.Unmarshal(env.Data, &items))
	assert.Len(t, items, 3)
}

func TestListRejectsOversizedLimit(t *testing.T) {
	router, _ := newTestRouter(t)

	w, env := do(t, router, http.MethodGet, "/api/v1/access-logs?limit=9999")
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.False(t, env.Success)
	require.NotNil(t, env.Error)
	assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)
}

func TestGetUnknownID(t *testing.T) {
	router, _ := newTestRouter(t)

	w, env := do(t, router, http.MethodGet, "/api/v1/access-logs/does-not-exist")
	assert.Equal(t, http.StatusNotFound, w.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "ACCESS_LOG_NOT_FOUND", env.Error.Code)
}

func TestGetByID(t *testing.T) {
	router, svc := newTestRouter(t)
	saved := seedLog(t, svc, nil)

	w, env := do(t, router, http.MethodGet, "/api/v1/access-logs/"+saved.ID)
	assert.Equal(t, http.StatusOK, w.Code)

	var got model.AccessLog
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Equal(t, saved.ID, got.ID)
	assert.Equal(t, "203.0.113.7", got.IPAddress)
}

func TestRecentCoexistsWithGetByID(t *testing.T) {
	router, svc := newTestRouter(t)
	seedLog(t, svc, nil)

	w, env := do(t, router, http.MethodGet, "/api/v1/access-logs/recent?limit=1")
	assert.Equal(t, http.StatusOK, w.Code)

	var items []model.AccessLog
	require.NoError(t, json.Unmarshal(env.Data, &items))
	assert.Len(t, items, 1)
}

func TestRangeValidation(t *testing.T) {
	router, _ := newTestRouter(t)

	// thiếu start/end
	w, env := do(t, router, http.MethodGet, "/api/v1/access-logs/range")
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)

	// start sau end
	now := time.Now().UTC()
	path := fmt.Sprintf("/api/v1/access-logs/range?start=%s&end=%s",
		now.Format(time.RFC3339), now.Add(-time.Hour).Format(time.RFC3339))
	w, env = do(t, router, http.MethodGet, path)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "INVALID_DATE_RANGE", env.Error.Code)
}

func TestRangeReturnsLogs(t *testing.T) {
	router, svc := newTestRouter(t)
	seedLog(t, svc, nil)

	now := time.Now().UTC()
	path := fmt.Sprintf("/api/v1/access-logs/range?start=%s&end=%s",
		now.Add(-time.Hour).Format(time.RFC3339), now.Add(time.Hour).Format(time.RFC3339))
	w, env := do(t, router, http.MethodGet, path)
	assert.Equal(t, http.StatusOK, w.Code)

	var items []model.AccessLog
	require.NoError(t, json.Unmarshal(env.Data, &items))
	assert.Len(t, items, 1)
}

func TestBySessionUnknown(t *testing.T) {
	router, _ := newTestRouter(t)

	w, env := do(t, router, http.MethodGet, "/api/v1/access-logs/by-session/nope")
	assert.Equal(t, http.StatusNotFound, w.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "SESSION_NOT_FOUND", env.Error.Code)
}

func TestDeleteThenMissing(t *testing.T) {
	router, svc := newTestRouter(t)
	saved := seedLog(t, svc, nil)

	w, env := do(t, router, http.MethodDelete, "/api/v1/access-logs/"+saved.ID)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, env.Success)

	w, env = do(t, router, http.MethodDelete, "/api/v1/access-logs/"+saved.ID)
	assert.Equal(t, http.StatusNotFound, w.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "ACCESS_LOG_NOT_FOUND", env.Error.Code)
}

func TestPurgeValidation(t *testing.T) {
	router, _ := newTestRouter(t)

	w, env := do(t, router, http.MethodDelete, "/api/v1/access-logs/purge")
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)
}

func TestPurge(t *testing.T) {
	router, svc := newTestRouter(t)
	seedLog(t, svc, nil)

	path := "/api/v1/access-logs/purge?before=" +
		time.Now().UTC().Add(time.Hour).Format(time.RFC3339)
	w, env := do(t, router, http.MethodDelete, path)
	assert.Equal(t, http.StatusOK, w.Code)

	var data map[string]int64
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.EqualValues(t, 1, data["purged"])
}

func TestStatsEndpoint(t *testing.T) {
	router, svc := newTestRouter(t)
	seedLog(t, svc, nil)
	seedLog(t, svc, func(r *model.CollectedRequest) {
		r.RequestID = "req-2"
		r.Method = "POST"
	})

	w, env := do(t, router, http.MethodGet, "/api/v1/access-logs/stats")
	assert.Equal(t, http.StatusOK, w.Code)

	var stats model.StatsResponse
	require.NoError(t, json.Unmarshal(env.Data, &stats))
	assert.Equal(t, 2, stats.TotalLogs)
	assert.Equal(t, 1, stats.ByMethod["POST"])
}

func TestPruneSessionsEndpoint(t *testing.T) {
	router, svc := newTestRouter(t)
	seedLog(t, svc, func(r *model.CollectedRequest) {
		r.SessionToken = "tok-active"
	})

	// thiếu before
	w, env := do(t, router, http.MethodDelete, "/api/v1/sessions/prune")
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)

	// session vẫn còn log nên không bị prune
	path := "/api/v1/sessions/prune?before=" +
		time.Now().UTC().Add(time.Hour).Format(time.RFC3339)
	w, env = do(t, router, http.MethodDelete, path)
	assert.Equal(t, http.StatusOK, w.Code)

	var data map[string]int64
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Zero(t, data["pruned"])
}

func TestSessionsEndpoint(t *testing.T) {
	router, svc := newTestRouter(t)
	saved := seedLog(t, svc, func(r *model.CollectedRequest) {
		r.SessionToken = "tok-1"
	})
	require.NotNil(t, saved.SessionID)

	w, env := do(t, router, http.MethodGet, "/api/v1/sessions")
	assert.Equal(t, http.StatusOK, w.Code)

	var sessions []model.SessionWithCount
	require.NoError(t, json.Unmarshal(env.Data, &sessions))
	require.Len(t, sessions, 1)
	assert.Equal(t, 1, sessions[0].LogCount)

	w, env = do(t, router, http.MethodGet, "/api/v1/sessions/"+*saved.SessionID)
	assert.Equal(t, http.StatusOK, w.Code)

	var session model.VisitorSession
	require.NoError(t, json.Unmarshal(env.Data, &session))
	assert.Equal(t, "tok-1", session.Token)
	assert.Len(t, session.Logs, 1)
}
