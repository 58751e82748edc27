package service_test

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	"accesslog-backend/internal/domains/accesslog"
	"accesslog-backend/internal/domains/accesslog/model"
	"accesslog-backend/internal/domains/accesslog/service"
	"accesslog-backend/internal/infrastructure/database"
	"accesslog-backend/pkg/apperror"
)

const chromeUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

func newTestService(t *testing.T) (*service.Service, *bun.DB) {
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

	// fg và bg dùng chung DB trong test; production là hai pool riêng
	return service.New(db, db), db
}

func ingest(t *testing.T, svc *service.Service, req model.CollectedRequest) *model.AccessLog {
	t.Helper()
	saved, err := svc.Ingest(context.Background(), req)
	require.NoError(t, err)
	return saved
}

func baseRequest() model.CollectedRequest {
	return model.CollectedRequest{
		RequestID:  "req-1",
		IPAddress:  "203.0.113.7",
		Method:     "GET",
		Path:       "/api/v1/items",
		UserAgent:  chromeUA,
		StatusCode: 200,
		LatencyMS:  12,
		OccurredAt: time.Now().UTC(),
	}
}

func TestIngestCreatesLog(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	saved := ingest(t, svc, baseRequest())
	assert.NotEmpty(t, saved.ID)

	got, err := svc.Get(ctx, saved.ID)
	require.NoError(t, err)
	assert.Equal(t, "203.0.113.7", got.IPAddress)
	assert.Equal(t, "GET", got.Method)
	assert.Equal(t, "/api/v1/items", got.Path)
	assert.Equal(t, 200, got.StatusCode)
}

func TestIngestParsesUserAgent(t *testing.T) {
	svc, _ := newTestService(t)

	saved := ingest(t, svc, baseRequest())
	assert.Equal(t, "Chrome", saved.Browser)
	assert.Equal(t, "Windows", saved.OS)
	assert.False(t, saved.IsMobile)
	assert.False(t, saved.IsBot)
}

func TestIngestInvalidPayload(t *testing.T) {
	svc, _ := newTestService(t)

	req := baseRequest()
	req.IPAddress = "not-an-ip"
	_, err := svc.Ingest(context.Background(), req)
	require.Error(t, err)
	assert.True(t, apperror.IsKind(err, accesslog.CodeInvalidPayload))
}

func TestIngestResolvesSession(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	req := baseRequest()
	req.SessionToken = "tok-abc"

	first := ingest(t, svc, req)
	require.NotNil(t, first.SessionID)

	req.RequestID = "req-2"
	req.Path = "/api/v1/other"
	second := ingest(t, svc, req)
	require.NotNil(t, second.SessionID)

	// cùng token => cùng session
	assert.Equal(t, *first.SessionID, *second.SessionID)

	logs, err := svc.BySession(ctx, *first.SessionID, model.ListQuery{})
	require.NoError(t, err)
	assert.Len(t, logs, 2)
}

func TestIngestWithoutSessionToken(t *testing.T) {
	svc, _ := newTestService(t)

	saved := ingest(t, svc, baseRequest())
	assert.Nil(t, saved.SessionID)
}

func TestRangeRejectsInvertedRange(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	now := time.Now().UTC()
	_, err := svc.Range(ctx, model.RangeQuery{
		Start: now.Format(time.RFC3339),
		End:   now.Add(-time.Hour).Format(time.RFC3339),
	}, model.ListQuery{})
	require.Error(t, err)
	assert.True(t, apperror.IsKind(err, accesslog.CodeInvalidDateRange))

	// empty range cũng bị chặn
	_, err = svc.Range(ctx, model.RangeQuery{
		Start: now.Format(time.RFC3339),
		End:   now.Format(time.RFC3339),
	}, model.ListQuery{})
	require.Error(t, err)
	assert.True(t, apperror.IsKind(err, accesslog.CodeInvalidDateRange))
}

func TestRangeRejectsMalformedTimes(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Range(context.Background(), model.RangeQuery{
		Start: "yesterday",
		End:   "today",
	}, model.ListQuery{})
	require.Error(t, err)
	assert.True(t, apperror.IsKind(err, "VALIDATION_ERROR"))
}

func TestRangeReturnsWindow(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	ingest(t, svc, baseRequest())

	now := time.Now().UTC()
	logs, err := svc.Range(ctx, model.RangeQuery{
		Start: now.Add(-time.Hour).Format(time.RFC3339),
		End:   now.Add(time.Hour).Format(time.RFC3339),
	}, model.ListQuery{})
	require.NoError(t, err)
	assert.Len(t, logs, 1)

	// window trong quá khứ không chứa log vừa ghi
	logs, err = svc.Range(ctx, model.RangeQuery{
		Start: now.Add(-2 * time.Hour).Format(time.RFC3339),
		End:   now.Add(-time.Hour).Format(time.RFC3339),
	}, model.ListQuery{})
	require.NoError(t, err)
	assert.Empty(t, logs)
}

func TestGetUnknownLog(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Get(context.Background(), "missing-id")
	require.Error(t, err)
	assert.True(t, apperror.IsKind(err, accesslog.CodeLogNotFound))
}

func TestBySessionUnknown(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.BySession(context.Background(), "missing-session", model.ListQuery{})
	require.Error(t, err)
	assert.True(t, apperror.IsKind(err, accesslog.CodeSessionNotFound))
}

func TestDelete(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	saved := ingest(t, svc, baseRequest())
	require.NoError(t, svc.Delete(ctx, saved.ID))

	err := svc.Delete(ctx, saved.ID)
	require.Error(t, err)
	assert.True(t, apperror.IsKind(err, accesslog.CodeLogNotFound))
}

func TestByIPAndByUser(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	req := baseRequest()
	req.UserID = "user-1"
	ingest(t, svc, req)

	other := baseRequest()
	other.RequestID = "req-2"
	other.IPAddress = "198.51.100.9"
	ingest(t, svc, other)

	byIP, err := svc.ByIP(ctx, "203.0.113.7", model.ListQuery{})
	require.NoError(t, err)
	assert.Len(t, byIP, 1)

	byUser, err := svc.ByUser(ctx, "user-1", model.ListQuery{})
	require.NoError(t, err)
	require.Len(t, byUser, 1)
	require.NotNil(t, byUser[0].UserID)
	assert.Equal(t, "user-1", *byUser[0].UserID)
}

func TestStats(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	req := baseRequest()
	req.SessionToken = "tok-1"
	ingest(t, svc, req)

	post := baseRequest()
	post.RequestID = "req-2"
	post.Method = "POST"
	post.IPAddress = "198.51.100.9"
	ingest(t, svc, post)

	stats, err := svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalLogs)
	assert.Equal(t, 1, stats.TotalSessions)
	assert.Equal(t, 2, stats.UniqueVisitors)
	assert.Equal(t, 1, stats.ByMethod["GET"])
	assert.Equal(t, 1, stats.ByMethod["POST"])
	assert.Equal(t, 2, stats.ByBrowser["Chrome"])
	assert.Equal(t, 2, stats.ByDevice["desktop"])
}

func TestPurge(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	saved := ingest(t, svc, baseRequest())

	// đẩy log về quá khứ để purge bắt được
	_, err := db.NewUpdate().Model((*model.AccessLog)(nil)).
		Set("created_at = ?", time.Now().UTC().Add(-48*time.Hour)).
		Where("id = ?", saved.ID).
		Exec(ctx)
	require.NoError(t, err)

	recent := baseRequest()
	recent.RequestID = "req-2"
	ingest(t, svc, recent)

	n, err := svc.Purge(ctx, model.PurgeQuery{
		Before: time.Now().UTC().Add(-24 * time.Hour).Format(time.RFC3339),
	})
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	items, _, err := svc.List(ctx, model.ListQuery{})
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

func TestIngestBatch(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	reqs := make([]model.CollectedRequest, 0, 3)
	for i := 0; i < 3; i++ {
		req := baseRequest()
		req.RequestID = fmt.Sprintf("req-%d", i)
		req.SessionToken = "tok-shared"
		reqs = append(reqs, req)
	}

	saved, err := svc.IngestBatch(ctx, reqs)
	require.NoError(t, err)
	require.Len(t, saved, 3)

	// cả batch chia sẻ một session
	for _, log := range saved {
		require.NotNil(t, log.SessionID)
		assert.Equal(t, *saved[0].SessionID, *log.SessionID)
	}

	_, total, err := svc.List(ctx, model.ListQuery{})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
}

func TestIngestBatchRejectsInvalidPayload(t *testing.T) {
	svc, _ := newTestService(t)

	bad := baseRequest()
	bad.Method = ""
	_, err := svc.IngestBatch(context.Background(), []model.CollectedRequest{baseRequest(), bad})
	require.Error(t, err)
	assert.True(t, apperror.IsKind(err, accesslog.CodeInvalidPayload))

	// batch hỏng không ghi gì
	_, total, err := svc.List(context.Background(), model.ListQuery{})
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestPruneSessions(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	// session còn log thì không bị prune dù đã cũ
	kept := baseRequest()
	kept.SessionToken = "tok-kept"
	ingest(t, svc, kept)

	// session cũ, log đã purge hết
	stale := baseRequest()
	stale.RequestID = "req-stale"
	stale.SessionToken = "tok-stale"
	staleLog := ingest(t, svc, stale)

	old := time.Now().UTC().Add(-48 * time.Hour)
	_, err := db.NewUpdate().Model((*model.VisitorSession)(nil)).
		Set("last_seen_at = ?", old).
		Where("token IN (?)", bun.In([]string{"tok-kept", "tok-stale"})).
		Exec(ctx)
	require.NoError(t, err)
	require.NoError(t, svc.Delete(ctx, staleLog.ID))

	n, err := svc.PruneSessions(ctx, model.PurgeQuery{
		Before: time.Now().UTC().Add(-24 * time.Hour).Format(time.RFC3339),
	})
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	sessions, err := svc.Sessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "tok-kept", sessions[0].Session.Token)
}

func TestSessionsWithCounts(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	req := baseRequest()
	req.SessionToken = "tok-1"
	ingest(t, svc, req)
	req.RequestID = "req-2"
	ingest(t, svc, req)

	sessions, err := svc.Sessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, 2, sessions[0].LogCount)
	assert.Equal(t, "tok-1", sessions[0].Session.Token)
}

func TestSessionEagerLoadsLogs(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	req := baseRequest()
	req.SessionToken = "tok-1"
	saved := ingest(t, svc, req)
	require.NotNil(t, saved.SessionID)

	session, err := svc.Session(ctx, *saved.SessionID)
	require.NoError(t, err)
	assert.Equal(t, "tok-1", session.Token)
	require.Len(t, session.Logs, 1)
	assert.Equal(t, saved.ID, session.Logs[0].ID)

	_, err = svc.Session(ctx, "missing")
	require.Error(t, err)
	assert.True(t, apperror.IsKind(err, accesslog.CodeSessionNotFound))
}
