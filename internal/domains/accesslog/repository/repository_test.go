package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	"accesslog-backend/internal/domains/accesslog/model"
	"accesslog-backend/internal/infrastructure/database"
	"accesslog-backend/pkg/apperror"
)

func newTestDB(t *testing.T) *bun.DB {
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
	return db
}

func sessionWithToken(token string) *model.VisitorSession {
	return &model.VisitorSession{
		Token:      token,
		IPAddress:  "203.0.113.7",
		UserAgent:  "curl/8.4.0",
		LastSeenAt: time.Now().UTC(),
	}
}

func TestGetOrCreateByToken(t *testing.T) {
	db := newTestDB(t)
	repo := NewSessionRepository(db)
	ctx := context.Background()

	first, created, err := repo.GetOrCreateByToken(ctx, sessionWithToken("tok-a"))
	require.NoError(t, err)
	assert.True(t, created)
	require.NotEmpty(t, first.ID)

	again, created, err := repo.GetOrCreateByToken(ctx, sessionWithToken("tok-a"))
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, again.ID)
}

// Kẻ thua cuộc đua tạo token nhận DUPLICATE từ unique constraint, sau đó
// re-read đúng một lần và dùng session của kẻ thắng thay vì fail.
func TestRereadAfterConflictReturnsWinner(t *testing.T) {
	db := newTestDB(t)
	repo := NewSessionRepository(db)
	ctx := context.Background()

	winner, created, err := repo.GetOrCreateByToken(ctx, sessionWithToken("tok-race"))
	require.NoError(t, err)
	require.True(t, created)

	got, created, err := repo.rereadAfterConflict(ctx, "tok-race")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, winner.ID, got.ID)
}

func TestRereadAfterConflictTokenVanished(t *testing.T) {
	db := newTestDB(t)
	repo := NewSessionRepository(db)

	// token không tồn tại — row của kẻ thắng đã bị xoá giữa chừng
	_, _, err := repo.rereadAfterConflict(context.Background(), "tok-gone")
	require.Error(t, err)
	assert.True(t, apperror.IsKind(err, "DUPLICATE"))
}
