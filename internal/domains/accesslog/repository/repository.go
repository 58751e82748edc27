// Package repository chứa data access cho access log domain.
// Generic CRUD đến từ pkg/repository; ở đây chỉ thêm các query
// chuyên biệt (date range, aggregate cho stats).
package repository

import (
	"context"
	"time"

	"github.com/uptrace/bun"

	"accesslog-backend/internal/domains/accesslog/model"
	"accesslog-backend/pkg/apperror"
	"accesslog-backend/pkg/repository"
)

// LogRepository quản lý user_access_logs.
type LogRepository struct {
	*repository.Repository[model.AccessLog]
}

func NewLogRepository(db bun.IDB) *LogRepository {
	return &LogRepository{Repository: repository.New[model.AccessLog](db)}
}

func (r *LogRepository) listOpts(q model.ListQuery) []repository.QueryOption {
	order := "created_at DESC"
	if q.Order == "asc" {
		order = "created_at ASC"
	}
	return []repository.QueryOption{
		repository.WithOrder(order),
		repository.WithLimit(q.Limit),
		repository.WithOffset(q.Offset),
	}
}

// List trả về một trang log, mặc định mới nhất trước.
func (r *LogRepository) List(ctx context.Context, q model.ListQuery) ([]*model.AccessLog, error) {
	return r.GetMany(ctx, nil, r.listOpts(q)...)
}

func (r *LogRepository) ByIP(ctx context.Context, ip string, q model.ListQuery) ([]*model.AccessLog, error) {
	return r.GetMany(ctx, repository.Filters{"ip_address": ip}, r.listOpts(q)...)
}

func (r *LogRepository) ByUser(ctx context.Context, userID string, q model.ListQuery) ([]*model.AccessLog, error) {
	return r.GetMany(ctx, repository.Filters{"user_id": userID}, r.listOpts(q)...)
}

func (r *LogRepository) BySession(ctx context.Context, sessionID string, q model.ListQuery) ([]*model.AccessLog, error) {
	return r.GetMany(ctx, repository.Filters{"session_id": sessionID}, r.listOpts(q)...)
}

// ByDateRange trả về log trong [start, end). Caller đã validate
// start < end nên query này không check lại.
func (r *LogRepository) ByDateRange(ctx context.Context, start, end time.Time, q model.ListQuery) ([]*model.AccessLog, error) {
	var out []*model.AccessLog
	sq := r.DB().NewSelect().Model(&out).
		Where("created_at >= ?", start).
		Where("created_at < ?", end)
	if q.Order == "asc" {
		sq = sq.Order("created_at ASC")
	} else {
		sq = sq.Order("created_at DESC")
	}
	sq = sq.Limit(q.Limit).Offset(q.Offset)
	if err := sq.Scan(ctx); err != nil {
		return nil, repository.TranslateError(err, "select access logs by date range")
	}
	return out, nil
}

func (r *LogRepository) Recent(ctx context.Context, limit int) ([]*model.AccessLog, error) {
	return r.GetMany(ctx, nil,
		repository.WithOrder("created_at DESC"),
		repository.WithLimit(limit),
	)
}

// CountByColumn group log theo một cột (method, browser, os...) cho stats.
func (r *LogRepository) CountByColumn(ctx context.Context, column string) (map[string]int, error) {
	var rows []struct {
		Key   string `bun:"key"`
		Count int    `bun:"count"`
	}
	err := r.DB().NewSelect().Model((*model.AccessLog)(nil)).
		ColumnExpr("COALESCE(?, '') AS key", bun.Ident(column)).
		ColumnExpr("COUNT(*) AS count").
		GroupExpr("?", bun.Ident(column)).
		Scan(ctx, &rows)
	if err != nil {
		return nil, repository.TranslateError(err, "count access logs by "+column)
	}
	out := make(map[string]int, len(rows))
	for _, row := range rows {
		out[row.Key] = row.Count
	}
	return out, nil
}

// DistinctIPCount đếm số IP khác nhau đã ghi log.
func (r *LogRepository) DistinctIPCount(ctx context.Context) (int, error) {
	var n int
	err := r.DB().NewSelect().Model((*model.AccessLog)(nil)).
		ColumnExpr("COUNT(DISTINCT ip_address)").
		Scan(ctx, &n)
	if err != nil {
		return 0, repository.TranslateError(err, "count distinct ips")
	}
	return n, nil
}

// PurgeBefore xoá log cũ hơn mốc cho trước, trả về số record xoá.
func (r *LogRepository) PurgeBefore(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.DB().NewDelete().Model((*model.AccessLog)(nil)).
		Where("created_at < ?", before).
		Exec(ctx)
	if err != nil {
		return 0, repository.TranslateError(err, "purge access logs")
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// SessionRepository quản lý visitor_sessions.
type SessionRepository struct {
	*repository.Repository[model.VisitorSession]
}

func NewSessionRepository(db bun.IDB) *SessionRepository {
	return &SessionRepository{Repository: repository.New[model.VisitorSession](db)}
}

func (r *SessionRepository) ByToken(ctx context.Context, token string) (*model.VisitorSession, error) {
	return r.GetOne(ctx, repository.Filters{"token": token})
}

// GetOrCreateByToken get-or-create session theo token. Check-then-act:
// hai writer đua nhau cùng token thì kẻ thua nhận Duplicate từ unique
// constraint — lúc đó session chắc chắn đã tồn tại, nên re-read một
// lần là có session của kẻ thắng.
func (r *SessionRepository) GetOrCreateByToken(ctx context.Context, candidate *model.VisitorSession) (*model.VisitorSession, bool, error) {
	session, created, err := r.GetOrCreate(ctx, repository.Filters{"token": candidate.Token}, candidate)
	if err == nil {
		return session, created, nil
	}
	if !apperror.IsKind(err, "DUPLICATE") {
		return nil, false, err
	}
	return r.rereadAfterConflict(ctx, candidate.Token)
}

// rereadAfterConflict là nhánh kẻ thua: insert đụng unique constraint,
// đọc lại row của kẻ thắng. Token biến mất giữa chừng (thắng insert
// xong xoá ngay) thì trả Duplicate cho caller quyết — đúng một lần
// retry, không loop.
func (r *SessionRepository) rereadAfterConflict(ctx context.Context, token string) (*model.VisitorSession, bool, error) {
	session, err := r.ByToken(ctx, token)
	if err != nil {
		return nil, false, err
	}
	if session == nil {
		return nil, false, apperror.Duplicate("session token already exists").
			WithDetail(map[string]string{"token": token})
	}
	return session, false, nil
}

// Touch cập nhật last_seen_at khi session có request mới.
func (r *SessionRepository) Touch(ctx context.Context, id string, seenAt time.Time) error {
	_, err := r.Update(ctx, id, map[string]any{"last_seen_at": seenAt})
	return err
}

// WithLogCounts trả về mọi session kèm số log, cho admin listing.
func (r *SessionRepository) WithLogCounts(ctx context.Context) ([]model.SessionWithCount, error) {
	counts, err := r.CountRelated(ctx, "Logs", nil)
	if err != nil {
		return nil, err
	}
	out := make([]model.SessionWithCount, 0, len(counts))
	for _, rc := range counts {
		out = append(out, model.SessionWithCount{Session: rc.Entity, LogCount: rc.Count})
	}
	return out, nil
}
