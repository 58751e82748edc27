// Package service chứa business logic cho access log domain.
// Service không biết gì về HTTP: nhận DTO, trả model hoặc taxonomy error.
package service

import (
	"context"
	"time"

	"github.com/uptrace/bun"

	"accesslog-backend/internal/domains/accesslog"
	"accesslog-backend/internal/domains/accesslog/model"
	"accesslog-backend/internal/shared/utils"
	"accesslog-backend/pkg/apperror"
	pkgrepo "accesslog-backend/pkg/repository"
)

// Service chạy trên hai pool: fg cho request path (đọc, xoá),
// bg cho ingest chạy nền — ingest không bao giờ chiếm connection
// của request đang phục vụ user.
type Service struct {
	fg *bun.DB
	bg *bun.DB
}

func New(fg, bg *bun.DB) *Service {
	return &Service{fg: fg, bg: bg}
}

// ========================================
// INGEST (background pool)
// ========================================

// Ingest ghi một request đã thu thập xuống DB: resolve visitor session
// theo token (tạo mới nếu chưa có), parse User-Agent, insert log.
// Toàn bộ chạy trong một transaction — session mới và log cùng commit
// hoặc cùng rollback.
func (s *Service) Ingest(ctx context.Context, req model.CollectedRequest) (*model.AccessLog, error) {
	if err := req.Validate(); err != nil {
		return nil, accesslog.ErrInvalidPayload(err)
	}

	var saved *model.AccessLog
	err := accesslog.Run(ctx, s.bg, func(ctx context.Context, uow *accesslog.UnitOfWork) error {
		log := buildLog(req)

		if req.SessionToken != "" {
			session, err := s.resolveSession(ctx, uow, req)
			if err != nil {
				return err
			}
			log.SessionID = &session.ID
		}

		created, err := uow.Logs().Create(ctx, log)
		if err != nil {
			return err
		}
		saved = created
		return nil
	})
	if err != nil {
		return nil, err
	}
	return saved, nil
}

// IngestBatch ghi nhiều request trong một transaction — dùng khi worker
// gom nhiều task hoặc khi replay log từ nguồn ngoài. Một payload hỏng
// fail cả batch trước khi chạm DB.
func (s *Service) IngestBatch(ctx context.Context, reqs []model.CollectedRequest) ([]*model.AccessLog, error) {
	for _, req := range reqs {
		if err := req.Validate(); err != nil {
			return nil, accesslog.ErrInvalidPayload(err)
		}
	}
	if len(reqs) == 0 {
		return nil, nil
	}

	var saved []*model.AccessLog
	err := accesslog.Run(ctx, s.bg, func(ctx context.Context, uow *accesslog.UnitOfWork) error {
		// cache session theo token để batch không resolve trùng
		sessions := make(map[string]string, len(reqs))

		logs := make([]*model.AccessLog, 0, len(reqs))
		for _, req := range reqs {
			log := buildLog(req)
			if req.SessionToken != "" {
				id, ok := sessions[req.SessionToken]
				if !ok {
					session, err := s.resolveSession(ctx, uow, req)
					if err != nil {
						return err
					}
					id = session.ID
					sessions[req.SessionToken] = id
				}
				sessionID := id
				log.SessionID = &sessionID
			}
			logs = append(logs, log)
		}

		created, err := uow.Logs().BulkCreate(ctx, logs)
		if err != nil {
			return err
		}
		saved = created
		return nil
	})
	if err != nil {
		return nil, err
	}
	return saved, nil
}

func buildLog(req model.CollectedRequest) *model.AccessLog {
	client := utils.ParseUserAgent(req.UserAgent)

	log := &model.AccessLog{
		RequestID:      req.RequestID,
		IPAddress:      req.IPAddress,
		Country:        req.Country,
		Method:         req.Method,
		Path:           req.Path,
		Query:          req.Query,
		Referer:        req.Referer,
		Host:           req.Host,
		AcceptLanguage: req.AcceptLang,
		UserAgent:      req.UserAgent,
		Browser:        client.Browser,
		BrowserVersion: client.BrowserVersion,
		OS:             client.OS,
		OSVersion:      client.OSVersion,
		Device:         client.Device,
		IsMobile:       client.IsMobile,
		IsBot:          client.IsBot,
		StatusCode:     req.StatusCode,
		LatencyMS:      req.LatencyMS,
	}
	if req.UserID != "" {
		log.UserID = &req.UserID
	}
	return log
}

// resolveSession get-or-create session theo token. Hai request đua nhau
// tạo cùng token thì unique constraint quyết định; kẻ thua re-read một
// lần và dùng session của kẻ thắng — log không bao giờ bị drop chỉ vì
// thua cuộc đua tạo session.
func (s *Service) resolveSession(ctx context.Context, uow *accesslog.UnitOfWork, req model.CollectedRequest) (*model.VisitorSession, error) {
	sessions := uow.Sessions()

	candidate := &model.VisitorSession{
		Token:      req.SessionToken,
		IPAddress:  req.IPAddress,
		UserAgent:  req.UserAgent,
		LastSeenAt: req.OccurredAt,
	}
	if req.UserID != "" {
		candidate.UserID = &req.UserID
	}

	session, created, err := sessions.GetOrCreateByToken(ctx, candidate)
	if err != nil {
		// chỉ còn case token biến mất ngay sau re-read
		if apperror.IsKind(err, "DUPLICATE") {
			return nil, accesslog.ErrDuplicateSessionToken(req.SessionToken)
		}
		return nil, err
	}

	if !created {
		seenAt := req.OccurredAt
		if seenAt.IsZero() {
			seenAt = time.Now().UTC()
		}
		if err := sessions.Touch(ctx, session.ID, seenAt); err != nil {
			return nil, err
		}
	}
	return session, nil
}

// ========================================
// QUERIES (foreground pool)
// ========================================

// Read path mượn connection, không mở transaction.
func (s *Service) logs() *accesslog.UnitOfWork { return accesslog.BorrowUnitOfWork(s.fg) }

// List trả về trang log mới nhất trước, kèm tổng số record cho meta.
func (s *Service) List(ctx context.Context, q model.ListQuery) ([]*model.AccessLog, int, error) {
	if err := q.Validate(); err != nil {
		return nil, 0, apperror.Validation(err.Error())
	}
	q = q.Normalize()

	uow := s.logs()
	items, err := uow.Logs().List(ctx, q)
	if err != nil {
		return nil, 0, err
	}
	total, err := uow.Logs().Count(ctx, nil)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (s *Service) Get(ctx context.Context, id string) (*model.AccessLog, error) {
	log, err := s.logs().Logs().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if log == nil {
		return nil, accesslog.ErrLogNotFound(id)
	}
	return log, nil
}

func (s *Service) Recent(ctx context.Context, limit int) ([]*model.AccessLog, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	return s.logs().Logs().Recent(ctx, limit)
}

// Range trả về log trong [start, end). Khoảng rỗng hoặc ngược là lỗi
// ngay tại đây — không chạm DB.
func (s *Service) Range(ctx context.Context, rq model.RangeQuery, q model.ListQuery) ([]*model.AccessLog, error) {
	if err := rq.Validate(); err != nil {
		return nil, apperror.Validation(err.Error())
	}
	start, err := time.Parse(time.RFC3339, rq.Start)
	if err != nil {
		return nil, apperror.Validation("invalid start time")
	}
	end, err := time.Parse(time.RFC3339, rq.End)
	if err != nil {
		return nil, apperror.Validation("invalid end time")
	}
	if !start.Before(end) {
		return nil, accesslog.ErrInvalidDateRange(rq.Start, rq.End)
	}

	q = q.Normalize()
	return s.logs().Logs().ByDateRange(ctx, start, end, q)
}

func (s *Service) ByIP(ctx context.Context, ip string, q model.ListQuery) ([]*model.AccessLog, error) {
	if err := q.Validate(); err != nil {
		return nil, apperror.Validation(err.Error())
	}
	return s.logs().Logs().ByIP(ctx, ip, q.Normalize())
}

func (s *Service) ByUser(ctx context.Context, userID string, q model.ListQuery) ([]*model.AccessLog, error) {
	if err := q.Validate(); err != nil {
		return nil, apperror.Validation(err.Error())
	}
	return s.logs().Logs().ByUser(ctx, userID, q.Normalize())
}

// BySession yêu cầu session tồn tại — id lạ là NotFound chứ không phải
// list rỗng, để client phân biệt "session chưa có log" với "session sai".
func (s *Service) BySession(ctx context.Context, sessionID string, q model.ListQuery) ([]*model.AccessLog, error) {
	if err := q.Validate(); err != nil {
		return nil, apperror.Validation(err.Error())
	}

	uow := s.logs()
	ok, err := uow.Sessions().Exists(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, accesslog.ErrSessionNotFound(sessionID)
	}
	return uow.Logs().BySession(ctx, sessionID, q.Normalize())
}

func (s *Service) Stats(ctx context.Context) (*model.StatsResponse, error) {
	uow := s.logs()
	logs := uow.Logs()

	total, err := logs.Count(ctx, nil)
	if err != nil {
		return nil, err
	}
	sessions, err := uow.Sessions().Count(ctx, nil)
	if err != nil {
		return nil, err
	}
	visitors, err := logs.DistinctIPCount(ctx)
	if err != nil {
		return nil, err
	}
	byMethod, err := logs.CountByColumn(ctx, "method")
	if err != nil {
		return nil, err
	}
	byBrowser, err := logs.CountByColumn(ctx, "browser")
	if err != nil {
		return nil, err
	}
	byOS, err := logs.CountByColumn(ctx, "os")
	if err != nil {
		return nil, err
	}
	byDevice, err := logs.CountByColumn(ctx, "device")
	if err != nil {
		return nil, err
	}
	byCountry, err := logs.CountByColumn(ctx, "country")
	if err != nil {
		return nil, err
	}

	return &model.StatsResponse{
		TotalLogs:      total,
		TotalSessions:  sessions,
		UniqueVisitors: visitors,
		ByMethod:       byMethod,
		ByBrowser:      byBrowser,
		ByOS:           byOS,
		ByDevice:       byDevice,
		ByCountry:      byCountry,
	}, nil
}

// ========================================
// MUTATIONS (foreground pool)
// ========================================

func (s *Service) Delete(ctx context.Context, id string) error {
	removed, err := s.logs().Logs().Delete(ctx, id)
	if err != nil {
		return err
	}
	if !removed {
		return accesslog.ErrLogNotFound(id)
	}
	return nil
}

// Purge xoá log cũ hơn mốc before, trả về số record đã xoá.
func (s *Service) Purge(ctx context.Context, pq model.PurgeQuery) (int64, error) {
	if err := pq.Validate(); err != nil {
		return 0, apperror.Validation(err.Error())
	}
	before, err := time.Parse(time.RFC3339, pq.Before)
	if err != nil {
		return 0, apperror.Validation("invalid before time")
	}
	return s.logs().Logs().PurgeBefore(ctx, before)
}

// ========================================
// SESSIONS
// ========================================

// PruneSessions xoá session không hoạt động từ trước mốc before và
// không còn log nào trỏ tới (log đã purge). Quét theo batch để không
// kéo cả bảng vào memory; chạy trong một transaction nên sweep thấy
// snapshot nhất quán.
func (s *Service) PruneSessions(ctx context.Context, pq model.PurgeQuery) (int64, error) {
	if err := pq.Validate(); err != nil {
		return 0, apperror.Validation(err.Error())
	}
	before, err := time.Parse(time.RFC3339, pq.Before)
	if err != nil {
		return 0, apperror.Validation("invalid before time")
	}

	var pruned int64
	err = accesslog.Run(ctx, s.fg, func(ctx context.Context, uow *accesslog.UnitOfWork) error {
		sessions := uow.Sessions()
		logs := uow.Logs()

		// gom id trước, xoá sau — xoá giữa chừng làm lệch offset sweep
		var stale []string
		err := sessions.GetInBatches(ctx, nil, 200, func(batch []*model.VisitorSession) error {
			for _, session := range batch {
				if !session.LastSeenAt.Before(before) {
					continue
				}
				hasLogs, err := logs.ExistsBy(ctx, pkgrepo.Filters{"session_id": session.ID})
				if err != nil {
					return err
				}
				if !hasLogs {
					stale = append(stale, session.ID)
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
		if len(stale) == 0 {
			return nil
		}

		n, err := sessions.BulkDelete(ctx, stale)
		if err != nil {
			return err
		}
		pruned = n
		return nil
	})
	if err != nil {
		return 0, err
	}
	return pruned, nil
}

func (s *Service) Sessions(ctx context.Context) ([]model.SessionWithCount, error) {
	return s.logs().Sessions().WithLogCounts(ctx)
}

// Session trả về session kèm toàn bộ log của nó (eager load).
func (s *Service) Session(ctx context.Context, id string) (*model.VisitorSession, error) {
	session, err := s.logs().Sessions().GetByID(ctx, id,
		pkgrepo.WithLoads(pkgrepo.SelectIn("Logs")))
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, accesslog.ErrSessionNotFound(id)
	}
	return session, nil
}
