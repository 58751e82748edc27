// Package job chứa background task của access log domain.
package job

import (
	"context"
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog/log"

	"accesslog-backend/internal/domains/accesslog/model"
	"accesslog-backend/internal/domains/accesslog/service"
	"accesslog-backend/pkg/logger"
)

// TaskTypeIngest là task type trên asynq queue.
const TaskTypeIngest = "accesslog:ingest"

// NewIngestTask đóng gói payload thành asynq task.
func NewIngestTask(req model.CollectedRequest) (*asynq.Task, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeIngest, payload), nil
}

// IngestHandler xử lý task ingest trên worker process.
type IngestHandler struct {
	service *service.Service
}

func NewIngestHandler(svc *service.Service) *IngestHandler {
	return &IngestHandler{service: svc}
}

func (h *IngestHandler) ProcessTask(ctx context.Context, task *asynq.Task) error {
	var req model.CollectedRequest
	if err := json.Unmarshal(task.Payload(), &req); err != nil {
		logger.Error("Unmarshal ingest payload failed", err)
		return err
	}

	saved, err := h.service.Ingest(ctx, req)
	if err != nil {
		logger.Error("Ingest access log failed", err)
		return err
	}

	log.Debug().
		Str("log_id", saved.ID).
		Str("path", saved.Path).
		Msg("Access log ingested")
	return nil
}

// InProcessDispatcher ghi log bằng goroutine trong chính API process,
// dùng khi queue tắt (development, deployment không có Redis).
// Mỗi lần ghi có context timeout riêng — request context đã chết
// từ lâu khi goroutine chạy.
type InProcessDispatcher struct {
	service *service.Service
	timeout time.Duration
}

func NewInProcessDispatcher(svc *service.Service, timeout time.Duration) *InProcessDispatcher {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &InProcessDispatcher{service: svc, timeout: timeout}
}

// Dispatch trả về ngay; lỗi ghi log được log rồi bỏ — thu thập log
// không bao giờ ảnh hưởng request path.
func (d *InProcessDispatcher) Dispatch(_ context.Context, req model.CollectedRequest) error {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()

		if _, err := d.service.Ingest(ctx, req); err != nil {
			log.Error().
				Err(err).
				Str("request_id", req.RequestID).
				Msg("In-process ingest failed")
		}
	}()
	return nil
}
