package database

import (
	"context"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"accesslog-backend/internal/domains/accesslog/model"
)

// CreateSchema tạo bảng và index nếu chưa có. Chạy một lần lúc startup
// với timeout cứng — schema hỏng thì fail sớm thay vì treo boot.
func CreateSchema(ctx context.Context, db *bun.DB) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	// visitor_sessions trước vì user_access_logs có FK trỏ vào
	models := []any{
		(*model.VisitorSession)(nil),
		(*model.AccessLog)(nil),
	}
	for _, m := range models {
		if _, err := db.NewCreateTable().
			Model(m).
			IfNotExists().
			WithForeignKeys().
			Exec(ctx); err != nil {
			return fmt.Errorf("create table failed: %w", err)
		}
	}

	indexes := []struct {
		name    string
		model   any
		columns []string
	}{
		{"idx_access_logs_user_id", (*model.AccessLog)(nil), []string{"user_id"}},
		{"idx_access_logs_session_id", (*model.AccessLog)(nil), []string{"session_id"}},
		{"idx_access_logs_ip_address", (*model.AccessLog)(nil), []string{"ip_address"}},
		{"idx_access_logs_path", (*model.AccessLog)(nil), []string{"path"}},
		{"idx_access_logs_method", (*model.AccessLog)(nil), []string{"method"}},
		{"idx_access_logs_browser", (*model.AccessLog)(nil), []string{"browser"}},
		{"idx_access_logs_os", (*model.AccessLog)(nil), []string{"os"}},
		{"idx_access_logs_device", (*model.AccessLog)(nil), []string{"device"}},
		{"idx_access_logs_country", (*model.AccessLog)(nil), []string{"country"}},
		{"idx_access_logs_created_at", (*model.AccessLog)(nil), []string{"created_at"}},
		{"idx_access_logs_user_created", (*model.AccessLog)(nil), []string{"user_id", "created_at"}},
		{"idx_visitor_sessions_last_seen", (*model.VisitorSession)(nil), []string{"last_seen_at"}},
	}
	for _, idx := range indexes {
		if _, err := db.NewCreateIndex().
			Model(idx.model).
			IfNotExists().
			Index(idx.name).
			Column(idx.columns...).
			Exec(ctx); err != nil {
			return fmt.Errorf("create index %s failed: %w", idx.name, err)
		}
	}

	return nil
}
