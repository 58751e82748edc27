package model

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
)

// ========================================
// REQUEST DTOs
// ========================================

// ListQuery là pagination query chung cho các endpoint list log.
type ListQuery struct {
	Limit  int    `form:"limit" json:"limit"`
	Offset int    `form:"offset" json:"offset"`
	Order  string `form:"order" json:"order"`
}

func (q ListQuery) Validate() error {
	return validation.ValidateStruct(&q,
		validation.Field(&q.Limit, validation.Min(0), validation.Max(500)),
		validation.Field(&q.Offset, validation.Min(0)),
		validation.Field(&q.Order, validation.In("", "asc", "desc")),
	)
}

// Normalize áp defaults sau khi validate.
func (q ListQuery) Normalize() ListQuery {
	if q.Limit == 0 {
		q.Limit = 50
	}
	if q.Order == "" {
		q.Order = "desc"
	}
	return q
}

// RangeQuery cho endpoint query log theo khoảng thời gian.
// Start/End là RFC3339; service chịu trách nhiệm check Start < End.
type RangeQuery struct {
	Start string `form:"start" json:"start"`
	End   string `form:"end" json:"end"`
}

func (q RangeQuery) Validate() error {
	return validation.ValidateStruct(&q,
		validation.Field(&q.Start, validation.Required, validation.Date(time.RFC3339)),
		validation.Field(&q.End, validation.Required, validation.Date(time.RFC3339)),
	)
}

// PurgeQuery xoá log cũ hơn mốc before.
type PurgeQuery struct {
	Before string `form:"before" json:"before"`
}

func (q PurgeQuery) Validate() error {
	return validation.ValidateStruct(&q,
		validation.Field(&q.Before, validation.Required, validation.Date(time.RFC3339)),
	)
}

// CollectedRequest là payload do collector middleware tạo ra, đi qua
// queue (hoặc in-process fallback) trước khi thành AccessLog record.
type CollectedRequest struct {
	RequestID    string    `json:"request_id"`
	UserID       string    `json:"user_id,omitempty"`
	SessionToken string    `json:"session_token,omitempty"`
	IPAddress    string    `json:"ip_address"`
	Country      string    `json:"country,omitempty"`
	Method       string    `json:"method"`
	Path         string    `json:"path"`
	Query        string    `json:"query,omitempty"`
	Referer      string    `json:"referer,omitempty"`
	Host         string    `json:"host,omitempty"`
	UserAgent    string    `json:"user_agent,omitempty"`
	AcceptLang   string    `json:"accept_language,omitempty"`
	StatusCode   int       `json:"status_code"`
	LatencyMS    int64     `json:"latency_ms"`
	OccurredAt   time.Time `json:"occurred_at"`
}

func (r CollectedRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.IPAddress, validation.Required, is.IP),
		validation.Field(&r.Method, validation.Required),
		validation.Field(&r.Path, validation.Required),
		validation.Field(&r.StatusCode, validation.Min(0), validation.Max(599)),
	)
}

// ========================================
// RESPONSE DTOs
// ========================================

// StatsResponse tổng hợp cho dashboard.
type StatsResponse struct {
	TotalLogs      int            `json:"total_logs"`
	TotalSessions  int            `json:"total_sessions"`
	UniqueVisitors int            `json:"unique_visitors"`
	ByMethod       map[string]int `json:"by_method"`
	ByBrowser      map[string]int `json:"by_browser"`
	ByOS           map[string]int `json:"by_os"`
	ByDevice       map[string]int `json:"by_device"`
	ByCountry      map[string]int `json:"by_country"`
}

// SessionWithCount là session kèm số log thuộc về nó.
type SessionWithCount struct {
	Session  *VisitorSession `json:"session"`
	LogCount int             `json:"log_count"`
}
