package model

import (
	"time"

	"github.com/uptrace/bun"

	"accesslog-backend/pkg/repository"
)

// AccessLog là một request đã đi qua API, thu thập bởi collector
// middleware và ghi xuống DB chạy nền.
type AccessLog struct {
	bun.BaseModel `bun:"table:user_access_logs"`
	repository.Model

	// Request identity
	RequestID string  `bun:"request_id,notnull" json:"request_id"`
	UserID    *string `bun:"user_id" json:"user_id,omitempty"`
	SessionID *string `bun:"session_id" json:"session_id,omitempty"`

	// Network
	IPAddress string `bun:"ip_address,notnull" json:"ip_address"`
	Country   string `bun:"country" json:"country,omitempty"`

	// Request
	Method  string `bun:"method,notnull" json:"method"`
	Path    string `bun:"path,notnull" json:"path"`
	Query   string `bun:"query" json:"query,omitempty"`
	Referer string `bun:"referer" json:"referer,omitempty"`
	Host    string `bun:"host" json:"host,omitempty"`

	AcceptLanguage string `bun:"accept_language" json:"accept_language,omitempty"`

	// Client, parse từ User-Agent header
	UserAgent      string `bun:"user_agent" json:"user_agent,omitempty"`
	Browser        string `bun:"browser" json:"browser,omitempty"`
	BrowserVersion string `bun:"browser_version" json:"browser_version,omitempty"`
	OS             string `bun:"os" json:"os,omitempty"`
	OSVersion      string `bun:"os_version" json:"os_version,omitempty"`
	Device         string `bun:"device" json:"device,omitempty"`
	IsMobile       bool   `bun:"is_mobile" json:"is_mobile"`
	IsBot          bool   `bun:"is_bot" json:"is_bot"`

	// Response
	StatusCode int   `bun:"status_code" json:"status_code"`
	LatencyMS  int64 `bun:"latency_ms" json:"latency_ms"`

	Session *VisitorSession `bun:"rel:belongs-to,join:session_id=id" json:"session,omitempty"`
}

// VisitorSession nhóm các access log của cùng một visitor qua
// session token (cookie). Token unique — hai request đua nhau tạo
// session thì DB constraint quyết định kẻ thắng.
type VisitorSession struct {
	bun.BaseModel `bun:"table:visitor_sessions"`
	repository.Model

	Token      string    `bun:"token,notnull,unique" json:"token"`
	UserID     *string   `bun:"user_id" json:"user_id,omitempty"`
	IPAddress  string    `bun:"ip_address" json:"ip_address,omitempty"`
	UserAgent  string    `bun:"user_agent" json:"user_agent,omitempty"`
	LastSeenAt time.Time `bun:"last_seen_at,nullzero" json:"last_seen_at"`

	Logs []*AccessLog `bun:"rel:has-many,join:id=session_id" json:"logs,omitempty"`
}
