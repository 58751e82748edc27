package utils

import (
	"github.com/mileusna/useragent"
)

// ClientInfo là kết quả parse User-Agent header.
type ClientInfo struct {
	Browser        string
	BrowserVersion string
	OS             string
	OSVersion      string
	Device         string
	IsMobile       bool
	IsBot          bool
}

// ParseUserAgent phân tích User-Agent string thành thông tin client.
// Raw rỗng trả về zero value, không error — UA header là optional.
func ParseUserAgent(raw string) ClientInfo {
	if raw == "" {
		return ClientInfo{}
	}

	ua := useragent.Parse(raw)
	device := ua.Device
	if device == "" {
		switch {
		case ua.Mobile:
			device = "mobile"
		case ua.Tablet:
			device = "tablet"
		case ua.Desktop:
			device = "desktop"
		}
	}

	return ClientInfo{
		Browser:        ua.Name,
		BrowserVersion: ua.Version,
		OS:             ua.OS,
		OSVersion:      ua.OSVersion,
		Device:         device,
		IsMobile:       ua.Mobile || ua.Tablet,
		IsBot:          ua.Bot,
	}
}
