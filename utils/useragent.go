package utils

import (
	"strings"

	"github.com/mssola/useragent"
)

// ClientInfo is what the analytics tables store about a user agent.
type ClientInfo struct {
	Browser string
	OS      string
	Device  string
}

// ParseUserAgent classifies a raw User-Agent header. Unknown parts are
// reported as "Unknown"; device is one of desktop, mobile, tablet, bot.
func ParseUserAgent(raw string) ClientInfo {
	if strings.TrimSpace(raw) == "" {
		return ClientInfo{Browser: "Unknown", OS: "Unknown", Device: "unknown"}
	}

	ua := useragent.New(raw)
	name, _ := ua.Browser()
	info := ClientInfo{Browser: name, OS: ua.OS(), Device: "desktop"}

	switch {
	case ua.Bot():
		info.Device = "bot"
	case strings.Contains(raw, "iPad") || strings.Contains(raw, "Tablet"):
		info.Device = "tablet"
	case ua.Mobile():
		info.Device = "mobile"
	}

	if info.Browser == "" {
		info.Browser = "Unknown"
	}
	if info.OS == "" {
		info.OS = "Unknown"
	}
	return info
}
