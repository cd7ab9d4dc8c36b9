package utils

import (
	"strings"

	ua "github.com/mssola/user_agent"
)

// DeviceInfo holds parsed information from a User-Agent string
type DeviceInfo struct {
	DeviceType string `json:"deviceType"` // mobile, tablet, desktop, bot, unknown
	OS         string `json:"os"`
	Browser    string `json:"browser"`
	BrowserVer string `json:"browserVersion,omitempty"`
	IsBot      bool   `json:"isBot"`
}

var tabletIndicators = []string{"ipad", "tablet", "kindle", "playbook", "nexus 7", "nexus 9", "nexus 10", "sm-t"}

// ParseUserAgent extracts device information from a User-Agent header
func ParseUserAgent(userAgent string) DeviceInfo {
	if userAgent == "" || userAgent == "Unknown" {
		return DeviceInfo{DeviceType: "unknown", OS: "Unknown", Browser: "Unknown"}
	}

	parser := ua.New(userAgent)
	browser, version := parser.Browser()
	if browser == "" {
		browser = "Unknown"
	}

	info := DeviceInfo{
		OS:         osName(parser),
		Browser:    browser,
		BrowserVer: version,
		IsBot:      parser.Bot(),
	}

	switch {
	case info.IsBot:
		info.DeviceType = "bot"
	case parser.Mobile() && isTablet(userAgent):
		info.DeviceType = "tablet"
	case parser.Mobile():
		info.DeviceType = "mobile"
	default:
		info.DeviceType = "desktop"
	}
	return info
}

func isTablet(userAgent string) bool {
	lower := strings.ToLower(userAgent)
	for _, indicator := range tabletIndicators {
		if strings.Contains(lower, indicator) {
			return true
		}
	}
	return false
}

func osName(parser *ua.UserAgent) string {
	info := parser.OSInfo()
	if info.Name == "" {
		return "Unknown"
	}
	if info.Version != "" {
		return info.Name + " " + info.Version
	}
	return info.Name
}
