package tracking

import (
	"strings"

	"github.com/ignite/phishsim/internal/domain"
)

const unknownClient = "Unknown"

// ClassifyUserAgent derives device type, operating system and browser
// family from a user agent. Fields it cannot place are "Unknown".
func ClassifyUserAgent(userAgent string) (device, os, browser string) {
	ua := strings.ToLower(userAgent)

	switch {
	case strings.Contains(ua, "ipad") || strings.Contains(ua, "tablet"):
		device = "Tablet"
	case strings.Contains(ua, "mobile") || strings.Contains(ua, "android") || strings.Contains(ua, "iphone"):
		device = "Mobile"
	case ua == "":
		device = unknownClient
	default:
		device = "Desktop"
	}

	switch {
	case strings.Contains(ua, "windows nt 10.0"):
		os = "Windows 10/11"
	case strings.Contains(ua, "windows nt 6.3"):
		os = "Windows 8.1"
	case strings.Contains(ua, "windows nt 6.1"):
		os = "Windows 7"
	case strings.Contains(ua, "windows"):
		os = "Windows"
	case strings.Contains(ua, "iphone") || strings.Contains(ua, "ipad"):
		os = "iOS"
	case strings.Contains(ua, "mac os x"):
		os = "macOS"
	case strings.Contains(ua, "android"):
		os = "Android"
	case strings.Contains(ua, "linux"):
		os = "Linux"
	default:
		os = unknownClient
	}

	// order matters: Edge and Opera also announce Chrome, Chrome announces Safari
	switch {
	case strings.Contains(ua, "edg/") || strings.Contains(ua, "edge/"):
		browser = "Microsoft Edge"
	case strings.Contains(ua, "opr/") || strings.Contains(ua, "opera"):
		browser = "Opera"
	case strings.Contains(ua, "chrome/") || strings.Contains(ua, "crios/"):
		browser = "Chrome"
	case strings.Contains(ua, "firefox/") || strings.Contains(ua, "fxios/"):
		browser = "Firefox"
	case strings.Contains(ua, "safari/"):
		browser = "Safari"
	case strings.Contains(ua, "msie") || strings.Contains(ua, "trident/"):
		browser = "Internet Explorer"
	default:
		browser = unknownClient
	}
	return device, os, browser
}

// Client returns what the edge learned about the requesting client.
func (e TrackingEvent) Client() domain.ClientInfo {
	return domain.ClientInfo{
		IPAddress:  e.IPAddress,
		UserAgent:  e.UserAgent,
		DeviceType: e.DeviceType,
		OS:         e.OS,
		Browser:    e.Browser,
	}
}
