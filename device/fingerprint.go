package device

import (
	"net/netip"
	"strings"

	"github.com/MrEthical07/authgate/internal"
)

// Signal is what a request reveals about the client.
type Signal struct {
	// ClientID is an identifier the client app persists and sends, if any.
	ClientID  string
	UserAgent string
	IP        string
}

// Fingerprint derives the device identifier. A client supplied id wins;
// otherwise the user agent is combined with the /24 (IPv4) or /48 (IPv6)
// network so a device keeps its id across address changes inside one network.
func Fingerprint(s Signal) string {
	if id := strings.TrimSpace(s.ClientID); id != "" {
		return "c_" + internal.HashBindingValue("client|" + id)[:32]
	}
	return "f_" + internal.HashBindingValue("ua|" + strings.TrimSpace(s.UserAgent) + "|" + networkPrefix(s.IP))[:32]
}

func networkPrefix(ip string) string {
	addr, err := netip.ParseAddr(strings.TrimSpace(ip))
	if err != nil {
		return ""
	}
	addr = addr.Unmap()
	bits := 48
	if addr.Is4() {
		bits = 24
	}
	prefix, err := addr.Prefix(bits)
	if err != nil {
		return ""
	}
	return prefix.String()
}

// Info is the display metadata derived from a user agent.
type Info struct {
	Type    string
	OS      string
	Browser string
}

// Device types reported in Info.Type.
const (
	TypeDesktop = "desktop"
	TypeMobile  = "mobile"
	TypeTablet  = "tablet"
	TypeBot     = "bot"
	TypeUnknown = "unknown"
)

// Describe classifies a user agent. Order matters: tokens that embed others
// (Edge contains Chrome, Chrome contains Safari) are tested first.
func Describe(userAgent string) Info {
	ua := strings.ToLower(userAgent)
	if ua == "" {
		return Info{Type: TypeUnknown, OS: "unknown", Browser: "unknown"}
	}
	return Info{Type: deviceType(ua), OS: operatingSystem(ua), Browser: browser(ua)}
}

func deviceType(ua string) string {
	switch {
	case containsAny(ua, "bot", "crawler", "spider", "curl/", "wget/"):
		return TypeBot
	case containsAny(ua, "ipad", "tablet") || (strings.Contains(ua, "android") && !strings.Contains(ua, "mobile")):
		return TypeTablet
	case containsAny(ua, "mobile", "iphone", "android"):
		return TypeMobile
	default:
		return TypeDesktop
	}
}

func operatingSystem(ua string) string {
	switch {
	case strings.Contains(ua, "windows"):
		return "Windows"
	case containsAny(ua, "iphone", "ipad", "ios"):
		return "iOS"
	case strings.Contains(ua, "android"):
		return "Android"
	case containsAny(ua, "mac os", "macintosh"):
		return "macOS"
	case strings.Contains(ua, "cros"):
		return "ChromeOS"
	case strings.Contains(ua, "linux"):
		return "Linux"
	default:
		return "unknown"
	}
}

func browser(ua string) string {
	switch {
	case strings.Contains(ua, "edg/"):
		return "Edge"
	case containsAny(ua, "opr/", "opera"):
		return "Opera"
	case containsAny(ua, "firefox/", "fxios/"):
		return "Firefox"
	case containsAny(ua, "chrome/", "crios/"):
		return "Chrome"
	case strings.Contains(ua, "safari/"):
		return "Safari"
	default:
		return "unknown"
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
