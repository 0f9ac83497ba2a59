// Package useragent classifies visitor devices from User-Agent strings.
package useragent

import (
	"fmt"
	"os"
	"strings"

	"github.com/tesobe-kodeaffe/clickcounter-backend/internal/domain"
	"github.com/ua-parser/uap-go/uaparser"
)

const uapOther = "Other"

var (
	botFamilies = []string{
		"googlebot", "bingbot", "slurp", "duckduckbot", "baiduspider",
		"yandexbot", "facebookexternalhit", "twitterbot", "linkedinbot",
		"bot", "crawler", "spider", "scraper",
	}
	tabletDevices = []string{"ipad", "tablet", "kindle", "surface"}
	mobileDevices = []string{"iphone", "android", "blackberry", "windows phone", "mobile", "phone"}
	mobileOS      = []string{"ios", "android", "windows phone", "blackberry os", "firefox os", "sailfish os"}
	desktopOS     = []string{
		"windows", "mac os x", "macos", "linux", "ubuntu",
		"chrome os", "freebsd", "openbsd", "netbsd",
	}
)

// Parser maps User-Agent strings to domain.Device* classifications.
type Parser struct {
	parser *uaparser.Parser
}

// NewParser loads regex definitions from regexFile. An empty regexFile uses
// the definitions bundled with uap-go.
func NewParser(regexFile string) (*Parser, error) {
	if regexFile == "" {
		return &Parser{parser: uaparser.NewFromSaved()}, nil
	}

	data, err := os.ReadFile(regexFile)
	if err != nil {
		return nil, fmt.Errorf("read user agent definitions: %w", err)
	}
	p, err := uaparser.NewFromBytes(data)
	if err != nil {
		return nil, fmt.Errorf("parse user agent definitions %s: %w", regexFile, err)
	}
	return &Parser{parser: p}, nil
}

// DeviceType classifies userAgent. An empty string is unknown.
func (p *Parser) DeviceType(userAgent string) string {
	if userAgent == "" {
		return domain.DeviceUnknown
	}

	client := p.parser.Parse(userAgent)
	lowerUA := strings.ToLower(userAgent)

	if containsAny(strings.ToLower(client.UserAgent.Family), botFamilies) ||
		containsAny(lowerUA, botFamilies) ||
		strings.EqualFold(client.Device.Family, "Spider") {
		return domain.DeviceBot
	}

	if family := strings.ToLower(client.Device.Family); family != "" && family != strings.ToLower(uapOther) {
		if containsAny(family, tabletDevices) {
			return domain.DeviceTablet
		}
		if containsAny(family, mobileDevices) {
			return domain.DeviceMobile
		}
	}

	osFamily := strings.ToLower(client.Os.Family)
	switch {
	case containsAny(osFamily, mobileOS):
		if isTabletOS(osFamily, lowerUA) {
			return domain.DeviceTablet
		}
		return domain.DeviceMobile
	case containsAny(osFamily, desktopOS):
		return domain.DeviceDesktop
	default:
		return domain.DeviceUnknown
	}
}

// isTabletOS separates iPads from iPhones and Android tablets from phones.
// Android tablets omit "Mobile" from the User-Agent.
func isTabletOS(osFamily, lowerUA string) bool {
	switch {
	case strings.Contains(osFamily, "ios"):
		return strings.Contains(lowerUA, "ipad")
	case strings.Contains(osFamily, "android"):
		return !strings.Contains(lowerUA, "mobile")
	default:
		return false
	}
}

func containsAny(s string, needles []string) bool {
	if s == "" {
		return false
	}
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}
