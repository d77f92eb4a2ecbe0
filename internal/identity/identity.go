// Package identity extracts device facts from free-text "show version" and
// "show chassis" output. Firmware releases format these pages differently,
// so every field carries an ordered list of patterns; the first match wins.
package identity

import (
	"regexp"
	"strings"
	"time"
)

// Identity holds the facts parsed off a device. Empty fields mean the
// pattern list found nothing; callers treat that as a soft failure.
type Identity struct {
	IP       string `json:"ip"`
	MAC      string `json:"mac"`
	Model    string `json:"model"`
	Serial   string `json:"serial"`
	Firmware string `json:"firmware"`
	Hostname string `json:"hostname"`
	Uptime   string `json:"uptime"`
}

// ordered alternatives per field; index 0 is the most common layout
var (
	modelPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?m)^\s*HW: (?:Stackable )?(ICX[0-9]+[A-Z0-9\-]*)`),
		regexp.MustCompile(`(?m)UNIT \d+: SL \d+: (ICX[0-9]+[A-Z0-9\-]*)`),
		regexp.MustCompile(`(ICX[0-9]+-[0-9]+[A-Z]*)`),
	}
	serialPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?m)Serial\s*#:\s*([A-Z0-9]+)`),
		regexp.MustCompile(`(?m)Serial Number\s*:\s*([A-Z0-9]+)`),
	}
	firmwarePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?m)SW: Version\s+([0-9]{2}\.[0-9]\.[0-9]{2}[a-zA-Z0-9]*)`),
		regexp.MustCompile(`(?m)SW Version\s*:?\s*([0-9]{2}\.[0-9]\.[0-9]{2}[a-zA-Z0-9]*)`),
		regexp.MustCompile(`(?m)Version\s*:?\s*([0-9]{2}\.[0-9]\.[0-9]{2}[a-zA-Z0-9]*)`),
	}
	uptimePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?m)uptime is\s+(.+?)\s*$`),
		regexp.MustCompile(`(?m)The system started at\s+(.+?)\s*$`),
	}
	macPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?mi)Management MAC\s*:?\s*([0-9a-f]{4}\.[0-9a-f]{4}\.[0-9a-f]{4})`),
		regexp.MustCompile(`(?mi)Base MAC\s*(?:address)?\s*:?\s*([0-9a-f]{4}\.[0-9a-f]{4}\.[0-9a-f]{4})`),
		regexp.MustCompile(`(?mi)MAC(?:\s+address)?\s*:?\s*([0-9a-f]{4}\.[0-9a-f]{4}\.[0-9a-f]{4})`),
	}
	hostnamePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?m)^\s*hostname\s+(\S+)`),
		regexp.MustCompile(`(?m)^([\w\-]+)[>#]`),
	}
)

// Extractor caches the first matching pattern index per field so a fleet of
// same-firmware devices pays the alternative scan once.
type Extractor struct {
	cache map[string]int
}

// New creates an identity extractor
func New() *Extractor {
	return &Extractor{cache: make(map[string]int)}
}

// Parse pulls identity fields out of combined version and chassis output.
// It never fails; absent fields stay empty.
func (e *Extractor) Parse(ip, versionOutput, chassisOutput string) Identity {
	combined := versionOutput + "\n" + chassisOutput
	return Identity{
		IP:       ip,
		MAC:      NormalizeMAC(e.match("mac", macPatterns, combined)),
		Model:    e.match("model", modelPatterns, combined),
		Serial:   e.match("serial", serialPatterns, combined),
		Firmware: e.match("firmware", firmwarePatterns, combined),
		Hostname: e.match("hostname", hostnamePatterns, combined),
		Uptime:   e.match("uptime", uptimePatterns, combined),
	}
}

func (e *Extractor) match(field string, patterns []*regexp.Regexp, text string) string {
	if idx, ok := e.cache[field]; ok {
		if m := patterns[idx].FindStringSubmatch(text); m != nil {
			return strings.TrimSpace(m[1])
		}
	}
	for i, re := range patterns {
		if m := re.FindStringSubmatch(text); m != nil {
			e.cache[field] = i
			return strings.TrimSpace(m[1])
		}
	}
	return ""
}

// NormalizeMAC lowercases a MAC and strips separator variants down to the
// dotted-quad form the rest of the system keys on (aabb.ccdd.eeff).
func NormalizeMAC(mac string) string {
	mac = strings.ToLower(strings.TrimSpace(mac))
	hex := strings.NewReplacer(":", "", "-", "", ".", "").Replace(mac)
	if len(hex) != 12 {
		return mac
	}
	return hex[0:4] + "." + hex[4:8] + "." + hex[8:12]
}

// ParseUptime converts a textual uptime ("5 day(s) 2 hour(s) 3 minute(s)")
// into a duration where the format allows; zero otherwise.
func ParseUptime(s string) time.Duration {
	re := regexp.MustCompile(`(\d+)\s*(day|hour|minute|second)`)
	var total time.Duration
	for _, m := range re.FindAllStringSubmatch(s, -1) {
		n := 0
		for _, r := range m[1] {
			n = n*10 + int(r-'0')
		}
		switch m[2] {
		case "day":
			total += time.Duration(n) * 24 * time.Hour
		case "hour":
			total += time.Duration(n) * time.Hour
		case "minute":
			total += time.Duration(n) * time.Minute
		case "second":
			total += time.Duration(n) * time.Second
		}
	}
	return total
}
