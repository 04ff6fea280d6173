package reputation

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net"
	"regexp"
	"strings"
)

// PatternType names the kind of entity a PatternReputation tracks.
type PatternType string

const (
	PatternUserAgent     PatternType = "UserAgent"
	PatternIPPrefix      PatternType = "IpPrefix"
	PatternASN           PatternType = "Asn"
	PatternTLSFingerprint PatternType = "TlsFingerprint"
	PatternComposite     PatternType = "Composite"
)

var versionNumberRe = regexp.MustCompile(`\d+(\.\d+)*`)

// marketingTokens are vendor-marketing substrings that carry no
// discriminating signal and are stripped before hashing so that
// e.g. "Chrome/120.0.0.0 Safari/537.36" and "Chrome/121.0.0.0 Safari/537.36"
// normalize to the same pattern.
var marketingTokens = []string{
	"safari/537.36", "like gecko", "khtml, ", "applewebkit/537.36",
}

// frameworkFamilies maps raw-substring hits to a canonical label, collapsing
// many concrete client builds onto one stable bucket.
var frameworkFamilies = []struct {
	substr string
	label  string
}{
	{"headlesschrome", "headless-chrome"},
	{"phantomjs", "phantomjs"},
	{"puppeteer", "puppeteer"},
	{"playwright", "playwright"},
	{"python-requests", "python-requests"},
	{"curl/", "curl"},
	{"wget/", "wget"},
	{"googlebot", "googlebot"},
	{"bingbot", "bingbot"},
	{"chrome/", "chrome"},
	{"firefox/", "firefox"},
	{"safari/", "safari"},
	{"edge/", "edge"},
}

// NormalizeUA lowercases, collapses version numbers to "major", strips
// marketing tokens, and maps known framework families to a canonical label.
// It is idempotent: NormalizeUA(NormalizeUA(s)) == NormalizeUA(s).
func NormalizeUA(ua string) string {
	s := strings.ToLower(strings.TrimSpace(ua))
	if s == "" {
		return "empty"
	}

	for _, family := range frameworkFamilies {
		if strings.Contains(s, family.substr) {
			s = family.label
			break
		}
	}

	for _, tok := range marketingTokens {
		s = strings.ReplaceAll(s, tok, "")
	}

	s = versionNumberRe.ReplaceAllStringFunc(s, func(v string) string {
		major := strings.SplitN(v, ".", 2)[0]
		return major
	})

	s = strings.Join(strings.Fields(s), " ")
	return strings.TrimSpace(s)
}

// NormalizeIP projects an address down to its reputation-bearing network:
// IPv4 to /24, IPv6 to /64. Private and loopback ranges collapse to a
// sentinel that NormalizeIP callers must never allow past PatternNew.
func NormalizeIP(ip net.IP) (normalized string, isSentinel bool) {
	if ip == nil {
		return "sentinel:invalid", true
	}
	if ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() {
		return "sentinel:private", true
	}

	if v4 := ip.To4(); v4 != nil {
		mask := net.CIDRMask(24, 32)
		return v4.Mask(mask).String() + "/24", false
	}

	mask := net.CIDRMask(64, 128)
	return ip.Mask(mask).String() + "/64", false
}

// HashPatternID derives the wire-safe opaque identifier for a normalized
// pattern string. The raw normalized string never leaves the detector that
// produced it; only this HMAC digest is persisted or transmitted.
func HashPatternID(key []byte, patternType PatternType, normalized string) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(patternType))
	mac.Write([]byte{0})
	mac.Write([]byte(normalized))
	return hex.EncodeToString(mac.Sum(nil))
}
