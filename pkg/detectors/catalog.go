package detectors

import "strings"

// KnownBot is one entry in the verified-bot allowlist: a UA substring
// match paired with the canonical name reported as BotName and the IP
// prefixes the vendor is known to crawl from. Matching both the UA
// substring and (when configured) the IP range is what allows the
// UserAgent detector to mark VerifiedBot with confidence.
type KnownBot struct {
	UASubstring string
	Name        string
	IPPrefixes  []string // CIDR-ish prefixes; empty means "UA match alone is enough"
}

// DefaultKnownBots is the read-only verified-bot registry. The builder in
// cmd/sentryflow-gateway passes it to NewUserAgentDetector once at startup;
// it is not held behind an atomic pointer and is not swapped while the
// process runs.
var DefaultKnownBots = []KnownBot{
	{UASubstring: "googlebot", Name: "Google Search", IPPrefixes: []string{"66.249.", "64.233.", "72.14."}},
	{UASubstring: "bingbot", Name: "Bing", IPPrefixes: []string{"40.77.", "157.55."}},
	{UASubstring: "duckduckbot", Name: "DuckDuckGo"},
	{UASubstring: "slackbot", Name: "Slack"},
	{UASubstring: "twitterbot", Name: "Twitter"},
	{UASubstring: "facebookexternalhit", Name: "Facebook"},
	{UASubstring: "applebot", Name: "Apple"},
}

// toolSignatures are simple-client substrings that almost never appear in a
// browser UA and are strong, low-noise bot-positive signals on their own.
var toolSignatures = []string{
	"curl/", "wget/", "python-requests", "python-urllib", "go-http-client",
	"java/", "libwww-perl", "scrapy", "httpclient", "okhttp", "axios/",
	"node-fetch", "postmanruntime",
}

// headlessSignatures mark automation frameworks that drive a real browser
// engine.
var headlessSignatures = []string{
	"headlesschrome", "phantomjs", "puppeteer", "playwright", "selenium",
}

func matchesAny(haystack string, needles []string) (string, bool) {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return n, true
		}
	}
	return "", false
}
