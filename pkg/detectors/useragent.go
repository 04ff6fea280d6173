package detectors

import (
	"context"
	"net"
	"strings"
	"time"

	"github.com/quoram/sentryflow/pkg/blackboard"
)

// UserAgentDetector classifies the raw User-Agent header: verified-bot
// allowlist hits, known tool/library signatures, and headless-automation
// markers. It is the only detector permitted to force an early-exit
// whitelist result (BotType VerifiedBot), per §4.4's catalog notes.
type UserAgentDetector struct {
	Base
	KnownBots []KnownBot
}

// NewUserAgentDetector builds the first-wave UA detector. It has no
// triggers: empty trigger list means eligible in the first wave.
func NewUserAgentDetector(enabled bool, timeout time.Duration, knownBots []KnownBot) *UserAgentDetector {
	return &UserAgentDetector{
		Base: Base{
			DetectorName:    "useragent",
			Wave:            1,
			Enabled:         enabled,
			Optional:        false,
			ExecTimeoutD:    timeout,
			TriggerTimeoutD: 0,
		},
		KnownBots: knownBots,
	}
}

func (d *UserAgentDetector) Contribute(ctx context.Context, req *blackboard.RequestSnapshot, _ map[blackboard.SignalKey]blackboard.SignalValue) (blackboard.ContributeResult, error) {
	select {
	case <-ctx.Done():
		return blackboard.ContributeResult{}, ctx.Err()
	default:
	}

	ua := strings.ToLower(req.UserAgent)
	var out blackboard.ContributeResult

	if ua == "" {
		out.Contributions = append(out.Contributions, contribution(
			d.Name(), blackboard.CategoryUserAgent, 0.6, 1.0, "missing user-agent header", d.Priority(),
		))
		out.Signals = append(out.Signals, signal(blackboard.SignalUAIsBot, blackboard.BoolValue(true)))
		return out, nil
	}

	for _, kb := range d.KnownBots {
		if !strings.Contains(ua, kb.UASubstring) {
			continue
		}
		if !ipInAnyPrefix(req.ClientIP, kb.IPPrefixes) {
			// UA claims a verified-bot identity but the source IP isn't in
			// that bot's published range: impersonation, not a free pass.
			// BotType must stay off VerifiedBot so it can't trigger the
			// orchestrator's early-exit or the aggregator's forced VeryLow.
			c := contribution(d.Name(), blackboard.CategoryUserAgent, 0.95, 2.0, "UA claims verified bot but IP not in range: "+kb.Name, d.Priority())
			c.BotType = blackboard.BotTypeUnverified
			c.BotName = kb.Name
			c.Whitelisted = false
			out.Contributions = append(out.Contributions, c)
			out.Signals = append(out.Signals,
				signal(blackboard.SignalUAIsKnownBot, blackboard.BoolValue(true)),
				signal(blackboard.SignalUABotName, blackboard.StringValue(kb.Name)),
				signal(blackboard.SignalUAIsBot, blackboard.BoolValue(true)),
			)
			return out, nil
		}

		c := contribution(d.Name(), blackboard.CategoryUserAgent, -1, 2.0, "verified bot UA: "+kb.Name, d.Priority())
		c.BotType = blackboard.BotTypeVerifiedBot
		c.BotName = kb.Name
		c.Whitelisted = true
		out.Contributions = append(out.Contributions, c)
		out.Signals = append(out.Signals,
			signal(blackboard.SignalUAIsKnownBot, blackboard.BoolValue(true)),
			signal(blackboard.SignalUABotName, blackboard.StringValue(kb.Name)),
		)
		return out, nil
	}

	if tool, hit := matchesAny(ua, toolSignatures); hit {
		out.Contributions = append(out.Contributions, contribution(
			d.Name(), blackboard.CategoryUserAgent, 0.85, 1.5, "known tool/library UA: "+tool, d.Priority(),
		))
		out.Signals = append(out.Signals, signal(blackboard.SignalUAIsBot, blackboard.BoolValue(true)))
	}

	if hs, hit := matchesAny(ua, headlessSignatures); hit {
		out.Contributions = append(out.Contributions, contribution(
			d.Name(), blackboard.CategoryFingerprint, 0.7, 1.2, "headless automation marker: "+hs, d.Priority(),
		))
		out.Signals = append(out.Signals, signal(blackboard.SignalUAHeadless, blackboard.BoolValue(true)))
	}

	if len(out.Contributions) == 0 {
		out.Signals = append(out.Signals, signal(blackboard.SignalUAIsBot, blackboard.BoolValue(false)))
	}
	return out, nil
}

func ipInAnyPrefix(ip net.IP, prefixes []string) bool {
	if ip == nil || len(prefixes) == 0 {
		return len(prefixes) == 0
	}
	s := ip.String()
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}
