package containment

import (
	"context"
	"fmt"

	"github.com/ppiankov/podguard/internal/denylist"
	"github.com/ppiankov/podguard/internal/model"
)

// CheckNetworkAccess decides whether the pod may reach req.URL. Every
// decision is audited; MONITORED allows are recorded as LOGGED.
func (e *Engine) CheckNetworkAccess(ctx context.Context, req model.NetworkRequest) (model.AccessDecision, error) {
	host, hostErr := denylist.HostFromURL(req.URL)

	ev := &evaluation{
		channel:   model.ChannelNetwork,
		eventType: "NETWORK_ACCESS",
		category:  model.CategoryNetwork,
		details:   model.ViolationDetails{Network: &model.NetworkDetails{URL: req.URL, Hostname: host}},
	}
	sc, denied, err := e.resolve(ctx, req.SessionID, ev)
	if denied != nil {
		return *denied, err
	}
	ev.sc = sc

	var o outcome
	if hostErr != nil {
		o = deny(model.ViolationNetworkAccess, "network.invalid_url", "Invalid URL")
	} else {
		o = e.networkPipeline(sc.Policy, host)
	}
	return e.conclude(ctx, ev, o)
}

// networkPipeline applies the network mode, block and allow lists, then
// the internet gate.
func (e *Engine) networkPipeline(p *model.PodSecurityPolicy, host string) outcome {
	vt := model.ViolationNetworkAccess
	granted := false

	switch p.NetworkPolicy {
	case model.NetworkBlocked:
		return deny(vt, "network.blocked", "Network access is disabled by policy")
	case model.NetworkRestricted:
		if _, ok := denylist.MatchAny(host, p.AllowedDomains); !ok {
			return deny(vt, "network.domain_not_allowed", fmt.Sprintf("Domain %s is not in the allowed list", host))
		}
		granted = true
	case model.NetworkMonitored, model.NetworkUnrestricted:
		if pattern, ok := denylist.MatchAny(host, p.BlockedDomains); ok {
			return deny(vt, "network.blocked_domain", fmt.Sprintf("Domain %s is blocked by policy (%s)", host, pattern))
		}
		if e.denylist != nil {
			if blocked, reason := e.denylist.IsBlocked(host); blocked {
				return deny(vt, "network.denylist", fmt.Sprintf("Domain %s is blocked: %s", host, reason))
			}
		}
	default:
		return unknownMode("network_policy", p.NetworkPolicy)
	}

	if !p.AllowInternet && !granted && !denylist.IsPrivate(host) {
		return deny(vt, "network.internet_disabled", fmt.Sprintf("Internet access is disabled by policy (%s)", host))
	}

	if p.NetworkPolicy == model.NetworkMonitored {
		return logged("network.monitored", "Network access allowed (monitored)")
	}
	return allow("network.allowed", "Network access allowed")
}
