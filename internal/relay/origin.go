// Package relay normalizes and validates HTTP origins for WebSocket
// upgrades to enforce the configured access control.
package relay

import (
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"
)

// originPolicy is the allow-list applied to the WebSocket upgrade. It is
// built once from the sanitized config and held by the hub; there is no
// package-level origin state.
type originPolicy struct {
	allowAll bool
	allowed  map[string]struct{}
	log      *zap.SugaredLogger
}

func newOriginPolicy(origins []string, log *zap.SugaredLogger) *originPolicy {
	p := &originPolicy{
		allowed: make(map[string]struct{}, len(origins)),
		log:     log,
	}

	for _, origin := range origins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}
		if trimmed == "*" {
			p.allowAll = true
			continue
		}
		normalized, ok := normalizeOrigin(trimmed)
		if !ok {
			log.Warnf("ignoring invalid origin in configuration: %q", origin)
			continue
		}
		p.allowed[normalized] = struct{}{}
	}

	return p
}

func normalizeOrigin(origin string) (string, bool) {
	parsed, err := url.Parse(origin)
	if err != nil {
		return "", false
	}

	if parsed.Scheme == "" || parsed.Host == "" {
		return "", false
	}

	normalized := strings.ToLower(parsed.Scheme) + "://" + strings.ToLower(parsed.Host)
	return normalized, true
}

// check is plugged into the upgrader's CheckOrigin. Requests without an
// Origin header are rejected even under the wildcard.
func (p *originPolicy) check(r *http.Request) bool {
	originHeader := r.Header.Get("Origin")
	if originHeader == "" {
		p.log.Warnf("blocked WebSocket connection with no origin header from %s", r.RemoteAddr)
		return false
	}

	normalized, ok := normalizeOrigin(originHeader)
	if !ok {
		p.log.Warnf("blocked WebSocket connection with malformed origin: %q", originHeader)
		return false
	}

	if p.allowAll {
		return true
	}

	if _, exists := p.allowed[normalized]; exists {
		return true
	}

	p.log.Warnf("blocked WebSocket connection from disallowed origin: %q", originHeader)
	return false
}
