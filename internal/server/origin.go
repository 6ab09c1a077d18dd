package server

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

const wildcardOrigin = "*"

// originPolicy decides which browser origins may open a room socket.
// Origins compare as lower-cased scheme://host[:port]. Requests without an
// Origin header are refused even under the wildcard.
type originPolicy struct {
	any     bool
	allowed map[string]struct{}
	log     zerolog.Logger
}

func newOriginPolicy(origins []string, log zerolog.Logger) *originPolicy {
	p := &originPolicy{allowed: make(map[string]struct{}), log: log}

	for _, raw := range lo.Compact(lo.Map(origins, func(o string, _ int) string {
		return strings.TrimSpace(o)
	})) {
		if raw == wildcardOrigin {
			p.any = true
			continue
		}
		origin, ok := canonicalOrigin(raw)
		if !ok {
			log.Warn().Str("origin", raw).Msg("ignoring invalid origin in configuration")
			continue
		}
		p.allowed[origin] = struct{}{}
	}
	return p
}

// canonicalOrigin reduces s to scheme://host, dropping any path.
func canonicalOrigin(s string) (string, bool) {
	u, err := url.Parse(s)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", false
	}
	return strings.ToLower(u.Scheme) + "://" + strings.ToLower(u.Host), true
}

func (p *originPolicy) allows(r *http.Request) bool {
	origin, ok := canonicalOrigin(r.Header.Get("Origin"))
	if !ok {
		return false
	}
	if p.any {
		return true
	}
	_, ok = p.allowed[origin]
	return ok
}

// check is the websocket.Upgrader CheckOrigin hook.
func (p *originPolicy) check(r *http.Request) bool {
	if p.allows(r) {
		return true
	}
	p.log.Warn().
		Str("origin", r.Header.Get("Origin")).
		Str("path", r.URL.Path).
		Msg("refusing room socket from disallowed origin")
	return false
}
