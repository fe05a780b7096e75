package ratelimit

import "strings"

// MatchEndpoint returns the config for method and path, or nil when the
// default limit applies. Exact paths win over prefixes. "/" is only ever an
// exact match, so it does not swallow every route.
func MatchEndpoint(path, method string, configs []EndpointConfig) *EndpointConfig {
	for i := range configs {
		c := &configs[i]
		if c.Method == method && c.Path == path {
			return c
		}
	}

	var best *EndpointConfig
	for i := range configs {
		c := &configs[i]
		if c.Method != method || len(c.Path) < 2 || !strings.HasSuffix(c.Path, "/") {
			continue
		}
		if strings.HasPrefix(path, c.Path) && (best == nil || len(c.Path) > len(best.Path)) {
			best = c
		}
	}
	return best
}
