package ratelimit

import (
	"strings"
	"time"
)

// EndpointConfig is the limit for one route.
type EndpointConfig struct {
	Path   string // exact path, or a prefix when it ends in "/" and is longer than "/"
	Method string
	Limit  int // requests per Window; zero means unlimited
	Window time.Duration
	Burst  int // defaults to Limit
}

func (e *EndpointConfig) key(path string) string {
	if e.Path == "" {
		return path
	}
	return e.Path
}

// Config holds rate limiting configuration.
type Config struct {
	Enabled         bool
	DefaultLimit    int
	DefaultWindow   time.Duration
	CleanupInterval time.Duration
	IdleTTL         time.Duration
	Whitelist       map[string]bool
	Blacklist       map[string]bool
	Endpoints       []EndpointConfig
}

// DefaultConfig returns the limits used by the service.
func DefaultConfig() *Config {
	return &Config{
		Enabled:         true,
		DefaultLimit:    600,
		DefaultWindow:   time.Minute,
		CleanupInterval: 5 * time.Minute,
		IdleTTL:         time.Hour,
		Whitelist:       make(map[string]bool),
		Blacklist:       make(map[string]bool),
		Endpoints:       DefaultEndpointConfigs(),
	}
}

// DefaultEndpointConfigs returns the per-route limits. Starting a run opens a
// browser and walks the whole roster, so the trigger gets the strictest limit.
func DefaultEndpointConfigs() []EndpointConfig {
	return []EndpointConfig{
		{Path: "/", Method: "GET", Limit: 12, Window: time.Hour, Burst: 2},
		{Path: "/ping", Method: "GET"},
		{Path: "/health", Method: "GET"},
		{Path: "/metrics", Method: "GET"},
	}
}

// Trigger returns the GET / endpoint limit, or nil when there is none.
func (c *Config) Trigger() *EndpointConfig {
	for i := range c.Endpoints {
		if e := &c.Endpoints[i]; e.Path == "/" && e.Method == "GET" {
			return e
		}
	}
	return nil
}

// IPSet turns a list of addresses into a set, skipping blanks.
func IPSet(ips []string) map[string]bool {
	result := make(map[string]bool, len(ips))
	for _, ip := range ips {
		if ip = strings.TrimSpace(ip); ip != "" {
			result[ip] = true
		}
	}
	return result
}
