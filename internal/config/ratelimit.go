package config

import "github.com/jonathan/lastseen/internal/server/ratelimit"

// RateLimit returns the HTTP server rate limits: the service defaults with
// the configured limits applied to the default bucket and to GET /.
func (c *Config) RateLimit() *ratelimit.Config {
	rl := ratelimit.DefaultConfig()
	rl.Enabled = c.RateLimitEnabled
	rl.DefaultLimit = c.RateLimitDefaultLimit
	rl.DefaultWindow = c.RateLimitDefaultWindow.Std()
	rl.CleanupInterval = c.RateLimitCleanupInterval.Std()
	rl.Whitelist = ratelimit.IPSet(c.RateLimitWhitelist)
	rl.Blacklist = ratelimit.IPSet(c.RateLimitBlacklist)

	if trigger := rl.Trigger(); trigger != nil {
		trigger.Limit = c.RateLimitTriggerLimit
		trigger.Window = c.RateLimitTriggerWindow.Std()
		trigger.Burst = c.RateLimitTriggerBurst
	}
	return rl
}
