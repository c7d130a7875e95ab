package settings

import "time"

// Defaults applied when the config file omits a value.
const (
	// DefaultCurrency is the reporting currency when a request names none.
	DefaultCurrency = "USD"
	// DefaultRatesURL is the exchange-rate endpoint; the base currency is appended as a path segment.
	DefaultRatesURL = "https://api.exchangerate-api.com/v4/latest"
	// DefaultRatesCacheTTL bounds how long fetched rates are reused.
	DefaultRatesCacheTTL = time.Hour
	// DefaultRatesRequestTimeout bounds a single rate lookup.
	DefaultRatesRequestTimeout = 10 * time.Second
	// DefaultRatesRedisPrefix is the Redis key prefix for cached rates.
	DefaultRatesRedisPrefix = "wv:fx"
	// DefaultRateLimitRedisPrefix is the Redis key prefix for request counters.
	DefaultRateLimitRedisPrefix = "wv:rl"
	// DefaultRateLimit is the number of front API requests a user may make per window.
	DefaultRateLimit = 120
	// DefaultRateLimitWindow is the length of a request counting window.
	DefaultRateLimitWindow = time.Minute
	// DefaultMailProvider logs messages instead of delivering them.
	DefaultMailProvider = "log"
	// DefaultMailFrom is the sender address for outgoing messages.
	DefaultMailFrom = "no-reply@wealthvault.local"
	// DefaultMailFromName is the sender display name for outgoing messages.
	DefaultMailFromName = "WealthVault"
	// DefaultMailTimeout bounds a single delivery attempt.
	DefaultMailTimeout = 15 * time.Second
	// DefaultDMSCheckSchedule runs the dead man switch evaluation daily at 09:00.
	DefaultDMSCheckSchedule = "0 0 9 * * *"
	// DefaultMessageDispatchSchedule runs message delivery at the top of every hour.
	DefaultMessageDispatchSchedule = "0 0 * * * *"
	// DefaultRetrySweepSchedule re-queues failed messages daily at 10:00.
	DefaultRetrySweepSchedule = "0 0 10 * * *"
	// DefaultSchedulerTimezone is the location cron expressions are evaluated in.
	DefaultSchedulerTimezone = "UTC"
	// DefaultReminderMode sends a single reminder before the trigger.
	DefaultReminderMode = "single"
	// DefaultReminderLeadDays is how many days before the trigger the single reminder is sent.
	DefaultReminderLeadDays = 7
	// DefaultInactivityDays is the trigger threshold for new switches.
	DefaultInactivityDays = 90
	// DefaultAnomalyThreshold flags implausibly large net worth values.
	DefaultAnomalyThreshold = 1e12
	// DefaultServerPort is the HTTP listen port.
	DefaultServerPort = 8420
)
