package metrics

import "fmt"

const (
	// KeyPrefixMetrics is the prefix for all metrics keys
	KeyPrefixMetrics = "monitor:metrics"
	// KeyPrefixFixed is the prefix for fixed-issue counters
	KeyPrefixFixed = "fixed"
	// KeyPrefixFailed is the prefix for failed-attempt counters
	KeyPrefixFailed = "failed"
	// KeyPrefixSkipped is the prefix for skipped-issue counters
	KeyPrefixSkipped = "skipped"
	// KeyLastRun is the Redis key for the last completed run timestamp
	KeyLastRun = "monitor:metrics:last_run"
	// MetricsTTLDays is the TTL in days for metrics counters
	MetricsTTLDays = 30
	// HoursPerDay converts day counts into hour durations
	HoursPerDay = 24
)

// RedisKeys builds counter keys consistently.
type RedisKeys struct {
	prefix string
}

// NewRedisKeys creates a new RedisKeys instance.
func NewRedisKeys(prefix string) *RedisKeys {
	return &RedisKeys{prefix: prefix}
}

// Fixed returns the counter key for fixed issues of a type.
func (k *RedisKeys) Fixed(issueType string) string {
	return fmt.Sprintf("%s:%s:%s", k.prefix, KeyPrefixFixed, issueType)
}

// Failed returns the counter key for failed attempts of a type.
func (k *RedisKeys) Failed(issueType string) string {
	return fmt.Sprintf("%s:%s:%s", k.prefix, KeyPrefixFailed, issueType)
}

// Skipped returns the counter key for skipped issues of a type.
func (k *RedisKeys) Skipped(issueType string) string {
	return fmt.Sprintf("%s:%s:%s", k.prefix, KeyPrefixSkipped, issueType)
}
