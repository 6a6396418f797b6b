package redis

import "fmt"

// Key patterns for visitor counting
const (
	KeyVisitorsTotal = "visitors:total"
	KeyVisitorsDaily = "visitors:daily:%s" // visitors:daily:2024-01-14
	KeyVisitorsSet   = "visitors:set:%s"   // visitors:set:2024-01-14
)

// KeyBuilder provides environment-aware Redis key building functionality
type KeyBuilder struct {
	prefix string // Environment prefix (staging/prod)
}

// NewKeyBuilder creates a new key builder with environment-based prefix
func NewKeyBuilder(environment string) *KeyBuilder {
	prefix := "prod"
	switch environment {
	case "development", "staging":
		prefix = "staging"
	case "test":
		prefix = "test"
	}

	return &KeyBuilder{
		prefix: prefix,
	}
}

// BuildKey constructs a Redis key with the environment prefix
func (kb *KeyBuilder) BuildKey(key string) string {
	return fmt.Sprintf("%s:%s", kb.prefix, key)
}

// GetPrefix returns the current environment prefix
func (kb *KeyBuilder) GetPrefix() string {
	return kb.prefix
}

// KeyVisitorsTotal is the global raw hit counter. It never expires.
func (kb *KeyBuilder) KeyVisitorsTotal() string {
	return kb.BuildKey(KeyVisitorsTotal)
}

// KeyVisitorsDaily is the raw hit counter for one calendar date.
func (kb *KeyBuilder) KeyVisitorsDaily(date string) string {
	return kb.BuildKey(fmt.Sprintf(KeyVisitorsDaily, date))
}

// KeyVisitorsSet is the unique visitor IP set for one calendar date.
func (kb *KeyBuilder) KeyVisitorsSet(date string) string {
	return kb.BuildKey(fmt.Sprintf(KeyVisitorsSet, date))
}
