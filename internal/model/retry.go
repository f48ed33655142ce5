package model

import "time"

// RetryConfig defines retry behavior for oracle calls. Content failures
// (malformed or rejected output) and transport failures have separate budgets.
type RetryConfig struct {
	ContentRetries   int           `json:"content_retries" mapstructure:"content_retries"`
	TransportRetries int           `json:"transport_retries" mapstructure:"transport_retries"`
	BackoffBase      time.Duration `json:"backoff_base" mapstructure:"backoff_base"`
	BackoffMax       time.Duration `json:"backoff_max" mapstructure:"backoff_max"`
}

// DefaultRetryConfig retries content once and transport up to three times
// with a linear 500ms step.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		ContentRetries:   1,
		TransportRetries: 3,
		BackoffBase:      500 * time.Millisecond,
		BackoffMax:       5 * time.Second,
	}
}
