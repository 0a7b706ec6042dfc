package config

import "time"

// Limits are the request windows and lifetime quota enforced client side.
type Limits struct {
	PerMinute int `yaml:"per_minute" validate:"required,min=1,max=10000"`
	PerHour   int `yaml:"per_hour" validate:"required,min=1,max=100000"`
	PerDay    int `yaml:"per_day" validate:"required,min=1,max=1000000"`
	MaxTotal  int `yaml:"max_total" validate:"required,min=1"`
}

type RetryConfig struct {
	// MaxAttempts counts every attempt, including the first.
	MaxAttempts int           `yaml:"max_attempts" validate:"min=1,max=10"`
	BaseDelay   time.Duration `yaml:"base_delay" validate:"min=0,max=5m"`
	MaxDelay    time.Duration `yaml:"max_delay" validate:"gtefield=BaseDelay,max=30m"`
}

func DefaultLimits() Limits {
	return Limits{
		PerMinute: 10,
		PerHour:   100,
		PerDay:    500,
		MaxTotal:  1000,
	}
}

func DefaultRetry() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   2 * time.Second,
		MaxDelay:    30 * time.Second,
	}
}
