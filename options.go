package dbusconn

import (
	"time"
)

// Config collects every tunable of the connection engine. Zero
// value is never used directly; callers get one via NewConfig(opts...),
// which starts from defaultConfig and layers Options on top.
type Config struct {
	MethodCallTimeout time.Duration
	ConnectTimeout    time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration

	HealthCheckEnabled  bool
	HealthCheckInterval time.Duration
	HealthCheckTimeout  time.Duration

	AutoReconnectEnabled       bool
	ReconnectInitialDelay      time.Duration
	ReconnectMaxDelay          time.Duration
	ReconnectBackoffMultiplier float64
	MaxReconnectAttempts       int

	CloseTimeout time.Duration

	Metrics Metrics
}

// Option mutates a Config during construction.
type Option func(*Config)

func defaultConfig() *Config {
	return &Config{
		MethodCallTimeout:          30 * time.Second,
		ConnectTimeout:             10 * time.Second,
		ReadTimeout:                60 * time.Second,
		WriteTimeout:               10 * time.Second,
		HealthCheckEnabled:         true,
		HealthCheckInterval:        30 * time.Second,
		HealthCheckTimeout:         5 * time.Second,
		AutoReconnectEnabled:       true,
		ReconnectInitialDelay:      1 * time.Second,
		ReconnectMaxDelay:          5 * time.Minute,
		ReconnectBackoffMultiplier: 2.0,
		MaxReconnectAttempts:       10,
		CloseTimeout:               5 * time.Second,
		Metrics:                    NoopMetrics{},
	}
}

// NewConfig builds a validated Config from defaults plus opts.
func NewConfig(opts ...Option) (*Config, error) {
	cfg := defaultConfig()
	applyConfig(cfg, opts)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyConfig(cfg *Config, opts []Option) {
	for _, opt := range opts {
		if opt != nil {
			opt(cfg)
		}
	}
}

// WithMethodCallTimeout sets the per-pending-call deadline.
func WithMethodCallTimeout(d time.Duration) Option {
	return func(c *Config) { c.MethodCallTimeout = d }
}

// WithConnectTimeout sets the socket+SASL+Hello bound.
func WithConnectTimeout(d time.Duration) Option {
	return func(c *Config) { c.ConnectTimeout = d }
}

// WithReadTimeout sets the transport-level read deadline.
func WithReadTimeout(d time.Duration) Option {
	return func(c *Config) { c.ReadTimeout = d }
}

// WithWriteTimeout sets the transport-level write deadline.
func WithWriteTimeout(d time.Duration) Option {
	return func(c *Config) { c.WriteTimeout = d }
}

// WithHealthCheck enables/disables the periodic Ping monitor and sets its
// period and per-probe bound.
func WithHealthCheck(enabled bool, interval, timeout time.Duration) Option {
	return func(c *Config) {
		c.HealthCheckEnabled = enabled
		c.HealthCheckInterval = interval
		c.HealthCheckTimeout = timeout
	}
}

// WithAutoReconnect enables/disables automatic reconnection.
func WithAutoReconnect(enabled bool) Option {
	return func(c *Config) { c.AutoReconnectEnabled = enabled }
}

// WithReconnectBackoff sets the exponential backoff schedule.
func WithReconnectBackoff(initial, max time.Duration, multiplier float64) Option {
	return func(c *Config) {
		c.ReconnectInitialDelay = initial
		c.ReconnectMaxDelay = max
		c.ReconnectBackoffMultiplier = multiplier
	}
}

// WithMaxReconnectAttempts caps reconnection attempts; 0 means unlimited.
func WithMaxReconnectAttempts(n int) Option {
	return func(c *Config) { c.MaxReconnectAttempts = n }
}

// WithCloseTimeout bounds how long close() waits for drain.
func WithCloseTimeout(d time.Duration) Option {
	return func(c *Config) { c.CloseTimeout = d }
}

// WithMetrics injects a Metrics sink. The default is NoopMetrics.
func WithMetrics(m Metrics) Option {
	return func(c *Config) {
		if m != nil {
			c.Metrics = m
		}
	}
}

// Validate rejects unusable settings: all durations must be strictly
// positive, the multiplier >= 1.0, attempt counts >= 0.
func (c *Config) Validate() error {
	positive := map[string]time.Duration{
		"method_call_timeout":  c.MethodCallTimeout,
		"connect_timeout":      c.ConnectTimeout,
		"read_timeout":         c.ReadTimeout,
		"write_timeout":        c.WriteTimeout,
		"health_check_interval": c.HealthCheckInterval,
		"health_check_timeout":  c.HealthCheckTimeout,
		"reconnect_initial_delay": c.ReconnectInitialDelay,
		"reconnect_max_delay":     c.ReconnectMaxDelay,
		"close_timeout":           c.CloseTimeout,
	}
	for name, d := range positive {
		if d <= 0 {
			return newErrf(KindMessageInvalid, "%s must be strictly positive, got %v", name, d)
		}
	}
	if c.ReconnectBackoffMultiplier < 1.0 {
		return newErrf(KindMessageInvalid, "reconnect_backoff_multiplier must be >= 1.0, got %v", c.ReconnectBackoffMultiplier)
	}
	if c.MaxReconnectAttempts < 0 {
		return newErrf(KindMessageInvalid, "max_reconnect_attempts must be >= 0, got %d", c.MaxReconnectAttempts)
	}
	if c.Metrics == nil {
		return newErr(KindMessageInvalid, errStr("metrics sink must not be nil"))
	}
	return nil
}
