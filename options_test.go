package dbusconn

import (
	"testing"
	"time"
)

func TestNewConfigDefaults(t *testing.T) {
	cfg, err := NewConfig()
	if err != nil {
		t.Fatalf("NewConfig(): %v", err)
	}
	if cfg.MethodCallTimeout != 30*time.Second {
		t.Errorf("MethodCallTimeout = %v, want 30s", cfg.MethodCallTimeout)
	}
	if cfg.ConnectTimeout != 10*time.Second {
		t.Errorf("ConnectTimeout = %v, want 10s", cfg.ConnectTimeout)
	}
	if !cfg.HealthCheckEnabled {
		t.Errorf("HealthCheckEnabled = false, want true")
	}
	if !cfg.AutoReconnectEnabled {
		t.Errorf("AutoReconnectEnabled = false, want true")
	}
	if cfg.ReconnectBackoffMultiplier != 2.0 {
		t.Errorf("ReconnectBackoffMultiplier = %v, want 2.0", cfg.ReconnectBackoffMultiplier)
	}
	if _, ok := cfg.Metrics.(NoopMetrics); !ok {
		t.Errorf("Metrics = %T, want NoopMetrics", cfg.Metrics)
	}
}

func TestNewConfigAppliesOptions(t *testing.T) {
	cfg, err := NewConfig(
		WithMethodCallTimeout(5*time.Second),
		WithConnectTimeout(2*time.Second),
		WithAutoReconnect(false),
		WithMaxReconnectAttempts(3),
	)
	if err != nil {
		t.Fatalf("NewConfig(): %v", err)
	}
	if cfg.MethodCallTimeout != 5*time.Second {
		t.Errorf("MethodCallTimeout = %v, want 5s", cfg.MethodCallTimeout)
	}
	if cfg.ConnectTimeout != 2*time.Second {
		t.Errorf("ConnectTimeout = %v, want 2s", cfg.ConnectTimeout)
	}
	if cfg.AutoReconnectEnabled {
		t.Errorf("AutoReconnectEnabled = true, want false")
	}
	if cfg.MaxReconnectAttempts != 3 {
		t.Errorf("MaxReconnectAttempts = %d, want 3", cfg.MaxReconnectAttempts)
	}
}

func TestConfigValidateRejectsNonPositiveDurations(t *testing.T) {
	cfg := defaultConfig()
	cfg.ConnectTimeout = 0
	if err := cfg.Validate(); err == nil {
		t.Fatalf("Validate() = nil, want error for zero ConnectTimeout")
	}
}

func TestConfigValidateRejectsSubUnityMultiplier(t *testing.T) {
	cfg := defaultConfig()
	cfg.ReconnectBackoffMultiplier = 0.5
	if err := cfg.Validate(); err == nil {
		t.Fatalf("Validate() = nil, want error for multiplier < 1.0")
	}
}

func TestConfigValidateRejectsNegativeMaxAttempts(t *testing.T) {
	cfg := defaultConfig()
	cfg.MaxReconnectAttempts = -1
	if err := cfg.Validate(); err == nil {
		t.Fatalf("Validate() = nil, want error for negative MaxReconnectAttempts")
	}
}

func TestConfigValidateAllowsZeroMaxAttempts(t *testing.T) {
	cfg := defaultConfig()
	cfg.MaxReconnectAttempts = 0
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() = %v, want nil for MaxReconnectAttempts = 0 (unlimited)", err)
	}
}

func TestWithMetricsIgnoresNil(t *testing.T) {
	cfg, err := NewConfig(WithMetrics(nil))
	if err != nil {
		t.Fatalf("NewConfig(): %v", err)
	}
	if cfg.Metrics == nil {
		t.Fatalf("Metrics = nil, want the default Noop sink to survive a nil WithMetrics call")
	}
}

func TestWithMetricsOverridesDefault(t *testing.T) {
	m := NewAtomicMetrics()
	cfg, err := NewConfig(WithMetrics(m))
	if err != nil {
		t.Fatalf("NewConfig(): %v", err)
	}
	if cfg.Metrics != m {
		t.Errorf("Metrics = %v, want the injected sink", cfg.Metrics)
	}
}
