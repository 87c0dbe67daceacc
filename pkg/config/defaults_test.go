package config

import (
	"testing"
	"time"
)

func TestApplyDefaults_Logging(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.Logging.Level != "INFO" {
		t.Errorf("Expected default log level 'INFO', got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" {
		t.Errorf("Expected default log format 'text', got %q", cfg.Logging.Format)
	}
	if cfg.Logging.Output != "stdout" {
		t.Errorf("Expected default log output 'stdout', got %q", cfg.Logging.Output)
	}
}

func TestApplyDefaults_ShutdownTimeout(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.ShutdownTimeout != 30*time.Second {
		t.Errorf("Expected default shutdown timeout 30s, got %v", cfg.ShutdownTimeout)
	}
}

func TestApplyDefaults_API(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.API.Port != 8080 {
		t.Errorf("Expected default API port 8080, got %d", cfg.API.Port)
	}
	if cfg.API.ReadTimeout != 10*time.Second {
		t.Errorf("Expected default read timeout 10s, got %v", cfg.API.ReadTimeout)
	}
	if cfg.API.WriteTimeout != 10*time.Second {
		t.Errorf("Expected default write timeout 10s, got %v", cfg.API.WriteTimeout)
	}
	if cfg.API.IdleTimeout != 60*time.Second {
		t.Errorf("Expected default idle timeout 60s, got %v", cfg.API.IdleTimeout)
	}
	if cfg.API.JWT.TTL != 24*time.Hour {
		t.Errorf("Expected default JWT TTL 24h, got %v", cfg.API.JWT.TTL)
	}
}

func TestApplyDefaults_Governance(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.Governance.Backend != "memory" {
		t.Errorf("Expected default governance backend 'memory', got %q", cfg.Governance.Backend)
	}
}

func TestApplyDefaults_VM(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.VM.MaxSteps != 100_000 {
		t.Errorf("Expected default max steps 100000, got %d", cfg.VM.MaxSteps)
	}
}

func TestApplyDefaults_Admin(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.Admin.UserId != "admin" {
		t.Errorf("Expected default admin user id 'admin', got %q", cfg.Admin.UserId)
	}
}

func TestApplyDefaults_PreservesExplicitValues(t *testing.T) {
	cfg := &Config{
		Logging: LoggingConfig{
			Level:  "DEBUG",
			Format: "json",
			Output: "/var/log/chronovm.log",
		},
		ShutdownTimeout: 60 * time.Second,
		Governance:      GovernanceConfig{Backend: "badger"},
		VM:              VMConfig{MaxSteps: 500},
		Admin:           AdminConfig{UserId: "customowner"},
	}

	ApplyDefaults(cfg)

	if cfg.Logging.Level != "DEBUG" {
		t.Errorf("Expected explicit level 'DEBUG' to be preserved, got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("Expected explicit format 'json' to be preserved, got %q", cfg.Logging.Format)
	}
	if cfg.Logging.Output != "/var/log/chronovm.log" {
		t.Errorf("Expected explicit output to be preserved, got %q", cfg.Logging.Output)
	}
	if cfg.ShutdownTimeout != 60*time.Second {
		t.Errorf("Expected explicit timeout 60s to be preserved, got %v", cfg.ShutdownTimeout)
	}
	if cfg.Governance.Backend != "badger" {
		t.Errorf("Expected explicit governance backend to be preserved, got %q", cfg.Governance.Backend)
	}
	if cfg.VM.MaxSteps != 500 {
		t.Errorf("Expected explicit max steps to be preserved, got %d", cfg.VM.MaxSteps)
	}
	if cfg.Admin.UserId != "customowner" {
		t.Errorf("Expected explicit admin user id to be preserved, got %q", cfg.Admin.UserId)
	}
}

func TestGetDefaultConfig_IsValid(t *testing.T) {
	cfg := GetDefaultConfig()

	if err := Validate(cfg); err != nil {
		t.Errorf("Default config should be valid, got error: %v", err)
	}
}

func TestGetDefaultConfig_HasRequiredFields(t *testing.T) {
	cfg := GetDefaultConfig()

	if cfg.Logging.Level == "" {
		t.Error("Default config missing logging level")
	}
	if cfg.API.Port == 0 {
		t.Error("Default config missing API port")
	}
	if cfg.Admin.UserId == "" {
		t.Error("Default config missing admin user id")
	}
	if cfg.Governance.Backend == "" {
		t.Error("Default config missing governance backend")
	}
}
