package config

import (
	"os"
	"testing"
	"time"
)

// TestGetEnv tests the getEnv helper function
func TestGetEnv(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		defaultValue string
		envValue     string
		want         string
	}{
		{
			name:         "returns env value when set",
			key:          "TEST_VAR",
			defaultValue: "default",
			envValue:     "custom",
			want:         "custom",
		},
		{
			name:         "returns default when env not set",
			key:          "TEST_VAR_NOT_SET",
			defaultValue: "default",
			envValue:     "",
			want:         "default",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				os.Setenv(tt.key, tt.envValue)
				defer os.Unsetenv(tt.key)
			}

			got := getEnv(tt.key, tt.defaultValue)
			if got != tt.want {
				t.Errorf("getEnv() = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestGetEnvSeconds tests second-valued duration parsing
func TestGetEnvSeconds(t *testing.T) {
	os.Setenv("TEST_TTL", "600")
	defer os.Unsetenv("TEST_TTL")

	if got := getEnvSeconds("TEST_TTL", 3600); got != 10*time.Minute {
		t.Errorf("getEnvSeconds() = %v, want %v", got, 10*time.Minute)
	}
	if got := getEnvSeconds("TEST_TTL_NOT_SET", 3600); got != time.Hour {
		t.Errorf("getEnvSeconds() default = %v, want %v", got, time.Hour)
	}
}

// TestLoadDefaults tests loading with only the required secret set
func TestLoadDefaults(t *testing.T) {
	os.Setenv("GATEHOUSE_SECRET", "test-secret")
	defer os.Unsetenv("GATEHOUSE_SECRET")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Errorf("Server.Port = %v, want 8080", cfg.Server.Port)
	}
	if cfg.Token.Algorithm != "HS256" {
		t.Errorf("Token.Algorithm = %v, want HS256", cfg.Token.Algorithm)
	}
	if cfg.Token.AccessTTL != time.Hour {
		t.Errorf("Token.AccessTTL = %v, want 1h", cfg.Token.AccessTTL)
	}
	if cfg.Token.RefreshTTL != 24*time.Hour {
		t.Errorf("Token.RefreshTTL = %v, want 24h", cfg.Token.RefreshTTL)
	}
	if !cfg.Enforcement.Enabled {
		t.Error("Enforcement.Enabled = false, want true")
	}
	if len(cfg.Enforcement.ExemptPaths) == 0 {
		t.Error("Enforcement.ExemptPaths is empty")
	}
	if cfg.Audit.RetentionDays != 90 {
		t.Errorf("Audit.RetentionDays = %v, want 90", cfg.Audit.RetentionDays)
	}
}

// TestLoadRequiresSecret tests that a missing secret fails validation
func TestLoadRequiresSecret(t *testing.T) {
	os.Unsetenv("GATEHOUSE_SECRET")

	if _, err := Load(); err == nil {
		t.Error("Load() succeeded without GATEHOUSE_SECRET")
	}
}

// TestLoadExemptPathsOverride tests comma-separated exempt path parsing
func TestLoadExemptPathsOverride(t *testing.T) {
	os.Setenv("GATEHOUSE_SECRET", "test-secret")
	os.Setenv("GATEHOUSE_EXEMPT_PATHS", "/ping, /public/ ,")
	defer os.Unsetenv("GATEHOUSE_SECRET")
	defer os.Unsetenv("GATEHOUSE_EXEMPT_PATHS")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	want := []string{"/ping", "/public/"}
	if len(cfg.Enforcement.ExemptPaths) != len(want) {
		t.Fatalf("ExemptPaths = %v, want %v", cfg.Enforcement.ExemptPaths, want)
	}
	for i, path := range want {
		if cfg.Enforcement.ExemptPaths[i] != path {
			t.Errorf("ExemptPaths[%d] = %v, want %v", i, cfg.Enforcement.ExemptPaths[i], path)
		}
	}
}

// TestValidate tests the cross-field validation rules
func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			Server: ServerConfig{Port: "8080", HealthPort: "8081"},
			Token: TokenConfig{
				Secret:     "s",
				Algorithm:  "HS256",
				AccessTTL:  time.Hour,
				RefreshTTL: 24 * time.Hour,
			},
			Enforcement: EnforcementConfig{
				Enabled:            true,
				LoginPath:          "/login",
				LoginRatePerMinute: 10,
			},
			Audit: AuditConfig{RetentionDays: 90},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(c *Config) {}, wantErr: false},
		{name: "missing secret", mutate: func(c *Config) { c.Token.Secret = "" }, wantErr: true},
		{name: "bad algorithm", mutate: func(c *Config) { c.Token.Algorithm = "RS256" }, wantErr: true},
		{name: "refresh shorter than access", mutate: func(c *Config) { c.Token.RefreshTTL = time.Minute }, wantErr: true},
		{name: "same ports", mutate: func(c *Config) { c.Server.HealthPort = "8080" }, wantErr: true},
		{name: "enforcement without login path", mutate: func(c *Config) { c.Enforcement.LoginPath = "" }, wantErr: true},
		{name: "zero audit retention", mutate: func(c *Config) { c.Audit.RetentionDays = 0 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
