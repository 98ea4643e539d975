package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
)

func newViper(overrides map[string]any) *viper.Viper {
	v := viper.New()
	setDefaults(v)
	for k, val := range overrides {
		v.Set(k, val)
	}
	return v
}

func TestFromViper_Defaults(t *testing.T) {
	t.Parallel()

	cfg, err := fromViper(newViper(map[string]any{"JWT_SECRET": "s3cret"}))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Errorf("expected port 8080, got %s", cfg.Server.Port)
	}
	if cfg.Dispatch.CommissionRate.String() != "0.2" {
		t.Errorf("expected commission 0.2, got %s", cfg.Dispatch.CommissionRate)
	}
	if cfg.Dispatch.StalenessThreshold != 30*time.Second {
		t.Errorf("expected 30s staleness, got %s", cfg.Dispatch.StalenessThreshold)
	}
	if cfg.Dispatch.OTPMaxAttempts != 5 || cfg.Dispatch.DefaultCODLimit != 500 {
		t.Errorf("unexpected dispatch defaults: %+v", cfg.Dispatch)
	}
	if len(cfg.Server.AllowedOrigins) != 1 || cfg.Server.AllowedOrigins[0] != "*" {
		t.Errorf("expected wildcard origin, got %v", cfg.Server.AllowedOrigins)
	}
	if cfg.RabbitMQ.URL != "" {
		t.Errorf("expected broker disabled by default, got %s", cfg.RabbitMQ.URL)
	}
}

func TestFromViper_Overrides(t *testing.T) {
	t.Parallel()

	cfg, err := fromViper(newViper(map[string]any{
		"JWT_SECRET":           "s3cret",
		"COMMISSION_RATE":      "0.15",
		"CORS_ALLOWED_ORIGINS": "https://a.example.com, https://b.example.com,",
		"WS_PONG_WAIT":         "90s",
	}))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Dispatch.CommissionRate.String() != "0.15" {
		t.Errorf("expected 0.15, got %s", cfg.Dispatch.CommissionRate)
	}
	if len(cfg.Server.AllowedOrigins) != 2 || cfg.Server.AllowedOrigins[1] != "https://b.example.com" {
		t.Errorf("unexpected origins %v", cfg.Server.AllowedOrigins)
	}
	if cfg.Realtime.PongWait != 90*time.Second {
		t.Errorf("expected 90s pong wait, got %s", cfg.Realtime.PongWait)
	}
}

func TestFromViper_Invalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		overrides map[string]any
	}{
		{"missing jwt secret", map[string]any{}},
		{"unparsable commission", map[string]any{"JWT_SECRET": "s", "COMMISSION_RATE": "a fifth"}},
		{"negative commission", map[string]any{"JWT_SECRET": "s", "COMMISSION_RATE": "-0.1"}},
		{"commission above one", map[string]any{"JWT_SECRET": "s", "COMMISSION_RATE": "1.5"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := fromViper(newViper(tt.overrides)); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestDatabaseConfig_DSN(t *testing.T) {
	t.Parallel()
	d := DatabaseConfig{Host: "db", Port: "5432", User: "u", Password: "p", DBName: "dispatch", SSLMode: "disable"}

	want := "host=db port=5432 user=u password=p dbname=dispatch sslmode=disable"
	if got := d.DSN(); got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}
