package config

import (
	"log/slog"
	"testing"
	"time"
)

func TestLoadDefaultsForDevProfile(t *testing.T) {
	cfg, err := Load("pgagents", mapLookup(map[string]string{}))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Profile != ProfileDev {
		t.Fatalf("Profile = %q, want %q", cfg.Profile, ProfileDev)
	}
	if cfg.Observability.LogLevel != slog.LevelDebug {
		t.Fatalf("LogLevel = %v", cfg.Observability.LogLevel)
	}
	if cfg.Observability.LogJSON {
		t.Fatal("LogJSON should default to false in dev")
	}
	if cfg.Database.AuthMode != DatabaseAuthPassword {
		t.Fatalf("Database.AuthMode = %q", cfg.Database.AuthMode)
	}
	if cfg.Database.MaxOpenConns != 10 {
		t.Fatalf("Database.MaxOpenConns = %d", cfg.Database.MaxOpenConns)
	}
	if cfg.Gateway.Schema != "public" {
		t.Fatalf("Gateway.Schema = %q", cfg.Gateway.Schema)
	}
	if !cfg.Gateway.HealthCheckCheckout {
		t.Fatal("Gateway.HealthCheckCheckout should default to true in dev")
	}
	if cfg.LLM.Provider != "openai" {
		t.Fatalf("LLM.Provider = %q", cfg.LLM.Provider)
	}
	if cfg.LLM.MaxToolIterations != 10 {
		t.Fatalf("LLM.MaxToolIterations = %d", cfg.LLM.MaxToolIterations)
	}
	if cfg.Audit.ArchiveEnabled {
		t.Fatal("Audit.ArchiveEnabled should default to false")
	}
}

func TestLoadProdProfileDefaults(t *testing.T) {
	cfg, err := Load("pgagents-api", mapLookup(map[string]string{"PGAGENTS_PROFILE": "prod"}))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !cfg.Auth.Required {
		t.Fatal("Auth.Required should default to true in prod")
	}
	if !cfg.Observability.LogJSON {
		t.Fatal("LogJSON should default to true in prod")
	}
	if !cfg.ObjectStore.UseSSL {
		t.Fatal("ObjectStore.UseSSL should default to true in prod")
	}
	if cfg.Service.Name != "pgagents-api" {
		t.Fatalf("Service.Name = %q", cfg.Service.Name)
	}
}

func TestLoadWithEnvOverrides(t *testing.T) {
	lookup := mapLookup(map[string]string{
		"PGAGENTS_PROFILE":                    "test",
		"PGAGENTS_SERVICE_NAME":               "pgagents-custom",
		"PGAGENTS_HTTP_ADDR":                  ":9999",
		"PGAGENTS_HTTP_READ_TIMEOUT":          "2s",
		"PGAGENTS_DATABASE_DSN":               "postgres://app@db.example.com:5432/shop",
		"PGAGENTS_DATABASE_AUTH_MODE":         "ENTRA",
		"PGAGENTS_DATABASE_ENTRA_USER":        "app@contoso.com",
		"PGAGENTS_DATABASE_ENTRA_CREDENTIAL":  "cli",
		"PGAGENTS_DATABASE_MAX_OPEN_CONNS":    "4",
		"PGAGENTS_DATABASE_MAX_IDLE_CONNS":    "2",
		"PGAGENTS_DATABASE_CONN_MAX_LIFETIME": "1m",
		"PGAGENTS_GATEWAY_SCHEMA":             "sales",
		"PGAGENTS_GATEWAY_HEALTH_CHECK":       "true",
		"PGAGENTS_LLM_PROVIDER":               "Azure",
		"PGAGENTS_LLM_BASE_URL":               "https://example.openai.azure.com",
		"PGAGENTS_LLM_MODEL":                  "gpt-4o-mini",
		"PGAGENTS_LLM_TEMPERATURE":            "0.2",
		"PGAGENTS_LLM_TIMEOUT":                "15s",
		"PGAGENTS_LLM_MAX_TOOL_ITERATIONS":    "4",
		"PGAGENTS_AUDIT_ARCHIVE_ENABLED":      "true",
		"PGAGENTS_AUDIT_FLUSH_SIZE":           "25",
		"PGAGENTS_AUDIT_MAX_PENDING":          "500",
		"PGAGENTS_OBJECTSTORE_BUCKET":         "audit-bucket",
		"PGAGENTS_LOG_LEVEL":                  "error",
		"PGAGENTS_AUTH_STATIC_KEYS":           "k1:ops:agent_runner",
	})
	cfg, err := Load("pgagents", lookup)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Service.Name != "pgagents-custom" {
		t.Fatalf("Service.Name = %q", cfg.Service.Name)
	}
	if cfg.HTTP.Address != ":9999" || cfg.HTTP.ReadTimeout != 2*time.Second {
		t.Fatalf("HTTP = %#v", cfg.HTTP)
	}
	if cfg.Database.AuthMode != DatabaseAuthEntra {
		t.Fatalf("Database.AuthMode = %q", cfg.Database.AuthMode)
	}
	if cfg.Database.EntraUser != "app@contoso.com" || cfg.Database.EntraCredential != "cli" {
		t.Fatalf("Database entra settings = %q/%q", cfg.Database.EntraUser, cfg.Database.EntraCredential)
	}
	if cfg.Database.MaxOpenConns != 4 || cfg.Database.MaxIdleConns != 2 {
		t.Fatalf("Database pool = %d/%d", cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns)
	}
	if cfg.Database.ConnMaxLifetime != time.Minute {
		t.Fatalf("Database.ConnMaxLifetime = %s", cfg.Database.ConnMaxLifetime)
	}
	if cfg.Gateway.Schema != "sales" || !cfg.Gateway.HealthCheckCheckout {
		t.Fatalf("Gateway = %#v", cfg.Gateway)
	}
	if cfg.LLM.Provider != "azure" {
		t.Fatalf("LLM.Provider = %q", cfg.LLM.Provider)
	}
	if cfg.LLM.Model != "gpt-4o-mini" || cfg.LLM.Temperature != 0.2 || cfg.LLM.Timeout != 15*time.Second {
		t.Fatalf("LLM = %#v", cfg.LLM)
	}
	if cfg.LLM.MaxToolIterations != 4 {
		t.Fatalf("LLM.MaxToolIterations = %d", cfg.LLM.MaxToolIterations)
	}
	if !cfg.Audit.ArchiveEnabled || cfg.Audit.FlushSize != 25 || cfg.Audit.MaxPending != 500 {
		t.Fatalf("Audit = %#v", cfg.Audit)
	}
	if cfg.ObjectStore.Bucket != "audit-bucket" {
		t.Fatalf("ObjectStore.Bucket = %q", cfg.ObjectStore.Bucket)
	}
	if cfg.Observability.LogLevel != slog.LevelError {
		t.Fatalf("LogLevel = %v", cfg.Observability.LogLevel)
	}
	if cfg.Auth.StaticKeys != "k1:ops:agent_runner" {
		t.Fatalf("StaticKeys = %q", cfg.Auth.StaticKeys)
	}
}

func TestLoadErrorsOnInvalidValues(t *testing.T) {
	tests := []map[string]string{
		{"PGAGENTS_PROFILE": "oops"},
		{"PGAGENTS_HTTP_READ_TIMEOUT": "NaN"},
		{"PGAGENTS_DATABASE_MAX_OPEN_CONNS": "oops"},
		{"PGAGENTS_DATABASE_MAX_OPEN_CONNS": "0"},
		{"PGAGENTS_DATABASE_MAX_IDLE_CONNS": "50"},
		{"PGAGENTS_DATABASE_AUTH_MODE": "kerberos"},
		{"PGAGENTS_DATABASE_AUTH_MODE": "entra"},
		{"PGAGENTS_GATEWAY_SCHEMA": " "},
		{"PGAGENTS_LLM_TEMPERATURE": "bad"},
		{"PGAGENTS_LLM_MAX_TOOL_ITERATIONS": "0"},
		{"PGAGENTS_AUDIT_FLUSH_SIZE": "-1"},
		{"PGAGENTS_AUDIT_FLUSH_SIZE": "20", "PGAGENTS_AUDIT_MAX_PENDING": "10"},
		{"PGAGENTS_AUDIT_ARCHIVE_ENABLED": "true", "PGAGENTS_OBJECTSTORE_BUCKET": ""},
		{"PGAGENTS_AUTH_REQUIRED": "not-bool"},
		{"PGAGENTS_LOG_LEVEL": "verbose"},
	}
	for _, env := range tests {
		_, err := Load("pgagents", mapLookup(env))
		if err == nil {
			t.Fatalf("Load() expected error for env %#v", env)
		}
	}
}

func TestLoadRequiresLookup(t *testing.T) {
	if _, err := Load("pgagents", nil); err == nil {
		t.Fatal("Load() expected error for nil lookup")
	}
}

func mapLookup(values map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		value, ok := values[key]
		return value, ok
	}
}
