package config

import (
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"PORT", "DB_DRIVER", "EDIT_WINDOW", "TYPING_WINDOW", "CORS_ALLOWED_ORIGINS", "JWT_SECRET", "RATE_LIMIT_REQUESTS"} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != "8080" {
		t.Errorf("Server.Port = %q, want 8080", cfg.Server.Port)
	}
	if cfg.Database.Driver != "sqlite" {
		t.Errorf("Database.Driver = %q, want sqlite", cfg.Database.Driver)
	}
	if cfg.Chat.EditWindow != 48*time.Hour {
		t.Errorf("Chat.EditWindow = %v, want 48h", cfg.Chat.EditWindow)
	}
	if cfg.Chat.TypingWindow != 5*time.Second {
		t.Errorf("Chat.TypingWindow = %v, want 5s", cfg.Chat.TypingWindow)
	}
	if cfg.RateLimit.Requests != 300 {
		t.Errorf("RateLimit.Requests = %d, want 300", cfg.RateLimit.Requests)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("DB_DRIVER", "Postgres")
	t.Setenv("RATE_LIMIT_REQUESTS", "42")
	t.Setenv("TRACING_ENABLED", "true")
	t.Setenv("TYPING_WINDOW", "3s")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example ,")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != "9000" {
		t.Errorf("Server.Port = %q", cfg.Server.Port)
	}
	if cfg.Database.Driver != "postgres" {
		t.Errorf("Database.Driver = %q", cfg.Database.Driver)
	}
	if cfg.RateLimit.Requests != 42 {
		t.Errorf("RateLimit.Requests = %d", cfg.RateLimit.Requests)
	}
	if !cfg.Tracing.Enabled {
		t.Errorf("Tracing.Enabled = false")
	}
	if cfg.Chat.TypingWindow != 3*time.Second {
		t.Errorf("Chat.TypingWindow = %v", cfg.Chat.TypingWindow)
	}
	want := []string{"https://a.example", "https://b.example"}
	if !reflect.DeepEqual(cfg.CORSAllowedOrigins, want) {
		t.Errorf("CORSAllowedOrigins = %v, want %v", cfg.CORSAllowedOrigins, want)
	}
}

func TestLoadReportsInvalidValues(t *testing.T) {
	t.Setenv("RATE_LIMIT_REQUESTS", "lots")
	t.Setenv("EDIT_WINDOW", "two days")
	t.Setenv("TRACING_ENABLED", "maybe")
	t.Setenv("DB_DRIVER", "oracle")

	_, err := Load()
	if err == nil {
		t.Fatal("expected an error")
	}
	for _, key := range []string{"RATE_LIMIT_REQUESTS", "EDIT_WINDOW", "TRACING_ENABLED", "DB_DRIVER"} {
		if !strings.Contains(err.Error(), key) {
			t.Errorf("error %q does not mention %s", err, key)
		}
	}
}

func TestLoadRejectsNonPositiveWindows(t *testing.T) {
	t.Setenv("TYPING_WINDOW", "0s")

	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "TYPING_WINDOW") {
		t.Fatalf("err = %v", err)
	}
}
