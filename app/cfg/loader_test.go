package cfg

import (
	"strings"
	"testing"
	"time"
)

func TestGetVersion(t *testing.T) {
	if GetVersion() == "" {
		t.Error("GetVersion should never return empty string")
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load([]string{"--timezone", "UTC"})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if cfg.DBDriver != "sqlite" {
		t.Errorf("Expected driver 'sqlite', got '%s'", cfg.DBDriver)
	}
	if cfg.WorkerCount != 45 {
		t.Errorf("Expected worker count 45, got %d", cfg.WorkerCount)
	}
	if cfg.FetchCooldown != 60*time.Second {
		t.Errorf("Expected fetch cooldown 60s, got %v", cfg.FetchCooldown)
	}
	if cfg.SearchThreshold != 0.3 {
		t.Errorf("Expected search threshold 0.3, got %v", cfg.SearchThreshold)
	}
	if cfg.PageSize != 20 {
		t.Errorf("Expected page size 20, got %d", cfg.PageSize)
	}
	if cfg.MaxBodyBytes != 10<<20 {
		t.Errorf("Expected max body 10 MiB, got %d", cfg.MaxBodyBytes)
	}
	if cfg.AutoClean {
		t.Error("Expected auto-clean to be disabled by default")
	}
	if cfg.Version == "" {
		t.Error("Expected version to be set")
	}
}

func TestLoadFlags(t *testing.T) {
	cfg, err := Load([]string{
		"--db-driver", "postgres",
		"--db-password", "secret",
		"--worker-count", "8",
		"--scheduler-interval", "2m",
		"--auto-clean",
		"--auto-clean-after", "3",
		"--redis-addr", "localhost:6379",
		"--timezone", "UTC",
	})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if cfg.DBDriver != "postgres" {
		t.Errorf("Expected driver 'postgres', got '%s'", cfg.DBDriver)
	}
	if cfg.WorkerCount != 8 {
		t.Errorf("Expected worker count 8, got %d", cfg.WorkerCount)
	}
	if cfg.SchedulerInterval != 2*time.Minute {
		t.Errorf("Expected scheduler interval 2m, got %v", cfg.SchedulerInterval)
	}
	if !cfg.AutoClean || cfg.AutoCleanAfter != 3 {
		t.Errorf("Expected auto-clean after 3 failures, got %v/%d", cfg.AutoClean, cfg.AutoCleanAfter)
	}
	if cfg.RedisAddr != "localhost:6379" {
		t.Errorf("Expected redis addr 'localhost:6379', got '%s'", cfg.RedisAddr)
	}
}

func TestLoadEnvironment(t *testing.T) {
	t.Setenv("PAGE_SIZE", "50")
	t.Setenv("API_ACCESS_KEY", "test-key")

	cfg, err := Load([]string{"--timezone", "UTC"})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if cfg.PageSize != 50 {
		t.Errorf("Expected page size 50, got %d", cfg.PageSize)
	}
	if cfg.APIAccessKey != "test-key" {
		t.Errorf("Expected API key 'test-key', got '%s'", cfg.APIAccessKey)
	}
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"postgres without password", []string{"--db-driver", "postgres", "--db-password", ""}, "db-password"},
		{"unknown driver", []string{"--db-driver", "mysql"}, "failed to parse configuration"},
		{"zero workers", []string{"--worker-count", "0"}, "worker-count"},
		{"threshold above one", []string{"--search-threshold", "1.5"}, "search-threshold"},
		{"page size above max", []string{"--page-size", "200", "--max-page-size", "100"}, "page-size"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(append(tt.args, "--timezone", "UTC"))
			if err == nil {
				t.Fatal("Expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Expected error mentioning '%s', got '%v'", tt.want, err)
			}
		})
	}
}
