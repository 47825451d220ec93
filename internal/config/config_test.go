package config

import (
	"testing"
	"time"
)

func validConfig() *Config {
	return &Config{
		Server: ServerConfig{Port: 8080},
		BGG: BGGConfig{
			BaseURL:          "https://boardgamegeek.com/xmlapi2",
			RequestTimeout:   60 * time.Second,
			MaxRetries:       5,
			MaxRateRetries:   20,
			MaxQueuedRetries: 50,
			MaxBatchRetries:  10,
		},
		Catalog: CatalogConfig{
			DefaultTopN:      500,
			DefaultBatchSize: 20,
			ProgressInterval: 500 * time.Millisecond,
		},
	}
}

func TestValidate_OK(t *testing.T) {
	t.Parallel()

	if err := validConfig().Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero port", func(c *Config) { c.Server.Port = 0 }},
		{"port out of range", func(c *Config) { c.Server.Port = 70000 }},
		{"empty base url", func(c *Config) { c.BGG.BaseURL = "" }},
		{"zero request timeout", func(c *Config) { c.BGG.RequestTimeout = 0 }},
		{"negative max retries", func(c *Config) { c.BGG.MaxRetries = -1 }},
		{"zero rate retries", func(c *Config) { c.BGG.MaxRateRetries = 0 }},
		{"zero queued retries", func(c *Config) { c.BGG.MaxQueuedRetries = 0 }},
		{"zero batch retries", func(c *Config) { c.BGG.MaxBatchRetries = 0 }},
		{"zero top n", func(c *Config) { c.Catalog.DefaultTopN = 0 }},
		{"zero batch size", func(c *Config) { c.Catalog.DefaultBatchSize = 0 }},
		{"zero progress interval", func(c *Config) { c.Catalog.ProgressInterval = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := validConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error, got nil")
			}
		})
	}
}
