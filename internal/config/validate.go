package config

import "fmt"

// Validate performs business-rule validation on the loaded configuration.
// It must be called after loading; Load calls it automatically.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be in 1..65535 (got %d)", c.Server.Port)
	}

	if err := c.BGG.validate(); err != nil {
		return fmt.Errorf("bgg: %w", err)
	}

	if c.Catalog.DefaultTopN <= 0 {
		return fmt.Errorf("catalog.default_top_n must be > 0 (got %d)", c.Catalog.DefaultTopN)
	}
	if c.Catalog.DefaultBatchSize <= 0 {
		return fmt.Errorf("catalog.default_batch must be > 0 (got %d)", c.Catalog.DefaultBatchSize)
	}
	if c.Catalog.ProgressInterval <= 0 {
		return fmt.Errorf("catalog.progress_interval must be > 0 (got %v)", c.Catalog.ProgressInterval)
	}

	return nil
}

func (b *BGGConfig) validate() error {
	if b.BaseURL == "" {
		return fmt.Errorf("base_url must not be empty")
	}
	if b.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be > 0 (got %v)", b.RequestTimeout)
	}
	if b.MaxRetries < 0 {
		return fmt.Errorf("max_retries must be >= 0 (got %d)", b.MaxRetries)
	}
	if b.MaxRateRetries <= 0 {
		return fmt.Errorf("max_rate_retries must be > 0 (got %d)", b.MaxRateRetries)
	}
	if b.MaxQueuedRetries <= 0 {
		return fmt.Errorf("max_queued_retries must be > 0 (got %d)", b.MaxQueuedRetries)
	}
	if b.MaxBatchRetries <= 0 {
		return fmt.Errorf("max_batch_retries must be > 0 (got %d)", b.MaxBatchRetries)
	}
	return nil
}
