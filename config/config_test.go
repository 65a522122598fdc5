package config

import "testing"

func TestApplyDefaults(t *testing.T) {
	var cfg Config
	cfg.ApplyDefaults()
	if cfg.DefaultCacheSize != 1024 || cfg.DefaultConcurrency != 8 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaulted config should validate: %v", err)
	}
}

func TestValidateRejectsZeroQueueSize(t *testing.T) {
	cfg := Config{DefaultCacheSize: 1, DefaultConcurrency: 1, SchedulerMaxQueueSize: 0, SchedulerAgingEvery: 1}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected an error for a zero scheduler_max_queue_size")
	}
}

func TestLoadWithNoFileAppliesDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DefaultCacheSize != 1024 {
		t.Fatalf("expected the default cache size, got %d", cfg.DefaultCacheSize)
	}
}
